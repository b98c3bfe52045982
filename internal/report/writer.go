package report

import (
	"bufio"
	"fmt"
	"io"
)

// WriteText renders the merged event stream one line per event, in the
// same record format the loader accepts. Start records carry the
// outstanding counts observed before the operation itself was counted;
// done records carry the counts observed while it still was.
func WriteText(w io.Writer, events []Event, blockSize int64) error {
	bw := bufio.NewWriter(w)
	for _, ev := range events {
		op := ev.Op
		if ev.Kind == EventStart {
			fmt.Fprintf(bw, "%d -> type=%c blkno=%d size=%d outr=%d outw=%d schedlat=%d\n",
				op.Start, byte(op.Dir), op.Blkno(blockSize), op.Size,
				op.OutR, op.OutW, op.SchedLatency())
			continue
		}
		fmt.Fprintf(bw, "%d <- type=%c blkno=%d size=%d outr=%d outw=%d latency=%d worker=%d\n",
			op.Done, byte(op.Dir), op.Blkno(blockSize), op.Size,
			op.DoneR, op.DoneW, op.Latency(), op.Worker)
	}
	return bw.Flush()
}

// Package types provides core data types shared by the replay tools.
package types

// Direction distinguishes reads from writes. The values are the letters
// the trace syntax uses so they format directly into report lines.
type Direction byte

const (
	DirRead  Direction = 'R'
	DirWrite Direction = 'W'
)

// String returns the single-letter trace spelling.
func (d Direction) String() string {
	return string(rune(d))
}

// Operation is one replayed I/O with its captured schedule and its
// measured lifecycle. The loader fills the schedule fields, an executing
// worker fills the measurement fields, and the report reads the finished
// record. All times are nanoseconds relative to the replay start.
type Operation struct {
	// Dir is the transfer direction
	Dir Direction

	// Offset is the byte offset on the target
	Offset int64

	// Size is the transfer size in bytes
	Size int64

	// Sched is when the capture issued the operation
	Sched int64

	// Start is when the replay actually issued it
	Start int64

	// Done is when the transfer completed
	Done int64

	// OutR and OutW count operations in flight when this one started,
	// not counting this one
	OutR int
	OutW int

	// DoneR and DoneW count operations in flight when this one
	// completed, counting this one
	DoneR int
	DoneW int

	// Worker is the index of the worker that executed the transfer
	Worker int
}

// IsRead reports whether the operation is a read.
func (o *Operation) IsRead() bool {
	return o.Dir == DirRead
}

// Blkno converts the byte offset back into the trace's block unit.
func (o *Operation) Blkno(blockSize int64) int64 {
	return o.Offset / blockSize
}

// SchedLatency is how far behind schedule the operation started.
func (o *Operation) SchedLatency() int64 {
	return o.Start - o.Sched
}

// Latency is the measured service time.
func (o *Operation) Latency() int64 {
	return o.Done - o.Start
}

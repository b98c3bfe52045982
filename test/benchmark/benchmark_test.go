// Package benchmark provides performance benchmarks for the replay tools.
package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/internal/replay"
	"github.com/TritonDataCenter/toshstomp/internal/report"
	"github.com/TritonDataCenter/toshstomp/internal/trace"
	"github.com/TritonDataCenter/toshstomp/pkg/types"
)

// nopTarget completes transfers instantly, isolating coordination cost
// from device latency.
type nopTarget struct{}

func (nopTarget) ReadAt(p []byte, off int64) (int, error)  { return len(p), nil }
func (nopTarget) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }

func buildTrace(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		dir := "R"
		if i%4 == 0 {
			dir = "W"
		}
		fmt.Fprintf(&sb, "%d -> type=%s blkno=%d size=8192\n", i*1000, dir, (i%4096)*16)
	}
	return sb.String()
}

// BenchmarkTraceParsing measures replay log parsing throughput.
func BenchmarkTraceParsing(b *testing.B) {
	text := buildTrace(10000)
	cfg := config.DefaultConfig().Replay

	b.ResetTimer()
	b.ReportAllocs()

	lines := 0
	for i := 0; i < b.N; i++ {
		loader := trace.NewLoader(cfg, 1<<40)
		_, stats, err := loader.Load(strings.NewReader(text))
		if err != nil {
			b.Fatal(err)
		}
		lines += stats.Lines
	}
	b.ReportMetric(float64(lines)/b.Elapsed().Seconds(), "lines/sec")
}

// BenchmarkFingerprint measures trace fingerprint accumulation.
func BenchmarkFingerprint(b *testing.B) {
	b.ReportAllocs()

	fp := trace.NewFingerprint()
	for i := 0; i < b.N; i++ {
		fp.Add(int64(i)*1000, types.DirRead, int64(i%4096)*16, 8192)
	}
	if fp.Sum() == "" {
		b.Fatal("empty fingerprint")
	}
}

// BenchmarkMerge measures merging the two event logs of a run where
// every operation overlaps its neighbors.
func BenchmarkMerge(b *testing.B) {
	const n = 10000
	startLog := make([]*types.Operation, n)
	doneLog := make([]*types.Operation, n)
	for i := 0; i < n; i++ {
		op := &types.Operation{
			Dir:   types.DirRead,
			Size:  8192,
			Start: int64(i) * 10,
			Done:  int64(i)*10 + 25,
		}
		startLog[i] = op
		doneLog[i] = op
	}

	b.ResetTimer()
	b.ReportAllocs()

	events := 0
	for i := 0; i < b.N; i++ {
		events += len(report.Merge(startLog, doneLog))
	}
	b.ReportMetric(float64(events)/b.Elapsed().Seconds(), "events/sec")
}

// BenchmarkOperationTurnaround measures one operation's full lifecycle
// through the pool, from dispatch to completion barrier.
func BenchmarkOperationTurnaround(b *testing.B) {
	cfg := config.DefaultConfig().Replay
	pool := replay.NewPool(nopTarget{}, make([]byte, cfg.PatternBufSize), cfg.Workers)
	defer pool.Close()
	pool.SetEpoch()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		op := &types.Operation{Dir: types.DirWrite, Offset: 0, Size: 8192}
		if err := pool.Dispatch(op); err != nil {
			b.Fatal(err)
		}
		pool.Wait()
	}
}

// Package stomp generates a continuous mixed read/write load against a
// target while reporting per-interval statistics.
package stomp

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/internal/device"
	"github.com/TritonDataCenter/toshstomp/internal/errors"
)

// Target is the I/O surface the load is generated against.
type Target interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// Stomper drives a fixed set of reader and writer goroutines at full
// speed. Readers pick random aligned offsets across the whole target;
// writers march a shared cursor forward from the middle of the target,
// wrapping back when they reach the end.
type Stomper struct {
	cfg     config.StompConfig
	target  Target
	size    int64
	pattern []byte

	// interval counters, swapped to zero by the reporter
	nreads  atomic.Int64
	rdlat   atomic.Int64
	nwrites atomic.Int64
	wrlat   atomic.Int64

	mu       sync.Mutex
	writeLBA int64
	initLBA  int64
	wraps    int
}

// New validates the target size and positions the write cursor at the
// highest buffer-aligned offset at or below the middle of the target.
func New(cfg config.StompConfig, target Target, size int64) (*Stomper, error) {
	if size < cfg.BufSize {
		return nil, errors.NewTargetError(errors.CodeTargetTooSmall,
			"file is too small", nil)
	}
	initLBA := (size / 2) &^ (cfg.BufSize - 1)
	return &Stomper{
		cfg:      cfg,
		target:   target,
		size:     size,
		pattern:  device.NewPattern(int(cfg.BufSize)),
		writeLBA: initLBA,
		initLBA:  initLBA,
	}, nil
}

// InitialWriteLBA returns the offset the write cursor starts from and
// wraps back to.
func (s *Stomper) InitialWriteLBA() int64 {
	return s.initLBA
}

// Run starts the writers, the readers, and the reporter, and blocks
// until the context is cancelled.
func (s *Stomper) Run(ctx context.Context, out io.Writer) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.writer(ctx)
		}()
	}
	for i := 0; i < s.cfg.Readers; i++ {
		seed := time.Now().UnixNano() + int64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.reader(ctx, seed)
		}()
	}

	s.report(ctx, out)
	wg.Wait()
}

// reader issues full-speed reads at random buffer-aligned offsets.
func (s *Stomper) reader(ctx context.Context, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	buf := make([]byte, s.cfg.BufSize)
	blocks := s.size / s.cfg.BufSize

	for ctx.Err() == nil {
		lba := s.cfg.BufSize * rng.Int63n(blocks)
		begin := time.Now()
		if _, err := s.target.ReadAt(buf, lba); err != nil && err != io.EOF {
			log.Printf("pread lba 0x%x: %v", lba, err)
		}
		s.nreads.Add(1)
		s.rdlat.Add(time.Since(begin).Nanoseconds())
	}
}

// writer issues full-speed writes at the shared cursor.
func (s *Stomper) writer(ctx context.Context) {
	for ctx.Err() == nil {
		lba := s.nextWriteLBA()
		begin := time.Now()
		if _, err := s.target.WriteAt(s.pattern, lba); err != nil {
			log.Printf("pwrite lba 0x%x: %v", lba, err)
		}
		s.nwrites.Add(1)
		s.wrlat.Add(time.Since(begin).Nanoseconds())
	}
}

// nextWriteLBA claims the cursor's current position and advances it,
// wrapping back to the initial offset before the cursor would run off
// the end of the target.
func (s *Stomper) nextWriteLBA() int64 {
	s.mu.Lock()
	lba := s.writeLBA
	s.writeLBA += s.cfg.BufSize
	if s.writeLBA+s.cfg.BufSize >= s.size {
		s.writeLBA = s.initLBA
		s.wraps++
	}
	s.mu.Unlock()
	return lba
}

func (s *Stomper) writeCursor() (lba int64, wraps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLBA, s.wraps
}

// report prints the column header and then one statistics line per
// interval until the context is cancelled, then a final line covering
// the partial interval.
func (s *Stomper) report(ctx context.Context, out io.Writer) {
	fmt.Fprintf(out, "%20s %7s %7s %7s %7s %14s %2s\n",
		"TIME", "NREADS", "RDLATus", "NWRITE", "WRLATus", "WRLBA", "WR")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.emit(out, time.Now())
			return
		case <-ticker.C:
			s.emit(out, time.Now())
		}
	}
}

// emit drains the interval counters and prints one statistics line. The
// latency columns are the mean per-operation microseconds over the
// interval, zero when no operations completed.
func (s *Stomper) emit(out io.Writer, now time.Time) {
	nreads := s.nreads.Swap(0)
	rdlat := s.rdlat.Swap(0)
	nwrites := s.nwrites.Swap(0)
	wrlat := s.wrlat.Swap(0)

	var rdavg, wravg int64
	if nreads > 0 {
		rdavg = rdlat / nreads / 1000
	}
	if nwrites > 0 {
		wravg = wrlat / nwrites / 1000
	}
	lba, wraps := s.writeCursor()

	stamp := now.UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(out, "%20s %7d %7d %7d %7d 0x%012x %2d\n",
		stamp, nreads, rdavg, nwrites, wravg, lba, wraps)
}

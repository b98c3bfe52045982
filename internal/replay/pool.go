// Package replay executes a loaded trace against a target with the
// captured timing.
package replay

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/TritonDataCenter/toshstomp/internal/errors"
	"github.com/TritonDataCenter/toshstomp/pkg/types"
)

// Target is the I/O surface operations are replayed against.
type Target interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// Pool is a fixed set of workers plus the shared run state: the idle
// free-list, the two event logs, and the outstanding counters. One mutex
// guards all of it. Both logs are timestamp ordered by construction
// because entries are appended in the same critical section that stamps
// them.
type Pool struct {
	mu sync.Mutex

	// free is a LIFO stack of idle workers
	free []*worker

	// startLog and doneLog record operations in the order their events
	// were stamped
	startLog []*types.Operation
	doneLog  []*types.Operation

	// outReads and outWrites count operations in flight per direction
	outReads  int
	outWrites int

	// epoch anchors every relative timestamp in the run
	epoch time.Time

	// inflight is the completion barrier: incremented at dispatch,
	// decremented once the done record is appended and the worker is
	// back on the free list
	inflight sync.WaitGroup

	target  Target
	pattern []byte
	workers []*worker
	closed  bool
}

// worker executes one operation at a time, handed over on a single-slot
// channel. Exactly one of two states holds: parked on the free list or
// executing.
type worker struct {
	id   int
	pool *Pool
	work chan *types.Operation
}

// NewPool starts n workers against the target. The pattern buffer backs
// every write; it must be at least as large as the largest operation.
func NewPool(target Target, pattern []byte, n int) *Pool {
	p := &Pool{
		target:  target,
		pattern: pattern,
		free:    make([]*worker, 0, n),
		workers: make([]*worker, n),
	}
	for i := 0; i < n; i++ {
		w := &worker{id: i, pool: p, work: make(chan *types.Operation, 1)}
		p.workers[i] = w
		go w.loop()
	}
	return p
}

// SetEpoch stamps the reference point all relative times are measured
// from. The dispatcher calls it once, immediately before the first
// operation is issued.
func (p *Pool) SetEpoch() {
	p.mu.Lock()
	p.epoch = time.Now()
	p.mu.Unlock()
}

// Epoch returns the stamped reference point.
func (p *Pool) Epoch() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// Dispatch hands the operation to an idle worker. An empty free list is
// fatal to the run: queueing the operation would distort the timing the
// replay exists to reproduce.
func (p *Pool) Dispatch(op *types.Operation) error {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return errors.NewCapacityError(errors.CodePoolExhausted,
			fmt.Sprintf("ran out of workers at time offset %d", op.Sched))
	}
	w := p.free[n-1]
	p.free = p.free[:n-1]
	p.inflight.Add(1)
	p.mu.Unlock()

	// The handoff happens after the unlock; a woken worker must never
	// block on the pool lock behind the dispatcher.
	w.work <- op
	return nil
}

// Wait blocks until every dispatched operation has appended its done
// record and its worker is idle again.
func (p *Pool) Wait() {
	p.inflight.Wait()
}

// Logs returns the two event logs. Stable only after Wait.
func (p *Pool) Logs() (startLog, doneLog []*types.Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startLog, p.doneLog
}

// Outstanding returns the in-flight counts per direction.
func (p *Pool) Outstanding() (reads, writes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outReads, p.outWrites
}

// Idle returns the number of parked workers.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Close shuts the workers down. In-flight operations finish first.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for _, w := range p.workers {
		close(w.work)
	}
}

// sinceEpoch returns the monotonic offset from the replay epoch.
func (p *Pool) sinceEpoch() int64 {
	return time.Since(p.epoch).Nanoseconds()
}

// enlist parks a worker on the free list.
func (p *Pool) enlist(w *worker) {
	p.mu.Lock()
	p.free = append(p.free, w)
	p.mu.Unlock()
}

func (w *worker) loop() {
	w.pool.enlist(w)
	for op := range w.work {
		w.execute(op)
	}
}

// execute runs one operation through its lifecycle. The start snapshot
// is taken before this operation's own counter is incremented, so it
// excludes the operation itself; the done snapshot is taken before the
// decrement, so it includes it. The worker rejoins the free list in the
// same critical section that appends the done record.
func (w *worker) execute(op *types.Operation) {
	p := w.pool

	p.mu.Lock()
	op.OutR = p.outReads
	op.OutW = p.outWrites
	if op.IsRead() {
		p.outReads++
	} else {
		p.outWrites++
	}
	op.Start = p.sinceEpoch()
	p.startLog = append(p.startLog, op)
	p.mu.Unlock()

	op.Worker = w.id
	w.transfer(op)

	p.mu.Lock()
	op.Done = p.sinceEpoch()
	op.DoneR = p.outReads
	op.DoneW = p.outWrites
	p.doneLog = append(p.doneLog, op)
	if op.IsRead() {
		p.outReads--
	} else {
		p.outWrites--
	}
	p.free = append(p.free, w)
	p.mu.Unlock()

	p.inflight.Done()
}

// transfer performs the positioned I/O. Failures and short transfers are
// warnings, never fatal: the run's purpose is the timing, not the data.
func (w *worker) transfer(op *types.Operation) {
	if op.IsRead() {
		buf := make([]byte, op.Size)
		n, err := w.pool.target.ReadAt(buf, op.Offset)
		switch {
		case err != nil && err != io.EOF:
			log.Printf("pread lba 0x%x: %v", op.Offset, err)
		case int64(n) != op.Size:
			log.Printf("pread lba 0x%x reported %d bytes", op.Offset, n)
		}
		return
	}

	n, err := w.pool.target.WriteAt(w.pool.pattern[:op.Size], op.Offset)
	switch {
	case err != nil:
		log.Printf("pwrite lba 0x%x: %v", op.Offset, err)
	case int64(n) != op.Size:
		log.Printf("pwrite lba 0x%x reported %d bytes", op.Offset, n)
	}
}

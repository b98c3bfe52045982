package replay

import (
	"time"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/pkg/types"
)

// Dispatcher issues operations at their scheduled offsets from a single
// goroutine. It never reorders and never queues: each operation is
// handed to an idle worker the moment its time arrives, or the run
// fails.
type Dispatcher struct {
	pool *Pool
	mode config.WaitMode

	// spinWindow is how far ahead of a deadline the hybrid mode stops
	// sleeping and starts spinning
	spinWindow time.Duration
}

// NewDispatcher returns a dispatcher for the pool using the configured
// wait mode.
func NewDispatcher(pool *Pool, cfg config.ReplayConfig) *Dispatcher {
	return &Dispatcher{
		pool:       pool,
		mode:       cfg.WaitMode,
		spinWindow: cfg.SpinWindow,
	}
}

// Run stamps the replay epoch and issues every operation at its offset.
// It returns as soon as the last operation has been handed off; callers
// wait on the pool for completion.
func (d *Dispatcher) Run(ops []types.Operation) error {
	d.pool.SetEpoch()
	epoch := d.pool.Epoch()

	for i := range ops {
		op := &ops[i]
		d.waitUntil(epoch.Add(time.Duration(op.Sched)))
		if err := d.pool.Dispatch(op); err != nil {
			return err
		}
	}
	return nil
}

// waitUntil holds the dispatcher until the deadline. Spin mode burns the
// whole wait on the clock; hybrid mode sleeps until the spin window
// opens, then spins the remainder.
func (d *Dispatcher) waitUntil(deadline time.Time) {
	if d.mode == config.WaitHybrid {
		if pause := time.Until(deadline) - d.spinWindow; pause > 0 {
			time.Sleep(pause)
		}
	}
	for time.Now().Before(deadline) {
	}
}

// Run dispatches the operations through the pool and blocks until every
// one of them has completed.
func Run(pool *Pool, cfg config.ReplayConfig, ops []types.Operation) error {
	if err := NewDispatcher(pool, cfg).Run(ops); err != nil {
		return err
	}
	pool.Wait()
	return nil
}

package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TritonDataCenter/toshstomp/internal/errors"
	"github.com/TritonDataCenter/toshstomp/internal/trace"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	target      TEXT NOT NULL,
	workers     INTEGER NOT NULL,
	block_size  INTEGER NOT NULL,
	operations  INTEGER NOT NULL,
	reads       INTEGER NOT NULL,
	writes      INTEGER NOT NULL,
	truncated   INTEGER NOT NULL,
	fingerprint TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	run_id  TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	kind    TEXT NOT NULL,
	stamp   INTEGER NOT NULL,
	dir     TEXT NOT NULL,
	blkno   INTEGER NOT NULL,
	size    INTEGER NOT NULL,
	outr    INTEGER NOT NULL,
	outw    INTEGER NOT NULL,
	latency INTEGER NOT NULL,
	worker  INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS idx_events_run_stamp ON events(run_id, stamp);
`

// RunInfo describes a completed run for recording.
type RunInfo struct {
	StartedAt time.Time
	Target    string
	Workers   int
	BlockSize int64
	Stats     *trace.Stats
}

// Recorder persists completed runs to a SQLite database so they can be
// compared across target devices and configurations.
type Recorder struct {
	db *sql.DB
}

// OpenRecorder opens the report database at path, creating the schema if
// it does not exist yet.
func OpenRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewIOError(errors.CodeRecordFailed,
			fmt.Sprintf("open report database %q", path), err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.NewIOError(errors.CodeRecordFailed, "set journal mode", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.NewIOError(errors.CodeRecordFailed, "create report schema", err)
	}
	return &Recorder{db: db}, nil
}

// Record inserts the run and its merged event stream in one transaction
// and returns the generated run id. The event's latency column holds the
// scheduling latency for start events and the transfer latency for done
// events, mirroring the text report.
func (r *Recorder) Record(ctx context.Context, info RunInfo, events []Event) (string, error) {
	runID := uuid.New().String()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.NewIOError(errors.CodeRecordFailed, "begin report transaction", err)
	}
	defer tx.Rollback()

	insertRun := `INSERT INTO runs (run_id, started_at, target, workers, block_size,
		operations, reads, writes, truncated, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertRun,
		runID, info.StartedAt.UnixNano(), info.Target, info.Workers, info.BlockSize,
		info.Stats.Operations, info.Stats.Reads, info.Stats.Writes,
		info.Stats.Truncated, info.Stats.Fingerprint); err != nil {
		return "", errors.NewIOError(errors.CodeRecordFailed, "insert run row", err)
	}

	insertEvent := `INSERT INTO events (run_id, seq, kind, stamp, dir, blkno, size,
		outr, outw, latency, worker)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return "", errors.NewIOError(errors.CodeRecordFailed, "prepare event insert", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		op := ev.Op
		kind, stamp := "start", op.Start
		outr, outw, latency := op.OutR, op.OutW, op.SchedLatency()
		if ev.Kind == EventDone {
			kind, stamp = "done", op.Done
			outr, outw, latency = op.DoneR, op.DoneW, op.Latency()
		}
		if _, err := stmt.ExecContext(ctx, runID, i, kind, stamp, op.Dir.String(),
			op.Blkno(info.BlockSize), op.Size, outr, outw, latency, op.Worker); err != nil {
			return "", errors.NewIOError(errors.CodeRecordFailed,
				fmt.Sprintf("insert event %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.NewIOError(errors.CodeRecordFailed, "commit report transaction", err)
	}
	return runID, nil
}

// Close releases the underlying database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}

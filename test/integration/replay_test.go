// Package integration provides end-to-end tests for the replay tools.
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/internal/device"
	"github.com/TritonDataCenter/toshstomp/internal/replay"
	"github.com/TritonDataCenter/toshstomp/internal/report"
	"github.com/TritonDataCenter/toshstomp/internal/trace"
)

// TestReplayFlow drives the full pipeline: trace source → loader →
// worker pool → merged report → recorded run.
func TestReplayFlow(t *testing.T) {
	tempDir := t.TempDir()

	// 64 operations spaced half a millisecond apart.
	var sb strings.Builder
	for i := 0; i < 64; i++ {
		dir := "R"
		if i%3 == 0 {
			dir = "W"
		}
		fmt.Fprintf(&sb, "%d -> type=%s blkno=%d size=4096\n", i*500000, dir, (i%32)*8)
	}
	tracePath := filepath.Join(tempDir, "trace.log")
	if err := os.WriteFile(tracePath, []byte(sb.String()), 0644); err != nil {
		t.Fatalf("failed to write trace: %v", err)
	}

	targetPath := filepath.Join(tempDir, "target.img")
	if err := os.WriteFile(targetPath, make([]byte, 256*1024), 0644); err != nil {
		t.Fatalf("failed to write target: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Trace.Path = tracePath
	cfg.Report.DBPath = filepath.Join(tempDir, "report.db")
	cfg.Replay.Workers = 16
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config validation failed: %v", err)
	}

	target, err := device.Open(targetPath)
	if err != nil {
		t.Fatalf("failed to open target: %v", err)
	}
	defer target.Close()

	pool := replay.NewPool(target, device.NewPattern(cfg.Replay.PatternBufSize), cfg.Replay.Workers)
	defer pool.Close()

	ctx := context.Background()
	src, err := trace.OpenSource(ctx, cfg.Trace)
	if err != nil {
		t.Fatalf("failed to open trace source: %v", err)
	}
	ops, stats, err := trace.NewLoader(cfg.Replay, target.Size()).Load(src)
	src.Close()
	if err != nil {
		t.Fatalf("failed to load trace: %v", err)
	}
	if stats.Operations != 64 {
		t.Fatalf("expected 64 operations, got %d", stats.Operations)
	}

	if err := replay.Run(pool, cfg.Replay, ops); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	startLog, doneLog := pool.Logs()
	if len(startLog) != 64 || len(doneLog) != 64 {
		t.Fatalf("expected 64 entries per log, got %d and %d", len(startLog), len(doneLog))
	}

	events := report.Merge(startLog, doneLog)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "toshreplay: %d operations (%d reads, %d writes)\n",
		stats.Operations, stats.Reads, stats.Writes)
	if err := report.WriteText(&buf, events, cfg.Replay.BlockSize); err != nil {
		t.Fatalf("failed to render report: %v", err)
	}

	out := buf.String()
	summary := fmt.Sprintf("toshreplay: 64 operations (%d reads, %d writes)\n",
		stats.Reads, stats.Writes)
	if !strings.HasPrefix(out, summary) {
		t.Errorf("report does not begin with the summary line %q", summary)
	}
	if got := strings.Count(out, "\n"); got != 129 {
		t.Errorf("expected 129 report lines, got %d", got)
	}

	// The report's start records themselves form a valid replay log.
	reOps, reStats, err := trace.NewLoader(cfg.Replay, target.Size()).Load(strings.NewReader(out))
	if err != nil {
		t.Fatalf("report did not round trip through the loader: %v", err)
	}
	if reStats.Operations != 64 {
		t.Errorf("round trip produced %d operations", reStats.Operations)
	}
	for i := range reOps {
		if reOps[i].Size != 4096 {
			t.Errorf("operation %d: size %d after round trip", i, reOps[i].Size)
			break
		}
	}

	// Record the run and read it back.
	rec, err := report.OpenRecorder(cfg.Report.DBPath)
	if err != nil {
		t.Fatalf("failed to open recorder: %v", err)
	}
	defer rec.Close()

	runID, err := rec.Record(ctx, report.RunInfo{
		StartedAt: time.Now(),
		Target:    targetPath,
		Workers:   cfg.Replay.Workers,
		BlockSize: cfg.Replay.BlockSize,
		Stats:     stats,
	}, events)
	if err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	db, err := sql.Open("sqlite3", cfg.Report.DBPath)
	if err != nil {
		t.Fatalf("failed to open report db: %v", err)
	}
	defer db.Close()

	var eventCount int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE run_id = ?`, runID).Scan(&eventCount); err != nil {
		t.Fatalf("failed to count recorded events: %v", err)
	}
	if eventCount != 128 {
		t.Errorf("expected 128 recorded events, got %d", eventCount)
	}
	var fingerprint string
	if err := db.QueryRow(
		`SELECT fingerprint FROM runs WHERE run_id = ?`, runID).Scan(&fingerprint); err != nil {
		t.Fatalf("failed to read run row: %v", err)
	}
	if fingerprint != stats.Fingerprint {
		t.Errorf("recorded fingerprint %s, want %s", fingerprint, stats.Fingerprint)
	}
}

// TestReplayMinimalTrace replays a two-record trace and verifies both
// the transfer placement and the captured one-millisecond spacing.
func TestReplayMinimalTrace(t *testing.T) {
	tempDir := t.TempDir()
	targetPath := filepath.Join(tempDir, "target.img")
	if err := os.WriteFile(targetPath, make([]byte, 1<<20), 0644); err != nil {
		t.Fatalf("failed to write target: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Replay.Workers = 2

	target, err := device.Open(targetPath)
	if err != nil {
		t.Fatalf("failed to open target: %v", err)
	}
	defer target.Close()

	trc := "0 -> type=R blkno=0 size=512\n1000000 -> type=W blkno=1 size=512\n"
	ops, _, err := trace.NewLoader(cfg.Replay, target.Size()).Load(strings.NewReader(trc))
	if err != nil {
		t.Fatalf("failed to load trace: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(ops))
	}
	if !ops[0].IsRead() || ops[0].Offset != 0 || ops[0].Size != 512 {
		t.Fatalf("unexpected first operation: %+v", ops[0])
	}
	if ops[1].IsRead() || ops[1].Offset != 512 || ops[1].Size != 512 {
		t.Fatalf("unexpected second operation: %+v", ops[1])
	}

	pattern := device.NewPattern(cfg.Replay.PatternBufSize)
	pool := replay.NewPool(target, pattern, cfg.Replay.Workers)
	defer pool.Close()

	if err := replay.Run(pool, cfg.Replay, ops); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	startLog, doneLog := pool.Logs()
	if len(startLog) != 2 || len(doneLog) != 2 {
		t.Fatalf("expected 2 entries per log, got %d and %d", len(startLog), len(doneLog))
	}
	if !startLog[0].IsRead() {
		t.Error("read was not dispatched first")
	}
	if ops[1].Start < 1000000 {
		t.Errorf("write started %dns after the epoch, scheduled at 1000000", ops[1].Start)
	}

	data, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("failed to read target back: %v", err)
	}
	if !bytes.Equal(data[512:1024], pattern[:512]) {
		t.Error("write did not land at offset 512")
	}
	if !bytes.Equal(data[:512], make([]byte, 512)) {
		t.Error("read modified offset 0")
	}
}

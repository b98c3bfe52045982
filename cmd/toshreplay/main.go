// Package main implements the toshreplay binary: it parses a replay
// log, reproduces its operations against a target device or file with
// the captured timing, and reports when each operation started and
// completed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/internal/device"
	"github.com/TritonDataCenter/toshstomp/internal/errors"
	"github.com/TritonDataCenter/toshstomp/internal/replay"
	"github.com/TritonDataCenter/toshstomp/internal/report"
	"github.com/TritonDataCenter/toshstomp/internal/trace"
)

func main() {
	log.SetPrefix("toshreplay: ")
	log.SetFlags(0)

	var (
		configFile string
		threads    string
		clamp      bool
		tracePath  string
		reportDB   string
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&threads, "t", "", "Number of replay workers")
	flag.BoolVar(&clamp, "c", false, "Clamp out-of-range offsets to the target instead of failing")
	flag.StringVar(&tracePath, "f", "", "Replay log path or s3:// URL (default: stdin)")
	flag.StringVar(&reportDB, "o", "", "SQLite database to record the run into")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: toshreplay [options] DEVICE_OR_FILE < REPLAY_FILE\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TOSH_WORKERS      Number of replay workers\n")
		fmt.Fprintf(os.Stderr, "  TOSH_TRACE        Replay log path or s3:// URL\n")
		fmt.Fprintf(os.Stderr, "  TOSH_REPORT_DB    SQLite database to record runs into\n")
		fmt.Fprintf(os.Stderr, "  TOSH_S3_REGION    Region for s3:// replay logs\n")
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(errors.ExitUsage)
	}

	workers := 0
	if threads != "" {
		n, err := strconv.Atoi(threads)
		if err != nil || n < 1 {
			log.Print("invalid number of threads")
			os.Exit(errors.ExitFatal)
		}
		workers = n
	}

	cfg, err := loadConfig(configFile, workers, clamp, tracePath, reportDB)
	if err != nil {
		fatal(err)
	}

	if err := run(cfg, flag.Arg(0)); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	log.Print(err)
	os.Exit(errors.ExitCode(err))
}

// loadConfig layers configuration sources: file, then environment, then
// command line flags.
func loadConfig(configFile string, workers int, clamp bool, tracePath, reportDB string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if workers > 0 {
		cfg.Replay.Workers = workers
	}
	if clamp {
		cfg.Replay.Clamp = true
	}
	if tracePath != "" {
		cfg.Trace.Path = tracePath
	}
	if reportDB != "" {
		cfg.Report.DBPath = reportDB
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config, path string) error {
	target, err := device.Open(path)
	if err != nil {
		return err
	}
	defer target.Close()

	if target.Kind() == device.KindRegular {
		log.Print("replaying I/O on a regular file")
	}

	// The workers exist before the replay log is read, so pool startup
	// cost never lands inside the replayed timeline.
	pattern := device.NewPattern(cfg.Replay.PatternBufSize)
	pool := replay.NewPool(target, pattern, cfg.Replay.Workers)
	defer pool.Close()

	ctx := context.Background()
	src, err := trace.OpenSource(ctx, cfg.Trace)
	if err != nil {
		return err
	}
	loader := trace.NewLoader(cfg.Replay, target.Size())
	ops, stats, err := loader.Load(src)
	src.Close()
	if err != nil {
		return err
	}
	fmt.Printf("toshreplay: %d operations (%d reads, %d writes)\n",
		stats.Operations, stats.Reads, stats.Writes)
	log.Printf("trace fingerprint %s", stats.Fingerprint)

	startedAt := time.Now()
	if err := replay.Run(pool, cfg.Replay, ops); err != nil {
		return err
	}

	startLog, doneLog := pool.Logs()
	events := report.Merge(startLog, doneLog)
	if err := report.WriteText(os.Stdout, events, cfg.Replay.BlockSize); err != nil {
		return err
	}

	// Recording is best effort: a report database failure must not turn
	// a completed replay into a failed run.
	if cfg.Report.DBPath != "" {
		if err := recordRun(ctx, cfg, path, startedAt, stats, events); err != nil {
			log.Printf("recording run: %v", err)
		}
	}
	return nil
}

func recordRun(ctx context.Context, cfg *config.Config, path string,
	startedAt time.Time, stats *trace.Stats, events []report.Event) error {
	rec, err := report.OpenRecorder(cfg.Report.DBPath)
	if err != nil {
		return err
	}
	defer rec.Close()

	runID, err := rec.Record(ctx, report.RunInfo{
		StartedAt: startedAt,
		Target:    path,
		Workers:   cfg.Replay.Workers,
		BlockSize: cfg.Replay.BlockSize,
		Stats:     stats,
	}, events)
	if err != nil {
		return err
	}
	log.Printf("recorded run %s", runID)
	return nil
}

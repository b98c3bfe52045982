// Package main implements the toshstomp binary: it hammers a target
// device or file with a continuous mixed read/write load and prints
// per-interval statistics until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/internal/device"
	"github.com/TritonDataCenter/toshstomp/internal/errors"
	"github.com/TritonDataCenter/toshstomp/internal/stomp"
)

func main() {
	log.SetPrefix("toshstomp: ")
	log.SetFlags(0)

	var (
		configFile string
		readers    int
		writers    int
		interval   time.Duration
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.IntVar(&readers, "readers", -1, "Number of reader goroutines")
	flag.IntVar(&writers, "writers", -1, "Number of writer goroutines")
	flag.DurationVar(&interval, "interval", 0, "Statistics reporting interval")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: toshstomp [options] DEVICE_OR_FILE\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TOSH_STOMP_READERS    Number of reader goroutines\n")
		fmt.Fprintf(os.Stderr, "  TOSH_STOMP_WRITERS    Number of writer goroutines\n")
		fmt.Fprintf(os.Stderr, "  TOSH_STOMP_INTERVAL   Statistics reporting interval\n")
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(errors.ExitUsage)
	}

	cfg, err := loadConfig(configFile, readers, writers, interval)
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
// command line flags. A negative flag value means the flag was not
// given.
func loadConfig(configFile string, readers, writers int, interval time.Duration) (*config.Config, error) {
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

	if readers >= 0 {
		cfg.Stomp.Readers = readers
	}
	if writers >= 0 {
		cfg.Stomp.Writers = writers
	}
	if interval > 0 {
		cfg.Stomp.Interval = interval
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
		log.Print("operating on a regular file")
	}

	s, err := stomp.New(cfg.Stomp, target, target.Size())
	if err != nil {
		return err
	}

	fmt.Printf("file: %s\n", target.Path())
	fmt.Printf("size: 0x%x\n", target.Size())
	fmt.Printf("using initial write LBA: 0x%x\n", s.InitialWriteLBA())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received signal: %v", sig)
		cancel()
	}()

	s.Run(ctx, os.Stdout)
	return nil
}

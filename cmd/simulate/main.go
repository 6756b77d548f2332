package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/sim"
	"github.com/okian/cadence/pkg/logger"
)

// Default simulation constants.
const (
	defaultDuration = time.Minute
	defaultStep     = 10 * time.Millisecond
)

func main() {
	var (
		scenario = flag.String("scenario", "intro", "Scenario to play with audio")
		duration = flag.Duration("duration", defaultDuration, "Simulated speech length")
		step     = flag.Duration("step", defaultStep, "Fake clock step")
		runs     = flag.Int("runs", 1, "Independent runs")
		asJSON   = flag.Bool("json", false, "Print the report as JSON")
		quiet    = flag.Bool("quiet", false, "Only print counts")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		sim.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("warn")
	}
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		logger.Get().Warn(ctx, "invalid log_format; keeping text", logger.String("log_format", cfg.LogFormat))
	}
	// The report goes to stdout; keep logs on stderr.
	if err := logger.SetOutput(os.Stderr); err != nil {
		os.Stderr.WriteString("failed to redirect logs: " + err.Error() + "\n")
	}

	for i := 0; i < *runs; i++ {
		report, err := sim.Run(ctx, cfg, sim.Config{Scenario: *scenario, Duration: *duration, Step: *step})
		if err != nil {
			os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
			os.Exit(1)
		}
		if err := sim.PrintReport(os.Stdout, report, *asJSON, *quiet); err != nil {
			os.Stderr.WriteString("failed to print report: " + err.Error() + "\n")
			os.Exit(1)
		}
	}
}

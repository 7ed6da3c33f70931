package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/siege/internal/config"
	"github.com/okian/siege/internal/simulate"
)

// Default configuration constants.
const (
	defaultParticipants = 4
	defaultDuplicates   = 5
	defaultTopN         = 10
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 10 * time.Second
	defaultPhaseTimeout = 30 * time.Second
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "", "Base URL of the service (default: start one in-process)")
		participants = flag.Int("participants", defaultParticipants, "Roster size")
		level        = flag.Int("level", 0, "Siege level (default: service default)")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		duplicates   = flag.Int("duplicates", defaultDuplicates, "Notifications re-sent with a used id")
		topN         = flag.Int("top", defaultTopN, "Number of leaderboard entries to fetch")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		phaseTimeout = flag.Duration("phase-timeout", defaultPhaseTimeout, "Max wait for one phase transition")
		logLevel     = flag.String("log-level", "info", "debug, info, warn or error")
		verbose      = flag.Bool("verbose", false, "Log every phase transition")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logLevel, false); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// The arena content ids come from the same layered config the service reads.
	svcCfg, err := config.Load(context.Background())
	if err != nil {
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:      *baseURL,
		Participants: *participants,
		Level:        *level,
		Workers:      *workers,
		Duplicates:   *duplicates,
		TopN:         *topN,
		Timeout:      *timeout,
		PhaseTimeout: *phaseTimeout,
		Verbose:      *verbose,
		Out:          os.Stdout,
		Service:      svcCfg,
	}

	if _, err := simulate.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1) //nolint:gocritic // cancel already called
	}
}

package simulate

import (
	"fmt"
	"os"

	"github.com/okian/siege/pkg/logger"
)

// SetupLogging initializes the global logger for the simulator.
func SetupLogging(level string, jsonOutput bool) error {
	if err := logger.Init(logger.WithJSON(jsonOutput)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.SetLevelString(level)
}

// ShowHelp prints usage information for the siege simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Siege Simulator
===============

Plays one siege end to end: creates it, fills both kill objectives from
concurrent submitters, breaks the gate, kills the boss, picks up and delivers
the quest item, then verifies and prints the rank table.

Usage:
  go run ./cmd/siege-sim [options]

Options:
  -url string
        Base URL of the service (default: start one in-process)
  -participants int
        Roster size (default 4)
  -level int
        Siege level (default: service default)
  -workers int
        Number of concurrent submitters (default CPU cores * 2)
  -duplicates int
        Notifications re-sent with a used id (default 5)
  -top int
        Number of leaderboard entries to fetch (default 10)
  -timeout duration
        HTTP request timeout (default 10s)
  -phase-timeout duration
        Max wait for one phase transition (default 30s)
  -log-level string
        debug, info, warn or error (default "info")
  -verbose
        Log every phase transition
  -help
        Show this help message

Examples:
  # Simulate against an in-process service
  go run ./cmd/siege-sim

  # Simulate against a running service
  go run ./cmd/siege-sim -url http://localhost:9080 -participants 8 -level 3
`)
}

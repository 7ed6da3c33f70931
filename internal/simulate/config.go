package simulate

import (
	"io"
	"time"

	"github.com/okian/siege/internal/adapters/repository"
	"github.com/okian/siege/internal/config"
	"github.com/okian/siege/internal/domain/model"
)

// Config holds configuration for a simulated siege.
type Config struct {
	BaseURL      string        // Base URL of the service; empty starts one in-process
	Participants int           // Roster size
	Level        int           // Siege level; zero uses the service default
	Workers      int           // Number of concurrent submitters
	Duplicates   int           // Notifications re-sent with an id already used
	TopN         int           // Number of leaderboard entries to fetch
	Timeout      time.Duration // HTTP request timeout
	PhaseTimeout time.Duration // Max wait for one phase transition
	Verbose      bool          // Log every phase transition
	Out          io.Writer     // Where the final table is printed; nil disables it

	// Service configures the in-process service and names the arena content
	// (monster, gate, boss and quest item ids) the notifications refer to.
	Service *config.Config
}

// Stats holds run statistics.
type Stats struct {
	Submitted  int
	Accepted   int
	Duplicates int
	Failed     int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// Report is the outcome of one simulated siege.
type Report struct {
	SiegeID     string
	Winner      string
	Results     []model.RewardRecord
	Leaderboard []repository.Entry
	Stats       Stats
}

type createResponse struct {
	ID string `json:"id"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

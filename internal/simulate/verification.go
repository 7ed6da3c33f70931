package simulate

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/okian/siege/pkg/logger"
)

// verify checks the final ranking the service published.
func verify(cfg *Config, rep *Report) error {
	if rep.Stats.Failed > 0 {
		return fmt.Errorf("%w: %d notifications failed", ErrVerification, rep.Stats.Failed)
	}
	if rep.Stats.Duplicates != cfg.Duplicates {
		return fmt.Errorf("%w: %d duplicates detected, sent %d", ErrVerification, rep.Stats.Duplicates, cfg.Duplicates)
	}
	if len(rep.Results) != cfg.Participants {
		return fmt.Errorf("%w: %d records for %d participants", ErrVerification, len(rep.Results), cfg.Participants)
	}

	seen := make(map[string]bool, len(rep.Results))
	for i, rec := range rep.Results {
		if seen[rec.Name] {
			return fmt.Errorf("%w: %s ranked twice", ErrVerification, rec.Name)
		}
		seen[rec.Name] = true
		if rec.Rank != i+1 {
			return fmt.Errorf("%w: %s has rank %d at position %d", ErrVerification, rec.Name, rec.Rank, i+1)
		}
		if i > 0 && rec.Score > rep.Results[i-1].Score {
			prev := rep.Results[i-1]
			return fmt.Errorf("%w: %s (%d) outscores %s (%d) above it", ErrVerification, rec.Name, rec.Score, prev.Name, prev.Score)
		}
	}
	if !seen[rep.Winner] {
		return fmt.Errorf("%w: winner %s has no record", ErrVerification, rep.Winner)
	}

	for i := 1; i < len(rep.Leaderboard); i++ {
		if rep.Leaderboard[i].Score > rep.Leaderboard[i-1].Score {
			return fmt.Errorf("%w: leaderboard out of order at %d", ErrVerification, i)
		}
	}
	return nil
}

// PrintTable writes the siege's rank table.
func PrintTable(w io.Writer, rep *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "siege %s won by %s\n", rep.SiegeID, rep.Winner)
	fmt.Fprintln(tw, "RANK\tNAME\tSCORE\tEXPERIENCE\tMONEY")
	for _, rec := range rep.Results {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", rec.Rank, rec.Name, rec.Score, rec.Experience, rec.Money)
	}
	return tw.Flush()
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, rep *Report) {
	var perSecond float64
	if rep.Stats.Duration > 0 {
		perSecond = float64(rep.Stats.Submitted) / rep.Stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.String("siege", rep.SiegeID),
		logger.String("winner", rep.Winner),
		logger.Int("submitted", rep.Stats.Submitted),
		logger.Int("accepted", rep.Stats.Accepted),
		logger.Int("duplicates", rep.Stats.Duplicates),
		logger.Int("failed", rep.Stats.Failed),
		logger.Int("records", len(rep.Results)),
		logger.Int("leaderboardEntries", len(rep.Leaderboard)),
		logger.Duration("duration", rep.Stats.Duration),
		logger.Float64("notificationsPerSecond", perSecond))
}

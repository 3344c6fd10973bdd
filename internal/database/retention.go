package database

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Pruner deletes records older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunRetention prunes records older than retention once immediately and then
// every interval until ctx is cancelled. It blocks; run it in a goroutine.
func RunRetention(ctx context.Context, pruner Pruner, retention, interval time.Duration, logger *logrus.Logger) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	prune := func() {
		cutoff := time.Now().UTC().Add(-retention)
		removed, err := pruner.Prune(ctx, cutoff)
		if err != nil {
			logger.WithError(err).Warn("Failed to prune opportunity records")
			return
		}
		if removed > 0 {
			logger.WithFields(logrus.Fields{
				"removed": removed,
				"cutoff":  cutoff.Format(time.RFC3339),
			}).Info("Pruned opportunity records")
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

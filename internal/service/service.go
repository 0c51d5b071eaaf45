// Package service orchestrates the replenishment engine: it reads the
// repositories, runs the pure calculations of package replenishment and
// applies the side effects (cache, events, exports, metrics).
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/retry"
)

func readPolicy(cfg config.ReplenishmentConfig) retry.Policy {
	return retry.ReadPolicy(cfg.ReadRetryAttempts, cfg.ReadRetryBackoff)
}

// demandWindow returns the first and last day of the days complete days
// before now. The current day is still open and is left out.
func demandWindow(now time.Time, days int) (time.Time, time.Time) {
	if days <= 0 {
		days = 90
	}
	today := now.UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -days), today.AddDate(0, 0, -1)
}

// loadDemand reads the demand window of productID with the read policy and
// returns it as a zero-filled daily series. The series is nil when the
// product sold nothing in the window.
func loadDemand(ctx context.Context, demand repository.DemandRepository, policy retry.Policy, productID string, now time.Time, days int) ([]float64, error) {
	from, to := demandWindow(now, days)
	history, err := retry.Do(ctx, policy, "demand.history", func(ctx context.Context) ([]domain.DemandHistoryPoint, error) {
		return demand.History(ctx, productID, from, to)
	})
	if err != nil {
		return nil, err
	}
	return replenishment.DailySeries(history, from, to), nil
}

// sideChannel logs and counts a failed best-effort side effect.
func sideChannel(channel string, err error, msg string) {
	if err == nil {
		return
	}
	metrics.SideChannelFailuresTotal.WithLabelValues(channel).Inc()
	log.Warn().Err(err).Str("channel", channel).Msg(msg)
}

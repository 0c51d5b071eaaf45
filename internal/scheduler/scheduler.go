// Package scheduler runs evaluation cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Evaluator runs one evaluation cycle.
type Evaluator interface {
	Refresh(ctx context.Context, trigger string) (*domain.SuggestionBatch, error)
}

// Builder turns suggestions into draft purchase orders.
type Builder interface {
	BuildFromSuggestions(ctx context.Context, suggestions []domain.ReorderSuggestion) ([]*domain.PurchaseOrder, error)
}

// Scheduler evaluates the rules every interval. With a Builder it also drafts
// purchase orders for the suggestions of each cycle.
type Scheduler struct {
	evaluator Evaluator
	builder   Builder
	interval  time.Duration
	trigger   string
}

// New creates a scheduler. builder may be nil to only evaluate.
func New(evaluator Evaluator, builder Builder, interval time.Duration, trigger string) *Scheduler {
	return &Scheduler{
		evaluator: evaluator,
		builder:   builder,
		interval:  interval,
		trigger:   trigger,
	}
}

// Run evaluates immediately and then on every tick until ctx is done. A
// failing cycle is logged and the next tick runs as usual.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.interval)
	}

	log.Info().Dur("interval", s.interval).Bool("auto_build", s.builder != nil).Msg("Scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Scheduled evaluation failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single cycle.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	batch, err := s.evaluator.Refresh(ctx, s.trigger)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	if s.builder == nil || len(batch.Suggestions) == 0 {
		return nil
	}

	orders, err := s.builder.BuildFromSuggestions(ctx, batch.Suggestions)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			log.Warn().Err(err).Msg("Suggestions could not be drafted as purchase orders")
			return nil
		}
		return fmt.Errorf("build purchase orders: %w", err)
	}

	log.Info().Int("orders", len(orders)).Time("window", batch.GeneratedAt).Msg("Purchase orders drafted from suggestions")
	return nil
}

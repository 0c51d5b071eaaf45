package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

type fakeEvaluator struct {
	mu       sync.Mutex
	calls    int
	triggers []string
	err      error
	batch    *domain.SuggestionBatch
}

func (f *fakeEvaluator) Refresh(ctx context.Context, trigger string) (*domain.SuggestionBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.triggers = append(f.triggers, trigger)
	if f.err != nil {
		return nil, f.err
	}
	if f.batch != nil {
		return f.batch, nil
	}
	return &domain.SuggestionBatch{}, nil
}

func (f *fakeEvaluator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBuilder struct {
	got [][]domain.ReorderSuggestion
	err error
}

func (f *fakeBuilder) BuildFromSuggestions(ctx context.Context, s []domain.ReorderSuggestion) ([]*domain.PurchaseOrder, error) {
	f.got = append(f.got, s)
	if f.err != nil {
		return nil, f.err
	}
	return []*domain.PurchaseOrder{{ID: "po-1"}}, nil
}

func TestRunEvaluatesUntilCancelled(t *testing.T) {
	eval := &fakeEvaluator{err: errors.New("db down")}
	s := New(eval, nil, 5*time.Millisecond, "scheduled")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return eval.count() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	s := New(&fakeEvaluator{}, nil, 0, "scheduled")
	assert.Error(t, s.Run(context.Background()))
}

func TestRunOnceBuildsSuggestions(t *testing.T) {
	batch := &domain.SuggestionBatch{Suggestions: []domain.ReorderSuggestion{{ProductID: "p1", SupplierID: "s1", SuggestedQuantity: 4}}}
	eval := &fakeEvaluator{batch: batch}
	builder := &fakeBuilder{}

	require.NoError(t, New(eval, builder, time.Minute, "scheduled").RunOnce(context.Background()))
	require.Len(t, builder.got, 1)
	assert.Equal(t, batch.Suggestions, builder.got[0])
	assert.Equal(t, []string{"scheduled"}, eval.triggers)

	builder.err = domain.NewValidationError("suggestions[0].unit_cost", "no catalog price")
	assert.NoError(t, New(eval, builder, time.Minute, "scheduled").RunOnce(context.Background()))

	builder.err = domain.Transient("purchase_orders.create", errors.New("timeout"))
	assert.ErrorIs(t, New(eval, builder, time.Minute, "scheduled").RunOnce(context.Background()), domain.ErrTransient)
}

func TestRunOnceSkipsBuildWithoutSuggestions(t *testing.T) {
	builder := &fakeBuilder{}
	require.NoError(t, New(&fakeEvaluator{}, builder, time.Minute, "scheduled").RunOnce(context.Background()))
	assert.Empty(t, builder.got)
}

package replenishment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from   domain.POStatus
		action Action
		want   domain.POStatus
	}{
		{domain.POStatusDraft, ActionApprove, domain.POStatusSent},
		{domain.POStatusDraft, ActionCancel, domain.POStatusCancelled},
		{domain.POStatusSent, ActionCancel, domain.POStatusCancelled},
		{domain.POStatusSent, ActionReceive, domain.POStatusReceived},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, err := NextStatus("po-1", tt.from, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, CanTransition(tt.from, tt.action))
		})
	}
}

func TestNextStatusRejectsInvalidSource(t *testing.T) {
	_, err := NextStatus("po-1", domain.POStatusDraft, ActionReceive)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	var terr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.POStatusDraft, terr.Current)
	assert.Equal(t, domain.POStatusReceived, terr.Attempted)

	_, err = NextStatus("po-1", domain.POStatusSent, ActionApprove)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTerminalStatesRejectEveryAction(t *testing.T) {
	for _, status := range []domain.POStatus{domain.POStatusReceived, domain.POStatusCancelled} {
		for _, action := range []Action{ActionApprove, ActionCancel, ActionReceive} {
			_, err := NextStatus("po-1", status, action)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition, "%s from %s", action, status)
			assert.False(t, CanTransition(status, action))
		}
	}
}

func TestNextStatusUnknownAction(t *testing.T) {
	_, err := NextStatus("po-1", domain.POStatusDraft, Action("ship"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

package replenishment

import (
	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Action is a lifecycle operation on a purchase order.
type Action string

const (
	ActionApprove Action = "approve"
	ActionCancel  Action = "cancel"
	ActionReceive Action = "receive"
)

// draft -> sent -> received, with cancellation from draft or sent.
var transitions = map[Action]struct {
	from []domain.POStatus
	to   domain.POStatus
}{
	ActionApprove: {from: []domain.POStatus{domain.POStatusDraft}, to: domain.POStatusSent},
	ActionCancel:  {from: []domain.POStatus{domain.POStatusDraft, domain.POStatusSent}, to: domain.POStatusCancelled},
	ActionReceive: {from: []domain.POStatus{domain.POStatusSent}, to: domain.POStatusReceived},
}

// NextStatus returns the status an action leads to from current, or an
// InvalidTransitionError when the action is not allowed there.
func NextStatus(orderID string, current domain.POStatus, action Action) (domain.POStatus, error) {
	t, ok := transitions[action]
	if !ok {
		return "", domain.NewValidationError("action", "unknown action %q", action)
	}

	for _, from := range t.from {
		if from == current {
			return t.to, nil
		}
	}

	return "", &domain.InvalidTransitionError{
		OrderID:   orderID,
		Action:    string(action),
		Current:   current,
		Attempted: t.to,
	}
}

// CanTransition reports whether action is allowed from current.
func CanTransition(current domain.POStatus, action Action) bool {
	_, err := NextStatus("", current, action)
	return err == nil
}

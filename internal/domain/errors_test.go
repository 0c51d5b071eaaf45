package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMatchesInvalidInput(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())

	v.Add("reorder_quantity", "must be greater than 0, got %d", 0)
	v.Add("min_stock", "must not exceed reorder_point")

	err := fmt.Errorf("create rule: %w", v.OrNil())
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrStaleState)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Fields, 2)
	assert.Contains(t, err.Error(), "reorder_quantity: must be greater than 0, got 0")
}

func TestInvalidTransitionErrorIsStale(t *testing.T) {
	err := error(&InvalidTransitionError{OrderID: "po-1", Action: "approve", Current: POStatusCancelled, Attempted: POStatusSent})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrStaleState)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "current status cancelled, attempted sent")
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient("op", nil))

	cause := errors.New("connection reset")
	err := Transient("get rule", cause)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "get rule: connection reset", err.Error())
}

func TestLineItemSubtotal(t *testing.T) {
	li := LineItem{ProductID: "p1", Quantity: 3, UnitCost: decimal.RequireFromString("2.25")}
	assert.True(t, li.Subtotal().Equal(decimal.RequireFromString("6.75")))

	po := &PurchaseOrder{LineItems: []LineItem{li, {ProductID: "p2", Quantity: 1}, {ProductID: "p1", Quantity: 2}}}
	assert.Equal(t, int64(5), po.OrderedQuantity("p1"))
	assert.Equal(t, int64(0), po.OrderedQuantity("p9"))
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/filter"
)

func lineItem(productID string, qty int64, cost string) domain.LineItem {
	return domain.LineItem{ProductID: productID, Quantity: qty, UnitCost: decimal.RequireFromString(cost)}
}

func TestPurchaseOrderServiceBuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orders, err := f.orders.Build(ctx, []domain.PurchaseOrderInput{
		{SupplierID: "sup-a", LineItems: []domain.LineItem{lineItem("p1", 5, "2.00")}},
		{SupplierID: "sup-b", LineItems: []domain.LineItem{lineItem("p2", 8, "1.25")}},
		{SupplierID: "sup-a", LineItems: []domain.LineItem{lineItem("p1", 7, "2.00"), lineItem("p3", 1, "4.50")}},
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	a := orders[0]
	assert.Equal(t, "sup-a", a.SupplierID)
	assert.Equal(t, domain.POStatusDraft, a.Status)
	assert.Equal(t, []domain.LineItem{lineItem("p1", 12, "2.00"), lineItem("p3", 1, "4.50")}, a.LineItems)
	assert.True(t, decimal.RequireFromString("28.50").Equal(a.TotalCost))
	assert.Equal(t, testNow.AddDate(0, 0, 7), a.ExpectedDeliveryDate)
	assert.Equal(t, testNow.AddDate(0, 0, 3), orders[1].ExpectedDeliveryDate)

	stored, err := f.orders.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.LineItems, stored.LineItems)

	recorded := f.events.Events()
	require.Len(t, recorded, 2)
	assert.Equal(t, events.PurchaseOrderCreated, recorded[0].Type)
}

func TestPurchaseOrderServiceBuildIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.Build(ctx, []domain.PurchaseOrderInput{
		{SupplierID: "sup-a", LineItems: []domain.LineItem{lineItem("p1", 5, "2.00")}},
		{SupplierID: "sup-zz", LineItems: []domain.LineItem{lineItem("p2", 8, "1.25")}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.orders.Build(ctx, []domain.PurchaseOrderInput{
		{SupplierID: "sup-a", LineItems: []domain.LineItem{lineItem("p1", 0, "2.00")}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	orders, err := f.orders.List(ctx, domain.PurchaseOrderFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.events.Events())
}

func TestPurchaseOrderServiceBuildFromSuggestionsUsesCatalogPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addRule(t, "p1", "sup-a", 10, 20)
	require.NoError(t, f.mem.Catalog.UpsertCatalogEntry(ctx, &domain.SupplierCatalogEntry{
		SupplierID: "sup-a", ProductID: "p1", UnitCost: decimal.RequireFromString("1.80"),
	}))

	orders, err := f.orders.BuildFromSuggestions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, []domain.LineItem{lineItem("p1", 20, "1.80")}, orders[0].LineItems)
	assert.True(t, decimal.RequireFromString("36").Equal(orders[0].TotalCost))
}

func TestPurchaseOrderServiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orders, err := f.orders.Build(ctx, []domain.PurchaseOrderInput{
		{SupplierID: "sup-a", LineItems: []domain.LineItem{lineItem("p1", 12, "2.00")}},
	})
	require.NoError(t, err)
	po := orders[0]

	_, err = f.orders.Receive(ctx, po.ID, nil)
	var terr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.POStatusDraft, terr.Current)
	assert.Equal(t, domain.POStatusReceived, terr.Attempted)

	stale := po.Version + 1
	_, err = f.orders.Approve(ctx, po.ID, &stale)
	assert.ErrorIs(t, err, domain.ErrStaleState)

	sent, err := f.orders.Approve(ctx, po.ID, &po.Version)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusSent, sent.Status)
	assert.Equal(t, po.Version+1, sent.Version)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, []string{po.ID}, f.exporter.orders)

	_, err = f.orders.Approve(ctx, po.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	f.clock.Advance(5 * 24 * time.Hour)
	received, err := f.orders.Receive(ctx, po.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, received.Status)

	snap, err := f.mem.Stock.Snapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(17), snap.CurrentStock)

	_, err = f.orders.Cancel(ctx, po.ID, nil, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	types := []events.Type{}
	for _, e := range f.events.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.Type{events.PurchaseOrderCreated, events.PurchaseOrderApproved, events.PurchaseOrderReceived}, types)
}

func TestPurchaseOrderServiceSideChannelFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.exporter.err = errors.New("bucket offline")

	orders, err := f.orders.Build(ctx, []domain.PurchaseOrderInput{
		{SupplierID: "sup-b", LineItems: []domain.LineItem{lineItem("p2", 4, "1.25")}},
	})
	require.NoError(t, err)

	sent, err := f.orders.Approve(ctx, orders[0].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusSent, sent.Status)
}

func TestPurchaseOrderServiceCancelAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orders, err := f.orders.Build(ctx, []domain.PurchaseOrderInput{
		{SupplierID: "sup-a", LineItems: []domain.LineItem{lineItem("p1", 2, "2.00")}},
		{SupplierID: "sup-b", LineItems: []domain.LineItem{lineItem("p2", 4, "1.25")}},
	})
	require.NoError(t, err)

	cancelled, err := f.orders.Cancel(ctx, orders[1].ID, nil, "supplier closed")
	require.NoError(t, err)
	assert.Equal(t, "supplier closed", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	conds, err := filter.ParseAll([]string{"status:eq:draft"}, PurchaseOrderSchema)
	require.NoError(t, err)
	drafts, err := f.orders.List(ctx, domain.PurchaseOrderFilter{}, conds)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, orders[0].ID, drafts[0].ID)

	conds, err = filter.ParseAll([]string{"product_id:eq:p2"}, PurchaseOrderSchema)
	require.NoError(t, err)
	withP2, err := f.orders.List(ctx, domain.PurchaseOrderFilter{}, conds)
	require.NoError(t, err)
	require.Len(t, withP2, 1)
	assert.Equal(t, orders[1].ID, withP2[0].ID)

	_, err = f.orders.Approve(ctx, "missing", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

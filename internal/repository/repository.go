// Package repository declares the storage contracts of the replenishment
// engine. Implementations live in sqldb (SQL databases) and memory (tests and
// local runs).
package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// RuleRepository stores reorder rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *domain.ReorderRule) error
	Update(ctx context.Context, rule *domain.ReorderRule) error
	Delete(ctx context.Context, id string) error
	// SetActive only writes is_active and updated_at.
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	Get(ctx context.Context, id string) (*domain.ReorderRule, error)
	List(ctx context.Context, filter domain.RuleFilter) ([]*domain.ReorderRule, error)
}

// PurchaseOrderRepository stores purchase orders and their lines.
type PurchaseOrderRepository interface {
	// CreateBatch persists every order in one transaction.
	CreateBatch(ctx context.Context, orders []*domain.PurchaseOrder) error
	Get(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	List(ctx context.Context, filter domain.PurchaseOrderFilter) ([]*domain.PurchaseOrder, error)
	// Transition applies t only when the stored status and version still
	// match, returning ErrStaleState otherwise. A transition to received
	// also adds every line quantity to the stock ledger in the same
	// transaction.
	Transition(ctx context.Context, t domain.StatusTransition) (*domain.PurchaseOrder, error)
}

// DemandRepository is the append-only demand ledger.
type DemandRepository interface {
	// Append records daily demand. Recording the same product and day again
	// replaces the previous value.
	Append(ctx context.Context, points []domain.DemandHistoryPoint) error
	// History returns the points of productID within [from, to], oldest first.
	History(ctx context.Context, productID string, from, to time.Time) ([]domain.DemandHistoryPoint, error)
}

// StockRepository reads and seeds the stock ledger.
type StockRepository interface {
	Snapshot(ctx context.Context, productID string) (domain.StockSnapshot, error)
	SetStock(ctx context.Context, productID string, qty int64, at time.Time) error
}

// CatalogRepository exposes the product catalog and supplier directory.
type CatalogRepository interface {
	UpsertProduct(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)

	UpsertSupplier(ctx context.Context, s *domain.Supplier) error
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]*domain.Supplier, error)

	UpsertCatalogEntry(ctx context.Context, e *domain.SupplierCatalogEntry) error
	// CatalogEntry returns ErrNotFound when the supplier has no product
	// specific price.
	CatalogEntry(ctx context.Context, supplierID, productID string) (*domain.SupplierCatalogEntry, error)
}

// Store bundles every repository of one backend.
type Store struct {
	Rules          RuleRepository
	PurchaseOrders PurchaseOrderRepository
	Demand         DemandRepository
	Stock          StockRepository
	Catalog        CatalogRepository
}

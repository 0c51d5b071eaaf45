// Package memory provides in-memory repositories for tests and local runs.
// All repositories of one Store share a lock so that receiving a purchase
// order and crediting the stock ledger happen atomically.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
)

type state struct {
	mu        sync.RWMutex
	rules     map[string]domain.ReorderRule
	orders    map[string]domain.PurchaseOrder
	demand    map[string]map[time.Time]float64
	stock     map[string]domain.StockSnapshot
	stockErr  map[string]error
	products  map[string]domain.Product
	suppliers map[string]domain.Supplier
	catalog   map[string]domain.SupplierCatalogEntry
}

// Store groups the in-memory repositories.
type Store struct {
	Rules          *RuleRepository
	PurchaseOrders *PurchaseOrderRepository
	Demand         *DemandRepository
	Stock          *StockRepository
	Catalog        *CatalogRepository
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	s := &state{
		rules:     map[string]domain.ReorderRule{},
		orders:    map[string]domain.PurchaseOrder{},
		demand:    map[string]map[time.Time]float64{},
		stock:     map[string]domain.StockSnapshot{},
		stockErr:  map[string]error{},
		products:  map[string]domain.Product{},
		suppliers: map[string]domain.Supplier{},
		catalog:   map[string]domain.SupplierCatalogEntry{},
	}
	return &Store{
		Rules:          &RuleRepository{s: s},
		PurchaseOrders: &PurchaseOrderRepository{s: s},
		Demand:         &DemandRepository{s: s},
		Stock:          &StockRepository{s: s},
		Catalog:        &CatalogRepository{s: s},
	}
}

// Repositories exposes the store through the repository interfaces.
func (st *Store) Repositories() *repository.Store {
	return &repository.Store{
		Rules:          st.Rules,
		PurchaseOrders: st.PurchaseOrders,
		Demand:         st.Demand,
		Stock:          st.Stock,
		Catalog:        st.Catalog,
	}
}

// Verify interface compliance
var (
	_ repository.RuleRepository          = (*RuleRepository)(nil)
	_ repository.PurchaseOrderRepository = (*PurchaseOrderRepository)(nil)
	_ repository.DemandRepository        = (*DemandRepository)(nil)
	_ repository.StockRepository         = (*StockRepository)(nil)
	_ repository.CatalogRepository       = (*CatalogRepository)(nil)
)

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

// RuleRepository stores reorder rules in memory.
type RuleRepository struct{ s *state }

func (r *RuleRepository) Create(_ context.Context, rule *domain.ReorderRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[rule.ID]; ok {
		return domain.NewValidationError("id", "reorder rule %s already exists", rule.ID)
	}
	r.s.rules[rule.ID] = copyRule(*rule)
	return nil
}

func (r *RuleRepository) Update(_ context.Context, rule *domain.ReorderRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.rules[rule.ID]
	if !ok {
		return notFound("reorder rule", rule.ID)
	}
	updated := copyRule(*rule)
	updated.CreatedAt = existing.CreatedAt
	r.s.rules[rule.ID] = updated
	return nil
}

func (r *RuleRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[id]; !ok {
		return notFound("reorder rule", id)
	}
	delete(r.s.rules, id)
	return nil
}

func (r *RuleRepository) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return notFound("reorder rule", id)
	}
	rule.IsActive = active
	rule.UpdatedAt = at
	r.s.rules[id] = rule
	return nil
}

func (r *RuleRepository) Get(_ context.Context, id string) (*domain.ReorderRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil, notFound("reorder rule", id)
	}
	out := copyRule(rule)
	return &out, nil
}

func (r *RuleRepository) List(_ context.Context, filter domain.RuleFilter) ([]*domain.ReorderRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rules := []*domain.ReorderRule{}
	for _, rule := range r.s.rules {
		if filter.ProductID != "" && rule.ProductID != filter.ProductID {
			continue
		}
		if filter.SupplierID != "" && rule.SupplierID != filter.SupplierID {
			continue
		}
		if filter.ActiveOnly && !rule.IsActive {
			continue
		}
		out := copyRule(rule)
		rules = append(rules, &out)
	}
	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if a.SupplierID != b.SupplierID {
			return a.SupplierID < b.SupplierID
		}
		return a.ID < b.ID
	})
	return rules, nil
}

func copyRule(rule domain.ReorderRule) domain.ReorderRule {
	if rule.MaxStock != nil {
		v := *rule.MaxStock
		rule.MaxStock = &v
	}
	return rule
}

// PurchaseOrderRepository stores purchase orders in memory.
type PurchaseOrderRepository struct{ s *state }

func (r *PurchaseOrderRepository) CreateBatch(_ context.Context, orders []*domain.PurchaseOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, po := range orders {
		if _, ok := r.s.orders[po.ID]; ok {
			return domain.NewValidationError("id", "purchase order %s already exists", po.ID)
		}
		for _, li := range po.LineItems {
			if li.Quantity <= 0 {
				return domain.NewValidationError("quantity", "must be greater than 0")
			}
		}
	}
	for _, po := range orders {
		r.s.orders[po.ID] = copyOrder(*po)
	}
	return nil
}

func (r *PurchaseOrderRepository) Get(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	po, ok := r.s.orders[id]
	if !ok {
		return nil, notFound("purchase order", id)
	}
	out := copyOrder(po)
	return &out, nil
}

func (r *PurchaseOrderRepository) List(_ context.Context, filter domain.PurchaseOrderFilter) ([]*domain.PurchaseOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	statuses := map[domain.POStatus]bool{}
	for _, s := range filter.Statuses {
		statuses[s] = true
	}

	orders := []*domain.PurchaseOrder{}
	for _, po := range r.s.orders {
		if filter.SupplierID != "" && po.SupplierID != filter.SupplierID {
			continue
		}
		if len(statuses) > 0 && !statuses[po.Status] {
			continue
		}
		out := copyOrder(po)
		orders = append(orders, &out)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(orders) {
			return []*domain.PurchaseOrder{}, nil
		}
		orders = orders[filter.Offset:]
	}
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (r *PurchaseOrderRepository) Transition(_ context.Context, t domain.StatusTransition) (*domain.PurchaseOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	po, ok := r.s.orders[t.OrderID]
	if !ok {
		return nil, notFound("purchase order", t.OrderID)
	}
	if po.Status != t.From || po.Version != t.ExpectedVersion {
		return nil, fmt.Errorf("purchase order %s is %s at version %d, expected %s at version %d: %w",
			t.OrderID, po.Status, po.Version, t.From, t.ExpectedVersion, domain.ErrStaleState)
	}

	at := t.At
	po.Status = t.To
	po.Version++
	switch t.To {
	case domain.POStatusSent:
		po.SentAt = &at
	case domain.POStatusReceived:
		po.ReceivedAt = &at
		for _, li := range po.LineItems {
			snap := r.s.stock[li.ProductID]
			snap.ProductID = li.ProductID
			snap.CurrentStock += li.Quantity
			snap.AsOf = at
			r.s.stock[li.ProductID] = snap
		}
	case domain.POStatusCancelled:
		po.CancelledAt = &at
		po.CancelReason = t.Reason
	}
	r.s.orders[t.OrderID] = po

	out := copyOrder(po)
	return &out, nil
}

func copyOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	lines := make([]domain.LineItem, len(po.LineItems))
	copy(lines, po.LineItems)
	po.LineItems = lines
	for _, ts := range []**time.Time{&po.SentAt, &po.ReceivedAt, &po.CancelledAt} {
		if *ts != nil {
			v := **ts
			*ts = &v
		}
	}
	return po
}

// DemandRepository stores daily demand in memory.
type DemandRepository struct{ s *state }

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r *DemandRepository) Append(_ context.Context, points []domain.DemandHistoryPoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range points {
		days, ok := r.s.demand[p.ProductID]
		if !ok {
			days = map[time.Time]float64{}
			r.s.demand[p.ProductID] = days
		}
		days[day(p.Date)] = p.UnitsSold
	}
	return nil
}

func (r *DemandRepository) History(_ context.Context, productID string, from, to time.Time) ([]domain.DemandHistoryPoint, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	from, to = day(from), day(to)
	points := []domain.DemandHistoryPoint{}
	for d, units := range r.s.demand[productID] {
		if d.Before(from) || d.After(to) {
			continue
		}
		points = append(points, domain.DemandHistoryPoint{ProductID: productID, Date: d, UnitsSold: units})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// StockRepository stores stock levels in memory.
type StockRepository struct{ s *state }

func (r *StockRepository) Snapshot(_ context.Context, productID string) (domain.StockSnapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.stockErr[productID]; err != nil {
		return domain.StockSnapshot{}, err
	}
	snap, ok := r.s.stock[productID]
	if !ok {
		return domain.StockSnapshot{}, notFound("stock level", productID)
	}
	return snap, nil
}

func (r *StockRepository) SetStock(_ context.Context, productID string, qty int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.stock[productID] = domain.StockSnapshot{ProductID: productID, CurrentStock: qty, AsOf: at}
	return nil
}

// FailReads makes every Snapshot of productID return err until cleared with
// a nil err.
func (r *StockRepository) FailReads(productID string, err error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err == nil {
		delete(r.s.stockErr, productID)
		return
	}
	r.s.stockErr[productID] = err
}

// CatalogRepository stores products, suppliers and prices in memory.
type CatalogRepository struct{ s *state }

func (r *CatalogRepository) UpsertProduct(_ context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.products[p.ID] = *p
	return nil
}

func (r *CatalogRepository) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	p.CurrentStock = r.s.stock[id].CurrentStock
	return &p, nil
}

func (r *CatalogRepository) ListProducts(_ context.Context) ([]*domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	products := make([]*domain.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		p := p
		p.CurrentStock = r.s.stock[p.ID].CurrentStock
		products = append(products, &p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (r *CatalogRepository) UpsertSupplier(_ context.Context, s *domain.Supplier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.suppliers[s.ID] = *s
	return nil
}

func (r *CatalogRepository) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	s, ok := r.s.suppliers[id]
	if !ok {
		return nil, notFound("supplier", id)
	}
	return &s, nil
}

func (r *CatalogRepository) ListSuppliers(_ context.Context) ([]*domain.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	suppliers := make([]*domain.Supplier, 0, len(r.s.suppliers))
	for _, s := range r.s.suppliers {
		s := s
		suppliers = append(suppliers, &s)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].ID < suppliers[j].ID })
	return suppliers, nil
}

func catalogKey(supplierID, productID string) string {
	return supplierID + "|" + productID
}

func (r *CatalogRepository) UpsertCatalogEntry(_ context.Context, e *domain.SupplierCatalogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.catalog[catalogKey(e.SupplierID, e.ProductID)] = *e
	return nil
}

func (r *CatalogRepository) CatalogEntry(_ context.Context, supplierID, productID string) (*domain.SupplierCatalogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.catalog[catalogKey(supplierID, productID)]
	if !ok {
		return nil, notFound("catalog entry", catalogKey(supplierID, productID))
	}
	return &e, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/filter"
	"github.com/andresuchdata/autopo-replenish/internal/lock"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/retry"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
	"github.com/andresuchdata/autopo-replenish/internal/telemetry"
)

const buildLockKey = "purchase-orders:build"

// PurchaseOrderSchema lists the order fields accepted by list filters.
var PurchaseOrderSchema = filter.Schema{
	"id":                     filter.KindString,
	"supplier_id":            filter.KindString,
	"status":                 filter.KindString,
	"total_cost":             filter.KindNumber,
	"created_at":             filter.KindTime,
	"expected_delivery_date": filter.KindTime,
	"version":                filter.KindNumber,
	"product_id":             filter.KindString,
}

func orderRecord(po *domain.PurchaseOrder) orderFields {
	return orderFields{po: po, fields: filter.Fields{
		"id":                     filter.String(po.ID),
		"supplier_id":            filter.String(po.SupplierID),
		"status":                 filter.String(string(po.Status)),
		"total_cost":             filter.Number(po.TotalCost.InexactFloat64()),
		"created_at":             filter.Time(po.CreatedAt),
		"expected_delivery_date": filter.Time(po.ExpectedDeliveryDate),
		"version":                filter.Int(po.Version),
	}}
}

// orderFields matches product_id against any line of the order.
type orderFields struct {
	po     *domain.PurchaseOrder
	fields filter.Fields
}

func (o orderFields) Field(name string) (filter.Value, bool) {
	return o.fields.Field(name)
}

func (o orderFields) match(c filter.Condition) bool {
	if c.Field != "product_id" {
		return c.Match(o)
	}
	for _, li := range o.po.LineItems {
		if c.Match(filter.Fields{"product_id": filter.String(li.ProductID)}) {
			return true
		}
	}
	return false
}

// PurchaseOrderDeps wires the collaborators of a PurchaseOrderService.
type PurchaseOrderDeps struct {
	Store            *repository.Store
	Suggestions      *SuggestionService
	Locker           lock.Locker
	Publisher        events.Publisher
	Exporter         storage.OrderExporter
	PerformanceCache cache.SupplierPerformanceCache
	SuggestionCache  cache.SuggestionCache
	Config           config.ReplenishmentConfig
}

// PurchaseOrderService builds purchase orders and drives their lifecycle.
type PurchaseOrderService struct {
	orders      repository.PurchaseOrderRepository
	catalog     repository.CatalogRepository
	suggestions *SuggestionService
	locker      lock.Locker
	publisher   events.Publisher
	exporter    storage.OrderExporter
	perfCache   cache.SupplierPerformanceCache
	suggCache   cache.SuggestionCache
	policy      retry.Policy
	now         func() time.Time
	newID       func() string
}

func NewPurchaseOrderService(d PurchaseOrderDeps) *PurchaseOrderService {
	s := &PurchaseOrderService{
		orders:      d.Store.PurchaseOrders,
		catalog:     d.Store.Catalog,
		suggestions: d.Suggestions,
		locker:      d.Locker,
		publisher:   d.Publisher,
		exporter:    d.Exporter,
		perfCache:   d.PerformanceCache,
		suggCache:   d.SuggestionCache,
		policy:      readPolicy(d.Config),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if s.exporter == nil {
		s.exporter = storage.NoopExporter{}
	}
	if s.perfCache == nil {
		s.perfCache = cache.NewNoopSupplierPerformanceCache()
	}
	if s.suggCache == nil {
		s.suggCache = cache.NewNoopSuggestionCache()
	}
	return s
}

// Build consolidates inputs into one draft order per supplier and persists
// them all or none. Builds are serialised through the locker.
func (s *PurchaseOrderService) Build(ctx context.Context, inputs []domain.PurchaseOrderInput) (orders []*domain.PurchaseOrder, err error) {
	ctx, span := telemetry.StartSpan(ctx, "purchase_orders.build")
	defer func() { telemetry.EndSpan(span, err) }()

	consolidated, err := replenishment.Consolidate(inputs)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, buildLockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire build lock: %w", err)
	}
	defer release()

	createdAt := s.now().UTC()
	verr := &domain.ValidationError{}
	orders = make([]*domain.PurchaseOrder, 0, len(consolidated))
	for i, in := range consolidated {
		supplier, err := retry.Do(ctx, s.policy, "catalog.supplier", func(ctx context.Context) (*domain.Supplier, error) {
			return s.catalog.GetSupplier(ctx, in.SupplierID)
		})
		if errors.Is(err, domain.ErrNotFound) {
			verr.Add(fmt.Sprintf("orders[%d].supplier_id", i), "unknown supplier %s", in.SupplierID)
			continue
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, replenishment.NewPurchaseOrder(s.newID(), in, createdAt, supplier.LeadTimeDays))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	err = retry.Run(ctx, retry.WritePolicy, "purchase_orders.create", func(ctx context.Context) error {
		return s.orders.CreateBatch(ctx, orders)
	})
	if err != nil {
		return nil, err
	}

	metrics.PurchaseOrdersCreatedTotal.Add(float64(len(orders)))
	span.SetAttributes(attribute.Int("orders", len(orders)))

	evts := make([]events.Event, 0, len(orders))
	for _, po := range orders {
		evts = append(evts, events.FromOrder(events.PurchaseOrderCreated, po, createdAt))
		log.Info().
			Str("order_id", po.ID).
			Str("supplier_id", po.SupplierID).
			Int("lines", len(po.LineItems)).
			Str("total_cost", po.TotalCost.StringFixed(2)).
			Msg("Purchase order created")
	}
	sideChannel("events", s.publisher.Publish(ctx, evts...), "Failed to publish purchase order events")
	sideChannel("suggestion_cache", s.suggCache.InvalidateAll(ctx), "Failed to invalidate suggestion cache")

	return orders, nil
}

// BuildFromSuggestions prices suggestions from the supplier catalog and builds
// them. With no suggestions the current evaluation batch is used.
func (s *PurchaseOrderService) BuildFromSuggestions(ctx context.Context, suggestions []domain.ReorderSuggestion) ([]*domain.PurchaseOrder, error) {
	if len(suggestions) == 0 {
		if s.suggestions == nil {
			return nil, domain.NewValidationError("suggestions", "at least one suggestion is required")
		}
		batch, err := s.suggestions.Current(ctx)
		if err != nil {
			return nil, err
		}
		if len(batch.Suggestions) == 0 {
			return []*domain.PurchaseOrder{}, nil
		}
		suggestions = batch.Suggestions
	}

	prices := make(replenishment.PriceList, len(suggestions))
	for _, sg := range suggestions {
		key := replenishment.PlanningKey(sg.ProductID, sg.SupplierID)
		if _, ok := prices[key]; ok {
			continue
		}
		cost, err := unitCost(ctx, s.catalog, s.policy, sg.SupplierID, sg.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		prices[key] = cost
	}

	inputs, err := replenishment.SuggestionsToInputs(suggestions, prices)
	if err != nil {
		return nil, err
	}
	return s.Build(ctx, inputs)
}

func (s *PurchaseOrderService) Get(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return retry.Do(ctx, s.policy, "purchase_orders.get", func(ctx context.Context) (*domain.PurchaseOrder, error) {
		return s.orders.Get(ctx, id)
	})
}

func (s *PurchaseOrderService) List(ctx context.Context, f domain.PurchaseOrderFilter, conds []filter.Condition) ([]*domain.PurchaseOrder, error) {
	orders, err := retry.Do(ctx, s.policy, "purchase_orders.list", func(ctx context.Context) ([]*domain.PurchaseOrder, error) {
		return s.orders.List(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.PurchaseOrder, 0, len(orders))
	for _, po := range orders {
		rec := orderRecord(po)
		matched := true
		for _, c := range conds {
			if !rec.match(c) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, po)
		}
	}
	return out, nil
}

// TransitionRequest is a lifecycle action on one order. A nil
// ExpectedVersion acts on whatever version is stored now.
type TransitionRequest struct {
	OrderID         string
	Action          replenishment.Action
	ExpectedVersion *int64
	Reason          string
}

func (s *PurchaseOrderService) Approve(ctx context.Context, id string, version *int64) (*domain.PurchaseOrder, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: id, Action: replenishment.ActionApprove, ExpectedVersion: version})
}

func (s *PurchaseOrderService) Cancel(ctx context.Context, id string, version *int64, reason string) (*domain.PurchaseOrder, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: id, Action: replenishment.ActionCancel, ExpectedVersion: version, Reason: reason})
}

func (s *PurchaseOrderService) Receive(ctx context.Context, id string, version *int64) (*domain.PurchaseOrder, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: id, Action: replenishment.ActionReceive, ExpectedVersion: version})
}

// Transition applies one lifecycle action with an optimistic version check.
// Writes are attempted once; a concurrent change surfaces as ErrStaleState.
func (s *PurchaseOrderService) Transition(ctx context.Context, req TransitionRequest) (po *domain.PurchaseOrder, err error) {
	ctx, span := telemetry.StartSpan(ctx, "purchase_orders."+string(req.Action))
	span.SetAttributes(attribute.String("order_id", req.OrderID))
	defer func() {
		metrics.PurchaseOrderTransitionsTotal.WithLabelValues(string(req.Action), transitionResult(err)).Inc()
		telemetry.EndSpan(span, err)
	}()

	current, err := s.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	next, err := replenishment.NextStatus(current.ID, current.Status, req.Action)
	if err != nil {
		return nil, err
	}

	version := current.Version
	if req.ExpectedVersion != nil {
		if *req.ExpectedVersion != current.Version {
			return nil, fmt.Errorf("purchase order %s is at version %d, expected %d: %w",
				current.ID, current.Version, *req.ExpectedVersion, domain.ErrStaleState)
		}
		version = *req.ExpectedVersion
	}

	at := s.now().UTC()
	err = retry.Run(ctx, retry.WritePolicy, "purchase_orders.transition", func(ctx context.Context) error {
		var terr error
		po, terr = s.orders.Transition(ctx, domain.StatusTransition{
			OrderID:         current.ID,
			From:            current.Status,
			To:              next,
			ExpectedVersion: version,
			At:              at,
			Reason:          req.Reason,
		})
		return terr
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", po.ID).
		Str("action", string(req.Action)).
		Str("from", string(current.Status)).
		Str("to", string(po.Status)).
		Int64("version", po.Version).
		Msg("Purchase order transitioned")

	s.afterTransition(ctx, req.Action, po, at)
	return po, nil
}

// afterTransition runs the best-effort side channels of a committed transition.
func (s *PurchaseOrderService) afterTransition(ctx context.Context, action replenishment.Action, po *domain.PurchaseOrder, at time.Time) {
	var evt events.Event
	switch action {
	case replenishment.ActionApprove:
		evt = events.FromOrder(events.PurchaseOrderApproved, po, at)
		key, err := s.exporter.Export(ctx, po)
		sideChannel("export", err, "Failed to export approved purchase order")
		if err == nil && key != "" {
			log.Info().Str("order_id", po.ID).Str("object", key).Msg("Purchase order exported")
		}
	case replenishment.ActionCancel:
		evt = events.FromOrder(events.PurchaseOrderCancelled, po, at)
		sideChannel("suggestion_cache", s.suggCache.InvalidateAll(ctx), "Failed to invalidate suggestion cache")
	case replenishment.ActionReceive:
		evt = events.FromOrder(events.PurchaseOrderReceived, po, at)
		sideChannel("performance_cache", s.perfCache.Invalidate(ctx, po.SupplierID), "Failed to invalidate supplier performance")
		sideChannel("suggestion_cache", s.suggCache.InvalidateAll(ctx), "Failed to invalidate suggestion cache")
	}
	sideChannel("events", s.publisher.Publish(ctx, evt), "Failed to publish purchase order event")
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, domain.ErrStaleState):
		return "stale"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/service"
)

type PurchaseOrderHandler struct {
	orders *service.PurchaseOrderService
}

func NewPurchaseOrderHandler(orders *service.PurchaseOrderService) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{orders: orders}
}

// Build handles POST /purchase-orders/build
func (h *PurchaseOrderHandler) Build(c *gin.Context) {
	var req struct {
		Inputs []domain.PurchaseOrderInput `json:"inputs"`
	}
	if !bindJSON(c, &req) {
		return
	}

	orders, err := h.orders.Build(c.Request.Context(), req.Inputs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": orders, "count": len(orders)})
}

// BuildFromSuggestions handles POST /purchase-orders/build-from-suggestions.
// Without suggestions in the body the current batch is drafted.
func (h *PurchaseOrderHandler) BuildFromSuggestions(c *gin.Context) {
	var req struct {
		Suggestions []domain.ReorderSuggestion `json:"suggestions"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}

	orders, err := h.orders.BuildFromSuggestions(c.Request.Context(), req.Suggestions)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": orders, "count": len(orders)})
}

// List handles GET /purchase-orders?supplier_id=&status=draft,sent&limit=&offset=&filter=
func (h *PurchaseOrderHandler) List(c *gin.Context) {
	conds, ok := parseFilters(c, service.PurchaseOrderSchema)
	if !ok {
		return
	}

	f := domain.PurchaseOrderFilter{SupplierID: c.Query("supplier_id")}
	verr := &domain.ValidationError{}
	if raw := c.Query("status"); raw != "" {
		for _, label := range strings.Split(raw, ",") {
			status, ok := domain.ParsePOStatus(strings.TrimSpace(label))
			if !ok {
				verr.Add("status", "unknown status %q", label)
				continue
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	f.Limit = queryInt(c, "limit", verr)
	f.Offset = queryInt(c, "offset", verr)
	if err := verr.OrNil(); err != nil {
		respondError(c, err)
		return
	}

	orders, err := h.orders.List(c.Request.Context(), f, conds)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders, "count": len(orders)})
}

func queryInt(c *gin.Context, key string, verr *domain.ValidationError) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		verr.Add(key, "must be a non-negative integer, got %q", raw)
		return 0
	}
	return n
}

func (h *PurchaseOrderHandler) Get(c *gin.Context) {
	po, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

type transitionRequest struct {
	Version *int64 `json:"version"`
	Reason  string `json:"reason"`
}

func (h *PurchaseOrderHandler) Approve(c *gin.Context) {
	var req transitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.respond(c)(h.orders.Approve(c.Request.Context(), c.Param("id"), req.Version))
}

func (h *PurchaseOrderHandler) Cancel(c *gin.Context) {
	var req transitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.respond(c)(h.orders.Cancel(c.Request.Context(), c.Param("id"), req.Version, req.Reason))
}

func (h *PurchaseOrderHandler) Receive(c *gin.Context) {
	var req transitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.respond(c)(h.orders.Receive(c.Request.Context(), c.Param("id"), req.Version))
}

func (h *PurchaseOrderHandler) respond(c *gin.Context) func(*domain.PurchaseOrder, error) {
	return func(po *domain.PurchaseOrder, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	}
}

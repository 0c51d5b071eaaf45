package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/service"
)

// ruleRequest is the body of rule create and update. An omitted is_active
// means active on create and unchanged on update.
type ruleRequest struct {
	ProductID       string `json:"product_id"`
	SupplierID      string `json:"supplier_id"`
	ReorderPoint    int64  `json:"reorder_point"`
	ReorderQuantity int64  `json:"reorder_quantity"`
	MinStock        int64  `json:"min_stock"`
	MaxStock        *int64 `json:"max_stock"`
	LeadTimeDays    int    `json:"lead_time_days"`
	IsActive        *bool  `json:"is_active"`
}

func (r ruleRequest) rule(active bool) *domain.ReorderRule {
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &domain.ReorderRule{
		ProductID:       r.ProductID,
		SupplierID:      r.SupplierID,
		ReorderPoint:    r.ReorderPoint,
		ReorderQuantity: r.ReorderQuantity,
		MinStock:        r.MinStock,
		MaxStock:        r.MaxStock,
		LeadTimeDays:    r.LeadTimeDays,
		IsActive:        active,
	}
}

type RuleHandler struct {
	rules *service.RuleService
}

func NewRuleHandler(rules *service.RuleService) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// List handles GET /rules?product_id=&supplier_id=&active=&filter=
func (h *RuleHandler) List(c *gin.Context) {
	conds, ok := parseFilters(c, service.RuleSchema)
	if !ok {
		return
	}

	f := domain.RuleFilter{
		ProductID:  c.Query("product_id"),
		SupplierID: c.Query("supplier_id"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, domain.NewValidationError("active", "must be a boolean, got %q", raw))
			return
		}
		f.ActiveOnly = active
	}

	rules, err := h.rules.List(c.Request.Context(), f, conds)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rules, "count": len(rules)})
}

func (h *RuleHandler) Create(c *gin.Context) {
	var req ruleRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.rules.Create(c.Request.Context(), req.rule(true))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *RuleHandler) Get(c *gin.Context) {
	rule, err := h.rules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Update(c *gin.Context) {
	var req ruleRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	active := true
	if req.IsActive == nil {
		existing, err := h.rules.Get(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		active = existing.IsActive
	}

	updated, err := h.rules.Update(ctx, c.Param("id"), req.rule(active))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Toggle handles POST /rules/:id/toggle. Without a body the flag is flipped.
func (h *RuleHandler) Toggle(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	active := false
	if req.IsActive != nil {
		active = *req.IsActive
	} else {
		rule, err := h.rules.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		active = !rule.IsActive
	}

	rule, err := h.rules.SetActive(ctx, id, active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// Recalculate handles POST /rules/:id/recalculate
func (h *RuleHandler) Recalculate(c *gin.Context) {
	var req struct {
		ServiceLevel float64 `json:"service_level"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}

	out, err := h.rules.Recalculate(c.Request.Context(), c.Param("id"), req.ServiceLevel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

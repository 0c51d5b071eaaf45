package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-replenish/internal/replenishment"
)

// CalcHandler exposes the pure calculators.
type CalcHandler struct {
	defaultServiceLevel float64
}

func NewCalcHandler(defaultServiceLevel float64) *CalcHandler {
	return &CalcHandler{defaultServiceLevel: defaultServiceLevel}
}

type reorderPointRequest struct {
	DemandHistory []float64 `json:"demand_history"`
	LeadTimeDays  int       `json:"lead_time_days"`
	ServiceLevel  *float64  `json:"service_level"`
}

// ReorderPoint handles POST /calc/reorder-point
func (h *CalcHandler) ReorderPoint(c *gin.Context) {
	var req reorderPointRequest
	if !bindJSON(c, &req) {
		return
	}

	serviceLevel := h.defaultServiceLevel
	if req.ServiceLevel != nil {
		serviceLevel = *req.ServiceLevel
	}

	result, err := replenishment.CalculateReorderPoint(req.DemandHistory, req.LeadTimeDays, serviceLevel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// EOQ handles POST /calc/eoq
func (h *CalcHandler) EOQ(c *gin.Context) {
	var req replenishment.EOQInput
	if !bindJSON(c, &req) {
		return
	}

	eoq, err := replenishment.EconomicOrderQuantity(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eoq": eoq, "input": req})
}

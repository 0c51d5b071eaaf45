package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-replenish/internal/service"
)

type SupplierHandler struct {
	suppliers   *service.SupplierService
	projections *service.ProjectionService
}

func NewSupplierHandler(suppliers *service.SupplierService, projections *service.ProjectionService) *SupplierHandler {
	return &SupplierHandler{suppliers: suppliers, projections: projections}
}

// Performance handles GET /suppliers/:id/performance
func (h *SupplierHandler) Performance(c *gin.Context) {
	report, err := h.suppliers.Performance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Stockout handles GET /products/:id/stockout
func (h *SupplierHandler) Stockout(c *gin.Context) {
	projection, err := h.projections.Project(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projection)
}

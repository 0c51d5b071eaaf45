package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/service"
)

type SuggestionHandler struct {
	suggestions *service.SuggestionService
}

func NewSuggestionHandler(suggestions *service.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{suggestions: suggestions}
}

// Current handles GET /suggestions?supplier_id=
func (h *SuggestionHandler) Current(c *gin.Context) {
	batch, err := h.suggestions.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, forSupplier(batch, c.Query("supplier_id")))
}

// Refresh handles POST /suggestions/refresh
func (h *SuggestionHandler) Refresh(c *gin.Context) {
	batch, err := h.suggestions.Refresh(c.Request.Context(), service.TriggerOnDemand)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, forSupplier(batch, c.Query("supplier_id")))
}

func forSupplier(batch *domain.SuggestionBatch, supplierID string) *domain.SuggestionBatch {
	if supplierID == "" {
		return batch
	}
	out := &domain.SuggestionBatch{
		GeneratedAt: batch.GeneratedAt,
		Suggestions: []domain.ReorderSuggestion{},
		Skipped:     batch.Skipped,
	}
	for _, s := range batch.Suggestions {
		if s.SupplierID == supplierID {
			out.Suggestions = append(out.Suggestions, s)
		}
	}
	return out
}

package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-replenish/internal/api/handlers"
	"github.com/andresuchdata/autopo-replenish/internal/api/middleware"
	"github.com/andresuchdata/autopo-replenish/internal/service"
)

type Services struct {
	Rules          *service.RuleService
	Suggestions    *service.SuggestionService
	PurchaseOrders *service.PurchaseOrderService
	Suppliers      *service.SupplierService
	Projections    *service.ProjectionService
	ServiceLevel   float64
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.Metrics())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	apiGroup := router.Group("/api/v1")

	calcHandler := handlers.NewCalcHandler(services.ServiceLevel)
	calcGroup := apiGroup.Group("/calc")
	{
		calcGroup.POST("/reorder-point", calcHandler.ReorderPoint)
		calcGroup.POST("/eoq", calcHandler.EOQ)
	}

	if services.Rules != nil {
		ruleHandler := handlers.NewRuleHandler(services.Rules)
		ruleGroup := apiGroup.Group("/rules")
		{
			ruleGroup.GET("", ruleHandler.List)
			ruleGroup.POST("", ruleHandler.Create)
			ruleGroup.GET("/:id", ruleHandler.Get)
			ruleGroup.PUT("/:id", ruleHandler.Update)
			ruleGroup.DELETE("/:id", ruleHandler.Delete)
			ruleGroup.POST("/:id/toggle", ruleHandler.Toggle)
			ruleGroup.POST("/:id/recalculate", ruleHandler.Recalculate)
		}
	}

	if services.Suggestions != nil {
		suggestionHandler := handlers.NewSuggestionHandler(services.Suggestions)
		apiGroup.GET("/suggestions", suggestionHandler.Current)
		apiGroup.POST("/suggestions/refresh", suggestionHandler.Refresh)
	}

	if services.PurchaseOrders != nil {
		poHandler := handlers.NewPurchaseOrderHandler(services.PurchaseOrders)
		poGroup := apiGroup.Group("/purchase-orders")
		{
			poGroup.POST("/build", poHandler.Build)
			poGroup.POST("/build-from-suggestions", poHandler.BuildFromSuggestions)
			poGroup.GET("", poHandler.List)
			poGroup.GET("/:id", poHandler.Get)
			poGroup.POST("/:id/approve", poHandler.Approve)
			poGroup.POST("/:id/cancel", poHandler.Cancel)
			poGroup.POST("/:id/receive", poHandler.Receive)
		}
	}

	if services.Suppliers != nil && services.Projections != nil {
		supplierHandler := handlers.NewSupplierHandler(services.Suppliers, services.Projections)
		apiGroup.GET("/suppliers/:id/performance", supplierHandler.Performance)
		apiGroup.GET("/products/:id/stockout", supplierHandler.Stockout)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/insights/internal/models"
	"example.com/backstage/services/insights/internal/repositories"
	"example.com/backstage/services/insights/internal/services"
	"example.com/backstage/services/insights/internal/tracing"
)

// DashboardHandler serves the pre-aggregated metrics tables to dashboards.
// It only reads committed state and reshapes rows into responses; monetary
// values are rounded to two decimals here and nowhere earlier.
type DashboardHandler struct {
	service *services.InsightsService
	tracer  tracing.Tracer
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service *services.InsightsService, tracer tracing.Tracer) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		tracer:  tracer,
	}
}

// DailyResponse is the wire shape of one daily metrics row.
type DailyResponse struct {
	Date                string `json:"date"`
	OrdersCreated       int64  `json:"orders_created"`
	OrdersConfirmed     int64  `json:"orders_confirmed"`
	OrdersCancelled     int64  `json:"orders_cancelled"`
	OrdersShipped       int64  `json:"orders_shipped"`
	PaymentSuccessCount int64  `json:"payment_success_count"`
	PaymentFailureCount int64  `json:"payment_failure_count"`
	RevenueConfirmed    string `json:"revenue_confirmed"`
	RevenueCancelled    string `json:"revenue_cancelled"`
}

func toDailyResponse(row *models.DailyMetrics) DailyResponse {
	return DailyResponse{
		Date:                row.Date.Format("2006-01-02"),
		OrdersCreated:       row.OrdersCreated,
		OrdersConfirmed:     row.OrdersConfirmed,
		OrdersCancelled:     row.OrdersCancelled,
		OrdersShipped:       row.OrdersShipped,
		PaymentSuccessCount: row.PaymentSuccessCount,
		PaymentFailureCount: row.PaymentFailureCount,
		RevenueConfirmed:    row.RevenueConfirmed.StringFixed(2),
		RevenueCancelled:    row.RevenueCancelled.StringFixed(2),
	}
}

// TotalsResponse is the wire shape of summed daily rows.
type TotalsResponse struct {
	OrdersCreated       int64  `json:"orders_created"`
	OrdersConfirmed     int64  `json:"orders_confirmed"`
	OrdersCancelled     int64  `json:"orders_cancelled"`
	OrdersShipped       int64  `json:"orders_shipped"`
	PaymentSuccessCount int64  `json:"payment_success_count"`
	PaymentFailureCount int64  `json:"payment_failure_count"`
	RevenueConfirmed    string `json:"revenue_confirmed"`
	RevenueCancelled    string `json:"revenue_cancelled"`
}

func toTotalsResponse(t repositories.LifetimeTotals) TotalsResponse {
	return TotalsResponse{
		OrdersCreated:       t.OrdersCreated,
		OrdersConfirmed:     t.OrdersConfirmed,
		OrdersCancelled:     t.OrdersCancelled,
		OrdersShipped:       t.OrdersShipped,
		PaymentSuccessCount: t.PaymentSuccessCount,
		PaymentFailureCount: t.PaymentFailureCount,
		RevenueConfirmed:    t.RevenueConfirmed.StringFixed(2),
		RevenueCancelled:    t.RevenueCancelled.StringFixed(2),
	}
}

// ProductResponse is the wire shape of one product metrics row.
type ProductResponse struct {
	ProductID         int64      `json:"product_id"`
	TotalQuantitySold int64      `json:"total_quantity_sold"`
	TotalRevenue      string     `json:"total_revenue"`
	OrderCount        int64      `json:"order_count"`
	LastOrderedAt     *time.Time `json:"last_ordered_at"`
}

// HandleGetToday returns today's daily row.
func (h *DashboardHandler) HandleGetToday(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-metrics-today")
	defer h.tracer.EndTransaction(txn)

	row, err := h.service.TodaySnapshot(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load daily snapshot")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load daily metrics"})
		return
	}

	c.JSON(http.StatusOK, toDailyResponse(row))
}

// HandleGetDailyRange returns daily rows between from and to, bucketed by
// day, week or month.
func (h *DashboardHandler) HandleGetDailyRange(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-metrics-daily-range")
	defer h.tracer.EndTransaction(txn)

	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, want YYYY-MM-DD"})
		return
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, want YYYY-MM-DD"})
		return
	}

	granularity := c.DefaultQuery("granularity", services.GranularityDay)

	buckets, err := h.service.DailyRange(c.Request.Context(), from, to, granularity)
	if err != nil {
		if errors.Is(err, services.ErrBadGranularity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to load daily range")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load daily metrics"})
		return
	}

	type bucketResponse struct {
		BucketStart string         `json:"bucket_start"`
		Totals      TotalsResponse `json:"totals"`
	}

	response := make([]bucketResponse, 0, len(buckets))
	for _, b := range buckets {
		response = append(response, bucketResponse{
			BucketStart: b.Start.Format("2006-01-02"),
			Totals:      toTotalsResponse(b.Totals),
		})
	}

	c.JSON(http.StatusOK, gin.H{"granularity": granularity, "buckets": response})
}

// HandleGetTopProducts returns the top-N product rows by revenue or quantity.
func (h *DashboardHandler) HandleGetTopProducts(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-metrics-top-products")
	defer h.tracer.EndTransaction(txn)

	orderBy := c.DefaultQuery("by", repositories.OrderByRevenue)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	rows, err := h.service.TopProducts(c.Request.Context(), orderBy, limit)
	if err != nil {
		if orderBy != repositories.OrderByRevenue && orderBy != repositories.OrderByQuantity {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to load top products")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load product metrics"})
		return
	}

	response := make([]ProductResponse, 0, len(rows))
	for _, row := range rows {
		response = append(response, ProductResponse{
			ProductID:         row.ProductID,
			TotalQuantitySold: row.TotalQuantitySold,
			TotalRevenue:      row.TotalRevenue.StringFixed(2),
			OrderCount:        row.OrderCount,
			LastOrderedAt:     row.LastOrderedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"by": orderBy, "products": response})
}

// HandleGetLifetime returns full-table scalar sums.
func (h *DashboardHandler) HandleGetLifetime(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-metrics-lifetime")
	defer h.tracer.EndTransaction(txn)

	totals, err := h.service.Lifetime(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load lifetime totals")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load lifetime totals"})
		return
	}

	c.JSON(http.StatusOK, toTotalsResponse(*totals))
}

// HandleListEvents pages through the event ledger, newest first.
func (h *DashboardHandler) HandleListEvents(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-events")
	defer h.tracer.EndTransaction(txn)

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	events, total, err := h.service.RecentEvents(c.Request.Context(), offset, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list events")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"offset": offset,
		"limit":  limit,
		"events": events,
	})
}

// HandleSearchEvents runs a raw search query against the event index.
func (h *DashboardHandler) HandleSearchEvents(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-events")
	defer h.tracer.EndTransaction(txn)

	var query map[string]interface{}
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search query"})
		return
	}

	docs, err := h.service.SearchEvents(c.Request.Context(), query)
	if err != nil {
		if errors.Is(err, services.ErrSearchUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to search events")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": docs})
}

// RegisterRoutes registers the handler's routes
func (h *DashboardHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.GET("/metrics/daily/today", h.HandleGetToday)
	v1.GET("/metrics/daily", h.HandleGetDailyRange)
	v1.GET("/metrics/products/top", h.HandleGetTopProducts)
	v1.GET("/metrics/lifetime", h.HandleGetLifetime)
	v1.GET("/events", h.HandleListEvents)
	v1.POST("/events/search", h.HandleSearchEvents)
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"stock-reconciler/internal/broker"
	"stock-reconciler/internal/ledger"
	"stock-reconciler/internal/models"
	"stock-reconciler/internal/reconcile"
	"stock-reconciler/internal/store"
	"stock-reconciler/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	publisher *broker.EventPublisher
	store     *store.Store
	ledger    *ledger.Ledger
}

// NewHandler creates a new HTTP handler
func NewHandler(publisher *broker.EventPublisher, store *store.Store, ledger *ledger.Ledger) *Handler {
	return &Handler{
		publisher: publisher,
		store:     store,
		ledger:    ledger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/events", h.injectEvent)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/stock/:product_id", h.getStockLevel)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// InjectEventRequest is a lifecycle event to publish onto the bus, used by
// the order pipeline's webhook bridge and by operators replaying transitions
type InjectEventRequest struct {
	EventType string `json:"event_type" binding:"required,oneof=ORDER_CREATED ORDER_STATUS_CHANGED"`
	OrderID   int64  `json:"order_id" binding:"required"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

// injectEvent publishes a lifecycle event to the order-lifecycle topic
func (h *Handler) injectEvent(c *gin.Context) {
	var req InjectEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	base := models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: req.EventType,
		Timestamp: time.Now(),
	}

	var err error
	switch req.EventType {
	case models.EventTypeOrderCreated:
		err = h.publisher.PublishOrderCreated(c.Request.Context(), &models.OrderCreatedEvent{
			BaseEvent: base,
			OrderID:   req.OrderID,
		})
	case models.EventTypeOrderStatusChanged:
		err = h.publisher.PublishStatusChanged(c.Request.Context(), &models.OrderStatusChangedEvent{
			BaseEvent: base,
			OrderID:   req.OrderID,
			From:      req.From,
			To:        req.To,
		})
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to publish event",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"event_id": base.EventID})
}

// getOrder returns an order snapshot with its mutation audit trail and notes
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reconcile.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"error":   "Failed to load order",
			"details": err.Error(),
		})
		return
	}

	notes, err := h.store.GetNotes(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order notes",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"notes": notes,
	})
}

// getStockLevel returns a product's stock level from the cache, DB fallback
func (h *Handler) getStockLevel(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	qty, err := h.ledger.StockLevel(c.Request.Context(), productID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Product not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"stock_qty":  qty,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

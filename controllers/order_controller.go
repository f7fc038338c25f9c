package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"checkout-pipeline/middlewares"
	"checkout-pipeline/models"
	"checkout-pipeline/pipeline"
	"checkout-pipeline/repository"
	"checkout-pipeline/utils"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

type Submitter interface {
	Submit(ctx context.Context, req models.CheckoutRequest, idempotencyKey string) (models.CheckoutReceipt, error)
}

type OrderLineStore interface {
	ListLines(ctx context.Context, filter models.OrderLineFilter) ([]models.OrderLine, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.OrderLine, error)
	UpdateStatus(ctx context.Context, lineID string, status models.OrderStatus) error
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (int64, error)
	AttachPaymentProof(ctx context.Context, lineID string, proof models.PaymentProof) error
}

type InventoryStore interface {
	GetStock(ctx context.Context, productID string) (models.InventoryRecord, error)
	SetStock(ctx context.Context, productID string, patch models.StockPatch) (models.InventoryRecord, error)
}

type OrderControllerConfig struct {
	Enqueuer  Submitter
	Lines     OrderLineStore
	Inventory InventoryStore
	ListLimit int
	Logger    logrus.FieldLogger
}

type OrderController struct {
	enqueuer  Submitter
	lines     OrderLineStore
	inventory InventoryStore
	listLimit int
	log       logrus.FieldLogger
}

func NewOrderController(cfg OrderControllerConfig) *OrderController {
	oc := &OrderController{
		enqueuer:  cfg.Enqueuer,
		lines:     cfg.Lines,
		inventory: cfg.Inventory,
		listLimit: cfg.ListLimit,
		log:       cfg.Logger,
	}
	if oc.listLimit <= 0 {
		oc.listLimit = 200
	}
	if oc.log == nil {
		oc.log = logrus.StandardLogger()
	}
	return oc
}

func recordOperation(c *gin.Context, operation string) {
	status := c.Writer.Status() >= 200 && c.Writer.Status() < 300
	middlewares.RecordOrderOperation(operation, status)
}

// EnqueueOrder accepts a cart and answers 202 as soon as it is queued.
func (oc *OrderController) EnqueueOrder(c *gin.Context) {
	defer recordOperation(c, "enqueue")

	claims := middlewares.CurrentClaims(c)

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// customers always order for themselves
	if claims.Role == utils.RoleCustomer || strings.TrimSpace(req.Customer) == "" {
		req.Customer = claims.Subject
	}
	if req.Items == nil {
		req.Items = []models.CheckoutLine{}
	}

	for i, item := range req.Items {
		if msg := validateLine(item); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "items[" + strconv.Itoa(i) + "]: " + msg})
			return
		}
	}

	if req.OrderID != "" {
		existing, err := oc.lines.ListByOrder(c.Request.Context(), req.OrderID)
		if err != nil {
			oc.log.WithError(err).Error("list order lines failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if lo.ContainsBy(existing, func(l models.OrderLine) bool { return l.Customer != req.Customer }) {
			c.JSON(http.StatusConflict, gin.H{"error": "order_id is already in use"})
			return
		}
	}

	receipt, err := oc.enqueuer.Submit(c.Request.Context(), req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		if errors.Is(err, pipeline.ErrPublish) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "checkout queue unavailable"})
			return
		}
		oc.log.WithError(err).Error("submit checkout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit checkout"})
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

func validateLine(item models.CheckoutLine) string {
	switch {
	case strings.TrimSpace(item.ProductID) == "":
		return "product_id is required"
	case item.Quantity <= 0:
		return "quantity must be positive"
	case item.UnitPrice.IsNegative():
		return "unit_price must not be negative"
	}
	return ""
}

// GetUserOrders lists the caller's own orders.
func (oc *OrderController) GetUserOrders(c *gin.Context) {
	defer recordOperation(c, "list")

	filter, ok := oc.listFilter(c)
	if !ok {
		return
	}
	filter.Customer = middlewares.CurrentClaims(c).Subject

	oc.listOrders(c, filter)
}

// ListAllOrders lists orders of every customer, optionally narrowed to one.
func (oc *OrderController) ListAllOrders(c *gin.Context) {
	defer recordOperation(c, "admin_list")

	filter, ok := oc.listFilter(c)
	if !ok {
		return
	}
	filter.Customer = c.Query("customer")

	oc.listOrders(c, filter)
}

func (oc *OrderController) listFilter(c *gin.Context) (models.OrderLineFilter, bool) {
	filter := models.OrderLineFilter{Limit: oc.listLimit}

	if s := c.Query("status"); s != "" {
		status, err := models.ParseOrderStatus(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return filter, false
		}
		filter.Status = &status
	}

	if l := c.Query("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return filter, false
		}
		filter.Limit = limit
	}

	return filter, true
}

func (oc *OrderController) listOrders(c *gin.Context, filter models.OrderLineFilter) {
	lines, err := oc.lines.ListLines(c.Request.Context(), filter)
	if err != nil {
		oc.log.WithError(err).Error("list order lines failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, GroupOrders(lines))
}

// GetOrderDetails shows one order. Customers only see their own; anything
// else is reported as not found.
func (oc *OrderController) GetOrderDetails(c *gin.Context) {
	defer recordOperation(c, "details")

	claims := middlewares.CurrentClaims(c)

	lines, err := oc.lines.ListByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		oc.log.WithError(err).Error("list order lines failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	details, ok := BuildOrderDetails(lines)
	if !ok || (claims.Role != utils.RoleAdmin && details.Customer != claims.Subject) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, details)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func bindStatus(c *gin.Context) (models.OrderStatus, bool) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}

	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return status, true
}

// UpdateOrderStatus sets the status of every line of an order. Any status
// may follow any other.
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	defer recordOperation(c, "update_status")

	status, ok := bindStatus(c)
	if !ok {
		return
	}

	orderID := c.Param("id")
	n, err := oc.lines.UpdateOrderStatus(c.Request.Context(), orderID, status)
	if err != nil {
		oc.log.WithError(err).WithField("order_id", orderID).Error("update order status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	oc.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   status,
		"lines":    n,
		"by":       middlewares.CurrentClaims(c).Subject,
	}).Info("order status updated")

	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order_id": orderID, "lines": n})
}

func (oc *OrderController) UpdateLineStatus(c *gin.Context) {
	defer recordOperation(c, "update_line_status")

	status, ok := bindStatus(c)
	if !ok {
		return
	}

	lineID := c.Param("lineId")
	if err := oc.lines.UpdateStatus(c.Request.Context(), lineID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order line not found"})
			return
		}
		oc.log.WithError(err).WithField("line_id", lineID).Error("update line status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order line status updated", "line_id": lineID})
}

// AttachPaymentProof records metadata of a proof-of-payment file that the
// file store already holds.
func (oc *OrderController) AttachPaymentProof(c *gin.Context) {
	defer recordOperation(c, "payment_proof")

	var proof models.PaymentProof
	if err := c.ShouldBindJSON(&proof); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lineID := c.Param("lineId")
	if err := oc.lines.AttachPaymentProof(c.Request.Context(), lineID, proof); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order line not found"})
			return
		}
		oc.log.WithError(err).WithField("line_id", lineID).Error("attach payment proof failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment proof attached", "line_id": lineID})
}

func (oc *OrderController) GetStock(c *gin.Context) {
	defer recordOperation(c, "get_stock")

	rec, err := oc.inventory.GetStock(c.Request.Context(), c.Param("productId"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		oc.log.WithError(err).Error("get stock failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// SetStock merges the patch into the product's inventory record.
func (oc *OrderController) SetStock(c *gin.Context) {
	defer recordOperation(c, "set_stock")

	var patch models.StockPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stock must not be negative"})
		return
	}

	rec, err := oc.inventory.SetStock(c.Request.Context(), c.Param("productId"), patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		oc.log.WithError(err).Error("set stock failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

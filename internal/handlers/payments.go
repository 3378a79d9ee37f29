package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"harborcast/internal/models"
	"harborcast/internal/reconcile"
	"harborcast/internal/store"
	"harborcast/pkg/logging"
)

type verifyPaymentRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// HandleVerifyPayment is the synchronous checkout confirmation path. The
// browser callback usually lands before the async webhook, so this applies
// the same captured transition under the same idempotent guard; whichever
// delivery arrives second becomes a NoOp.
func HandleVerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId, paymentId and signature are required"})
		return
	}

	if !gateway.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature) {
		countSignatureFailure("gateway")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	event := reconcile.Event{
		Source: reconcile.SourceGateway,
		Kind:   reconcile.KindPaymentCaptured,
		Keys: []reconcile.CorrelationKey{
			{Type: reconcile.KeyPayment, Value: req.PaymentID},
			{Type: reconcile.KeyOrder, Value: req.OrderID},
		},
	}

	ctx := c.Request.Context()
	target, err := resolver.Resolve(ctx, event)
	if err != nil {
		if errors.Is(err, reconcile.ErrUnresolved) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown order"})
			return
		}
		logger.WithFields(logging.Fields{"order_id": req.OrderID, "error": err}).Error("Failed to resolve verified payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolution failed"})
		return
	}

	outcome, err := engine.Apply(ctx, target, event)
	if err != nil {
		logger.WithFields(logging.Fields{"order_id": req.OrderID, "error": err}).Error("Failed to apply verified payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
		return
	}
	if outcome.Transitioned {
		countTransition("donation", string(event.Kind))
		publisher.PublishInvalidation(ctx, target)
	}

	c.JSON(http.StatusOK, gin.H{"verified": true, "transitioned": outcome.Transitioned})
}

type createOrderRequest struct {
	StreamerID string `json:"streamerId" binding:"required"`
	Amount     int64  `json:"amount" binding:"required"`
	Currency   string `json:"currency"`
	Message    string `json:"message"`
}

// HandleCreateOrder opens a gateway order and records the donation as
// pending. The webhook or the verify path moves it to a terminal status.
func HandleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "streamerId and a positive amount are required"})
		return
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}
	if len(req.Message) > 280 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	ctx := c.Request.Context()
	streamerID, _, err := db.UserByID(ctx, req.StreamerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown streamer"})
			return
		}
		logger.WithFields(logging.Fields{"streamer_id": req.StreamerID, "error": err}).Error("Failed to look up streamer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	donationID := uuid.New().String()
	order, err := gateway.CreateOrder(ctx, req.Amount, req.Currency, donationID)
	if err != nil {
		logger.WithFields(logging.Fields{"streamer_id": streamerID, "error": err}).Error("Failed to create gateway order")
		if metrics != nil && metrics.OrdersCreated != nil {
			metrics.OrdersCreated.WithLabelValues("error").Inc()
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "order creation failed"})
		return
	}

	donation := models.Donation{
		ID:             donationID,
		StreamerID:     streamerID,
		DonorID:        c.GetString("user_id"),
		Amount:         req.Amount,
		Currency:       req.Currency,
		Message:        req.Message,
		GatewayOrderID: order.ID,
	}
	if err := db.CreateDonation(ctx, donation); err != nil {
		logger.WithFields(logging.Fields{"order_id": order.ID, "error": err}).Error("Failed to record donation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persist failed"})
		return
	}

	if metrics != nil && metrics.OrdersCreated != nil {
		metrics.OrdersCreated.WithLabelValues("success").Inc()
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":  order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})
}

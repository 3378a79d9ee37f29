package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"harborcast/internal/livekit"
	"harborcast/internal/razorpay"
	"harborcast/internal/reconcile"
	"harborcast/pkg/logging"
)

// HandleIngressWebhook consumes media provider events. The Authorization
// header carries the provider's signature token; verification happens on
// the raw body before anything is parsed.
func HandleIngressWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	webhookEvent, err := webhookReceiver.Receive(body, c.GetHeader("Authorization"))
	if err != nil {
		if errors.Is(err, livekit.ErrInvalidSignature) {
			countSignatureFailure("ingress")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	event, ok := reconcile.NormalizeIngressEvent(webhookEvent)
	if !ok {
		countWebhook("ingress", "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if len(event.Keys) == 0 {
		// Recognized event with nothing to correlate on is a provider bug.
		countWebhook("ingress", "invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing correlation key"})
		return
	}

	processEvent(c, "ingress", event)
}

// HandlePaymentWebhook consumes payment gateway events. X-Signature is an
// HMAC over the exact bytes received, so the body is hashed before any
// JSON parsing happens.
func HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !gateway.VerifyWebhookSignature(body, c.GetHeader("X-Signature")) {
		countSignatureFailure("gateway")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var envelope razorpay.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	event, ok := reconcile.NormalizeGatewayEvent(&envelope)
	if !ok {
		countWebhook("gateway", "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	processEvent(c, "gateway", event)
}

// processEvent runs resolve → apply → invalidate for a normalized event.
// An unresolvable event is acknowledged and dropped: it will never
// resolve on redelivery, and a non-200 would only cause a retry storm.
func processEvent(c *gin.Context, source string, event reconcile.Event) {
	ctx := c.Request.Context()

	target, err := resolver.Resolve(ctx, event)
	if err != nil {
		if errors.Is(err, reconcile.ErrUnresolved) {
			logger.WithFields(logging.Fields{
				"source": source,
				"kind":   event.Kind,
			}).Info("Dropping event with no matching target")
			countWebhook(source, "unresolved")
			c.JSON(http.StatusOK, gin.H{"status": "unresolved"})
			return
		}
		logger.WithFields(logging.Fields{"source": source, "error": err}).Error("Failed to resolve event target")
		countWebhook(source, "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolution failed"})
		return
	}

	outcome, err := engine.Apply(ctx, target, event)
	if err != nil {
		logger.WithFields(logging.Fields{"source": source, "error": err}).Error("Failed to apply event")
		countWebhook(source, "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
		return
	}

	if outcome.Transitioned {
		countTransition(targetEntity(target), string(event.Kind))
		publisher.PublishInvalidation(ctx, target)
	}

	countWebhook(source, "processed")
	c.JSON(http.StatusOK, gin.H{"status": "processed", "transitioned": outcome.Transitioned})
}

func targetEntity(target reconcile.Target) string {
	if target.Stream != nil {
		return "stream"
	}
	return "donation"
}

package reconcile

import (
	"context"
	"fmt"

	"harborcast/internal/models"
	"harborcast/pkg/logging"
)

// StreamWrites is the write surface the engine needs for stream targets.
type StreamWrites interface {
	SetStreamLive(ctx context.Context, streamID string, live bool) (bool, error)
}

// DonationWrites is the write surface the engine needs for donation targets.
type DonationWrites interface {
	MarkDonationOutcome(ctx context.Context, donationID, status, gatewayPaymentID string) (bool, error)
}

// Outcome reports whether applying an event actually changed state.
// NoOp is a normal result on duplicate delivery, never an error.
type Outcome struct {
	Transitioned bool
}

// Engine applies normalized events to their targets. It holds no state of
// its own: every decision is the store's conditional update, so concurrent
// deliveries for the same target serialize on the row.
type Engine struct {
	Streams   StreamWrites
	Donations DonationWrites
	Logger    logging.Logger
}

// Apply performs the transition an event implies. The target's in-memory
// status is advisory only; the store's WHERE clause makes the real call.
func (e *Engine) Apply(ctx context.Context, target Target, event Event) (Outcome, error) {
	switch event.Kind {
	case KindLiveStart, KindLiveEnd:
		if target.Stream == nil {
			return Outcome{}, fmt.Errorf("apply %s: no stream target", event.Kind)
		}
		transitioned, err := e.Streams.SetStreamLive(ctx, target.Stream.ID, event.Kind == KindLiveStart)
		if err != nil {
			return Outcome{}, fmt.Errorf("apply %s: %w", event.Kind, err)
		}
		e.logOutcome(event, "stream", target.Stream.ID, transitioned)
		return Outcome{Transitioned: transitioned}, nil

	case KindPaymentCaptured, KindPaymentFailed:
		if target.Donation == nil {
			return Outcome{}, fmt.Errorf("apply %s: no donation target", event.Kind)
		}
		status := models.DonationSuccess
		if event.Kind == KindPaymentFailed {
			status = models.DonationFailed
		}
		paymentID, _ := event.Key(KeyPayment)
		transitioned, err := e.Donations.MarkDonationOutcome(ctx, target.Donation.ID, status, paymentID)
		if err != nil {
			return Outcome{}, fmt.Errorf("apply %s: %w", event.Kind, err)
		}
		e.logOutcome(event, "donation", target.Donation.ID, transitioned)
		return Outcome{Transitioned: transitioned}, nil

	default:
		return Outcome{}, fmt.Errorf("apply: unknown event kind %q", event.Kind)
	}
}

func (e *Engine) logOutcome(event Event, entity, id string, transitioned bool) {
	if e.Logger == nil {
		return
	}
	e.Logger.WithFields(logging.Fields{
		"source":       event.Source,
		"kind":         event.Kind,
		"entity":       entity,
		"entity_id":    id,
		"transitioned": transitioned,
	}).Info("Reconciliation event applied")
}

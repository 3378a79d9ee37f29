package reconcile

import (
	"context"
	"errors"
	"fmt"

	"harborcast/internal/models"
	"harborcast/internal/store"
)

// ErrUnresolved is returned when no entity matches any of an event's
// correlation keys. Callers acknowledge the delivery and drop the event;
// an unresolvable event will never resolve on retry.
var ErrUnresolved = errors.New("reconcile: no target matches any correlation key")

// StreamLookups is the read surface the resolver needs for stream events.
type StreamLookups interface {
	StreamByHostID(ctx context.Context, hostID string) (models.Stream, error)
	StreamByIngressID(ctx context.Context, ingressID string) (models.Stream, error)
}

// DonationLookups is the read surface the resolver needs for payment events.
type DonationLookups interface {
	DonationByPaymentID(ctx context.Context, paymentID string) (models.Donation, error)
	DonationByOrderID(ctx context.Context, orderID string) (models.Donation, error)
}

// Target is the one entity an event resolved to. Exactly one field is set.
type Target struct {
	Stream   *models.Stream
	Donation *models.Donation
}

// Resolver maps an event's correlation keys to its target entity.
type Resolver struct {
	Streams   StreamLookups
	Donations DonationLookups
}

// Resolve finds the event's target, trying keys in precedence order: the
// key guaranteed present in normal operation first, then the fallback for
// payloads that omit it. A key that matches nothing moves on to the next;
// only exhausting every key yields ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, event Event) (Target, error) {
	if event.IsStreamEvent() {
		if hostID, ok := event.Key(KeyRoom); ok {
			stream, err := r.Streams.StreamByHostID(ctx, hostID)
			if err == nil {
				return Target{Stream: &stream}, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return Target{}, fmt.Errorf("resolve stream by host: %w", err)
			}
		}
		if ingressID, ok := event.Key(KeyIngress); ok {
			stream, err := r.Streams.StreamByIngressID(ctx, ingressID)
			if err == nil {
				return Target{Stream: &stream}, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return Target{}, fmt.Errorf("resolve stream by ingress: %w", err)
			}
		}
		return Target{}, ErrUnresolved
	}

	if paymentID, ok := event.Key(KeyPayment); ok {
		donation, err := r.Donations.DonationByPaymentID(ctx, paymentID)
		if err == nil {
			return Target{Donation: &donation}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Target{}, fmt.Errorf("resolve donation by payment: %w", err)
		}
	}
	if orderID, ok := event.Key(KeyOrder); ok {
		donation, err := r.Donations.DonationByOrderID(ctx, orderID)
		if err == nil {
			return Target{Donation: &donation}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Target{}, fmt.Errorf("resolve donation by order: %w", err)
		}
	}
	return Target{}, ErrUnresolved
}

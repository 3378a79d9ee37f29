// Package reconcile turns verified provider webhooks into idempotent state
// transitions on streams and donations. Provider payload shapes stop at the
// normalizer; everything downstream works on the internal Event type.
package reconcile

import (
	"time"

	"harborcast/internal/livekit"
	"harborcast/internal/razorpay"
)

// Source identifies which upstream produced an event.
type Source string

const (
	SourceIngress Source = "ingress"
	SourceGateway Source = "gateway"
)

// Kind is the normalized transition an event implies.
type Kind string

const (
	KindLiveStart       Kind = "live_start"
	KindLiveEnd         Kind = "live_end"
	KindPaymentCaptured Kind = "payment_captured"
	KindPaymentFailed   Kind = "payment_failed"
)

// KeyType names one correlation identifier carried by an event.
type KeyType string

const (
	KeyRoom    KeyType = "room"
	KeyIngress KeyType = "ingress"
	KeyOrder   KeyType = "order"
	KeyPayment KeyType = "payment"
)

// CorrelationKey is one (type, value) identifier extracted from a payload.
type CorrelationKey struct {
	Type  KeyType
	Value string
}

// Event is a normalized reconciliation event. It lives only for the
// duration of one delivery and is never persisted.
type Event struct {
	Source     Source
	Kind       Kind
	Keys       []CorrelationKey
	OccurredAt time.Time
}

// Key returns the value of the first key of the given type, if present.
func (e Event) Key(t KeyType) (string, bool) {
	for _, k := range e.Keys {
		if k.Type == t {
			return k.Value, true
		}
	}
	return "", false
}

// IsStreamEvent reports whether the event targets a Stream.
func (e Event) IsStreamEvent() bool {
	return e.Kind == KindLiveStart || e.Kind == KindLiveEnd
}

// NormalizeIngressEvent maps a provider webhook to an internal event.
// Liveness has deliberately redundant signals: the explicit ingress
// start/end pair, the host's own participant presence, and room teardown
// as the final safety net. Viewer participant events map to nothing.
// Returns false for event names this service does not act on.
func NormalizeIngressEvent(we *livekit.WebhookEvent) (Event, bool) {
	roomName := ""
	if we.Room != nil {
		roomName = we.Room.Name
	}
	hostPresence := we.Participant != nil && roomName != "" && we.Participant.Identity == roomName

	var kind Kind
	switch we.Event {
	case livekit.EventIngressStarted:
		kind = KindLiveStart
	case livekit.EventParticipantJoined:
		if !hostPresence {
			return Event{}, false
		}
		kind = KindLiveStart
	case livekit.EventIngressEnded, livekit.EventRoomFinished:
		kind = KindLiveEnd
	case livekit.EventParticipantLeft:
		if !hostPresence {
			return Event{}, false
		}
		kind = KindLiveEnd
	default:
		return Event{}, false
	}

	event := Event{
		Source:     SourceIngress,
		Kind:       kind,
		OccurredAt: time.Now(),
	}
	if we.CreatedAt > 0 {
		event.OccurredAt = time.Unix(we.CreatedAt, 0)
	}
	if roomName != "" {
		event.Keys = append(event.Keys, CorrelationKey{Type: KeyRoom, Value: roomName})
	}
	if we.IngressInfo != nil && we.IngressInfo.IngressID != "" {
		event.Keys = append(event.Keys, CorrelationKey{Type: KeyIngress, Value: we.IngressInfo.IngressID})
	}
	return event, true
}

// NormalizeGatewayEvent maps a payment gateway webhook to an internal
// event. Returns false for event names this service does not act on.
func NormalizeGatewayEvent(env *razorpay.WebhookEnvelope) (Event, bool) {
	var kind Kind
	switch env.Event {
	case razorpay.EventPaymentCaptured:
		kind = KindPaymentCaptured
	case razorpay.EventPaymentFailed:
		kind = KindPaymentFailed
	default:
		return Event{}, false
	}

	entity := env.Payload.Payment.Entity
	event := Event{
		Source:     SourceGateway,
		Kind:       kind,
		OccurredAt: time.Now(),
	}
	if entity.ID != "" {
		event.Keys = append(event.Keys, CorrelationKey{Type: KeyPayment, Value: entity.ID})
	}
	if entity.OrderID != "" {
		event.Keys = append(event.Keys, CorrelationKey{Type: KeyOrder, Value: entity.OrderID})
	}
	return event, true
}

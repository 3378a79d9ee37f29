package reconcile

import (
	"context"
	"errors"
	"testing"

	"harborcast/internal/models"
	"harborcast/internal/store"
)

type fakeStreamLookups struct {
	byHost    map[string]models.Stream
	byIngress map[string]models.Stream
	hostCalls int
}

func (f *fakeStreamLookups) StreamByHostID(_ context.Context, hostID string) (models.Stream, error) {
	f.hostCalls++
	if s, ok := f.byHost[hostID]; ok {
		return s, nil
	}
	return models.Stream{}, store.ErrNotFound
}

func (f *fakeStreamLookups) StreamByIngressID(_ context.Context, ingressID string) (models.Stream, error) {
	if s, ok := f.byIngress[ingressID]; ok {
		return s, nil
	}
	return models.Stream{}, store.ErrNotFound
}

type fakeDonationLookups struct {
	byPayment map[string]models.Donation
	byOrder   map[string]models.Donation
}

func (f *fakeDonationLookups) DonationByPaymentID(_ context.Context, paymentID string) (models.Donation, error) {
	if d, ok := f.byPayment[paymentID]; ok {
		return d, nil
	}
	return models.Donation{}, store.ErrNotFound
}

func (f *fakeDonationLookups) DonationByOrderID(_ context.Context, orderID string) (models.Donation, error) {
	if d, ok := f.byOrder[orderID]; ok {
		return d, nil
	}
	return models.Donation{}, store.ErrNotFound
}

func TestResolveStreamPrefersHostKey(t *testing.T) {
	streams := &fakeStreamLookups{
		byHost:    map[string]models.Stream{"host-1": {ID: "st-1", HostID: "host-1"}},
		byIngress: map[string]models.Stream{"in-1": {ID: "st-other"}},
	}
	r := &Resolver{Streams: streams}

	target, err := r.Resolve(context.Background(), Event{
		Kind: KindLiveStart,
		Keys: []CorrelationKey{{KeyRoom, "host-1"}, {KeyIngress, "in-1"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Stream == nil || target.Stream.ID != "st-1" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveStreamFallsBackToIngressKey(t *testing.T) {
	streams := &fakeStreamLookups{
		byHost:    map[string]models.Stream{},
		byIngress: map[string]models.Stream{"in-1": {ID: "st-1"}},
	}
	r := &Resolver{Streams: streams}

	// Payload carried only the ingress id.
	target, err := r.Resolve(context.Background(), Event{
		Kind: KindLiveEnd,
		Keys: []CorrelationKey{{KeyIngress, "in-1"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Stream == nil || target.Stream.ID != "st-1" {
		t.Fatalf("unexpected target: %+v", target)
	}
	if streams.hostCalls != 0 {
		t.Fatal("host lookup should be skipped when no room key is present")
	}
}

func TestResolveStreamUnresolved(t *testing.T) {
	r := &Resolver{Streams: &fakeStreamLookups{}}

	_, err := r.Resolve(context.Background(), Event{
		Kind: KindLiveStart,
		Keys: []CorrelationKey{{KeyRoom, "ghost"}, {KeyIngress, "in-ghost"}},
	})
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestResolveDonationPrefersPaymentKey(t *testing.T) {
	donations := &fakeDonationLookups{
		byPayment: map[string]models.Donation{"pay_1": {ID: "d-1"}},
		byOrder:   map[string]models.Donation{"order_1": {ID: "d-other"}},
	}
	r := &Resolver{Donations: donations}

	target, err := r.Resolve(context.Background(), Event{
		Kind: KindPaymentCaptured,
		Keys: []CorrelationKey{{KeyPayment, "pay_1"}, {KeyOrder, "order_1"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Donation == nil || target.Donation.ID != "d-1" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveDonationFallsBackToOrderKey(t *testing.T) {
	donations := &fakeDonationLookups{
		byPayment: map[string]models.Donation{},
		byOrder:   map[string]models.Donation{"order_1": {ID: "d-1"}},
	}
	r := &Resolver{Donations: donations}

	target, err := r.Resolve(context.Background(), Event{
		Kind: KindPaymentCaptured,
		Keys: []CorrelationKey{{KeyPayment, "pay_unknown"}, {KeyOrder, "order_1"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Donation == nil || target.Donation.ID != "d-1" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

// Package models holds the persisted entity types shared across the service.
package models

import "time"

// Donation status values. success and failed are terminal: once a donation
// reaches either, no later gateway signal may overwrite it.
const (
	DonationPending = "pending"
	DonationSuccess = "success"
	DonationFailed  = "failed"
)

// Stream is the per-host broadcast row. HostID doubles as the media room
// name on the ingress provider side.
type Stream struct {
	ID        string
	HostID    string
	Username  string
	IngressID string // empty until an ingress credential has been issued
	IsLive    bool
	ServerURL string
	StreamKey string // stored encrypted at rest
	UpdatedAt time.Time
}

// Donation is one payment attempt from a viewer to a streamer.
// Amount is in minor currency units.
type Donation struct {
	ID               string
	StreamerID       string
	StreamerUsername string
	DonorID          string
	Amount           int64
	Currency         string
	Status           string
	Message          string
	GatewayOrderID   string
	GatewayPaymentID string // empty until the gateway reports a capture attempt
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsTerminal reports whether a donation status accepts no further transitions.
func IsTerminal(status string) bool {
	return status == DonationSuccess || status == DonationFailed
}

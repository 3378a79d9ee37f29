// Package store owns all durable Stream and Donation state. Every status
// transition goes through a conditional UPDATE so the decision to apply it
// is atomic with respect to concurrent webhook deliveries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"harborcast/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store wraps the Postgres connection with entity-level operations.
type Store struct {
	db *sql.DB
}

// New creates a Store over an open database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const streamColumns = `
	SELECT s.id, s.host_id, u.username, COALESCE(s.ingress_id, ''),
	       s.is_live, s.server_url, s.stream_key, s.updated_at
	FROM streams s
	JOIN users u ON u.id = s.host_id
`

func (s *Store) scanStream(row *sql.Row) (models.Stream, error) {
	var stream models.Stream
	err := row.Scan(&stream.ID, &stream.HostID, &stream.Username, &stream.IngressID,
		&stream.IsLive, &stream.ServerURL, &stream.StreamKey, &stream.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Stream{}, ErrNotFound
	}
	if err != nil {
		return models.Stream{}, fmt.Errorf("scan stream: %w", err)
	}
	return stream, nil
}

// StreamByHostID looks up the stream owned by a host. The host id is also
// the media room name, so this is the primary correlation path for room
// scoped ingress events.
func (s *Store) StreamByHostID(ctx context.Context, hostID string) (models.Stream, error) {
	row := s.db.QueryRowContext(ctx, streamColumns+`WHERE s.host_id = $1`, hostID)
	return s.scanStream(row)
}

// StreamByIngressID looks up a stream by its provisioned ingress credential.
// Fallback correlation path for ingress events that omit the room name.
func (s *Store) StreamByIngressID(ctx context.Context, ingressID string) (models.Stream, error) {
	row := s.db.QueryRowContext(ctx, streamColumns+`WHERE s.ingress_id = $1`, ingressID)
	return s.scanStream(row)
}

// StreamByID looks up a stream by its own id.
func (s *Store) StreamByID(ctx context.Context, id string) (models.Stream, error) {
	row := s.db.QueryRowContext(ctx, streamColumns+`WHERE s.id = $1`, id)
	return s.scanStream(row)
}

// SetStreamLive flips the liveness flag. The WHERE clause makes the write
// conditional: a delivery that finds the flag already in the requested
// state affects zero rows and reports false, which callers treat as NoOp.
func (s *Store) SetStreamLive(ctx context.Context, streamID string, live bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE streams
		SET is_live = $2, updated_at = NOW()
		WHERE id = $1 AND is_live <> $2
	`, streamID, live)
	if err != nil {
		return false, fmt.Errorf("set stream live: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set stream live rows: %w", err)
	}
	return affected > 0, nil
}

// ReplaceStreamConnection overwrites the ingress credential wholesale.
// This is the only write path for ingress_id/server_url/stream_key and it
// deliberately never touches is_live.
func (s *Store) ReplaceStreamConnection(ctx context.Context, hostID, ingressID, serverURL, streamKey string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE streams
		SET ingress_id = $2, server_url = $3, stream_key = $4, updated_at = NOW()
		WHERE host_id = $1
	`, hostID, ingressID, serverURL, streamKey)
	if err != nil {
		return fmt.Errorf("replace stream connection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace stream connection rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const donationColumns = `
	SELECT d.id, d.streamer_id, u.username, d.donor_id, d.amount, d.currency,
	       d.status, COALESCE(d.message, ''), d.gateway_order_id,
	       COALESCE(d.gateway_payment_id, ''), d.created_at, d.updated_at
	FROM donations d
	JOIN users u ON u.id = d.streamer_id
`

func (s *Store) scanDonation(row *sql.Row) (models.Donation, error) {
	var d models.Donation
	err := row.Scan(&d.ID, &d.StreamerID, &d.StreamerUsername, &d.DonorID, &d.Amount,
		&d.Currency, &d.Status, &d.Message, &d.GatewayOrderID, &d.GatewayPaymentID,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Donation{}, ErrNotFound
	}
	if err != nil {
		return models.Donation{}, fmt.Errorf("scan donation: %w", err)
	}
	return d, nil
}

// CreateDonation inserts a new pending donation at order-creation time.
func (s *Store) CreateDonation(ctx context.Context, d models.Donation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO donations (id, streamer_id, donor_id, amount, currency, status, message, gateway_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.StreamerID, d.DonorID, d.Amount, d.Currency, models.DonationPending, nullable(d.Message), d.GatewayOrderID)
	if err != nil {
		return fmt.Errorf("create donation: %w", err)
	}
	return nil
}

// DonationByOrderID looks up a donation by the gateway order identifier.
func (s *Store) DonationByOrderID(ctx context.Context, orderID string) (models.Donation, error) {
	row := s.db.QueryRowContext(ctx, donationColumns+`WHERE d.gateway_order_id = $1`, orderID)
	return s.scanDonation(row)
}

// DonationByPaymentID looks up a donation by the gateway payment identifier.
// The payment id index is non-unique; the newest attempt wins.
func (s *Store) DonationByPaymentID(ctx context.Context, paymentID string) (models.Donation, error) {
	row := s.db.QueryRowContext(ctx, donationColumns+`WHERE d.gateway_payment_id = $1 ORDER BY d.created_at DESC LIMIT 1`, paymentID)
	return s.scanDonation(row)
}

// MarkDonationOutcome moves a donation from pending to a terminal status.
// The status = 'pending' guard is what makes terminal states monotonic:
// whichever concurrent delivery lands first wins, every later one affects
// zero rows and reports false.
func (s *Store) MarkDonationOutcome(ctx context.Context, donationID, status, gatewayPaymentID string) (bool, error) {
	if !models.IsTerminal(status) {
		return false, fmt.Errorf("mark donation outcome: %q is not a terminal status", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE donations
		SET status = $2,
		    gateway_payment_id = COALESCE(NULLIF($3, ''), gateway_payment_id),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, donationID, status, gatewayPaymentID)
	if err != nil {
		return false, fmt.Errorf("mark donation outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark donation outcome rows: %w", err)
	}
	return affected > 0, nil
}

// UserByID returns the id and username of a user, or ErrNotFound.
func (s *Store) UserByID(ctx context.Context, id string) (string, string, error) {
	var userID, username string
	err := s.db.QueryRowContext(ctx, `SELECT id, username FROM users WHERE id = $1`, id).Scan(&userID, &username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("user by id: %w", err)
	}
	return userID, username, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

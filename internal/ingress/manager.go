// Package ingress owns the credential lifecycle: tearing down a host's
// stale room/ingress pairing and issuing a fresh one. It is the only
// writer of a stream's connection fields and it never touches liveness.
package ingress

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"harborcast/internal/livekit"
	"harborcast/pkg/crypto"
	"harborcast/pkg/logging"
)

// Provider is the room and ingress CRUD surface the manager needs.
type Provider interface {
	ListRooms(ctx context.Context, names []string) ([]livekit.Room, error)
	CreateRoom(ctx context.Context, name string) (livekit.Room, error)
	DeleteRoom(ctx context.Context, name string) error
	ListIngress(ctx context.Context, roomName string) ([]livekit.Ingress, error)
	CreateIngress(ctx context.Context, in livekit.CreateIngressRequest) (livekit.Ingress, error)
	DeleteIngress(ctx context.Context, ingressID string) error
}

// ConnectionStore persists the reissued credential onto the stream row.
type ConnectionStore interface {
	ReplaceStreamConnection(ctx context.Context, hostID, ingressID, serverURL, streamKey string) error
}

// Host identifies the broadcaster a credential is being issued for.
// ID doubles as the room name on the provider side.
type Host struct {
	ID       string
	Username string
}

// Credentials is what the broadcaster pastes into their streaming software.
type Credentials struct {
	IngressID string
	ServerURL string
	StreamKey string
}

// Manager reissues ingress credentials, guaranteeing at most one live
// credential per host.
type Manager struct {
	Provider  Provider
	Store     ConnectionStore
	Encryptor *crypto.FieldEncryptor
	Logger    logging.Logger
}

// Reissue tears down the host's existing room and ingress state, then
// provisions and persists a fresh credential. Room deletion failures are
// fatal: issuing a new credential while the old room may still be
// receiving the old stream would leave two valid ingest paths. Ingress
// deletion is best-effort since an orphaned credential without a room is
// inert.
func (m *Manager) Reissue(ctx context.Context, host Host) (Credentials, error) {
	rooms, err := m.Provider.ListRooms(ctx, []string{host.ID})
	if err != nil {
		return Credentials{}, fmt.Errorf("list rooms: %w", err)
	}
	for _, room := range rooms {
		if err := m.Provider.DeleteRoom(ctx, room.Name); err != nil {
			return Credentials{}, fmt.Errorf("delete room %s: %w", room.Name, err)
		}
	}

	ingresses, err := m.Provider.ListIngress(ctx, host.ID)
	if err != nil {
		m.warn(host, "list ingresses", err)
	} else if len(ingresses) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, existing := range ingresses {
			existing := existing
			g.Go(func() error {
				if err := m.Provider.DeleteIngress(gctx, existing.IngressID); err != nil {
					m.warn(host, "delete ingress "+existing.IngressID, err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if _, err := m.Provider.CreateRoom(ctx, host.ID); err != nil && !livekit.IsAlreadyExists(err) {
		return Credentials{}, fmt.Errorf("create room: %w", err)
	}

	created, err := m.Provider.CreateIngress(ctx, livekit.CreateIngressRequest{
		Name:                host.Username + "-ingress",
		RoomName:            host.ID,
		ParticipantIdentity: host.ID,
		ParticipantName:     host.Username,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("create ingress: %w", err)
	}

	creds := Credentials{
		IngressID: created.IngressID,
		ServerURL: livekit.NormalizeServerURL(created.URL),
		StreamKey: created.StreamKey,
	}

	storedKey := creds.StreamKey
	if m.Encryptor != nil {
		storedKey, err = m.Encryptor.Encrypt(creds.StreamKey)
		if err != nil {
			return Credentials{}, fmt.Errorf("encrypt stream key: %w", err)
		}
	}

	if err := m.Store.ReplaceStreamConnection(ctx, host.ID, creds.IngressID, creds.ServerURL, storedKey); err != nil {
		return Credentials{}, fmt.Errorf("persist connection: %w", err)
	}

	if m.Logger != nil {
		m.Logger.WithFields(logging.Fields{
			"host_id":    host.ID,
			"ingress_id": creds.IngressID,
		}).Info("Ingress credential reissued")
	}
	return creds, nil
}

func (m *Manager) warn(host Host, op string, err error) {
	if m.Logger == nil {
		return
	}
	m.Logger.WithFields(logging.Fields{
		"host_id": host.ID,
		"error":   err,
	}).Warn("Ingress teardown: " + op + " failed")
}

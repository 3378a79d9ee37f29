package ingress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"harborcast/internal/livekit"
	"harborcast/pkg/crypto"
)

type fakeProvider struct {
	mu sync.Mutex

	rooms     []livekit.Room
	ingresses []livekit.Ingress

	deletedRooms     []string
	deletedIngresses []string
	createdRooms     []string

	deleteRoomErr    error
	createRoomErr    error
	createIngressErr error

	issued livekit.Ingress
}

func (f *fakeProvider) ListRooms(_ context.Context, _ []string) ([]livekit.Room, error) {
	return f.rooms, nil
}

func (f *fakeProvider) CreateRoom(_ context.Context, name string) (livekit.Room, error) {
	f.createdRooms = append(f.createdRooms, name)
	if f.createRoomErr != nil {
		return livekit.Room{}, f.createRoomErr
	}
	return livekit.Room{Name: name}, nil
}

func (f *fakeProvider) DeleteRoom(_ context.Context, name string) error {
	if f.deleteRoomErr != nil {
		return f.deleteRoomErr
	}
	f.deletedRooms = append(f.deletedRooms, name)
	return nil
}

func (f *fakeProvider) ListIngress(_ context.Context, _ string) ([]livekit.Ingress, error) {
	return f.ingresses, nil
}

func (f *fakeProvider) CreateIngress(_ context.Context, in livekit.CreateIngressRequest) (livekit.Ingress, error) {
	if f.createIngressErr != nil {
		return livekit.Ingress{}, f.createIngressErr
	}
	return f.issued, nil
}

func (f *fakeProvider) DeleteIngress(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIngresses = append(f.deletedIngresses, id)
	return nil
}

type fakeConnStore struct {
	hostID    string
	ingressID string
	serverURL string
	streamKey string
	err       error
}

func (f *fakeConnStore) ReplaceStreamConnection(_ context.Context, hostID, ingressID, serverURL, streamKey string) error {
	if f.err != nil {
		return f.err
	}
	f.hostID, f.ingressID, f.serverURL, f.streamKey = hostID, ingressID, serverURL, streamKey
	return nil
}

func testEncryptor(t *testing.T) *crypto.FieldEncryptor {
	t.Helper()
	enc, err := crypto.DeriveFieldEncryptor([]byte("unit-test-master-secret"), "stream-keys")
	if err != nil {
		t.Fatalf("derive encryptor: %v", err)
	}
	return enc
}

func TestReissueTearsDownAndProvisions(t *testing.T) {
	provider := &fakeProvider{
		rooms:     []livekit.Room{{Name: "host-1"}},
		ingresses: []livekit.Ingress{{IngressID: "in-old-1"}, {IngressID: "in-old-2"}},
		issued: livekit.Ingress{
			IngressID: "in-new",
			URL:       "rtmps://edge.example.com/x",
			StreamKey: "sk-new",
		},
	}
	connStore := &fakeConnStore{}
	enc := testEncryptor(t)
	m := &Manager{Provider: provider, Store: connStore, Encryptor: enc}

	creds, err := m.Reissue(context.Background(), Host{ID: "host-1", Username: "alice"})
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}

	if creds.IngressID != "in-new" || creds.StreamKey != "sk-new" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	if creds.ServerURL != "rtmp://edge.example.com/live" {
		t.Fatalf("server url not normalized: %s", creds.ServerURL)
	}
	if len(provider.deletedRooms) != 1 || provider.deletedRooms[0] != "host-1" {
		t.Fatalf("stale room not deleted: %v", provider.deletedRooms)
	}
	if len(provider.deletedIngresses) != 2 {
		t.Fatalf("stale ingresses not deleted: %v", provider.deletedIngresses)
	}
	if len(provider.createdRooms) != 1 || provider.createdRooms[0] != "host-1" {
		t.Fatalf("room not recreated: %v", provider.createdRooms)
	}

	if connStore.hostID != "host-1" || connStore.ingressID != "in-new" {
		t.Fatalf("connection not persisted: %+v", connStore)
	}
	if !crypto.IsEncrypted(connStore.streamKey) {
		t.Fatal("stream key must be stored encrypted")
	}
	plain, err := enc.Decrypt(connStore.streamKey)
	if err != nil || plain != "sk-new" {
		t.Fatalf("stored key does not round-trip: %q %v", plain, err)
	}
}

func TestReissueRoomDeletionFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{
		rooms:         []livekit.Room{{Name: "host-1"}},
		deleteRoomErr: errors.New("provider unavailable"),
	}
	m := &Manager{Provider: provider, Store: &fakeConnStore{}}

	if _, err := m.Reissue(context.Background(), Host{ID: "host-1", Username: "alice"}); err == nil {
		t.Fatal("expected fatal error when a stale room cannot be deleted")
	}
	if len(provider.createdRooms) != 0 {
		t.Fatal("no new room may be created after a failed teardown")
	}
}

func TestReissueCreateRoomAlreadyExistsIsSwallowed(t *testing.T) {
	// No rooms listed but creation still conflicts: treat as idempotent.
	provider := &fakeProvider{
		createRoomErr: func() error {
			return alreadyExistsErr(t)
		}(),
		issued: livekit.Ingress{IngressID: "in-new", URL: "rtmp://e/x", StreamKey: "sk"},
	}
	connStore := &fakeConnStore{}
	m := &Manager{Provider: provider, Store: connStore}

	creds, err := m.Reissue(context.Background(), Host{ID: "host-1", Username: "alice"})
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if creds.IngressID != "in-new" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestReissueCreateIngressFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{createIngressErr: errors.New("quota exceeded")}
	connStore := &fakeConnStore{}
	m := &Manager{Provider: provider, Store: connStore}

	if _, err := m.Reissue(context.Background(), Host{ID: "host-1", Username: "alice"}); err == nil {
		t.Fatal("expected error when ingress creation fails")
	}
	if connStore.ingressID != "" {
		t.Fatal("nothing may be persisted after a failed provisioning")
	}
}

func TestReissuePersistFailureSurfaces(t *testing.T) {
	provider := &fakeProvider{
		issued: livekit.Ingress{IngressID: "in-new", URL: "rtmp://e/x", StreamKey: "sk"},
	}
	m := &Manager{Provider: provider, Store: &fakeConnStore{err: errors.New("db down")}}

	if _, err := m.Reissue(context.Background(), Host{ID: "host-1", Username: "alice"}); err == nil {
		t.Fatal("expected error when the connection cannot be persisted")
	}
}

// alreadyExistsErr produces an error the manager classifies as the
// provider's duplicate-room rejection.
func alreadyExistsErr(t *testing.T) error {
	t.Helper()
	return errors.New("livekit: room already exists")
}

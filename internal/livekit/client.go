// Package livekit is a narrow client for the media ingress provider:
// room and ingress CRUD plus webhook verification. Only the parts of the
// provider API this service actually calls are modelled.
package livekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"harborcast/pkg/clients"
	"harborcast/pkg/logging"
)

const accessTokenTTL = 10 * time.Minute

// Room is a media room on the provider.
type Room struct {
	SID  string `json:"sid"`
	Name string `json:"name"`
}

// Ingress is a provisioned ingest credential bound to a room.
type Ingress struct {
	IngressID string `json:"ingress_id"`
	Name      string `json:"name"`
	RoomName  string `json:"room_name"`
	URL       string `json:"url"`
	StreamKey string `json:"stream_key"`
}

// CreateIngressRequest describes a new RTMP ingress credential.
type CreateIngressRequest struct {
	Name                string `json:"name"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity"`
	ParticipantName     string `json:"participant_name"`
	InputType           int    `json:"input_type"`
}

// Config represents the configuration for the provider client.
type Config struct {
	BaseURL              string
	APIKey               string
	APISecret            string
	Timeout              time.Duration
	Logger               logging.Logger
	RetryConfig          *clients.RetryConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// Client talks to the provider's Twirp-style JSON API.
type Client struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	httpClient  *http.Client
	logger      logging.Logger
	retryConfig clients.RetryConfig
}

// NewClient creates a new provider API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	retryConfig := clients.DefaultRetryConfig()
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}
	if cfg.CircuitBreakerConfig != nil {
		retryConfig.CircuitBreaker = clients.NewCircuitBreaker(*cfg.CircuitBreakerConfig)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: clients.DefaultTransport(),
		},
		logger:      cfg.Logger,
		retryConfig: retryConfig,
	}
}

// twirpError is the provider's structured error body.
type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *twirpError) Error() string {
	return fmt.Sprintf("livekit: %s: %s", e.Code, e.Msg)
}

// IsAlreadyExists reports whether err is the provider's duplicate-resource
// rejection. Room creation treats it as success.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var te *twirpError
	if errors.As(err, &te) {
		return te.Code == "already_exists"
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// accessToken builds a short-lived HS256 API token. The provider expects
// the API key as issuer and grants in a "video" claim.
func (c *Client) accessToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": c.apiKey,
		"nbf": now.Unix(),
		"exp": now.Add(accessTokenTTL).Unix(),
		"video": map[string]any{
			"roomCreate":   true,
			"roomList":     true,
			"roomAdmin":    true,
			"ingressAdmin": true,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.apiSecret))
}

func (c *Client) call(ctx context.Context, service, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s.%s request: %w", service, method, err)
	}

	url := fmt.Sprintf("%s/twirp/livekit.%s/%s", c.baseURL, service, method)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s.%s request: %w", service, method, err)
	}

	token, err := c.accessToken()
	if err != nil {
		return fmt.Errorf("sign access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := clients.DoWithRetry(ctx, c.httpClient, req, c.retryConfig)
	if err != nil {
		return fmt.Errorf("call %s.%s: %w", service, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		te := &twirpError{}
		if jsonErr := json.Unmarshal(raw, te); jsonErr == nil && te.Code != "" {
			return fmt.Errorf("%s.%s failed: %w", service, method, te)
		}
		return fmt.Errorf("%s.%s failed (%d): %s", service, method, resp.StatusCode, raw)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s.%s response: %w", service, method, err)
	}
	return nil
}

// ListRooms lists rooms, optionally filtered to the given names.
func (c *Client) ListRooms(ctx context.Context, names []string) ([]Room, error) {
	var resp struct {
		Rooms []Room `json:"rooms"`
	}
	req := map[string]any{"names": names}
	if err := c.call(ctx, "RoomService", "ListRooms", req, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// CreateRoom creates a room with the given name.
func (c *Client) CreateRoom(ctx context.Context, name string) (Room, error) {
	var room Room
	req := map[string]any{"name": name}
	if err := c.call(ctx, "RoomService", "CreateRoom", req, &room); err != nil {
		return Room{}, err
	}
	return room, nil
}

// DeleteRoom deletes a room by name.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	req := map[string]any{"room": name}
	return c.call(ctx, "RoomService", "DeleteRoom", req, nil)
}

// ListIngress lists ingress credentials bound to a room.
func (c *Client) ListIngress(ctx context.Context, roomName string) ([]Ingress, error) {
	var resp struct {
		Items []Ingress `json:"items"`
	}
	req := map[string]any{"room_name": roomName}
	if err := c.call(ctx, "Ingress", "ListIngress", req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// CreateIngress requests a new RTMP ingress credential.
func (c *Client) CreateIngress(ctx context.Context, in CreateIngressRequest) (Ingress, error) {
	var ingress Ingress
	if err := c.call(ctx, "Ingress", "CreateIngress", in, &ingress); err != nil {
		return Ingress{}, err
	}
	return ingress, nil
}

// DeleteIngress deletes an ingress credential by id.
func (c *Client) DeleteIngress(ctx context.Context, ingressID string) error {
	req := map[string]any{"ingress_id": ingressID}
	return c.call(ctx, "Ingress", "DeleteIngress", req, nil)
}

// NormalizeServerURL rewrites the provider's returned ingest URL to the
// scheme and path broadcaster software expects: plain rtmp and a /live
// mount instead of the provider's /x suffix.
func NormalizeServerURL(url string) string {
	url = strings.Replace(url, "rtmps://", "rtmp://", 1)
	if strings.HasSuffix(url, "/x") {
		url = strings.TrimSuffix(url, "/x") + "/live"
	}
	return url
}

package livekit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ViewerToken issues a room-scoped join token for a watch-only
// participant: subscribe but never publish.
func ViewerToken(apiKey, apiSecret, room, identity, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  apiKey,
		"sub":  identity,
		"name": name,
		"nbf":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"video": map[string]any{
			"room":         room,
			"roomJoin":     true,
			"canPublish":   false,
			"canSubscribe": true,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(apiSecret))
}

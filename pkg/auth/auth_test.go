package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	secret := []byte("unit-test-secret")
	token, err := GenerateJWT("user-1", "alice", 15*time.Minute, secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ValidateJWT(token, secret)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT("user-1", "alice", 15*time.Minute, []byte("right"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ValidateJWT(token, []byte("wrong")); err != ErrInvalidJWT {
		t.Fatalf("expected ErrInvalidJWT, got %v", err)
	}
}

func TestValidateJWTExpired(t *testing.T) {
	token, err := GenerateJWT("user-1", "alice", -time.Minute, []byte("secret"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ValidateJWT(token, []byte("secret")); err != ErrExpiredJWT {
		t.Fatalf("expected ErrExpiredJWT, got %v", err)
	}
}

func TestJWTAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("unit-test-secret")

	r := gin.New()
	r.Use(JWTAuthMiddleware(secret))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(200, gin.H{"user_id": c.GetString("user_id")})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", w.Code)
	}

	token, _ := GenerateJWT("user-1", "alice", time.Minute, secret)
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", w.Code)
	}
}

package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	fe, err := DeriveFieldEncryptor([]byte("master-secret"), "stream-keys")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	stored, err := fe.Encrypt("sk_live_abc123")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.HasPrefix(stored, "enc:v1:") {
		t.Fatalf("expected enc:v1: prefix, got %q", stored)
	}
	if !IsEncrypted(stored) {
		t.Fatal("IsEncrypted should report true for encrypted value")
	}

	plain, err := fe.Decrypt(stored)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "sk_live_abc123" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestDecryptPlaintextPassthrough(t *testing.T) {
	fe, err := DeriveFieldEncryptor([]byte("master-secret"), "stream-keys")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	plain, err := fe.Decrypt("legacy-plaintext-key")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "legacy-plaintext-key" {
		t.Fatalf("expected passthrough, got %q", plain)
	}
}

func TestDistinctPurposesProduceDistinctKeys(t *testing.T) {
	a, _ := DeriveFieldEncryptor([]byte("master-secret"), "stream-keys")
	b, _ := DeriveFieldEncryptor([]byte("master-secret"), "other")

	stored, err := a.Encrypt("value")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := b.Decrypt(stored); err == nil {
		t.Fatal("expected decryption under a different purpose to fail")
	}
}

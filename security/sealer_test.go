package security

import (
	"bytes"
	"strings"
	"testing"
)

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer([]byte("local-app-key"))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	sealed, err := sealer.Seal([]byte(`{"secret":"abc123"}`))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(string(sealed), "abc123") {
		t.Fatalf("expected opaque sealed payload, got %q", sealed)
	}
	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != `{"secret":"abc123"}` {
		t.Fatalf("unexpected plaintext %q", opened)
	}
}

func TestSealer_NonceIsRandom(t *testing.T) {
	sealer, _ := NewSealer(bytes.Repeat([]byte("k"), 32))
	first, _ := sealer.Seal([]byte("token"))
	second, _ := sealer.Seal([]byte("token"))
	if bytes.Equal(first, second) {
		t.Fatalf("expected distinct sealed payloads")
	}
}

func TestSealer_RejectsWrongKeyAndTampering(t *testing.T) {
	sealer, _ := NewSealer([]byte("key-one"))
	other, _ := NewSealer([]byte("key-two"))
	sealed, _ := sealer.Seal([]byte("token"))

	if _, err := other.Open(sealed); err == nil {
		t.Fatalf("expected wrong key to fail")
	}
	if _, err := sealer.Open([]byte("plain-text")); err == nil {
		t.Fatalf("expected unsealed payload error")
	}
	if _, err := sealer.Open([]byte(SealedPrefix + "AAAA")); err == nil {
		t.Fatalf("expected truncated payload error")
	}
}

func TestNewSealer_RequiresKey(t *testing.T) {
	if _, err := NewSealer([]byte("   ")); err == nil {
		t.Fatalf("expected key error")
	}
}

package social

import (
	"strings"
	"testing"
)

func TestState_RoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	state, err := signState(secret, ProviderGoogle)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	got, err := verifyState(secret, state)
	if err != nil {
		t.Fatalf("verifying: %v", err)
	}
	if got != ProviderGoogle {
		t.Errorf("expected %q, got %q", ProviderGoogle, got)
	}
}

func TestState_RejectsWrongSecret(t *testing.T) {
	state, err := signState([]byte("secret-a"), ProviderGoogle)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := verifyState([]byte("secret-b"), state); err == nil {
		t.Error("a state signed with another secret must not verify")
	}
}

func TestState_RejectsTampering(t *testing.T) {
	secret := []byte("test-secret")

	state, err := signState(secret, ProviderGoogle)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	tampered := strings.Replace(state, ".", ".x", 1)
	if _, err := verifyState(secret, tampered); err == nil {
		t.Error("a tampered state must not verify")
	}
}

func TestState_RejectsUnknownProvider(t *testing.T) {
	secret := []byte("test-secret")

	state, err := signState(secret, "myspace")
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := verifyState(secret, state); err == nil {
		t.Error("a state naming an unregistered provider must not verify")
	}
}

func TestState_RejectsGarbage(t *testing.T) {
	if _, err := verifyState([]byte("test-secret"), "not-a-jwt"); err == nil {
		t.Error("garbage input must not verify")
	}
}

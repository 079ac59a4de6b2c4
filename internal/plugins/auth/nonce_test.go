package auth

import "testing"

func TestNonceIssueVerify(t *testing.T) {
	n := NewNonceService("test-secret")

	token := n.Issue(ActionLogin, "10.0.0.1")
	if token == "" {
		t.Fatal("expected a non-empty token")
	}
	if len(token) != 20 {
		t.Errorf("expected a 20-character hex token, got %d characters", len(token))
	}

	if !n.Verify(token, ActionLogin, "10.0.0.1") {
		t.Error("expected a freshly issued token to verify")
	}
}

func TestNonceRejectsWrongAction(t *testing.T) {
	n := NewNonceService("test-secret")

	token := n.Issue(ActionLogin, "10.0.0.1")
	if n.Verify(token, ActionRegister, "10.0.0.1") {
		t.Error("a login token must not verify for the register action")
	}
}

func TestNonceRejectsWrongBinder(t *testing.T) {
	n := NewNonceService("test-secret")

	token := n.Issue(ActionLogin, "10.0.0.1")
	if n.Verify(token, ActionLogin, "10.0.0.2") {
		t.Error("a token must not verify for a different client binder")
	}
}

func TestNonceRejectsEmptyToken(t *testing.T) {
	n := NewNonceService("test-secret")

	if n.Verify("", ActionLogin, "10.0.0.1") {
		t.Error("an empty token must never verify")
	}
}

func TestNonceRejectsDifferentSecret(t *testing.T) {
	token := NewNonceService("secret-a").Issue(ActionLogin, "10.0.0.1")

	if NewNonceService("secret-b").Verify(token, ActionLogin, "10.0.0.1") {
		t.Error("a token minted with another secret must not verify")
	}
}

package options

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/solhem/memberpages/internal/apperror"
)

// mockRepo implements Repository for testing.
type mockRepo struct {
	getFn func(ctx context.Context, key string) (string, error)
	setFn func(ctx context.Context, key, value string) error

	// Capture fields for assertions.
	lastSetValue string
}

func (m *mockRepo) Get(ctx context.Context, key string) (string, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return "", apperror.NewNotFound("option not found")
}

func (m *mockRepo) Set(ctx context.Context, key, value string) error {
	m.lastSetValue = value
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func TestGet_NoPersistedRecordYieldsDefaults(t *testing.T) {
	svc := NewService(&mockRepo{})

	opts, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defaults := Defaults()
	if opts.Enabled != defaults.Enabled {
		t.Errorf("expected default enabled=%v", defaults.Enabled)
	}
	if opts.Dashboard.PerPage != defaults.Dashboard.PerPage {
		t.Errorf("expected default per_page=%d, got %d", defaults.Dashboard.PerPage, opts.Dashboard.PerPage)
	}
	if len(opts.BlockedRoles) != len(defaults.BlockedRoles) {
		t.Errorf("expected default blocked roles, got %v", opts.BlockedRoles)
	}
}

func TestGet_PersistedOverridesDefaults(t *testing.T) {
	repo := &mockRepo{
		getFn: func(ctx context.Context, key string) (string, error) {
			return `{"registration_open": true, "rate_limit": {"max_attempts": 10}}`, nil
		},
	}
	svc := NewService(repo)

	opts, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !opts.RegistrationOpen {
		t.Error("expected persisted registration_open to win")
	}
	if opts.RateLimit.MaxAttempts != 10 {
		t.Errorf("expected nested override max_attempts=10, got %d", opts.RateLimit.MaxAttempts)
	}
	// Sibling keys inside the nested map keep their defaults.
	if opts.RateLimit.Enabled != Defaults().RateLimit.Enabled {
		t.Error("expected untouched sibling key to keep its default")
	}
}

func TestGet_CorruptRecordDegradesToDefaults(t *testing.T) {
	repo := &mockRepo{
		getFn: func(ctx context.Context, key string) (string, error) {
			return `{{{not json`, nil
		},
	}
	svc := NewService(repo)

	opts, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("expected corrupt blob to degrade, got error: %v", err)
	}
	if opts.Dashboard.PerPage != Defaults().Dashboard.PerPage {
		t.Error("expected defaults after a corrupt record")
	}
}

func TestGet_SlicesReplaceWholesale(t *testing.T) {
	repo := &mockRepo{
		getFn: func(ctx context.Context, key string) (string, error) {
			return `{"blocked_roles": ["customer"]}`, nil
		},
	}
	svc := NewService(repo)

	opts, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts.BlockedRoles) != 1 || opts.BlockedRoles[0] != "customer" {
		t.Errorf("expected persisted slice to replace the default, got %v", opts.BlockedRoles)
	}
}

func TestSet_MergesPartialOverCurrent(t *testing.T) {
	repo := &mockRepo{
		getFn: func(ctx context.Context, key string) (string, error) {
			return `{"captcha": {"provider": "turnstile", "site_key": "sk"}}`, nil
		},
	}
	svc := NewService(repo)

	err := svc.Set(context.Background(), map[string]any{
		"captcha": map[string]any{"secret_key": "very-secret"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var persisted map[string]any
	if err := json.Unmarshal([]byte(repo.lastSetValue), &persisted); err != nil {
		t.Fatalf("persisted value is not JSON: %v", err)
	}
	captcha, _ := persisted["captcha"].(map[string]any)
	if captcha["provider"] != "turnstile" {
		t.Error("expected previously persisted provider to survive the partial write")
	}
	if captcha["secret_key"] != "very-secret" {
		t.Error("expected the partial's secret_key to be merged in")
	}
}

func TestSetPageID_TouchesOnlyTheMapping(t *testing.T) {
	repo := &mockRepo{
		getFn: func(ctx context.Context, key string) (string, error) {
			return `{"page_ids": {"login": 7}}`, nil
		},
	}
	svc := NewService(repo)

	if err := svc.SetPageID(context.Background(), "register", 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var persisted struct {
		PageIDs map[string]int64 `json:"page_ids"`
	}
	if err := json.Unmarshal([]byte(repo.lastSetValue), &persisted); err != nil {
		t.Fatalf("persisted value is not JSON: %v", err)
	}
	if persisted.PageIDs["login"] != 7 {
		t.Errorf("expected the existing login mapping to survive, got %v", persisted.PageIDs)
	}
	if persisted.PageIDs["register"] != 9 {
		t.Errorf("expected the new register mapping, got %v", persisted.PageIDs)
	}
}

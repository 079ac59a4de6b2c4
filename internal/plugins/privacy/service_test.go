package privacy

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/options"
)

// --- Mocks ---

type stubOptions struct {
	opts options.Options
}

func (s *stubOptions) Get(ctx context.Context) (options.Options, error) { return s.opts, nil }
func (s *stubOptions) Set(ctx context.Context, partial map[string]any) error {
	return nil
}
func (s *stubOptions) SetPageID(ctx context.Context, key string, id int64) error {
	return nil
}

type mockRequestRepo struct {
	createFn         func(ctx context.Context, req *Request) error
	findOpenByUserFn func(ctx context.Context, userID int64, reqType string) (*Request, error)
	listByUserFn     func(ctx context.Context, userID int64) ([]Request, error)
}

func (m *mockRequestRepo) Create(ctx context.Context, req *Request) error {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	req.ID = 1
	return nil
}

func (m *mockRequestRepo) FindOpenByUser(ctx context.Context, userID int64, reqType string) (*Request, error) {
	if m.findOpenByUserFn != nil {
		return m.findOpenByUserFn(ctx, userID, reqType)
	}
	return nil, apperror.NewNotFound("no open request")
}

func (m *mockRequestRepo) ListByUser(ctx context.Context, userID int64) ([]Request, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func assertAppError(t *testing.T, err error, code int) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected an AppError, got %T: %v", err, err)
	}
	if appErr.Code != code {
		t.Fatalf("expected code %d, got %d (%v)", code, appErr.Code, appErr)
	}
}

func privacyOptions(export, erase bool) options.Options {
	opts := options.Defaults()
	opts.Privacy = options.PrivacyOptions{AllowExport: export, AllowErase: erase}
	return opts
}

func session() *auth.Session {
	return &auth.Session{UserID: 7, Username: "jane", Email: "jane@example.com"}
}

// --- Tests ---

func TestSubmit_Export(t *testing.T) {
	var created *Request
	repo := &mockRequestRepo{
		createFn: func(ctx context.Context, req *Request) error {
			req.ID = 3
			created = req
			return nil
		},
	}
	svc := NewService(repo, &stubOptions{opts: privacyOptions(true, true)})

	req, err := svc.Submit(context.Background(), session(), TypeExport)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.ID != 3 {
		t.Errorf("unexpected request %+v", req)
	}
	if created.UserID != 7 || created.Email != "jane@example.com" {
		t.Errorf("expected the request filed for the session's member, got %+v", created)
	}
	if created.Status != StatusPending {
		t.Errorf("new requests start pending, got %q", created.Status)
	}
	if created.Token == "" {
		t.Error("expected a confirmation token")
	}
}

func TestSubmit_ExportDisabled(t *testing.T) {
	svc := NewService(&mockRequestRepo{}, &stubOptions{opts: privacyOptions(false, true)})

	_, err := svc.Submit(context.Background(), session(), TypeExport)
	assertAppError(t, err, http.StatusForbidden)
}

func TestSubmit_EraseDisabled(t *testing.T) {
	svc := NewService(&mockRequestRepo{}, &stubOptions{opts: privacyOptions(true, false)})

	_, err := svc.Submit(context.Background(), session(), TypeErase)
	assertAppError(t, err, http.StatusForbidden)
}

func TestSubmit_UnknownType(t *testing.T) {
	svc := NewService(&mockRequestRepo{}, &stubOptions{opts: privacyOptions(true, true)})

	_, err := svc.Submit(context.Background(), session(), "subscribe")
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestSubmit_DuplicateOpenRequest(t *testing.T) {
	repo := &mockRequestRepo{
		findOpenByUserFn: func(ctx context.Context, userID int64, reqType string) (*Request, error) {
			return &Request{ID: 1, UserID: userID, Type: reqType, Status: StatusPending}, nil
		},
	}
	svc := NewService(repo, &stubOptions{opts: privacyOptions(true, true)})

	_, err := svc.Submit(context.Background(), session(), TypeExport)
	assertAppError(t, err, http.StatusConflict)
}

func TestSubmit_TokensAreUnique(t *testing.T) {
	svc := NewService(&mockRequestRepo{}, &stubOptions{opts: privacyOptions(true, true)})

	a, err := svc.Submit(context.Background(), session(), TypeExport)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := svc.Submit(context.Background(), session(), TypeErase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Token == b.Token {
		t.Error("expected distinct confirmation tokens")
	}
}

func TestHistory(t *testing.T) {
	repo := &mockRequestRepo{
		listByUserFn: func(ctx context.Context, userID int64) ([]Request, error) {
			if userID != 7 {
				t.Errorf("expected the session's member, got %d", userID)
			}
			return []Request{{ID: 2}, {ID: 1}}, nil
		},
	}
	svc := NewService(repo, &stubOptions{opts: privacyOptions(true, true)})

	requests, err := svc.History(context.Background(), session())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(requests))
	}
}

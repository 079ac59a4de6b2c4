package pages

import (
	"context"
	"testing"

	"github.com/solhem/memberpages/internal/apperror"
)

func TestProvision_CreatesAllPagesOnFirstRun(t *testing.T) {
	var created []string
	repo := &mockPageRepo{
		createFn: func(ctx context.Context, page *Page) error {
			created = append(created, page.Slug)
			page.ID = int64(len(created))
			return nil
		},
	}

	var persisted map[string]any
	opts := &mockOptions{
		opts: optsWithPages(nil),
		setFn: func(ctx context.Context, partial map[string]any) error {
			persisted = partial
			return nil
		},
	}

	r := NewResolver(opts, repo, baseURL)
	if err := r.Provision(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(created) != len(Keys()) {
		t.Fatalf("expected %d pages created, got %d (%v)", len(Keys()), len(created), created)
	}

	mapping, ok := persisted["page_ids"].(map[string]any)
	if !ok {
		t.Fatalf("expected a page_ids mapping to be persisted, got %v", persisted)
	}
	for _, key := range Keys() {
		if _, ok := mapping[key]; !ok {
			t.Errorf("expected a mapping for %q", key)
		}
	}
}

func TestProvision_SecondRunIsANoOp(t *testing.T) {
	pageIDs := map[string]int64{}
	for i, key := range Keys() {
		pageIDs[key] = int64(i + 1)
	}

	repo := &mockPageRepo{
		findByIDFn: func(ctx context.Context, id int64) (*Page, error) {
			return &Page{ID: id, Slug: "whatever"}, nil
		},
		createFn: func(ctx context.Context, page *Page) error {
			t.Errorf("unexpected page creation for slug %q", page.Slug)
			return nil
		},
		updateContentFn: func(ctx context.Context, id int64, content string) error {
			t.Errorf("unexpected content update for page %d", id)
			return nil
		},
	}

	setCalled := false
	opts := &mockOptions{
		opts: optsWithPages(pageIDs),
		setFn: func(ctx context.Context, partial map[string]any) error {
			setCalled = true
			return nil
		},
	}

	r := NewResolver(opts, repo, baseURL)
	if err := r.Provision(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setCalled {
		t.Error("expected no mapping writes when everything is already mapped")
	}
}

func TestProvision_ForceRefreshesContentKeepingIDs(t *testing.T) {
	pageIDs := map[string]int64{}
	for i, key := range Keys() {
		pageIDs[key] = int64(i + 1)
	}

	var refreshed []int64
	repo := &mockPageRepo{
		findByIDFn: func(ctx context.Context, id int64) (*Page, error) {
			return &Page{ID: id}, nil
		},
		updateContentFn: func(ctx context.Context, id int64, content string) error {
			refreshed = append(refreshed, id)
			return nil
		},
		createFn: func(ctx context.Context, page *Page) error {
			t.Errorf("force must refresh, not recreate (slug %q)", page.Slug)
			return nil
		},
	}

	r := NewResolver(&mockOptions{opts: optsWithPages(pageIDs)}, repo, baseURL)
	if err := r.Provision(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refreshed) != len(Keys()) {
		t.Errorf("expected every mapped page refreshed, got %d", len(refreshed))
	}
}

func TestProvision_AdoptsExistingPageBySlug(t *testing.T) {
	existing := &Page{ID: 42, Slug: "login", Title: "Old Login"}
	repo := &mockPageRepo{
		findBySlugFn: func(ctx context.Context, slug string) (*Page, error) {
			if slug == "login" {
				return existing, nil
			}
			return nil, apperror.NewNotFound("page not found")
		},
		createFn: func(ctx context.Context, page *Page) error {
			if page.Slug == "login" {
				t.Error("expected the login page to be adopted, not recreated")
			}
			page.ID = 100
			return nil
		},
	}

	var persisted map[string]any
	opts := &mockOptions{
		opts: optsWithPages(nil),
		setFn: func(ctx context.Context, partial map[string]any) error {
			persisted = partial
			return nil
		},
	}

	r := NewResolver(opts, repo, baseURL)
	if err := r.Provision(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mapping, _ := persisted["page_ids"].(map[string]any)
	if got, ok := mapping[KeyLogin].(int64); !ok || got != 42 {
		t.Errorf("expected the adopted page ID 42 for login, got %v", mapping[KeyLogin])
	}
}

func TestProvision_RemapsWhenMappedPageIsGone(t *testing.T) {
	// login is mapped to a page that no longer exists.
	repo := &mockPageRepo{
		createFn: func(ctx context.Context, page *Page) error {
			page.ID = 77
			return nil
		},
	}

	var persisted map[string]any
	opts := &mockOptions{
		opts: optsWithPages(map[string]int64{KeyLogin: 5}),
		setFn: func(ctx context.Context, partial map[string]any) error {
			persisted = partial
			return nil
		},
	}

	r := NewResolver(opts, repo, baseURL)
	if err := r.Provision(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mapping, _ := persisted["page_ids"].(map[string]any)
	if got, ok := mapping[KeyLogin].(int64); !ok || got != 77 {
		t.Errorf("expected a fresh page mapped for login, got %v", mapping[KeyLogin])
	}
}

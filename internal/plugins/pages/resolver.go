package pages

import (
	"context"

	"github.com/solhem/memberpages/internal/plugins/options"
)

// Resolver maps logical page keys to canonical URLs and computes the
// post-login destination. Every lookup reads the configuration fresh;
// failures degrade to an empty URL (or the site root where a destination
// is required) rather than erroring.
type Resolver struct {
	opts    options.Service
	repo    Repository
	baseURL string
}

// NewResolver creates a page resolver.
func NewResolver(opts options.Service, repo Repository, baseURL string) *Resolver {
	return &Resolver{opts: opts, repo: repo, baseURL: baseURL}
}

// HomeURL returns the site root.
func (r *Resolver) HomeURL() string {
	return r.baseURL + "/"
}

// URLFor resolves a logical page key to its canonical URL. Returns the
// empty string when the key is unmapped or the mapped page no longer
// exists -- callers must treat that as "feature unavailable".
func (r *Resolver) URLFor(ctx context.Context, key string) string {
	opts, err := r.opts.Get(ctx)
	if err != nil {
		return ""
	}

	id := opts.PageIDs[key]
	if id == 0 {
		return ""
	}

	page, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return ""
	}
	return r.baseURL + "/" + page.Slug
}

// RedirectAfterLogin produces the configured post-login destination,
// falling back to the site root if the chosen page is unmapped.
func (r *Resolver) RedirectAfterLogin(ctx context.Context) string {
	opts, err := r.opts.Get(ctx)
	if err != nil {
		return r.HomeURL()
	}

	switch opts.RedirectAfterLogin {
	case options.RedirectProfile:
		if url := r.URLFor(ctx, KeyProfile); url != "" {
			return url
		}
		return r.HomeURL()
	case options.RedirectHome:
		return r.HomeURL()
	default:
		if url := r.URLFor(ctx, KeyDashboard); url != "" {
			return url
		}
		return r.HomeURL()
	}
}

// KeyForPageID returns the logical key mapped to the given page ID, or ""
// if the page is not one of the member pages. The page handler uses this
// to keep member pages out of shared caches.
func (r *Resolver) KeyForPageID(ctx context.Context, pageID int64) string {
	if pageID == 0 {
		return ""
	}
	opts, err := r.opts.Get(ctx)
	if err != nil {
		return ""
	}
	for key, id := range opts.PageIDs {
		if id == pageID {
			return key
		}
	}
	return ""
}

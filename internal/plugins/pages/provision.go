package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/solhem/memberpages/internal/apperror"
)

// Provision creates or repairs the six member content pages and records
// their IDs in the configuration. It is idempotent:
//
//   - force=false leaves already-mapped, still-existing pages untouched;
//   - force=true refreshes their content but preserves their IDs;
//   - unmapped keys first try to adopt an existing page by slug, then
//     create a fresh one.
//
// Called at startup when provision_pages_on_start is set, and from the
// admin settings surface on demand.
func (r *Resolver) Provision(ctx context.Context, force bool) error {
	opts, err := r.opts.Get(ctx)
	if err != nil {
		return fmt.Errorf("loading options: %w", err)
	}

	mapped := make(map[string]any, len(provisionSpecs))

	for _, key := range Keys() {
		spec := provisionSpecs[key]
		existingID := opts.PageIDs[key]

		if existingID != 0 {
			if _, err := r.repo.FindByID(ctx, existingID); err == nil {
				if !force {
					continue
				}
				// Refresh content, keep identity.
				if err := r.repo.UpdateContent(ctx, existingID, spec.Content); err != nil {
					return fmt.Errorf("refreshing page %q: %w", key, err)
				}
				continue
			}
			// The mapped page is gone; fall through and re-resolve.
			existingID = 0
		}

		// Adopt an existing page by slug before creating a duplicate.
		if found, err := r.repo.FindBySlug(ctx, spec.Slug); err == nil {
			if err := r.repo.UpdateContent(ctx, found.ID, spec.Content); err != nil {
				return fmt.Errorf("adopting page %q: %w", key, err)
			}
			mapped[key] = found.ID
			continue
		} else if !isNotFound(err) {
			return fmt.Errorf("looking up page %q by slug: %w", key, err)
		}

		page := &Page{Slug: spec.Slug, Title: spec.Title, Content: spec.Content}
		if err := r.repo.Create(ctx, page); err != nil {
			return fmt.Errorf("creating page %q: %w", key, err)
		}
		mapped[key] = page.ID

		slog.Info("provisioned member page",
			slog.String("key", key),
			slog.String("slug", spec.Slug),
			slog.Int64("page_id", page.ID),
		)
	}

	if len(mapped) == 0 {
		return nil
	}
	return r.opts.Set(ctx, map[string]any{"page_ids": mapped})
}

// isNotFound reports whether err is an apperror 404.
func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Code == http.StatusNotFound
}

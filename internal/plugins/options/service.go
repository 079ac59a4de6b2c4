package options

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solhem/memberpages/internal/apperror"
)

// Service is the configuration provider injected into every component that
// reads member-pages settings. Reads are fresh on every call -- there is
// deliberately no caching contract, matching the one-cheap-row access
// pattern of the options table.
type Service interface {
	// Get returns the defaults deep-merged with the persisted record. A
	// missing or malformed persisted record is treated as empty, so the
	// result is always fully populated.
	Get(ctx context.Context) (Options, error)

	// Set deep-merges the partial map over the current value and persists
	// the merged result. No field validation happens here; the settings
	// form owns that.
	Set(ctx context.Context, partial map[string]any) error

	// SetPageID records a single page mapping. Used by the page
	// provisioner after creating content pages.
	SetPageID(ctx context.Context, key string, id int64) error
}

// service implements Service on top of the options repository.
type service struct {
	repo Repository
}

// NewService creates the options service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Get loads the persisted record and merges it over the compiled defaults.
func (s *service) Get(ctx context.Context) (Options, error) {
	merged, err := s.mergedMap(ctx)
	if err != nil {
		return Options{}, err
	}

	// Round-trip through JSON to project the merged map onto the typed
	// struct. Unknown persisted keys are dropped; missing keys keep their
	// default values from the merge.
	raw, err := json.Marshal(merged)
	if err != nil {
		return Options{}, apperror.NewInternal(fmt.Errorf("encoding merged options: %w", err))
	}

	opts := Defaults()
	if err := json.Unmarshal(raw, &opts); err != nil {
		return Options{}, apperror.NewInternal(fmt.Errorf("decoding merged options: %w", err))
	}
	return opts, nil
}

// Set merges the partial over the current merged value and persists the
// whole result, mirroring how the record is created on first write.
func (s *service) Set(ctx context.Context, partial map[string]any) error {
	merged, err := s.mergedMap(ctx)
	if err != nil {
		return err
	}

	deepMerge(merged, partial)

	raw, err := json.Marshal(merged)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("encoding options: %w", err))
	}
	return s.repo.Set(ctx, OptKey, string(raw))
}

// SetPageID stores one page mapping without touching other fields.
func (s *service) SetPageID(ctx context.Context, key string, id int64) error {
	return s.Set(ctx, map[string]any{
		"page_ids": map[string]any{key: id},
	})
}

// mergedMap returns the defaults overlaid with the persisted values as a
// generic map. A NotFound or undecodable persisted blob degrades to
// defaults-only, never to an error: the invariant is that configuration
// is always fully populated.
func (s *service) mergedMap(ctx context.Context) (map[string]any, error) {
	base, err := toMap(Defaults())
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("encoding default options: %w", err))
	}

	raw, err := s.repo.Get(ctx, OptKey)
	if err != nil {
		if appErr, ok := err.(*apperror.AppError); ok && appErr.Code == 404 {
			return base, nil
		}
		return nil, err
	}

	var persisted map[string]any
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		// Corrupt blob: treat as empty rather than failing every request.
		return base, nil
	}

	deepMerge(base, persisted)
	return base, nil
}

// toMap converts a value to a generic JSON map.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMerge overlays src onto dst in place. Nested maps merge key-wise;
// every other value (including slices) replaces the destination wholesale,
// matching recursive array-replace semantics.
func deepMerge(dst, src map[string]any) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

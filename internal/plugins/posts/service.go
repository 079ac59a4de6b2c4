package posts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/restrict"
	"github.com/solhem/memberpages/internal/sanitize"
)

// Service defines the business logic contract for the member dashboard
// and the front-end post flow. All operations are scoped to the calling
// session -- there is no way to reach another member's drafts from here.
type Service interface {
	Dashboard(ctx context.Context, session *auth.Session, page int) (*ListResult, error)
	Save(ctx context.Context, session *auth.Session, input SaveInput) (*Post, error)
	Delete(ctx context.Context, session *auth.Session, id int64) error
	FindForEdit(ctx context.Context, session *auth.Session, id int64) (*Post, error)
}

type service struct {
	repo Repository
	opts options.Service
}

// NewService creates the post service.
func NewService(repo Repository, opts options.Service) Service {
	return &service{repo: repo, opts: opts}
}

// Dashboard lists one page of the member's own posts, filtered per the
// dashboard configuration.
func (s *service) Dashboard(ctx context.Context, session *auth.Session, page int) (*ListResult, error) {
	conf, err := s.opts.Get(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading options: %w", err))
	}

	perPage := conf.Dashboard.PerPage
	if perPage < 1 {
		perPage = 20
	}
	if page < 1 {
		page = 1
	}

	items, total, err := s.repo.List(ctx, ListFilter{
		AuthorID:    session.UserID,
		Types:       conf.Dashboard.PostTypes,
		OnlyReviews: conf.Dashboard.OnlyReviews,
		Page:        page,
		PerPage:     perPage,
	})
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing posts: %w", err))
	}

	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}

	return &ListResult{
		Posts:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// Save creates or updates a post on behalf of the session. Updates go
// through the capability check; creation requires the front-end creation
// toggle. Content is sanitized against the UGC policy before storage.
func (s *service) Save(ctx context.Context, session *auth.Session, input SaveInput) (*Post, error) {
	conf, err := s.opts.Get(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading options: %w", err))
	}

	title := sanitize.Text(input.Title)
	if title == "" {
		return nil, apperror.NewValidation("a title is required")
	}
	content := sanitize.Bio(input.Content)

	status := input.Status
	if status != StatusDraft && status != StatusPending && status != StatusPublished {
		status = StatusDraft
	}

	now := time.Now().UTC()

	if input.ID == 0 {
		if !conf.AllowFrontendCreate {
			return nil, apperror.NewForbidden("creating posts from the dashboard is disabled")
		}

		postType := input.Type
		if !typeAllowed(conf, postType) {
			return nil, apperror.NewValidation("this post type cannot be created here")
		}

		post := &Post{
			AuthorID:  session.UserID,
			Title:     title,
			Slug:      slugify(title),
			Content:   content,
			Type:      postType,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, post); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("creating post: %w", err))
		}

		slog.Info("post created from dashboard",
			slog.Int64("post_id", post.ID),
			slog.Int64("author_id", session.UserID),
		)
		return post, nil
	}

	post, err := s.repo.FindByID(ctx, input.ID)
	if err != nil {
		if apperror.SafeCode(err) == 404 {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading post: %w", err))
	}
	if !restrict.CanEditPost(conf, session, post.AuthorID) {
		return nil, apperror.NewForbidden("you cannot edit this post")
	}

	post.Title = title
	post.Content = content
	post.Status = status
	post.UpdatedAt = now

	if err := s.repo.Update(ctx, post); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("saving post: %w", err))
	}

	return post, nil
}

// Delete removes a post after the capability check.
func (s *service) Delete(ctx context.Context, session *auth.Session, id int64) error {
	conf, err := s.opts.Get(ctx)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("loading options: %w", err))
	}

	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if apperror.SafeCode(err) == 404 {
			return err
		}
		return apperror.NewInternal(fmt.Errorf("loading post: %w", err))
	}
	if !restrict.CanDeletePost(conf, session, post.AuthorID) {
		return apperror.NewForbidden("you cannot delete this post")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting post: %w", err))
	}

	slog.Info("post deleted from dashboard",
		slog.Int64("post_id", id),
		slog.Int64("author_id", session.UserID),
	)
	return nil
}

// FindForEdit loads a post for the edit form, enforcing read access.
func (s *service) FindForEdit(ctx context.Context, session *auth.Session, id int64) (*Post, error) {
	conf, err := s.opts.Get(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading options: %w", err))
	}

	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if apperror.SafeCode(err) == 404 {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading post: %w", err))
	}
	if !restrict.CanReadPost(conf, session, post.AuthorID) {
		return nil, apperror.NewForbidden("you cannot view this post")
	}

	return post, nil
}

// typeAllowed reports whether the dashboard configuration permits
// creating the given post type.
func typeAllowed(conf options.Options, postType string) bool {
	for _, t := range conf.Dashboard.PostTypes {
		if t == postType {
			return true
		}
	}
	return false
}

// slugify derives a URL slug from a title: lowercase, non-alphanumerics
// collapsed to single hyphens.
func slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

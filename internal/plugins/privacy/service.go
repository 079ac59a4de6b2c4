package privacy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/flash"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/pages"
)

// Service defines the business logic contract for privacy requests.
type Service interface {
	Submit(ctx context.Context, session *auth.Session, reqType string) (*Request, error)
	History(ctx context.Context, session *auth.Session) ([]Request, error)
}

type service struct {
	repo Repository
	opts options.Service
}

// NewService creates the privacy request service.
func NewService(repo Repository, opts options.Service) Service {
	return &service{repo: repo, opts: opts}
}

// Submit files a new request of the given type for the session's member.
// Each request type must be enabled in the configuration, and an open
// request of the same type blocks a duplicate.
func (s *service) Submit(ctx context.Context, session *auth.Session, reqType string) (*Request, error) {
	conf, err := s.opts.Get(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading options: %w", err))
	}

	switch reqType {
	case TypeExport:
		if !conf.Privacy.AllowExport {
			return nil, apperror.NewForbidden("data export requests are disabled")
		}
	case TypeErase:
		if !conf.Privacy.AllowErase {
			return nil, apperror.NewForbidden("data erasure requests are disabled")
		}
	default:
		return nil, apperror.NewValidation("unknown request type")
	}

	if _, err := s.repo.FindOpenByUser(ctx, session.UserID, reqType); err == nil {
		return nil, apperror.NewConflict("you already have an open request of this type")
	} else if apperror.SafeCode(err) != http.StatusNotFound {
		return nil, apperror.NewInternal(fmt.Errorf("checking open requests: %w", err))
	}

	req := &Request{
		UserID:    session.UserID,
		Email:     session.Email,
		Type:      reqType,
		Status:    StatusPending,
		Token:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating privacy request: %w", err))
	}

	slog.Info("privacy request submitted",
		slog.Int64("user_id", session.UserID),
		slog.String("type", reqType),
	)

	return req, nil
}

// History lists the member's requests, newest first.
func (s *service) History(ctx context.Context, session *auth.Session) ([]Request, error) {
	requests, err := s.repo.ListByUser(ctx, session.UserID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing privacy requests: %w", err))
	}
	return requests, nil
}

// Dispatch adapts the service to the member form pipeline. The auth
// handler routes the privacy_request branch here after verifying the
// form token and the session.
func Dispatch(svc Service, resolver *pages.Resolver) auth.PrivacyDispatch {
	return func(c echo.Context, session *auth.Session) (bool, error) {
		reqType := c.FormValue("pr_request_type")

		if _, err := svc.Submit(c.Request().Context(), session, reqType); err != nil {
			flash.Set(c, flash.KindError, apperror.SafeMessage(err))
			return false, nil
		}

		flash.Set(c, flash.KindSuccess, "request received, check your email to confirm")

		dest := resolver.URLFor(c.Request().Context(), pages.KeyProfile)
		if dest == "" {
			dest = resolver.HomeURL()
		}
		return true, c.Redirect(http.StatusSeeOther, dest)
	}
}

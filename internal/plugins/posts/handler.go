package posts

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/flash"
	"github.com/solhem/memberpages/internal/plugins/pages"
)

// Legacy submit-button name for the post form.
const legacyPostSubmit = "pr_post_submit"

// Handler processes the post-edit form branches of the member page POST
// pipeline. Like the account forms, validation failures flash and decline
// without redirecting; terminal outcomes flash and redirect.
type Handler struct {
	service  Service
	resolver *pages.Resolver
	nonces   *auth.NonceService
}

// NewHandler creates the post form handler.
func NewHandler(service Service, resolver *pages.Resolver, nonces *auth.NonceService) *Handler {
	return &Handler{service: service, resolver: resolver, nonces: nonces}
}

// Dispatch routes a member-page POST to the post-save or post-delete
// branch. Returns redirected=false for submissions it does not own.
func (h *Handler) Dispatch(c echo.Context) (redirected bool, err error) {
	formID := c.FormValue("pr_form")
	if formID == "" && c.FormValue(legacyPostSubmit) != "" {
		formID = "post_save"
	}

	switch formID {
	case "post_save":
		return h.handleSave(c)
	case "post_delete":
		return h.handleDelete(c)
	default:
		return false, nil
	}
}

func (h *Handler) handleSave(c echo.Context) (bool, error) {
	session := auth.GetSession(c)
	if session == nil {
		flash.Set(c, flash.KindError, "please log in to manage posts")
		return true, c.Redirect(http.StatusSeeOther, h.loginURL(c))
	}

	var req SaveRequest
	if err := c.Bind(&req); err != nil {
		flash.Set(c, flash.KindError, "invalid request")
		return false, nil
	}

	if !h.nonces.Verify(req.Token, auth.ActionPost, auth.GetSessionToken(c)) {
		flash.Set(c, flash.KindError, "your session expired, please try again")
		return false, nil
	}

	post, err := h.service.Save(c.Request().Context(), session, SaveInput{
		ID:      req.ID,
		Title:   req.Title,
		Content: req.Content,
		Type:    req.Type,
		Status:  req.Status,
	})
	if err != nil {
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	flash.Set(c, flash.KindSuccess, "post saved")

	dest := h.resolver.URLFor(c.Request().Context(), pages.KeyPostEdit)
	if dest != "" {
		dest += "?post_id=" + strconv.FormatInt(post.ID, 10)
	} else {
		dest = h.dashboardURL(c)
	}
	return true, c.Redirect(http.StatusSeeOther, dest)
}

func (h *Handler) handleDelete(c echo.Context) (bool, error) {
	session := auth.GetSession(c)
	if session == nil {
		flash.Set(c, flash.KindError, "please log in to manage posts")
		return true, c.Redirect(http.StatusSeeOther, h.loginURL(c))
	}

	if !h.nonces.Verify(c.FormValue("pr_token"), auth.ActionPost, auth.GetSessionToken(c)) {
		flash.Set(c, flash.KindError, "your session expired, please try again")
		return false, nil
	}

	id, err := strconv.ParseInt(c.FormValue("post_id"), 10, 64)
	if err != nil || id <= 0 {
		flash.Set(c, flash.KindError, "invalid post")
		return false, nil
	}

	if err := h.service.Delete(c.Request().Context(), session, id); err != nil {
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	flash.Set(c, flash.KindSuccess, "post deleted")
	return true, c.Redirect(http.StatusSeeOther, h.dashboardURL(c))
}

func (h *Handler) loginURL(c echo.Context) string {
	if url := h.resolver.URLFor(c.Request().Context(), pages.KeyLogin); url != "" {
		return url
	}
	return h.resolver.HomeURL()
}

func (h *Handler) dashboardURL(c echo.Context) string {
	if url := h.resolver.URLFor(c.Request().Context(), pages.KeyDashboard); url != "" {
		return url
	}
	return h.resolver.HomeURL()
}

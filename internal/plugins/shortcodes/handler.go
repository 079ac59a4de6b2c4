package shortcodes

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/flash"
	"github.com/solhem/memberpages/internal/plugins/pages"
)

// FormDispatch is one branch of the member-page POST pipeline. A branch
// returns redirected=true once the response has been written.
type FormDispatch func(c echo.Context) (redirected bool, err error)

// Handler serves the content pages: GET renders the page with its tags
// expanded, POST first runs the form pipeline and re-renders in place
// when a branch declines with a validation flash.
type Handler struct {
	repo     pages.Repository
	renderer *Renderer
	resolver *pages.Resolver
	forms    []FormDispatch
}

// NewHandler creates the page handler. Form branches run in order on
// every POST until one claims the submission.
func NewHandler(repo pages.Repository, renderer *Renderer, resolver *pages.Resolver, forms ...FormDispatch) *Handler {
	return &Handler{repo: repo, renderer: renderer, resolver: resolver, forms: forms}
}

// Show serves GET /:slug.
func (h *Handler) Show(c echo.Context) error {
	return h.render(c)
}

// Submit serves POST /:slug: dispatch, then re-render on decline.
func (h *Handler) Submit(c echo.Context) error {
	for _, dispatch := range h.forms {
		redirected, err := dispatch(c)
		if err != nil {
			return err
		}
		if redirected {
			return nil
		}
	}
	// No branch redirected -- re-render the page so the flash the branch
	// left behind (if any) is visible immediately.
	return h.render(c)
}

func (h *Handler) render(c echo.Context) error {
	page, err := h.repo.FindBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		if apperror.SafeCode(err) == http.StatusNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "page not found")
		}
		return err
	}

	// Member pages carry per-visitor tokens and one-shot notices; keep
	// them out of shared caches.
	if h.resolver.KeyForPageID(c.Request().Context(), page.ID) != "" {
		c.Response().Header().Set("Cache-Control", "no-store")
	}

	body, err := h.expand(c, page.Content)
	if err != nil {
		return err
	}

	var flashData any
	if msg, ok := flash.ReadAndClear(c); ok {
		flashData = msg
	}

	html, err := h.renderer.Layout(c, page.Title, flashData, body)
	if err != nil {
		return err
	}

	return c.HTML(http.StatusOK, string(html))
}

// expand replaces every known tag in the page content with its fragment.
// Content outside the tags is page prose entered by the site owner and is
// escaped, not trusted.
func (h *Handler) expand(c echo.Context, content string) (template.HTML, error) {
	tags := []string{TagLogin, TagRegister, TagDashboard, TagProfile, TagLogout, TagPostEdit}

	var out strings.Builder
	rest := content
	for {
		idx := -1
		var found string
		for _, tag := range tags {
			if i := strings.Index(rest, tag); i >= 0 && (idx == -1 || i < idx) {
				idx, found = i, tag
			}
		}
		if idx == -1 {
			out.WriteString(template.HTMLEscapeString(rest))
			break
		}

		out.WriteString(template.HTMLEscapeString(rest[:idx]))
		fragment, err := h.renderer.Render(c, found)
		if err != nil {
			return "", err
		}
		out.WriteString(string(fragment))
		rest = rest[idx+len(found):]
	}

	return template.HTML(out.String()), nil
}

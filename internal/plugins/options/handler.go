package options

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
)

// Handler exposes the programmatic settings surface: a small JSON API used
// by the admin UI. The settings form itself is rendered elsewhere; this is
// only the read/patch endpoint pair.
type Handler struct {
	service Service
}

// NewHandler creates an options handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetSettings returns the fully-merged configuration (GET /admin/api/settings).
func (h *Handler) GetSettings(c echo.Context) error {
	opts, err := h.service.Get(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, opts)
}

// PatchSettings deep-merges a partial JSON body over the current
// configuration (PATCH /admin/api/settings).
func (h *Handler) PatchSettings(c echo.Context) error {
	var partial map[string]any
	if err := c.Bind(&partial); err != nil {
		return apperror.NewBadRequest("invalid settings payload")
	}
	if len(partial) == 0 {
		return apperror.NewBadRequest("empty settings payload")
	}

	if err := h.service.Set(c.Request().Context(), partial); err != nil {
		return err
	}

	opts, err := h.service.Get(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, opts)
}

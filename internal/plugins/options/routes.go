package options

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the settings API on an admin-only route group.
// The group is expected to already carry authentication and admin-role
// middleware; see internal/app/routes.go.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.GET("/settings", h.GetSettings)
	g.PATCH("/settings", h.PatchSettings)
}

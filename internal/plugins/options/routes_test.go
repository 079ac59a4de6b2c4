package options

import (
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRegisterRoutes_MountsSettingsOnGroupPath(t *testing.T) {
	e := echo.New()
	g := e.Group("/admin/api")
	RegisterRoutes(g, NewHandler(NewService(&mockRepo{})))

	want := map[string]bool{
		"GET /admin/api/settings":   false,
		"PATCH /admin/api/settings": false,
	}
	for _, route := range e.Routes() {
		key := route.Method + " " + route.Path
		if _, ok := want[key]; ok {
			want[key] = true
			continue
		}
		if route.Name != "" && len(route.Path) >= 10 && route.Path[:10] == "/admin/api" {
			// Anything else under the API prefix is a registration mistake.
			t.Errorf("unexpected API route %s", key)
		}
	}
	for key, seen := range want {
		if !seen {
			t.Errorf("route %s not registered", key)
		}
	}
}

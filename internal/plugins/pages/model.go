// Package pages owns the content pages that host the member-facing
// fragments, and the resolver that maps logical page keys (login,
// register, dashboard, profile, logout, post_edit) to concrete URLs.
// An unresolved mapping yields an empty URL; callers treat that as
// "feature unavailable" and fall back or skip, never fail.
package pages

import "time"

// Logical page keys. These index the page_ids map in the configuration.
const (
	KeyLogin     = "login"
	KeyRegister  = "register"
	KeyDashboard = "dashboard"
	KeyProfile   = "profile"
	KeyLogout    = "logout"
	KeyPostEdit  = "post_edit"
)

// Keys returns all logical page keys in provisioning order.
func Keys() []string {
	return []string{KeyLogin, KeyRegister, KeyDashboard, KeyProfile, KeyLogout, KeyPostEdit}
}

// Page is one content page row. Content holds a fragment tag (e.g.
// "[pr_login]") that the renderer expands at request time.
type Page struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// pageSpec describes how a member page is provisioned.
type pageSpec struct {
	Title   string
	Slug    string
	Content string
}

// provisionSpecs is the canonical definition of the six member pages.
var provisionSpecs = map[string]pageSpec{
	KeyLogin:     {Title: "Log In", Slug: "login", Content: "[pr_login]"},
	KeyRegister:  {Title: "Register", Slug: "register", Content: "[pr_register]"},
	KeyDashboard: {Title: "My Pages", Slug: "my-pages", Content: "[pr_dashboard]"},
	KeyProfile:   {Title: "My Profile", Slug: "my-profile", Content: "[pr_profile]"},
	KeyLogout:    {Title: "Log Out", Slug: "logout", Content: "[pr_logout]"},
	KeyPostEdit:  {Title: "Edit/Create Post", Slug: "edit-post", Content: "[pr_post_edit]"},
}

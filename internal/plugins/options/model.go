// Package options manages the member-pages configuration record: a single
// versioned JSON blob persisted in the options table. Reads return the
// compiled defaults deep-merged with the persisted record, so callers can
// rely on every field being populated. Writes deep-merge a partial map
// over the current value and persist the result.
//
// This is feature configuration, mutated at runtime through the admin
// settings API. Process-level infrastructure settings live in
// internal/config instead.
package options

// OptKey is the row key under which the configuration blob is stored.
const OptKey = "member_pages"

// Redirect-after-login choices.
const (
	RedirectDashboard = "dashboard"
	RedirectProfile   = "profile"
	RedirectHome      = "home"
)

// Options is the fully-populated member-pages configuration. The invariant
// is that every field carries either a persisted or a default value --
// callers never see a partially-undefined record.
type Options struct {
	// Enabled is the master feature toggle. When false every shortcode
	// renders empty and the restriction gate is a no-op.
	Enabled bool `json:"enabled"`

	// ProvisionPagesOnStart creates the member content pages at startup
	// if they are not yet mapped.
	ProvisionPagesOnStart bool `json:"provision_pages_on_start"`

	// RedirectAdminLogin sends visitors of the native admin login surface
	// to the mapped front-end login page.
	RedirectAdminLogin bool `json:"redirect_admin_login"`

	// BlockAdmin redirects blocked-role members away from the admin area.
	BlockAdmin bool `json:"block_admin"`

	// BlockedRoles lists role names denied admin-area access.
	BlockedRoles []string `json:"blocked_roles"`

	// HideAdminBar force-hides the admin toolbar for blocked-role members.
	HideAdminBar bool `json:"hide_admin_bar"`

	// PageIDs maps logical page keys (login, register, dashboard, profile,
	// logout, post_edit) to content-page IDs. Zero means unmapped.
	PageIDs map[string]int64 `json:"page_ids"`

	// RedirectAfterLogin picks the post-login destination:
	// "dashboard", "profile", or "home".
	RedirectAfterLogin string `json:"redirect_after_login"`

	// RegistrationOpen is the global registration toggle.
	RegistrationOpen bool `json:"registration_open"`

	// RegisterAutoLogin selects the registration success policy: true
	// authenticates the new member immediately, false redirects to the
	// login page with a success flash.
	RegisterAutoLogin bool `json:"register_auto_login"`

	RateLimit RateLimitOptions `json:"rate_limit"`
	Captcha   CaptchaOptions   `json:"captcha"`
	Social    SocialOptions    `json:"social"`
	Dashboard DashboardOptions `json:"dashboard"`

	// AllowFrontendCreate shows create-post actions on the dashboard for
	// members who may edit posts.
	AllowFrontendCreate bool `json:"allow_frontend_create"`

	Privacy PrivacyOptions `json:"privacy"`
}

// RateLimitOptions controls the login failure counter.
type RateLimitOptions struct {
	Enabled     bool `json:"enabled"`
	MaxAttempts int  `json:"max_attempts"`
}

// AttemptLimit returns the effective failure threshold. A floor of 3 keeps
// a typo'd setting from locking members out after a single mistake.
func (r RateLimitOptions) AttemptLimit() int {
	if r.MaxAttempts < 3 {
		return 3
	}
	return r.MaxAttempts
}

// CaptchaOptions selects and configures the bot-protection provider.
// Provider is one of "", "native", "turnstile", "recaptcha".
type CaptchaOptions struct {
	Provider  string `json:"provider"`
	SiteKey   string `json:"site_key"`
	SecretKey string `json:"secret_key"`
}

// SocialOptions holds OAuth client credentials per provider.
type SocialOptions struct {
	Google    OAuthClient `json:"google"`
	WordPress OAuthClient `json:"wordpress"`
}

// OAuthClient is one provider's client credential pair.
type OAuthClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// DashboardOptions filters the member dashboard listing.
type DashboardOptions struct {
	// PostTypes limits the listing to these post types.
	PostTypes []string `json:"post_types"`

	// PerPage is the page size of the listing.
	PerPage int `json:"per_page"`

	// OnlyReviews restricts the listing to posts carrying a review score.
	OnlyReviews bool `json:"only_reviews"`

	// ShowReviewMeta adds score/mode/review-date columns to the listing.
	ShowReviewMeta bool `json:"show_review_meta"`
}

// PrivacyOptions enables the personal-data request actions individually.
type PrivacyOptions struct {
	AllowExport bool `json:"allow_export"`
	AllowErase  bool `json:"allow_erase"`
}

// Defaults returns the compiled default configuration. Missing keys in the
// persisted record fall back to these values.
func Defaults() Options {
	return Options{
		Enabled:               true,
		ProvisionPagesOnStart: true,
		RedirectAdminLogin:    true,
		BlockAdmin:            true,
		BlockedRoles:          []string{"subscriber", "customer"},
		HideAdminBar:          true,
		PageIDs: map[string]int64{
			"login":     0,
			"register":  0,
			"dashboard": 0,
			"profile":   0,
			"logout":    0,
			"post_edit": 0,
		},
		RedirectAfterLogin: RedirectDashboard,
		RegistrationOpen:   false,
		RegisterAutoLogin:  true,
		RateLimit: RateLimitOptions{
			Enabled:     true,
			MaxAttempts: 5,
		},
		Dashboard: DashboardOptions{
			PostTypes:      []string{"post"},
			PerPage:        20,
			OnlyReviews:    false,
			ShowReviewMeta: true,
		},
		AllowFrontendCreate: true,
	}
}

// Package auth handles member accounts, credentials, and sessions: login,
// registration, profile editing, and logout, all driven by the front-end
// member pages rather than the admin surface. Sessions are random tokens
// stored in Redis; passwords are argon2id hashes.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// User represents a member account. This is the domain model used
// throughout the application. Database scanning and JSON marshaling use
// this struct directly.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	Roles        []string   `json:"roles"`
	Website      string     `json:"website,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	Meta         AuthorMeta `json:"meta"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// AuthorMeta holds the extended author-profile fields shown on public
// author pages. Stored as a single JSON column; LongBioText mirrors
// LongBio with all markup stripped, for excerpts and search.
type AuthorMeta struct {
	Title           string `json:"title,omitempty"`
	Location        string `json:"location,omitempty"`
	Tagline         string `json:"tagline,omitempty"`
	FavoriteWorks   string `json:"favorite_works,omitempty"`
	LongBio         string `json:"long_bio,omitempty"`
	LongBioText     string `json:"long_bio_text,omitempty"`
	Twitter         string `json:"twitter,omitempty"`
	Twitch          string `json:"twitch,omitempty"`
	YouTube         string `json:"youtube,omitempty"`
	Discord         string `json:"discord,omitempty"`
	BackgroundImage string `json:"background_image,omitempty"`
}

// HasRole reports whether the user carries the given role name.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user carries any of the given role names.
// The access gate uses this against the blocked-role list.
func (u *User) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds the administrator role.
// Administrators bypass the access gate entirely.
func (u *User) IsAdmin() bool {
	return u.HasRole("administrator")
}

// --- Request DTOs (bound from HTTP form posts) ---

// LoginRequest holds the data submitted by the login form. The form ships
// both the canonical and the legacy field names; Bind fills whichever is
// present and the handler normalizes.
type LoginRequest struct {
	Login      string `form:"user_login"`
	LegacyLog  string `form:"log"`
	Password   string `form:"user_pass"`
	LegacyPwd  string `form:"pwd"`
	Remember   string `form:"rememberme"`
	RedirectTo string `form:"redirect_to"`
	Token      string `form:"pr_token"`
}

// Identifier returns the submitted username-or-email, preferring the
// canonical field.
func (r *LoginRequest) Identifier() string {
	if r.Login != "" {
		return r.Login
	}
	return r.LegacyLog
}

// Pass returns the submitted password, preferring the canonical field.
func (r *LoginRequest) Pass() string {
	if r.Password != "" {
		return r.Password
	}
	return r.LegacyPwd
}

// RegisterRequest holds the data submitted by the registration form.
type RegisterRequest struct {
	Username string `form:"user_login"`
	Email    string `form:"user_email"`
	Password string `form:"pass1"`
	Confirm  string `form:"pass2"`
	Token    string `form:"pr_token"`
}

// ProfileRequest holds the data submitted by the profile form. Password
// fields are optional -- the password only changes when both are filled.
type ProfileRequest struct {
	DisplayName string `form:"display_name"`
	FirstName   string `form:"first_name"`
	LastName    string `form:"last_name"`
	Email       string `form:"user_email"`
	Website     string `form:"user_url"`
	Bio         string `form:"description"`
	Password    string `form:"pass1"`
	Confirm     string `form:"pass2"`
	Token       string `form:"pr_token"`

	// Extended author fields.
	Title           string `form:"author_title"`
	Location        string `form:"author_location"`
	Tagline         string `form:"author_tagline"`
	FavoriteWorks   string `form:"favorite_works"`
	LongBio         string `form:"long_bio"`
	Twitter         string `form:"twitter"`
	Twitch          string `form:"twitch"`
	YouTube         string `form:"youtube"`
	Discord         string `form:"discord"`
	BackgroundImage string `form:"background_image"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the validated input for creating a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string

	// Best-effort name fields, filled by social login.
	DisplayName string
	FirstName   string
	LastName    string
}

// LoginInput is the validated input for authenticating a user. Identifier
// may be a username or an email address.
type LoginInput struct {
	Identifier string
	Password   string
	Remember   bool
}

// ProfileInput is the validated input for a profile update. Empty Password
// means "keep the current password".
type ProfileInput struct {
	DisplayName string
	FirstName   string
	LastName    string
	Email       string
	Website     string
	Bio         string
	Password    string
	Meta        AuthorMeta
}

// --- Session ---

// Session represents an authenticated member session stored in Redis.
// The session token is the key, and this struct is the value (JSON-encoded).
type Session struct {
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Roles       []string  `json:"roles"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasAnyRole reports whether the session's user carries any of the given
// role names.
func (s *Session) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		for _, have := range s.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *Session) IsAdmin() bool {
	for _, r := range s.Roles {
		if r == "administrator" {
			return true
		}
	}
	return false
}

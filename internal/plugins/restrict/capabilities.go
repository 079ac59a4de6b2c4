package restrict

import (
	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/options"
)

// Capability checks for post access. For members carrying a blocked role
// the usual role capabilities are narrowed to posts they authored; denial
// is silent (false), never an error. Roles with site-wide post access
// (administrator, editor) are unaffected.

// editorRoles may act on any post regardless of authorship.
var editorRoles = []string{"administrator", "editor"}

// CanEditPost reports whether the session may edit the post authored by
// authorID.
func CanEditPost(conf options.Options, session *auth.Session, authorID int64) bool {
	return canActOnPost(conf, session, authorID)
}

// CanDeletePost reports whether the session may delete the post authored
// by authorID.
func CanDeletePost(conf options.Options, session *auth.Session, authorID int64) bool {
	return canActOnPost(conf, session, authorID)
}

// CanReadPost reports whether the session may read the (non-public) post
// authored by authorID.
func CanReadPost(conf options.Options, session *auth.Session, authorID int64) bool {
	return canActOnPost(conf, session, authorID)
}

func canActOnPost(conf options.Options, session *auth.Session, authorID int64) bool {
	if session == nil {
		return false
	}
	if session.HasAnyRole(editorRoles) {
		return true
	}

	// Blocked roles are pinned to their own posts when the gate is on.
	if conf.Enabled && session.HasAnyRole(conf.BlockedRoles) {
		return session.UserID == authorID
	}

	// Everyone else keeps the default author rule: own posts only.
	return session.UserID == authorID
}

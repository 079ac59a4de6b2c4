// Package posts backs the member dashboard: listing a member's own posts
// with optional review metadata, and the front-end create/edit/delete flow
// for members kept out of the admin area.
package posts

import "time"

// Post is one content post row. The review fields are optional metadata
// shown as extra dashboard columns when enabled.
type Post struct {
	ID       int64  `json:"id"`
	AuthorID int64  `json:"author_id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Content  string `json:"content"`
	Type     string `json:"type"`
	Status   string `json:"status"`

	ReviewScore *float64   `json:"review_score,omitempty"`
	ReviewMode  *string    `json:"review_mode,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Post statuses used by the front-end flow.
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusPublished = "published"
)

// ListFilter selects a slice of a member's posts.
type ListFilter struct {
	AuthorID    int64
	Types       []string
	OnlyReviews bool
	Page        int
	PerPage     int
}

// ListResult is one dashboard page plus pagination bookkeeping.
type ListResult struct {
	Posts      []Post `json:"posts"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	TotalPages int    `json:"total_pages"`
}

// SaveRequest holds the data submitted by the post-edit form. A zero ID
// means create.
type SaveRequest struct {
	ID      int64  `form:"post_id"`
	Title   string `form:"post_title"`
	Content string `form:"post_content"`
	Type    string `form:"post_type"`
	Status  string `form:"post_status"`
	Token   string `form:"pr_token"`
}

// SaveInput is the validated input for creating or updating a post.
type SaveInput struct {
	ID      int64
	Title   string
	Content string
	Type    string
	Status  string
}

package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/solhem/memberpages/internal/apperror"
)

// Repository defines the data access contract for posts.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Post, int, error)
	FindByID(ctx context.Context, id int64) (*Post, error)
	Create(ctx context.Context, post *Post) error
	Update(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id int64) error
}

// repository implements Repository with hand-written MySQL queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a post repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const postColumns = `id, author_id, title, slug, content, type, status,
	review_score, review_mode, reviewed_at, created_at, updated_at`

// List returns one page of the author's posts plus the total count for
// pagination. Types and the review filter both narrow the selection.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Post, int, error) {
	where := []string{"author_id = ?"}
	args := []any{filter.AuthorID}

	if len(filter.Types) > 0 {
		where = append(where,
			"type IN (?"+strings.Repeat(", ?", len(filter.Types)-1)+")")
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	if filter.OnlyReviews {
		where = append(where, "review_score IS NOT NULL")
	}

	clause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM posts WHERE ` + clause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting posts: %w", err)
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE ` + clause +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(
			&p.ID, &p.AuthorID, &p.Title, &p.Slug, &p.Content, &p.Type, &p.Status,
			&p.ReviewScore, &p.ReviewMode, &p.ReviewedAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning post row: %w", err)
		}
		posts = append(posts, p)
	}

	return posts, total, rows.Err()
}

// FindByID retrieves a post by ID.
// Returns apperror.NotFound if no post exists with this ID.
func (r *repository) FindByID(ctx context.Context, id int64) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = ?`

	p := &Post{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.AuthorID, &p.Title, &p.Slug, &p.Content, &p.Type, &p.Status,
		&p.ReviewScore, &p.ReviewMode, &p.ReviewedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("post not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying post by id: %w", err)
	}

	return p, nil
}

// Create inserts a new post row and fills in the generated ID.
func (r *repository) Create(ctx context.Context, post *Post) error {
	query := `INSERT INTO posts (author_id, title, slug, content, type, status, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		post.AuthorID,
		post.Title,
		post.Slug,
		post.Content,
		post.Type,
		post.Status,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting post: %w", err)
	}

	post.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted post id: %w", err)
	}

	return nil
}

// Update writes the mutable fields of an existing post.
func (r *repository) Update(ctx context.Context, post *Post) error {
	query := `UPDATE posts SET title = ?, content = ?, status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		post.Title, post.Content, post.Status, post.UpdatedAt, post.ID)
	if err != nil {
		return fmt.Errorf("updating post: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		if _, err := r.FindByID(ctx, post.ID); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes a post row.
func (r *repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("post not found")
	}

	return nil
}

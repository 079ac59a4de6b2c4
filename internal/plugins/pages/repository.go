package pages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/solhem/memberpages/internal/apperror"
)

// Repository defines the data access contract for content pages.
type Repository interface {
	Create(ctx context.Context, page *Page) error
	FindByID(ctx context.Context, id int64) (*Page, error)
	FindBySlug(ctx context.Context, slug string) (*Page, error)
	UpdateContent(ctx context.Context, id int64, content string) error
}

// repository implements Repository with hand-written MySQL queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a page repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Create inserts a new page row and fills in the generated ID.
func (r *repository) Create(ctx context.Context, page *Page) error {
	query := `INSERT INTO pages (slug, title, content) VALUES (?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, page.Slug, page.Title, page.Content)
	if err != nil {
		return fmt.Errorf("inserting page: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading page insert id: %w", err)
	}
	page.ID = id
	return nil
}

// FindByID retrieves a page by its numeric ID.
// Returns apperror.NotFound if no page exists with this ID.
func (r *repository) FindByID(ctx context.Context, id int64) (*Page, error) {
	query := `SELECT id, slug, title, content, created_at, updated_at
	          FROM pages WHERE id = ?`

	page := &Page{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&page.ID, &page.Slug, &page.Title, &page.Content,
		&page.CreatedAt, &page.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("page not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying page by id: %w", err)
	}
	return page, nil
}

// FindBySlug retrieves a page by its slug.
// Returns apperror.NotFound if no page exists with this slug.
func (r *repository) FindBySlug(ctx context.Context, slug string) (*Page, error) {
	query := `SELECT id, slug, title, content, created_at, updated_at
	          FROM pages WHERE slug = ?`

	page := &Page{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&page.ID, &page.Slug, &page.Title, &page.Content,
		&page.CreatedAt, &page.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("page not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying page by slug: %w", err)
	}
	return page, nil
}

// UpdateContent replaces a page's content without touching its identity.
func (r *repository) UpdateContent(ctx context.Context, id int64, content string) error {
	query := `UPDATE pages SET content = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, content, id)
	if err != nil {
		return fmt.Errorf("updating page content: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Zero rows can also mean identical content; confirm existence.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

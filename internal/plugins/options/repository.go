package options

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/solhem/memberpages/internal/apperror"
)

// Repository defines the data access contract for the options table.
type Repository interface {
	// Get retrieves the raw JSON value for a key. Returns NotFound if the
	// key has never been written.
	Get(ctx context.Context, key string) (string, error)

	// Set upserts the raw JSON value for a key.
	Set(ctx context.Context, key, value string) error
}

// repository implements Repository using MySQL.
type repository struct {
	db *sql.DB
}

// NewRepository creates an options repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Get retrieves a single option blob by its key.
func (r *repository) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT opt_value FROM options WHERE opt_key = ?`

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperror.NewNotFound(fmt.Sprintf("option %q not found", key))
	}
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("querying option %q: %w", key, err))
	}
	return value, nil
}

// Set upserts an option blob using INSERT ... ON DUPLICATE KEY UPDATE.
func (r *repository) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO options (opt_key, opt_value)
	          VALUES (?, ?)
	          ON DUPLICATE KEY UPDATE opt_value = VALUES(opt_value)`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return apperror.NewInternal(fmt.Errorf("upserting option %q: %w", key, err))
	}
	return nil
}

package privacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/solhem/memberpages/internal/apperror"
)

// Repository defines the data access contract for privacy requests.
type Repository interface {
	Create(ctx context.Context, req *Request) error
	FindOpenByUser(ctx context.Context, userID int64, reqType string) (*Request, error)
	ListByUser(ctx context.Context, userID int64) ([]Request, error)
}

type repository struct {
	db *sql.DB
}

// NewRepository creates a privacy request repository.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Create inserts a new request row and fills in the generated ID.
func (r *repository) Create(ctx context.Context, req *Request) error {
	query := `INSERT INTO privacy_requests (user_id, email, type, status, token, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		req.UserID, req.Email, req.Type, req.Status, req.Token, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting privacy request: %w", err)
	}

	req.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted request id: %w", err)
	}

	return nil
}

// FindOpenByUser returns the user's unresolved request of the given type,
// if any. Used to suppress duplicate submissions.
func (r *repository) FindOpenByUser(ctx context.Context, userID int64, reqType string) (*Request, error) {
	query := `SELECT id, user_id, email, type, status, token, created_at, resolved_at
	          FROM privacy_requests
	          WHERE user_id = ? AND type = ? AND status IN (?, ?)
	          ORDER BY created_at DESC LIMIT 1`

	req := &Request{}
	err := r.db.QueryRowContext(ctx, query, userID, reqType, StatusPending, StatusConfirmed).Scan(
		&req.ID, &req.UserID, &req.Email, &req.Type, &req.Status, &req.Token,
		&req.CreatedAt, &req.ResolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("no open request")
	}
	if err != nil {
		return nil, fmt.Errorf("querying open privacy request: %w", err)
	}

	return req, nil
}

// ListByUser returns all of a user's requests, newest first.
func (r *repository) ListByUser(ctx context.Context, userID int64) ([]Request, error) {
	query := `SELECT id, user_id, email, type, status, token, created_at, resolved_at
	          FROM privacy_requests WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing privacy requests: %w", err)
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(
			&req.ID, &req.UserID, &req.Email, &req.Type, &req.Status, &req.Token,
			&req.CreatedAt, &req.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning privacy request row: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

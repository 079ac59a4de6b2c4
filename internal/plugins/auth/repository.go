package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/solhem/memberpages/internal/apperror"
)

// UserRepository defines the data access contract for member accounts.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateProfile(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id int64) error
}

// userRepository implements UserRepository with hand-written MySQL queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, email, display_name, first_name, last_name,
	password_hash, roles, website, bio, author_meta, created_at, last_login_at`

// Create inserts a new user row and fills in the generated ID.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return fmt.Errorf("encoding roles: %w", err)
	}
	meta, err := json.Marshal(user.Meta)
	if err != nil {
		return fmt.Errorf("encoding author meta: %w", err)
	}

	query := `INSERT INTO users
	          (username, email, display_name, first_name, last_name, password_hash, roles, website, bio, author_meta, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.DisplayName,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		roles,
		user.Website,
		user.Bio,
		meta,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted user id: %w", err)
	}

	return nil
}

// FindByID retrieves a user by ID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByUsername retrieves a user by their login name.
// Returns apperror.NotFound if no user exists with this username.
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// FindByEmail retrieves a user by their email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// UsernameExists returns true if a user with the given login name exists.
// Used during registration and social-login username synthesis.
func (r *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username existence: %w", err)
	}
	return exists, nil
}

// EmailExists returns true if a user with the given email already exists.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// UpdateProfile writes the mutable profile fields. Username, password, and
// roles are not touched here.
func (r *userRepository) UpdateProfile(ctx context.Context, user *User) error {
	meta, err := json.Marshal(user.Meta)
	if err != nil {
		return fmt.Errorf("encoding author meta: %w", err)
	}

	query := `UPDATE users
	          SET email = ?, display_name = ?, first_name = ?, last_name = ?, website = ?, bio = ?, author_meta = ?
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.DisplayName,
		user.FirstName,
		user.LastName,
		user.Website,
		user.Bio,
		meta,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		// Zero rows can mean "no change" -- confirm the row exists.
		if _, err := r.FindByID(ctx, user.ID); err != nil {
			return err
		}
	}

	return nil
}

// UpdatePassword sets a new password hash for a user.
func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}

	return nil
}

// UpdateLastLogin sets the last_login_at timestamp to now for the given user.
func (r *userRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = NOW() WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// scanOne scans a single user row, decoding the JSON roles column.
func (r *userRepository) scanOne(row *sql.Row) (*User, error) {
	user := &User{}
	var roles, meta []byte

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&roles,
		&user.Website,
		&user.Bio,
		&meta,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user row: %w", err)
	}

	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &user.Roles); err != nil {
			return nil, fmt.Errorf("decoding roles for user %d: %w", user.ID, err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &user.Meta); err != nil {
			return nil, fmt.Errorf("decoding author meta for user %d: %w", user.ID, err)
		}
	}

	return user, nil
}

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/questa-app/questa/internal/apperror"
)

// UserRepository defines the data access contract for user accounts.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByInquiryNumber(ctx context.Context, inquiryNumber string) (*User, error)
	Exists(ctx context.Context, username, inquiryNumber string) (bool, error)
	UpdateProfile(ctx context.Context, id string, displayName, email *string) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, display_name, email, inquiry_number,
	                 role, status, created_at, last_login_at`

// Create inserts a new user row into the users table.
// Returns apperror.Conflict when the username or inquiry number is taken.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, username, display_name, email, inquiry_number, role, status, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.DisplayName,
		user.Email,
		user.InquiryNumber,
		user.Role,
		user.Status,
		user.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return apperror.NewConflict("user ID or inquiry number already exists")
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), "id")
}

// FindByUsername retrieves a user by their external username.
// Returns apperror.NotFound if no user exists with this username.
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username), "username")
}

// FindByInquiryNumber retrieves a user by their inquiry number.
func (r *userRepository) FindByInquiryNumber(ctx context.Context, inquiryNumber string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE inquiry_number = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, inquiryNumber), "inquiry number")
}

// Exists returns true if a user with the given username or inquiry number
// already exists. Used during registration to report duplicates before
// attempting the insert.
func (r *userRepository) Exists(ctx context.Context, username, inquiryNumber string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = ? OR inquiry_number = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, username, inquiryNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}

	return exists, nil
}

// UpdateProfile applies the non-nil fields to the user row.
// Returns apperror.NotFound when no row matches.
func (r *userRepository) UpdateProfile(ctx context.Context, id string, displayName, email *string) error {
	query := `UPDATE users SET
	            display_name = COALESCE(?, display_name),
	            email = COALESCE(?, email)
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, displayName, email, id)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}

	// RowsAffected is 0 both for a missing row and a no-op update, so
	// check existence explicitly only when nothing matched.
	n, _ := result.RowsAffected()
	if n == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// scanOne scans a single user row, mapping sql.ErrNoRows to apperror.NotFound.
func (r *userRepository) scanOne(row *sql.Row, by string) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.Email,
		&user.InquiryNumber,
		&user.Role,
		&user.Status,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by %s: %w", by, err)
	}

	return user, nil
}

// isDuplicateEntry reports whether err is a MySQL duplicate-key violation
// (error 1062) on a unique index.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// TouchLastLogin stamps last_login_at inside an existing transaction.
// Exported for the passkey plugin's authentication commit so the users
// table SQL stays in this package.
func TouchLastLogin(ctx context.Context, tx *sql.Tx, userID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at, userID)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

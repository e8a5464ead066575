package passkey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/questa-app/questa/internal/apperror"
	"github.com/questa-app/questa/internal/plugins/auth"
)

// Repository defines the data access contract for challenges and
// credentials. The two completion methods run inside a single transaction:
// a ceremony either commits all of its writes or none of them.
type Repository interface {
	// Challenges.
	CreateChallenge(ctx context.Context, ch *Challenge) error
	LatestPendingChallenge(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error)
	ConsumeChallenge(ctx context.Context, value string) (bool, error)

	// Credentials.
	FindCredentialByID(ctx context.Context, credentialID string) (*Credential, error)
	CredentialIDsByUser(ctx context.Context, userID string) ([]string, error)

	// Ceremony commits.
	RegisterCredential(ctx context.Context, cred *Credential, challengeValue string) error
	CompleteAuthentication(ctx context.Context, credRowID string, newCounter uint32, challengeValue, userID string) (bool, error)
}

// repository implements Repository with hand-written MariaDB queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a new passkey repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// CreateChallenge inserts a new challenge row.
func (r *repository) CreateChallenge(ctx context.Context, ch *Challenge) error {
	query := `INSERT INTO challenges (id, challenge_value, user_id, kind, created_at, expires_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		ch.ID,
		ch.Value,
		ch.UserID,
		string(ch.Kind),
		ch.CreatedAt,
		ch.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting challenge: %w", err)
	}

	return nil
}

// LatestPendingChallenge returns the newest unconsumed challenge of the
// given kind bound to the user, expired or not. The caller distinguishes
// "none pending" from "pending but expired"; consumed rows are invisible
// either way. Returns apperror.NotFound when nothing matches.
func (r *repository) LatestPendingChallenge(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
	query := `SELECT id, challenge_value, user_id, kind, created_at, expires_at, consumed_at
	          FROM challenges
	          WHERE user_id = ? AND kind = ? AND consumed_at IS NULL
	          ORDER BY created_at DESC
	          LIMIT 1`

	ch := &Challenge{}
	var kindStr string
	err := r.db.QueryRowContext(ctx, query, userID, string(kind)).Scan(
		&ch.ID,
		&ch.Value,
		&ch.UserID,
		&kindStr,
		&ch.CreatedAt,
		&ch.ExpiresAt,
		&ch.ConsumedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("no pending challenge")
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending challenge: %w", err)
	}
	ch.Kind = ChallengeKind(kindStr)

	return ch, nil
}

// ConsumeChallenge atomically claims a challenge. The WHERE clause is the
// test-and-set: of two racing completions, exactly one sees RowsAffected=1.
func (r *repository) ConsumeChallenge(ctx context.Context, value string) (bool, error) {
	return consumeChallenge(ctx, r.db, value)
}

// execer abstracts *sql.DB and *sql.Tx for the shared consume statement.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func consumeChallenge(ctx context.Context, ex execer, value string) (bool, error) {
	query := `UPDATE challenges SET consumed_at = ?
	          WHERE challenge_value = ? AND consumed_at IS NULL`

	result, err := ex.ExecContext(ctx, query, time.Now().UTC(), value)
	if err != nil {
		return false, fmt.Errorf("consuming challenge: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consuming challenge: %w", err)
	}

	return n == 1, nil
}

// FindCredentialByID retrieves a credential by its authenticator-assigned
// credential id. Returns apperror.NotFound if absent.
func (r *repository) FindCredentialByID(ctx context.Context, credentialID string) (*Credential, error) {
	query := `SELECT id, user_id, credential_id, public_key, counter, created_at, last_used_at
	          FROM credentials WHERE credential_id = ?`

	cred := &Credential{}
	err := r.db.QueryRowContext(ctx, query, credentialID).Scan(
		&cred.ID,
		&cred.UserID,
		&cred.CredentialID,
		&cred.PublicKey,
		&cred.Counter,
		&cred.CreatedAt,
		&cred.LastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("credential not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}

	return cred, nil
}

// CredentialIDsByUser returns the credential ids registered to a user,
// oldest first. Used to build the allowCredentials list.
func (r *repository) CredentialIDsByUser(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT credential_id FROM credentials WHERE user_id = ? ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning credential id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// RegisterCredential consumes the challenge and inserts the new credential
// in one transaction. Returns apperror.BadRequest when the challenge was
// already claimed and apperror.Conflict when the credential id is taken
// (by any user -- the unique index spans the whole table).
func (r *repository) RegisterCredential(ctx context.Context, cred *Credential, challengeValue string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning registration tx: %w", err)
	}
	defer tx.Rollback()

	claimed, err := consumeChallenge(ctx, tx, challengeValue)
	if err != nil {
		return err
	}
	if !claimed {
		return apperror.NewBadRequest("invalid or expired challenge")
	}

	query := `INSERT INTO credentials (id, user_id, credential_id, public_key, counter, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		cred.ID,
		cred.UserID,
		cred.CredentialID,
		cred.PublicKey,
		cred.Counter,
		cred.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return apperror.NewConflict("credential already registered")
	}
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registration tx: %w", err)
	}

	return nil
}

// CompleteAuthentication consumes the challenge and, in the same
// transaction, bumps the credential counter/last-used and the user's
// last-login timestamp. Returns false without writing anything when the
// challenge was already claimed.
func (r *repository) CompleteAuthentication(ctx context.Context, credRowID string, newCounter uint32, challengeValue, userID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning authentication tx: %w", err)
	}
	defer tx.Rollback()

	claimed, err := consumeChallenge(ctx, tx, challengeValue)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	now := time.Now().UTC()

	query := `UPDATE credentials SET counter = ?, last_used_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, newCounter, now, credRowID); err != nil {
		return false, fmt.Errorf("updating credential counter: %w", err)
	}

	if err := auth.TouchLastLogin(ctx, tx, userID, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing authentication tx: %w", err)
	}

	return true, nil
}

// isDuplicateEntry reports whether err is a MySQL duplicate-key violation
// (error 1062) on a unique index.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/tokenauth/models"
	"github.com/upb/tokenauth/repositories"
	"go.uber.org/zap"
)

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

// UserRepository implements repositories.UserRepository on PostgreSQL
type UserRepository struct {
	db     *DB
	txm    *TransactionManager
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, txm *TransactionManager, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		txm:    txm,
		logger: logger,
	}
}

// Create inserts the user and its roles in one transaction. The unique index
// on username makes the existence check and the insert a single statement.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	insertUser := `
		INSERT INTO users (username, password_hash, email, enabled, account_non_expired,
			account_non_locked, credentials_non_expired, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		ON CONFLICT (username) DO NOTHING
		RETURNING id
	`
	insertRole := `INSERT INTO user_roles (user_id, role, position) VALUES ($1, $2, $3)`

	var id int64
	err := r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		err := executor.QueryRowContext(ctx, insertUser,
			user.Username,
			user.PasswordHash,
			user.Email,
			user.Enabled,
			user.AccountNonExpired,
			user.AccountNonLocked,
			user.CredentialsNonExpired,
			user.CreatedAt,
		).Scan(&id)
		if err != nil {
			return mapInsertError(err, user.Username)
		}

		for i, role := range user.Roles {
			if _, err := executor.ExecContext(ctx, insertRole, id, role, i); err != nil {
				return fmt.Errorf("failed to insert role %s: %w", role, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	user.ID = id
	r.logger.Debug("user created", zap.Int64("id", id), zap.String("username", user.Username))
	return nil
}

// FindByUsername retrieves a user and its roles by exact username
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, COALESCE(email, ''), enabled, account_non_expired,
			account_non_locked, credentials_non_expired, created_at
		FROM users
		WHERE username = $1
	`

	executor := GetExecutor(ctx, r.db)
	user := &models.User{}

	err := executor.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Email,
		&user.Enabled,
		&user.AccountNonExpired,
		&user.AccountNonLocked,
		&user.CredentialsNonExpired,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repositories.ErrNotFound, username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	roles, err := r.rolesFor(ctx, executor, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

// ExistsByUsername reports whether the username is taken
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`

	var exists bool
	if err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) rolesFor(ctx context.Context, executor Executor, userID int64) ([]string, error) {
	query := `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY position`

	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return roles, nil
}

// mapInsertError translates the outcome of the conditional insert. No row
// back means the username already existed; a unique violation can only come
// from the email index since username conflicts are absorbed by ON CONFLICT.
func mapInsertError(err error, username string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", repositories.ErrDuplicate, username)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repositories.ErrDuplicateEmail
	}
	return fmt.Errorf("failed to create user: %w", err)
}

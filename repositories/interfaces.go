package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/tokenauth/models"
)

var (
	// ErrNotFound is returned when no identity matches the lookup
	ErrNotFound = errors.New("user not found")

	// ErrDuplicate is returned when an insert collides with an existing identity
	ErrDuplicate = errors.New("user already exists")

	// ErrDuplicateEmail is returned when the email, not the username, collides.
	// It matches ErrDuplicate under errors.Is.
	ErrDuplicateEmail = fmt.Errorf("%w: email already registered", ErrDuplicate)
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles identity data operations.
// Implementations must be safe for concurrent use and must never hand out
// a pointer that aliases stored state.
type UserRepository interface {
	// Create inserts the user if no identity with the same username exists.
	// The check and the insert are a single atomic step. On success user.ID
	// is set to a newly assigned, never reused id.
	Create(ctx context.Context, user *models.User) error

	// FindByUsername retrieves a user by exact, case-sensitive username
	FindByUsername(ctx context.Context, username string) (*models.User, error)

	// ExistsByUsername reports whether a user with this username exists
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// HealthChecker is implemented by stores that depend on an external service
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users UserRepository
}

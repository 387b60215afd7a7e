package postgres

import (
	"context"

	"github.com/upb/tokenauth/config"
	"github.com/upb/tokenauth/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory owns the connection pool and builds repositories on it
type RepositoryFactory struct {
	db     *DB
	txm    *TransactionManager
	logger *zap.Logger
}

// NewRepositoryFactory connects to the database described by cfg
func NewRepositoryFactory(cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewRepositoryFactoryFromDB(db, logger), nil
}

// NewRepositoryFactoryFromDB builds a factory on an existing pool
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{
		db:     db,
		txm:    NewTransactionManager(db, logger),
		logger: logger,
	}
}

// InitSchema creates the identity tables when missing
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitSchema(ctx)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users: NewUserRepository(f.db, f.txm, f.logger),
	}
}

// GetTransactionManager returns the shared transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return f.txm
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}

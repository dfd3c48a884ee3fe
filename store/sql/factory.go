package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory owns construction of the SQL-backed stores so callers
// wire one dependency instead of each store separately.
type RepositoryFactory struct {
	db *bun.DB

	orderStore     *OrderStore
	retryTaskStore *RetryTaskStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.orderStore != nil && f.retryTaskStore != nil {
		return nil
	}

	orderStore, err := NewOrderStore(f.db)
	if err != nil {
		return err
	}
	retryTaskStore, err := NewRetryTaskStore(f.db)
	if err != nil {
		return err
	}
	f.orderStore = orderStore
	f.retryTaskStore = retryTaskStore
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) OrderStore() *OrderStore {
	if f == nil {
		return nil
	}
	return f.orderStore
}

func (f *RepositoryFactory) RetryTaskStore() *RetryTaskStore {
	if f == nil {
		return nil
	}
	return f.retryTaskStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

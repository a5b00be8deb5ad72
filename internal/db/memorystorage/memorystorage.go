// Package memorystorage provides a purely in-memory storage backend.
// It reuses the jsondb cache without ever touching the filesystem,
// which makes it the default backend for tests and local runs.
package memorystorage

import (
	"context"

	"github.com/yngz/drf-shopping-list/internal/db/jsondb"
	"github.com/yngz/drf-shopping-list/internal/models"
	"github.com/yngz/drf-shopping-list/internal/user"
)

// MemoryStorage wraps a fileless jsondb cache.
type MemoryStorage struct {
	*jsondb.JSONDB
}

// New creates an empty in-memory storage.
func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: &jsondb.JSONDB{
			Cache: jsondb.CacheStruct{
				Users:       map[string]*user.User{},
				Lists:       map[string]*models.ShoppingList{},
				ListMembers: map[string][]string{},
				Items:       map[string]*models.ShoppingItem{},
			},
		},
	}, nil
}

// Close is a no-op since there is no file to flush.
func (theStorage *MemoryStorage) Close() error {
	return nil
}

// Ping always succeeds for the in-memory backend.
func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

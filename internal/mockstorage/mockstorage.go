// Package mockstorage provides a testify-based mock implementation
// of the internal storage interfaces used by the service package.
// It is used for unit testing by simulating storage behavior.
package mockstorage

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/yngz/drf-shopping-list/internal/models"
	"github.com/yngz/drf-shopping-list/internal/user"
)

// StorageMock is a testify mock that implements all interfaces
// used by the service layer for storage operations.
type StorageMock struct {
	mock.Mock
}

// Ping mocks the pinger interface to simulate a health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the storage resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// BeginTransaction mocks the beginning of a transaction.
func (m *StorageMock) BeginTransaction() (*sql.Tx, error) {
	args := m.Called()
	tx, _ := args.Get(0).(*sql.Tx)
	return tx, args.Error(1)
}

// CommitTransaction mocks committing a transaction.
func (m *StorageMock) CommitTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

// RollbackTransaction mocks rolling back a transaction.
func (m *StorageMock) RollbackTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

// CreateUser mocks the registration of a new user.
func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User, tx *sql.Tx) (string, error) {
	args := m.Called(ctx, usr, tx)
	return args.String(0), args.Error(1)
}

// GetUserByID mocks fetching a user by its ID.
func (m *StorageMock) GetUserByID(ctx context.Context, userID string, tx *sql.Tx) (*user.User, error) {
	args := m.Called(ctx, userID, tx)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

// GetNumberOfUsers mocks the user counter of the stats endpoint.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// CreateShoppingList mocks persisting a new shopping list.
func (m *StorageMock) CreateShoppingList(ctx context.Context, list *models.ShoppingList, tx *sql.Tx) error {
	args := m.Called(ctx, list, tx)
	return args.Error(0)
}

// GetShoppingListByID mocks fetching a single shopping list.
func (m *StorageMock) GetShoppingListByID(ctx context.Context, listID string) (*models.ShoppingList, bool, error) {
	args := m.Called(ctx, listID)
	list, _ := args.Get(0).(*models.ShoppingList)
	return list, args.Bool(1), args.Error(2)
}

// GetShoppingListsByMember mocks fetching the lists a user belongs to.
func (m *StorageMock) GetShoppingListsByMember(ctx context.Context, userID string) ([]models.ShoppingList, error) {
	args := m.Called(ctx, userID)
	lists, _ := args.Get(0).([]models.ShoppingList)
	return lists, args.Error(1)
}

// GetAllShoppingLists mocks the administrator view of the collection.
func (m *StorageMock) GetAllShoppingLists(ctx context.Context) ([]models.ShoppingList, error) {
	args := m.Called(ctx)
	lists, _ := args.Get(0).([]models.ShoppingList)
	return lists, args.Error(1)
}

// RenameShoppingList mocks changing a list name.
func (m *StorageMock) RenameShoppingList(ctx context.Context, listID, name string, tx *sql.Tx) error {
	args := m.Called(ctx, listID, name, tx)
	return args.Error(0)
}

// DeleteShoppingList mocks removing a list with its members and items.
func (m *StorageMock) DeleteShoppingList(ctx context.Context, listID string) error {
	args := m.Called(ctx, listID)
	return args.Error(0)
}

// GetNumberOfShoppingLists mocks the list counter of the stats endpoint.
func (m *StorageMock) GetNumberOfShoppingLists(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// AddShoppingListMember mocks adding a user to a list member set.
func (m *StorageMock) AddShoppingListMember(ctx context.Context, listID, userID string, tx *sql.Tx) error {
	args := m.Called(ctx, listID, userID, tx)
	return args.Error(0)
}

// GetShoppingListMembers mocks fetching the member IDs of a list.
func (m *StorageMock) GetShoppingListMembers(ctx context.Context, listID string) ([]string, error) {
	args := m.Called(ctx, listID)
	members, _ := args.Get(0).([]string)
	return members, args.Error(1)
}

// CreateShoppingItem mocks persisting a new shopping item.
func (m *StorageMock) CreateShoppingItem(ctx context.Context, item *models.ShoppingItem, tx *sql.Tx) error {
	args := m.Called(ctx, item, tx)
	return args.Error(0)
}

// GetShoppingItemsByList mocks fetching the items of a list in creation order.
func (m *StorageMock) GetShoppingItemsByList(ctx context.Context, listID string) ([]models.ShoppingItem, error) {
	args := m.Called(ctx, listID)
	items, _ := args.Get(0).([]models.ShoppingItem)
	return items, args.Error(1)
}

// GetShoppingItemByID mocks fetching a single item scoped to its list.
func (m *StorageMock) GetShoppingItemByID(ctx context.Context, listID, itemID string) (*models.ShoppingItem, bool, error) {
	args := m.Called(ctx, listID, itemID)
	item, _ := args.Get(0).(*models.ShoppingItem)
	return item, args.Bool(1), args.Error(2)
}

// UpdateShoppingItem mocks persisting item changes.
func (m *StorageMock) UpdateShoppingItem(ctx context.Context, item *models.ShoppingItem, tx *sql.Tx) error {
	args := m.Called(ctx, item, tx)
	return args.Error(0)
}

// DeleteShoppingItem mocks removing an item from a list.
func (m *StorageMock) DeleteShoppingItem(ctx context.Context, listID, itemID string) error {
	args := m.Called(ctx, listID, itemID)
	return args.Error(0)
}

// IsItemNameTaken mocks the per-list item name uniqueness check.
func (m *StorageMock) IsItemNameTaken(
	ctx context.Context,
	listID string,
	name string,
	excludeItemID string,
	tx *sql.Tx,
) (bool, error) {
	args := m.Called(ctx, listID, name, excludeItemID, tx)
	return args.Bool(0), args.Error(1)
}

// Package storage declares the persistence interface implemented by the
// postgres, JSON file and in-memory backends.
package storage

import (
	"context"
	"database/sql"

	"github.com/yngz/drf-shopping-list/internal/models"
	"github.com/yngz/drf-shopping-list/internal/user"
)

// Storage is the full persistence contract of the service. Methods that take
// a *sql.Tx may run inside an existing transaction; passing nil executes the
// operation standalone. Backends without real transactions accept and ignore
// a nil transaction.
type Storage interface {
	BeginTransaction() (*sql.Tx, error)

	CommitTransaction(transaction *sql.Tx) error

	RollbackTransaction(transaction *sql.Tx) error

	CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) (string, error)

	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)

	CreateShoppingList(
		ctx context.Context,
		list *models.ShoppingList,
		transaction *sql.Tx,
	) error

	GetShoppingListByID(ctx context.Context, listID string) (*models.ShoppingList, bool, error)

	// GetShoppingListsByMember returns the lists the user belongs to with the
	// LastActivityAt field populated. No ordering is guaranteed.
	GetShoppingListsByMember(ctx context.Context, userID string) ([]models.ShoppingList, error)

	// GetAllShoppingLists returns every list with LastActivityAt populated.
	// Used for administrator collection reads.
	GetAllShoppingLists(ctx context.Context) ([]models.ShoppingList, error)

	RenameShoppingList(
		ctx context.Context,
		listID string,
		name string,
		transaction *sql.Tx,
	) error

	// DeleteShoppingList removes the list together with its membership rows
	// and items.
	DeleteShoppingList(ctx context.Context, listID string) error

	GetNumberOfShoppingLists(ctx context.Context) (int64, error)

	AddShoppingListMember(
		ctx context.Context,
		listID string,
		userID string,
		transaction *sql.Tx,
	) error

	GetShoppingListMembers(ctx context.Context, listID string) ([]string, error)

	CreateShoppingItem(
		ctx context.Context,
		item *models.ShoppingItem,
		transaction *sql.Tx,
	) error

	// GetShoppingItemsByList returns the items of the list in creation order.
	GetShoppingItemsByList(ctx context.Context, listID string) ([]models.ShoppingItem, error)

	GetShoppingItemByID(
		ctx context.Context,
		listID string,
		itemID string,
	) (*models.ShoppingItem, bool, error)

	UpdateShoppingItem(
		ctx context.Context,
		item *models.ShoppingItem,
		transaction *sql.Tx,
	) error

	DeleteShoppingItem(ctx context.Context, listID, itemID string) error

	// IsItemNameTaken reports whether another item on the list already uses
	// the name (case-sensitive). excludeItemID may name an item to skip,
	// which makes the check usable for updates.
	IsItemNameTaken(
		ctx context.Context,
		listID string,
		name string,
		excludeItemID string,
		transaction *sql.Tx,
	) (bool, error)

	Ping(ctx context.Context) error

	Close() error
}

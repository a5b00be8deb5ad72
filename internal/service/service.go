// Package service implements the business rules of the shopping list API:
// membership-based access control, last-activity ordering of the list
// collection, truncation of the unpurchased items preview, and the per-list
// item name uniqueness invariant.
package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/yngz/drf-shopping-list/internal/models"
	"github.com/yngz/drf-shopping-list/internal/user"
)

// MaxUnpurchasedItemsInDetail caps the unpurchased items preview of the
// list detail endpoint. The preview truncates; it never filters the
// underlying collection.
const MaxUnpurchasedItemsInDetail = 3

type transactioner interface {
	BeginTransaction() (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error
}

type usersKeeper interface {
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type listsKeeper interface {
	CreateShoppingList(ctx context.Context, list *models.ShoppingList, transaction *sql.Tx) error

	GetShoppingListByID(ctx context.Context, listID string) (*models.ShoppingList, bool, error)

	GetShoppingListsByMember(ctx context.Context, userID string) ([]models.ShoppingList, error)

	GetAllShoppingLists(ctx context.Context) ([]models.ShoppingList, error)

	RenameShoppingList(ctx context.Context, listID, name string, transaction *sql.Tx) error

	DeleteShoppingList(ctx context.Context, listID string) error

	GetNumberOfShoppingLists(ctx context.Context) (int64, error)

	AddShoppingListMember(ctx context.Context, listID, userID string, transaction *sql.Tx) error

	GetShoppingListMembers(ctx context.Context, listID string) ([]string, error)
}

type itemsKeeper interface {
	CreateShoppingItem(ctx context.Context, item *models.ShoppingItem, transaction *sql.Tx) error

	GetShoppingItemsByList(ctx context.Context, listID string) ([]models.ShoppingItem, error)

	GetShoppingItemByID(ctx context.Context, listID, itemID string) (*models.ShoppingItem, bool, error)

	UpdateShoppingItem(ctx context.Context, item *models.ShoppingItem, transaction *sql.Tx) error

	DeleteShoppingItem(ctx context.Context, listID, itemID string) error

	IsItemNameTaken(
		ctx context.Context,
		listID string,
		name string,
		excludeItemID string,
		transaction *sql.Tx,
	) (bool, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	transactioner
	usersKeeper
	listsKeeper
	itemsKeeper
	pinger
}

// ErrForbidden is returned when the acting user is neither a member of the
// target list nor an administrator.
var ErrForbidden = errors.New("user is not a member of the shopping list")

// ErrShoppingListNotFound is returned for unknown list IDs.
var ErrShoppingListNotFound = errors.New("shopping list not found")

// ErrShoppingItemNotFound is returned for unknown item IDs within a list.
var ErrShoppingItemNotFound = errors.New("shopping item not found")

// ErrDuplicateItemName is returned when an item name collides with another
// item on the same list.
var ErrDuplicateItemName = errors.New("an item with this name already exists on the list")

// ErrUserNotFound is returned by the membership endpoint for unknown user IDs.
var ErrUserNotFound = errors.New("user not found")

type Service struct {
	db storage
}

func New(db storage) *Service {
	return &Service{db: db}
}

// CreateShoppingList creates a list and adds the creator as its first
// member within the same transaction.
func (s *Service) CreateShoppingList(ctx context.Context, userID, name string) (*models.ShoppingList, error) {
	tx, err := s.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.db.RollbackTransaction(tx)
	}()

	list := &models.ShoppingList{Name: name}
	if err := s.db.CreateShoppingList(ctx, list, tx); err != nil {
		return nil, err
	}

	if err := s.db.AddShoppingListMember(ctx, list.ID, userID, tx); err != nil {
		return nil, err
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return nil, err
	}

	list.Members = []string{userID}

	return list, nil
}

// GetShoppingLists returns the lists visible to the user ordered by
// descending last-activity time. Administrators see every list.
func (s *Service) GetShoppingLists(ctx context.Context, userID string) ([]models.ShoppingList, error) {
	usr, err := s.db.GetUserByID(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	var lists []models.ShoppingList
	if usr.IsAdmin {
		lists, err = s.db.GetAllShoppingLists(ctx)
	} else {
		lists, err = s.db.GetShoppingListsByMember(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(lists, func(i, j int) bool {
		if lists[i].LastActivityAt != lists[j].LastActivityAt {
			return lists[i].LastActivityAt > lists[j].LastActivityAt
		}
		return lists[i].CreatedAt > lists[j].CreatedAt
	})

	return lists, nil
}

// GetShoppingList returns a single list after the membership check.
func (s *Service) GetShoppingList(ctx context.Context, userID, listID string) (*models.ShoppingList, error) {
	return s.ensureCanAccessList(ctx, userID, listID)
}

// GetShoppingListDetail returns the list together with its unpurchased
// items preview: the first MaxUnpurchasedItemsInDetail unpurchased items in
// creation order, scoped strictly to this list.
func (s *Service) GetShoppingListDetail(
	ctx context.Context,
	userID string,
	listID string,
) (*models.ShoppingList, []models.ShoppingItem, error) {
	list, err := s.ensureCanAccessList(ctx, userID, listID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.db.GetShoppingItemsByList(ctx, listID)
	if err != nil {
		return nil, nil, err
	}

	unpurchased := funk.Filter(items, func(item models.ShoppingItem) bool {
		return !item.Purchased
	}).([]models.ShoppingItem)
	if len(unpurchased) > MaxUnpurchasedItemsInDetail {
		unpurchased = unpurchased[:MaxUnpurchasedItemsInDetail]
	}

	return list, unpurchased, nil
}

// RenameShoppingList changes the list name on behalf of a member.
func (s *Service) RenameShoppingList(ctx context.Context, userID, listID, name string) (*models.ShoppingList, error) {
	list, err := s.ensureCanAccessList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}

	if err := s.db.RenameShoppingList(ctx, listID, name, nil); err != nil {
		return nil, err
	}
	list.Name = name

	return list, nil
}

// DeleteShoppingList removes the list and everything it owns.
func (s *Service) DeleteShoppingList(ctx context.Context, userID, listID string) error {
	if _, err := s.ensureCanAccessList(ctx, userID, listID); err != nil {
		return err
	}

	return s.db.DeleteShoppingList(ctx, listID)
}

// AddShoppingListMember adds another existing user to the list member set.
func (s *Service) AddShoppingListMember(ctx context.Context, userID, listID, newMemberID string) error {
	if _, err := s.ensureCanAccessList(ctx, userID, listID); err != nil {
		return err
	}

	if _, err := uuid.Parse(newMemberID); err != nil {
		return ErrUserNotFound
	}

	newMember, err := s.db.GetUserByID(ctx, newMemberID, nil)
	if err != nil {
		return err
	}
	if newMember.ID == "" {
		return ErrUserNotFound
	}

	return s.db.AddShoppingListMember(ctx, listID, newMemberID, nil)
}

// GetShoppingItems returns all items of the list in creation order.
func (s *Service) GetShoppingItems(ctx context.Context, userID, listID string) ([]models.ShoppingItem, error) {
	if _, err := s.ensureCanAccessList(ctx, userID, listID); err != nil {
		return nil, err
	}

	return s.db.GetShoppingItemsByList(ctx, listID)
}

// CreateShoppingItem adds an item to the list. A name already present on
// the list is rejected with ErrDuplicateItemName and leaves the store
// untouched.
func (s *Service) CreateShoppingItem(
	ctx context.Context,
	userID string,
	listID string,
	name string,
	purchased bool,
) (*models.ShoppingItem, error) {
	if _, err := s.ensureCanAccessList(ctx, userID, listID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.db.RollbackTransaction(tx)
	}()

	taken, err := s.db.IsItemNameTaken(ctx, listID, name, "", tx)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateItemName
	}

	item := &models.ShoppingItem{
		ListID:    listID,
		Name:      name,
		Purchased: purchased,
	}
	if err := s.db.CreateShoppingItem(ctx, item, tx); err != nil {
		return nil, err
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return nil, err
	}

	return item, nil
}

// GetShoppingItem returns a single item scoped to the (list, item) pair.
func (s *Service) GetShoppingItem(ctx context.Context, userID, listID, itemID string) (*models.ShoppingItem, error) {
	if _, err := s.ensureCanAccessList(ctx, userID, listID); err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(itemID); err != nil {
		return nil, ErrShoppingItemNotFound
	}

	item, found, err := s.db.GetShoppingItemByID(ctx, listID, itemID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrShoppingItemNotFound
	}

	return item, nil
}

// UpdateShoppingItem applies the supplied fields to the item. A nil field
// leaves the stored value unchanged, which covers both full and partial
// updates. Every successful call bumps the item's modification time and
// with it the parent list's last-activity ordering.
func (s *Service) UpdateShoppingItem(
	ctx context.Context,
	userID string,
	listID string,
	itemID string,
	name *string,
	purchased *bool,
) (*models.ShoppingItem, error) {
	if _, err := s.ensureCanAccessList(ctx, userID, listID); err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(itemID); err != nil {
		return nil, ErrShoppingItemNotFound
	}

	tx, err := s.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.db.RollbackTransaction(tx)
	}()

	item, found, err := s.db.GetShoppingItemByID(ctx, listID, itemID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrShoppingItemNotFound
	}

	if name != nil && *name != item.Name {
		taken, err := s.db.IsItemNameTaken(ctx, listID, *name, itemID, tx)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrDuplicateItemName
		}
		item.Name = *name
	}
	if purchased != nil {
		item.Purchased = *purchased
	}
	item.UpdatedAt = time.Now().UnixNano()

	if err := s.db.UpdateShoppingItem(ctx, item, tx); err != nil {
		return nil, err
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return nil, err
	}

	return item, nil
}

// DeleteShoppingItem removes an item on behalf of a member.
func (s *Service) DeleteShoppingItem(ctx context.Context, userID, listID, itemID string) error {
	if _, err := s.ensureCanAccessList(ctx, userID, listID); err != nil {
		return err
	}

	if _, err := uuid.Parse(itemID); err != nil {
		return ErrShoppingItemNotFound
	}

	_, found, err := s.db.GetShoppingItemByID(ctx, listID, itemID)
	if err != nil {
		return err
	}
	if !found {
		return ErrShoppingItemNotFound
	}

	return s.db.DeleteShoppingItem(ctx, listID, itemID)
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetInternalStats returns service-wide counters.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	lists, err := s.db.GetNumberOfShoppingLists(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		ShoppingLists: lists,
		Users:         users,
	}, nil
}

// ensureCanAccessList loads the list and verifies the acting user is a
// member or an administrator. An unknown list yields
// ErrShoppingListNotFound before any membership consideration.
// IDs come straight from URL paths; anything that is not a UUID is
// treated as unknown instead of being handed to the storage backend.
func (s *Service) ensureCanAccessList(ctx context.Context, userID, listID string) (*models.ShoppingList, error) {
	if _, err := uuid.Parse(listID); err != nil {
		return nil, ErrShoppingListNotFound
	}

	list, found, err := s.db.GetShoppingListByID(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrShoppingListNotFound
	}

	usr, err := s.db.GetUserByID(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if usr.IsAdmin {
		return list, nil
	}

	members, err := s.db.GetShoppingListMembers(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !funk.ContainsString(members, userID) {
		return nil, ErrForbidden
	}
	list.Members = members

	return list, nil
}

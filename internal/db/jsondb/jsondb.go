// Package jsondb provides a JSON-file-backed implementation of the storage
// interface. The whole dataset is kept in memory and flushed to the file on
// Close(). Transaction methods are no-ops since every mutation is applied to
// the in-memory cache directly.
package jsondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yngz/drf-shopping-list/internal/models"
	"github.com/yngz/drf-shopping-list/internal/user"
)

// CacheStruct is the serialized shape of the database file.
type CacheStruct struct {
	Users       map[string]*user.User
	Lists       map[string]*models.ShoppingList
	ListMembers map[string][]string
	Items       map[string]*models.ShoppingItem
}

// JSONDB keeps the whole dataset in memory and persists it as a JSON file.
type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

func emptyCache() CacheStruct {
	return CacheStruct{
		Users:       map[string]*user.User{},
		Lists:       map[string]*models.ShoppingList{},
		ListMembers: map[string][]string{},
		Items:       map[string]*models.ShoppingItem{},
	}
}

func initDBFile(fileName string) error {
	dbFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(dbFile, `{
	"Users": {},
	"Lists": {},
	"ListMembers": {},
	"Items": {}
}`)
	if err != nil {
		return err
	}
	return dbFile.Close()
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %s", err)
	}

	file, err2 := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err2 != nil {
		return fmt.Errorf("error opening file: %s", err2)
	}
	defer file.Close()

	_, err = file.Write(jsonData)
	if err != nil {
		return fmt.Errorf("error writing to file: %s", err)
	}

	return nil
}

func parseJSONFile(fileName string, cacheMap *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(cacheMap)
	if err != nil {
		return err
	}

	return nil
}

// New loads the database file, creating it when absent.
func New(fileName string) (*JSONDB, error) {
	theDB := JSONDB{
		fileName: fileName,
		Cache:    emptyCache(),
	}

	err := parseJSONFile(theDB.fileName, &theDB.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		err := initDBFile(fileName)
		if err != nil {
			return nil, err
		}
		err = parseJSONFile(theDB.fileName, &theDB.Cache)
		if err != nil {
			return nil, err
		}
	}

	return &theDB, nil
}

// BeginTransaction is a no-op for the file backend.
func (db *JSONDB) BeginTransaction() (*sql.Tx, error) {
	return nil, nil
}

// CommitTransaction is a no-op for the file backend.
func (db *JSONDB) CommitTransaction(transaction *sql.Tx) error {
	return nil
}

// RollbackTransaction is a no-op for the file backend.
func (db *JSONDB) RollbackTransaction(transaction *sql.Tx) error {
	return nil
}

// Ping always succeeds for the file backend.
func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close flushes the in-memory cache to the database file.
func (db *JSONDB) Close() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return writeToJSONFile(db.fileName, db.Cache)
}

// CreateUser stores a new user, assigning an ID when none is set.
func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	db.Cache.Users[usr.ID] = &user.User{ID: usr.ID, IsAdmin: usr.IsAdmin}

	return usr.ID, nil
}

// GetUserByID fetches a user. An unknown ID yields a user with an empty ID
// field rather than an error, mirroring the postgres backend.
func (db *JSONDB) GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	usr, found := db.Cache.Users[userID]
	if !found {
		return &user.User{ID: ""}, nil
	}

	return &user.User{ID: usr.ID, IsAdmin: usr.IsAdmin}, nil
}

// GetNumberOfUsers returns the user count.
func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

// CreateShoppingList stores a new list, assigning ID and CreatedAt when unset.
func (db *JSONDB) CreateShoppingList(
	ctx context.Context,
	list *models.ShoppingList,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if list.ID == "" {
		list.ID = uuid.New().String()
	}
	if list.CreatedAt == 0 {
		list.CreatedAt = time.Now().UnixNano()
	}
	db.Cache.Lists[list.ID] = &models.ShoppingList{
		ID:        list.ID,
		Name:      list.Name,
		CreatedAt: list.CreatedAt,
	}

	return nil
}

func (db *JSONDB) lastActivityAt(list *models.ShoppingList) int64 {
	lastActivity := list.CreatedAt
	for _, item := range db.Cache.Items {
		if item.ListID == list.ID && item.UpdatedAt > lastActivity {
			lastActivity = item.UpdatedAt
		}
	}

	return lastActivity
}

// GetShoppingListByID fetches a single list.
func (db *JSONDB) GetShoppingListByID(ctx context.Context, listID string) (*models.ShoppingList, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	list, found := db.Cache.Lists[listID]
	if !found {
		return nil, false, nil
	}

	result := *list
	result.LastActivityAt = db.lastActivityAt(list)

	return &result, true, nil
}

// GetShoppingListsByMember returns the lists the user is a member of.
func (db *JSONDB) GetShoppingListsByMember(ctx context.Context, userID string) ([]models.ShoppingList, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []models.ShoppingList{}
	for listID, members := range db.Cache.ListMembers {
		for _, memberID := range members {
			if memberID != userID {
				continue
			}
			list, found := db.Cache.Lists[listID]
			if !found {
				continue
			}
			withActivity := *list
			withActivity.LastActivityAt = db.lastActivityAt(list)
			result = append(result, withActivity)
			break
		}
	}

	return result, nil
}

// GetAllShoppingLists returns every stored list.
func (db *JSONDB) GetAllShoppingLists(ctx context.Context) ([]models.ShoppingList, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []models.ShoppingList{}
	for _, list := range db.Cache.Lists {
		withActivity := *list
		withActivity.LastActivityAt = db.lastActivityAt(list)
		result = append(result, withActivity)
	}

	return result, nil
}

// RenameShoppingList changes the list name.
func (db *JSONDB) RenameShoppingList(
	ctx context.Context,
	listID string,
	name string,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	list, found := db.Cache.Lists[listID]
	if !found {
		return nil
	}
	list.Name = name

	return nil
}

// DeleteShoppingList removes the list, its membership rows and its items.
func (db *JSONDB) DeleteShoppingList(ctx context.Context, listID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.Cache.Lists, listID)
	delete(db.Cache.ListMembers, listID)
	for itemID, item := range db.Cache.Items {
		if item.ListID == listID {
			delete(db.Cache.Items, itemID)
		}
	}

	return nil
}

// GetNumberOfShoppingLists returns the list count.
func (db *JSONDB) GetNumberOfShoppingLists(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Lists)), nil
}

// AddShoppingListMember adds a user to the list member set. Adding an
// existing member is a no-op.
func (db *JSONDB) AddShoppingListMember(
	ctx context.Context,
	listID string,
	userID string,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, memberID := range db.Cache.ListMembers[listID] {
		if memberID == userID {
			return nil
		}
	}
	db.Cache.ListMembers[listID] = append(db.Cache.ListMembers[listID], userID)

	return nil
}

// GetShoppingListMembers returns the member IDs of the list.
func (db *JSONDB) GetShoppingListMembers(ctx context.Context, listID string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	members := db.Cache.ListMembers[listID]
	result := make([]string, len(members))
	copy(result, members)

	return result, nil
}

// CreateShoppingItem stores a new item, assigning ID and timestamps when unset.
func (db *JSONDB) CreateShoppingItem(
	ctx context.Context,
	item *models.ShoppingItem,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().UnixNano()
	}
	if item.UpdatedAt == 0 {
		item.UpdatedAt = item.CreatedAt
	}
	stored := *item
	db.Cache.Items[item.ID] = &stored

	return nil
}

// GetShoppingItemsByList returns the items of the list in creation order.
func (db *JSONDB) GetShoppingItemsByList(ctx context.Context, listID string) ([]models.ShoppingItem, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []models.ShoppingItem{}
	for _, item := range db.Cache.Items {
		if item.ListID == listID {
			result = append(result, *item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// GetShoppingItemByID fetches an item scoped to the (list, item) pair.
func (db *JSONDB) GetShoppingItemByID(
	ctx context.Context,
	listID string,
	itemID string,
) (*models.ShoppingItem, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	item, found := db.Cache.Items[itemID]
	if !found || item.ListID != listID {
		return nil, false, nil
	}

	result := *item
	return &result, true, nil
}

// UpdateShoppingItem overwrites the stored item.
func (db *JSONDB) UpdateShoppingItem(
	ctx context.Context,
	item *models.ShoppingItem,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, found := db.Cache.Items[item.ID]
	if !found || stored.ListID != item.ListID {
		return nil
	}
	updated := *item
	db.Cache.Items[item.ID] = &updated

	return nil
}

// DeleteShoppingItem removes an item scoped to the (list, item) pair.
func (db *JSONDB) DeleteShoppingItem(ctx context.Context, listID, itemID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	item, found := db.Cache.Items[itemID]
	if found && item.ListID == listID {
		delete(db.Cache.Items, itemID)
	}

	return nil
}

// IsItemNameTaken reports whether the list already has an item with the
// name. The comparison is case-sensitive.
func (db *JSONDB) IsItemNameTaken(
	ctx context.Context,
	listID string,
	name string,
	excludeItemID string,
	transaction *sql.Tx,
) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, item := range db.Cache.Items {
		if item.ListID == listID && item.Name == name && item.ID != excludeItemID {
			return true, nil
		}
	}

	return false, nil
}

// Package postgresdb provides a PostgreSQL-based implementation of the storage
// interface for persisting users, shopping lists, list memberships and items.
// It runs goose migrations on startup and supports transactional operations.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/thoas/go-funk"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yngz/drf-shopping-list/internal/models"
	"github.com/yngz/drf-shopping-list/internal/user"
)

// PostgresDB is a PostgreSQL-backed implementation of the shopping list
// storage. It handles all persistence operations via a database/sql
// connection using the pgx driver.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

// BeginTransaction starts a new SQL transaction and returns it.
// The caller is responsible for committing or rolling it back.
func (db *PostgresDB) BeginTransaction() (*sql.Tx, error) {
	return db.database.Begin()
}

// CommitTransaction commits the given SQL transaction.
func (db *PostgresDB) CommitTransaction(transaction *sql.Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while committing transaction: %v", r)
		}
	}()

	return transaction.Commit()
}

// RollbackTransaction rolls back the given SQL transaction.
func (db *PostgresDB) RollbackTransaction(transaction *sql.Tx) error {
	return transaction.Rollback()
}

func (db *PostgresDB) queryerFor(transaction *sql.Tx) queryer {
	if transaction == nil {
		return db.database
	}
	return transaction
}

func (db *PostgresDB) executorFor(transaction *sql.Tx) executor {
	if transaction == nil {
		return db.database
	}
	return transaction
}

// CreateUser inserts a new user record into the database.
// Returns the created user ID or an error if insertion fails.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) (string, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}

	_, err := db.executorFor(transaction).ExecContext(
		ctx,
		`INSERT INTO users (id, is_admin) VALUES ($1, $2)`,
		usr.ID,
		usr.IsAdmin,
	)
	if err != nil {
		return "", err
	}

	return usr.ID, nil
}

// GetUserByID fetches a user by their UUID from the database.
// If the user does not exist, it returns a user with an empty ID field.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error) {
	if userID == "" {
		return &user.User{ID: ""}, nil
	}

	row := db.queryerFor(transaction).QueryRowContext(
		ctx,
		`SELECT id, is_admin FROM users WHERE id = $1`,
		userID,
	)
	result := &user.User{}
	err := row.Scan(&result.ID, &result.IsAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &user.User{ID: ""}, nil
		}
		return &user.User{ID: ""}, err
	}

	return result, nil
}

// GetNumberOfUsers returns the total number of registered users.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	row := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// CreateShoppingList inserts a new shopping list, assigning ID and
// CreatedAt when they are unset.
func (db *PostgresDB) CreateShoppingList(
	ctx context.Context,
	list *models.ShoppingList,
	transaction *sql.Tx,
) error {
	if list.ID == "" {
		list.ID = uuid.New().String()
	}
	if list.CreatedAt == 0 {
		list.CreatedAt = time.Now().UnixNano()
	}

	_, err := db.executorFor(transaction).ExecContext(
		ctx,
		`INSERT INTO shopping_lists (id, name, created_at) VALUES ($1, $2, $3)`,
		list.ID,
		list.Name,
		list.CreatedAt,
	)

	return err
}

// GetShoppingListByID fetches a single list with its last-activity time.
func (db *PostgresDB) GetShoppingListByID(ctx context.Context, listID string) (*models.ShoppingList, bool, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			SELECT l.id,
			       l.name,
			       l.created_at,
			       GREATEST(l.created_at, COALESCE(MAX(i.updated_at), l.created_at))
			  FROM shopping_lists l
			  LEFT JOIN shopping_items i ON i.list_id = l.id
			 WHERE l.id = $1
			 GROUP BY l.id, l.name, l.created_at
		`,
		listID,
	)
	list := &models.ShoppingList{}
	err := row.Scan(&list.ID, &list.Name, &list.CreatedAt, &list.LastActivityAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return list, true, nil
}

func (db *PostgresDB) queryLists(ctx context.Context, query string, args ...interface{}) ([]models.ShoppingList, error) {
	rows, err := db.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.ShoppingList{}
	for rows.Next() {
		list := models.ShoppingList{}
		err = rows.Scan(&list.ID, &list.Name, &list.CreatedAt, &list.LastActivityAt)
		if err != nil {
			return nil, err
		}
		result = append(result, list)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetShoppingListsByMember returns the lists the user belongs to,
// each with its last-activity time computed from the contained items.
func (db *PostgresDB) GetShoppingListsByMember(ctx context.Context, userID string) ([]models.ShoppingList, error) {
	return db.queryLists(
		ctx,
		`
			SELECT l.id,
			       l.name,
			       l.created_at,
			       GREATEST(l.created_at, COALESCE(MAX(i.updated_at), l.created_at)) AS last_activity_at
			  FROM shopping_lists l
			  JOIN shopping_list_members m ON m.list_id = l.id AND m.user_id = $1
			  LEFT JOIN shopping_items i ON i.list_id = l.id
			 GROUP BY l.id, l.name, l.created_at
		`,
		userID,
	)
}

// GetAllShoppingLists returns every list with its last-activity time.
func (db *PostgresDB) GetAllShoppingLists(ctx context.Context) ([]models.ShoppingList, error) {
	return db.queryLists(
		ctx,
		`
			SELECT l.id,
			       l.name,
			       l.created_at,
			       GREATEST(l.created_at, COALESCE(MAX(i.updated_at), l.created_at)) AS last_activity_at
			  FROM shopping_lists l
			  LEFT JOIN shopping_items i ON i.list_id = l.id
			 GROUP BY l.id, l.name, l.created_at
		`,
	)
}

// RenameShoppingList changes the list name.
func (db *PostgresDB) RenameShoppingList(
	ctx context.Context,
	listID string,
	name string,
	transaction *sql.Tx,
) error {
	_, err := db.executorFor(transaction).ExecContext(
		ctx,
		`UPDATE shopping_lists SET name = $1 WHERE id = $2`,
		name,
		listID,
	)

	return err
}

// DeleteShoppingList removes the list. Membership rows and items are
// removed by the ON DELETE CASCADE constraints.
func (db *PostgresDB) DeleteShoppingList(ctx context.Context, listID string) error {
	_, err := db.database.ExecContext(
		ctx,
		`DELETE FROM shopping_lists WHERE id = $1`,
		listID,
	)

	return err
}

// GetNumberOfShoppingLists returns the total number of shopping lists.
func (db *PostgresDB) GetNumberOfShoppingLists(ctx context.Context) (int64, error) {
	row := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM shopping_lists`)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// AddShoppingListMember adds a user to the list member set.
// Adding an existing member is a no-op.
func (db *PostgresDB) AddShoppingListMember(
	ctx context.Context,
	listID string,
	userID string,
	transaction *sql.Tx,
) error {
	_, err := db.executorFor(transaction).ExecContext(
		ctx,
		`
			INSERT INTO shopping_list_members (list_id, user_id)
				VALUES ($1, $2)
				ON CONFLICT (list_id, user_id) DO NOTHING
		`,
		listID,
		userID,
	)

	return err
}

// GetShoppingListMembers returns the member IDs of the list.
func (db *PostgresDB) GetShoppingListMembers(ctx context.Context, listID string) ([]string, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`SELECT user_id FROM shopping_list_members WHERE list_id = $1`,
		listID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var memberID string
		err = rows.Scan(&memberID)
		if err != nil {
			return nil, err
		}
		result = append(result, memberID)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return funk.UniqString(result), nil
}

// CreateShoppingItem inserts a new item, assigning ID and timestamps
// when they are unset.
func (db *PostgresDB) CreateShoppingItem(
	ctx context.Context,
	item *models.ShoppingItem,
	transaction *sql.Tx,
) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().UnixNano()
	}
	if item.UpdatedAt == 0 {
		item.UpdatedAt = item.CreatedAt
	}

	_, err := db.executorFor(transaction).ExecContext(
		ctx,
		`
			INSERT INTO shopping_items (id, list_id, name, purchased, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
		`,
		item.ID,
		item.ListID,
		item.Name,
		item.Purchased,
		item.CreatedAt,
		item.UpdatedAt,
	)

	return err
}

// GetShoppingItemsByList returns the items of the list in creation order.
func (db *PostgresDB) GetShoppingItemsByList(ctx context.Context, listID string) ([]models.ShoppingItem, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT id, list_id, name, purchased, created_at, updated_at
			  FROM shopping_items
			 WHERE list_id = $1
			 ORDER BY created_at, id
		`,
		listID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.ShoppingItem{}
	for rows.Next() {
		item := models.ShoppingItem{}
		err = rows.Scan(&item.ID, &item.ListID, &item.Name, &item.Purchased, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetShoppingItemByID fetches an item scoped to the (list, item) pair.
func (db *PostgresDB) GetShoppingItemByID(
	ctx context.Context,
	listID string,
	itemID string,
) (*models.ShoppingItem, bool, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			SELECT id, list_id, name, purchased, created_at, updated_at
			  FROM shopping_items
			 WHERE list_id = $1 AND id = $2
		`,
		listID,
		itemID,
	)
	item := &models.ShoppingItem{}
	err := row.Scan(&item.ID, &item.ListID, &item.Name, &item.Purchased, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return item, true, nil
}

// UpdateShoppingItem overwrites the stored item fields.
func (db *PostgresDB) UpdateShoppingItem(
	ctx context.Context,
	item *models.ShoppingItem,
	transaction *sql.Tx,
) error {
	_, err := db.executorFor(transaction).ExecContext(
		ctx,
		`
			UPDATE shopping_items
			   SET name = $1, purchased = $2, updated_at = $3
			 WHERE list_id = $4 AND id = $5
		`,
		item.Name,
		item.Purchased,
		item.UpdatedAt,
		item.ListID,
		item.ID,
	)

	return err
}

// DeleteShoppingItem removes an item scoped to the (list, item) pair.
func (db *PostgresDB) DeleteShoppingItem(ctx context.Context, listID, itemID string) error {
	_, err := db.database.ExecContext(
		ctx,
		`DELETE FROM shopping_items WHERE list_id = $1 AND id = $2`,
		listID,
		itemID,
	)

	return err
}

// IsItemNameTaken reports whether another item on the list already uses the
// name. The unique index on (list_id, name) backs the same invariant at the
// schema level.
func (db *PostgresDB) IsItemNameTaken(
	ctx context.Context,
	listID string,
	name string,
	excludeItemID string,
	transaction *sql.Tx,
) (bool, error) {
	row := db.queryerFor(transaction).QueryRowContext(
		ctx,
		`
			SELECT COUNT(*)
			  FROM shopping_items
			 WHERE list_id = $1
			   AND name = $2
			   AND ($3 = '' OR id::text <> $3)
		`,
		listID,
		name,
		excludeItemID,
	)
	var count int
	err := row.Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, err
	}

	return count > 0, nil
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}

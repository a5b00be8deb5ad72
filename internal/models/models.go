// Package models contains the domain entities of the shopping list service
// and the request/response structures of its JSON API.
package models

// ShoppingList is a shopping list shared between its members.
type ShoppingList struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// CreatedAt is a unix timestamp in nanoseconds.
	CreatedAt int64 `json:"created_at"`

	// Members holds the IDs of the users allowed to read and mutate the list.
	Members []string `json:"-"`

	// LastActivityAt is derived: the maximum of CreatedAt and the
	// modification timestamps of the contained items. It drives the
	// ordering of the collection endpoint and is never persisted.
	LastActivityAt int64 `json:"-"`
}

// ShoppingItem belongs to exactly one shopping list.
// Its name is unique within the list (case-sensitive).
type ShoppingItem struct {
	ID        string `json:"id"`
	ListID    string `json:"list_id"`
	Name      string `json:"name"`
	Purchased bool   `json:"purchased"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// CreateShoppingListRequest is the payload of POST /api/shopping-lists.
type CreateShoppingListRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateShoppingListRequest is the payload of a full shopping list update.
type UpdateShoppingListRequest struct {
	Name string `json:"name" validate:"required"`
}

// PatchShoppingListRequest is the payload of a partial shopping list update.
// A missing name is a no-op.
type PatchShoppingListRequest struct {
	Name *string `json:"name"`
}

// CreateShoppingItemRequest is the payload of item creation and of a full
// item update. Both fields are required; Purchased is a pointer so that an
// explicit false still validates.
type CreateShoppingItemRequest struct {
	Name      string `json:"name" validate:"required"`
	Purchased *bool  `json:"purchased" validate:"required"`
}

// PatchShoppingItemRequest is the payload of a partial item update.
// Either field may be supplied independently.
type PatchShoppingItemRequest struct {
	Name      *string `json:"name"`
	Purchased *bool   `json:"purchased"`
}

// AddMemberRequest is the payload of the membership endpoint.
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// ShoppingListSummary is one element of the collection endpoint.
type ShoppingListSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ShoppingListsResponse wraps the collection endpoint results.
type ShoppingListsResponse struct {
	Results []ShoppingListSummary `json:"results"`
}

// ShoppingItemResponse is the serialized form of a single item.
type ShoppingItemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Purchased bool   `json:"purchased"`
}

// ShoppingItemsResponse wraps the item collection endpoint results.
type ShoppingItemsResponse struct {
	Results []ShoppingItemResponse `json:"results"`
}

// ShoppingListDetailResponse is the serialized form of the list detail
// endpoint. UnpurchasedItems holds at most the first three unpurchased
// items of the list in creation order.
type ShoppingListDetailResponse struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	UnpurchasedItems []ShoppingItemResponse `json:"unpurchased_items"`
}

// InternalStatsResponse reports service-wide counters for the
// trusted-subnet stats endpoint.
type InternalStatsResponse struct {
	ShoppingLists int64 `json:"shopping_lists"`
	Users         int64 `json:"users"`
}

// ValidationErrorResponse carries field-level detail for 400 responses.
type ValidationErrorResponse struct {
	Errors map[string]string `json:"errors"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

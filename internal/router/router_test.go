package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yngz/drf-shopping-list/internal/auth"
	"github.com/yngz/drf-shopping-list/internal/authenticator"
	"github.com/yngz/drf-shopping-list/internal/config"
	"github.com/yngz/drf-shopping-list/internal/db/memorystorage"
	"github.com/yngz/drf-shopping-list/internal/db/storage"
	"github.com/yngz/drf-shopping-list/internal/ipchecker"
	"github.com/yngz/drf-shopping-list/internal/logger"
	"github.com/yngz/drf-shopping-list/internal/models"
	"github.com/yngz/drf-shopping-list/internal/service"
	"github.com/yngz/drf-shopping-list/internal/user"
)

type mockAuth struct{}

func (m *mockAuth) AuthenticateUser(h http.Handler) http.Handler {
	return h
}

func (m *mockAuth) RegisterNewUser(h http.Handler) http.Handler {
	return h
}

type initOption func(*initOptions)

type initOptions struct {
	mockAuth      bool
	trustedSubnet string
}

func withMockAuth(value bool) initOption {
	return func(options *initOptions) {
		options.mockAuth = value
	}
}

func withTrustedSubnet(value string) initOption {
	return func(options *initOptions) {
		options.trustedSubnet = value
	}
}

func setupTestRouter(t *testing.T, optionsProto ...initOption) (*httptest.Server, storage.Storage, *chi.Mux) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	if t != nil {
		require.NoError(t, err)
	}

	db, err := memorystorage.New()
	if t != nil {
		require.NoError(t, err)
	}

	var authMiddleware authenticator.Authenticator
	if options.mockAuth {
		authMiddleware = &mockAuth{}
	} else {
		authKey, err := base64.URLEncoding.DecodeString(cfg.AuthCookieSigningSecretKey)
		if t != nil {
			require.NoError(t, err)
		}
		authMiddleware = auth.New(db, cfg.AuthCookieName, authKey)
	}

	ipChecker, err := ipchecker.New(options.trustedSubnet)
	if t != nil {
		require.NoError(t, err)
	}

	theRouter := New(service.New(db), authMiddleware, ipChecker)

	err = logger.Init("debug")
	if t != nil {
		require.NoError(t, err)
	}

	return httptest.NewServer(theRouter), db, theRouter
}

// doRequest sends a request straight through the mux with the user already
// attached to the context, bypassing the auth middleware.
func doRequest(r *chi.Mux, method, target, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, userID))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	return rec
}

func createListOverHTTP(t *testing.T, r *chi.Mux, userID, name string) models.ShoppingListSummary {
	t.Helper()

	rec := doRequest(r, http.MethodPost, "/api/shopping-lists", fmt.Sprintf(`{"name":%q}`, name), userID)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.ShoppingListSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	return created
}

func createItemOverHTTP(t *testing.T, r *chi.Mux, userID, listID, name string, purchased bool) models.ShoppingItemResponse {
	t.Helper()

	rec := doRequest(
		r,
		http.MethodPost,
		"/api/shopping-lists/"+listID+"/items",
		fmt.Sprintf(`{"name":%q,"purchased":%t}`, name, purchased),
		userID,
	)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.ShoppingItemResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	return created
}

func TestShoppingListLifecycle(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	defer server.Close()

	// A single resty client keeps the auth cookie set by the lazy user
	// registration, so all requests act as the same user.
	client := resty.New()

	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(`{"name":"groceries"}`).
		Post(server.URL + "/api/shopping-lists")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	var created models.ShoppingListSummary
	require.NoError(t, json.Unmarshal(resp.Body(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "groceries", created.Name)

	resp, err = client.R().Get(server.URL + "/api/shopping-lists")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var collection models.ShoppingListsResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &collection))
	require.Len(t, collection.Results, 1)
	assert.Equal(t, created.ID, collection.Results[0].ID)

	resp, err = client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(`{"name":"weekend groceries"}`).
		Put(server.URL + "/api/shopping-lists/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	resp, err = client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(`{}`).
		Patch(server.URL + "/api/shopping-lists/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var patched models.ShoppingListSummary
	require.NoError(t, json.Unmarshal(resp.Body(), &patched))
	assert.Equal(t, "weekend groceries", patched.Name, "a PATCH without a name changes nothing")

	resp, err = client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(`{"name":""}`).
		Post(server.URL + "/api/shopping-lists")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode())

	var validationErr models.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &validationErr))
	assert.Contains(t, validationErr.Errors, "name")

	resp, err = client.R().Get(server.URL + "/api/shopping-lists/nonexistent")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())

	resp, err = client.R().Delete(server.URL + "/api/shopping-lists/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode())

	resp, err = client.R().Get(server.URL + "/api/shopping-lists/" + created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestShoppingItemEndpoints(t *testing.T) {
	server, db, r := setupTestRouter(t, withMockAuth(true))
	defer server.Close()

	userID, err := db.CreateUser(context.Background(), &user.User{}, nil)
	require.NoError(t, err)

	list := createListOverHTTP(t, r, userID, "groceries")
	milk := createItemOverHTTP(t, r, userID, list.ID, "milk", false)

	t.Run("duplicate item name is rejected", func(t *testing.T) {
		rec := doRequest(
			r,
			http.MethodPost,
			"/api/shopping-lists/"+list.ID+"/items",
			`{"name":"milk","purchased":true}`,
			userID,
		)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var validationErr models.ValidationErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&validationErr))
		assert.Contains(t, validationErr.Errors, "name")

		rec = doRequest(r, http.MethodGet, "/api/shopping-lists/"+list.ID+"/items", "", userID)
		require.Equal(t, http.StatusOK, rec.Code)

		var items models.ShoppingItemsResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
		assert.Len(t, items.Results, 1, "the rejected item should not be stored")
	})

	t.Run("item creation requires the purchased field", func(t *testing.T) {
		rec := doRequest(
			r,
			http.MethodPost,
			"/api/shopping-lists/"+list.ID+"/items",
			`{"name":"bread"}`,
			userID,
		)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var validationErr models.ValidationErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&validationErr))
		assert.Contains(t, validationErr.Errors, "purchased")
	})

	t.Run("full update replaces the item", func(t *testing.T) {
		rec := doRequest(
			r,
			http.MethodPut,
			"/api/shopping-lists/"+list.ID+"/items/"+milk.ID,
			`{"name":"oat milk","purchased":true}`,
			userID,
		)
		require.Equal(t, http.StatusOK, rec.Code)

		var updated models.ShoppingItemResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
		assert.Equal(t, "oat milk", updated.Name)
		assert.True(t, updated.Purchased)
	})

	t.Run("full update requires the whole payload", func(t *testing.T) {
		rec := doRequest(
			r,
			http.MethodPut,
			"/api/shopping-lists/"+list.ID+"/items/"+milk.ID,
			`{"purchased":true}`,
			userID,
		)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("partial update keeps missing fields", func(t *testing.T) {
		rec := doRequest(
			r,
			http.MethodPatch,
			"/api/shopping-lists/"+list.ID+"/items/"+milk.ID,
			`{"purchased":false}`,
			userID,
		)
		require.Equal(t, http.StatusOK, rec.Code)

		var updated models.ShoppingItemResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
		assert.Equal(t, "oat milk", updated.Name)
		assert.False(t, updated.Purchased)
	})

	t.Run("partial update rejects a blank name", func(t *testing.T) {
		rec := doRequest(
			r,
			http.MethodPatch,
			"/api/shopping-lists/"+list.ID+"/items/"+milk.ID,
			`{"name":""}`,
			userID,
		)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("item deletion", func(t *testing.T) {
		rec := doRequest(
			r,
			http.MethodDelete,
			"/api/shopping-lists/"+list.ID+"/items/"+milk.ID,
			"",
			userID,
		)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(
			r,
			http.MethodGet,
			"/api/shopping-lists/"+list.ID+"/items/"+milk.ID,
			"",
			userID,
		)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAccessControlOverHTTP(t *testing.T) {
	server, db, r := setupTestRouter(t, withMockAuth(true))
	defer server.Close()

	alice, err := db.CreateUser(context.Background(), &user.User{}, nil)
	require.NoError(t, err)
	bob, err := db.CreateUser(context.Background(), &user.User{}, nil)
	require.NoError(t, err)
	admin, err := db.CreateUser(context.Background(), &user.User{IsAdmin: true}, nil)
	require.NoError(t, err)

	list := createListOverHTTP(t, r, alice, "private")

	rec := doRequest(r, http.MethodGet, "/api/shopping-lists/"+list.ID, "", bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(
		r,
		http.MethodPost,
		"/api/shopping-lists/"+list.ID+"/items",
		`{"name":"milk","purchased":false}`,
		bob,
	)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/shopping-lists/"+list.ID, "", admin)
	assert.Equal(t, http.StatusOK, rec.Code, "administrators bypass the membership check")

	rec = doRequest(r, http.MethodGet, "/api/shopping-lists", "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	var collection models.ShoppingListsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&collection))
	assert.Empty(t, collection.Results, "foreign lists stay invisible")

	t.Run("membership endpoint", func(t *testing.T) {
		rec := doRequest(
			r,
			http.MethodPost,
			"/api/shopping-lists/"+list.ID+"/members",
			fmt.Sprintf(`{"user_id":%q}`, bob),
			alice,
		)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(r, http.MethodGet, "/api/shopping-lists/"+list.ID, "", bob)
		assert.Equal(t, http.StatusOK, rec.Code, "a new member gains access")

		rec = doRequest(
			r,
			http.MethodPost,
			"/api/shopping-lists/"+list.ID+"/members",
			`{"user_id":"nonexistent"}`,
			alice,
		)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no user in context", func(t *testing.T) {
		rec := doRequest(r, http.MethodGet, "/api/shopping-lists", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAccessCheckPrecedesValidation(t *testing.T) {
	server, db, r := setupTestRouter(t, withMockAuth(true))
	defer server.Close()

	alice, err := db.CreateUser(context.Background(), &user.User{}, nil)
	require.NoError(t, err)
	bob, err := db.CreateUser(context.Background(), &user.User{}, nil)
	require.NoError(t, err)

	list := createListOverHTTP(t, r, alice, "private")
	item := createItemOverHTTP(t, r, alice, list.ID, "milk", false)

	// A non-member gets 403 no matter how broken the payload is; the body
	// must never be validated before the membership check.
	rec := doRequest(
		r,
		http.MethodPost,
		"/api/shopping-lists/"+list.ID+"/items",
		`{"name":"bread"}`,
		bob,
	)
	assert.Equal(t, http.StatusForbidden, rec.Code, "item creation without the purchased field")

	rec = doRequest(r, http.MethodPut, "/api/shopping-lists/"+list.ID, `{}`, bob)
	assert.Equal(t, http.StatusForbidden, rec.Code, "full list update with an empty payload")

	rec = doRequest(
		r,
		http.MethodPatch,
		"/api/shopping-lists/"+list.ID+"/items/"+item.ID,
		`{"name":""}`,
		bob,
	)
	assert.Equal(t, http.StatusForbidden, rec.Code, "partial item update with a blank name")

	rec = doRequest(r, http.MethodPost, "/api/shopping-lists/"+list.ID+"/members", `{}`, bob)
	assert.Equal(t, http.StatusForbidden, rec.Code, "membership change without a user_id")

	// Unknown lists surface before the payload is inspected as well.
	rec = doRequest(r, http.MethodPut, "/api/shopping-lists/nonexistent", `{}`, alice)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShoppingListOrdering(t *testing.T) {
	server, db, r := setupTestRouter(t, withMockAuth(true))
	defer server.Close()

	userID, err := db.CreateUser(context.Background(), &user.User{}, nil)
	require.NoError(t, err)

	first := createListOverHTTP(t, r, userID, "first")
	second := createListOverHTTP(t, r, userID, "second")
	item := createItemOverHTTP(t, r, userID, first.ID, "milk", false)

	rec := doRequest(
		r,
		http.MethodPatch,
		"/api/shopping-lists/"+first.ID+"/items/"+item.ID,
		`{"purchased":true}`,
		userID,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/shopping-lists", "", userID)
	require.Equal(t, http.StatusOK, rec.Code)

	var collection models.ShoppingListsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&collection))
	require.Len(t, collection.Results, 2)
	assert.Equal(t, first.ID, collection.Results[0].ID, "touching an item moves its list to the front")
	assert.Equal(t, second.ID, collection.Results[1].ID)
}

func TestUnpurchasedItemsPreview(t *testing.T) {
	server, db, r := setupTestRouter(t, withMockAuth(true))
	defer server.Close()

	userID, err := db.CreateUser(context.Background(), &user.User{}, nil)
	require.NoError(t, err)

	list := createListOverHTTP(t, r, userID, "big list")

	createItemOverHTTP(t, r, userID, list.ID, "already bought", true)
	for _, name := range []string{"milk", "bread", "eggs", "butter"} {
		createItemOverHTTP(t, r, userID, list.ID, name, false)
	}

	rec := doRequest(r, http.MethodGet, "/api/shopping-lists/"+list.ID, "", userID)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail models.ShoppingListDetailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	require.Len(t, detail.UnpurchasedItems, 3)
	assert.Equal(t, "milk", detail.UnpurchasedItems[0].Name)
	assert.Equal(t, "bread", detail.UnpurchasedItems[1].Name)
	assert.Equal(t, "eggs", detail.UnpurchasedItems[2].Name)
}

func TestGetApiinternalstats(t *testing.T) {
	t.Run("trusted client", func(t *testing.T) {
		server, db, r := setupTestRouter(t, withMockAuth(true), withTrustedSubnet("127.0.0.0/8"))
		defer server.Close()

		userID, err := db.CreateUser(context.Background(), &user.User{}, nil)
		require.NoError(t, err)
		createListOverHTTP(t, r, userID, "groceries")

		req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
		req.Header.Set("X-Real-IP", "127.0.0.1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var stats models.InternalStatsResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		assert.Equal(t, int64(1), stats.ShoppingLists)
		assert.Equal(t, int64(1), stats.Users)
	})

	t.Run("client outside the trusted subnet", func(t *testing.T) {
		server, _, r := setupTestRouter(t, withMockAuth(true), withTrustedSubnet("127.0.0.0/8"))
		defer server.Close()

		req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
		req.Header.Set("X-Real-IP", "10.1.1.1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no trusted subnet configured", func(t *testing.T) {
		server, _, r := setupTestRouter(t, withMockAuth(true))
		defer server.Close()

		req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
		req.Header.Set("X-Real-IP", "127.0.0.1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

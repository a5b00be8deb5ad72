// Package router wires the HTTP surface of the shopping list service:
// the shopping list and item endpoints, the membership endpoint, the
// health check and the trusted-subnet stats endpoint.
package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yngz/drf-shopping-list/internal/authenticator"
	"github.com/yngz/drf-shopping-list/internal/gzippedhttp"
	"github.com/yngz/drf-shopping-list/internal/ipchecker"
	"github.com/yngz/drf-shopping-list/internal/logger"
	"github.com/yngz/drf-shopping-list/internal/models"
	"github.com/yngz/drf-shopping-list/internal/service"

	"github.com/yngz/drf-shopping-list/internal/auth"
)

// Router holds the HTTP handlers of the service.
type Router struct {
	service   *service.Service
	validate  *validator.Validate
	ipChecker *ipchecker.IPChecker
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// New mounts all routes and middleware and returns the chi mux.
func New(
	theService *service.Service,
	theAuth authenticator.Authenticator,
	ipChecker *ipchecker.IPChecker,
) *chi.Mux {
	theRouter := &Router{
		service:   theService,
		validate:  newValidator(),
		ipChecker: ipChecker,
	}

	router := chi.NewRouter()
	router.Use(
		logger.WithLoggingHTTPMiddleware,
		gzippedhttp.UngzipRequest,
	)

	router.Get(`/ping`, theRouter.GetPing)
	router.Get(`/api/internal/stats`, theRouter.GetApiinternalstats)

	protected := router.With(
		gzippedhttp.GzipResponse,
		theAuth.AuthenticateUser,
		theAuth.RegisterNewUser,
	)

	protected.Get(`/api/shopping-lists`, theRouter.GetApishoppinglists)
	protected.Post(`/api/shopping-lists`, theRouter.PostApishoppinglists)
	protected.Get(`/api/shopping-lists/{listID}`, theRouter.GetApishoppinglist)
	protected.Put(`/api/shopping-lists/{listID}`, theRouter.PutApishoppinglist)
	protected.Patch(`/api/shopping-lists/{listID}`, theRouter.PatchApishoppinglist)
	protected.Delete(`/api/shopping-lists/{listID}`, theRouter.DeleteApishoppinglist)
	protected.Post(`/api/shopping-lists/{listID}/members`, theRouter.PostApishoppinglistmembers)
	protected.Get(`/api/shopping-lists/{listID}/items`, theRouter.GetApishoppinglistitems)
	protected.Post(`/api/shopping-lists/{listID}/items`, theRouter.PostApishoppinglistitems)
	protected.Get(`/api/shopping-lists/{listID}/items/{itemID}`, theRouter.GetApishoppinglistitem)
	protected.Put(`/api/shopping-lists/{listID}/items/{itemID}`, theRouter.PutApishoppinglistitem)
	protected.Patch(`/api/shopping-lists/{listID}/items/{itemID}`, theRouter.PatchApishoppinglistitem)
	protected.Delete(`/api/shopping-lists/{listID}/items/{itemID}`, theRouter.DeleteApishoppinglistitem)

	return router
}

func writeJSON(response http.ResponseWriter, statusCode int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(statusCode)
	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error while encoding the response body: ", zap.Error(err))
	}
}

func writeValidationErrors(response http.ResponseWriter, errs map[string]string) {
	writeJSON(
		response,
		http.StatusBadRequest,
		models.ValidationErrorResponse{Errors: errs},
	)
}

func (theRouter *Router) decodeAndValidate(
	response http.ResponseWriter,
	request *http.Request,
	into interface{},
) bool {
	if err := json.NewDecoder(request.Body).Decode(into); err != nil {
		writeValidationErrors(response, map[string]string{
			"non_field_errors": "the request body is not valid JSON",
		})
		return false
	}

	if err := theRouter.validate.Struct(into); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errs := map[string]string{}
			for _, fieldError := range validationErrors {
				errs[fieldError.Field()] = validationErrorMessage(fieldError)
			}
			writeValidationErrors(response, errs)
			return false
		}

		logger.Log.Debugln("Error while validating the request body: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return false
	}

	return true
}

func validationErrorMessage(fieldError validator.FieldError) string {
	if fieldError.Tag() == "required" {
		return "This field is required."
	}
	return "This field is invalid."
}

func (theRouter *Router) handleServiceError(response http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrShoppingListNotFound),
		errors.Is(err, service.ErrShoppingItemNotFound):
		response.WriteHeader(http.StatusNotFound)

	case errors.Is(err, service.ErrForbidden):
		writeJSON(response, http.StatusForbidden, map[string]string{
			"detail": "You do not have permission to perform this action.",
		})

	case errors.Is(err, service.ErrDuplicateItemName):
		writeValidationErrors(response, map[string]string{
			"name": err.Error(),
		})

	case errors.Is(err, service.ErrUserNotFound):
		writeValidationErrors(response, map[string]string{
			"user_id": err.Error(),
		})

	default:
		logger.Log.Debugln("Error returned from the service layer: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
	}
}

func userIDOrUnauthorized(response http.ResponseWriter, request *http.Request) (string, bool) {
	userID := auth.UserID(request.Context())
	if userID == "" {
		response.WriteHeader(http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func itemToResponse(item models.ShoppingItem) models.ShoppingItemResponse {
	return models.ShoppingItemResponse{
		ID:        item.ID,
		Name:      item.Name,
		Purchased: item.Purchased,
	}
}

func itemsToResponses(items []models.ShoppingItem) []models.ShoppingItemResponse {
	result := make([]models.ShoppingItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, itemToResponse(item))
	}
	return result
}

// GetApishoppinglists returns the lists visible to the requesting user,
// most recently active first.
func (theRouter *Router) GetApishoppinglists(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	lists, err := theRouter.service.GetShoppingLists(request.Context(), userID)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	results := make([]models.ShoppingListSummary, 0, len(lists))
	for _, list := range lists {
		results = append(results, models.ShoppingListSummary{
			ID:   list.ID,
			Name: list.Name,
		})
	}

	writeJSON(response, http.StatusOK, models.ShoppingListsResponse{Results: results})
}

// PostApishoppinglists creates a shopping list owned by its creator.
func (theRouter *Router) PostApishoppinglists(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	var payload models.CreateShoppingListRequest
	if !theRouter.decodeAndValidate(response, request, &payload) {
		return
	}

	list, err := theRouter.service.CreateShoppingList(request.Context(), userID, payload.Name)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, models.ShoppingListSummary{
		ID:   list.ID,
		Name: list.Name,
	})
}

// GetApishoppinglist returns the list detail with its unpurchased items preview.
func (theRouter *Router) GetApishoppinglist(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	list, unpurchased, err := theRouter.service.GetShoppingListDetail(
		request.Context(),
		userID,
		chi.URLParam(request, "listID"),
	)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.ShoppingListDetailResponse{
		ID:               list.ID,
		Name:             list.Name,
		UnpurchasedItems: itemsToResponses(unpurchased),
	})
}

// PutApishoppinglist replaces the list name. The full payload is required.
// The membership check runs before payload validation, so a non-member gets
// 403 no matter what the body contains.
func (theRouter *Router) PutApishoppinglist(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	listID := chi.URLParam(request, "listID")
	if _, err := theRouter.service.GetShoppingList(request.Context(), userID, listID); err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	var payload models.UpdateShoppingListRequest
	if !theRouter.decodeAndValidate(response, request, &payload) {
		return
	}

	list, err := theRouter.service.RenameShoppingList(request.Context(), userID, listID, payload.Name)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.ShoppingListSummary{
		ID:   list.ID,
		Name: list.Name,
	})
}

// PatchApishoppinglist updates the list name when supplied.
// A payload without a name changes nothing and succeeds.
func (theRouter *Router) PatchApishoppinglist(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	listID := chi.URLParam(request, "listID")
	list, err := theRouter.service.GetShoppingList(request.Context(), userID, listID)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	var payload models.PatchShoppingListRequest
	if !theRouter.decodeAndValidate(response, request, &payload) {
		return
	}

	if payload.Name != nil {
		if *payload.Name == "" {
			writeValidationErrors(response, map[string]string{
				"name": "This field may not be blank.",
			})
			return
		}
		list, err = theRouter.service.RenameShoppingList(request.Context(), userID, listID, *payload.Name)
		if err != nil {
			theRouter.handleServiceError(response, err)
			return
		}
	}

	writeJSON(response, http.StatusOK, models.ShoppingListSummary{
		ID:   list.ID,
		Name: list.Name,
	})
}

// DeleteApishoppinglist removes a list with its members and items.
func (theRouter *Router) DeleteApishoppinglist(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	err := theRouter.service.DeleteShoppingList(request.Context(), userID, chi.URLParam(request, "listID"))
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// PostApishoppinglistmembers shares the list with another existing user.
func (theRouter *Router) PostApishoppinglistmembers(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	listID := chi.URLParam(request, "listID")
	if _, err := theRouter.service.GetShoppingList(request.Context(), userID, listID); err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	var payload models.AddMemberRequest
	if !theRouter.decodeAndValidate(response, request, &payload) {
		return
	}

	err := theRouter.service.AddShoppingListMember(request.Context(), userID, listID, payload.UserID)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// GetApishoppinglistitems returns every item of the list in creation order.
func (theRouter *Router) GetApishoppinglistitems(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	items, err := theRouter.service.GetShoppingItems(request.Context(), userID, chi.URLParam(request, "listID"))
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.ShoppingItemsResponse{
		Results: itemsToResponses(items),
	})
}

// PostApishoppinglistitems adds an item to the list.
func (theRouter *Router) PostApishoppinglistitems(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	listID := chi.URLParam(request, "listID")
	if _, err := theRouter.service.GetShoppingList(request.Context(), userID, listID); err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	var payload models.CreateShoppingItemRequest
	if !theRouter.decodeAndValidate(response, request, &payload) {
		return
	}

	item, err := theRouter.service.CreateShoppingItem(
		request.Context(),
		userID,
		listID,
		payload.Name,
		*payload.Purchased,
	)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, itemToResponse(*item))
}

// GetApishoppinglistitem returns a single item of the list.
func (theRouter *Router) GetApishoppinglistitem(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	item, err := theRouter.service.GetShoppingItem(
		request.Context(),
		userID,
		chi.URLParam(request, "listID"),
		chi.URLParam(request, "itemID"),
	)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, itemToResponse(*item))
}

// PutApishoppinglistitem replaces the item. The full payload is required.
func (theRouter *Router) PutApishoppinglistitem(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	listID := chi.URLParam(request, "listID")
	itemID := chi.URLParam(request, "itemID")
	if _, err := theRouter.service.GetShoppingItem(request.Context(), userID, listID, itemID); err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	var payload models.CreateShoppingItemRequest
	if !theRouter.decodeAndValidate(response, request, &payload) {
		return
	}

	item, err := theRouter.service.UpdateShoppingItem(
		request.Context(),
		userID,
		listID,
		itemID,
		&payload.Name,
		payload.Purchased,
	)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, itemToResponse(*item))
}

// PatchApishoppinglistitem updates the supplied item fields.
// Missing fields keep their stored values.
func (theRouter *Router) PatchApishoppinglistitem(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	listID := chi.URLParam(request, "listID")
	itemID := chi.URLParam(request, "itemID")
	if _, err := theRouter.service.GetShoppingItem(request.Context(), userID, listID, itemID); err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	var payload models.PatchShoppingItemRequest
	if !theRouter.decodeAndValidate(response, request, &payload) {
		return
	}

	if payload.Name != nil && *payload.Name == "" {
		writeValidationErrors(response, map[string]string{
			"name": "This field may not be blank.",
		})
		return
	}

	item, err := theRouter.service.UpdateShoppingItem(
		request.Context(),
		userID,
		listID,
		itemID,
		payload.Name,
		payload.Purchased,
	)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, itemToResponse(*item))
}

// DeleteApishoppinglistitem removes an item from the list.
func (theRouter *Router) DeleteApishoppinglistitem(response http.ResponseWriter, request *http.Request) {
	userID, ok := userIDOrUnauthorized(response, request)
	if !ok {
		return
	}

	err := theRouter.service.DeleteShoppingItem(
		request.Context(),
		userID,
		chi.URLParam(request, "listID"),
		chi.URLParam(request, "itemID"),
	)
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// GetPing checks the storage layer health.
func (theRouter *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := theRouter.service.Ping(request.Context()); err != nil {
		logger.Log.Debugln("Error while pinging the storage: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// GetApiinternalstats reports service-wide counters to clients from the
// trusted subnet only.
func (theRouter *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	if theRouter.ipChecker.IsTrustedSubnetEmpty() {
		response.WriteHeader(http.StatusForbidden)
		return
	}

	clientIP, err := theRouter.ipChecker.GetClientIP(request)
	if err != nil {
		logger.Log.Debugln("Error while extracting the client IP: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	if !theRouter.ipChecker.Check(clientIP) {
		response.WriteHeader(http.StatusForbidden)
		return
	}

	stats, err := theRouter.service.GetInternalStats(request.Context())
	if err != nil {
		theRouter.handleServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}

package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

// Store is the persistence surface the handler needs; *Repository is the
// production implementation.
type Store interface {
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, userID string, items []Item) (Cart, error)
	Delete(ctx context.Context, userID string) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Quantity is a pointer so that an explicit zero can be told apart from an
// absent field: zero is a valid value (it takes the decrement branch),
// while a missing quantity is a validation error.
type addRequest struct {
	ProductID string  `json:"productId"`
	Quantity  *int    `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Name      string  `json:"name"`
}

type updateRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

// Get returns the user's cart, synthesizing an empty one when none has
// been persisted yet. It never fails with not-found.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	current, err := h.store.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			writeJSON(w, http.StatusOK, Cart{UserID: userID, Items: []Item{}})
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve cart")
		return
	}

	writeJSON(w, http.StatusOK, current)
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	var body addRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.ProductID) == "" || body.Quantity == nil {
		writeError(w, http.StatusBadRequest, "Product ID and quantity are required")
		return
	}

	items := []Item{}
	current, err := h.store.Get(r.Context(), userID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to add to cart")
		return
	}
	if err == nil {
		items = current.Items
	}

	items = AddItem(items, body.ProductID, *body.Quantity, body.UnitPrice, body.Name)

	updated, err := h.store.Save(r.Context(), userID, items)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to add to cart")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	var body updateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.ProductID) == "" || body.Quantity == nil {
		writeError(w, http.StatusBadRequest, "Product ID and quantity are required")
		return
	}

	current, err := h.store.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			writeError(w, http.StatusNotFound, "cart not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update cart item")
		return
	}

	items, err := SetQuantity(current.Items, body.ProductID, *body.Quantity)
	if err != nil {
		writeError(w, http.StatusNotFound, "item not found in cart")
		return
	}

	updated, err := h.store.Save(r.Context(), userID, items)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update cart item")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Remove deletes one line from the cart. Removing a product that is not in
// the cart succeeds and returns the unchanged cart.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	productID := r.PathValue("productId")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "Product ID is required")
		return
	}

	current, err := h.store.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			writeError(w, http.StatusNotFound, "cart not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete cart item")
		return
	}

	updated, err := h.store.Save(r.Context(), userID, RemoveItem(current.Items, productID))
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete cart item")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Clear deletes the whole cart; clearing an absent cart succeeds.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	if err := h.store.Delete(r.Context(), userID); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to clear cart")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared successfully"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

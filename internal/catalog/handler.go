package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/nominliyanage/camera-shop-back-end/internal/mail"
)

const maxJSONBodyBytes = 1 << 20

// Store is the persistence surface the handler needs; *Repository is the
// production implementation.
type Store interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id string, input ProductInput) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	CreateCategory(ctx context.Context, input CategoryInput) (Category, error)
	UpdateCategory(ctx context.Context, id string, input CategoryInput) (Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// AdminDirectory resolves the email addresses catalog notifications are
// broadcast to.
type AdminDirectory interface {
	AdminEmails(ctx context.Context) ([]string, error)
}

type Notifier interface {
	Enqueue(msg mail.Message)
}

type Handler struct {
	store    Store
	admins   AdminDirectory
	notifier Notifier
}

func NewHandler(store Store, admins AdminDirectory, notifier Notifier) *Handler {
	return &Handler{store: store, admins: admins, notifier: notifier}
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.store.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve product")
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := parseProductInput(w, r)
	if !ok {
		return
	}

	product, err := h.store.CreateProduct(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrCategoryNotFound):
			writeError(w, http.StatusBadRequest, "category not found")
		case errors.Is(err, ErrDuplicateProduct):
			writeError(w, http.StatusBadRequest, "product id already exists")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to create product")
		}
		return
	}

	h.notifyAdmins(r.Context(),
		"New Product Added",
		fmt.Sprintf("A new product %q has been added.", product.Name),
		fmt.Sprintf("<p>A new product %q has been added with a price of %g %s.</p>", product.Name, product.Price, product.Currency),
	)

	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	input, ok := parseProductInput(w, r)
	if !ok {
		return
	}

	product, err := h.store.UpdateProduct(r.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrProductNotFound):
			writeError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, ErrCategoryNotFound):
			writeError(w, http.StatusBadRequest, "category not found")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to update product")
		}
		return
	}

	h.notifyAdmins(r.Context(),
		"Product Updated",
		fmt.Sprintf("The product %q has been updated.", product.Name),
		fmt.Sprintf("<p>The product %q has been updated.</p>", product.Name),
	)

	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.store.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}

	h.notifyAdmins(r.Context(),
		"Product Deleted",
		fmt.Sprintf("The product %q has been deleted.", id),
		fmt.Sprintf("<p>The product %q has been deleted.</p>", id),
	)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.store.GetCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve category")
		return
	}

	writeJSON(w, http.StatusOK, category)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	input, ok := parseCategoryInput(w, r)
	if !ok {
		return
	}

	category, err := h.store.CreateCategory(r.Context(), input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create category")
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	input, ok := parseCategoryInput(w, r)
	if !ok {
		return
	}

	category, err := h.store.UpdateCategory(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update category")
		return
	}

	writeJSON(w, http.StatusOK, category)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete category")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) notifyAdmins(ctx context.Context, subject, text, html string) {
	emails, err := h.admins.AdminEmails(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return
	}
	if len(emails) == 0 {
		return
	}

	h.notifier.Enqueue(mail.Message{
		To:      strings.Join(emails, ","),
		Subject: subject,
		Text:    text,
		HTML:    html,
	})
}

func parseProductInput(w http.ResponseWriter, r *http.Request) (ProductInput, bool) {
	var input ProductInput
	if !decodeJSON(w, r, &input) {
		return ProductInput{}, false
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Currency = strings.TrimSpace(input.Currency)
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)
	input.Image = strings.TrimSpace(input.Image)

	if input.Name == "" || input.Currency == "" || input.Description == "" || input.Category == "" || input.Image == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return ProductInput{}, false
	}
	if input.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must be >= 0")
		return ProductInput{}, false
	}

	return input, true
}

func parseCategoryInput(w http.ResponseWriter, r *http.Request) (CategoryInput, bool) {
	var input CategoryInput
	if !decodeJSON(w, r, &input) {
		return CategoryInput{}, false
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Image = strings.TrimSpace(input.Image)

	if input.Name == "" || input.Description == "" || input.Image == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return CategoryInput{}, false
	}

	return input, true
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

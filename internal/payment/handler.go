package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/nominliyanage/camera-shop-back-end/internal/mail"
)

const maxJSONBodyBytes = 1 << 20

// IntentCreator is the payment-processor surface the handler needs;
// *Stripe is the production implementation.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, paymentMethod string) (Intent, error)
	FirstChargeID(ctx context.Context, intentID string) (string, error)
}

type Store interface {
	Save(ctx context.Context, p Payment) (Payment, error)
	List(ctx context.Context) ([]Payment, error)
}

type Notifier interface {
	Enqueue(msg mail.Message)
}

type Handler struct {
	store     Store
	processor IntentCreator
	notifier  Notifier
}

func NewHandler(store Store, processor IntentCreator, notifier Notifier) *Handler {
	return &Handler{store: store, processor: processor, notifier: notifier}
}

type createIntentRequest struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"paymentMethod"`
	Status        string  `json:"status"`
	UserID        string  `json:"userId"`
	Email         string  `json:"email"`
	CreatedAt     string  `json:"createdAt"`
}

func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var body createIntentRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Currency = strings.TrimSpace(body.Currency)
	body.PaymentMethod = strings.TrimSpace(body.PaymentMethod)
	body.UserID = strings.TrimSpace(body.UserID)
	body.Email = strings.TrimSpace(body.Email)

	if body.Amount <= 0 || body.Currency == "" || body.PaymentMethod == "" || body.Status == "" || body.UserID == "" || body.Email == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	status, err := ParseStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "status must be one of PENDING, COMPLETED or FAILED")
		return
	}

	amountMinor := int64(math.Round(body.Amount * 100))
	intent, err := h.processor.CreateIntent(r.Context(), amountMinor, body.Currency, body.PaymentMethod)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "failed to create payment intent")
		return
	}

	// Intents rarely have a charge this early; fall back to a generated id.
	paymentID, err := h.processor.FirstChargeID(r.Context(), intent.ID)
	if err != nil || paymentID == "" {
		paymentID = uuid.NewString()
	}

	createdAt := time.Now().UTC()
	if body.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, body.CreatedAt); err == nil {
			createdAt = parsed.UTC()
		}
	}

	saved, err := h.store.Save(r.Context(), Payment{
		PaymentID:     paymentID,
		TransactionID: intent.ID,
		UserID:        body.UserID,
		Amount:        body.Amount,
		Currency:      strings.ToUpper(body.Currency),
		PaymentMethod: body.PaymentMethod,
		Status:        status,
		Email:         body.Email,
		CreatedAt:     createdAt,
	})
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to save payment")
		return
	}

	h.notifier.Enqueue(mail.Message{
		To:      body.Email,
		Subject: "Payment Confirmation",
		Text:    fmt.Sprintf("Your payment of %g %s was successful.", body.Amount, saved.Currency),
		HTML:    fmt.Sprintf("<p>Dear user,</p><p>Your payment of <strong>%g %s</strong> was successful. Thank you for your purchase!</p>", body.Amount, saved.Currency),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Payment saved successfully",
		"clientSecret":  intent.ClientSecret,
		"transactionId": intent.ID,
		"paymentId":     saved.PaymentID,
	})
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	payments, err := h.store.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}

	writeJSON(w, http.StatusOK, payments)
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

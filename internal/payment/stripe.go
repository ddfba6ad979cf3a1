package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// Stripe is a thin client for the two payment-intent calls this backend
// makes. Requests are form-encoded with the secret key as a bearer token,
// per the Stripe REST contract.
type Stripe struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type stripeError struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chargeList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func NewStripe(secretKey string) (*Stripe, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}

	return &Stripe{
		secretKey: secretKey,
		baseURL:   stripeAPIBase,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

// CreateIntent creates a payment intent. amountMinor is in the currency's
// minor unit (cents).
func (s *Stripe) CreateIntent(ctx context.Context, amountMinor int64, currency, paymentMethod string) (Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("payment_method_types[]", paymentMethod)

	var intent Intent
	if err := s.post(ctx, "/payment_intents", form, &intent); err != nil {
		return Intent{}, err
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return Intent{}, errors.New("stripe response missing intent id or client secret")
	}

	return intent, nil
}

// FirstChargeID returns the id of the first charge recorded against the
// intent, or an empty string when none exists yet.
func (s *Stripe) FirstChargeID(ctx context.Context, intentID string) (string, error) {
	endpoint := "/charges?payment_intent=" + url.QueryEscape(intentID)

	var charges chargeList
	if err := s.get(ctx, endpoint, &charges); err != nil {
		return "", err
	}
	if len(charges.Data) == 0 {
		return "", nil
	}

	return charges.Data[0].ID, nil
}

func (s *Stripe) post(ctx context.Context, path string, form url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build stripe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return s.do(req, dst)
}

func (s *Stripe) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build stripe request: %w", err)
	}

	return s.do(req, dst)
}

func (s *Stripe) do(req *http.Request, dst any) error {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("read stripe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr stripeError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe api error: %s", apiErr.Error.Message)
		}
		return fmt.Errorf("stripe request failed with status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode stripe response: %w", err)
	}

	return nil
}

package payment

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPending:
		return StatusPending, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("invalid payment status %q", value)
	}
}

type Payment struct {
	ID            string    `json:"id"`
	PaymentID     string    `json:"paymentId"`
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        Status    `json:"status"`
	Email         string    `json:"email"`
	CreatedAt     time.Time `json:"createdAt"`
}

package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, p Payment) (Payment, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Payment{}, fmt.Errorf("generate payment row id: %w", err)
	}

	p.ID = id.String()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payments (id, payment_id, transaction_id, user_id, amount, currency, payment_method, status, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.PaymentID, p.TransactionID, p.UserID, p.Amount, p.Currency, p.PaymentMethod, p.Status, p.Email, p.CreatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}

	return p, nil
}

func (r *Repository) List(ctx context.Context) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, payment_id, transaction_id, user_id, amount, currency, payment_method, status, email, created_at
		FROM payments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.PaymentID, &p.TransactionID, &p.UserID, &p.Amount, &p.Currency, &p.PaymentMethod, &p.Status, &p.Email, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}

	return payments, nil
}

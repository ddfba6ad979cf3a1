package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists one row per user with the item list as a JSONB
// document. Save replaces the whole array, so concurrent read-modify-write
// cycles for the same user resolve as last write wins on the entire list —
// the same contract the upsert-with-replace store this mirrors had.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, userID string) (Cart, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT items
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, fmt.Errorf("query cart: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return Cart{}, fmt.Errorf("decode cart items: %w", err)
	}

	return Cart{UserID: userID, Items: items}, nil
}

func (r *Repository) Save(ctx context.Context, userID string, items []Item) (Cart, error) {
	if items == nil {
		items = []Item{}
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return Cart{}, fmt.Errorf("encode cart items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, items, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at
	`, userID, raw, time.Now().UTC())
	if err != nil {
		return Cart{}, fmt.Errorf("upsert cart: %w", err)
	}

	return Cart{UserID: userID, Items: items}, nil
}

// Delete removes the cart row; deleting an absent cart is not an error.
func (r *Repository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	return nil
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const productColumns = `p.id, p.name, p.price, p.currency, p.image, p.description, c.name`

func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id ~ '^PROD\d+$'
		ORDER BY p.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Image, &p.Description, &p.Category); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	err := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Image, &p.Description, &p.Category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("query product: %w", err)
	}

	return p, nil
}

// CreateProduct assigns the next PROD<n> id and persists the product. The
// category may be referenced by id or by name.
func (r *Repository) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	categoryID, categoryName, err := r.resolveCategory(ctx, input.Category)
	if err != nil {
		return Product{}, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM products WHERE id ~ '^PROD\d+$'`)
	if err != nil {
		return Product{}, fmt.Errorf("query product ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Product{}, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return Product{}, fmt.Errorf("iterate product ids: %w", err)
	}

	id := nextProductID(ids)
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, currency, image, description, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, id, input.Name, input.Price, input.Currency, input.Image, input.Description, categoryID, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, ErrDuplicateProduct
		}
		return Product{}, fmt.Errorf("insert product: %w", err)
	}

	return Product{
		ID:          id,
		Name:        input.Name,
		Price:       input.Price,
		Currency:    input.Currency,
		Image:       input.Image,
		Description: input.Description,
		Category:    categoryName,
	}, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, id string, input ProductInput) (Product, error) {
	categoryID, categoryName, err := r.resolveCategory(ctx, input.Category)
	if err != nil {
		return Product{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, currency = $4, image = $5, description = $6, category_id = $7, updated_at = $8
		WHERE id = $1
	`, id, input.Name, input.Price, input.Currency, input.Image, input.Description, categoryID, time.Now().UTC())
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Product{}, fmt.Errorf("product rows affected: %w", err)
	}
	if affected == 0 {
		return Product{}, ErrProductNotFound
	}

	return Product{
		ID:          id,
		Name:        input.Name,
		Price:       input.Price,
		Currency:    input.Currency,
		Image:       input.Image,
		Description: input.Description,
		Category:    categoryName,
	}, nil
}

func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("product rows affected: %w", err)
	}
	if affected == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *Repository) resolveCategory(ctx context.Context, idOrName string) (string, string, error) {
	var id, name string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name
		FROM categories
		WHERE id = $1 OR name = $1
	`, idOrName).Scan(&id, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrCategoryNotFound
		}
		return "", "", fmt.Errorf("resolve category: %w", err)
	}

	return id, name, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, image
		FROM categories
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Image); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return categories, nil
}

func (r *Repository) GetCategory(ctx context.Context, id string) (Category, error) {
	var c Category
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, image
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.Image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, ErrCategoryNotFound
		}
		return Category{}, fmt.Errorf("query category: %w", err)
	}

	return c, nil
}

func (r *Repository) CreateCategory(ctx context.Context, input CategoryInput) (Category, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, id, input.Name, input.Description, input.Image, now)
	if err != nil {
		return Category{}, fmt.Errorf("insert category: %w", err)
	}

	return Category{ID: id, Name: input.Name, Description: input.Description, Image: input.Image}, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, id string, input CategoryInput) (Category, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, description = $3, image = $4, updated_at = $5
		WHERE id = $1
	`, id, input.Name, input.Description, input.Image, time.Now().UTC())
	if err != nil {
		return Category{}, fmt.Errorf("update category: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Category{}, fmt.Errorf("category rows affected: %w", err)
	}
	if affected == 0 {
		return Category{}, ErrCategoryNotFound
	}

	return Category{ID: id, Name: input.Name, Description: input.Description, Image: input.Image}, nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("category rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCategoryNotFound
	}

	return nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/repository/common"
)

// ProductRepository работает с таблицей products.
type ProductRepository struct {
	db *sqlx.DB
}

func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (seller_id, title, description, price, stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		product.SellerID, product.Title, product.Description,
		product.Price, product.Stock, product.IsActive,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("product repository: create: %w", err)
	}

	return nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return common.GetByID[models.Product](ctx, r.db, "products", id, ErrProductNotFound)
}

// ListActive возвращает активные товары с остатком на складе.
func (r *ProductRepository) ListActive(ctx context.Context, limit, offset int) ([]models.Product, error) {
	query := `
		SELECT * FROM products
		WHERE is_active = TRUE AND stock > 0
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	products := []models.Product{}
	if err := r.db.SelectContext(ctx, &products, query, limit, offset); err != nil {
		return nil, fmt.Errorf("product repository: list active: %w", err)
	}

	return products, nil
}

func (r *ProductRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]models.Product, error) {
	query := `
		SELECT * FROM products
		WHERE seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	products := []models.Product{}
	if err := r.db.SelectContext(ctx, &products, query, sellerID, limit, offset); err != nil {
		return nil, fmt.Errorf("product repository: list by seller: %w", err)
	}

	return products, nil
}

// Update меняет карточку товара. Остаток редактируется только продавцом,
// резервирование под заказ идёт отдельным путём в транзакции заказа.
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET title = $2, description = $3, price = $4, stock = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		product.ID, product.Title, product.Description,
		product.Price, product.Stock, product.IsActive,
	).Scan(&product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("product repository: update: %w", err)
	}

	return nil
}

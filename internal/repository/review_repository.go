package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/repository/common"
)

var ErrReviewExists = errors.New("review already exists for order")

// ReviewRepository работает с таблицей reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create сохраняет отзыв. Уникальное ограничение по order_id
// не даёт оставить второй отзыв на тот же заказ.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (order_id, author_id, target_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		review.OrderID, review.AuthorID, review.TargetID, review.Rating, review.Comment,
	).Scan(&review.ID, &review.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err, "") {
			return ErrReviewExists
		}
		return fmt.Errorf("review repository: create: %w", err)
	}

	return nil
}

// ListByTarget возвращает отзывы о пользователе, новые первыми.
func (r *ReviewRepository) ListByTarget(ctx context.Context, targetID uuid.UUID, limit, offset int) ([]models.Review, error) {
	query := `
		SELECT * FROM reviews
		WHERE target_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	reviews := []models.Review{}
	if err := r.db.SelectContext(ctx, &reviews, query, targetID, limit, offset); err != nil {
		return nil, fmt.Errorf("review repository: list by target: %w", err)
	}

	return reviews, nil
}

// ListByOrder возвращает отзыв по заказу, если он уже оставлен.
func (r *ReviewRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Review, error) {
	query := `SELECT * FROM reviews WHERE order_id = $1 ORDER BY created_at ASC`

	reviews := []models.Review{}
	if err := r.db.SelectContext(ctx, &reviews, query, orderID); err != nil {
		return nil, fmt.Errorf("review repository: list by order: %w", err)
	}

	return reviews, nil
}

// AverageRating возвращает среднюю оценку пользователя и число отзывов.
func (r *ReviewRepository) AverageRating(ctx context.Context, targetID uuid.UUID) (float64, int, error) {
	query := `
		SELECT COALESCE(AVG(rating), 0) AS avg_rating, COUNT(*) AS total
		FROM reviews WHERE target_id = $1`

	var result struct {
		AvgRating float64 `db:"avg_rating"`
		Total     int     `db:"total"`
	}
	if err := r.db.GetContext(ctx, &result, query, targetID); err != nil {
		return 0, 0, fmt.Errorf("review repository: average rating: %w", err)
	}

	return result.AvgRating, result.Total, nil
}

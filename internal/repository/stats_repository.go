package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
)

var ErrSellerStatsNotFound = errors.New("seller stats not found")

// StatsRepository работает с таблицами seller_stats и badges.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// ListSellerIDs возвращает всех пользователей, у которых есть хотя бы
// один заказ в роли продавца. Именно их перебирает пересчёт репутации.
func (r *StatsRepository) ListSellerIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT DISTINCT seller_id FROM orders`

	ids := []uuid.UUID{}
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("stats repository: list seller ids: %w", err)
	}

	return ids, nil
}

// OrderAggregates собирает сырые счётчики заказов и споров продавца.
func (r *StatsRepository) OrderAggregates(ctx context.Context, sellerID uuid.UUID) (totalOrders, completedOrders, disputedOrders int, totalSales float64, err error) {
	query := `
		SELECT
			COUNT(*) AS total_orders,
			COUNT(*) FILTER (WHERE o.status = $2) AS completed_orders,
			COALESCE(SUM(o.total_amount) FILTER (WHERE o.status = $2), 0) AS total_sales,
			COUNT(*) FILTER (WHERE EXISTS (SELECT 1 FROM disputes d WHERE d.order_id = o.id)) AS disputed_orders
		FROM orders o
		WHERE o.seller_id = $1`

	var row struct {
		TotalOrders     int     `db:"total_orders"`
		CompletedOrders int     `db:"completed_orders"`
		TotalSales      float64 `db:"total_sales"`
		DisputedOrders  int     `db:"disputed_orders"`
	}
	if err := r.db.GetContext(ctx, &row, query, sellerID, models.OrderStatusCompleted); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("stats repository: order aggregates: %w", err)
	}

	return row.TotalOrders, row.CompletedOrders, row.DisputedOrders, row.TotalSales, nil
}

// Upsert сохраняет пересчитанную статистику продавца.
func (r *StatsRepository) Upsert(ctx context.Context, stats *models.SellerStats) error {
	query := `
		INSERT INTO seller_stats (
			user_id, total_sales, total_orders, completed_orders, average_rating,
			average_response_time, average_ship_time, dispute_rate, trust_score, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_sales = EXCLUDED.total_sales,
			total_orders = EXCLUDED.total_orders,
			completed_orders = EXCLUDED.completed_orders,
			average_rating = EXCLUDED.average_rating,
			average_response_time = EXCLUDED.average_response_time,
			average_ship_time = EXCLUDED.average_ship_time,
			dispute_rate = EXCLUDED.dispute_rate,
			trust_score = EXCLUDED.trust_score,
			updated_at = NOW()
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		stats.UserID, stats.TotalSales, stats.TotalOrders, stats.CompletedOrders,
		stats.AverageRating, stats.AverageResponseTime, stats.AverageShipTime,
		stats.DisputeRate, stats.TrustScore,
	).Scan(&stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("stats repository: upsert: %w", err)
	}

	return nil
}

func (r *StatsRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.SellerStats, error) {
	var stats models.SellerStats
	query := `SELECT * FROM seller_stats WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &stats, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSellerStatsNotFound
		}
		return nil, fmt.Errorf("stats repository: get by user id: %w", err)
	}

	return &stats, nil
}

// TopSellers возвращает продавцов с лучшим trust score.
func (r *StatsRepository) TopSellers(ctx context.Context, limit int) ([]models.SellerStats, error) {
	query := `
		SELECT * FROM seller_stats
		ORDER BY trust_score DESC, user_id ASC
		LIMIT $1`

	stats := []models.SellerStats{}
	if err := r.db.SelectContext(ctx, &stats, query, limit); err != nil {
		return nil, fmt.Errorf("stats repository: top sellers: %w", err)
	}

	return stats, nil
}

// GrantBadge выдаёт значок, если его ещё нет. Возвращает true,
// если значок действительно был вставлен.
func (r *StatsRepository) GrantBadge(ctx context.Context, userID uuid.UUID, badgeType, description string) (bool, error) {
	query := `
		INSERT INTO badges (user_id, type, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, type) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, userID, badgeType, description)
	if err != nil {
		return false, fmt.Errorf("stats repository: grant badge: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("stats repository: rows affected: %w", err)
	}

	return rows > 0, nil
}

// RevokeBadge отзывает значок. Возвращает true, если значок был.
func (r *StatsRepository) RevokeBadge(ctx context.Context, userID uuid.UUID, badgeType string) (bool, error) {
	query := `DELETE FROM badges WHERE user_id = $1 AND type = $2`

	result, err := r.db.ExecContext(ctx, query, userID, badgeType)
	if err != nil {
		return false, fmt.Errorf("stats repository: revoke badge: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("stats repository: rows affected: %w", err)
	}

	return rows > 0, nil
}

// ListBadges возвращает значки пользователя.
func (r *StatsRepository) ListBadges(ctx context.Context, userID uuid.UUID) ([]models.Badge, error) {
	query := `SELECT * FROM badges WHERE user_id = $1 ORDER BY earned_at ASC`

	badges := []models.Badge{}
	if err := r.db.SelectContext(ctx, &badges, query, userID); err != nil {
		return nil, fmt.Errorf("stats repository: list badges: %w", err)
	}

	return badges, nil
}

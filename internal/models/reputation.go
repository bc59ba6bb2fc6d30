package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerStats агрегированная статистика продавца.
// Материализованное представление: пересчитывается batch job из заказов,
// отзывов и споров; никогда не редактируется пользователем.
type SellerStats struct {
	UserID              uuid.UUID `db:"user_id" json:"user_id"`
	TotalSales          float64   `db:"total_sales" json:"total_sales"`
	TotalOrders         int       `db:"total_orders" json:"total_orders"`
	CompletedOrders     int       `db:"completed_orders" json:"completed_orders"`
	AverageRating       float64   `db:"average_rating" json:"average_rating"`
	AverageResponseTime float64   `db:"average_response_time" json:"average_response_time"` // минуты
	AverageShipTime     float64   `db:"average_ship_time" json:"average_ship_time"`         // часы
	DisputeRate         float64   `db:"dispute_rate" json:"dispute_rate"`
	TrustScore          float64   `db:"trust_score" json:"trust_score"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Badge значок пользователя. Семантически множество по ключу (user_id, type).
type Badge struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Type        string    `db:"type" json:"type"`
	Description string    `db:"description" json:"description"`
	EarnedAt    time.Time `db:"earned_at" json:"earned_at"`
}

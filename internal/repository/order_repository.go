package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/repository/common"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderStatusChanged = errors.New("order status changed concurrently")
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product unavailable")
)

// OrderRepository работает с таблицами orders и order_status_history.
type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create создаёт заказ в одной транзакции с проверкой и списанием остатка товара.
// Цена фиксируется из карточки товара на момент создания.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var product models.Product
		query := `SELECT * FROM products WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &product, query, order.ProductID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrProductNotFound
			}
			return fmt.Errorf("order repository: get product for update: %w", err)
		}

		if !product.IsActive || product.Stock <= 0 {
			return ErrProductUnavailable
		}

		stockQuery := `UPDATE products SET stock = stock - 1, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, stockQuery, product.ID); err != nil {
			return fmt.Errorf("order repository: decrement stock: %w", err)
		}

		order.SellerID = product.SellerID
		order.TotalAmount = product.Price
		order.Status = models.OrderStatusPaymentPending

		insertQuery := `
			INSERT INTO orders (buyer_id, seller_id, product_id, status, total_amount)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, escrow_locked, created_at, updated_at`
		err := tx.QueryRowxContext(ctx, insertQuery,
			order.BuyerID, order.SellerID, order.ProductID, order.Status, order.TotalAmount,
		).Scan(&order.ID, &order.EscrowLocked, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("order repository: insert order: %w", err)
		}

		return nil
	})
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return common.GetByID[models.Order](ctx, r.db, "orders", id, ErrOrderNotFound)
}

// ListByParticipant возвращает заказы, где пользователь — покупатель или продавец.
// Опционально фильтрует по статусу.
func (r *OrderRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Order, error) {
	query := `
		SELECT * FROM orders
		WHERE (buyer_id = $1 OR seller_id = $1)`
	args := []interface{}{userID}

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, status)
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	orders := []models.Order{}
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("order repository: list by participant: %w", err)
	}

	return orders, nil
}

// UpdateStatusCAS атомарно переводит заказ из from в to и пишет строку истории
// в той же транзакции. Если статус успел измениться, возвращает
// ErrOrderStatusChanged, не трогая заказ.
func (r *OrderRepository) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID, from, to string) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
		result, err := tx.ExecContext(ctx, query, orderID, from, to)
		if err != nil {
			return fmt.Errorf("order repository: update status: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("order repository: rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID); err != nil {
				return fmt.Errorf("order repository: check order exists: %w", err)
			}
			if !exists {
				return ErrOrderNotFound
			}
			return ErrOrderStatusChanged
		}

		return insertStatusChange(ctx, tx, orderID, actorID, from, to)
	})
}

// insertStatusChange добавляет запись истории переходов. Вызывается только
// внутри транзакции, которая меняет статус заказа.
func insertStatusChange(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, actorID *uuid.UUID, from, to string) error {
	query := `
		INSERT INTO order_status_history (order_id, actor_id, from_status, to_status)
		VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, query, orderID, actorID, from, to); err != nil {
		return fmt.Errorf("order repository: insert status history: %w", err)
	}
	return nil
}

// SetEscrowEvent обновляет состояние escrow по событию внешнего контракта.
func (r *OrderRepository) SetEscrowEvent(ctx context.Context, orderID uuid.UUID, reference string, locked bool) error {
	query := `
		UPDATE orders SET escrow_reference = $2, escrow_locked = $3, updated_at = NOW()
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, orderID, reference, locked)
	if err != nil {
		return fmt.Errorf("order repository: set escrow event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("order repository: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// ListStatusHistory возвращает переходы заказа в хронологическом порядке.
func (r *OrderRepository) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusChange, error) {
	query := `
		SELECT * FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC`

	changes := []models.OrderStatusChange{}
	if err := r.db.SelectContext(ctx, &changes, query, orderID); err != nil {
		return nil, fmt.Errorf("order repository: list status history: %w", err)
	}

	return changes, nil
}

// AverageShipTimeHours считает средний интервал paid → shipped в часах
// по заказам продавца. Возвращает 0, если отгрузок ещё не было.
func (r *OrderRepository) AverageShipTimeHours(ctx context.Context, sellerID uuid.UUID) (float64, error) {
	query := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (shipped.created_at - paid.created_at)) / 3600.0), 0)
		FROM order_status_history shipped
		JOIN order_status_history paid
			ON paid.order_id = shipped.order_id AND paid.to_status = $2
		JOIN orders o ON o.id = shipped.order_id
		WHERE shipped.to_status = $3 AND o.seller_id = $1`

	var hours float64
	if err := r.db.GetContext(ctx, &hours, query, sellerID, models.OrderStatusPaid, models.OrderStatusShipped); err != nil {
		return 0, fmt.Errorf("order repository: average ship time: %w", err)
	}

	return hours, nil
}

// CountStuck возвращает число заказов, висящих в статусе дольше порога.
// Используется фоновым мониторингом подвисших сделок.
func (r *OrderRepository) CountStuck(ctx context.Context, status string, olderThan time.Duration) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status = $1 AND updated_at < NOW() - $2::interval`

	var count int
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	if err := r.db.GetContext(ctx, &count, query, status, interval); err != nil {
		return 0, fmt.Errorf("order repository: count stuck: %w", err)
	}

	return count, nil
}

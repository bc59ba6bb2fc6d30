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

var (
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrDisputeExists   = errors.New("dispute already exists for order")
)

// DisputeRepository работает с таблицами disputes и dispute_messages.
type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create открывает спор и в той же транзакции переводит заказ в disputed.
// Уникальный индекс по order_id гарантирует не более одного спора на заказ;
// повторная попытка возвращает ErrDisputeExists.
func (r *DisputeRepository) Create(ctx context.Context, dispute *models.Dispute, orderStatusBefore string) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		insertQuery := `
			INSERT INTO disputes (order_id, raised_by, status, reason, description)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`
		err := tx.QueryRowxContext(ctx, insertQuery,
			dispute.OrderID, dispute.RaisedBy, dispute.Status, dispute.Reason, dispute.Description,
		).Scan(&dispute.ID, &dispute.CreatedAt, &dispute.UpdatedAt)
		if err != nil {
			if common.IsUniqueViolation(err, "") {
				return ErrDisputeExists
			}
			return fmt.Errorf("dispute repository: insert dispute: %w", err)
		}

		updateQuery := `UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
		result, err := tx.ExecContext(ctx, updateQuery, dispute.OrderID, orderStatusBefore, models.OrderStatusDisputed)
		if err != nil {
			return fmt.Errorf("dispute repository: mark order disputed: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("dispute repository: rows affected: %w", err)
		}
		if rows == 0 {
			return ErrOrderStatusChanged
		}

		return insertStatusChange(ctx, tx, dispute.OrderID, &dispute.RaisedBy, orderStatusBefore, models.OrderStatusDisputed)
	})
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

func (r *DisputeRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	return common.GetByField[models.Dispute](ctx, r.db, "disputes", "order_id", orderID, ErrDisputeNotFound)
}

// ListByParticipant возвращает споры по заказам, где пользователь —
// покупатель или продавец.
func (r *DisputeRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	query := `
		SELECT d.* FROM disputes d
		JOIN orders o ON o.id = d.order_id
		WHERE o.buyer_id = $1 OR o.seller_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2 OFFSET $3`

	disputes := []models.Dispute{}
	if err := r.db.SelectContext(ctx, &disputes, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("dispute repository: list by participant: %w", err)
	}

	return disputes, nil
}

// ListOpen возвращает неразрешённые споры для админской очереди.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	query := `
		SELECT * FROM disputes
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4`

	disputes := []models.Dispute{}
	err := r.db.SelectContext(ctx, &disputes, query,
		models.DisputeStatusOpen, models.DisputeStatusInReview, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list open: %w", err)
	}

	return disputes, nil
}

// UpdateStatus переводит спор между рабочими статусами (open → in_review).
func (r *DisputeRepository) UpdateStatus(ctx context.Context, disputeID uuid.UUID, status string) error {
	query := `UPDATE disputes SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, disputeID, status)
	if err != nil {
		return fmt.Errorf("dispute repository: update status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("dispute repository: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDisputeNotFound
	}

	return nil
}

// Resolve закрывает спор и в той же транзакции переводит заказ из disputed
// в выбранный терминальный статус.
func (r *DisputeRepository) Resolve(ctx context.Context, dispute *models.Dispute, finalOrderStatus string) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		updateDispute := `
			UPDATE disputes
			SET status = $2, resolution = $3, resolved_by = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`
		err := tx.QueryRowxContext(ctx, updateDispute,
			dispute.ID, dispute.Status, dispute.Resolution, dispute.ResolvedBy,
		).Scan(&dispute.UpdatedAt)
		if err != nil {
			return fmt.Errorf("dispute repository: resolve dispute: %w", err)
		}

		updateOrder := `UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
		result, err := tx.ExecContext(ctx, updateOrder, dispute.OrderID, models.OrderStatusDisputed, finalOrderStatus)
		if err != nil {
			return fmt.Errorf("dispute repository: finalize order: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("dispute repository: rows affected: %w", err)
		}
		if rows == 0 {
			return ErrOrderStatusChanged
		}

		return insertStatusChange(ctx, tx, dispute.OrderID, dispute.ResolvedBy, models.OrderStatusDisputed, finalOrderStatus)
	})
}

// AddMessage добавляет сообщение в тред спора.
func (r *DisputeRepository) AddMessage(ctx context.Context, message *models.DisputeMessage) error {
	query := `
		INSERT INTO dispute_messages (dispute_id, sender_id, message)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		message.DisputeID, message.SenderID, message.Message,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: add message: %w", err)
	}

	return nil
}

// ListMessages возвращает тред спора в хронологическом порядке.
func (r *DisputeRepository) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	query := `
		SELECT * FROM dispute_messages
		WHERE dispute_id = $1
		ORDER BY created_at ASC`

	messages := []models.DisputeMessage{}
	if err := r.db.SelectContext(ctx, &messages, query, disputeID); err != nil {
		return nil, fmt.Errorf("dispute repository: list messages: %w", err)
	}

	return messages, nil
}

// AverageSellerResponseMinutes считает среднее время ответа продавца
// в тредах споров: интервал от сообщения покупателя до первого последующего
// сообщения продавца. Возвращает 0, если ответов ещё не было.
func (r *DisputeRepository) AverageSellerResponseMinutes(ctx context.Context, sellerID uuid.UUID) (float64, error) {
	query := `
		WITH thread AS (
			SELECT m.created_at,
			       m.sender_id = o.seller_id AS from_seller,
			       m.dispute_id
			FROM dispute_messages m
			JOIN disputes d ON d.id = m.dispute_id
			JOIN orders o ON o.id = d.order_id
			WHERE o.seller_id = $1
		), replies AS (
			SELECT t.created_at AS asked_at,
			       (SELECT MIN(s.created_at) FROM thread s
			        WHERE s.dispute_id = t.dispute_id AND s.from_seller AND s.created_at > t.created_at) AS answered_at
			FROM thread t
			WHERE NOT t.from_seller
		)
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (answered_at - asked_at)) / 60.0), 0)
		FROM replies
		WHERE answered_at IS NOT NULL`

	var minutes float64
	if err := r.db.GetContext(ctx, &minutes, query, sellerID); err != nil {
		return 0, fmt.Errorf("dispute repository: average seller response: %w", err)
	}

	return minutes, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
	"github.com/ignatzorin/p2p-market-backend/internal/validation"
)

// DisputeRepository описывает взаимодействие сервиса с хранилищем споров.
type DisputeRepository interface {
	Create(ctx context.Context, dispute *models.Dispute, orderStatusBefore string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
	UpdateStatus(ctx context.Context, disputeID uuid.UUID, status string) error
	Resolve(ctx context.Context, dispute *models.Dispute, finalOrderStatus string) error
	AddMessage(ctx context.Context, message *models.DisputeMessage) error
	ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error)
}

// OrderReader описывает минимальный контракт чтения заказов.
type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// DisputeService содержит бизнес-логику споров.
type DisputeService struct {
	repo     DisputeRepository
	orders   OrderReader
	points   PointsAwarder
	notifier Notifier
}

// NewDisputeService создаёт новый сервис споров.
func NewDisputeService(repo DisputeRepository, orders OrderReader, points PointsAwarder, notifier Notifier) *DisputeService {
	return &DisputeService{
		repo:     repo,
		orders:   orders,
		points:   points,
		notifier: notifier,
	}
}

// RaiseDispute открывает спор по заказу. Спор допускается только из статусов
// shipped и delivered, не более одного спора на заказ за всю его жизнь.
func (s *DisputeService) RaiseDispute(ctx context.Context, orderID, raisedBy uuid.UUID, reason, description string) (*models.Dispute, error) {
	if err := validation.ValidateNonEmpty("причина спора", reason); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateLength("причина спора", reason, 0, validation.MaxReasonLength); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("dispute service: get order: %w", err)
	}

	if !order.IsParticipant(raisedBy) {
		return nil, apperror.ErrForbidden
	}

	if _, ok := models.DisputeEligibleOrderStatuses[order.Status]; !ok {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("нельзя открыть спор по заказу в статусе %s", order.Status))
	}

	dispute := &models.Dispute{
		OrderID:     orderID,
		RaisedBy:    raisedBy,
		Status:      models.DisputeStatusOpen,
		Reason:      reason,
		Description: description,
	}

	if err := s.repo.Create(ctx, dispute, order.Status); err != nil {
		switch {
		case errors.Is(err, repository.ErrDisputeExists):
			return nil, apperror.New(apperror.ErrCodeConflict, "по заказу уже открыт спор")
		case errors.Is(err, repository.ErrOrderStatusChanged):
			return nil, apperror.New(apperror.ErrCodeConflict, "статус заказа изменился, повторите запрос")
		}
		return nil, fmt.Errorf("dispute service: create dispute: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, order.Counterparty(raisedBy), "dispute.opened", map[string]interface{}{
			"dispute_id": dispute.ID,
			"order_id":   orderID,
			"reason":     reason,
		})
	}

	return dispute, nil
}

// GetDispute возвращает спор его участнику или админу.
func (s *DisputeService) GetDispute(ctx context.Context, disputeID, requesterID uuid.UUID, requesterRole string) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repository.ErrDisputeNotFound) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute service: get dispute: %w", err)
	}

	if requesterRole != models.RoleAdmin {
		if err := s.checkParticipant(ctx, dispute, requesterID); err != nil {
			return nil, err
		}
	}

	return dispute, nil
}

// GetOrderDispute возвращает спор по заказу.
func (s *DisputeService) GetOrderDispute(ctx context.Context, orderID, requesterID uuid.UUID, requesterRole string) (*models.Dispute, error) {
	dispute, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrDisputeNotFound) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute service: get order dispute: %w", err)
	}

	return s.GetDispute(ctx, dispute.ID, requesterID, requesterRole)
}

// ListMyDisputes возвращает споры по сделкам пользователя.
func (s *DisputeService) ListMyDisputes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	disputes, err := s.repo.ListByParticipant(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute service: list disputes: %w", err)
	}

	return disputes, nil
}

// ListOpenDisputes возвращает очередь неразрешённых споров. Только для админа.
func (s *DisputeService) ListOpenDisputes(ctx context.Context, requesterRole string, limit, offset int) ([]models.Dispute, error) {
	if requesterRole != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	disputes, err := s.repo.ListOpen(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute service: list open disputes: %w", err)
	}

	return disputes, nil
}

// TakeInReview берёт спор в работу. Только для админа.
func (s *DisputeService) TakeInReview(ctx context.Context, disputeID uuid.UUID, requesterRole string) (*models.Dispute, error) {
	if requesterRole != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}

	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repository.ErrDisputeNotFound) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute service: get dispute: %w", err)
	}

	if dispute.Status != models.DisputeStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("спор в статусе %s нельзя взять в работу", dispute.Status))
	}

	if err := s.repo.UpdateStatus(ctx, disputeID, models.DisputeStatusInReview); err != nil {
		return nil, fmt.Errorf("dispute service: take in review: %w", err)
	}
	dispute.Status = models.DisputeStatusInReview

	return dispute, nil
}

// AddMessage добавляет сообщение в тред спора.
func (s *DisputeService) AddMessage(ctx context.Context, disputeID, senderID uuid.UUID, senderRole, text string) (*models.DisputeMessage, error) {
	if err := validation.ValidateMessageContent(text); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repository.ErrDisputeNotFound) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute service: get dispute: %w", err)
	}

	if dispute.Status == models.DisputeStatusResolved || dispute.Status == models.DisputeStatusClosed {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "спор уже разрешён")
	}

	var counterparty uuid.UUID
	if senderRole != models.RoleAdmin {
		order, err := s.orders.GetByID(ctx, dispute.OrderID)
		if err != nil {
			return nil, fmt.Errorf("dispute service: get order: %w", err)
		}
		if !order.IsParticipant(senderID) {
			return nil, apperror.ErrForbidden
		}
		counterparty = order.Counterparty(senderID)
	}

	message := &models.DisputeMessage{
		DisputeID: disputeID,
		SenderID:  senderID,
		Message:   text,
	}
	if err := s.repo.AddMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("dispute service: add message: %w", err)
	}

	if s.notifier != nil && counterparty != uuid.Nil {
		s.notifier.Notify(ctx, counterparty, "dispute.message", map[string]interface{}{
			"dispute_id": disputeID,
			"sender_id":  senderID,
		})
	}

	return message, nil
}

// ListMessages возвращает тред спора его участнику или админу.
func (s *DisputeService) ListMessages(ctx context.Context, disputeID, requesterID uuid.UUID, requesterRole string) ([]models.DisputeMessage, error) {
	if _, err := s.GetDispute(ctx, disputeID, requesterID, requesterRole); err != nil {
		return nil, err
	}

	messages, err := s.repo.ListMessages(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute service: list messages: %w", err)
	}

	return messages, nil
}

// Resolve разрешает спор и переводит заказ в терминальный статус.
// Только админ выбирает исход: completed, refunded или cancelled.
func (s *DisputeService) Resolve(ctx context.Context, disputeID, resolvedBy uuid.UUID, requesterRole, resolution, finalOrderStatus string) (*models.Dispute, error) {
	if requesterRole != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	if strings.TrimSpace(resolution) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "не указано решение по спору")
	}
	if !models.IsOrderTransitionAllowed(models.OrderStatusDisputed, finalOrderStatus) {
		return nil, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("недопустимый итоговый статус заказа %s", finalOrderStatus))
	}

	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repository.ErrDisputeNotFound) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute service: get dispute: %w", err)
	}

	if dispute.Status == models.DisputeStatusResolved || dispute.Status == models.DisputeStatusClosed {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "спор уже разрешён")
	}

	dispute.Status = models.DisputeStatusResolved
	dispute.Resolution = &resolution
	dispute.ResolvedBy = &resolvedBy

	if err := s.repo.Resolve(ctx, dispute, finalOrderStatus); err != nil {
		if errors.Is(err, repository.ErrOrderStatusChanged) {
			return nil, apperror.New(apperror.ErrCodeConflict, "статус заказа изменился, повторите запрос")
		}
		return nil, fmt.Errorf("dispute service: resolve: %w", err)
	}

	order, err := s.orders.GetByID(ctx, dispute.OrderID)
	if err == nil {
		if finalOrderStatus == models.OrderStatusCompleted && s.points != nil {
			description := fmt.Sprintf("заказ %s завершён по итогам спора", order.ID)
			_, _ = s.points.Award(ctx, order.SellerID, models.PointSourceSale, description)
			_, _ = s.points.Award(ctx, order.BuyerID, models.PointSourcePurchase, description)
		}
		if s.notifier != nil {
			payload := map[string]interface{}{
				"dispute_id":   disputeID,
				"order_id":     order.ID,
				"resolution":   resolution,
				"order_status": finalOrderStatus,
			}
			s.notifier.Notify(ctx, order.BuyerID, "dispute.resolved", payload)
			s.notifier.Notify(ctx, order.SellerID, "dispute.resolved", payload)
		}
	}

	return dispute, nil
}

// checkParticipant проверяет, что пользователь — участник заказа спора.
func (s *DisputeService) checkParticipant(ctx context.Context, dispute *models.Dispute, userID uuid.UUID) error {
	order, err := s.orders.GetByID(ctx, dispute.OrderID)
	if err != nil {
		return fmt.Errorf("dispute service: get order: %w", err)
	}
	if !order.IsParticipant(userID) {
		return apperror.ErrForbidden
	}
	return nil
}

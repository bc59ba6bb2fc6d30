package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/p2p-market-backend/internal/logger"
	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
)

// OrderRepository описывает взаимодействие сервиса с хранилищем заказов.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Order, error)
	UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID, from, to string) error
	SetEscrowEvent(ctx context.Context, orderID uuid.UUID, reference string, locked bool) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusChange, error)
}

// ProductReader описывает минимальный контракт чтения товаров.
type ProductReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// PointsAwarder начисляет баллы за события платформы.
type PointsAwarder interface {
	Award(ctx context.Context, userID uuid.UUID, source, description string) (int, error)
}

// Notifier отправляет уведомление пользователю. Доставка best effort:
// реализация не возвращает ошибку и не должна влиять на вызвавшую операцию.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data map[string]interface{})
}

// OrderService содержит бизнес-логику жизненного цикла заказов.
type OrderService struct {
	repo     OrderRepository
	products ProductReader
	points   PointsAwarder
	notifier Notifier
}

// NewOrderService создаёт новый сервис заказов.
func NewOrderService(repo OrderRepository, products ProductReader, points PointsAwarder, notifier Notifier) *OrderService {
	return &OrderService{
		repo:     repo,
		products: products,
		points:   points,
		notifier: notifier,
	}
}

// CreateOrder создаёт заказ со статусом payment_pending.
// Остаток товара проверяется и списывается атомарно в хранилище.
func (s *OrderService) CreateOrder(ctx context.Context, buyerID, productID uuid.UUID) (*models.Order, error) {
	if productID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "не указан товар")
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, fmt.Errorf("order service: get product: %w", err)
	}

	if product.SellerID == buyerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя купить собственный товар")
	}

	order := &models.Order{
		BuyerID:   buyerID,
		ProductID: productID,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			return nil, apperror.ErrProductNotFound
		case errors.Is(err, repository.ErrProductUnavailable):
			return nil, apperror.New(apperror.ErrCodeValidation, "товар недоступен для покупки")
		}
		return nil, fmt.Errorf("order service: create order: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, order.SellerID, "order.created", map[string]interface{}{
			"order_id": order.ID,
			"buyer_id": order.BuyerID,
			"amount":   order.TotalAmount,
		})
	}

	return order, nil
}

// GetOrder возвращает заказ. Читать заказ могут только его участники и админ.
func (s *OrderService) GetOrder(ctx context.Context, orderID, requesterID uuid.UUID, requesterRole string) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order service: get order: %w", err)
	}

	if !order.IsParticipant(requesterID) && requesterRole != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}

	return order, nil
}

// ListMyOrders возвращает заказы пользователя с опциональным фильтром по статусу.
func (s *OrderService) ListMyOrders(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Order, error) {
	if status != "" {
		if _, ok := models.ValidOrderStatuses[status]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, "некорректный статус заказа")
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	orders, err := s.repo.ListByParticipant(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order service: list orders: %w", err)
	}

	return orders, nil
}

// Transition переводит заказ в новый статус через compare-and-swap по
// текущему статусу: конкурирующие переходы не могут примениться оба.
func (s *OrderService) Transition(ctx context.Context, orderID, actorID uuid.UUID, actorRole, newStatus string) (*models.Order, error) {
	if _, ok := models.ValidOrderStatuses[newStatus]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный статус заказа")
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order service: get order: %w", err)
	}

	isAdmin := actorRole == models.RoleAdmin
	if !order.IsParticipant(actorID) && !isAdmin {
		return nil, apperror.ErrForbidden
	}

	if _, terminal := models.TerminalOrderStatuses[order.Status]; terminal {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			fmt.Sprintf("заказ в терминальном статусе %s", order.Status))
	}

	if !models.IsOrderTransitionAllowed(order.Status, newStatus) {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			fmt.Sprintf("переход %s → %s запрещён", order.Status, newStatus))
	}

	if err := s.checkTransitionRole(order, actorID, isAdmin, newStatus); err != nil {
		return nil, err
	}

	fromStatus := order.Status
	if err := s.repo.UpdateStatusCAS(ctx, orderID, &actorID, fromStatus, newStatus); err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return nil, apperror.ErrOrderNotFound
		case errors.Is(err, repository.ErrOrderStatusChanged):
			return nil, apperror.New(apperror.ErrCodeConflict, "статус заказа изменился, повторите запрос")
		}
		return nil, fmt.Errorf("order service: transition: %w", err)
	}

	order.Status = newStatus

	if newStatus == models.OrderStatusCompleted {
		s.onOrderCompleted(ctx, order)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, order.Counterparty(actorID), "order.status_changed", map[string]interface{}{
			"order_id":    order.ID,
			"from_status": fromStatus,
			"to_status":   newStatus,
		})
	}

	return order, nil
}

// checkTransitionRole проверяет ролевые ограничения на переход.
// Админ может выполнять любой легальный переход.
func (s *OrderService) checkTransitionRole(order *models.Order, actorID uuid.UUID, isAdmin bool, newStatus string) error {
	if isAdmin {
		return nil
	}

	switch newStatus {
	case models.OrderStatusPaid:
		if !order.EscrowLocked {
			return apperror.New(apperror.ErrCodeInvalidState, "средства не заблокированы в escrow")
		}
		if actorID != order.BuyerID {
			return apperror.New(apperror.ErrCodeForbidden, "оплату подтверждает только покупатель")
		}
	case models.OrderStatusShipped:
		if actorID != order.SellerID {
			return apperror.New(apperror.ErrCodeForbidden, "отгрузку подтверждает только продавец")
		}
	case models.OrderStatusDelivered:
		if actorID != order.BuyerID {
			return apperror.New(apperror.ErrCodeForbidden, "получение подтверждает только покупатель")
		}
	case models.OrderStatusCompleted:
		if actorID != order.BuyerID {
			return apperror.New(apperror.ErrCodeForbidden, "завершает заказ только покупатель")
		}
	case models.OrderStatusCancelled:
		if order.Status != models.OrderStatusPaymentPending {
			return apperror.New(apperror.ErrCodeForbidden, "после оплаты заказ отменяет только администратор")
		}
	case models.OrderStatusDisputed:
		return apperror.New(apperror.ErrCodeInvalidState, "спор открывается через отдельную операцию")
	case models.OrderStatusRefunded:
		return apperror.New(apperror.ErrCodeInvalidState, "возврат проводится через разрешение спора")
	}

	return nil
}

// onOrderCompleted начисляет баллы сторонам завершённой сделки.
// Сбой начисления не откатывает переход, только логируется.
func (s *OrderService) onOrderCompleted(ctx context.Context, order *models.Order) {
	if s.points == nil {
		return
	}

	description := fmt.Sprintf("заказ %s завершён", order.ID)
	if _, err := s.points.Award(ctx, order.SellerID, models.PointSourceSale, description); err != nil {
		s.logAwardFailure(order.ID, order.SellerID, err)
	}
	if _, err := s.points.Award(ctx, order.BuyerID, models.PointSourcePurchase, description); err != nil {
		s.logAwardFailure(order.ID, order.BuyerID, err)
	}
}

func (s *OrderService) logAwardFailure(orderID, userID uuid.UUID, err error) {
	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"order_id": orderID,
			"user_id":  userID,
			"error":    err.Error(),
		}).Warn("order service: не удалось начислить баллы за завершение заказа")
	}
}

// ReportEscrowEvent фиксирует событие внешнего escrow контракта.
// Движок не ходит в сеть сам: ему сообщают факт, он сохраняет reference
// и, где уместно, продвигает статус заказа.
func (s *OrderService) ReportEscrowEvent(ctx context.Context, orderID uuid.UUID, kind, reference string) (*models.Order, error) {
	if kind != models.EscrowEventLocked && kind != models.EscrowEventReleased && kind != models.EscrowEventRefunded {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный вид события escrow")
	}
	if reference == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "не указан reference escrow")
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order service: get order: %w", err)
	}

	locked := kind == models.EscrowEventLocked
	if err := s.repo.SetEscrowEvent(ctx, orderID, reference, locked); err != nil {
		return nil, fmt.Errorf("order service: set escrow event: %w", err)
	}
	order.EscrowReference = &reference
	order.EscrowLocked = locked

	// Блокировка средств продвигает заказ из payment_pending, возврат
	// закрывает спорный заказ. Гонка с параллельным переходом не страшна:
	// CAS просто не сработает, факт escrow уже сохранён.
	switch {
	case kind == models.EscrowEventLocked && order.Status == models.OrderStatusPaymentPending:
		if err := s.repo.UpdateStatusCAS(ctx, orderID, nil, models.OrderStatusPaymentPending, models.OrderStatusPaid); err == nil {
			order.Status = models.OrderStatusPaid
		} else if !errors.Is(err, repository.ErrOrderStatusChanged) {
			return nil, fmt.Errorf("order service: escrow transition: %w", err)
		}
	case kind == models.EscrowEventRefunded && order.Status == models.OrderStatusDisputed:
		if err := s.repo.UpdateStatusCAS(ctx, orderID, nil, models.OrderStatusDisputed, models.OrderStatusRefunded); err == nil {
			order.Status = models.OrderStatusRefunded
		} else if !errors.Is(err, repository.ErrOrderStatusChanged) {
			return nil, fmt.Errorf("order service: escrow transition: %w", err)
		}
	}

	if s.notifier != nil {
		payload := map[string]interface{}{
			"order_id": order.ID,
			"kind":     kind,
		}
		s.notifier.Notify(ctx, order.BuyerID, "order.escrow_event", payload)
		s.notifier.Notify(ctx, order.SellerID, "order.escrow_event", payload)
	}

	return order, nil
}

// GetStatusHistory возвращает историю переходов заказа его участнику.
func (s *OrderService) GetStatusHistory(ctx context.Context, orderID, requesterID uuid.UUID, requesterRole string) ([]models.OrderStatusChange, error) {
	if _, err := s.GetOrder(ctx, orderID, requesterID, requesterRole); err != nil {
		return nil, err
	}

	history, err := s.repo.ListStatusHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order service: status history: %w", err)
	}

	return history, nil
}

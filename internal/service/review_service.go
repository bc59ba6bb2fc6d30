package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
	"github.com/ignatzorin/p2p-market-backend/internal/validation"
)

// ReviewRepository описывает взаимодействие сервиса с хранилищем отзывов.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	ListByTarget(ctx context.Context, targetID uuid.UUID, limit, offset int) ([]models.Review, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Review, error)
	AverageRating(ctx context.Context, targetID uuid.UUID) (float64, int, error)
}

// ReviewService содержит бизнес-логику отзывов.
type ReviewService struct {
	repo     ReviewRepository
	orders   OrderReader
	points   PointsAwarder
	notifier Notifier
}

// NewReviewService создаёт новый сервис отзывов.
func NewReviewService(repo ReviewRepository, orders OrderReader, points PointsAwarder, notifier Notifier) *ReviewService {
	return &ReviewService{
		repo:     repo,
		orders:   orders,
		points:   points,
		notifier: notifier,
	}
}

// CreateReview оставляет отзыв о второй стороне завершённого заказа.
// Отзыв неизменяем, на заказ существует не более одного отзыва —
// его оставляет та сторона, что успела первой.
func (s *ReviewService) CreateReview(ctx context.Context, orderID, authorID uuid.UUID, rating int, comment *string) (*models.Review, error) {
	if err := validation.ValidateRating(rating); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("review service: get order: %w", err)
	}

	if !order.IsParticipant(authorID) {
		return nil, apperror.ErrForbidden
	}

	if order.Status != models.OrderStatusCompleted {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "отзыв можно оставить только по завершённому заказу")
	}

	review := &models.Review{
		OrderID:  orderID,
		AuthorID: authorID,
		TargetID: order.Counterparty(authorID),
		Rating:   rating,
		Comment:  comment,
	}

	if err := s.repo.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrReviewExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "по этому заказу уже оставлен отзыв")
		}
		return nil, fmt.Errorf("review service: create review: %w", err)
	}

	if s.points != nil {
		_, _ = s.points.Award(ctx, authorID, models.PointSourceReviewWritten,
			fmt.Sprintf("отзыв по заказу %s", orderID))
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, review.TargetID, "review.created", map[string]interface{}{
			"review_id": review.ID,
			"order_id":  orderID,
			"rating":    rating,
		})
	}

	return review, nil
}

// ListUserReviews возвращает отзывы о пользователе.
func (s *ReviewService) ListUserReviews(ctx context.Context, targetID uuid.UUID, limit, offset int) ([]models.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	reviews, err := s.repo.ListByTarget(ctx, targetID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("review service: list reviews: %w", err)
	}

	return reviews, nil
}

// ListOrderReviews возвращает отзывы по заказу его участнику.
func (s *ReviewService) ListOrderReviews(ctx context.Context, orderID, requesterID uuid.UUID, requesterRole string) ([]models.Review, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("review service: get order: %w", err)
	}

	if !order.IsParticipant(requesterID) && requesterRole != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}

	reviews, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("review service: list order reviews: %w", err)
	}

	return reviews, nil
}

// UserRatingSummary возвращает среднюю оценку пользователя и число отзывов.
func (s *ReviewService) UserRatingSummary(ctx context.Context, targetID uuid.UUID) (float64, int, error) {
	avg, total, err := s.repo.AverageRating(ctx, targetID)
	if err != nil {
		return 0, 0, fmt.Errorf("review service: rating summary: %w", err)
	}

	return avg, total, nil
}

package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
)

type mockReviewRepo struct {
	mock.Mock
}

func (m *mockReviewRepo) Create(ctx context.Context, review *models.Review) error {
	args := m.Called(ctx, review)
	if args.Error(0) == nil {
		review.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockReviewRepo) ListByTarget(ctx context.Context, targetID uuid.UUID, limit, offset int) ([]models.Review, error) {
	args := m.Called(ctx, targetID, limit, offset)
	return args.Get(0).([]models.Review), args.Error(1)
}

func (m *mockReviewRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Review, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]models.Review), args.Error(1)
}

func (m *mockReviewRepo) AverageRating(ctx context.Context, targetID uuid.UUID) (float64, int, error) {
	args := m.Called(ctx, targetID)
	return args.Get(0).(float64), args.Int(1), args.Error(2)
}

func TestReviewService_CreateReview_Success(t *testing.T) {
	repo := new(mockReviewRepo)
	orders := new(mockOrderRepo)
	points := &fakeAwarder{}
	notifier := &fakeNotifier{}
	svc := NewReviewService(repo, orders, points, notifier)
	ctx := context.Background()

	buyerID := uuid.New()
	sellerID := uuid.New()
	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: sellerID,
		Status:   models.OrderStatusCompleted,
	}, nil)
	repo.On("Create", ctx, mock.MatchedBy(func(r *models.Review) bool {
		return r.AuthorID == buyerID && r.TargetID == sellerID && r.Rating == 5
	})).Return(nil)

	comment := "быстрая отправка, всё как в описании"
	review, err := svc.CreateReview(ctx, orderID, buyerID, 5, &comment)
	assert.NoError(t, err)
	assert.Equal(t, sellerID, review.TargetID)
	assert.Equal(t, []string{models.PointSourceReviewWritten}, points.awards)
	assert.Equal(t, []string{"review.created"}, notifier.events)
}

func TestReviewService_CreateReview_RatingBounds(t *testing.T) {
	svc := NewReviewService(new(mockReviewRepo), new(mockOrderRepo), nil, nil)

	for _, rating := range []int{0, -1, 6, 100} {
		_, err := svc.CreateReview(context.Background(), uuid.New(), uuid.New(), rating, nil)
		assert.True(t, apperror.IsValidation(err), "оценка %d", rating)
	}
}

func TestReviewService_CreateReview_OrderNotCompleted(t *testing.T) {
	repo := new(mockReviewRepo)
	orders := new(mockOrderRepo)
	svc := NewReviewService(repo, orders, nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusDelivered,
	}, nil)

	_, err := svc.CreateReview(ctx, orderID, buyerID, 4, nil)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeInvalidState, appErr.Code)
	repo.AssertNotCalled(t, "Create")
}

func TestReviewService_CreateReview_Duplicate(t *testing.T) {
	repo := new(mockReviewRepo)
	orders := new(mockOrderRepo)
	svc := NewReviewService(repo, orders, nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusCompleted,
	}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*models.Review")).Return(repository.ErrReviewExists)

	_, err := svc.CreateReview(ctx, orderID, buyerID, 3, nil)
	assert.True(t, apperror.IsConflict(err))
}

func TestReviewService_CreateReview_OnePerOrder(t *testing.T) {
	repo := new(mockReviewRepo)
	orders := new(mockOrderRepo)
	svc := NewReviewService(repo, orders, nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	sellerID := uuid.New()
	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: sellerID,
		Status:   models.OrderStatusCompleted,
	}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*models.Review")).Return(nil).Once()
	repo.On("Create", ctx, mock.AnythingOfType("*models.Review")).Return(repository.ErrReviewExists)

	_, err := svc.CreateReview(ctx, orderID, buyerID, 5, nil)
	assert.NoError(t, err)

	// Вторая сторона не может оставить второй отзыв на тот же заказ.
	_, err = svc.CreateReview(ctx, orderID, sellerID, 1, nil)
	assert.True(t, apperror.IsConflict(err))
	repo.AssertNumberOfCalls(t, "Create", 2)
}

func TestReviewService_CreateReview_Outsider(t *testing.T) {
	orders := new(mockOrderRepo)
	svc := NewReviewService(new(mockReviewRepo), orders, nil, nil)
	ctx := context.Background()

	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusCompleted,
	}, nil)

	_, err := svc.CreateReview(ctx, orderID, uuid.New(), 5, nil)
	assert.True(t, apperror.IsForbidden(err))
}

func TestReviewService_CreateReview_SellerReviewsBuyer(t *testing.T) {
	repo := new(mockReviewRepo)
	orders := new(mockOrderRepo)
	svc := NewReviewService(repo, orders, nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	sellerID := uuid.New()
	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: sellerID,
		Status:   models.OrderStatusCompleted,
	}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*models.Review")).Return(nil)

	review, err := svc.CreateReview(ctx, orderID, sellerID, 4, nil)
	assert.NoError(t, err)
	assert.Equal(t, buyerID, review.TargetID, "целью отзыва продавца должен быть покупатель")
}

func TestReviewService_ListOrderReviews_Outsider(t *testing.T) {
	orders := new(mockOrderRepo)
	svc := NewReviewService(new(mockReviewRepo), orders, nil, nil)
	ctx := context.Background()

	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusCompleted,
	}, nil)

	_, err := svc.ListOrderReviews(ctx, orderID, uuid.New(), models.RoleUser)
	assert.True(t, apperror.IsForbidden(err))
}

func TestReviewService_UserRatingSummary(t *testing.T) {
	repo := new(mockReviewRepo)
	svc := NewReviewService(repo, new(mockOrderRepo), nil, nil)
	ctx := context.Background()

	targetID := uuid.New()
	repo.On("AverageRating", ctx, targetID).Return(4.25, 8, nil)

	avg, total, err := svc.UserRatingSummary(ctx, targetID)
	assert.NoError(t, err)
	assert.Equal(t, 4.25, avg)
	assert.Equal(t, 8, total)
}

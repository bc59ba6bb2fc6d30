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

type mockDisputeRepo struct {
	mock.Mock
}

func (m *mockDisputeRepo) Create(ctx context.Context, dispute *models.Dispute, orderStatusBefore string) error {
	args := m.Called(ctx, dispute, orderStatusBefore)
	if args.Error(0) == nil {
		dispute.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) UpdateStatus(ctx context.Context, disputeID uuid.UUID, status string) error {
	args := m.Called(ctx, disputeID, status)
	return args.Error(0)
}

func (m *mockDisputeRepo) Resolve(ctx context.Context, dispute *models.Dispute, finalOrderStatus string) error {
	args := m.Called(ctx, dispute, finalOrderStatus)
	return args.Error(0)
}

func (m *mockDisputeRepo) AddMessage(ctx context.Context, message *models.DisputeMessage) error {
	args := m.Called(ctx, message)
	if args.Error(0) == nil {
		message.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockDisputeRepo) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	args := m.Called(ctx, disputeID)
	return args.Get(0).([]models.DisputeMessage), args.Error(1)
}

func TestDisputeService_RaiseDispute_Success(t *testing.T) {
	repo := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	notifier := &fakeNotifier{}
	svc := NewDisputeService(repo, orders, nil, notifier)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusShipped,
	}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*models.Dispute"), models.OrderStatusShipped).Return(nil)

	dispute, err := svc.RaiseDispute(ctx, orderID, buyerID, "товар не пришёл", "трек не отслеживается")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	assert.Contains(t, notifier.events, "dispute.opened")
}

func TestDisputeService_RaiseDispute_WrongOrderStatus(t *testing.T) {
	repo := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := NewDisputeService(repo, orders, nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	for _, status := range []string{
		models.OrderStatusPaymentPending,
		models.OrderStatusPaid,
		models.OrderStatusCompleted,
		models.OrderStatusRefunded,
	} {
		orderID := uuid.New()
		orders.On("GetByID", ctx, orderID).Return(&models.Order{
			ID:       orderID,
			BuyerID:  buyerID,
			SellerID: uuid.New(),
			Status:   status,
		}, nil)

		_, err := svc.RaiseDispute(ctx, orderID, buyerID, "причина", "")
		var appErr *apperror.AppError
		assert.ErrorAs(t, err, &appErr, "статус %s", status)
		assert.Equal(t, apperror.ErrCodeInvalidState, appErr.Code)
	}
	repo.AssertNotCalled(t, "Create")
}

func TestDisputeService_RaiseDispute_Duplicate(t *testing.T) {
	repo := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := NewDisputeService(repo, orders, nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusDelivered,
	}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*models.Dispute"), models.OrderStatusDelivered).
		Return(repository.ErrDisputeExists)

	_, err := svc.RaiseDispute(ctx, orderID, buyerID, "повторная попытка", "")
	assert.True(t, apperror.IsConflict(err))
}

func TestDisputeService_RaiseDispute_Outsider(t *testing.T) {
	orders := new(mockOrderRepo)
	svc := NewDisputeService(new(mockDisputeRepo), orders, nil, nil)
	ctx := context.Background()

	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusShipped,
	}, nil)

	_, err := svc.RaiseDispute(ctx, orderID, uuid.New(), "чужой заказ", "")
	assert.True(t, apperror.IsForbidden(err))
}

func TestDisputeService_RaiseDispute_EmptyReason(t *testing.T) {
	svc := NewDisputeService(new(mockDisputeRepo), new(mockOrderRepo), nil, nil)

	_, err := svc.RaiseDispute(context.Background(), uuid.New(), uuid.New(), "   ", "")
	assert.True(t, apperror.IsValidation(err))
}

func TestDisputeService_AddMessage_ResolvedDispute(t *testing.T) {
	repo := new(mockDisputeRepo)
	svc := NewDisputeService(repo, new(mockOrderRepo), nil, nil)
	ctx := context.Background()

	disputeID := uuid.New()
	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:      disputeID,
		OrderID: uuid.New(),
		Status:  models.DisputeStatusResolved,
	}, nil)

	_, err := svc.AddMessage(ctx, disputeID, uuid.New(), models.RoleUser, "ещё аргумент")
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeInvalidState, appErr.Code)
}

func TestDisputeService_AddMessage_Outsider(t *testing.T) {
	repo := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := NewDisputeService(repo, orders, nil, nil)
	ctx := context.Background()

	disputeID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:      disputeID,
		OrderID: orderID,
		Status:  models.DisputeStatusOpen,
	}, nil)
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusDisputed,
	}, nil)

	_, err := svc.AddMessage(ctx, disputeID, uuid.New(), models.RoleUser, "я тут мимо проходил")
	assert.True(t, apperror.IsForbidden(err))
	repo.AssertNotCalled(t, "AddMessage")
}

func TestDisputeService_AddMessage_NotifiesCounterparty(t *testing.T) {
	repo := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	notifier := &fakeNotifier{}
	svc := NewDisputeService(repo, orders, nil, notifier)
	ctx := context.Background()

	buyerID := uuid.New()
	disputeID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:      disputeID,
		OrderID: orderID,
		Status:  models.DisputeStatusInReview,
	}, nil)
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusDisputed,
	}, nil)
	repo.On("AddMessage", ctx, mock.AnythingOfType("*models.DisputeMessage")).Return(nil)

	message, err := svc.AddMessage(ctx, disputeID, buyerID, models.RoleUser, "посылка так и не дошла")
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, message.ID)
	assert.Equal(t, []string{"dispute.message"}, notifier.events)
}

func TestDisputeService_TakeInReview_OnlyAdmin(t *testing.T) {
	svc := NewDisputeService(new(mockDisputeRepo), new(mockOrderRepo), nil, nil)

	_, err := svc.TakeInReview(context.Background(), uuid.New(), models.RoleUser)
	assert.True(t, apperror.IsForbidden(err))
}

func TestDisputeService_TakeInReview_OnlyOpen(t *testing.T) {
	repo := new(mockDisputeRepo)
	svc := NewDisputeService(repo, new(mockOrderRepo), nil, nil)
	ctx := context.Background()

	disputeID := uuid.New()
	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:     disputeID,
		Status: models.DisputeStatusInReview,
	}, nil)

	_, err := svc.TakeInReview(ctx, disputeID, models.RoleAdmin)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeInvalidState, appErr.Code)
}

func TestDisputeService_Resolve_IllegalFinalStatus(t *testing.T) {
	svc := NewDisputeService(new(mockDisputeRepo), new(mockOrderRepo), nil, nil)

	// Из disputed нельзя уйти в shipped, это не исход спора.
	_, err := svc.Resolve(context.Background(), uuid.New(), uuid.New(), models.RoleAdmin,
		"возврат", models.OrderStatusShipped)
	assert.True(t, apperror.IsValidation(err))
}

func TestDisputeService_Resolve_OnlyAdmin(t *testing.T) {
	svc := NewDisputeService(new(mockDisputeRepo), new(mockOrderRepo), nil, nil)

	_, err := svc.Resolve(context.Background(), uuid.New(), uuid.New(), models.RoleUser,
		"решение", models.OrderStatusRefunded)
	assert.True(t, apperror.IsForbidden(err))
}

func TestDisputeService_Resolve_CompletedAwardsPoints(t *testing.T) {
	repo := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	points := &fakeAwarder{}
	notifier := &fakeNotifier{}
	svc := NewDisputeService(repo, orders, points, notifier)
	ctx := context.Background()

	adminID := uuid.New()
	disputeID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:      disputeID,
		OrderID: orderID,
		Status:  models.DisputeStatusInReview,
	}, nil)
	repo.On("Resolve", ctx, mock.AnythingOfType("*models.Dispute"), models.OrderStatusCompleted).Return(nil)
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusCompleted,
	}, nil)

	dispute, err := svc.Resolve(ctx, disputeID, adminID, models.RoleAdmin,
		"товар получен, претензия снята", models.OrderStatusCompleted)
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, dispute.Status)
	assert.Equal(t, &adminID, dispute.ResolvedBy)
	assert.Equal(t, []string{models.PointSourceSale, models.PointSourcePurchase}, points.awards)
	assert.Equal(t, []string{"dispute.resolved", "dispute.resolved"}, notifier.events)
}

func TestDisputeService_Resolve_RefundedNoAwards(t *testing.T) {
	repo := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	points := &fakeAwarder{}
	svc := NewDisputeService(repo, orders, points, nil)
	ctx := context.Background()

	disputeID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:      disputeID,
		OrderID: orderID,
		Status:  models.DisputeStatusOpen,
	}, nil)
	repo.On("Resolve", ctx, mock.AnythingOfType("*models.Dispute"), models.OrderStatusRefunded).Return(nil)
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusRefunded,
	}, nil)

	_, err := svc.Resolve(ctx, disputeID, uuid.New(), models.RoleAdmin,
		"продавец не отгрузил товар", models.OrderStatusRefunded)
	assert.NoError(t, err)
	assert.Empty(t, points.awards)
}

func TestDisputeService_Resolve_AlreadyResolved(t *testing.T) {
	repo := new(mockDisputeRepo)
	svc := NewDisputeService(repo, new(mockOrderRepo), nil, nil)
	ctx := context.Background()

	disputeID := uuid.New()
	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:     disputeID,
		Status: models.DisputeStatusResolved,
	}, nil)

	_, err := svc.Resolve(ctx, disputeID, uuid.New(), models.RoleAdmin,
		"повторное решение", models.OrderStatusCancelled)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeInvalidState, appErr.Code)
}

func TestDisputeService_GetDispute_Outsider(t *testing.T) {
	repo := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := NewDisputeService(repo, orders, nil, nil)
	ctx := context.Background()

	disputeID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:      disputeID,
		OrderID: orderID,
		Status:  models.DisputeStatusOpen,
	}, nil)
	orders.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
	}, nil)

	_, err := svc.GetDispute(ctx, disputeID, uuid.New(), models.RoleUser)
	assert.True(t, apperror.IsForbidden(err))

	// Админ читает спор без проверки участия.
	dispute, err := svc.GetDispute(ctx, disputeID, uuid.New(), models.RoleAdmin)
	assert.NoError(t, err)
	assert.Equal(t, disputeID, dispute.ID)
}

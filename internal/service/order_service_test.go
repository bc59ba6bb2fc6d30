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

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	if args.Error(0) == nil {
		order.ID = uuid.New()
		order.Status = models.OrderStatusPaymentPending
	}
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListByParticipant(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Order, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderRepo) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID, from, to string) error {
	args := m.Called(ctx, orderID, actorID, from, to)
	return args.Error(0)
}

func (m *mockOrderRepo) SetEscrowEvent(ctx context.Context, orderID uuid.UUID, reference string, locked bool) error {
	args := m.Called(ctx, orderID, reference, locked)
	return args.Error(0)
}

func (m *mockOrderRepo) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusChange, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]models.OrderStatusChange), args.Error(1)
}

type mockProductReader struct {
	mock.Mock
}

func (m *mockProductReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

// fakeAwarder записывает начисления, не требуя настройки ожиданий.
type fakeAwarder struct {
	awards []string
}

func (f *fakeAwarder) Award(ctx context.Context, userID uuid.UUID, source, description string) (int, error) {
	f.awards = append(f.awards, source)
	return 100, nil
}

// fakeNotifier записывает события уведомлений.
type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, data map[string]interface{}) {
	f.events = append(f.events, event)
}

func TestOrderService_CreateOrder_SelfPurchase(t *testing.T) {
	repo := new(mockOrderRepo)
	products := new(mockProductReader)
	svc := NewOrderService(repo, products, nil, nil)
	ctx := context.Background()

	sellerID := uuid.New()
	productID := uuid.New()
	products.On("GetByID", ctx, productID).Return(&models.Product{
		ID:       productID,
		SellerID: sellerID,
		IsActive: true,
		Stock:    3,
	}, nil)

	_, err := svc.CreateOrder(ctx, sellerID, productID)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "Create")
}

func TestOrderService_CreateOrder_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	products := new(mockProductReader)
	notifier := &fakeNotifier{}
	svc := NewOrderService(repo, products, nil, notifier)
	ctx := context.Background()

	buyerID := uuid.New()
	productID := uuid.New()
	products.On("GetByID", ctx, productID).Return(&models.Product{
		ID:       productID,
		SellerID: uuid.New(),
		IsActive: true,
		Stock:    1,
	}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*models.Order")).Return(nil)

	order, err := svc.CreateOrder(ctx, buyerID, productID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaymentPending, order.Status)
	assert.Contains(t, notifier.events, "order.created")
}

func TestOrderService_Transition_FullLifecycle(t *testing.T) {
	// Полный путь заказа: оплата после блокировки escrow, отгрузка
	// продавцом, получение и завершение покупателем.
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	orderID := uuid.New()

	steps := []struct {
		from     string
		to       string
		actor    uuid.UUID
		escrowed bool
	}{
		{models.OrderStatusPaymentPending, models.OrderStatusPaid, buyerID, true},
		{models.OrderStatusPaid, models.OrderStatusShipped, sellerID, true},
		{models.OrderStatusShipped, models.OrderStatusDelivered, buyerID, true},
		{models.OrderStatusDelivered, models.OrderStatusCompleted, buyerID, true},
	}

	points := &fakeAwarder{}
	for _, step := range steps {
		repo := new(mockOrderRepo)
		svc := NewOrderService(repo, new(mockProductReader), points, nil)

		repo.On("GetByID", ctx, orderID).Return(&models.Order{
			ID:           orderID,
			BuyerID:      buyerID,
			SellerID:     sellerID,
			Status:       step.from,
			EscrowLocked: step.escrowed,
		}, nil)
		repo.On("UpdateStatusCAS", ctx, orderID, &step.actor, step.from, step.to).Return(nil)

		order, err := svc.Transition(ctx, orderID, step.actor, models.RoleUser, step.to)
		assert.NoError(t, err, "переход %s → %s", step.from, step.to)
		assert.Equal(t, step.to, order.Status)
	}

	// Завершение начисляет SALE продавцу и PURCHASE покупателю.
	assert.Equal(t, []string{models.PointSourceSale, models.PointSourcePurchase}, points.awards)
}

func TestOrderService_Transition_PaidRequiresEscrow(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:           orderID,
		BuyerID:      buyerID,
		SellerID:     uuid.New(),
		Status:       models.OrderStatusPaymentPending,
		EscrowLocked: false,
	}, nil)

	_, err := svc.Transition(ctx, orderID, buyerID, models.RoleUser, models.OrderStatusPaid)
	assert.Error(t, err)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeInvalidState, appErr.Code)
	repo.AssertNotCalled(t, "UpdateStatusCAS")
}

func TestOrderService_Transition_BuyerCannotShip(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:           orderID,
		BuyerID:      buyerID,
		SellerID:     uuid.New(),
		Status:       models.OrderStatusPaid,
		EscrowLocked: true,
	}, nil)

	_, err := svc.Transition(ctx, orderID, buyerID, models.RoleUser, models.OrderStatusShipped)
	assert.True(t, apperror.IsForbidden(err))
}

func TestOrderService_Transition_TerminalStatus(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusCompleted,
	}, nil)

	_, err := svc.Transition(ctx, orderID, buyerID, models.RoleUser, models.OrderStatusShipped)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestOrderService_Transition_RepeatedShipFails(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	sellerID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:           orderID,
		BuyerID:      uuid.New(),
		SellerID:     sellerID,
		Status:       models.OrderStatusShipped,
		EscrowLocked: true,
	}, nil)

	_, err := svc.Transition(ctx, orderID, sellerID, models.RoleUser, models.OrderStatusShipped)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestOrderService_Transition_CASConflict(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:           orderID,
		BuyerID:      buyerID,
		SellerID:     uuid.New(),
		Status:       models.OrderStatusShipped,
		EscrowLocked: true,
	}, nil)
	repo.On("UpdateStatusCAS", ctx, orderID, &buyerID, models.OrderStatusShipped, models.OrderStatusDelivered).
		Return(repository.ErrOrderStatusChanged)

	_, err := svc.Transition(ctx, orderID, buyerID, models.RoleUser, models.OrderStatusDelivered)
	assert.True(t, apperror.IsConflict(err))
}

func TestOrderService_Transition_Outsider(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusPaid,
	}, nil)

	_, err := svc.Transition(ctx, orderID, uuid.New(), models.RoleUser, models.OrderStatusShipped)
	assert.True(t, apperror.IsForbidden(err))
}

func TestOrderService_Transition_UserCannotDispute(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:           orderID,
		BuyerID:      buyerID,
		SellerID:     uuid.New(),
		Status:       models.OrderStatusShipped,
		EscrowLocked: true,
	}, nil)

	_, err := svc.Transition(ctx, orderID, buyerID, models.RoleUser, models.OrderStatusDisputed)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeInvalidState, appErr.Code)
}

func TestOrderService_ReportEscrowEvent_LockedAdvancesOrder(t *testing.T) {
	repo := new(mockOrderRepo)
	notifier := &fakeNotifier{}
	svc := NewOrderService(repo, new(mockProductReader), nil, notifier)
	ctx := context.Background()

	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusPaymentPending,
	}, nil)
	repo.On("SetEscrowEvent", ctx, orderID, "tx-0001", true).Return(nil)
	repo.On("UpdateStatusCAS", ctx, orderID, (*uuid.UUID)(nil), models.OrderStatusPaymentPending, models.OrderStatusPaid).Return(nil)

	order, err := svc.ReportEscrowEvent(ctx, orderID, models.EscrowEventLocked, "tx-0001")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.True(t, order.EscrowLocked)
	assert.Len(t, notifier.events, 2)
}

func TestOrderService_ReportEscrowEvent_RaceTolerated(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusPaymentPending,
	}, nil)
	repo.On("SetEscrowEvent", ctx, orderID, "tx-0002", true).Return(nil)
	// Параллельный переход успел раньше: CAS не сработал, но факт escrow сохранён.
	repo.On("UpdateStatusCAS", ctx, orderID, (*uuid.UUID)(nil), models.OrderStatusPaymentPending, models.OrderStatusPaid).
		Return(repository.ErrOrderStatusChanged)

	order, err := svc.ReportEscrowEvent(ctx, orderID, models.EscrowEventLocked, "tx-0002")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaymentPending, order.Status)
}

func TestOrderService_ReportEscrowEvent_UnknownKind(t *testing.T) {
	svc := NewOrderService(new(mockOrderRepo), new(mockProductReader), nil, nil)

	_, err := svc.ReportEscrowEvent(context.Background(), uuid.New(), "melted", "tx-0003")
	assert.True(t, apperror.IsValidation(err))
}

func TestOrderService_GetOrder_OutsiderForbidden(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, new(mockProductReader), nil, nil)
	ctx := context.Background()

	orderID := uuid.New()
	repo.On("GetByID", ctx, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusPaid,
	}, nil)

	_, err := svc.GetOrder(ctx, orderID, uuid.New(), models.RoleUser)
	assert.True(t, apperror.IsForbidden(err))

	// Админ видит любой заказ.
	order, err := svc.GetOrder(ctx, orderID, uuid.New(), models.RoleAdmin)
	assert.NoError(t, err)
	assert.Equal(t, orderID, order.ID)
}

func TestOrderService_ListMyOrders_InvalidStatus(t *testing.T) {
	svc := NewOrderService(new(mockOrderRepo), new(mockProductReader), nil, nil)

	_, err := svc.ListMyOrders(context.Background(), uuid.New(), "shipped_back", 20, 0)
	assert.True(t, apperror.IsValidation(err))
}

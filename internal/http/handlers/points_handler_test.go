package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/p2p-market-backend/internal/dto"
	"github.com/ignatzorin/p2p-market-backend/internal/http/middleware"
	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
	"github.com/ignatzorin/p2p-market-backend/internal/service"
)

// stubPointsRepo держит баланс в памяти; списание сверх баланса
// возвращает ту же ошибку, что и настоящий репозиторий.
type stubPointsRepo struct {
	balance int
}

func (r *stubPointsRepo) AppendEarn(ctx context.Context, txn *models.PointTransaction) error {
	r.balance += txn.Amount
	return nil
}

func (r *stubPointsRepo) Spend(ctx context.Context, txn *models.PointTransaction) error {
	if txn.Amount > r.balance {
		return repository.ErrInsufficientPoints
	}
	r.balance -= txn.Amount
	return nil
}

func (r *stubPointsRepo) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.balance, nil
}

func (r *stubPointsRepo) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointTransaction, error) {
	return nil, nil
}

func (r *stubPointsRepo) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	return nil, nil
}

func (r *stubPointsRepo) GetOrCreateReferralCode(ctx context.Context, userID uuid.UUID, code string) (*models.ReferralCode, error) {
	return &models.ReferralCode{UserID: userID, Code: code}, nil
}

func (r *stubPointsRepo) GetReferralByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	return nil, repository.ErrReferralCodeNotFound
}

func (r *stubPointsRepo) RedeemReferral(ctx context.Context, codeID uuid.UUID, inviterTxn, invitedTxn *models.PointTransaction) error {
	return nil
}

// spendRouter собирает минимальный роутер: подстановка пользователя,
// обработчик ошибок и сам маршрут списания.
func spendRouter(handler *PointsHandler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.POST("/points/spend", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
		handler.Spend(c)
	})
	return router
}

func TestPointsHandler_Spend_InsufficientBalance(t *testing.T) {
	svc := service.NewPointsService(&stubPointsRepo{balance: 40}, nil)
	router := spendRouter(NewPointsHandler(svc), uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/points/spend",
		strings.NewReader(`{"amount": 100, "description": "скидка на комиссию"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(apperror.ErrCodeInsufficientBalance), body.Code)
}

func TestPointsHandler_Spend_Success(t *testing.T) {
	svc := service.NewPointsService(&stubPointsRepo{balance: 200}, nil)
	router := spendRouter(NewPointsHandler(svc), uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/points/spend",
		strings.NewReader(`{"amount": 100, "description": "скидка на комиссию"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body dto.SpendResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Spent)
}

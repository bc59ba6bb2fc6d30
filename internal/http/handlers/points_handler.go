package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/p2p-market-backend/internal/dto"
	"github.com/ignatzorin/p2p-market-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/service"
)

// PointsHandler обслуживает маршруты баллов и рефералов.
type PointsHandler struct {
	points *service.PointsService
}

// NewPointsHandler создаёт новый хэндлер.
func NewPointsHandler(points *service.PointsService) *PointsHandler {
	return &PointsHandler{points: points}
}

// Balance обрабатывает GET /points/balance.
func (h *PointsHandler) Balance(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	balance, err := h.points.Balance(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.BalanceResponse{Balance: balance})
}

// History обрабатывает GET /points/history.
func (h *PointsHandler) History(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	txns, err := h.points.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// Spend обрабатывает POST /points/spend.
func (h *PointsHandler) Spend(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.SpendPointsRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	spent, err := h.points.Spend(c.Request.Context(), userID, req.Amount, req.Description)
	if err != nil {
		c.Error(err)
		return
	}

	if !spent {
		c.Error(apperror.New(apperror.ErrCodeInsufficientBalance, "недостаточно баллов"))
		return
	}

	c.JSON(http.StatusOK, dto.SpendResponse{Spent: true})
}

// Leaderboard обрабатывает GET /points/leaderboard.
func (h *PointsHandler) Leaderboard(c *gin.Context) {
	limit := common.ParseIntQuery(c, "limit", 20)

	entries, err := h.points.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// MyReferralCode обрабатывает GET /points/referral.
func (h *PointsHandler) MyReferralCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	code, err := h.points.MyReferralCode(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, code)
}

// ApplyReferral обрабатывает POST /points/referral/apply.
func (h *PointsHandler) ApplyReferral(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.ApplyReferralRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.points.ApplyReferral(c.Request.Context(), req.Code, userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "реферальный код применён"})
}

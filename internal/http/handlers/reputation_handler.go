package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/p2p-market-backend/internal/dto"
	"github.com/ignatzorin/p2p-market-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-market-backend/internal/service"
)

// ReputationHandler обслуживает маршруты репутации продавцов.
type ReputationHandler struct {
	reputation *service.ReputationService
}

// NewReputationHandler создаёт новый хэндлер.
func NewReputationHandler(reputation *service.ReputationService) *ReputationHandler {
	return &ReputationHandler{reputation: reputation}
}

// GetSellerReputation обрабатывает GET /users/:id/reputation.
func (h *ReputationHandler) GetSellerReputation(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	stats, badges, err := h.reputation.GetSellerReputation(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ReputationResponse{
		Stats:  stats,
		Badges: badges,
	})
}

// TopSellers обрабатывает GET /sellers/top.
func (h *ReputationHandler) TopSellers(c *gin.Context) {
	limit := common.ParseIntQuery(c, "limit", 20)

	sellers, err := h.reputation.TopSellers(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sellers": sellers})
}

// Recompute обрабатывает POST /admin/reputation/recompute.
// Ручной запуск полного пересчёта вне расписания.
func (h *ReputationHandler) Recompute(c *gin.Context) {
	if err := h.reputation.RecomputeAll(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "пересчёт репутации выполнен"})
}

// GrantVerifiedBadge обрабатывает POST /admin/users/:id/verify.
func (h *ReputationHandler) GrantVerifiedBadge(c *gin.Context) {
	role, _ := common.CurrentUserRole(c)

	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.reputation.GrantVerifiedBadge(c.Request.Context(), userID, role); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "значок verified выдан"})
}

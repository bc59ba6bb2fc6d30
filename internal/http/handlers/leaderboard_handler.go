package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/p2p-market-backend/internal/dto"
	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/service"
)

// LeaderboardHandler обслуживает маршруты снапшотов рейтингов.
type LeaderboardHandler struct {
	leaderboards *service.LeaderboardService
}

// NewLeaderboardHandler создаёт новый хэндлер.
func NewLeaderboardHandler(leaderboards *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboards: leaderboards}
}

// GetSnapshot обрабатывает GET /leaderboards?period=WEEKLY&type=SELLER.
func (h *LeaderboardHandler) GetSnapshot(c *gin.Context) {
	period := strings.ToUpper(c.DefaultQuery("period", models.LeaderboardPeriodAllTime))
	leaderboardType := strings.ToUpper(c.DefaultQuery("type", models.LeaderboardTypePoints))

	entries, err := h.leaderboards.GetSnapshot(c.Request.Context(), period, leaderboardType)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.SnapshotResponse{
		Period:  period,
		Type:    leaderboardType,
		Entries: entries,
	})
}

// Snapshot обрабатывает POST /admin/leaderboards/snapshot.
// Ручной запуск материализации снапшотов вне расписания.
func (h *LeaderboardHandler) Snapshot(c *gin.Context) {
	if err := h.leaderboards.SnapshotAll(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "снапшоты рейтингов обновлены"})
}

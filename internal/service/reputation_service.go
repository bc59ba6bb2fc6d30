package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/p2p-market-backend/internal/logger"
	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
)

// StatsRepository описывает взаимодействие сервиса с хранилищем статистики.
type StatsRepository interface {
	ListSellerIDs(ctx context.Context) ([]uuid.UUID, error)
	OrderAggregates(ctx context.Context, sellerID uuid.UUID) (totalOrders, completedOrders, disputedOrders int, totalSales float64, err error)
	Upsert(ctx context.Context, stats *models.SellerStats) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.SellerStats, error)
	TopSellers(ctx context.Context, limit int) ([]models.SellerStats, error)
	GrantBadge(ctx context.Context, userID uuid.UUID, badgeType, description string) (bool, error)
	RevokeBadge(ctx context.Context, userID uuid.UUID, badgeType string) (bool, error)
	ListBadges(ctx context.Context, userID uuid.UUID) ([]models.Badge, error)
}

// RatingReader возвращает среднюю оценку пользователя по отзывам.
type RatingReader interface {
	AverageRating(ctx context.Context, targetID uuid.UUID) (float64, int, error)
}

// ShipTimeReader возвращает среднее время отгрузки продавца в часах.
type ShipTimeReader interface {
	AverageShipTimeHours(ctx context.Context, sellerID uuid.UUID) (float64, error)
}

// ResponseTimeReader возвращает среднее время ответа продавца в минутах.
type ResponseTimeReader interface {
	AverageSellerResponseMinutes(ctx context.Context, sellerID uuid.UUID) (float64, error)
}

// Описания значков для выдачи.
var badgeDescriptions = map[string]string{
	models.BadgeTopSeller:   "50+ завершённых продаж с оценкой 4.5+",
	models.BadgeFastShipper: "отгрузка в среднем быстрее 24 часов",
	models.BadgeResponsive:  "ответ в споре в среднем быстрее 30 минут",
	models.BadgeTrusted:     "trust score 80+ без единого спора",
	models.BadgeVerified:    "личность подтверждена вручную",
}

// ReputationService пересчитывает статистику, trust score и значки продавцов.
type ReputationService struct {
	stats     StatsRepository
	ratings   RatingReader
	shipTimes ShipTimeReader
	responses ResponseTimeReader
	points    PointsAwarder
	notifier  Notifier
	cache     *CacheService
	workers   int
}

// SetCache включает кэширование читаемой репутации.
func (s *ReputationService) SetCache(cache *CacheService) {
	s.cache = cache
}

// NewReputationService создаёт новый сервис репутации.
// workers ограничивает параллелизм полного пересчёта.
func NewReputationService(
	stats StatsRepository,
	ratings RatingReader,
	shipTimes ShipTimeReader,
	responses ResponseTimeReader,
	points PointsAwarder,
	notifier Notifier,
	workers int,
) *ReputationService {
	if workers <= 0 {
		workers = 4
	}
	return &ReputationService{
		stats:     stats,
		ratings:   ratings,
		shipTimes: shipTimes,
		responses: responses,
		points:    points,
		notifier:  notifier,
		workers:   workers,
	}
}

// ComputeTrustScore считает trust score по взвешенной формуле.
// Чистая функция: результат всегда в [0, 100], деление на ноль исключено.
func ComputeTrustScore(stats *models.SellerStats) float64 {
	ratingScore := stats.AverageRating / 5.0 * 30.0

	var completionScore float64
	if stats.TotalOrders > 0 {
		completionScore = float64(stats.CompletedOrders) / float64(stats.TotalOrders) * 25.0
	}

	disputeScore := (1.0 - stats.DisputeRate) * 20.0

	var responseScore float64
	switch rt := stats.AverageResponseTime; {
	case rt <= 30:
		responseScore = 15
	case rt <= 60:
		responseScore = 12
	case rt <= 120:
		responseScore = 8
	default:
		responseScore = 15 - rt/120.0*15.0
		if responseScore < 0 {
			responseScore = 0
		}
	}

	var shipScore float64
	switch st := stats.AverageShipTime; {
	case st <= 24:
		shipScore = 10
	case st <= 48:
		shipScore = 7
	case st <= 72:
		shipScore = 4
	default:
		shipScore = 10 - st/72.0*10.0
		if shipScore < 0 {
			shipScore = 0
		}
	}

	score := ratingScore + completionScore + disputeScore + responseScore + shipScore
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// EligibleAutoBadges возвращает множество автоматических значков,
// на которые продавец имеет право при текущей статистике.
// Значок verified выдаётся только вручную и здесь не участвует.
func EligibleAutoBadges(stats *models.SellerStats) map[string]bool {
	return map[string]bool{
		models.BadgeTopSeller:   stats.CompletedOrders >= 50 && stats.AverageRating >= 4.5,
		models.BadgeFastShipper: stats.AverageShipTime <= 24,
		models.BadgeResponsive:  stats.AverageResponseTime <= 30,
		models.BadgeTrusted:     stats.TrustScore >= 80 && stats.DisputeRate <= 0,
	}
}

// RecomputeSeller пересчитывает статистику одного продавца и синхронизирует
// его значки. Идемпотентно: повторный запуск без новых данных не делает
// дополнительных записей.
func (s *ReputationService) RecomputeSeller(ctx context.Context, sellerID uuid.UUID) (*models.SellerStats, error) {
	totalOrders, completedOrders, disputedOrders, totalSales, err := s.stats.OrderAggregates(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reputation service: aggregates: %w", err)
	}

	averageRating, _, err := s.ratings.AverageRating(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reputation service: average rating: %w", err)
	}

	shipTime, err := s.shipTimes.AverageShipTimeHours(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reputation service: ship time: %w", err)
	}

	responseTime, err := s.responses.AverageSellerResponseMinutes(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reputation service: response time: %w", err)
	}

	stats := &models.SellerStats{
		UserID:              sellerID,
		TotalSales:          totalSales,
		TotalOrders:         totalOrders,
		CompletedOrders:     completedOrders,
		AverageRating:       averageRating,
		AverageResponseTime: responseTime,
		AverageShipTime:     shipTime,
	}
	if totalOrders > 0 {
		stats.DisputeRate = float64(disputedOrders) / float64(totalOrders)
	}
	stats.TrustScore = ComputeTrustScore(stats)

	if err := s.stats.Upsert(ctx, stats); err != nil {
		return nil, fmt.Errorf("reputation service: upsert stats: %w", err)
	}

	if err := s.syncBadges(ctx, stats); err != nil {
		return nil, err
	}

	return stats, nil
}

// syncBadges приводит автоматические значки продавца к положенному множеству.
func (s *ReputationService) syncBadges(ctx context.Context, stats *models.SellerStats) error {
	eligible := EligibleAutoBadges(stats)

	for _, badgeType := range models.AutoBadgeTypes {
		if eligible[badgeType] {
			granted, err := s.stats.GrantBadge(ctx, stats.UserID, badgeType, badgeDescriptions[badgeType])
			if err != nil {
				return fmt.Errorf("reputation service: grant badge %s: %w", badgeType, err)
			}
			if granted {
				s.onBadgeGranted(ctx, stats.UserID, badgeType)
			}
		} else {
			if _, err := s.stats.RevokeBadge(ctx, stats.UserID, badgeType); err != nil {
				return fmt.Errorf("reputation service: revoke badge %s: %w", badgeType, err)
			}
		}
	}

	return nil
}

// onBadgeGranted начисляет баллы и уведомляет о новом значке.
// Баллы выдаются только при фактической вставке значка, поэтому повторный
// пересчёт не приводит к повторному начислению.
func (s *ReputationService) onBadgeGranted(ctx context.Context, userID uuid.UUID, badgeType string) {
	if s.points != nil {
		if _, err := s.points.Award(ctx, userID, models.PointSourceBadgeEarned,
			fmt.Sprintf("получен значок %s", badgeType)); err != nil && logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id": userID,
				"badge":   badgeType,
				"error":   err.Error(),
			}).Warn("reputation service: не удалось начислить баллы за значок")
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, "badge.earned", map[string]interface{}{
			"badge": badgeType,
		})
	}
}

// RecomputeAll пересчитывает всех продавцов ограниченным пулом воркеров.
// Сбой по одному продавцу логируется и не прерывает проход по остальным.
func (s *ReputationService) RecomputeAll(ctx context.Context) error {
	sellerIDs, err := s.stats.ListSellerIDs(ctx)
	if err != nil {
		return fmt.Errorf("reputation service: list sellers: %w", err)
	}

	jobs := make(chan uuid.UUID)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sellerID := range jobs {
				if _, err := s.RecomputeSeller(ctx, sellerID); err != nil && logger.Log != nil {
					logger.Log.WithFields(logrus.Fields{
						"seller_id": sellerID,
						"error":     err.Error(),
					}).Error("reputation service: ошибка пересчёта продавца")
				}
			}
		}()
	}

	for _, sellerID := range sellerIDs {
		select {
		case jobs <- sellerID:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	if s.cache != nil {
		s.cache.InvalidateReputation()
	}

	if logger.Log != nil {
		logger.Log.WithField("sellers", len(sellerIDs)).Info("reputation service: пересчёт завершён")
	}

	return nil
}

// sellerReputation связка статистики и значков для кэша.
type sellerReputation struct {
	stats  *models.SellerStats
	badges []models.Badge
}

// GetSellerReputation возвращает статистику и значки продавца.
// Результат кэшируется до следующего пересчёта или истечения TTL.
func (s *ReputationService) GetSellerReputation(ctx context.Context, userID uuid.UUID) (*models.SellerStats, []models.Badge, error) {
	if s.cache != nil {
		value, err := s.cache.GetOrSet(ReputationCacheKey(userID), time.Minute, func() (interface{}, error) {
			stats, badges, err := s.loadSellerReputation(ctx, userID)
			if err != nil {
				return nil, err
			}
			return &sellerReputation{stats: stats, badges: badges}, nil
		})
		if err != nil {
			return nil, nil, err
		}
		rep := value.(*sellerReputation)
		return rep.stats, rep.badges, nil
	}

	return s.loadSellerReputation(ctx, userID)
}

func (s *ReputationService) loadSellerReputation(ctx context.Context, userID uuid.UUID) (*models.SellerStats, []models.Badge, error) {
	stats, err := s.stats.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrSellerStatsNotFound) {
			return nil, nil, fmt.Errorf("reputation service: get stats: %w", err)
		}
		// Продавца без статистики показываем с нулевыми метриками.
		stats = &models.SellerStats{UserID: userID}
		stats.TrustScore = ComputeTrustScore(stats)
	}

	badges, err := s.stats.ListBadges(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("reputation service: list badges: %w", err)
	}

	return stats, badges, nil
}

// TopSellers возвращает продавцов с лучшим trust score.
func (s *ReputationService) TopSellers(ctx context.Context, limit int) ([]models.SellerStats, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if s.cache != nil {
		value, err := s.cache.GetOrSet(TopSellersCacheKey(limit), time.Minute, func() (interface{}, error) {
			return s.stats.TopSellers(ctx, limit)
		})
		if err != nil {
			return nil, fmt.Errorf("reputation service: top sellers: %w", err)
		}
		return value.([]models.SellerStats), nil
	}

	sellers, err := s.stats.TopSellers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reputation service: top sellers: %w", err)
	}

	return sellers, nil
}

// GrantVerifiedBadge вручную выдаёт значок verified. Только для админа.
func (s *ReputationService) GrantVerifiedBadge(ctx context.Context, userID uuid.UUID, requesterRole string) error {
	if requesterRole != models.RoleAdmin {
		return apperror.ErrForbidden
	}

	granted, err := s.stats.GrantBadge(ctx, userID, models.BadgeVerified, badgeDescriptions[models.BadgeVerified])
	if err != nil {
		return fmt.Errorf("reputation service: grant verified: %w", err)
	}
	if granted {
		s.onBadgeGranted(ctx, userID, models.BadgeVerified)
	}

	return nil
}

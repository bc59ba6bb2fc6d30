package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/p2p-market-backend/internal/logger"
	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
)

// Снапшот хранит топ-50 по каждой паре период/тип.
const snapshotTopSize = 50

// SnapshotRepository описывает взаимодействие сервиса со снапшотами рейтингов.
type SnapshotRepository interface {
	PointsRanking(ctx context.Context, since *time.Time, limit int) ([]models.RankingEntry, error)
	SellerRanking(ctx context.Context, since *time.Time, limit int) ([]models.RankingEntry, error)
	BuyerRanking(ctx context.Context, since *time.Time, limit int) ([]models.RankingEntry, error)
	InsertSnapshots(ctx context.Context, takenAt time.Time, snapshots []models.LeaderboardSnapshot) error
	LatestSnapshots(ctx context.Context, period, leaderboardType string) ([]models.LeaderboardSnapshot, error)
}

// LeaderboardService материализует периодические снапшоты рейтингов.
type LeaderboardService struct {
	repo  SnapshotRepository
	cache *CacheService
}

// NewLeaderboardService создаёт новый сервис рейтингов.
func NewLeaderboardService(repo SnapshotRepository) *LeaderboardService {
	return &LeaderboardService{repo: repo}
}

// SetCache включает кэширование чтения снапшотов.
func (s *LeaderboardService) SetCache(cache *CacheService) {
	s.cache = cache
}

// SnapshotAll снимает снапшоты всех пар период × тип. Сбой по одной паре
// логируется и не прерывает остальные. Пара, чей рейтинг не изменился
// с прошлого снапшота, пропускается: снапшоты неизменяемы, дубликаты не нужны.
func (s *LeaderboardService) SnapshotAll(ctx context.Context) error {
	takenAt := time.Now().UTC()

	for _, period := range models.LeaderboardPeriods {
		for _, leaderboardType := range models.LeaderboardTypes {
			if err := s.snapshotOne(ctx, takenAt, period, leaderboardType); err != nil && logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{
					"period": period,
					"type":   leaderboardType,
					"error":  err.Error(),
				}).Error("leaderboard service: ошибка снапшота")
			}
		}
	}

	if s.cache != nil {
		s.cache.InvalidateLeaderboards()
	}

	return nil
}

func (s *LeaderboardService) snapshotOne(ctx context.Context, takenAt time.Time, period, leaderboardType string) error {
	entries, err := s.ranking(ctx, periodStart(takenAt, period), leaderboardType)
	if err != nil {
		return err
	}

	snapshots := make([]models.LeaderboardSnapshot, len(entries))
	for i, entry := range entries {
		snapshots[i] = models.LeaderboardSnapshot{
			UserID: entry.UserID,
			Period: period,
			Type:   leaderboardType,
			Rank:   i + 1,
			Value:  entry.Value,
		}
	}

	previous, err := s.repo.LatestSnapshots(ctx, period, leaderboardType)
	if err != nil {
		return err
	}
	if snapshotsEqual(previous, snapshots) {
		return nil
	}

	return s.repo.InsertSnapshots(ctx, takenAt, snapshots)
}

func (s *LeaderboardService) ranking(ctx context.Context, since *time.Time, leaderboardType string) ([]models.RankingEntry, error) {
	switch leaderboardType {
	case models.LeaderboardTypePoints:
		return s.repo.PointsRanking(ctx, since, snapshotTopSize)
	case models.LeaderboardTypeSeller:
		return s.repo.SellerRanking(ctx, since, snapshotTopSize)
	case models.LeaderboardTypeBuyer:
		return s.repo.BuyerRanking(ctx, since, snapshotTopSize)
	}
	return nil, fmt.Errorf("leaderboard service: unknown type %s", leaderboardType)
}

// GetSnapshot возвращает последний снапшот пары период/тип.
func (s *LeaderboardService) GetSnapshot(ctx context.Context, period, leaderboardType string) ([]models.LeaderboardSnapshot, error) {
	if !validPeriod(period) {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный период рейтинга")
	}
	if !validLeaderboardType(leaderboardType) {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный тип рейтинга")
	}

	if s.cache != nil {
		value, err := s.cache.GetOrSet(SnapshotCacheKey(period, leaderboardType), time.Minute, func() (interface{}, error) {
			return s.repo.LatestSnapshots(ctx, period, leaderboardType)
		})
		if err != nil {
			return nil, fmt.Errorf("leaderboard service: get snapshot: %w", err)
		}
		return value.([]models.LeaderboardSnapshot), nil
	}

	snapshots, err := s.repo.LatestSnapshots(ctx, period, leaderboardType)
	if err != nil {
		return nil, fmt.Errorf("leaderboard service: get snapshot: %w", err)
	}

	return snapshots, nil
}

// periodStart возвращает начало окна периода, nil для all time.
func periodStart(now time.Time, period string) *time.Time {
	var since time.Time
	switch period {
	case models.LeaderboardPeriodWeekly:
		since = now.AddDate(0, 0, -7)
	case models.LeaderboardPeriodMonthly:
		since = now.AddDate(0, -1, 0)
	default:
		return nil
	}
	return &since
}

// snapshotsEqual сравнивает новый рейтинг с последним снятым снапшотом.
func snapshotsEqual(previous, next []models.LeaderboardSnapshot) bool {
	if len(previous) != len(next) {
		return false
	}
	for i := range next {
		if previous[i].UserID != next[i].UserID ||
			previous[i].Rank != next[i].Rank ||
			previous[i].Value != next[i].Value {
			return false
		}
	}
	return true
}

func validPeriod(period string) bool {
	for _, p := range models.LeaderboardPeriods {
		if p == period {
			return true
		}
	}
	return false
}

func validLeaderboardType(leaderboardType string) bool {
	for _, t := range models.LeaderboardTypes {
		if t == leaderboardType {
			return true
		}
	}
	return false
}

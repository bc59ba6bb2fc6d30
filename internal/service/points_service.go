package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/p2p-market-backend/internal/logger"
	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
)

// PointsRepository описывает взаимодействие сервиса с журналом баллов.
type PointsRepository interface {
	AppendEarn(ctx context.Context, txn *models.PointTransaction) error
	Spend(ctx context.Context, txn *models.PointTransaction) error
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointTransaction, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	GetOrCreateReferralCode(ctx context.Context, userID uuid.UUID, code string) (*models.ReferralCode, error)
	GetReferralByCode(ctx context.Context, code string) (*models.ReferralCode, error)
	RedeemReferral(ctx context.Context, codeID uuid.UUID, inviterTxn, invitedTxn *models.PointTransaction) error
}

// Фиксированные начисления по источникам.
var pointAwards = map[string]int{
	models.PointSourcePurchase:        100,
	models.PointSourceSale:            150,
	models.PointSourceReferralInviter: 500,
	models.PointSourceReferralInvited: 250,
	models.PointSourceReviewWritten:   50,
	models.PointSourceBadgeEarned:     100,
}

// Алфавит реферальных кодов без визуально похожих символов.
const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const referralCodeLength = 8

// PointsService содержит бизнес-логику журнала баллов и рефералов.
type PointsService struct {
	repo     PointsRepository
	notifier Notifier
	cache    *CacheService
}

// NewPointsService создаёт новый сервис баллов.
func NewPointsService(repo PointsRepository, notifier Notifier) *PointsService {
	return &PointsService{repo: repo, notifier: notifier}
}

// SetCache включает кэширование рейтинга.
func (s *PointsService) SetCache(cache *CacheService) {
	s.cache = cache
}

// Award начисляет баллы по фиксированной таблице источников.
// Неизвестный источник не считается ошибкой вызвавшей операции:
// начисление пропускается с предупреждением, возвращается 0.
func (s *PointsService) Award(ctx context.Context, userID uuid.UUID, source, description string) (int, error) {
	amount, ok := pointAwards[source]
	if !ok {
		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id": userID,
				"source":  source,
			}).Warn("points service: начисление по неизвестному источнику пропущено")
		}
		return 0, nil
	}

	txn := &models.PointTransaction{
		UserID:      userID,
		Amount:      amount,
		Source:      source,
		Description: description,
	}
	if err := s.repo.AppendEarn(ctx, txn); err != nil {
		return 0, fmt.Errorf("points service: award: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, "points.earned", map[string]interface{}{
			"amount": amount,
			"source": source,
		})
	}

	return amount, nil
}

// Spend списывает баллы. Возвращает false без записи в журнал,
// если баланса не хватает.
func (s *PointsService) Spend(ctx context.Context, userID uuid.UUID, amount int, description string) (bool, error) {
	if amount <= 0 {
		return false, apperror.New(apperror.ErrCodeValidation, "сумма списания должна быть положительной")
	}

	txn := &models.PointTransaction{
		UserID:      userID,
		Amount:      amount,
		Source:      "SPEND",
		Description: description,
	}
	if err := s.repo.Spend(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return false, nil
		}
		return false, fmt.Errorf("points service: spend: %w", err)
	}

	return true, nil
}

// Balance возвращает текущий баланс: свёртка EARN минус SPEND.
func (s *PointsService) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("points service: balance: %w", err)
	}
	if balance < 0 && logger.Log != nil {
		// Отрицательный баланс означает нарушение целостности журнала.
		logger.Log.WithFields(logrus.Fields{
			"user_id": userID,
			"balance": balance,
		}).Error("points service: отрицательный баланс в журнале")
	}

	return balance, nil
}

// History возвращает журнал операций пользователя.
func (s *PointsService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	txns, err := s.repo.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("points service: history: %w", err)
	}

	return txns, nil
}

// Leaderboard возвращает текущий рейтинг по балансу баллов.
// Рейтинг по всем пользователям дорогой, поэтому коротко кэшируется.
func (s *PointsService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if s.cache != nil {
		value, err := s.cache.GetOrSet(LeaderboardCacheKey(limit), 30*time.Second, func() (interface{}, error) {
			return s.repo.Leaderboard(ctx, limit)
		})
		if err != nil {
			return nil, fmt.Errorf("points service: leaderboard: %w", err)
		}
		return value.([]models.LeaderboardEntry), nil
	}

	entries, err := s.repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("points service: leaderboard: %w", err)
	}

	return entries, nil
}

// MyReferralCode возвращает реферальный код пользователя, создавая его
// при первом обращении.
func (s *PointsService) MyReferralCode(ctx context.Context, userID uuid.UUID) (*models.ReferralCode, error) {
	code, err := generateReferralCode()
	if err != nil {
		return nil, fmt.Errorf("points service: generate code: %w", err)
	}

	referral, err := s.repo.GetOrCreateReferralCode(ctx, userID, code)
	if err != nil {
		return nil, fmt.Errorf("points service: referral code: %w", err)
	}

	return referral, nil
}

// ApplyReferral применяет чужой реферальный код. Пользователь может
// применить код один раз за всю жизнь аккаунта; владельцу и применившему
// начисляются баллы в одной транзакции с фиксацией применения.
func (s *PointsService) ApplyReferral(ctx context.Context, code string, applyingUserID uuid.UUID) error {
	referral, err := s.repo.GetReferralByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrReferralCodeNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "реферальный код не найден")
		}
		return fmt.Errorf("points service: get referral: %w", err)
	}

	if referral.UserID == applyingUserID {
		return apperror.New(apperror.ErrCodeValidation, "нельзя применить собственный реферальный код")
	}

	inviterTxn := &models.PointTransaction{
		UserID:      referral.UserID,
		Amount:      pointAwards[models.PointSourceReferralInviter],
		Source:      models.PointSourceReferralInviter,
		Description: fmt.Sprintf("приглашение по коду %s", referral.Code),
	}
	invitedTxn := &models.PointTransaction{
		UserID:      applyingUserID,
		Amount:      pointAwards[models.PointSourceReferralInvited],
		Source:      models.PointSourceReferralInvited,
		Description: fmt.Sprintf("регистрация по коду %s", referral.Code),
	}

	if err := s.repo.RedeemReferral(ctx, referral.ID, inviterTxn, invitedTxn); err != nil {
		if errors.Is(err, repository.ErrReferralAlreadyRedeemed) {
			return apperror.New(apperror.ErrCodeConflict, "вы уже применяли реферальный код")
		}
		return fmt.Errorf("points service: redeem referral: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, referral.UserID, "points.earned", map[string]interface{}{
			"amount": inviterTxn.Amount,
			"source": models.PointSourceReferralInviter,
		})
	}

	return nil
}

// generateReferralCode генерирует короткий код для передачи вручную.
func generateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = referralAlphabet[int(b)%len(referralAlphabet)]
	}
	return string(buf), nil
}

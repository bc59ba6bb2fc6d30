package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/repository/common"
)

var (
	ErrInsufficientPoints      = errors.New("insufficient point balance")
	ErrReferralCodeNotFound    = errors.New("referral code not found")
	ErrReferralAlreadyRedeemed = errors.New("referral already redeemed by user")
)

// PointsRepository работает с журналом баллов, реферальными кодами
// и снапшотами рейтингов.
type PointsRepository struct {
	db *sqlx.DB
}

func NewPointsRepository(db *sqlx.DB) *PointsRepository {
	return &PointsRepository{db: db}
}

// AppendEarn добавляет запись начисления в журнал.
func (r *PointsRepository) AppendEarn(ctx context.Context, txn *models.PointTransaction) error {
	query := `
		INSERT INTO point_transactions (user_id, amount, type, source, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		txn.UserID, txn.Amount, models.PointTypeEarn, txn.Source, txn.Description,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("points repository: append earn: %w", err)
	}
	txn.Type = models.PointTypeEarn

	return nil
}

// Spend списывает баллы атомарно: advisory lock на пользователя
// сериализует конкурентные списания, баланс перепроверяется под замком.
// При нехватке баллов журнал не меняется.
func (r *PointsRepository) Spend(ctx context.Context, txn *models.PointTransaction) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, txn.UserID); err != nil {
			return fmt.Errorf("points repository: acquire user lock: %w", err)
		}

		var balance int
		balanceQuery := `
			SELECT COALESCE(SUM(CASE WHEN type = $2 THEN amount ELSE -amount END), 0)
			FROM point_transactions WHERE user_id = $1`
		if err := tx.GetContext(ctx, &balance, balanceQuery, txn.UserID, models.PointTypeEarn); err != nil {
			return fmt.Errorf("points repository: balance under lock: %w", err)
		}

		if balance < txn.Amount {
			return ErrInsufficientPoints
		}

		insertQuery := `
			INSERT INTO point_transactions (user_id, amount, type, source, description)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`
		err := tx.QueryRowxContext(ctx, insertQuery,
			txn.UserID, txn.Amount, models.PointTypeSpend, txn.Source, txn.Description,
		).Scan(&txn.ID, &txn.CreatedAt)
		if err != nil {
			return fmt.Errorf("points repository: append spend: %w", err)
		}
		txn.Type = models.PointTypeSpend

		return nil
	})
}

// Balance сворачивает журнал пользователя: сумма EARN минус сумма SPEND.
func (r *PointsRepository) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN type = $2 THEN amount ELSE -amount END), 0)
		FROM point_transactions WHERE user_id = $1`

	var balance int
	if err := r.db.GetContext(ctx, &balance, query, userID, models.PointTypeEarn); err != nil {
		return 0, fmt.Errorf("points repository: balance: %w", err)
	}

	return balance, nil
}

// ListTransactions возвращает журнал пользователя, новые записи первыми.
func (r *PointsRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointTransaction, error) {
	query := `
		SELECT * FROM point_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	txns := []models.PointTransaction{}
	if err := r.db.SelectContext(ctx, &txns, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("points repository: list transactions: %w", err)
	}

	return txns, nil
}

// Leaderboard возвращает пользователей по текущему балансу баллов.
// При равных балансах порядок детерминирован по id пользователя.
func (r *PointsRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	query := `
		SELECT user_id,
		       SUM(CASE WHEN type = $2 THEN amount ELSE -amount END) AS balance
		FROM point_transactions
		GROUP BY user_id
		ORDER BY balance DESC, user_id ASC
		LIMIT $1`

	entries := []models.LeaderboardEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit, models.PointTypeEarn); err != nil {
		return nil, fmt.Errorf("points repository: leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries, nil
}

// PointsRanking считает чистое движение баллов за окно.
// since == nil даёт рейтинг за всё время.
func (r *PointsRepository) PointsRanking(ctx context.Context, since *time.Time, limit int) ([]models.RankingEntry, error) {
	query := `
		SELECT user_id,
		       SUM(CASE WHEN type = $2 THEN amount ELSE -amount END)::float8 AS value
		FROM point_transactions
		WHERE ($3::timestamptz IS NULL OR created_at >= $3)
		GROUP BY user_id
		ORDER BY value DESC, user_id ASC
		LIMIT $1`

	entries := []models.RankingEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit, models.PointTypeEarn, since); err != nil {
		return nil, fmt.Errorf("points repository: points ranking: %w", err)
	}

	return entries, nil
}

// SellerRanking считает сумму завершённых продаж за окно. Момент
// завершения берётся из истории переходов.
func (r *PointsRepository) SellerRanking(ctx context.Context, since *time.Time, limit int) ([]models.RankingEntry, error) {
	query := `
		SELECT o.seller_id AS user_id, SUM(o.total_amount)::float8 AS value
		FROM orders o
		JOIN order_status_history h ON h.order_id = o.id AND h.to_status = $2
		WHERE o.status = $2 AND ($3::timestamptz IS NULL OR h.created_at >= $3)
		GROUP BY o.seller_id
		ORDER BY value DESC, user_id ASC
		LIMIT $1`

	entries := []models.RankingEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit, models.OrderStatusCompleted, since); err != nil {
		return nil, fmt.Errorf("points repository: seller ranking: %w", err)
	}

	return entries, nil
}

// BuyerRanking считает число завершённых покупок за окно.
func (r *PointsRepository) BuyerRanking(ctx context.Context, since *time.Time, limit int) ([]models.RankingEntry, error) {
	query := `
		SELECT o.buyer_id AS user_id, COUNT(*)::float8 AS value
		FROM orders o
		JOIN order_status_history h ON h.order_id = o.id AND h.to_status = $2
		WHERE o.status = $2 AND ($3::timestamptz IS NULL OR h.created_at >= $3)
		GROUP BY o.buyer_id
		ORDER BY value DESC, user_id ASC
		LIMIT $1`

	entries := []models.RankingEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit, models.OrderStatusCompleted, since); err != nil {
		return nil, fmt.Errorf("points repository: buyer ranking: %w", err)
	}

	return entries, nil
}

// GetOrCreateReferralCode лениво создаёт код пользователя.
// Конкурентное создание разрешается за счёт уникальности user_id.
func (r *PointsRepository) GetOrCreateReferralCode(ctx context.Context, userID uuid.UUID, code string) (*models.ReferralCode, error) {
	insertQuery := `
		INSERT INTO referral_codes (user_id, code)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insertQuery, userID, code); err != nil {
		return nil, fmt.Errorf("points repository: create referral code: %w", err)
	}

	return common.GetByField[models.ReferralCode](ctx, r.db, "referral_codes", "user_id", userID, ErrReferralCodeNotFound)
}

func (r *PointsRepository) GetReferralByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var referral models.ReferralCode
	query := `SELECT * FROM referral_codes WHERE code = $1`
	if err := r.db.GetContext(ctx, &referral, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReferralCodeNotFound
		}
		return nil, fmt.Errorf("points repository: get referral by code: %w", err)
	}

	return &referral, nil
}

// RedeemReferral фиксирует применение кода и начисляет баллы обеим сторонам
// в одной транзакции. Уникальность applied_by гарантирует, что пользователь
// применяет реферальный код не более одного раза за всю жизнь аккаунта.
func (r *PointsRepository) RedeemReferral(ctx context.Context, codeID uuid.UUID, inviterTxn, invitedTxn *models.PointTransaction) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		redemptionQuery := `INSERT INTO referral_redemptions (code_id, applied_by) VALUES ($1, $2)`
		if _, err := tx.ExecContext(ctx, redemptionQuery, codeID, invitedTxn.UserID); err != nil {
			if common.IsUniqueViolation(err, "") {
				return ErrReferralAlreadyRedeemed
			}
			return fmt.Errorf("points repository: insert redemption: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE referral_codes SET uses = uses + 1 WHERE id = $1`, codeID); err != nil {
			return fmt.Errorf("points repository: increment uses: %w", err)
		}

		earnQuery := `
			INSERT INTO point_transactions (user_id, amount, type, source, description)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`
		for _, txn := range []*models.PointTransaction{inviterTxn, invitedTxn} {
			err := tx.QueryRowxContext(ctx, earnQuery,
				txn.UserID, txn.Amount, models.PointTypeEarn, txn.Source, txn.Description,
			).Scan(&txn.ID, &txn.CreatedAt)
			if err != nil {
				return fmt.Errorf("points repository: referral earn: %w", err)
			}
			txn.Type = models.PointTypeEarn
		}

		return nil
	})
}

// InsertSnapshots пишет пачку строк снапшота одним батчем.
// Все строки получают общий момент снятия.
func (r *PointsRepository) InsertSnapshots(ctx context.Context, takenAt time.Time, snapshots []models.LeaderboardSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		inserter := common.NewBatchInserter(tx,
			`INSERT INTO leaderboard_snapshots (user_id, period, type, rank, value, created_at)`,
			6, 100)
		for _, s := range snapshots {
			if err := inserter.Add(ctx, s.UserID, s.Period, s.Type, s.Rank, s.Value, takenAt); err != nil {
				return fmt.Errorf("points repository: insert snapshots: %w", err)
			}
		}
		if err := inserter.Flush(ctx); err != nil {
			return fmt.Errorf("points repository: insert snapshots: %w", err)
		}

		return nil
	})
}

// LatestSnapshots возвращает последний снятый снапшот для пары период/тип.
func (r *PointsRepository) LatestSnapshots(ctx context.Context, period, leaderboardType string) ([]models.LeaderboardSnapshot, error) {
	query := `
		SELECT * FROM leaderboard_snapshots
		WHERE period = $1 AND type = $2
		  AND created_at = (
			SELECT MAX(created_at) FROM leaderboard_snapshots
			WHERE period = $1 AND type = $2
		  )
		ORDER BY rank ASC`

	snapshots := []models.LeaderboardSnapshot{}
	if err := r.db.SelectContext(ctx, &snapshots, query, period, leaderboardType); err != nil {
		return nil, fmt.Errorf("points repository: latest snapshots: %w", err)
	}

	return snapshots, nil
}

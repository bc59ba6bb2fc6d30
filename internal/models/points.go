package models

import (
	"time"

	"github.com/google/uuid"
)

// PointTransaction запись в журнале баллов. Журнал только пополняется,
// баланс всегда вычисляется свёрткой EARN минус SPEND.
type PointTransaction struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Amount      int       `db:"amount" json:"amount"`
	Type        string    `db:"type" json:"type"`
	Source      string    `db:"source" json:"source"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ReferralCode реферальный код пользователя. Один код на пользователя,
// создаётся лениво при первом запросе.
type ReferralCode struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Code      string    `db:"code" json:"code"`
	Uses      int       `db:"uses" json:"uses"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LeaderboardEntry строка текущего рейтинга по балансу баллов.
type LeaderboardEntry struct {
	UserID  uuid.UUID `db:"user_id" json:"user_id"`
	Balance int       `db:"balance" json:"balance"`
	Rank    int       `db:"-" json:"rank"`
}

// RankingEntry строка рейтинга по произвольной метрике за период.
// Из таких строк строятся снапшоты.
type RankingEntry struct {
	UserID uuid.UUID `db:"user_id" json:"user_id"`
	Value  float64   `db:"value" json:"value"`
}

// LeaderboardSnapshot материализованная строка рейтинга за период.
// После записи не изменяется, только вытесняется более новыми снапшотами.
type LeaderboardSnapshot struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Period    string    `db:"period" json:"period"`
	Type      string    `db:"type" json:"type"`
	Rank      int       `db:"rank" json:"rank"`
	Value     float64   `db:"value" json:"value"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

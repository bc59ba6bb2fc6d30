package dto

import (
	"github.com/ignatzorin/p2p-market-backend/internal/models"
)

// ErrorResponse стандартный ответ с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse стандартный успешный ответ.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AuthResponse ответ регистрации и входа.
type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// TokenResponse ответ обновления токенов.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ReputationResponse репутация продавца со значками.
type ReputationResponse struct {
	Stats  *models.SellerStats `json:"stats"`
	Badges []models.Badge      `json:"badges"`
}

// RatingSummaryResponse сводка отзывов о пользователе.
type RatingSummaryResponse struct {
	AverageRating float64 `json:"average_rating"`
	ReviewsCount  int     `json:"reviews_count"`
}

// BalanceResponse текущий баланс баллов.
type BalanceResponse struct {
	Balance int `json:"balance"`
}

// SpendResponse итог списания баллов.
type SpendResponse struct {
	Spent bool `json:"spent"`
}

// SnapshotResponse снапшот рейтинга за период.
type SnapshotResponse struct {
	Period  string                       `json:"period"`
	Type    string                       `json:"type"`
	Entries []models.LeaderboardSnapshot `json:"entries"`
}

// UnreadCountResponse количество непрочитанных уведомлений.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

package dto

// RegisterRequest тело запроса регистрации.
type RegisterRequest struct {
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Username     string `json:"username"`
	ReferralCode string `json:"referral_code"`
}

// LoginRequest тело запроса входа.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest тело запроса обновления токенов.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateProductRequest тело запроса создания товара.
type CreateProductRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	Price       float64 `json:"price" binding:"required"`
	Stock       int     `json:"stock"`
}

// UpdateProductRequest тело запроса обновления товара.
type UpdateProductRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	Price       float64 `json:"price" binding:"required"`
	Stock       int     `json:"stock"`
	IsActive    bool    `json:"is_active"`
}

// CreateOrderRequest тело запроса создания заказа.
type CreateOrderRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// TransitionOrderRequest тело запроса перевода заказа в новый статус.
type TransitionOrderRequest struct {
	Status string `json:"status" binding:"required"`
}

// EscrowEventRequest тело запроса о событии escrow контракта.
type EscrowEventRequest struct {
	Kind      string `json:"kind" binding:"required"`
	Reference string `json:"reference" binding:"required"`
}

// RaiseDisputeRequest тело запроса открытия спора.
type RaiseDisputeRequest struct {
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

// DisputeMessageRequest тело запроса сообщения в споре.
type DisputeMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// ResolveDisputeRequest тело запроса административного разрешения спора.
type ResolveDisputeRequest struct {
	Resolution       string `json:"resolution" binding:"required"`
	FinalOrderStatus string `json:"final_order_status" binding:"required"`
}

// CreateReviewRequest тело запроса создания отзыва.
type CreateReviewRequest struct {
	OrderID string  `json:"order_id" binding:"required"`
	Rating  int     `json:"rating" binding:"required"`
	Comment *string `json:"comment"`
}

// SpendPointsRequest тело запроса списания баллов.
type SpendPointsRequest struct {
	Amount      int    `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// ApplyReferralRequest тело запроса применения реферального кода.
type ApplyReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Order описывает сделку между покупателем и продавцом.
// Статус меняется только через проверяемые переходы, запись никогда не удаляется.
type Order struct {
	ID              uuid.UUID `db:"id" json:"id"`
	BuyerID         uuid.UUID `db:"buyer_id" json:"buyer_id"`
	SellerID        uuid.UUID `db:"seller_id" json:"seller_id"`
	ProductID       uuid.UUID `db:"product_id" json:"product_id"`
	Status          string    `db:"status" json:"status"`
	TotalAmount     float64   `db:"total_amount" json:"total_amount"`
	EscrowReference *string   `db:"escrow_reference" json:"escrow_reference,omitempty"`
	EscrowLocked    bool      `db:"escrow_locked" json:"escrow_locked"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// IsParticipant проверяет, что пользователь — покупатель или продавец заказа.
func (o *Order) IsParticipant(userID uuid.UUID) bool {
	return o.BuyerID == userID || o.SellerID == userID
}

// Counterparty возвращает вторую сторону сделки.
func (o *Order) Counterparty(userID uuid.UUID) uuid.UUID {
	if o.BuyerID == userID {
		return o.SellerID
	}
	return o.BuyerID
}

// OrderStatusChange хранит одну запись истории переходов статуса заказа.
type OrderStatusChange struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OrderID    uuid.UUID  `db:"order_id" json:"order_id"`
	ActorID    *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	FromStatus string     `db:"from_status" json:"from_status"`
	ToStatus   string     `db:"to_status" json:"to_status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Product описывает товар продавца.
type Product struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SellerID    uuid.UUID `db:"seller_id" json:"seller_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	Price       float64   `db:"price" json:"price"`
	Stock       int       `db:"stock" json:"stock"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

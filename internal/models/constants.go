package models

// Role константы ролей пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// OrderStatus константы статусов заказов
const (
	OrderStatusPaymentPending = "payment_pending"
	OrderStatusPaid           = "paid"
	OrderStatusShipped        = "shipped"
	OrderStatusDelivered      = "delivered"
	OrderStatusCompleted      = "completed"
	OrderStatusDisputed       = "disputed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusRefunded       = "refunded"
)

// ValidOrderStatuses список валидных статусов заказов
var ValidOrderStatuses = map[string]struct{}{
	OrderStatusPaymentPending: {},
	OrderStatusPaid:           {},
	OrderStatusShipped:        {},
	OrderStatusDelivered:      {},
	OrderStatusCompleted:      {},
	OrderStatusDisputed:       {},
	OrderStatusCancelled:      {},
	OrderStatusRefunded:       {},
}

// TerminalOrderStatuses статусы, из которых переходы запрещены
var TerminalOrderStatuses = map[string]struct{}{
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// OrderTransitions описывает граф допустимых переходов статусов.
// Рёбра из disputed в терминальные статусы проходит только
// административное разрешение спора.
var OrderTransitions = map[string][]string{
	OrderStatusPaymentPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusShipped, OrderStatusDisputed, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusDelivered, OrderStatusCompleted, OrderStatusDisputed},
	OrderStatusDelivered:      {OrderStatusCompleted, OrderStatusDisputed},
	OrderStatusDisputed:       {OrderStatusCompleted, OrderStatusRefunded, OrderStatusCancelled},
}

// IsOrderTransitionAllowed проверяет, что ребро (from → to) есть в графе.
func IsOrderTransitionAllowed(from, to string) bool {
	for _, next := range OrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DisputeEligibleOrderStatuses статусы заказа, в которых можно открыть спор.
var DisputeEligibleOrderStatuses = map[string]struct{}{
	OrderStatusShipped:   {},
	OrderStatusDelivered: {},
}

// DisputeStatus константы статусов споров
const (
	DisputeStatusOpen     = "open"
	DisputeStatusInReview = "in_review"
	DisputeStatusResolved = "resolved"
	DisputeStatusClosed   = "closed"
)

// EscrowEventKind виды событий escrow контракта, сообщаемых извне
const (
	EscrowEventLocked   = "locked"
	EscrowEventReleased = "released"
	EscrowEventRefunded = "refunded"
)

// BadgeType константы типов значков
const (
	BadgeTopSeller   = "top_seller"
	BadgeFastShipper = "fast_shipper"
	BadgeResponsive  = "responsive"
	BadgeTrusted     = "trusted"
	BadgeVerified    = "verified"
)

// AutoBadgeTypes значки, которые выдаёт и отзывает batch job.
// verified выдаётся только вручную и автоматически не отзывается.
var AutoBadgeTypes = []string{
	BadgeTopSeller,
	BadgeFastShipper,
	BadgeResponsive,
	BadgeTrusted,
}

// PointTransactionType типы записей в журнале баллов
const (
	PointTypeEarn  = "EARN"
	PointTypeSpend = "SPEND"
)

// PointSource источники начисления баллов
const (
	PointSourcePurchase        = "PURCHASE"
	PointSourceSale            = "SALE"
	PointSourceReferralInviter = "REFERRAL_INVITER"
	PointSourceReferralInvited = "REFERRAL_INVITED"
	PointSourceReviewWritten   = "REVIEW_WRITTEN"
	PointSourceBadgeEarned     = "BADGE_EARNED"
)

// LeaderboardPeriod периоды снапшотов рейтинга
const (
	LeaderboardPeriodWeekly  = "WEEKLY"
	LeaderboardPeriodMonthly = "MONTHLY"
	LeaderboardPeriodAllTime = "ALL_TIME"
)

// LeaderboardType типы рейтингов
const (
	LeaderboardTypePoints = "POINTS"
	LeaderboardTypeSeller = "SELLER"
	LeaderboardTypeBuyer  = "BUYER"
)

// LeaderboardPeriods все периоды снапшотов.
var LeaderboardPeriods = []string{
	LeaderboardPeriodWeekly,
	LeaderboardPeriodMonthly,
	LeaderboardPeriodAllTime,
}

// LeaderboardTypes все типы рейтингов.
var LeaderboardTypes = []string{
	LeaderboardTypePoints,
	LeaderboardTypeSeller,
	LeaderboardTypeBuyer,
}

package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestIsOrderTransitionAllowed(t *testing.T) {
	allowed := [][2]string{
		{OrderStatusPaymentPending, OrderStatusPaid},
		{OrderStatusPaymentPending, OrderStatusCancelled},
		{OrderStatusPaid, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusDelivered},
		{OrderStatusShipped, OrderStatusCompleted},
		{OrderStatusDelivered, OrderStatusCompleted},
		{OrderStatusPaid, OrderStatusDisputed},
		{OrderStatusShipped, OrderStatusDisputed},
		{OrderStatusDelivered, OrderStatusDisputed},
		{OrderStatusDisputed, OrderStatusCompleted},
		{OrderStatusDisputed, OrderStatusRefunded},
		{OrderStatusDisputed, OrderStatusCancelled},
	}
	for _, edge := range allowed {
		if !IsOrderTransitionAllowed(edge[0], edge[1]) {
			t.Fatalf("переход %s → %s должен быть разрешён", edge[0], edge[1])
		}
	}

	forbidden := [][2]string{
		{OrderStatusPaymentPending, OrderStatusShipped},
		{OrderStatusPaymentPending, OrderStatusDisputed},
		{OrderStatusPaid, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusShipped},
		{OrderStatusCompleted, OrderStatusDisputed},
		{OrderStatusRefunded, OrderStatusPaid},
		{OrderStatusCancelled, OrderStatusPaymentPending},
	}
	for _, edge := range forbidden {
		if IsOrderTransitionAllowed(edge[0], edge[1]) {
			t.Fatalf("переход %s → %s должен быть запрещён", edge[0], edge[1])
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for status := range TerminalOrderStatuses {
		if next, ok := OrderTransitions[status]; ok && len(next) > 0 {
			t.Fatalf("терминальный статус %s не должен иметь исходящих переходов: %v", status, next)
		}
	}
}

func TestOrderCounterparty(t *testing.T) {
	buyer := uuid.New()
	seller := uuid.New()
	order := &Order{BuyerID: buyer, SellerID: seller}

	if order.Counterparty(buyer) != seller {
		t.Fatal("второй стороной покупателя должен быть продавец")
	}
	if order.Counterparty(seller) != buyer {
		t.Fatal("второй стороной продавца должен быть покупатель")
	}
	if !order.IsParticipant(buyer) || !order.IsParticipant(seller) {
		t.Fatal("обе стороны должны считаться участниками")
	}
	if order.IsParticipant(uuid.New()) {
		t.Fatal("посторонний не должен считаться участником")
	}
}

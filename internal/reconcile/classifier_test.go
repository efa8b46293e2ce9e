package reconcile

import (
	"testing"

	"stock-reconciler/internal/models"

	"github.com/stretchr/testify/assert"
)

const gated = "pagseguro"

func gatedOrder(status string, mutations ...string) *models.Order {
	o := &models.Order{
		ID:            1,
		Status:        status,
		PaymentMethod: gated,
	}
	for _, kind := range mutations {
		o.Mutations = append(o.Mutations, models.StockMutation{OrderID: o.ID, Kind: kind})
	}
	return o
}

func TestClassifyRerouteOnCreation(t *testing.T) {
	action := Classify(Event{Kind: EventOrderCreated, OrderID: 1}, gatedOrder(models.OrderStatusPending), gated)

	assert.Equal(t, ActionReroute, action.Kind)
	assert.Equal(t, models.OrderStatusPending, action.FromStatus)
	assert.Equal(t, models.OrderStatusOnHold, action.ToStatus)
}

func TestClassifyNoRerouteForNonPending(t *testing.T) {
	action := Classify(Event{Kind: EventOrderCreated, OrderID: 1}, gatedOrder(models.OrderStatusProcessing), gated)
	assert.Equal(t, ActionNone, action.Kind)
}

func TestClassifyDebitOnHold(t *testing.T) {
	ev := Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusPending, To: models.OrderStatusOnHold}

	action := Classify(ev, gatedOrder(models.OrderStatusOnHold), gated)
	assert.Equal(t, ActionDebit, action.Kind)
}

func TestClassifyNoSecondDebit(t *testing.T) {
	ev := Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusPending, To: models.OrderStatusOnHold}

	action := Classify(ev, gatedOrder(models.OrderStatusOnHold, models.MutationDebited), gated)
	assert.Equal(t, ActionNone, action.Kind)
}

func TestClassifyNonGatedMethodNeverTouchesStock(t *testing.T) {
	order := &models.Order{ID: 1, Status: models.OrderStatusOnHold, PaymentMethod: "credit-card"}

	events := []Event{
		{Kind: EventOrderCreated, OrderID: 1},
		{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusPending, To: models.OrderStatusOnHold},
		{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusOnHold, To: models.OrderStatusCancelled},
	}
	for _, ev := range events {
		action := Classify(ev, order, gated)
		assert.NotEqual(t, ActionDebit, action.Kind)
		assert.NotEqual(t, ActionCredit, action.Kind)
	}
}

func TestClassifyProcessingAnnotatesOnly(t *testing.T) {
	ev := Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusOnHold, To: models.OrderStatusProcessing}

	// Even a gated, undebited order only gets a note on processing
	action := Classify(ev, gatedOrder(models.OrderStatusProcessing), gated)
	assert.Equal(t, ActionAnnotate, action.Kind)
	assert.NotEmpty(t, action.Note)
}

func TestClassifyCreditTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want ActionKind
	}{
		{"processing to cancelled", models.OrderStatusProcessing, models.OrderStatusCancelled, ActionCredit},
		{"completed to cancelled", models.OrderStatusCompleted, models.OrderStatusCancelled, ActionCredit},
		{"on-hold to cancelled", models.OrderStatusOnHold, models.OrderStatusCancelled, ActionCredit},
		{"processing to refunded", models.OrderStatusProcessing, models.OrderStatusRefunded, ActionCredit},
		{"completed to refunded", models.OrderStatusCompleted, models.OrderStatusRefunded, ActionCredit},
		{"pending to cancelled", models.OrderStatusPending, models.OrderStatusCancelled, ActionNone},
		{"cancelled to refunded", models.OrderStatusCancelled, models.OrderStatusRefunded, ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Kind: EventStatusChanged, OrderID: 1, From: tt.from, To: tt.to}
			action := Classify(ev, gatedOrder(tt.to, models.MutationDebited), gated)
			assert.Equal(t, tt.want, action.Kind)
		})
	}
}

func TestClassifyNoCreditWithoutDebit(t *testing.T) {
	ev := Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusProcessing, To: models.OrderStatusCancelled}

	action := Classify(ev, gatedOrder(models.OrderStatusCancelled), gated)
	assert.Equal(t, ActionNone, action.Kind)
}

func TestClassifyNoDoubleCredit(t *testing.T) {
	ev := Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusProcessing, To: models.OrderStatusCancelled}

	action := Classify(ev, gatedOrder(models.OrderStatusCancelled, models.MutationDebited, models.MutationCredited), gated)
	assert.Equal(t, ActionNone, action.Kind)
}

func TestClassifyIsDeterministic(t *testing.T) {
	ev := Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusPending, To: models.OrderStatusOnHold}
	order := gatedOrder(models.OrderStatusOnHold)

	first := Classify(ev, order, gated)
	second := Classify(ev, order, gated)
	assert.Equal(t, first, second)
}

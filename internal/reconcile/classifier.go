package reconcile

import "stock-reconciler/internal/models"

// EventKind discriminates lifecycle events
type EventKind int

const (
	EventOrderCreated EventKind = iota
	EventStatusChanged
)

// Event is the typed form of an inbound lifecycle transition. Broker adapters
// translate wire events into this before calling the engine.
type Event struct {
	Kind    EventKind
	OrderID int64
	From    string
	To      string
}

// ActionKind discriminates reconciliation actions
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionDebit
	ActionCredit
	ActionAnnotate
	ActionReroute
)

// Action is the classifier's verdict for one event. Produced fresh per event,
// never persisted.
type Action struct {
	Kind       ActionKind
	OrderID    int64
	Note       string
	FromStatus string
	ToStatus   string
}

// Customer note appended when payment is confirmed (processing transition)
const paymentConfirmedNote = "Payment confirmed. Your order is now in production; production takes 5 to 10 business days."

// Classify maps a lifecycle event plus an order snapshot to a reconciliation
// action. Pure and deterministic: safe to re-run for redelivered events. Rules
// are evaluated in precedence order, first match wins.
func Classify(ev Event, order *models.Order, gatedMethod string) Action {
	gated := order.PaymentMethod == gatedMethod

	switch {
	case ev.Kind == EventOrderCreated && gated && order.Status == models.OrderStatusPending:
		return Action{
			Kind:       ActionReroute,
			OrderID:    order.ID,
			FromStatus: models.OrderStatusPending,
			ToStatus:   models.OrderStatusOnHold,
		}

	case ev.Kind == EventStatusChanged && ev.To == models.OrderStatusOnHold &&
		gated && !order.HasMutation(models.MutationDebited):
		return Action{Kind: ActionDebit, OrderID: order.ID}

	// The generic reduce-stock-on-payment path stays suppressed: processing
	// only gets a note, never a second debit.
	case ev.Kind == EventStatusChanged && ev.To == models.OrderStatusProcessing:
		return Action{Kind: ActionAnnotate, OrderID: order.ID, Note: paymentConfirmedNote}

	case ev.Kind == EventStatusChanged && isReversalTarget(ev.To) && isReversalSource(ev.From) &&
		order.HasMutation(models.MutationDebited) && !order.HasMutation(models.MutationCredited):
		return Action{Kind: ActionCredit, OrderID: order.ID}
	}

	return Action{Kind: ActionNone, OrderID: order.ID}
}

func isReversalTarget(status string) bool {
	return status == models.OrderStatusCancelled || status == models.OrderStatusRefunded
}

func isReversalSource(status string) bool {
	switch status {
	case models.OrderStatusProcessing, models.OrderStatusCompleted, models.OrderStatusOnHold:
		return true
	}
	return false
}

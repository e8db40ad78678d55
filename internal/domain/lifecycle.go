package domain

type OrderEvent string

const (
	EventConfirmPayment OrderEvent = "confirm_payment"
	EventMarkDone       OrderEvent = "mark_done"
	EventCancel         OrderEvent = "cancel"
)

// StockEffect is the ledger work a transition requires.
type StockEffect int

const (
	StockNone StockEffect = iota
	StockCommit
	StockRelease
)

// TransitionRule is one row of the order state machine.
type TransitionRule struct {
	From   OrderStatus
	Event  OrderEvent
	To     OrderStatus
	Effect StockEffect
}

var transitions = []TransitionRule{
	{From: OrderStatusPaymentPending, Event: EventConfirmPayment, To: OrderStatusProcessing, Effect: StockCommit},
	{From: OrderStatusProcessing, Event: EventMarkDone, To: OrderStatusCompleted, Effect: StockNone},
	{From: OrderStatusPaymentPending, Event: EventCancel, To: OrderStatusCancelled, Effect: StockNone},
	{From: OrderStatusProcessing, Event: EventCancel, To: OrderStatusCancelled, Effect: StockRelease},
}

// EventTarget is the status an event leads to when it is legal.
func EventTarget(e OrderEvent) (OrderStatus, bool) {
	switch e {
	case EventConfirmPayment:
		return OrderStatusProcessing, true
	case EventMarkDone:
		return OrderStatusCompleted, true
	case EventCancel:
		return OrderStatusCancelled, true
	default:
		return "", false
	}
}

// EventFor maps a requested target status onto the event that reaches it.
func EventFor(target OrderStatus) (OrderEvent, bool) {
	switch target {
	case OrderStatusProcessing:
		return EventConfirmPayment, true
	case OrderStatusCompleted:
		return EventMarkDone, true
	case OrderStatusCancelled:
		return EventCancel, true
	default:
		return "", false
	}
}

// Transition looks up the rule for applying e to an order in status from.
func Transition(from OrderStatus, e OrderEvent) (TransitionRule, error) {
	to, ok := EventTarget(e)
	if !ok {
		return TransitionRule{}, ErrUnknownEvent
	}
	for _, r := range transitions {
		if r.From == from && r.Event == e {
			return r, nil
		}
	}
	return TransitionRule{}, &InvalidTransitionError{From: from, To: to}
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to OrderStatus) bool {
	for _, r := range transitions {
		if r.From == from && r.To == to {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleOwner    Role = "owner"
	RoleCustomer Role = "customer"
)

// Actor identifies who requested a transition.
type Actor struct {
	Role Role
	ID   string
}

func Owner(id string) Actor    { return Actor{Role: RoleOwner, ID: id} }
func Customer(id string) Actor { return Actor{Role: RoleCustomer, ID: id} }

// CanAct reports whether the actor may change o.
func (a Actor) CanAct(o Order) bool {
	if a.Role == RoleOwner {
		return true
	}
	return a.Role == RoleCustomer && a.ID != "" && a.ID == o.CustomerID
}

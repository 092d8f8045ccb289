package model

import "time"

type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout-completed"
	EventSubscriptionCreated EventKind = "subscription-created"
	EventSubscriptionUpdated EventKind = "subscription-updated"
	EventSubscriptionDeleted EventKind = "subscription-deleted"
	EventPaymentSucceeded    EventKind = "payment-succeeded"
	EventPaymentFailed       EventKind = "payment-failed"
)

// BillingEvent is the closed union of gateway lifecycle events. One concrete
// type per kind; the state machine matches the union exhaustively, so adding
// a kind is a compile-visible change rather than a new branch in an open
// conditional chain.
type BillingEvent interface {
	EventID() string
	Kind() EventKind
	OccurredAt() time.Time // event-time as stamped by the gateway, not receipt time

	billingEvent()
}

// EventMeta carries the fields every event kind shares.
type EventMeta struct {
	ID             string
	Time           time.Time
	CustomerID     string
	SubscriptionID string
	Email          string
}

func (m EventMeta) EventID() string       { return m.ID }
func (m EventMeta) OccurredAt() time.Time { return m.Time }

type CheckoutCompleted struct {
	EventMeta
	Status    string // subscription status at completion, normally "trialing"
	PeriodEnd *time.Time
}

type SubscriptionCreated struct {
	EventMeta
	Status    string
	PeriodEnd *time.Time
}

type SubscriptionUpdated struct {
	EventMeta
	Status            string
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
}

type SubscriptionDeleted struct {
	EventMeta
}

type PaymentSucceeded struct {
	EventMeta
	PeriodEnd *time.Time
}

type PaymentFailed struct {
	EventMeta
}

func (CheckoutCompleted) Kind() EventKind   { return EventCheckoutCompleted }
func (SubscriptionCreated) Kind() EventKind { return EventSubscriptionCreated }
func (SubscriptionUpdated) Kind() EventKind { return EventSubscriptionUpdated }
func (SubscriptionDeleted) Kind() EventKind { return EventSubscriptionDeleted }
func (PaymentSucceeded) Kind() EventKind    { return EventPaymentSucceeded }
func (PaymentFailed) Kind() EventKind       { return EventPaymentFailed }

func (CheckoutCompleted) billingEvent()   {}
func (SubscriptionCreated) billingEvent() {}
func (SubscriptionUpdated) billingEvent() {}
func (SubscriptionDeleted) billingEvent() {}
func (PaymentSucceeded) billingEvent()    {}
func (PaymentFailed) billingEvent()       {}

// Package booking holds the booking/payment decision logic. It does no I/O:
// callers load a booking, ask Decide for the next state and persist the
// result themselves.
package booking

import (
	"fmt"

	"github.com/servicehub/backend/internal/models"
)

type Event string

const (
	PaymentVerified    Event = "PaymentVerified"
	PaymentRejected    Event = "PaymentRejected"
	PaymentResubmitted Event = "PaymentResubmitted"
	ProviderApproved   Event = "ProviderApproved"
	ProviderDeclined   Event = "ProviderDeclined"
	ProviderCanceled   Event = "ProviderCanceled"
	MarkCompleted      Event = "MarkCompleted"
)

// State is the slice of a booking the decision depends on.
type State struct {
	Status            models.BookingStatus
	PaymentStatus     models.PaymentStatus
	AutoConfirm       bool
	ProviderConfirmed bool
}

// StateOf extracts the decision inputs from a stored booking.
func StateOf(b *models.Booking) State {
	return State{
		Status:            b.Status,
		PaymentStatus:     b.PaymentStatus,
		AutoConfirm:       b.AutoConfirm,
		ProviderConfirmed: b.ProviderConfirmedAt != nil,
	}
}

// Decision is the outcome of applying an event. IssueRefund asks the caller
// to refund the booking's total price; the wallet makes that idempotent.
type Decision struct {
	Status             models.BookingStatus
	PaymentStatus      models.PaymentStatus
	SetProviderConfirm bool
	IssueRefund        bool
}

type transitionKey struct {
	status models.BookingStatus
	event  Event
}

type rule func(State) Decision

// transitions is the whole policy. A (status, event) pair missing from the
// table is not a valid transition, which covers every terminal status.
var transitions = map[transitionKey]rule{
	{models.BookingPending, PaymentVerified}:    onPaymentVerified,
	{models.BookingPending, PaymentRejected}:    onPaymentRejected,
	{models.BookingPending, PaymentResubmitted}: onPaymentResubmitted,
	{models.BookingPending, ProviderApproved}:   onProviderApproved,
	{models.BookingPending, ProviderDeclined}:   cancel,
	{models.BookingPending, ProviderCanceled}:   cancel,
	{models.BookingConfirmed, ProviderDeclined}: cancel,
	{models.BookingConfirmed, ProviderCanceled}: cancel,
	{models.BookingConfirmed, MarkCompleted}:    complete,
}

// guards reject events whose preconditions on payment status do not hold.
var guards = map[Event]func(State) bool{
	PaymentVerified:    func(s State) bool { return s.PaymentStatus == models.PaymentPending },
	PaymentRejected:    func(s State) bool { return s.PaymentStatus == models.PaymentPending },
	PaymentResubmitted: func(s State) bool { return s.PaymentStatus == models.PaymentFailed },
}

// Decide maps the current state and an incoming event to the next state.
func Decide(s State, ev Event) (Decision, error) {
	r, ok := transitions[transitionKey{s.Status, ev}]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s on %s booking", models.ErrInvalidStateTransition, ev, s.Status)
	}
	if g, ok := guards[ev]; ok && !g(s) {
		return Decision{}, fmt.Errorf("%w: %s with payment %s", models.ErrInvalidStateTransition, ev, s.PaymentStatus)
	}
	return r(s), nil
}

// Changed reports whether applying d to s alters anything worth persisting.
func (d Decision) Changed(s State) bool {
	return d.Status != s.Status ||
		d.PaymentStatus != s.PaymentStatus ||
		(d.SetProviderConfirm && !s.ProviderConfirmed) ||
		d.IssueRefund
}

func onPaymentVerified(s State) Decision {
	d := Decision{Status: models.BookingPending, PaymentStatus: models.PaymentPaid}
	if s.AutoConfirm || s.ProviderConfirmed {
		d.Status = models.BookingConfirmed
	}
	return d
}

func onPaymentRejected(s State) Decision {
	return Decision{Status: models.BookingPending, PaymentStatus: models.PaymentFailed}
}

func onPaymentResubmitted(s State) Decision {
	return Decision{Status: models.BookingPending, PaymentStatus: models.PaymentPending}
}

func onProviderApproved(s State) Decision {
	d := Decision{Status: models.BookingPending, PaymentStatus: s.PaymentStatus, SetProviderConfirm: true}
	if s.PaymentStatus == models.PaymentPaid {
		d.Status = models.BookingConfirmed
	}
	return d
}

// cancel refunds whenever the booking was paid, regardless of how close to
// the service time the cancellation lands.
func cancel(s State) Decision {
	return Decision{
		Status:        models.BookingCanceled,
		PaymentStatus: s.PaymentStatus,
		IssueRefund:   s.PaymentStatus == models.PaymentPaid,
	}
}

func complete(s State) Decision {
	return Decision{Status: models.BookingCompleted, PaymentStatus: s.PaymentStatus}
}

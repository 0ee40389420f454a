package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCanceled  BookingStatus = "canceled"
)

// Terminal reports whether no further transition is allowed.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCanceled
}

type Booking struct {
	ID                  string        `json:"id" db:"id"`
	CustomerID          string        `json:"customer_id" db:"customer_id"`
	ProviderID          string        `json:"provider_id" db:"provider_id"`
	ServiceID           string        `json:"service_id" db:"service_id"`
	Status              BookingStatus `json:"status" db:"status"`
	PaymentStatus       PaymentStatus `json:"payment_status" db:"payment_status"`
	ProviderConfirmedAt *time.Time    `json:"provider_confirmed_at,omitempty" db:"provider_confirmed_at"`
	TotalPriceCents     int64         `json:"total_price_cents" db:"total_price_cents"`
	AutoConfirm         bool          `json:"auto_confirm" db:"auto_confirm"`
	Version             int64         `json:"version" db:"version"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at" db:"updated_at"`
}

// BookingEvent is one row of a booking's append-only transition history.
type BookingEvent struct {
	ID         int64         `json:"id" db:"id"`
	BookingID  string        `json:"booking_id" db:"booking_id"`
	Event      string        `json:"event" db:"event"`
	FromStatus BookingStatus `json:"from_status" db:"from_status"`
	ToStatus   BookingStatus `json:"to_status" db:"to_status"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// ServiceListing carries the fields a booking inherits at reservation time.
type ServiceListing struct {
	ID          string `json:"id" db:"id"`
	ProviderID  string `json:"provider_id" db:"provider_id"`
	PriceCents  int64  `json:"price_cents" db:"price_cents"`
	AutoConfirm bool   `json:"auto_confirm" db:"auto_confirm"`
}

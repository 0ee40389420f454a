package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Logger records money movements and booking transitions.
type Logger interface {
	LogTransfer(transactionID, fromAccount, toAccount string, amount int64, kind string)
	LogTransition(bookingID, event, fromStatus, toStatus string)
	LogVerification(paymentID, adminID, action string)
	LogError(reference, subject string, err error)
}

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference"`
	Subject   string    `json:"subject,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type AuditLogger struct {
	now func() time.Time
}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{now: time.Now}
}

func (a *AuditLogger) LogTransfer(transactionID, fromAccount, toAccount string, amount int64, kind string) {
	a.log(Event{
		EventType: "TRANSFER",
		Reference: transactionID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
			"kind":         kind,
		},
	})
}

func (a *AuditLogger) LogTransition(bookingID, event, fromStatus, toStatus string) {
	a.log(Event{
		EventType: "BOOKING_TRANSITION",
		Reference: bookingID,
		Status:    "SUCCESS",
		Details: map[string]string{
			"event": event,
			"from":  fromStatus,
			"to":    toStatus,
		},
	})
}

func (a *AuditLogger) LogVerification(paymentID, adminID, action string) {
	a.log(Event{
		EventType: "PAYMENT_VERIFICATION",
		Reference: paymentID,
		Subject:   adminID,
		Status:    "SUCCESS",
		Details:   map[string]string{"action": action},
	})
}

func (a *AuditLogger) LogError(reference, subject string, err error) {
	a.log(Event{
		EventType: "ERROR",
		Reference: reference,
		Subject:   subject,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event Event) {
	event.Timestamp = a.now().UTC()
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}

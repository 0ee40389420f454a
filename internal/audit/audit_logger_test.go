package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureAudit(t *testing.T, fn func(a *AuditLogger)) Event {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	}()

	a := &AuditLogger{now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }}
	fn(a)

	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "AUDIT: "), line)

	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "AUDIT: ")), &event))
	return event
}

func TestAuditLogger_LogTransfer(t *testing.T) {
	event := captureAudit(t, func(a *AuditLogger) {
		a.LogTransfer("tx1", "acc-user", "acc-platform", 2500, "PAYMENT")
	})

	assert.Equal(t, "TRANSFER", event.EventType)
	assert.Equal(t, "tx1", event.Reference)
	assert.Equal(t, int64(2500), event.Amount)
	assert.Equal(t, 2026, event.Timestamp.Year())
	details := event.Details.(map[string]any)
	assert.Equal(t, "PAYMENT", details["kind"])
	assert.Equal(t, "acc-user", details["from_account"])
}

func TestAuditLogger_LogTransition(t *testing.T) {
	event := captureAudit(t, func(a *AuditLogger) {
		a.LogTransition("b1", "ProviderDeclined", "confirmed", "canceled")
	})

	assert.Equal(t, "BOOKING_TRANSITION", event.EventType)
	details := event.Details.(map[string]any)
	assert.Equal(t, "canceled", details["to"])
}

func TestAuditLogger_LogError(t *testing.T) {
	event := captureAudit(t, func(a *AuditLogger) {
		a.LogError("ref", "user-1", errors.New("insufficient funds"))
	})

	assert.Equal(t, "FAILED", event.Status)
	assert.Equal(t, "user-1", event.Subject)
}

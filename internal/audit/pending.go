package audit

import "context"

type pendingKey struct{}

// Pending holds the events raised inside a database transaction until the
// transaction commits. It satisfies Logger so transactional code writes to it
// the same way it writes to the real logger.
type Pending struct {
	events []func(Logger)
}

// Begin returns a context carrying an empty Pending.
func Begin(ctx context.Context) (context.Context, *Pending) {
	p := &Pending{}
	return context.WithValue(ctx, pendingKey{}, p), p
}

// For returns the Pending carried by ctx, or fallback outside a transaction.
func For(ctx context.Context, fallback Logger) Logger {
	if p, ok := ctx.Value(pendingKey{}).(*Pending); ok {
		return p
	}
	return fallback
}

func (p *Pending) LogTransfer(transactionID, fromAccount, toAccount string, amount int64, kind string) {
	p.events = append(p.events, func(l Logger) { l.LogTransfer(transactionID, fromAccount, toAccount, amount, kind) })
}

func (p *Pending) LogTransition(bookingID, event, fromStatus, toStatus string) {
	p.events = append(p.events, func(l Logger) { l.LogTransition(bookingID, event, fromStatus, toStatus) })
}

func (p *Pending) LogVerification(paymentID, adminID, action string) {
	p.events = append(p.events, func(l Logger) { l.LogVerification(paymentID, adminID, action) })
}

func (p *Pending) LogError(reference, subject string, err error) {
	p.events = append(p.events, func(l Logger) { l.LogError(reference, subject, err) })
}

// Flush writes the held events to l in the order they were raised.
func (p *Pending) Flush(l Logger) {
	for _, write := range p.events {
		write(l)
	}
	p.events = nil
}

// Package notify delivers payee-facing notifications. The service has no
// outbound channel of its own, so notifications are written to the log and
// kept in a short in-memory feed that operators can read back.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/paylane/settlement/internal/checkout"
	"github.com/paylane/settlement/internal/domain"
)

// Event is one delivered notification.
type Event struct {
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	Ref       string    `json:"ref"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

type LogNotifier struct {
	mu     sync.Mutex
	feed   []Event
	limit  int
	logger *slog.Logger
}

func NewLogNotifier(limit int, logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{limit: limit, logger: logger.With("component", "notify")}
}

func (n *LogNotifier) PaymentApproved(_ context.Context, o domain.Order) error {
	n.push(Event{
		Kind:      "payment_approved",
		Recipient: o.PayeeID,
		Ref:       o.TransactionRef,
		Message:   "payment of " + o.GrossAmount.StringFixed(2) + " approved",
	})
	return nil
}

func (n *LogNotifier) AnticipationCompleted(_ context.Context, b domain.AnticipationBatch) error {
	n.push(Event{
		Kind:      "anticipation_completed",
		Recipient: b.PayeeID,
		Ref:       b.ID,
		Message:   b.NetTotal.StringFixed(2) + " credited from anticipation",
	})
	return nil
}

// Checkout forwards checkout session messages.
func (n *LogNotifier) Checkout(msg checkout.Notification) {
	n.push(Event{Kind: "checkout_" + string(msg.Kind), Ref: msg.Ref, Message: msg.Message})
}

// Recent returns the retained events, oldest first.
func (n *LogNotifier) Recent() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.feed...)
}

func (n *LogNotifier) push(e Event) {
	e.At = time.Now().UTC()
	n.logger.Info("notification", "kind", e.Kind, "recipient", e.Recipient, "ref", e.Ref, "message", e.Message)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.limit <= 0 {
		return
	}
	n.feed = append(n.feed, e)
	if len(n.feed) > n.limit {
		n.feed = n.feed[len(n.feed)-n.limit:]
	}
}

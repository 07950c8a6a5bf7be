package delivery

import (
	"context"
	"log/slog"
)

// LogDeliverer records deliveries to the log instead of sending them. Used in
// demo mode and when SMTP is not configured. Bodies are never logged.
type LogDeliverer struct{}

// NewLogDeliverer creates a log-only deliverer.
func NewLogDeliverer() *LogDeliverer {
	return &LogDeliverer{}
}

// Deliver logs the delivery metadata and succeeds.
func (d *LogDeliverer) Deliver(_ context.Context, msg *Message) error {
	slog.Info("delivery (log mode)",
		"to", msg.To,
		"subject", msg.Subject,
		"body_len", len(msg.Body))
	return nil
}

// Ensure LogDeliverer implements Deliverer.
var _ Deliverer = (*LogDeliverer)(nil)

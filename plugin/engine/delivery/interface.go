// Package delivery sends generated content to subscribers and owners. The
// engine persists the reported result; a failed delivery never counts as
// executed.
package delivery

import "context"

// Message is one outbound delivery.
type Message struct {
	To      string
	ToName  string
	From    string
	Subject string
	// Body is markdown; implementations decide how to render it.
	Body string
}

// Deliverer sends messages.
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) error
}

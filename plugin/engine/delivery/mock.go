package delivery

import (
	"context"
	"sync"
)

// MockDeliverer records every delivery for tests and can be told to fail.
type MockDeliverer struct {
	mu        sync.Mutex
	delivered []*Message

	// Err, when set, is returned by every Deliver call.
	Err error
}

// NewMockDeliverer creates an empty mock.
func NewMockDeliverer() *MockDeliverer {
	return &MockDeliverer{}
}

// Deliver records the message unless Err is set.
func (m *MockDeliverer) Deliver(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.delivered = append(m.delivered, msg)
	return nil
}

// Delivered returns a copy of the recorded messages.
func (m *MockDeliverer) Delivered() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, len(m.delivered))
	copy(out, m.delivered)
	return out
}

// Ensure MockDeliverer implements Deliverer.
var _ Deliverer = (*MockDeliverer)(nil)

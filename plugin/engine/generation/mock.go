package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockGenerator is a deterministic Generator for tests: the same request
// always yields the same content, with no network access.
type MockGenerator struct {
	mu      sync.Mutex
	calls   int
	lastReq *Request

	// Err, when set, is returned by every Generate call.
	Err error
}

// NewMockGenerator creates a mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate renders a template from the request fields.
func (m *MockGenerator) Generate(_ context.Context, req *Request) (*Content, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	subject := fmt.Sprintf("[%s] %s for %s", req.AgentType, req.Action.ActionType, req.SubscriberID)

	var b strings.Builder
	fmt.Fprintf(&b, "Strategy: %s\n", req.Action.Strategy)
	d := req.Action.Details
	if d.DiscountPercent > 0 {
		fmt.Fprintf(&b, "Offer: %.0f%% off for %d months\n", d.DiscountPercent, d.DiscountMonths)
	}
	if d.PauseDays > 0 {
		fmt.Fprintf(&b, "Offer: pause for %d days\n", d.PauseDays)
	}
	if d.ExtensionDays > 0 {
		fmt.Fprintf(&b, "Offer: extend trial by %d days\n", d.ExtensionDays)
	}
	if req.CustomNote != "" {
		fmt.Fprintf(&b, "Note: %s\n", req.CustomNote)
	}
	if req.Brand != nil && req.Brand.Signature != "" {
		b.WriteString(req.Brand.Signature + "\n")
	}

	return &Content{Subject: subject, Body: strings.TrimRight(b.String(), "\n")}, nil
}

// Calls returns the number of Generate invocations.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent Generate request, or nil.
func (m *MockGenerator) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

// Ensure MockGenerator implements Generator.
var _ Generator = (*MockGenerator)(nil)

// Package generation produces the subscriber-facing content (subject + body)
// for a decided action. Generation is a collaborator of the orchestrator and
// lifecycle services; it never touches action state.
package generation

import (
	"context"

	"github.com/subpilot/subpilot/store"
)

// Request carries everything a generator needs to draft content.
type Request struct {
	UserID       int32
	AgentType    store.AgentType
	Trigger      string
	SubscriberID string
	Action       store.ActionTaken

	// Subscriber context, so the draft can address the subscriber by name
	// and reference their plan. Empty fields are simply omitted.
	SubscriberName      string
	SubscriberEmail     string
	Plan                string
	MonthlyRevenueCents int64

	// MemorySummary is the bounded digest of subscriber memories.
	MemorySummary string
	Brand         *store.BrandSettings

	// Overrides from a modify request; empty values mean "unchanged".
	CustomNote string
}

// Content is the generated draft.
type Content struct {
	Subject string
	Body    string // markdown
}

// Generator drafts action content.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Content, error)
}

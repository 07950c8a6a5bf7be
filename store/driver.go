package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	GetUser(ctx context.Context, find *FindUser) (*User, error)

	// AgentConfig model related methods.
	UpsertAgentConfig(ctx context.Context, upsert *AgentConfig) (*AgentConfig, error)
	GetAgentConfig(ctx context.Context, find *FindAgentConfig) (*AgentConfig, error)
	ListAgentConfigs(ctx context.Context, find *FindAgentConfig) ([]*AgentConfig, error)

	// BrandSettings model related methods.
	UpsertBrandSettings(ctx context.Context, upsert *BrandSettings) (*BrandSettings, error)
	GetBrandSettings(ctx context.Context, userID int32) (*BrandSettings, error)

	// AgentAction model related methods.
	// CreatePendingAgentAction counts the limit windows and inserts the
	// pending action in one transaction; the partial unique index on
	// (subscriber_id, trigger) for pending rows enforces the dedup invariant.
	CreatePendingAgentAction(ctx context.Context, create *AgentAction, limits *ActionLimits) (*AgentAction, error)
	GetAgentAction(ctx context.Context, find *FindAgentAction) (*AgentAction, error)
	ListAgentActions(ctx context.Context, find *FindAgentAction) ([]*AgentAction, error)
	UpdateAgentActionStatus(ctx context.Context, update *UpdateAgentActionStatus) (*AgentAction, error)
	UpdateAgentActionContent(ctx context.Context, update *UpdateAgentActionContent) (*AgentAction, error)
	CountActionsCreatedSince(ctx context.Context, userID int32, sinceTs int64) (int, error)
	CountSubscriberActionsSince(ctx context.Context, subscriberID string, actionTypes []string, sinceTs int64) (int, error)

	// Episode model related methods.
	CreateEpisode(ctx context.Context, create *Episode) (*Episode, error)
	GetEpisode(ctx context.Context, find *FindEpisode) (*Episode, error)
	ListEpisodes(ctx context.Context, find *FindEpisode) ([]*Episode, error)
	ResolveEpisode(ctx context.Context, resolve *ResolveEpisode) (*Episode, error)

	// Feedback model related methods.
	CreateFeedback(ctx context.Context, create *Feedback) (*Feedback, error)
	ListFeedback(ctx context.Context, find *FindFeedback) ([]*Feedback, error)

	// Pattern model related methods.
	ReplacePatterns(ctx context.Context, replace *ReplacePatterns) error
	ListPatterns(ctx context.Context, find *FindPattern) ([]*Pattern, error)

	// SubscriberMemory model related methods.
	CreateSubscriberMemory(ctx context.Context, create *SubscriberMemory) (*SubscriberMemory, error)
	UpsertSubscriberPreference(ctx context.Context, upsert *SubscriberMemory) (*SubscriberMemory, error)
	ListSubscriberMemories(ctx context.Context, find *FindSubscriberMemory) ([]*SubscriberMemory, error)

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	GetSystemSetting(ctx context.Context, key string) (*SystemSetting, error)
}

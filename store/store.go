package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subpilot/subpilot/internal/profile"
	"github.com/subpilot/subpilot/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Caches for hot read paths. Configs and brand settings are read on every
	// inbound event but mutated rarely.
	configCache *cache.Cache
	brandCache  *cache.Cache
	userCache   *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:      driver,
		profile:     profile,
		configCache: cache.New(cacheConfig),
		brandCache:  cache.New(cacheConfig),
		userCache:   cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.configCache.Close()
	s.brandCache.Close()
	s.userCache.Close()

	return s.driver.Close()
}

// User

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	if find.ID != nil && find.Email == nil {
		if v, ok := s.userCache.Get(userCacheKey(*find.ID)); ok {
			return v.(*User), nil
		}
	}
	user, err := s.driver.GetUser(ctx, find)
	if err != nil {
		return nil, err
	}
	s.userCache.Set(userCacheKey(user.ID), user)
	return user, nil
}

// AgentConfig

func (s *Store) UpsertAgentConfig(ctx context.Context, upsert *AgentConfig) (*AgentConfig, error) {
	config, err := s.driver.UpsertAgentConfig(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.configCache.Delete(configCacheKey(config.UserID, config.AgentType))
	return config, nil
}

func (s *Store) GetAgentConfig(ctx context.Context, find *FindAgentConfig) (*AgentConfig, error) {
	if find.UserID != nil && find.AgentType != nil && find.ID == nil {
		if v, ok := s.configCache.Get(configCacheKey(*find.UserID, *find.AgentType)); ok {
			return v.(*AgentConfig), nil
		}
	}
	config, err := s.driver.GetAgentConfig(ctx, find)
	if err != nil {
		return nil, err
	}
	s.configCache.Set(configCacheKey(config.UserID, config.AgentType), config)
	return config, nil
}

// GetOrCreateAgentConfig returns the config for (user, agent type), lazily
// creating the conservative default if none exists yet.
func (s *Store) GetOrCreateAgentConfig(ctx context.Context, userID int32, agentType AgentType) (*AgentConfig, error) {
	config, err := s.GetAgentConfig(ctx, &FindAgentConfig{UserID: &userID, AgentType: &agentType})
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.UpsertAgentConfig(ctx, DefaultAgentConfig(userID, agentType))
}

func (s *Store) ListAgentConfigs(ctx context.Context, find *FindAgentConfig) ([]*AgentConfig, error) {
	return s.driver.ListAgentConfigs(ctx, find)
}

// BrandSettings

func (s *Store) UpsertBrandSettings(ctx context.Context, upsert *BrandSettings) (*BrandSettings, error) {
	settings, err := s.driver.UpsertBrandSettings(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.brandCache.Delete(brandCacheKey(settings.UserID))
	return settings, nil
}

// GetBrandSettings returns the user's brand settings, falling back to neutral
// defaults when none are configured.
func (s *Store) GetBrandSettings(ctx context.Context, userID int32) (*BrandSettings, error) {
	if v, ok := s.brandCache.Get(brandCacheKey(userID)); ok {
		return v.(*BrandSettings), nil
	}
	settings, err := s.driver.GetBrandSettings(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return DefaultBrandSettings(userID), nil
	}
	if err != nil {
		return nil, err
	}
	s.brandCache.Set(brandCacheKey(userID), settings)
	return settings, nil
}

// AgentAction

func (s *Store) CreatePendingAgentAction(ctx context.Context, create *AgentAction, limits *ActionLimits) (*AgentAction, error) {
	return s.driver.CreatePendingAgentAction(ctx, create, limits)
}

func (s *Store) GetAgentAction(ctx context.Context, find *FindAgentAction) (*AgentAction, error) {
	return s.driver.GetAgentAction(ctx, find)
}

func (s *Store) ListAgentActions(ctx context.Context, find *FindAgentAction) ([]*AgentAction, error) {
	return s.driver.ListAgentActions(ctx, find)
}

func (s *Store) UpdateAgentActionStatus(ctx context.Context, update *UpdateAgentActionStatus) (*AgentAction, error) {
	return s.driver.UpdateAgentActionStatus(ctx, update)
}

func (s *Store) UpdateAgentActionContent(ctx context.Context, update *UpdateAgentActionContent) (*AgentAction, error) {
	return s.driver.UpdateAgentActionContent(ctx, update)
}

func (s *Store) CountActionsCreatedSince(ctx context.Context, userID int32, sinceTs int64) (int, error) {
	return s.driver.CountActionsCreatedSince(ctx, userID, sinceTs)
}

func (s *Store) CountSubscriberActionsSince(ctx context.Context, subscriberID string, actionTypes []string, sinceTs int64) (int, error) {
	return s.driver.CountSubscriberActionsSince(ctx, subscriberID, actionTypes, sinceTs)
}

// Episode

func (s *Store) CreateEpisode(ctx context.Context, create *Episode) (*Episode, error) {
	return s.driver.CreateEpisode(ctx, create)
}

func (s *Store) GetEpisode(ctx context.Context, find *FindEpisode) (*Episode, error) {
	return s.driver.GetEpisode(ctx, find)
}

func (s *Store) ListEpisodes(ctx context.Context, find *FindEpisode) ([]*Episode, error) {
	return s.driver.ListEpisodes(ctx, find)
}

func (s *Store) ResolveEpisode(ctx context.Context, resolve *ResolveEpisode) (*Episode, error) {
	return s.driver.ResolveEpisode(ctx, resolve)
}

// Feedback

func (s *Store) CreateFeedback(ctx context.Context, create *Feedback) (*Feedback, error) {
	return s.driver.CreateFeedback(ctx, create)
}

func (s *Store) ListFeedback(ctx context.Context, find *FindFeedback) ([]*Feedback, error) {
	return s.driver.ListFeedback(ctx, find)
}

// Pattern

func (s *Store) ReplacePatterns(ctx context.Context, replace *ReplacePatterns) error {
	return s.driver.ReplacePatterns(ctx, replace)
}

func (s *Store) ListPatterns(ctx context.Context, find *FindPattern) ([]*Pattern, error) {
	return s.driver.ListPatterns(ctx, find)
}

// SubscriberMemory

func (s *Store) CreateSubscriberMemory(ctx context.Context, create *SubscriberMemory) (*SubscriberMemory, error) {
	return s.driver.CreateSubscriberMemory(ctx, create)
}

func (s *Store) UpsertSubscriberPreference(ctx context.Context, upsert *SubscriberMemory) (*SubscriberMemory, error) {
	return s.driver.UpsertSubscriberPreference(ctx, upsert)
}

func (s *Store) ListSubscriberMemories(ctx context.Context, find *FindSubscriberMemory) ([]*SubscriberMemory, error) {
	return s.driver.ListSubscriberMemories(ctx, find)
}

// SystemSetting

func (s *Store) UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error) {
	return s.driver.UpsertSystemSetting(ctx, upsert)
}

func (s *Store) GetSystemSetting(ctx context.Context, key string) (*SystemSetting, error) {
	return s.driver.GetSystemSetting(ctx, key)
}

func configCacheKey(userID int32, agentType AgentType) string {
	return fmt.Sprintf("config:%d:%s", userID, agentType)
}

func brandCacheKey(userID int32) string {
	return fmt.Sprintf("brand:%d", userID)
}

func userCacheKey(userID int32) string {
	return fmt.Sprintf("user:%d", userID)
}

package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// MockDriver is an in-memory Driver for engine tests. It honors the same
// invariants as the SQL drivers: pending dedup, atomic limit checks, guarded
// status transitions, and single-shot episode resolution.
type MockDriver struct {
	mu sync.Mutex

	users     []*User
	configs   []*AgentConfig
	brands    []*BrandSettings
	actions   []*AgentAction
	episodes  []*Episode
	feedbacks []*Feedback
	patterns  []*Pattern
	memories  []*SubscriberMemory
	settings  map[string]string

	nextID int64
}

// NewMockDriver creates an empty in-memory driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{settings: make(map[string]string)}
}

func (d *MockDriver) GetDB() *sql.DB { return nil }

func (d *MockDriver) Close() error { return nil }

func (d *MockDriver) IsInitialized(_ context.Context) (bool, error) { return true, nil }

func (d *MockDriver) nextSeq() int64 {
	d.nextID++
	return d.nextID
}

// User

func (d *MockDriver) CreateUser(_ context.Context, create *User) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = int32(d.nextSeq())
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	d.users = append(d.users, create)
	return create, nil
}

func (d *MockDriver) GetUser(_ context.Context, find *FindUser) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if find.ID != nil && u.ID != *find.ID {
			continue
		}
		if find.Email != nil && u.Email != *find.Email {
			continue
		}
		return u, nil
	}
	return nil, ErrNotFound
}

// AgentConfig

func (d *MockDriver) UpsertAgentConfig(_ context.Context, upsert *AgentConfig) (*AgentConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().Unix()
	upsert.UpdatedTs = now
	for i, c := range d.configs {
		if c.UserID == upsert.UserID && c.AgentType == upsert.AgentType {
			upsert.ID = c.ID
			upsert.CreatedTs = c.CreatedTs
			d.configs[i] = upsert
			return upsert, nil
		}
	}
	upsert.ID = int32(d.nextSeq())
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	d.configs = append(d.configs, upsert)
	return upsert, nil
}

func (d *MockDriver) GetAgentConfig(ctx context.Context, find *FindAgentConfig) (*AgentConfig, error) {
	list, err := d.ListAgentConfigs(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (d *MockDriver) ListAgentConfigs(_ context.Context, find *FindAgentConfig) ([]*AgentConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := make([]*AgentConfig, 0)
	for _, c := range d.configs {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.UserID != nil && c.UserID != *find.UserID {
			continue
		}
		if find.AgentType != nil && c.AgentType != *find.AgentType {
			continue
		}
		list = append(list, c)
	}
	return list, nil
}

// BrandSettings

func (d *MockDriver) UpsertBrandSettings(_ context.Context, upsert *BrandSettings) (*BrandSettings, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	upsert.UpdatedTs = time.Now().Unix()
	for i, b := range d.brands {
		if b.UserID == upsert.UserID {
			upsert.ID = b.ID
			d.brands[i] = upsert
			return upsert, nil
		}
	}
	upsert.ID = int32(d.nextSeq())
	d.brands = append(d.brands, upsert)
	return upsert, nil
}

func (d *MockDriver) GetBrandSettings(_ context.Context, userID int32) (*BrandSettings, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.brands {
		if b.UserID == userID {
			return b, nil
		}
	}
	return nil, ErrNotFound
}

// AgentAction

func (d *MockDriver) CreatePendingAgentAction(_ context.Context, create *AgentAction, limits *ActionLimits) (*AgentAction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	create.Status = ActionStatusPendingApproval

	// Pending dedup.
	for _, a := range d.actions {
		if a.SubscriberID == create.SubscriberID && a.Trigger == create.Trigger && a.Status == ActionStatusPendingApproval {
			return nil, ErrAlreadyPending
		}
	}

	if limits != nil {
		daily := 0
		for _, a := range d.actions {
			if a.UserID == create.UserID && a.CreatedTs >= limits.DayStartTs {
				daily++
			}
		}
		if daily >= limits.MaxActionsPerDay {
			return nil, &LimitExceededError{Limit: "daily_actions", Max: limits.MaxActionsPerDay, Count: daily}
		}

		if containsString(EmailActionTypes, create.ActionType) {
			weekly := d.countSubscriberLocked(create.SubscriberID, EmailActionTypes, limits.WeekStartTs)
			if weekly >= limits.MaxEmailsPerSubscriberWeek {
				return nil, &LimitExceededError{Limit: "weekly_subscriber_emails", Max: limits.MaxEmailsPerSubscriberWeek, Count: weekly}
			}
		}
		if containsString(OfferActionTypes, create.ActionType) {
			yearly := d.countSubscriberLocked(create.SubscriberID, OfferActionTypes, limits.YearStartTs)
			if yearly >= limits.MaxOffersPerSubscriberYear {
				return nil, &LimitExceededError{Limit: "yearly_subscriber_offers", Max: limits.MaxOffersPerSubscriberYear, Count: yearly}
			}
		}
	}

	create.ID = d.nextSeq()
	d.actions = append(d.actions, create)
	return create, nil
}

func (d *MockDriver) GetAgentAction(ctx context.Context, find *FindAgentAction) (*AgentAction, error) {
	list, err := d.ListAgentActions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (d *MockDriver) ListAgentActions(_ context.Context, find *FindAgentAction) ([]*AgentAction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := make([]*AgentAction, 0)
	for _, a := range d.actions {
		if find.ID != nil && a.ID != *find.ID {
			continue
		}
		if find.UID != nil && a.UID != *find.UID {
			continue
		}
		if find.UserID != nil && a.UserID != *find.UserID {
			continue
		}
		if find.SubscriberID != nil && a.SubscriberID != *find.SubscriberID {
			continue
		}
		if find.AgentType != nil && a.AgentType != *find.AgentType {
			continue
		}
		if find.Trigger != nil && a.Trigger != *find.Trigger {
			continue
		}
		if find.Status != nil && a.Status != *find.Status {
			continue
		}
		if find.CreatedBefore != nil && a.CreatedTs >= *find.CreatedBefore {
			continue
		}
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs > list[j].CreatedTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *MockDriver) UpdateAgentActionStatus(_ context.Context, update *UpdateAgentActionStatus) (*AgentAction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.actions {
		if a.ID != update.ID {
			continue
		}
		if a.Status != update.ExpectedStatus {
			return nil, ErrInvalidTransition
		}
		a.Status = update.Status
		if update.ApprovedTs != nil {
			a.ApprovedTs = update.ApprovedTs
		}
		if update.RejectedTs != nil {
			a.RejectedTs = update.RejectedTs
		}
		if update.ExecutedTs != nil {
			a.ExecutedTs = update.ExecutedTs
		}
		if update.ExpiredTs != nil {
			a.ExpiredTs = update.ExpiredTs
		}
		if update.ApproverID != nil {
			a.ApproverID = update.ApproverID
		}
		if update.RejectReason != nil {
			a.RejectReason = *update.RejectReason
		}
		if update.FailureReason != nil {
			a.FailureReason = *update.FailureReason
		}
		return a, nil
	}
	return nil, ErrNotFound
}

func (d *MockDriver) UpdateAgentActionContent(_ context.Context, update *UpdateAgentActionContent) (*AgentAction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.actions {
		if a.ID != update.ID {
			continue
		}
		a.Subject = update.Subject
		a.Body = update.Body
		a.Description = update.Description
		a.Taken = update.Taken
		return a, nil
	}
	return nil, ErrNotFound
}

func (d *MockDriver) CountActionsCreatedSince(_ context.Context, userID int32, sinceTs int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, a := range d.actions {
		if a.UserID == userID && a.CreatedTs >= sinceTs {
			count++
		}
	}
	return count, nil
}

func (d *MockDriver) CountSubscriberActionsSince(_ context.Context, subscriberID string, actionTypes []string, sinceTs int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.countSubscriberLocked(subscriberID, actionTypes, sinceTs), nil
}

func (d *MockDriver) countSubscriberLocked(subscriberID string, actionTypes []string, sinceTs int64) int {
	count := 0
	for _, a := range d.actions {
		if a.SubscriberID == subscriberID && containsString(actionTypes, a.ActionType) && a.CreatedTs >= sinceTs {
			count++
		}
	}
	return count
}

// Episode

func (d *MockDriver) CreateEpisode(_ context.Context, create *Episode) (*Episode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.nextSeq()
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	d.episodes = append(d.episodes, create)
	return create, nil
}

func (d *MockDriver) GetEpisode(ctx context.Context, find *FindEpisode) (*Episode, error) {
	list, err := d.ListEpisodes(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (d *MockDriver) ListEpisodes(_ context.Context, find *FindEpisode) ([]*Episode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := make([]*Episode, 0)
	for _, e := range d.episodes {
		if find.ID != nil && e.ID != *find.ID {
			continue
		}
		if find.UID != nil && e.UID != *find.UID {
			continue
		}
		if find.UserID != nil && e.UserID != *find.UserID {
			continue
		}
		if find.SubscriberID != nil && e.SubscriberID != *find.SubscriberID {
			continue
		}
		if find.AgentType != nil && e.AgentType != *find.AgentType {
			continue
		}
		if find.Trigger != nil && e.Trigger != *find.Trigger {
			continue
		}
		if find.Resolved != nil && e.Resolved() != *find.Resolved {
			continue
		}
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs > list[j].CreatedTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *MockDriver) ResolveEpisode(_ context.Context, resolve *ResolveEpisode) (*Episode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.episodes {
		if e.UID != resolve.UID {
			continue
		}
		if e.Resolved() {
			return nil, ErrInvalidEpisodeState
		}
		e.Outcome = resolve.Outcome
		e.OutcomeDetail = resolve.OutcomeDetail
		ts := resolve.ResolvedTs
		e.ResolvedTs = &ts
		return e, nil
	}
	return nil, ErrNotFound
}

// Feedback

func (d *MockDriver) CreateFeedback(_ context.Context, create *Feedback) (*Feedback, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.nextSeq()
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	d.feedbacks = append(d.feedbacks, create)
	return create, nil
}

func (d *MockDriver) ListFeedback(_ context.Context, find *FindFeedback) ([]*Feedback, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := make([]*Feedback, 0)
	for _, f := range d.feedbacks {
		if find.UserID != nil && f.UserID != *find.UserID {
			continue
		}
		if find.SubscriberID != nil && f.SubscriberID != *find.SubscriberID {
			continue
		}
		if find.FeedbackType != nil && f.FeedbackType != *find.FeedbackType {
			continue
		}
		list = append(list, f)
	}
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

// Pattern

func (d *MockDriver) ReplacePatterns(_ context.Context, replace *ReplacePatterns) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := make([]*Pattern, 0, len(d.patterns))
	for _, p := range d.patterns {
		if p.UserID == replace.UserID && p.AgentType == replace.AgentType {
			continue
		}
		kept = append(kept, p)
	}
	for _, p := range replace.Patterns {
		p.ID = d.nextSeq()
		p.UserID = replace.UserID
		p.AgentType = replace.AgentType
		if p.ComputedTs == 0 {
			p.ComputedTs = time.Now().Unix()
		}
		kept = append(kept, p)
	}
	d.patterns = kept
	return nil
}

func (d *MockDriver) ListPatterns(_ context.Context, find *FindPattern) ([]*Pattern, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := make([]*Pattern, 0)
	for _, p := range d.patterns {
		if find.UserID != nil && p.UserID != *find.UserID {
			continue
		}
		if find.AgentType != nil && p.AgentType != *find.AgentType {
			continue
		}
		if find.Trigger != nil && p.Trigger != *find.Trigger {
			continue
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].SampleSize > list[j].SampleSize
	})
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

// SubscriberMemory

func (d *MockDriver) CreateSubscriberMemory(_ context.Context, create *SubscriberMemory) (*SubscriberMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = d.nextSeq()
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = now
	}
	d.memories = append(d.memories, create)
	return create, nil
}

func (d *MockDriver) UpsertSubscriberPreference(ctx context.Context, upsert *SubscriberMemory) (*SubscriberMemory, error) {
	d.mu.Lock()
	upsert.MemoryType = MemoryTypePreference
	for _, m := range d.memories {
		if m.UserID == upsert.UserID && m.SubscriberID == upsert.SubscriberID &&
			m.MemoryType == MemoryTypePreference && m.Key == upsert.Key {
			m.Content = upsert.Content
			m.UpdatedTs = time.Now().Unix()
			d.mu.Unlock()
			return m, nil
		}
	}
	d.mu.Unlock()
	return d.CreateSubscriberMemory(ctx, upsert)
}

func (d *MockDriver) ListSubscriberMemories(_ context.Context, find *FindSubscriberMemory) ([]*SubscriberMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := make([]*SubscriberMemory, 0)
	for _, m := range d.memories {
		if find.UserID != nil && m.UserID != *find.UserID {
			continue
		}
		if find.SubscriberID != nil && m.SubscriberID != *find.SubscriberID {
			continue
		}
		if find.MemoryType != nil && m.MemoryType != *find.MemoryType {
			continue
		}
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedTs != list[j].UpdatedTs {
			return list[i].UpdatedTs > list[j].UpdatedTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

// SystemSetting

func (d *MockDriver) UpsertSystemSetting(_ context.Context, upsert *SystemSetting) (*SystemSetting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings[upsert.Key] = upsert.Value
	return upsert, nil
}

func (d *MockDriver) GetSystemSetting(_ context.Context, key string) (*SystemSetting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	value, ok := d.settings[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &SystemSetting{Key: key, Value: value}, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Ensure MockDriver implements Driver.
var _ Driver = (*MockDriver)(nil)

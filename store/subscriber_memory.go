package store

// MemoryType classifies a stored subscriber memory.
type MemoryType string

const (
	// MemoryTypeFact is append-only subscriber history ("on Pro plan since March").
	MemoryTypeFact MemoryType = "fact"
	// MemoryTypeInteraction is an append-only interaction record.
	MemoryTypeInteraction MemoryType = "interaction"
	// MemoryTypePreference is upsertable by key.
	MemoryTypePreference MemoryType = "preference"
	// MemoryTypePattern is a global (not subscriber-scoped) observation.
	MemoryTypePattern MemoryType = "pattern"
)

// SubscriberMemory is one typed, timestamped memory row.
type SubscriberMemory struct {
	ID           int64
	UserID       int32
	SubscriberID string // empty for global pattern memories
	MemoryType   MemoryType
	Key          string // preference upsert key; empty otherwise
	Content      string
	CreatedTs    int64
	UpdatedTs    int64
}

// FindSubscriberMemory specifies the conditions for finding memories.
type FindSubscriberMemory struct {
	UserID       *int32
	SubscriberID *string
	MemoryType   *MemoryType
	Limit        int
	Offset       int
}

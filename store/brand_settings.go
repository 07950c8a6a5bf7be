package store

// BrandSettings shape the tone and sender identity of generated content.
// Read-only input to the engine; mutated by the surrounding application.
type BrandSettings struct {
	ID          int32
	UserID      int32
	BrandName   string
	Tone        string // e.g. "friendly", "formal", "playful"
	SenderName  string
	SenderEmail string
	Signature   string
	UpdatedTs   int64
}

// DefaultBrandSettings returns neutral settings for users who have not
// configured a brand yet.
func DefaultBrandSettings(userID int32) *BrandSettings {
	return &BrandSettings{
		UserID: userID,
		Tone:   "friendly",
	}
}

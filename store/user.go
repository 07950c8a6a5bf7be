package store

// User represents a business owner account. The engine only needs identity and
// the credential hash for the approval-boundary check; profile data lives in
// the surrounding dashboard application.
type User struct {
	ID              int32
	Email           string
	DisplayName     string
	AccessTokenHash string // bcrypt hash of the API access token
	CreatedTs       int64
}

// FindUser specifies the conditions for finding users.
type FindUser struct {
	ID    *int32
	Email *string
}

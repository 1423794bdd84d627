package domain

import "github.com/google/uuid"

// User belongs to exactly one account. ExternalID is the id of the user
// in the caller's own system, when supplied.
type User struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"accountId"`
	ExternalID *string   `json:"externalId,omitempty"`
	Metadata   Metadata  `json:"metadata,omitempty"`
}

// NewUser creates a user in the given account.
func NewUser(accountID uuid.UUID) *User {
	return &User{ID: uuid.New(), AccountID: accountID}
}

// UserIntegration stores a user's OAuth tokens for an external provider.
// Tokens are encrypted at rest by the store.
type UserIntegration struct {
	UserID       uuid.UUID           `json:"userId"`
	AccountID    uuid.UUID           `json:"accountId"`
	Provider     IntegrationProvider `json:"provider"`
	AccessToken  string              `json:"-"`
	RefreshToken string              `json:"-"`
	TokenExpires int64               `json:"-"`
}

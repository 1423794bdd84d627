package domain

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// IntegrationProvider identifies an external calendar provider.
type IntegrationProvider string

const (
	ProviderGoogle  IntegrationProvider = "google"
	ProviderOutlook IntegrationProvider = "outlook"
)

// Valid reports whether the provider is supported.
func (p IntegrationProvider) Valid() bool {
	return p == ProviderGoogle || p == ProviderOutlook
}

// AccountIntegration holds the OAuth client an account registered for a
// provider.
type AccountIntegration struct {
	AccountID    uuid.UUID           `json:"accountId"`
	Provider     IntegrationProvider `json:"provider"`
	ClientID     string              `json:"clientId"`
	ClientSecret string              `json:"-"`
	RedirectURI  string              `json:"redirectUri"`
}

// AccountWebhookSettings is the webhook endpoint reminders are delivered
// to, together with the key the receiver uses to verify the sender.
type AccountWebhookSettings struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Account is the root tenancy boundary. Every other entity carries the
// id of the account that owns it.
type Account struct {
	ID           uuid.UUID               `json:"id"`
	SecretAPIKey string                  `json:"secretApiKey"`
	PublicJWTKey *string                 `json:"publicJwtKey,omitempty"`
	Webhook      *AccountWebhookSettings `json:"webhook,omitempty"`
}

// NewAccount creates an account with a fresh secret api key.
func NewAccount() *Account {
	return &Account{
		ID:           uuid.New(),
		SecretAPIKey: GenerateAPIKey(),
	}
}

// GenerateAPIKey creates an opaque account secret.
func GenerateAPIKey() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "sk_" + hex.EncodeToString(buf)
}

// SetWebhook sets the webhook url, generating a verification key on
// first use.
func (a *Account) SetWebhook(url string) {
	key := ""
	if a.Webhook != nil {
		key = a.Webhook.Key
	}
	if key == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		key = hex.EncodeToString(buf)
	}
	a.Webhook = &AccountWebhookSettings{URL: url, Key: key}
}

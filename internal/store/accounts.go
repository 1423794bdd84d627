package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nittei/nittei/internal/domain"
)

var (
	ErrIntegrationExists  = errors.New("account already has an integration for this provider")
	ErrBusyCalendarExists = errors.New("calendar already registered as busy on service user")
)

// AccountStore provides PostgreSQL-backed account storage.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new store.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Insert persists a new account.
func (s *AccountStore) Insert(ctx context.Context, account *domain.Account) error {
	var webhookURL, webhookKey *string
	if account.Webhook != nil {
		webhookURL = &account.Webhook.URL
		webhookKey = &account.Webhook.Key
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, secret_api_key, public_jwt_key, webhook_url, webhook_key)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.SecretAPIKey, account.PublicJWTKey, webhookURL, webhookKey)
	return err
}

// Save updates an existing account.
func (s *AccountStore) Save(ctx context.Context, account *domain.Account) error {
	var webhookURL, webhookKey *string
	if account.Webhook != nil {
		webhookURL = &account.Webhook.URL
		webhookKey = &account.Webhook.Key
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET secret_api_key = $2, public_jwt_key = $3, webhook_url = $4, webhook_key = $5
		WHERE id = $1
	`, account.ID, account.SecretAPIKey, account.PublicJWTKey, webhookURL, webhookKey)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Find retrieves an account by id.
func (s *AccountStore) Find(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.findBy(ctx, "id = $1", id)
}

// FindByAPIKey retrieves the account owning a secret api key.
func (s *AccountStore) FindByAPIKey(ctx context.Context, apiKey string) (*domain.Account, error) {
	return s.findBy(ctx, "secret_api_key = $1", apiKey)
}

func (s *AccountStore) findBy(ctx context.Context, predicate string, arg interface{}) (*domain.Account, error) {
	account := &domain.Account{}
	var webhookURL, webhookKey *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, secret_api_key, public_jwt_key, webhook_url, webhook_key
		FROM accounts
		WHERE `+predicate, arg).Scan(
		&account.ID, &account.SecretAPIKey, &account.PublicJWTKey, &webhookURL, &webhookKey,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if webhookURL != nil && webhookKey != nil {
		account.Webhook = &domain.AccountWebhookSettings{URL: *webhookURL, Key: *webhookKey}
	}
	return account, nil
}

// AddIntegration registers an OAuth client for a provider. At most one
// integration per provider is allowed.
func (s *AccountStore) AddIntegration(ctx context.Context, integration *domain.AccountIntegration) error {
	result, err := s.pool.Exec(ctx, `
		INSERT INTO account_integrations (account_id, provider, client_id, client_secret, redirect_uri)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, provider) DO NOTHING
	`, integration.AccountID, integration.Provider, integration.ClientID,
		integration.ClientSecret, integration.RedirectURI)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrIntegrationExists
	}
	return nil
}

// RemoveIntegration deletes the provider integration of an account.
func (s *AccountStore) RemoveIntegration(ctx context.Context, accountID uuid.UUID, provider domain.IntegrationProvider) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM account_integrations WHERE account_id = $1 AND provider = $2
	`, accountID, provider)
	return err
}

// FindIntegrations lists the provider integrations of an account.
func (s *AccountStore) FindIntegrations(ctx context.Context, accountID uuid.UUID) ([]*domain.AccountIntegration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, provider, client_id, client_secret, redirect_uri
		FROM account_integrations
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var integrations []*domain.AccountIntegration
	for rows.Next() {
		integration := &domain.AccountIntegration{}
		if err := rows.Scan(
			&integration.AccountID, &integration.Provider, &integration.ClientID,
			&integration.ClientSecret, &integration.RedirectURI,
		); err != nil {
			return nil, err
		}
		integrations = append(integrations, integration)
	}
	return integrations, rows.Err()
}

package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nittei/nittei/internal/crypto"
	"github.com/nittei/nittei/internal/domain"
)

// UserStore provides PostgreSQL-backed user storage. Provider OAuth
// tokens are encrypted at rest when an encryption service is configured.
type UserStore struct {
	pool   *pgxpool.Pool
	crypto *crypto.EncryptionService
}

// NewUserStore creates a new store.
func NewUserStore(pool *pgxpool.Pool, cryptoService *crypto.EncryptionService) *UserStore {
	return &UserStore{pool: pool, crypto: cryptoService}
}

// Insert persists a new user.
func (s *UserStore) Insert(ctx context.Context, user *domain.User) error {
	metadata, err := json.Marshal(user.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, account_id, external_id, metadata)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.AccountID, user.ExternalID, metadata)
	return err
}

// Save updates an existing user.
func (s *UserStore) Save(ctx context.Context, user *domain.User) error {
	metadata, err := json.Marshal(user.Metadata)
	if err != nil {
		return err
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE users SET external_id = $2, metadata = $3
		WHERE id = $1
	`, user.ID, user.ExternalID, metadata)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user. Owned calendars, schedules and events cascade.
func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Find retrieves a user by id.
func (s *UserStore) Find(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, account_id, external_id, metadata FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

// FindByExternalID retrieves an account's user by the caller-supplied
// external id.
func (s *UserStore) FindByExternalID(ctx context.Context, accountID uuid.UUID, externalID string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, account_id, external_id, metadata
		FROM users
		WHERE account_id = $1 AND external_id = $2
	`, accountID, externalID)
	return scanUser(row)
}

// FindMany retrieves the users with the given ids.
func (s *UserStore) FindMany(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, external_id, metadata FROM users WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// FindByMetadata lists an account's users whose metadata contains the
// given key/values.
func (s *UserStore) FindByMetadata(ctx context.Context, query MetadataFindQuery) ([]*domain.User, error) {
	metadata, err := json.Marshal(query.Metadata)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, external_id, metadata
		FROM users
		WHERE account_id = $1 AND metadata @> $2
		ORDER BY id
		OFFSET $3 LIMIT $4
	`, query.AccountID, metadata, query.Skip, query.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	var metadata []byte
	err := row.Scan(&user.ID, &user.AccountID, &user.ExternalID, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &user.Metadata); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// SaveIntegration upserts a user's provider tokens, encrypting them when
// an encryption service is configured.
func (s *UserStore) SaveIntegration(ctx context.Context, integration *domain.UserIntegration) error {
	accessToken, err := s.seal(integration.AccessToken)
	if err != nil {
		return err
	}
	refreshToken, err := s.seal(integration.RefreshToken)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_integrations (user_id, account_id, provider, access_token, refresh_token, token_expires)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires = EXCLUDED.token_expires
	`, integration.UserID, integration.AccountID, integration.Provider,
		accessToken, refreshToken, integration.TokenExpires)
	return err
}

// FindIntegration retrieves a user's tokens for a provider.
func (s *UserStore) FindIntegration(ctx context.Context, userID uuid.UUID, provider domain.IntegrationProvider) (*domain.UserIntegration, error) {
	integration := &domain.UserIntegration{}
	var accessToken, refreshToken string
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, account_id, provider, access_token, refresh_token, token_expires
		FROM user_integrations
		WHERE user_id = $1 AND provider = $2
	`, userID, provider).Scan(
		&integration.UserID, &integration.AccountID, &integration.Provider,
		&accessToken, &refreshToken, &integration.TokenExpires,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if integration.AccessToken, err = s.open(accessToken); err != nil {
		return nil, err
	}
	if integration.RefreshToken, err = s.open(refreshToken); err != nil {
		return nil, err
	}
	return integration, nil
}

// RemoveIntegration deletes a user's tokens for a provider.
func (s *UserStore) RemoveIntegration(ctx context.Context, userID uuid.UUID, provider domain.IntegrationProvider) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM user_integrations WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	return err
}

func (s *UserStore) seal(plaintext string) (string, error) {
	if s.crypto == nil {
		return plaintext, nil
	}
	sealed, err := s.crypto.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *UserStore) open(stored string) (string, error) {
	if s.crypto == nil {
		return stored, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	plaintext, err := s.crypto.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

package google

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nittei/nittei/internal/domain"
)

// IntegrationStore resolves and refreshes stored provider tokens.
type IntegrationStore interface {
	FindIntegration(ctx context.Context, userID uuid.UUID, provider domain.IntegrationProvider) (*domain.UserIntegration, error)
	SaveIntegration(ctx context.Context, integration *domain.UserIntegration) error
}

// BusySource adapts the provider client plus stored user tokens into the
// external busy-source contract the booking solver consumes.
type BusySource struct {
	client       CalendarClient
	integrations IntegrationStore
}

// NewBusySource creates the adapter.
func NewBusySource(client CalendarClient, integrations IntegrationStore) *BusySource {
	return &BusySource{client: client, integrations: integrations}
}

// FetchBusy returns the busy intervals of the user's external provider
// calendars, refreshing the stored tokens when they are about to
// expire.
func (s *BusySource) FetchBusy(ctx context.Context, userID uuid.UUID, provider domain.BusyCalendarProvider, calendarIDs []string, tspan domain.TimeSpan) ([]domain.EventInstance, error) {
	if provider != domain.BusyCalendarGoogle {
		// only the google adapter is wired; other providers contribute
		// nothing
		return nil, nil
	}

	integration, err := s.integrations.FindIntegration(ctx, userID, domain.ProviderGoogle)
	if err != nil {
		return nil, fmt.Errorf("no google integration for user %s: %w", userID, err)
	}

	creds := &Credentials{
		AccessToken:  integration.AccessToken,
		RefreshToken: integration.RefreshToken,
		Expiry:       time.UnixMilli(integration.TokenExpires).UTC(),
	}
	if time.Now().After(creds.Expiry.Add(-5 * time.Minute)) {
		refreshed, err := s.client.RefreshToken(ctx, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh google token: %w", err)
		}
		creds = refreshed
		integration.AccessToken = refreshed.AccessToken
		if refreshed.RefreshToken != "" {
			integration.RefreshToken = refreshed.RefreshToken
		}
		integration.TokenExpires = refreshed.Expiry.UnixMilli()
		if err := s.integrations.SaveIntegration(ctx, integration); err != nil {
			return nil, err
		}
	}

	return s.client.FreeBusy(ctx, creds, calendarIDs, tspan)
}

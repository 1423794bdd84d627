// Package google adapts the Google Calendar API as an external busy
// source and OAuth provider.
package google

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/nittei/nittei/internal/domain"
)

// Credentials are a user's OAuth tokens for the provider.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// CalendarInfo describes one provider calendar.
type CalendarInfo struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
}

// CalendarClient is the contract the scheduling core consumes from the
// external provider: an OAuth code exchange, a calendar listing and a
// free/busy query. External busy sources contribute plain busy
// intervals; the core never expands provider events itself.
type CalendarClient interface {
	// GetAuthURL returns the OAuth consent URL
	GetAuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, code string) (*Credentials, error)

	// RefreshToken refreshes an expired token
	RefreshToken(ctx context.Context, creds *Credentials) (*Credentials, error)

	// ListCalendars returns the calendars the user can read
	ListCalendars(ctx context.Context, creds *Credentials) ([]*CalendarInfo, error)

	// FreeBusy returns the busy intervals of the given provider
	// calendars inside the window
	FreeBusy(ctx context.Context, creds *Credentials, calendarIDs []string, tspan domain.TimeSpan) ([]domain.EventInstance, error)
}

// Ensure CalendarService implements CalendarClient
var _ CalendarClient = (*CalendarService)(nil)

// CalendarService handles Google Calendar API interactions
type CalendarService struct {
	config *oauth2.Config
}

// NewCalendarService creates a new Google Calendar service
func NewCalendarService(clientID, clientSecret, redirectURL string) *CalendarService {
	return &CalendarService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     googleoauth.Endpoint,
		},
	}
}

// GetAuthURL returns the OAuth consent URL
func (s *CalendarService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges an authorization code for tokens
func (s *CalendarService) ExchangeCode(ctx context.Context, code string) (*Credentials, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// RefreshToken refreshes an expired token
func (s *CalendarService) RefreshToken(ctx context.Context, creds *Credentials) (*Credentials, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	}

	src := s.config.TokenSource(ctx, token)
	newToken, err := src.Token()
	if err != nil {
		return nil, err
	}
	return &Credentials{
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		Expiry:       newToken.Expiry,
	}, nil
}

// ListCalendars returns the calendars the user can read.
func (s *CalendarService) ListCalendars(ctx context.Context, creds *Credentials) ([]*CalendarInfo, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	}
	service, err := calendar.NewService(ctx, option.WithTokenSource(s.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	var calendars []*CalendarInfo
	call := service.CalendarList.List()
	if err := call.Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			calendars = append(calendars, &CalendarInfo{
				ID:      item.Id,
				Summary: item.Summary,
				Primary: item.Primary,
			})
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("calendar list failed: %w", err)
	}
	return calendars, nil
}

// FreeBusy queries the provider's freebusy endpoint for the calendars.
func (s *CalendarService) FreeBusy(ctx context.Context, creds *Credentials, calendarIDs []string, tspan domain.TimeSpan) ([]domain.EventInstance, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	}
	service, err := calendar.NewService(ctx, option.WithTokenSource(s.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	items := make([]*calendar.FreeBusyRequestItem, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		items = append(items, &calendar.FreeBusyRequestItem{Id: id})
	}

	response, err := service.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: tspan.Start.Format(time.RFC3339),
		TimeMax: tspan.End.Format(time.RFC3339),
		Items:   items,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	var busy []domain.EventInstance
	for _, cal := range response.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				continue
			}
			busy = append(busy, domain.EventInstance{
				StartTime: start.UTC(),
				EndTime:   end.UTC(),
				Busy:      true,
			})
		}
	}
	return busy, nil
}

package google

import (
	"context"
	"time"

	"github.com/nittei/nittei/internal/domain"
)

// MockCalendarService implements CalendarClient for testing
type MockCalendarService struct {
	// BusyByCalendar maps a provider calendar id to the busy intervals
	// the mock reports for it
	BusyByCalendar map[string][]domain.EventInstance
	// FreeBusyErr, when set, is returned from FreeBusy
	FreeBusyErr error
	// FreeBusyCalls records the calendar ids of each query
	FreeBusyCalls [][]string
}

// Ensure MockCalendarService implements CalendarClient
var _ CalendarClient = (*MockCalendarService)(nil)

// NewMockCalendarService creates a mock with no busy intervals.
func NewMockCalendarService() *MockCalendarService {
	return &MockCalendarService{BusyByCalendar: make(map[string][]domain.EventInstance)}
}

// GetAuthURL returns a fake consent URL.
func (m *MockCalendarService) GetAuthURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

// ExchangeCode returns fake tokens derived from the code.
func (m *MockCalendarService) ExchangeCode(ctx context.Context, code string) (*Credentials, error) {
	return &Credentials{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

// RefreshToken extends the expiry of the given credentials.
func (m *MockCalendarService) RefreshToken(ctx context.Context, creds *Credentials) (*Credentials, error) {
	refreshed := *creds
	refreshed.Expiry = time.Now().Add(time.Hour)
	return &refreshed, nil
}

// ListCalendars returns one provider calendar per configured busy
// calendar id.
func (m *MockCalendarService) ListCalendars(ctx context.Context, creds *Credentials) ([]*CalendarInfo, error) {
	var calendars []*CalendarInfo
	for id := range m.BusyByCalendar {
		calendars = append(calendars, &CalendarInfo{ID: id, Summary: id})
	}
	return calendars, nil
}

// FreeBusy returns the configured busy intervals for the calendars.
func (m *MockCalendarService) FreeBusy(ctx context.Context, creds *Credentials, calendarIDs []string, tspan domain.TimeSpan) ([]domain.EventInstance, error) {
	m.FreeBusyCalls = append(m.FreeBusyCalls, calendarIDs)
	if m.FreeBusyErr != nil {
		return nil, m.FreeBusyErr
	}
	var busy []domain.EventInstance
	for _, id := range calendarIDs {
		busy = append(busy, m.BusyByCalendar[id]...)
	}
	return busy, nil
}

package freebusy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/domain"
)

// mockCalendarReader implements CalendarReader for testing
type mockCalendarReader struct {
	calendars []*domain.Calendar
}

func (m *mockCalendarReader) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Calendar, error) {
	var result []*domain.Calendar
	for _, calendar := range m.calendars {
		if calendar.UserID == userID {
			result = append(result, calendar)
		}
	}
	return result, nil
}

// mockEventReader implements EventReader for testing
type mockEventReader struct {
	events []*domain.CalendarEvent
}

func (m *mockEventReader) FindByCalendar(ctx context.Context, calendarID uuid.UUID, tspan *domain.TimeSpan) ([]*domain.CalendarEvent, error) {
	var result []*domain.CalendarEvent
	for _, event := range m.events {
		if event.CalendarID == calendarID {
			result = append(result, event)
		}
	}
	return result, nil
}

func newTestService(calendars *mockCalendarReader, events *mockEventReader) *Service {
	return NewService(calendars, events, 100*24*time.Hour, 5, zap.NewNop())
}

func TestGetUserFreeBusyMergesRecurringBusyEvents(t *testing.T) {
	userID := uuid.New()
	calendar := domain.NewCalendar(userID, uuid.New())
	calendars := &mockCalendarReader{calendars: []*domain.Calendar{calendar}}

	epoch := time.Unix(0, 0).UTC()
	newBusyEvent := func(startMillis, durationMillis int64) *domain.CalendarEvent {
		return &domain.CalendarEvent{
			ID:         uuid.New(),
			UserID:     userID,
			CalendarID: calendar.ID,
			StartTime:  epoch.Add(time.Duration(startMillis) * time.Millisecond),
			Duration:   durationMillis,
			Busy:       true,
			Status:     domain.StatusConfirmed,
			Recurrence: &domain.RecurrenceRule{Freq: domain.FreqDaily, Interval: 1},
		}
	}
	events := &mockEventReader{events: []*domain.CalendarEvent{
		// day two, 00:00-01:00 and 00:30-01:00 overlap into one block
		newBusyEvent(86_400_000, 3_600_000),
		newBusyEvent(88_200_000, 1_800_000),
		// day two, 04:00-05:00
		newBusyEvent(100_800_000, 3_600_000),
	}}

	service := newTestService(calendars, events)
	// the window ends late on day two, before the next day's
	// occurrences begin
	tspan := domain.TimeSpan{
		Start: epoch.Add(86_400_000 * time.Millisecond),
		End:   epoch.Add((2*86_400_000 - 3_600_000) * time.Millisecond),
	}
	busy, err := service.GetUserFreeBusy(context.Background(), Request{UserID: userID, TimeSpan: tspan})
	require.NoError(t, err)

	require.Equal(t, 2, busy.Len())
	first, _ := busy.Get(0)
	assert.Equal(t, int64(86_400_000), first.StartTime.UnixMilli())
	assert.Equal(t, int64(90_000_000), first.EndTime.UnixMilli())
	second, _ := busy.Get(1)
	assert.Equal(t, int64(100_800_000), second.StartTime.UnixMilli())
	assert.Equal(t, int64(104_400_000), second.EndTime.UnixMilli())
}

func TestGetUserFreeBusyIgnoresNonBusyEvents(t *testing.T) {
	userID := uuid.New()
	calendar := domain.NewCalendar(userID, uuid.New())
	calendars := &mockCalendarReader{calendars: []*domain.Calendar{calendar}}

	start := time.Date(2022, 4, 1, 9, 0, 0, 0, time.UTC)
	events := &mockEventReader{events: []*domain.CalendarEvent{
		{
			ID: uuid.New(), UserID: userID, CalendarID: calendar.ID,
			StartTime: start, Duration: 3_600_000, Busy: false,
		},
		{
			ID: uuid.New(), UserID: userID, CalendarID: calendar.ID,
			StartTime: start.Add(2 * time.Hour), Duration: 3_600_000, Busy: true,
		},
	}}

	service := newTestService(calendars, events)
	tspan := domain.TimeSpan{Start: start.Add(-time.Hour), End: start.Add(12 * time.Hour)}
	busy, err := service.GetUserFreeBusy(context.Background(), Request{UserID: userID, TimeSpan: tspan})
	require.NoError(t, err)

	require.Equal(t, 1, busy.Len())
	only, _ := busy.Get(0)
	assert.Equal(t, start.Add(2*time.Hour), only.StartTime)
}

func TestGetUserFreeBusyCalendarSubset(t *testing.T) {
	userID := uuid.New()
	included := domain.NewCalendar(userID, uuid.New())
	excluded := domain.NewCalendar(userID, uuid.New())
	calendars := &mockCalendarReader{calendars: []*domain.Calendar{included, excluded}}

	start := time.Date(2022, 4, 1, 9, 0, 0, 0, time.UTC)
	events := &mockEventReader{events: []*domain.CalendarEvent{
		{
			ID: uuid.New(), UserID: userID, CalendarID: included.ID,
			StartTime: start, Duration: 3_600_000, Busy: true,
		},
		{
			ID: uuid.New(), UserID: userID, CalendarID: excluded.ID,
			StartTime: start.Add(4 * time.Hour), Duration: 3_600_000, Busy: true,
		},
	}}

	service := newTestService(calendars, events)
	tspan := domain.TimeSpan{Start: start.Add(-time.Hour), End: start.Add(12 * time.Hour)}
	busy, err := service.GetUserFreeBusy(context.Background(), Request{
		UserID:      userID,
		CalendarIDs: []uuid.UUID{included.ID},
		TimeSpan:    tspan,
	})
	require.NoError(t, err)

	require.Equal(t, 1, busy.Len())
	only, _ := busy.Get(0)
	assert.Equal(t, start, only.StartTime)
}

func TestGetUserFreeBusyRejectsOversizedWindow(t *testing.T) {
	service := newTestService(&mockCalendarReader{}, &mockEventReader{})
	tspan := domain.TimeSpan{
		Start: time.Unix(0, 0).UTC(),
		End:   time.Unix(0, 0).UTC().AddDate(1, 0, 0),
	}
	_, err := service.GetUserFreeBusy(context.Background(), Request{UserID: uuid.New(), TimeSpan: tspan})
	assert.ErrorIs(t, err, ErrWindowTooLarge)
}

func TestGetMultipleUsersFreeBusy(t *testing.T) {
	accountID := uuid.New()
	start := time.Date(2022, 4, 4, 8, 0, 0, 0, time.UTC)

	var userIDs []uuid.UUID
	calendars := &mockCalendarReader{}
	events := &mockEventReader{}
	// more users than one fan-out chunk
	for i := 0; i < 12; i++ {
		userID := uuid.New()
		userIDs = append(userIDs, userID)
		calendar := domain.NewCalendar(userID, accountID)
		calendars.calendars = append(calendars.calendars, calendar)
		events.events = append(events.events, &domain.CalendarEvent{
			ID: uuid.New(), UserID: userID, CalendarID: calendar.ID,
			StartTime: start.Add(time.Duration(i) * time.Minute),
			Duration:  1_800_000,
			Busy:      true,
		})
	}

	service := newTestService(calendars, events)
	tspan := domain.TimeSpan{Start: start.Add(-time.Hour), End: start.Add(10 * time.Hour)}
	result, err := service.GetMultipleUsersFreeBusy(context.Background(), userIDs, tspan)
	require.NoError(t, err)

	require.Len(t, result, 12)
	for i, userID := range userIDs {
		busy := result[userID]
		require.Len(t, busy, 1, "user %d", i)
		assert.Equal(t, start.Add(time.Duration(i)*time.Minute), busy[0].StartTime)
	}
}

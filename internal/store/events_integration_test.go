//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/store"
)

// TestFindByCalendarTimespanPredicate exercises the window predicate:
// non-recurring events intersect the window half-open, while the
// recurring branch is open on its left boundary and keyed on
// recurring_until.
func TestFindByCalendarTimespanPredicate(t *testing.T) {
	db := testDB(t)
	tenant := newTestTenant(t, db.Pool)
	events := store.NewEventStore(db.Pool)
	ctx := context.Background()

	base := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	tspan := domain.TimeSpan{Start: base, End: base.Add(24 * time.Hour)}
	hour := int64(time.Hour / time.Millisecond)

	plain := func(start time.Time) *domain.CalendarEvent {
		event := &domain.CalendarEvent{Busy: true}
		event.SetStartTime(start)
		event.SetDuration(hour)
		return event
	}
	recurring := func(start time.Time, recurringUntil *time.Time) *domain.CalendarEvent {
		event := plain(start)
		event.Recurrence = &domain.RecurrenceRule{Freq: domain.FreqDaily, Interval: 1}
		event.RecurringUntil = recurringUntil
		return event
	}

	inside := tenant.insertEvent(t, db.Pool, plain(base.Add(2*time.Hour)))
	// ends exactly at the window start: excluded half-open
	endsAtStart := tenant.insertEvent(t, db.Pool, plain(base.Add(-time.Hour)))
	// starts exactly at the window end: excluded half-open
	startsAtEnd := tenant.insertEvent(t, db.Pool, plain(tspan.End))
	// straddles the window start: included
	straddling := tenant.insertEvent(t, db.Pool, plain(base.Add(-30*time.Minute)))

	unbounded := tenant.insertEvent(t, db.Pool, recurring(base.Add(-48*time.Hour), nil))
	// recurring_until exactly at the window start: the recurring branch
	// is open on the left, so this one is excluded
	untilAtStart := tenant.insertEvent(t, db.Pool, recurring(base.Add(-72*time.Hour), &base))
	pastStart := base.Add(time.Minute)
	untilPastStart := tenant.insertEvent(t, db.Pool, recurring(base.Add(-72*time.Hour), &pastStart))
	// series starting after the window end: excluded
	futureSeries := tenant.insertEvent(t, db.Pool, recurring(tspan.End.Add(time.Hour), nil))

	found, err := events.FindByCalendar(ctx, tenant.Calendar.ID, &tspan)
	require.NoError(t, err)

	foundIDs := make(map[uuid.UUID]bool, len(found))
	for _, event := range found {
		foundIDs[event.ID] = true
	}
	assert.True(t, foundIDs[inside.ID], "event inside the window")
	assert.True(t, foundIDs[straddling.ID], "event straddling the window start")
	assert.True(t, foundIDs[unbounded.ID], "unbounded recurrence")
	assert.True(t, foundIDs[untilPastStart.ID], "recurrence active past the window start")
	assert.False(t, foundIDs[endsAtStart.ID], "event ending at the window start")
	assert.False(t, foundIDs[startsAtEnd.ID], "event starting at the window end")
	assert.False(t, foundIDs[untilAtStart.ID], "recurrence ending exactly at the window start")
	assert.False(t, foundIDs[futureSeries.ID], "series starting after the window")
}

// TestFindEventsForUsersForTimespanFilters exercises the status and busy
// filters of the users-timespan queries.
func TestFindEventsForUsersForTimespanFilters(t *testing.T) {
	db := testDB(t)
	tenant := newTestTenant(t, db.Pool)
	events := store.NewEventStore(db.Pool)
	ctx := context.Background()

	base := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	tspan := domain.TimeSpan{Start: base, End: base.Add(24 * time.Hour)}
	hour := int64(time.Hour / time.Millisecond)

	confirmedBusy := &domain.CalendarEvent{Busy: true, Status: domain.StatusConfirmed}
	confirmedBusy.SetStartTime(base.Add(time.Hour))
	confirmedBusy.SetDuration(hour)
	tenant.insertEvent(t, db.Pool, confirmedBusy)

	tentativeBusy := &domain.CalendarEvent{Busy: true, Status: domain.StatusTentative}
	tentativeBusy.SetStartTime(base.Add(2 * time.Hour))
	tentativeBusy.SetDuration(hour)
	tenant.insertEvent(t, db.Pool, tentativeBusy)

	confirmedFree := &domain.CalendarEvent{Busy: false, Status: domain.StatusConfirmed}
	confirmedFree.SetStartTime(base.Add(3 * time.Hour))
	confirmedFree.SetDuration(hour)
	tenant.insertEvent(t, db.Pool, confirmedFree)

	userIDs := []uuid.UUID{tenant.User.ID}

	strict, err := events.FindEventsForUsersForTimespan(ctx, userIDs, tspan, false, false)
	require.NoError(t, err)
	require.Len(t, strict, 1)
	assert.Equal(t, confirmedBusy.ID, strict[0].ID)

	all, err := events.FindEventsForUsersForTimespan(ctx, userIDs, tspan, true, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// TestSearchEventsDSL exercises the dynamic filter dispatch of the
// search query builder end to end.
func TestSearchEventsDSL(t *testing.T) {
	db := testDB(t)
	tenant := newTestTenant(t, db.Pool)
	events := store.NewEventStore(db.Pool)
	ctx := context.Background()

	base := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	hour := int64(time.Hour / time.Millisecond)
	externalID := "ext-" + uuid.New().String()[:8]

	tagged := &domain.CalendarEvent{ExternalID: &externalID, Metadata: domain.Metadata{"team": "alpha"}}
	tagged.SetStartTime(base)
	tagged.SetDuration(hour)
	tenant.insertEvent(t, db.Pool, tagged)

	recurring := &domain.CalendarEvent{
		Recurrence: &domain.RecurrenceRule{Freq: domain.FreqDaily, Interval: 1},
	}
	recurring.SetStartTime(base.Add(time.Hour))
	recurring.SetDuration(hour)
	tenant.insertEvent(t, db.Pool, recurring)

	later := &domain.CalendarEvent{}
	later.SetStartTime(base.Add(48 * time.Hour))
	later.SetDuration(hour)
	tenant.insertEvent(t, db.Pool, later)

	t.Run("string eq", func(t *testing.T) {
		found, err := events.Search(ctx, store.SearchEventsParams{
			AccountID: tenant.Account.ID,
			Filters: store.SearchEventsFilters{
				ExternalID: &store.StringQuery{Eq: &externalID},
			},
			Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, tagged.ID, found[0].ID)
	})

	t.Run("recurrence exists", func(t *testing.T) {
		exists := true
		found, err := events.Search(ctx, store.SearchEventsParams{
			AccountID: tenant.Account.ID,
			Filters: store.SearchEventsFilters{
				Recurrence: &store.RecurrenceQuery{Exists: &exists},
			},
			Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, recurring.ID, found[0].ID)
	})

	t.Run("datetime range with sort and limit", func(t *testing.T) {
		lt := base.Add(24 * time.Hour)
		found, err := events.Search(ctx, store.SearchEventsParams{
			AccountID: tenant.Account.ID,
			UserID:    &tenant.User.ID,
			Filters: store.SearchEventsFilters{
				StartTime: &store.DateTimeQuery{Gte: &base, Lt: &lt},
			},
			Sort:  store.SortStartTime,
			Desc:  true,
			Limit: 1,
		})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, recurring.ID, found[0].ID)
	})

	t.Run("metadata containment", func(t *testing.T) {
		found, err := events.Search(ctx, store.SearchEventsParams{
			AccountID: tenant.Account.ID,
			Filters: store.SearchEventsFilters{
				Metadata: domain.Metadata{"team": "alpha"},
			},
			Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, tagged.ID, found[0].ID)
	})
}

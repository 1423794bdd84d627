package reminder

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

// mockEventReader implements EventReader for testing
type mockEventReader struct {
	events []*domain.CalendarEvent
}

func (m *mockEventReader) FindMany(ctx context.Context, ids []uuid.UUID) ([]*domain.CalendarEvent, error) {
	var result []*domain.CalendarEvent
	for _, event := range m.events {
		for _, id := range ids {
			if event.ID == id {
				result = append(result, event)
			}
		}
	}
	return result, nil
}

// mockCalendarReader implements CalendarReader for testing
type mockCalendarReader struct {
	calendars []*domain.Calendar
}

func (m *mockCalendarReader) Find(ctx context.Context, id uuid.UUID) (*domain.Calendar, error) {
	for _, calendar := range m.calendars {
		if calendar.ID == id {
			return calendar, nil
		}
	}
	return nil, ErrCalendarNotFound
}

// mockReminderRepo implements ReminderRepo for testing
type mockReminderRepo struct {
	versions map[uuid.UUID]int64
	rows     []*domain.Reminder
	deleted  []uuid.UUID
}

func newMockReminderRepo() *mockReminderRepo {
	return &mockReminderRepo{versions: make(map[uuid.UUID]int64)}
}

func (m *mockReminderRepo) InitVersion(ctx context.Context, eventID uuid.UUID) (int64, error) {
	m.versions[eventID]++
	return m.versions[eventID], nil
}

func (m *mockReminderRepo) IncVersion(ctx context.Context, eventID uuid.UUID) (int64, error) {
	return m.InitVersion(ctx, eventID)
}

func (m *mockReminderRepo) BulkInsert(ctx context.Context, reminders []*domain.Reminder) error {
	m.rows = append(m.rows, reminders...)
	return nil
}

func (m *mockReminderRepo) DeleteAllBefore(ctx context.Context, before time.Time) ([]*domain.Reminder, error) {
	var due, kept []*domain.Reminder
	for _, row := range m.rows {
		if !row.RemindAt.After(before) && row.Version == m.versions[row.EventID] {
			due = append(due, row)
		} else if row.RemindAt.After(before) {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return due, nil
}

func (m *mockReminderRepo) DeleteByEvent(ctx context.Context, eventID uuid.UUID) error {
	m.deleted = append(m.deleted, eventID)
	var kept []*domain.Reminder
	for _, row := range m.rows {
		if row.EventID != eventID {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}

// currentRows returns rows carrying their event's current version
func (m *mockReminderRepo) currentRows() []*domain.Reminder {
	var current []*domain.Reminder
	for _, row := range m.rows {
		if row.Version == m.versions[row.EventID] {
			current = append(current, row)
		}
	}
	return current
}

// mockJobRepo implements JobRepo for testing
type mockJobRepo struct {
	jobs    []*domain.ReminderExpansionJob
	deleted []uuid.UUID
}

func (m *mockJobRepo) BulkInsert(ctx context.Context, jobs []*domain.ReminderExpansionJob) error {
	m.jobs = append(m.jobs, jobs...)
	return nil
}

func (m *mockJobRepo) DeleteAllBefore(ctx context.Context, before time.Time) ([]*domain.ReminderExpansionJob, error) {
	var due, kept []*domain.ReminderExpansionJob
	for _, job := range m.jobs {
		if !job.Timestamp.After(before) {
			due = append(due, job)
		} else {
			kept = append(kept, job)
		}
	}
	m.jobs = kept
	return due, nil
}

func (m *mockJobRepo) DeleteByEvent(ctx context.Context, eventID uuid.UUID) error {
	m.deleted = append(m.deleted, eventID)
	var kept []*domain.ReminderExpansionJob
	for _, job := range m.jobs {
		if job.EventID != eventID {
			kept = append(kept, job)
		}
	}
	m.jobs = kept
	return nil
}

type reminderFixture struct {
	service   *Service
	events    *mockEventReader
	calendars *mockCalendarReader
	reminders *mockReminderRepo
	jobs      *mockJobRepo
	now       time.Time
}

func newReminderFixture(now time.Time) *reminderFixture {
	f := &reminderFixture{
		events:    &mockEventReader{},
		calendars: &mockCalendarReader{},
		reminders: newMockReminderRepo(),
		jobs:      &mockJobRepo{},
		now:       now,
	}
	f.service = NewService(f.events, f.calendars, f.reminders, f.jobs, zap.NewNop())
	f.service.now = func() time.Time { return f.now }
	return f
}

func (f *reminderFixture) addEvent(event *domain.CalendarEvent) *domain.Calendar {
	calendar := domain.NewCalendar(event.UserID, event.AccountID)
	event.CalendarID = calendar.ID
	f.calendars.calendars = append(f.calendars.calendars, calendar)
	f.events.events = append(f.events.events, event)
	return calendar
}

func TestSyncEventRemindersNonRecurring(t *testing.T) {
	now := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)

	start := now.Add(2 * time.Hour)
	event := &domain.CalendarEvent{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		UserID:    uuid.New(),
		StartTime: start,
		Duration:  3_600_000,
		Reminders: []domain.CalendarEventReminder{{Delta: -10, Identifier: "popup"}},
	}
	f.addEvent(event)

	require.NoError(t, f.service.SyncEventReminders(context.Background(), event, EventCreated))

	rows := f.reminders.currentRows()
	require.Len(t, rows, 1)
	assert.Equal(t, start.Add(-10*time.Minute), rows[0].RemindAt)
	assert.Equal(t, int64(1), rows[0].Version)
	assert.Equal(t, "popup", rows[0].Identifier)
}

func TestSyncEventRemindersUpdateInvalidatesOldRows(t *testing.T) {
	now := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)

	start := now.Add(2 * time.Hour)
	event := &domain.CalendarEvent{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		UserID:    uuid.New(),
		StartTime: start,
		Duration:  3_600_000,
		Reminders: []domain.CalendarEventReminder{{Delta: -10, Identifier: "popup"}},
	}
	f.addEvent(event)
	require.NoError(t, f.service.SyncEventReminders(context.Background(), event, EventCreated))

	// shift the event by 15 minutes and resync
	event.SetStartTime(start.Add(15 * time.Minute))
	require.NoError(t, f.service.SyncEventReminders(context.Background(), event, EventUpdated))

	rows := f.reminders.currentRows()
	require.Len(t, rows, 1)
	assert.Equal(t, start.Add(5*time.Minute), rows[0].RemindAt)
	assert.Equal(t, int64(2), rows[0].Version)

	// the stale version-1 row is still stored but no longer current,
	// and the sweep drops it silently
	due, err := f.reminders.DeleteAllBefore(context.Background(), start)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSyncEventRemindersEmptiedListDeletesRows(t *testing.T) {
	now := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)

	event := &domain.CalendarEvent{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		UserID:    uuid.New(),
		StartTime: now.Add(time.Hour),
		Reminders: []domain.CalendarEventReminder{{Delta: -5, Identifier: "popup"}},
	}
	f.addEvent(event)
	require.NoError(t, f.service.SyncEventReminders(context.Background(), event, EventCreated))
	require.NotEmpty(t, f.reminders.rows)

	event.Reminders = nil
	require.NoError(t, f.service.SyncEventReminders(context.Background(), event, EventUpdated))

	assert.Empty(t, f.reminders.rows)
	assert.Contains(t, f.reminders.deleted, event.ID)
	assert.Contains(t, f.jobs.deleted, event.ID)
}

func TestSyncEventRemindersSkew(t *testing.T) {
	now := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)

	// the reminder would fire 30 seconds from now, inside the skew
	event := &domain.CalendarEvent{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		UserID:    uuid.New(),
		StartTime: now.Add(10*time.Minute + 30*time.Second),
		Reminders: []domain.CalendarEventReminder{{Delta: -10, Identifier: "popup"}},
	}
	f.addEvent(event)

	require.NoError(t, f.service.SyncEventReminders(context.Background(), event, EventCreated))
	assert.Empty(t, f.reminders.rows)
}

func TestSyncEventRemindersRecurringBatches(t *testing.T) {
	now := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)

	event := &domain.CalendarEvent{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		UserID:     uuid.New(),
		StartTime:  now.Add(time.Hour),
		Duration:   1_800_000,
		Recurrence: &domain.RecurrenceRule{Freq: domain.FreqDaily, Interval: 1},
		Reminders:  []domain.CalendarEventReminder{{Delta: -10, Identifier: "popup"}},
	}
	f.addEvent(event)

	require.NoError(t, f.service.SyncEventReminders(context.Background(), event, EventCreated))

	// one reminder per occurrence in the first batch
	rows := f.reminders.currentRows()
	require.Len(t, rows, 100)
	assert.Equal(t, event.StartTime.Add(-10*time.Minute), rows[0].RemindAt)

	// the series continues through an expansion job at the 91st
	// occurrence
	require.Len(t, f.jobs.jobs, 1)
	job := f.jobs.jobs[0]
	assert.Equal(t, event.ID, job.EventID)
	assert.Equal(t, event.StartTime.AddDate(0, 0, 90), job.Timestamp)
	assert.Equal(t, int64(1), job.Version)
}

func TestSyncEventRemindersBoundedSeriesHasNoJob(t *testing.T) {
	now := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)

	count := 5
	event := &domain.CalendarEvent{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		UserID:     uuid.New(),
		StartTime:  now.Add(time.Hour),
		Duration:   1_800_000,
		Recurrence: &domain.RecurrenceRule{Freq: domain.FreqDaily, Interval: 1, Count: &count},
		Reminders:  []domain.CalendarEventReminder{{Delta: -10, Identifier: "popup"}},
	}
	f.addEvent(event)

	require.NoError(t, f.service.SyncEventReminders(context.Background(), event, EventCreated))
	assert.Len(t, f.reminders.currentRows(), 5)
	assert.Empty(t, f.jobs.jobs)
}

func TestProcessExpansionJobs(t *testing.T) {
	now := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)

	event := &domain.CalendarEvent{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		UserID:     uuid.New(),
		StartTime:  now.Add(-24 * time.Hour),
		Duration:   1_800_000,
		Recurrence: &domain.RecurrenceRule{Freq: domain.FreqDaily, Interval: 1},
		Reminders:  []domain.CalendarEventReminder{{Delta: -10, Identifier: "popup"}},
	}
	f.addEvent(event)
	f.jobs.jobs = []*domain.ReminderExpansionJob{{
		EventID:   event.ID,
		Timestamp: now.Add(-time.Minute),
		Version:   1,
	}}

	require.NoError(t, f.service.ProcessExpansionJobs(context.Background()))

	// job consumed, version bumped, a fresh batch materialised
	assert.Empty(t, f.jobs.deleted)
	require.Len(t, f.jobs.jobs, 1, "a follow-up job should be recorded")
	rows := f.reminders.currentRows()
	require.NotEmpty(t, rows)
	assert.Equal(t, int64(1), f.reminders.versions[event.ID])

	t.Run("no due jobs is a no-op", func(t *testing.T) {
		f.jobs.jobs = nil
		require.NoError(t, f.service.ProcessExpansionJobs(context.Background()))
	})
}

func TestCollectDueReminders(t *testing.T) {
	now := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)

	accountA := uuid.New()
	accountB := uuid.New()
	eventA := uuid.New()
	eventB := uuid.New()
	f.reminders.versions[eventA] = 1
	f.reminders.versions[eventB] = 1
	f.reminders.rows = []*domain.Reminder{
		{EventID: eventA, AccountID: accountA, RemindAt: now.Add(10 * time.Second), Version: 1, Identifier: "a1"},
		{EventID: eventA, AccountID: accountA, RemindAt: now.Add(30 * time.Second), Version: 1, Identifier: "a2"},
		{EventID: eventB, AccountID: accountB, RemindAt: now.Add(20 * time.Second), Version: 1, Identifier: "b1"},
		// stale version, must be swept silently
		{EventID: eventA, AccountID: accountA, RemindAt: now.Add(15 * time.Second), Version: 0, Identifier: "stale"},
		// not due yet
		{EventID: eventB, AccountID: accountB, RemindAt: now.Add(10 * time.Minute), Version: 1, Identifier: "later"},
	}

	batches, releaseAt, err := f.service.CollectDueReminders(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), releaseAt)

	require.Len(t, batches, 2)
	byAccount := make(map[uuid.UUID][]*domain.Reminder)
	for _, batch := range batches {
		byAccount[batch.AccountID] = batch.Reminders
	}
	require.Len(t, byAccount[accountA], 2)
	require.Len(t, byAccount[accountB], 1)
	assert.Equal(t, "b1", byAccount[accountB][0].Identifier)

	// only the future row remains
	require.Len(t, f.reminders.rows, 1)
	assert.Equal(t, "later", f.reminders.rows[0].Identifier)
}

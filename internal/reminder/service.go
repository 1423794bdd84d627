// Package reminder materialises upcoming reminder firings for events and
// keeps them in step with event mutations through per-event versions.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/domain"
)

// EventOperation distinguishes create from update triggers.
type EventOperation int

const (
	EventCreated EventOperation = iota
	EventUpdated
)

// occurrenceBatchSize is how many future occurrences are materialised
// per expansion. Longer series continue through expansion jobs.
const occurrenceBatchSize = 100

// expansionJobIndex is the occurrence whose instant the follow-up job is
// scheduled at, leaving a ten-occurrence overlap before the batch runs
// out.
const expansionJobIndex = 90

// materialisationSkew keeps a reminder from being created during the
// very tick that would fire it.
const materialisationSkew = 61 * time.Second

var ErrCalendarNotFound = errors.New("calendar not found for event")

// EventReader loads events for the scheduler.
type EventReader interface {
	FindMany(ctx context.Context, ids []uuid.UUID) ([]*domain.CalendarEvent, error)
}

// CalendarReader loads the parent calendar of an event.
type CalendarReader interface {
	Find(ctx context.Context, id uuid.UUID) (*domain.Calendar, error)
}

// ReminderRepo is the reminder persistence surface.
type ReminderRepo interface {
	InitVersion(ctx context.Context, eventID uuid.UUID) (int64, error)
	IncVersion(ctx context.Context, eventID uuid.UUID) (int64, error)
	BulkInsert(ctx context.Context, reminders []*domain.Reminder) error
	DeleteAllBefore(ctx context.Context, before time.Time) ([]*domain.Reminder, error)
	DeleteByEvent(ctx context.Context, eventID uuid.UUID) error
}

// JobRepo is the expansion-job persistence surface.
type JobRepo interface {
	BulkInsert(ctx context.Context, jobs []*domain.ReminderExpansionJob) error
	DeleteAllBefore(ctx context.Context, before time.Time) ([]*domain.ReminderExpansionJob, error)
	DeleteByEvent(ctx context.Context, eventID uuid.UUID) error
}

// Service synchronises reminder rows with events.
type Service struct {
	events    EventReader
	calendars CalendarReader
	reminders ReminderRepo
	jobs      JobRepo
	logger    *zap.Logger

	// now is swapped in tests
	now func() time.Time
}

// NewService creates a scheduler service.
func NewService(events EventReader, calendars CalendarReader, reminders ReminderRepo, jobs JobRepo, logger *zap.Logger) *Service {
	return &Service{
		events:    events,
		calendars: calendars,
		reminders: reminders,
		jobs:      jobs,
		logger:    logger,
		now:       time.Now,
	}
}

// SyncEventReminders refreshes the reminder rows of a created or updated
// event. The version bump atomically invalidates rows produced by prior
// revisions.
func (s *Service) SyncEventReminders(ctx context.Context, event *domain.CalendarEvent, op EventOperation) error {
	var version int64
	var err error
	switch op {
	case EventCreated:
		version, err = s.reminders.InitVersion(ctx, event.ID)
	default:
		version, err = s.reminders.IncVersion(ctx, event.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to bump reminder version for event %s: %w", event.ID, err)
	}

	// an emptied reminder list, or a cancelled event, tears its rows
	// down entirely
	if len(event.Reminders) == 0 || event.Status == domain.StatusCancelled {
		if err := s.reminders.DeleteByEvent(ctx, event.ID); err != nil {
			return err
		}
		return s.jobs.DeleteByEvent(ctx, event.ID)
	}

	calendar, err := s.calendars.Find(ctx, event.CalendarID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCalendarNotFound, event.CalendarID)
	}

	return s.createEventReminders(ctx, event, calendar, version)
}

// DeleteEventReminders removes every reminder row and expansion job of a
// deleted event.
func (s *Service) DeleteEventReminders(ctx context.Context, eventID uuid.UUID) error {
	if err := s.reminders.DeleteByEvent(ctx, eventID); err != nil {
		return err
	}
	return s.jobs.DeleteByEvent(ctx, eventID)
}

func (s *Service) createEventReminders(ctx context.Context, event *domain.CalendarEvent, calendar *domain.Calendar, version int64) error {
	now := s.now()
	threshold := now.Add(materialisationSkew)

	occurrenceStarts, err := s.selectOccurrences(ctx, event, calendar, version, now)
	if err != nil {
		return err
	}

	var rows []*domain.Reminder
	for _, start := range occurrenceStarts {
		for _, eventReminder := range event.Reminders {
			fireAt := start.Add(time.Duration(eventReminder.Delta) * time.Minute)
			if !fireAt.After(threshold) {
				continue
			}
			rows = append(rows, &domain.Reminder{
				EventID:    event.ID,
				AccountID:  event.AccountID,
				RemindAt:   fireAt,
				Version:    version,
				Identifier: eventReminder.Identifier,
			})
		}
	}

	return s.reminders.BulkInsert(ctx, rows)
}

// selectOccurrences picks the occurrence starts reminders are generated
// for: occurrences whose last possible reminder is already past are
// skipped, then the next batch of future occurrences is taken. When the
// batch fills up, an expansion job is recorded so the periodic tick
// continues the series.
func (s *Service) selectOccurrences(ctx context.Context, event *domain.CalendarEvent, calendar *domain.Calendar, version int64, now time.Time) ([]time.Time, error) {
	set, err := event.RuleSet(calendar.Settings)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return []time.Time{event.StartTime}, nil
	}

	var maxDelta time.Duration
	for i, eventReminder := range event.Reminders {
		delta := time.Duration(eventReminder.Delta) * time.Minute
		if i == 0 || delta > maxDelta {
			maxDelta = delta
		}
	}

	var starts []time.Time
	futures := 0
	next := set.Iterator()
	for {
		date, ok := next()
		if !ok {
			break
		}
		// this occurrence cannot produce a future reminder anymore
		if date.Add(maxDelta).Before(now) {
			continue
		}
		if !date.Before(now) {
			futures++
			if futures > occurrenceBatchSize {
				break
			}
		}
		starts = append(starts, date.UTC())
	}

	if futures >= occurrenceBatchSize {
		job := &domain.ReminderExpansionJob{
			EventID:   event.ID,
			Timestamp: starts[expansionJobIndex],
			Version:   version,
		}
		if err := s.jobs.BulkInsert(ctx, []*domain.ReminderExpansionJob{job}); err != nil {
			s.logger.Error("unable to store reminder expansion job",
				zap.String("event_id", event.ID.String()), zap.Error(err))
		}
	}

	return starts, nil
}

// ProcessExpansionJobs consumes every due expansion job and continues
// materialising its event's series. Individual failures are logged and
// do not fail the batch.
func (s *Service) ProcessExpansionJobs(ctx context.Context) error {
	jobs, err := s.jobs.DeleteAllBefore(ctx, s.now())
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	eventIDs := make([]uuid.UUID, 0, len(jobs))
	for _, job := range jobs {
		eventIDs = append(eventIDs, job.EventID)
	}
	events, err := s.events.FindMany(ctx, eventIDs)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := s.expandEvent(ctx, event); err != nil {
			s.logger.Error("reminder expansion job failed",
				zap.String("event_id", event.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) expandEvent(ctx context.Context, event *domain.CalendarEvent) error {
	version, err := s.reminders.IncVersion(ctx, event.ID)
	if err != nil {
		return err
	}
	calendar, err := s.calendars.Find(ctx, event.CalendarID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCalendarNotFound, event.CalendarID)
	}
	return s.createEventReminders(ctx, event, calendar, version)
}

// AccountReminders is one account's batch of due reminders.
type AccountReminders struct {
	AccountID uuid.UUID
	Reminders []*domain.Reminder
}

// CollectDueReminders atomically removes the reminders due within the
// next interval, grouped by account, plus the instant the caller should
// release them at.
func (s *Service) CollectDueReminders(ctx context.Context, interval time.Duration) ([]AccountReminders, time.Time, error) {
	releaseAt := s.now().Add(interval)
	due, err := s.reminders.DeleteAllBefore(ctx, releaseAt)
	if err != nil {
		return nil, time.Time{}, err
	}

	grouped := make(map[uuid.UUID]*AccountReminders)
	var order []uuid.UUID
	for _, row := range due {
		batch, found := grouped[row.AccountID]
		if !found {
			batch = &AccountReminders{AccountID: row.AccountID}
			grouped[row.AccountID] = batch
			order = append(order, row.AccountID)
		}
		batch.Reminders = append(batch.Reminders, row)
	}

	batches := make([]AccountReminders, 0, len(order))
	for _, accountID := range order {
		batches = append(batches, *grouped[accountID])
	}
	return batches, releaseAt, nil
}

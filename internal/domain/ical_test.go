package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestGenerateICalContent(t *testing.T) {
	name := "Team calendar"
	calendar := &Calendar{
		ID:       uuid.New(),
		Name:     &name,
		Settings: CalendarSettings{Timezone: "Europe/Oslo", WeekStart: time.Monday},
	}

	created := time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC)
	event := &CalendarEvent{
		ID:          uuid.New(),
		Title:       strPtr("Standup; daily"),
		Description: strPtr("Quick sync,\nnotes follow"),
		Location:    strPtr("Room 4"),
		Status:      StatusConfirmed,
		StartTime:   time.Date(2022, 1, 3, 9, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2022, 1, 3, 9, 15, 0, 0, time.UTC),
		Busy:        true,
		Created:     created,
		Updated:     created,
	}

	content := GenerateICalContent(calendar, []*CalendarEvent{event}, nil, nil)

	assert.True(t, strings.HasPrefix(content, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(content, "END:VCALENDAR\r\n"))
	assert.Contains(t, content, "VERSION:2.0\r\n")
	assert.Contains(t, content, "PRODID:-//Nittei//Calendar API//EN\r\n")
	assert.Contains(t, content, "CALSCALE:GREGORIAN\r\n")
	assert.Contains(t, content, "METHOD:PUBLISH\r\n")
	assert.Contains(t, content, "X-WR-CALNAME:Team calendar\r\n")
	assert.Contains(t, content, "X-WR-TIMEZONE:Europe/Oslo\r\n")
	assert.Contains(t, content, "UID:"+event.ID.String()+"\r\n")
	assert.Contains(t, content, `SUMMARY:Standup\; daily`+"\r\n")
	assert.Contains(t, content, `DESCRIPTION:Quick sync\,\nnotes follow`+"\r\n")
	assert.Contains(t, content, "DTSTART:20220103T090000Z\r\n")
	assert.Contains(t, content, "DTEND:20220103T091500Z\r\n")
	assert.Contains(t, content, "STATUS:CONFIRMED\r\n")
	assert.Contains(t, content, "TRANSP:OPAQUE\r\n")
	// every line must end with CRLF
	for _, line := range strings.Split(strings.TrimSuffix(content, "\r\n"), "\r\n") {
		assert.NotContains(t, line, "\n")
	}
}

func TestGenerateICalContentAllDay(t *testing.T) {
	calendar := &Calendar{ID: uuid.New(), Settings: DefaultCalendarSettings()}
	event := &CalendarEvent{
		ID:        uuid.New(),
		AllDay:    true,
		Status:    StatusTentative,
		StartTime: time.Date(2022, 5, 17, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2022, 5, 18, 0, 0, 0, 0, time.UTC),
	}

	content := GenerateICalContent(calendar, []*CalendarEvent{event}, nil, nil)
	assert.Contains(t, content, "DTSTART;VALUE=DATE:20220517\r\n")
	assert.Contains(t, content, "DTEND;VALUE=DATE:20220518\r\n")
	assert.Contains(t, content, "STATUS:TENTATIVE\r\n")
	assert.Contains(t, content, "TRANSP:TRANSPARENT\r\n")
}

func TestGenerateICalContentRecurringWithException(t *testing.T) {
	calendar := &Calendar{ID: uuid.New(), Settings: DefaultCalendarSettings()}
	start := time.Date(2022, 2, 1, 12, 0, 0, 0, time.UTC)
	until := start.AddDate(0, 2, 0)
	parent := &CalendarEvent{
		ID:        uuid.New(),
		Title:     strPtr("Weekly review"),
		Status:    StatusConfirmed,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Busy:      true,
		Recurrence: &RecurrenceRule{
			Freq:     FreqWeekly,
			Interval: 2,
			Until:    &until,
			Byweekday: []WeekDaySelector{
				{Weekday: time.Tuesday},
			},
		},
		Exdates: []time.Time{start.AddDate(0, 0, 14)},
	}
	weekstart := time.Sunday
	parent.Recurrence.Weekstart = &weekstart
	originalStart := start.AddDate(0, 0, 28)
	exception := &CalendarEvent{
		ID:                uuid.New(),
		RecurringEventID:  &parent.ID,
		OriginalStartTime: &originalStart,
		Status:            StatusCancelled,
		StartTime:         originalStart,
		EndTime:           originalStart.Add(time.Hour),
	}

	content := GenerateICalContent(calendar, nil, []*CalendarEvent{parent},
		map[uuid.UUID][]*CalendarEvent{parent.ID: {exception}})

	assert.Contains(t, content, "RRULE:FREQ=WEEKLY;INTERVAL=2;UNTIL=20220401T120000Z;BYDAY=TU;WKST=Sun\r\n")
	assert.Contains(t, content, "EXDATE:20220215T120000Z\r\n")
	assert.Contains(t, content, "RECURRENCE-ID:20220301T120000Z\r\n")
	assert.Contains(t, content, "STATUS:CANCELLED\r\n")
	// the exception carries the parent's UID, not its own
	require.Equal(t, 2, strings.Count(content, "UID:"+parent.ID.String()+"\r\n"))
	assert.NotContains(t, content, "UID:"+exception.ID.String())
	// exception inherits the parent's summary
	assert.Equal(t, 2, strings.Count(content, "SUMMARY:Weekly review\r\n"))
}

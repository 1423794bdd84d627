package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	icalDateTimeLayout = "20060102T150405Z"
	icalDateLayout     = "20060102"
)

// GenerateICalContent renders a calendar and its events as an iCalendar
// document. The output format is a wire contract: CRLF line endings,
// fixed property order, no line folding.
func GenerateICalContent(
	calendar *Calendar,
	normalEvents []*CalendarEvent,
	recurringEvents []*CalendarEvent,
	exceptionsByParent map[uuid.UUID][]*CalendarEvent,
) string {
	var b strings.Builder

	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//Nittei//Calendar API//EN\r\n")
	b.WriteString("CALSCALE:GREGORIAN\r\n")
	b.WriteString("METHOD:PUBLISH\r\n")

	if calendar.Name != nil {
		fmt.Fprintf(&b, "X-WR-CALNAME:%s\r\n", escapeICalText(*calendar.Name))
	}
	fmt.Fprintf(&b, "X-WR-TIMEZONE:%s\r\n", calendar.Settings.Timezone)

	for _, event := range normalEvents {
		writeICalEvent(&b, event)
	}
	for _, event := range recurringEvents {
		writeICalEvent(&b, event)
		for _, exception := range exceptionsByParent[event.ID] {
			writeICalException(&b, exception, event)
		}
	}

	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func writeICalEvent(b *strings.Builder, event *CalendarEvent) {
	b.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(b, "UID:%s\r\n", event.ID)

	if event.Title != nil {
		fmt.Fprintf(b, "SUMMARY:%s\r\n", escapeICalText(*event.Title))
	}
	if event.Description != nil {
		fmt.Fprintf(b, "DESCRIPTION:%s\r\n", escapeICalText(*event.Description))
	}
	if event.Location != nil {
		fmt.Fprintf(b, "LOCATION:%s\r\n", escapeICalText(*event.Location))
	}

	writeICalTimes(b, event.AllDay, event.StartTime, event.EndTime)
	fmt.Fprintf(b, "STATUS:%s\r\n", icalStatus(event.Status))
	fmt.Fprintf(b, "CREATED:%s\r\n", event.Created.UTC().Format(icalDateTimeLayout))
	fmt.Fprintf(b, "LAST-MODIFIED:%s\r\n", event.Updated.UTC().Format(icalDateTimeLayout))

	if event.Recurrence != nil {
		if rule := recurrenceToRRuleString(event.Recurrence); rule != "" {
			fmt.Fprintf(b, "RRULE:%s\r\n", rule)
		}
	}
	for _, exdate := range event.Exdates {
		fmt.Fprintf(b, "EXDATE:%s\r\n", exdate.UTC().Format(icalDateTimeLayout))
	}

	writeICalTransparency(b, event.Busy)
	b.WriteString("END:VEVENT\r\n")
}

func writeICalException(b *strings.Builder, exception, parent *CalendarEvent) {
	b.WriteString("BEGIN:VEVENT\r\n")
	// exceptions share the parent's UID and identify their occurrence
	// through RECURRENCE-ID
	fmt.Fprintf(b, "UID:%s\r\n", parent.ID)

	if exception.OriginalStartTime != nil {
		if exception.AllDay {
			fmt.Fprintf(b, "RECURRENCE-ID;VALUE=DATE:%s\r\n",
				exception.OriginalStartTime.UTC().Format(icalDateLayout))
		} else {
			fmt.Fprintf(b, "RECURRENCE-ID:%s\r\n",
				exception.OriginalStartTime.UTC().Format(icalDateTimeLayout))
		}
	}

	title := exception.Title
	if title == nil {
		title = parent.Title
	}
	if title != nil {
		fmt.Fprintf(b, "SUMMARY:%s\r\n", escapeICalText(*title))
	}
	description := exception.Description
	if description == nil {
		description = parent.Description
	}
	if description != nil {
		fmt.Fprintf(b, "DESCRIPTION:%s\r\n", escapeICalText(*description))
	}
	location := exception.Location
	if location == nil {
		location = parent.Location
	}
	if location != nil {
		fmt.Fprintf(b, "LOCATION:%s\r\n", escapeICalText(*location))
	}

	writeICalTimes(b, exception.AllDay, exception.StartTime, exception.EndTime)
	fmt.Fprintf(b, "STATUS:%s\r\n", icalStatus(exception.Status))
	fmt.Fprintf(b, "CREATED:%s\r\n", exception.Created.UTC().Format(icalDateTimeLayout))
	fmt.Fprintf(b, "LAST-MODIFIED:%s\r\n", exception.Updated.UTC().Format(icalDateTimeLayout))

	writeICalTransparency(b, exception.Busy)
	b.WriteString("END:VEVENT\r\n")
}

func writeICalTimes(b *strings.Builder, allDay bool, start, end time.Time) {
	if allDay {
		fmt.Fprintf(b, "DTSTART;VALUE=DATE:%s\r\n", start.UTC().Format(icalDateLayout))
		fmt.Fprintf(b, "DTEND;VALUE=DATE:%s\r\n", end.UTC().Format(icalDateLayout))
	} else {
		fmt.Fprintf(b, "DTSTART:%s\r\n", start.UTC().Format(icalDateTimeLayout))
		fmt.Fprintf(b, "DTEND:%s\r\n", end.UTC().Format(icalDateTimeLayout))
	}
}

func writeICalTransparency(b *strings.Builder, busy bool) {
	if busy {
		b.WriteString("TRANSP:OPAQUE\r\n")
	} else {
		b.WriteString("TRANSP:TRANSPARENT\r\n")
	}
}

func icalStatus(status CalendarEventStatus) string {
	switch status {
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "TENTATIVE"
	}
}

func recurrenceToRRuleString(rule *RecurrenceRule) string {
	var b strings.Builder

	switch rule.Freq {
	case FreqYearly:
		b.WriteString("FREQ=YEARLY")
	case FreqMonthly:
		b.WriteString("FREQ=MONTHLY")
	case FreqWeekly:
		b.WriteString("FREQ=WEEKLY")
	case FreqDaily:
		b.WriteString("FREQ=DAILY")
	default:
		return ""
	}

	if rule.Interval != 1 {
		fmt.Fprintf(&b, ";INTERVAL=%d", rule.Interval)
	}
	if rule.Count != nil {
		fmt.Fprintf(&b, ";COUNT=%d", *rule.Count)
	}
	if rule.Until != nil {
		fmt.Fprintf(&b, ";UNTIL=%s", rule.Until.UTC().Format(icalDateTimeLayout))
	}

	if len(rule.Byweekday) > 0 {
		days := make([]string, 0, len(rule.Byweekday))
		for _, selector := range rule.Byweekday {
			day := icalWeekday(selector.Weekday)
			if selector.N != 0 {
				day = strconv.Itoa(selector.N) + day
			}
			days = append(days, day)
		}
		fmt.Fprintf(&b, ";BYDAY=%s", strings.Join(days, ","))
	}
	if len(rule.Bymonthday) > 0 {
		fmt.Fprintf(&b, ";BYMONTHDAY=%s", joinInts(rule.Bymonthday))
	}
	if len(rule.Bymonth) > 0 {
		fmt.Fprintf(&b, ";BYMONTH=%s", joinInts(rule.Bymonth))
	}
	if len(rule.Byyearday) > 0 {
		fmt.Fprintf(&b, ";BYYEARDAY=%s", joinInts(rule.Byyearday))
	}
	if len(rule.Byweekno) > 0 {
		fmt.Fprintf(&b, ";BYWEEKNO=%s", joinInts(rule.Byweekno))
	}
	if len(rule.Bysetpos) > 0 {
		fmt.Fprintf(&b, ";BYSETPOS=%s", joinInts(rule.Bysetpos))
	}
	if rule.Weekstart != nil {
		fmt.Fprintf(&b, ";WKST=%s", rule.Weekstart.String()[:3])
	}

	return b.String()
}

func icalWeekday(w time.Weekday) string {
	switch w {
	case time.Monday:
		return "MO"
	case time.Tuesday:
		return "TU"
	case time.Wednesday:
		return "WE"
	case time.Thursday:
		return "TH"
	case time.Friday:
		return "FR"
	case time.Saturday:
		return "SA"
	default:
		return "SU"
	}
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ",")
}

// escapeICalText escapes text property values per RFC 5545.
func escapeICalText(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		"\n", `\n`,
		"\r", `\r`,
		";", `\;`,
		",", `\,`,
	)
	return replacer.Replace(s)
}

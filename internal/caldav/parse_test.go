package caldav

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func icsDoc(events ...string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, ev := range events {
		b.WriteString(ev)
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

const timedVEvent = "BEGIN:VEVENT\r\n" +
	"UID:timed-1\r\n" +
	"SUMMARY:Dentist\r\n" +
	"LOCATION:200 Elm St\r\n" +
	"DTSTART:20260205T160000Z\r\n" +
	"DTEND:20260205T170000Z\r\n" +
	"END:VEVENT\r\n"

const allDayVEvent = "BEGIN:VEVENT\r\n" +
	"UID:allday-1\r\n" +
	"SUMMARY:Holiday\r\n" +
	"DTSTART;VALUE=DATE:20260205\r\n" +
	"DTEND;VALUE=DATE:20260206\r\n" +
	"END:VEVENT\r\n"

const recurringVEvent = "BEGIN:VEVENT\r\n" +
	"UID:recur-1\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20260202T150000Z\r\n" +
	"DTEND:20260202T151500Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=10\r\n" +
	"EXDATE:20260204T150000Z\r\n" +
	"END:VEVENT\r\n"

const overrideVEvent = "BEGIN:VEVENT\r\n" +
	"UID:recur-1\r\n" +
	"SUMMARY:Standup (moved)\r\n" +
	"RECURRENCE-ID:20260205T150000Z\r\n" +
	"DTSTART:20260205T170000Z\r\n" +
	"DTEND:20260205T171500Z\r\n" +
	"END:VEVENT\r\n"

func TestParseICSTimedEvent(t *testing.T) {
	events, err := ParseICS(icsDoc(timedVEvent))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "timed-1", ev.UID)
	assert.Equal(t, "Dentist", ev.Summary)
	assert.Equal(t, "200 Elm St", ev.Location)
	assert.False(t, ev.AllDay)
	assert.True(t, ev.Start.Equal(time.Date(2026, 2, 5, 16, 0, 0, 0, time.UTC)))
	assert.True(t, ev.End.Equal(time.Date(2026, 2, 5, 17, 0, 0, 0, time.UTC)))
}

func TestParseICSAllDayEvent(t *testing.T) {
	events, err := ParseICS(icsDoc(allDayVEvent))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].AllDay)
	assert.Equal(t, "Holiday", events[0].Summary)
}

func TestParseICSRecurrence(t *testing.T) {
	events, err := ParseICS(icsDoc(recurringVEvent, overrideVEvent))
	require.NoError(t, err)
	require.Len(t, events, 2)

	var base, override *ParsedEvent
	for i := range events {
		if events[i].IsOverride {
			override = &events[i]
		} else {
			base = &events[i]
		}
	}
	require.NotNil(t, base)
	require.NotNil(t, override)

	assert.Equal(t, "FREQ=DAILY;COUNT=10", base.RawRRule)
	require.Len(t, base.ExDates, 1)
	assert.True(t, base.ExDates[0].Equal(time.Date(2026, 2, 4, 15, 0, 0, 0, time.UTC)))

	require.NotNil(t, override.Recurrence)
	assert.True(t, override.Recurrence.Equal(time.Date(2026, 2, 5, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Standup (moved)", override.Summary)
}

func TestParseICSSkipsBrokenVEvent(t *testing.T) {
	noUID := "BEGIN:VEVENT\r\n" +
		"SUMMARY:Orphan\r\n" +
		"DTSTART:20260205T160000Z\r\n" +
		"DTEND:20260205T170000Z\r\n" +
		"END:VEVENT\r\n"

	events, err := ParseICS(icsDoc(noUID, timedVEvent))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "timed-1", events[0].UID)
}

func TestParseICSEmptyBody(t *testing.T) {
	_, err := ParseICS(nil)
	assert.Error(t, err)
}

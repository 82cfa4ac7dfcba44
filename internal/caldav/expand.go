package caldav

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "inkycal/internal/log"
	"inkycal/internal/model"
)

// maxOccurrencesPerEvent caps runaway RRULE expansions.
const maxOccurrencesPerEvent = 1000

// Expand turns parsed VEVENTs into concrete model.Events within
// [rangeStart, rangeEnd], converted into the display timezone. It handles
// single events, RRULE recurrence, EXDATE exceptions, RECURRENCE-ID
// overrides, and all-day day-boundary semantics.
func Expand(source string, events []ParsedEvent, rangeStart, rangeEnd time.Time, displayLoc *time.Location) ([]model.Event, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, errors.New("caldav: expand range end before start")
	}
	if displayLoc == nil {
		displayLoc = time.Local
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0, len(events))
	for uid, bases := range baseByUID {
		overrides := overridesByUID[uid]
		for _, ev := range bases {
			if ev.RawRRule == "" {
				out = append(out, expandSingle(source, ev, overrides, rangeStart, rangeEnd, displayLoc)...)
				continue
			}
			out = append(out, expandRecurring(source, ev, overrides, rangeStart, rangeEnd, displayLoc)...)
		}
	}
	return out, nil
}

func expandSingle(source string, ev ParsedEvent, overrides []ParsedEvent, rangeStart, rangeEnd time.Time, displayLoc *time.Location) []model.Event {
	if ev.End.Before(rangeStart) || ev.Start.After(rangeEnd) {
		return nil
	}

	start, end := ev.Start, ev.End
	if o, ok := overrideForStart(overrides, start); ok {
		ev = o
		start, end = o.Start, o.End
	}
	return []model.Event{makeEvent(source, ev, start, end, displayLoc)}
}

func expandRecurring(source string, ev ParsedEvent, overrides []ParsedEvent, rangeStart, rangeEnd time.Time, displayLoc *time.Location) []model.Event {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("caldav rrule parse failed", err, "uid", ev.UID)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	occTimes := set.Between(
		rangeStart.In(ev.Start.Location()),
		rangeEnd.In(ev.Start.Location()),
		true,
	)
	if len(occTimes) > maxOccurrencesPerEvent {
		appLog.Error("caldav expansion truncated", errors.New("occurrence cap reached"),
			"uid", ev.UID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	out := make([]model.Event, 0, len(occTimes))
	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			day := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = day
			occEnd = day.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(ev.End.Sub(ev.Start))
		}

		instance := ev
		start, end := occStart, occEnd
		if o, ok := overrideForStart(overrides, occStart); ok {
			instance = o
			start, end = o.Start, o.End
		}
		out = append(out, makeEvent(source, instance, start, end, displayLoc))
	}
	return out
}

func overrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(start.Location()).Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeEvent(source string, ev ParsedEvent, start, end time.Time, displayLoc *time.Location) model.Event {
	return model.Event{
		Source:   source,
		Title:    ev.Summary,
		Start:    start.In(displayLoc),
		End:      end.In(displayLoc),
		AllDay:   ev.AllDay,
		Location: ev.Location,
	}
}

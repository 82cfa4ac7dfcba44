package caldav

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "inkycal/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT before
// recurrence expansion.
type ParsedEvent struct {
	UID string

	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, set on override instances
	IsOverride bool
}

// ParseICS parses one ICS payload into ParsedEvents. Individual VEVENTs
// that fail to parse are logged and skipped; the rest of the payload still
// contributes events.
func ParseICS(body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("caldav: empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("caldav vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	start, _ := ve.GetStartAt()
	end, _ := ve.GetEndAt()
	out.Start = start
	out.End = end

	// All-day when DTSTART carries VALUE=DATE or has no time component.
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.AllDay = true
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			out.AllDay = true
		}
	}

	if rrule := ve.GetProperty(ical.ComponentPropertyRrule); rrule != nil {
		out.RawRRule = rrule.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, err := parseICSTime(rid.Value); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseICSTime handles the basic DATE / DATE-TIME / UTC forms that appear
// in EXDATE and RECURRENCE-ID values.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}

package calendar

import (
	"context"
	"time"

	"inkycal/internal/caldav"
	appLog "inkycal/internal/log"
	"inkycal/internal/model"
)

// ICloudSource fetches events from iCloud over CalDAV with an app-specific
// password, optionally restricted to an allowlist of calendar display
// names.
type ICloudSource struct {
	client    *caldav.Client
	allowlist map[string]bool
	tz        *time.Location
}

// NewICloudSource creates an iCloud fetcher. An empty allowlist takes every
// calendar in the account.
func NewICloudSource(username, appPassword string, calendarNameAllowlist []string, tz *time.Location) *ICloudSource {
	var allow map[string]bool
	if len(calendarNameAllowlist) > 0 {
		allow = make(map[string]bool, len(calendarNameAllowlist))
		for _, name := range calendarNameAllowlist {
			allow[name] = true
		}
	}
	return &ICloudSource{
		client:    caldav.NewClient(caldav.DefaultBaseURL, username, appPassword),
		allowlist: allow,
		tz:        tz,
	}
}

// Name implements the event source interface.
func (s *ICloudSource) Name() string { return "icloud" }

// FetchEvents queries every allowed calendar for VEVENTs in [start, end)
// and expands recurrences into concrete occurrences. A calendar whose query
// fails is logged and skipped so one bad collection does not sink the rest.
func (s *ICloudSource) FetchEvents(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	calendars, err := s.client.Calendars(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0)
	for _, cal := range calendars {
		if s.allowlist != nil && !s.allowlist[cal.DisplayName] {
			continue
		}

		payloads, err := s.client.EventsICS(ctx, cal, start, end)
		if err != nil {
			appLog.Error("icloud calendar query failed", err, "calendar", cal.DisplayName)
			continue
		}

		parsed := make([]caldav.ParsedEvent, 0)
		for _, body := range payloads {
			evs, err := caldav.ParseICS(body)
			if err != nil {
				appLog.Error("icloud ics parse failed", err, "calendar", cal.DisplayName)
				continue
			}
			parsed = append(parsed, evs...)
		}

		expanded, err := caldav.Expand("icloud", parsed, start, end, s.tz)
		if err != nil {
			appLog.Error("icloud expansion failed", err, "calendar", cal.DisplayName)
			continue
		}
		events = append(events, expanded...)
	}
	return events, nil
}

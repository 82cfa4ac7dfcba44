package schedule

import (
	"time"

	"inkycal/internal/model"
)

// TravelResolver estimates driving time between two free-text addresses.
// A nil result means no estimate could be produced (unresolvable address,
// no route, network failure); resolvers never return errors upward.
type TravelResolver interface {
	Estimate(origin, destination string) *model.TravelEstimate
}

// AnnotateTravel attaches travel-time display text to timed events with a
// location. events must already be in display order (post MergeAllDay).
//
// The origin is normally the configured home address. When the previous
// timed event has a known location and the gap between its end and this
// event's start is within the back-to-back window, the previous location
// becomes the origin instead: the user is already out and travels from
// their last stop, not from home.
//
// With an empty origin address the input is returned unchanged. All-day
// events are passed through untouched.
func AnnotateTravel(events []model.Event, resolver TravelResolver, originAddress string, backToBackWindow time.Duration) []model.Event {
	if originAddress == "" {
		return events
	}

	out := make([]model.Event, 0, len(events))
	var prev *model.Event
	for _, ev := range events {
		if ev.AllDay {
			out = append(out, ev)
			continue
		}

		origin := originAddress
		if prev != nil && prev.Location != "" {
			gap := ev.Start.Sub(prev.End)
			if gap <= backToBackWindow {
				origin = prev.Location
			}
		}

		annotated := ev
		annotated.TravelTimeText = ""
		if ev.Location != "" {
			if est := resolver.Estimate(origin, ev.Location); est != nil {
				annotated.TravelTimeText = "Travel: " + est.Text
			}
		}
		out = append(out, annotated)

		cur := ev
		prev = &cur
	}
	return out
}

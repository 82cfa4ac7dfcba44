package schedule

import (
	"sort"
	"strings"

	"inkycal/internal/model"
)

const allDayFallbackTitle = "All-day events"

// MergeAllDay collapses every all-day event into a single synthetic summary
// event so the panel spends at most one row on them. Timed events pass
// through in display order. With no all-day input the timed events are
// returned as-is (display-sorted).
//
// The summary spans min(start)..max(end) of the all-day inputs and carries
// source "merged"; it is always first in the returned slice.
func MergeAllDay(events []model.Event) []model.Event {
	var allDay, timed []model.Event
	for _, e := range events {
		if e.AllDay {
			allDay = append(allDay, e)
		} else {
			timed = append(timed, e)
		}
	}
	if len(allDay) == 0 {
		return SortEvents(timed)
	}

	titles := make([]string, 0, len(allDay))
	for _, e := range allDay {
		if t := strings.TrimSpace(e.Title); t != "" {
			titles = append(titles, t)
		}
	}
	sort.SliceStable(titles, func(i, j int) bool {
		return strings.ToLower(titles[i]) < strings.ToLower(titles[j])
	})

	title := allDayFallbackTitle
	if len(titles) > 0 {
		title = "All-day: " + strings.Join(titles, " • ")
	}

	summary := model.Event{
		Source: model.SourceMerged,
		Title:  title,
		Start:  allDay[0].Start,
		End:    allDay[0].End,
		AllDay: true,
	}
	for _, e := range allDay[1:] {
		if e.Start.Before(summary.Start) {
			summary.Start = e.Start
		}
		if e.End.After(summary.End) {
			summary.End = e.End
		}
	}

	return append([]model.Event{summary}, SortEvents(timed)...)
}

package schedule

import (
	"sort"
	"strings"
	"time"

	"inkycal/internal/model"
)

// baseKey groups candidate duplicates: events can only collide when their
// title fingerprints and exact times agree.
type baseKey struct {
	titleFP string
	start   string
	end     string
	allDay  bool
}

func keyFor(e model.Event) baseKey {
	return baseKey{
		titleFP: Fingerprint(e.Title),
		start:   e.Start.Format(time.RFC3339),
		end:     e.End.Format(time.RFC3339),
		allDay:  e.AllDay,
	}
}

// quality ranks two duplicates: an event with a location beats one without,
// then the longer (more descriptive) trimmed title wins.
type quality struct {
	hasLocation int
	titleLen    int
}

func qualityOf(e model.Event) quality {
	q := quality{titleLen: len(strings.TrimSpace(e.Title))}
	if Fingerprint(e.Location) != "" {
		q.hasLocation = 1
	}
	return q
}

func (q quality) greaterThan(o quality) bool {
	if q.hasLocation != o.hasLocation {
		return q.hasLocation > o.hasLocation
	}
	return q.titleLen > o.titleLen
}

// SortEvents orders events for display: all-day first, then start time,
// then case-insensitive title. The same order is used as dedup processing
// order so merge decisions are deterministic.
func SortEvents(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
	return out
}

// Dedupe collapses near-duplicate events reported by multiple providers.
//
// Events are grouped by base key (title fingerprint + exact times + all-day
// flag). Within a group, two events are duplicates when their location
// fingerprints match or either is empty: a missing location cannot
// contradict a set one. Same title and time with genuinely different
// locations stay separate (recurring series in different rooms).
//
// When a duplicate is found, the higher-quality record survives; ties keep
// the earlier one. The result is in display order.
func Dedupe(events []model.Event) []model.Event {
	ordered := SortEvents(events)

	// Survivor arena plus an index from base key to arena positions, so a
	// replacement mutates one bounded slot instead of rescanning the output.
	survivors := make([]model.Event, 0, len(ordered))
	index := make(map[baseKey][]int)

	for _, ev := range ordered {
		key := keyFor(ev)
		evLocFP := Fingerprint(ev.Location)

		matched := false
		for _, pos := range index[key] {
			repLocFP := Fingerprint(survivors[pos].Location)
			if evLocFP != repLocFP && evLocFP != "" && repLocFP != "" {
				continue
			}
			matched = true
			if qualityOf(ev).greaterThan(qualityOf(survivors[pos])) {
				survivors[pos] = ev
			}
			break
		}
		if matched {
			continue
		}

		index[key] = append(index[key], len(survivors))
		survivors = append(survivors, ev)
	}

	return survivors
}

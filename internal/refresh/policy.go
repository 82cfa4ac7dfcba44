package refresh

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Decision is the outcome of the refresh policy for one invocation.
type Decision int

const (
	// SleepingSuppressed: inside the sleep window with today's banner
	// already applied; no fetch, no render.
	SleepingSuppressed Decision = iota
	// SleepingBannerPending: inside the sleep window but the banner has
	// not been shown today; one render happens to apply it.
	SleepingBannerPending
	// AwakeNoChange: content signature matches the last render and no
	// floor or flag applies; the render is skipped.
	AwakeNoChange
	// AwakeChanged: the content signature differs or the hourly floor
	// expired; the display is refreshed.
	AwakeChanged
	// Forced: explicit force or deep-clean request bypassing change
	// detection.
	Forced
)

func (d Decision) String() string {
	switch d {
	case SleepingSuppressed:
		return "sleeping_suppressed"
	case SleepingBannerPending:
		return "sleeping_banner_pending"
	case AwakeNoChange:
		return "awake_no_change"
	case AwakeChanged:
		return "awake_changed"
	case Forced:
		return "forced"
	default:
		return "unknown"
	}
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("refresh: invalid clock %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("refresh: invalid clock %q: %w", s, err)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, fmt.Errorf("refresh: invalid clock %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return Clock{}, fmt.Errorf("refresh: clock %q out of range", s)
	}
	return Clock{Hour: hh, Minute: mm}, nil
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// InSleepWindow reports whether now falls within [start, end), supporting
// overnight wraparound: when start > end (22:30 -> 06:30) the window is
// "on or after start, or before end".
func InSleepWindow(now time.Time, start, end Clock) bool {
	t := now.Hour()*60 + now.Minute()
	s, e := start.minutes(), end.minutes()
	if s < e {
		return t >= s && t < e
	}
	return t >= s || t < e
}

// DayString is the calendar-day key used for the once-per-day banner ledger.
func DayString(now time.Time) string {
	return now.Format("2006-01-02")
}

// SleepConfig is the policy's view of the configured sleep window.
type SleepConfig struct {
	Enabled bool
	Start   Clock
	End     Clock
}

// PollPlan is the pre-fetch decision: whether this invocation polls at all,
// and whether the sleep banner is shown / newly applied.
type PollPlan struct {
	InSleep       bool
	ShowBanner    bool
	BannerPending bool
	Suppress      bool
}

// PlanPoll implements step 1 of the decision order: inside the sleep window
// with today's banner already applied and no force/deep-clean flags, the run
// is suppressed entirely. Otherwise the pipeline proceeds, with
// BannerPending set when this run must apply today's banner.
func PlanPoll(now time.Time, sleep SleepConfig, lastBannerDate string, force, deepClean bool) PollPlan {
	plan := PollPlan{}
	plan.InSleep = sleep.Enabled && InSleepWindow(now, sleep.Start, sleep.End)
	plan.ShowBanner = plan.InSleep
	if plan.InSleep && lastBannerDate != DayString(now) {
		plan.BannerPending = true
	}
	if plan.InSleep && !plan.BannerPending && !force && !deepClean {
		plan.Suppress = true
	}
	return plan
}

// HourlyFloorExceeded reports whether at least threshold has elapsed since
// the last successful render. An empty or unparsable timestamp means no
// floor-driven refresh; the first render is driven by the signature diff
// against the empty hash instead.
func HourlyFloorExceeded(lastRenderedISO string, now time.Time, threshold time.Duration) bool {
	if lastRenderedISO == "" {
		return false
	}
	last, err := time.Parse(time.RFC3339, lastRenderedISO)
	if err != nil {
		return false
	}
	return now.Sub(last) >= threshold
}

// RenderInputs are the step-3 decision inputs, gathered after fetching and
// signing the content.
type RenderInputs struct {
	Force         bool
	DeepClean     bool
	BannerPending bool
	HourlyFloor   bool
	Signature     string
	LastHash      string
	InSleep       bool
}

// PlanRender decides whether the physical display is refreshed, and why.
func PlanRender(in RenderInputs) (Decision, bool) {
	switch {
	case in.Force || in.DeepClean:
		return Forced, true
	case in.BannerPending:
		return SleepingBannerPending, true
	case in.HourlyFloor || in.Signature != in.LastHash:
		return AwakeChanged, true
	default:
		return AwakeNoChange, false
	}
}

// DeepCleanDue reports whether a deep-clean slot fired within the window
// ending at now. The slot is a standard 5-field cron expression; the window
// is the poll interval, so exactly one invocation per slot picks it up.
// This evaluates a schedule for the current invocation only; it does not
// schedule anything.
func DeepCleanDue(spec string, now time.Time, window time.Duration) (bool, error) {
	if spec == "" || window <= 0 {
		return false, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return false, fmt.Errorf("refresh: invalid deep-clean schedule %q: %w", spec, err)
	}
	next := sched.Next(now.Add(-window))
	return !next.After(now), nil
}

// Package app wires the pipeline together: fetch, reconcile, decide,
// render, display, persist. One invocation does one pass; cadence comes
// from an external timer.
package app

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"time"

	"inkycal/internal/capture"
	"inkycal/internal/config"
	"inkycal/internal/convert"
	"inkycal/internal/epd"
	appLog "inkycal/internal/log"
	"inkycal/internal/model"
	"inkycal/internal/probe"
	"inkycal/internal/refresh"
	"inkycal/internal/render"
	"inkycal/internal/schedule"
	"inkycal/internal/state"
)

// EventSource yields events for a half-open time range.
type EventSource interface {
	Name() string
	FetchEvents(ctx context.Context, start, end time.Time) ([]model.Event, error)
}

// AlertSource yields currently active weather alerts.
type AlertSource interface {
	ActiveAlerts() ([]model.Alert, error)
}

// Display is the hardware surface a packed frame is pushed to.
type Display interface {
	Show(buf []byte) error
	Close() error
}

// Runner holds one invocation's collaborators. Zero hooks get production
// implementations; tests swap in stubs.
type Runner struct {
	Config    *config.Config
	StatePath string

	Force      bool
	DeepClean  bool
	RenderOnly bool
	// PreviewPath receives the captured PNG when RenderOnly is set.
	PreviewPath string

	Sources []EventSource
	Travel  schedule.TravelResolver
	Weather schedule.WeatherResolver
	Alerts  AlertSource

	Now         func() time.Time
	Capture     func(ctx context.Context, opts capture.Options) ([]byte, error)
	OpenDisplay func(width, height int, border byte) (Display, error)
	NetPath     string
	PowerPath   string
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) capturePNG(ctx context.Context, opts capture.Options) ([]byte, error) {
	if r.Capture != nil {
		return r.Capture(ctx, opts)
	}
	return capture.PNG(ctx, opts)
}

func (r *Runner) openDisplay(width, height int, border byte) (Display, error) {
	if r.OpenDisplay != nil {
		return r.OpenDisplay(width, height, border)
	}
	return epd.Open(width, height, border)
}

// RunOnce executes one poll pass and returns the refresh decision made.
func (r *Runner) RunOnce(ctx context.Context) (refresh.Decision, error) {
	cfg := r.Config
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return refresh.AwakeNoChange, fmt.Errorf("app: timezone %q: %w", cfg.Timezone, err)
	}
	now := r.now().In(tz)

	st, err := state.Load(r.StatePath)
	if err != nil {
		return refresh.AwakeNoChange, fmt.Errorf("app: load state: %w", err)
	}

	sleep, err := sleepPolicy(cfg.Sleep)
	if err != nil {
		return refresh.AwakeNoChange, err
	}

	deepClean := r.DeepClean
	if !deepClean && cfg.DeepClean.Enabled {
		due, err := refresh.DeepCleanDue(cfg.DeepClean.Schedule, now, cfg.PollInterval())
		if err != nil {
			return refresh.AwakeNoChange, err
		}
		if due {
			appLog.Info("deep-clean slot fired", "schedule", cfg.DeepClean.Schedule)
			deepClean = true
		}
	}

	plan := refresh.PlanPoll(now, sleep, st.LastSleepBannerDate, r.Force, deepClean)
	if plan.Suppress {
		appLog.Debug("suppressed inside sleep window", "banner_date", st.LastSleepBannerDate)
		return refresh.SleepingSuppressed, nil
	}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, tz)
	todayEnd := todayStart.AddDate(0, 0, 1)
	tomorrowEnd := todayStart.AddDate(0, 0, 2)

	today := r.fetchAll(ctx, todayStart, todayEnd)
	tomorrow := r.fetchAll(ctx, todayEnd, tomorrowEnd)

	today = r.reconcile(today)
	tomorrow = r.reconcile(tomorrow)

	wifi := probe.WifiStatus(r.netPath())
	ups := probe.UPS(r.powerPath())
	headlines := r.alertHeadlines()

	sig := schedule.Signature(tz, schedule.SignatureInput{
		HeaderDate:     render.HeaderDate(now, tz),
		SleepBanner:    plan.ShowBanner,
		WifiStatus:     wifi,
		UPS:            ups,
		AlertHeadlines: headlines,
		Events:         today,
		TomorrowEvents: tomorrow,
	})

	decision, doRender := refresh.PlanRender(refresh.RenderInputs{
		Force:         r.Force,
		DeepClean:     deepClean,
		BannerPending: plan.BannerPending,
		HourlyFloor:   refresh.HourlyFloorExceeded(st.LastRenderedISO, now, time.Hour),
		Signature:     sig,
		LastHash:      st.LastHash,
		InSleep:       plan.InSleep,
	})
	appLog.Info("refresh decision",
		"decision", decision.String(),
		"render", doRender,
		"events", len(today),
		"tomorrow", len(tomorrow))
	if !doRender {
		return decision, nil
	}

	frame, err := r.renderFrame(ctx, render.Input{
		Now:             now,
		TZ:              tz,
		Events:          today,
		TomorrowEvents:  tomorrow,
		ShowSleepBanner: plan.ShowBanner,
		SleepBannerText: cfg.Sleep.BannerText,
		WifiStatus:      wifi,
		UPS:             ups,
		AlertHeadlines:  headlines,
		Width:           cfg.Display.Width,
		Height:          cfg.Display.Height,
	})
	if err != nil {
		return decision, err
	}

	if r.RenderOnly {
		if err := os.WriteFile(r.PreviewPath, frame.png, 0o644); err != nil {
			return decision, fmt.Errorf("app: write preview: %w", err)
		}
		appLog.Info("preview written, hardware and state skipped", "path", r.PreviewPath)
		return decision, nil
	}

	if err := r.show(frame.packed, deepClean); err != nil {
		return decision, err
	}

	st.LastHash = sig
	st.LastRenderedISO = now.Format(time.RFC3339)
	if plan.BannerPending {
		st.LastSleepBannerDate = refresh.DayString(now)
	}
	if err := state.Save(r.StatePath, st); err != nil {
		return decision, fmt.Errorf("app: save state: %w", err)
	}
	return decision, nil
}

func sleepPolicy(sc config.SleepConfig) (refresh.SleepConfig, error) {
	start, err := refresh.ParseClock(sc.Start)
	if err != nil {
		return refresh.SleepConfig{}, fmt.Errorf("app: sleep start: %w", err)
	}
	end, err := refresh.ParseClock(sc.End)
	if err != nil {
		return refresh.SleepConfig{}, fmt.Errorf("app: sleep end: %w", err)
	}
	return refresh.SleepConfig{Enabled: sc.Enabled, Start: start, End: end}, nil
}

// fetchAll collects events from every source for the range. A panicking or
// failing source contributes nothing; the run keeps going with the rest.
func (r *Runner) fetchAll(ctx context.Context, start, end time.Time) []model.Event {
	var all []model.Event
	for _, src := range r.Sources {
		events := func() (events []model.Event) {
			defer func() {
				if p := recover(); p != nil {
					appLog.Error("source panicked", fmt.Errorf("%v", p), "source", src.Name())
					events = nil
				}
			}()
			events, err := src.FetchEvents(ctx, start, end)
			if err != nil {
				appLog.Error("source fetch failed", err, "source", src.Name())
				return nil
			}
			return events
		}()
		all = append(all, events...)
	}
	return all
}

// reconcile runs the in-memory pipeline over one day's raw events.
func (r *Runner) reconcile(events []model.Event) []model.Event {
	events = schedule.Dedupe(events)
	events = schedule.MergeAllDay(events)
	if r.Config.Travel.Enabled && r.Travel != nil {
		window := time.Duration(r.Config.Travel.BackToBackWindowMinutes) * time.Minute
		events = schedule.AnnotateTravel(events, r.Travel, r.Config.Travel.OriginAddress, window)
	}
	if r.Config.Weather.Enabled && r.Weather != nil {
		events = schedule.AnnotateWeather(events, r.Weather, r.Config.Weather.IncludeEndWeather)
	}
	return events
}

func (r *Runner) alertHeadlines() []string {
	if !r.Config.Weather.Enabled || r.Alerts == nil {
		return nil
	}
	alerts, err := r.Alerts.ActiveAlerts()
	if err != nil {
		appLog.Error("alert lookup failed", err)
		return nil
	}
	headlines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		headlines = append(headlines, a.Headline)
	}
	return headlines
}

type frame struct {
	png    []byte
	packed []byte
}

// renderFrame runs template -> screenshot -> rotate -> palette pack.
func (r *Runner) renderFrame(ctx context.Context, in render.Input) (*frame, error) {
	fileURL, path, err := render.WriteTempHTML(in)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	shot, err := r.capturePNG(ctx, capture.Options{
		URL:    fileURL,
		Width:  in.Width,
		Height: in.Height,
	})
	if err != nil {
		return nil, err
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("app: decode screenshot: %w", err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(img.Bounds())
		draw.Draw(nrgba, img.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	display := r.Config.Display
	rotated, err := convert.Rotate(nrgba, display.RotateDegrees)
	if err != nil {
		return nil, err
	}
	b := rotated.Bounds()
	packed, err := convert.PackNRGBA(rotated, b.Dx(), b.Dy(), display.Saturation)
	if err != nil {
		return nil, err
	}
	return &frame{png: shot, packed: packed}, nil
}

// show pushes the frame to the panel. A deep clean flushes a solid white
// frame first to clear ghosting before drawing the real content.
func (r *Runner) show(packed []byte, deepClean bool) error {
	display := r.Config.Display
	d, err := r.openDisplay(display.Width, display.Height, convert.BorderIndex(display.Border))
	if err != nil {
		return err
	}
	defer d.Close()

	if deepClean {
		appLog.Info("deep clean: flushing panel")
		white := make([]byte, len(packed))
		for i := range white {
			white[i] = 0x11
		}
		if err := d.Show(white); err != nil {
			return err
		}
	}
	return d.Show(packed)
}

func (r *Runner) netPath() string {
	if r.NetPath != "" {
		return r.NetPath
	}
	return probe.DefaultNetPath
}

func (r *Runner) powerPath() string {
	if r.PowerPath != "" {
		return r.PowerPath
	}
	return probe.DefaultPowerPath
}

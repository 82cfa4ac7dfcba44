package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkycal/internal/capture"
	"inkycal/internal/config"
	"inkycal/internal/model"
	"inkycal/internal/refresh"
	"inkycal/internal/state"
)

type stubSource struct {
	name   string
	events []model.Event
	err    error
	panics bool
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchEvents(_ context.Context, start, end time.Time) ([]model.Event, error) {
	s.calls++
	if s.panics {
		panic("source exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Event
	for _, ev := range s.events {
		if !ev.End.Before(start) && !ev.Start.After(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type stubDisplay struct {
	shown  [][]byte
	closed bool
}

func (d *stubDisplay) Show(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.shown = append(d.shown, cp)
	return nil
}

func (d *stubDisplay) Close() error {
	d.closed = true
	return nil
}

func stubCapture(t *testing.T) func(context.Context, capture.Options) ([]byte, error) {
	t.Helper()
	return func(_ context.Context, opts capture.Options) ([]byte, error) {
		img := image.NewNRGBA(image.Rect(0, 0, opts.Width, opts.Height))
		for y := 0; y < opts.Height; y++ {
			for x := 0; x < opts.Width; x++ {
				img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		return buf.Bytes(), nil
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Display.Width = 4
	cfg.Display.Height = 4
	cfg.Sleep.Enabled = true
	cfg.DeepClean.Enabled = false
	return cfg
}

func testRunner(t *testing.T, cfg *config.Config, now time.Time, sources ...EventSource) (*Runner, *stubDisplay) {
	t.Helper()
	display := &stubDisplay{}
	r := &Runner{
		Config:    cfg,
		StatePath: filepath.Join(t.TempDir(), "state.json"),
		Sources:   sources,
		Now:       func() time.Time { return now },
		Capture:   stubCapture(t),
		OpenDisplay: func(_, _ int, _ byte) (Display, error) {
			return display, nil
		},
		NetPath:   filepath.Join(t.TempDir(), "net"),
		PowerPath: filepath.Join(t.TempDir(), "power"),
	}
	return r, display
}

func noonUTC() time.Time {
	return time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
}

func TestRunOnceFirstRunRenders(t *testing.T) {
	src := &stubSource{name: "google", events: []model.Event{
		{
			Source: "google",
			Title:  "Dentist",
			Start:  time.Date(2026, 2, 5, 16, 0, 0, 0, time.UTC),
			End:    time.Date(2026, 2, 5, 17, 0, 0, 0, time.UTC),
		},
	}}
	r, display := testRunner(t, testConfig(), noonUTC(), src)

	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.AwakeChanged, decision)
	require.Len(t, display.shown, 1)
	assert.Len(t, display.shown[0], 4*4/2)
	assert.True(t, display.closed)
	// Today and tomorrow are fetched separately.
	assert.Equal(t, 2, src.calls)

	st, err := state.Load(r.StatePath)
	require.NoError(t, err)
	assert.NotEmpty(t, st.LastHash)
	assert.Equal(t, noonUTC().Format(time.RFC3339), st.LastRenderedISO)
	assert.Empty(t, st.LastSleepBannerDate)
}

func TestRunOnceUnchangedContentSkipsRender(t *testing.T) {
	src := &stubSource{name: "google"}
	r, display := testRunner(t, testConfig(), noonUTC(), src)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, display.shown, 1)

	// Second run 30 minutes later with identical content.
	r.Now = func() time.Time { return noonUTC().Add(30 * time.Minute) }
	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.AwakeNoChange, decision)
	assert.Len(t, display.shown, 1, "no second render")

	st, err := state.Load(r.StatePath)
	require.NoError(t, err)
	assert.Equal(t, noonUTC().Format(time.RFC3339), st.LastRenderedISO)
}

func TestRunOnceHourlyFloorForcesRender(t *testing.T) {
	src := &stubSource{name: "google"}
	r, display := testRunner(t, testConfig(), noonUTC(), src)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	r.Now = func() time.Time { return noonUTC().Add(2 * time.Hour) }
	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.AwakeChanged, decision)
	assert.Len(t, display.shown, 2)
}

func TestRunOnceSleepSuppression(t *testing.T) {
	night := time.Date(2026, 2, 5, 23, 0, 0, 0, time.UTC)
	src := &stubSource{name: "google"}
	r, display := testRunner(t, testConfig(), night, src)
	require.NoError(t, state.Save(r.StatePath, state.State{
		LastSleepBannerDate: "2026-02-05",
	}))

	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.SleepingSuppressed, decision)
	assert.Empty(t, display.shown)
	assert.Equal(t, 0, src.calls, "suppression happens before any fetch")
}

func TestRunOnceAppliesSleepBannerOnce(t *testing.T) {
	night := time.Date(2026, 2, 5, 23, 0, 0, 0, time.UTC)
	src := &stubSource{name: "google"}
	r, display := testRunner(t, testConfig(), night, src)

	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.SleepingBannerPending, decision)
	require.Len(t, display.shown, 1)

	st, err := state.Load(r.StatePath)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-05", st.LastSleepBannerDate)

	// The next tick inside the window is suppressed.
	decision, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.SleepingSuppressed, decision)
	assert.Len(t, display.shown, 1)
}

func TestRunOnceForceRendersUnchanged(t *testing.T) {
	src := &stubSource{name: "google"}
	r, display := testRunner(t, testConfig(), noonUTC(), src)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	r.Force = true
	r.Now = func() time.Time { return noonUTC().Add(5 * time.Minute) }
	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.Forced, decision)
	assert.Len(t, display.shown, 2)
}

func TestRunOnceDeepCleanFlushesFirst(t *testing.T) {
	src := &stubSource{name: "google"}
	r, display := testRunner(t, testConfig(), noonUTC(), src)
	r.DeepClean = true

	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.Forced, decision)
	require.Len(t, display.shown, 2)
	for _, b := range display.shown[0] {
		assert.Equal(t, byte(0x11), b, "flush frame is solid white")
	}
}

func TestRunOnceSurvivesFailingSource(t *testing.T) {
	bad := &stubSource{name: "icloud", err: errors.New("caldav down")}
	worse := &stubSource{name: "webcal", panics: true}
	good := &stubSource{name: "google", events: []model.Event{
		{
			Source: "google",
			Title:  "Dentist",
			Start:  time.Date(2026, 2, 5, 16, 0, 0, 0, time.UTC),
			End:    time.Date(2026, 2, 5, 17, 0, 0, 0, time.UTC),
		},
	}}
	r, display := testRunner(t, testConfig(), noonUTC(), bad, worse, good)

	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.AwakeChanged, decision)
	assert.Len(t, display.shown, 1)
	assert.Equal(t, 2, good.calls)
}

func TestRunOnceRenderOnlyWritesPreview(t *testing.T) {
	src := &stubSource{name: "google"}
	r, display := testRunner(t, testConfig(), noonUTC(), src)
	r.RenderOnly = true
	r.PreviewPath = filepath.Join(t.TempDir(), "preview.png")

	decision, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.AwakeChanged, decision)
	assert.Empty(t, display.shown, "hardware untouched")

	data, err := os.ReadFile(r.PreviewPath)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	// State is not advanced by a preview run.
	st, err := state.Load(r.StatePath)
	require.NoError(t, err)
	assert.Empty(t, st.LastHash)
}

func TestRunOnceCorruptStateFails(t *testing.T) {
	src := &stubSource{name: "google"}
	r, _ := testRunner(t, testConfig(), noonUTC(), src)
	require.NoError(t, os.MkdirAll(filepath.Dir(r.StatePath), 0o700))
	require.NoError(t, os.WriteFile(r.StatePath, []byte("{broken"), 0o600))

	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunOnceBadTimezoneFails(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Not/AZone"
	r, _ := testRunner(t, cfg, noonUTC(), &stubSource{name: "google"})

	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
}

package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkycal/internal/model"
)

type stubWeatherResolver struct {
	byHour map[time.Time]*model.WeatherAtTime
	err    error
}

func (s *stubWeatherResolver) ForecastForTime(t time.Time) (*model.WeatherAtTime, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byHour[t], nil
}

func TestAnnotateWeatherStartOnly(t *testing.T) {
	start := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	ev := timedEvent("google", "Soccer", "Park", start, 45*time.Minute)
	resolver := &stubWeatherResolver{byHour: map[time.Time]*model.WeatherAtTime{
		start: {TemperatureF: 72, Icon: "☀"},
	}}

	got := AnnotateWeather([]model.Event{ev}, resolver, true)

	require.Len(t, got, 1)
	assert.Equal(t, "☀", got[0].WeatherIcon)
	assert.Equal(t, "72°F", got[0].WeatherText)
	assert.Equal(t, 72, got[0].WeatherTemperatureF)
	// 45 minutes is under the end-weather threshold.
	assert.Empty(t, got[0].WeatherEndText)
}

func TestAnnotateWeatherEndForLongEvents(t *testing.T) {
	start := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	ev := timedEvent("google", "Hike", "Trailhead", start, 3*time.Hour)
	resolver := &stubWeatherResolver{byHour: map[time.Time]*model.WeatherAtTime{
		start:  {TemperatureF: 65, Icon: "☀"},
		ev.End: {TemperatureF: 80, Icon: "☁"},
	}}

	got := AnnotateWeather([]model.Event{ev}, resolver, true)

	require.Len(t, got, 1)
	assert.Equal(t, "65°F", got[0].WeatherText)
	assert.Equal(t, "80°F", got[0].WeatherEndText)
	assert.Equal(t, "☁", got[0].WeatherEndIcon)
}

func TestAnnotateWeatherExactHourBoundaryExcluded(t *testing.T) {
	start := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	ev := timedEvent("google", "Meeting", "Office", start, time.Hour)
	resolver := &stubWeatherResolver{byHour: map[time.Time]*model.WeatherAtTime{
		start:  {TemperatureF: 65, Icon: "☀"},
		ev.End: {TemperatureF: 80, Icon: "☁"},
	}}

	got := AnnotateWeather([]model.Event{ev}, resolver, true)

	// Exactly 60 minutes does not qualify for end weather.
	require.Len(t, got, 1)
	assert.Empty(t, got[0].WeatherEndText)
}

func TestAnnotateWeatherEndDisabled(t *testing.T) {
	start := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	ev := timedEvent("google", "Hike", "Trailhead", start, 3*time.Hour)
	resolver := &stubWeatherResolver{byHour: map[time.Time]*model.WeatherAtTime{
		start:  {TemperatureF: 65, Icon: "☀"},
		ev.End: {TemperatureF: 80, Icon: "☁"},
	}}

	got := AnnotateWeather([]model.Event{ev}, resolver, false)

	require.Len(t, got, 1)
	assert.Empty(t, got[0].WeatherEndText)
}

func TestAnnotateWeatherFailureLeavesEventIntact(t *testing.T) {
	start := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	ev := timedEvent("google", "Soccer", "Park", start, time.Hour)
	resolver := &stubWeatherResolver{err: errors.New("forecast unavailable")}

	got := AnnotateWeather([]model.Event{ev}, resolver, true)

	require.Len(t, got, 1)
	assert.Equal(t, "Soccer", got[0].Title)
	assert.Empty(t, got[0].WeatherText)
	assert.Empty(t, got[0].WeatherIcon)
}

func TestAnnotateWeatherSkipsAllDay(t *testing.T) {
	day := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	ev := model.Event{Title: "Holiday", AllDay: true, Start: day, End: day.AddDate(0, 0, 1)}
	resolver := &stubWeatherResolver{byHour: map[time.Time]*model.WeatherAtTime{
		day: {TemperatureF: 72, Icon: "☀"},
	}}

	got := AnnotateWeather([]model.Event{ev}, resolver, true)

	require.Len(t, got, 1)
	assert.Empty(t, got[0].WeatherText)
}

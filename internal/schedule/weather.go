package schedule

import (
	"fmt"
	"time"

	appLog "inkycal/internal/log"
	"inkycal/internal/model"
)

// endWeatherMinDuration is the event length above which end-of-event
// weather is looked up in addition to start weather.
const endWeatherMinDuration = 60 * time.Minute

// WeatherResolver produces a point forecast for a single instant. A nil
// forecast with a nil error means the requested hour is outside the
// forecast horizon.
type WeatherResolver interface {
	ForecastForTime(t time.Time) (*model.WeatherAtTime, error)
}

// AnnotateWeather attaches start-of-event weather to every timed event and,
// when includeEnd is set, end-of-event weather to events longer than an
// hour. Lookup failures are logged and leave the fields blank; the event is
// still included. All-day events are never annotated.
//
// Weather fields are deliberately excluded from the content signature:
// forecasts update independently of schedule content and must not trigger
// refresh thrashing on their own.
func AnnotateWeather(events []model.Event, resolver WeatherResolver, includeEnd bool) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.AllDay {
			out = append(out, ev)
			continue
		}

		annotated := ev
		if wx := lookupWeather(resolver, ev.Start, ev.Title, "start"); wx != nil {
			annotated.WeatherIcon = wx.Icon
			annotated.WeatherText = fmt.Sprintf("%d°F", wx.TemperatureF)
			annotated.WeatherTemperatureF = wx.TemperatureF
		}
		if includeEnd && ev.Duration() > endWeatherMinDuration {
			if wx := lookupWeather(resolver, ev.End, ev.Title, "end"); wx != nil {
				annotated.WeatherEndIcon = wx.Icon
				annotated.WeatherEndText = fmt.Sprintf("%d°F", wx.TemperatureF)
				annotated.WeatherEndTemperatureF = wx.TemperatureF
			}
		}
		out = append(out, annotated)
	}
	return out
}

func lookupWeather(resolver WeatherResolver, at time.Time, title, instant string) *model.WeatherAtTime {
	wx, err := resolver.ForecastForTime(at)
	if err != nil {
		appLog.Error("weather lookup failed", err, "event", title, "instant", instant)
		return nil
	}
	return wx
}

package weather

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"inkycal/internal/model"
)

const (
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultAlertsURL   = "https://api.weather.gov/alerts/active"
	defaultUserAgent   = "inkycal/1.0"
)

// iconForCode maps Open-Meteo WMO weather codes to glyphs. The set is kept
// to symbols present in DejaVuSans so icons render on the panel instead of
// tofu boxes.
func iconForCode(code int) string {
	switch code {
	case 0:
		return "☀"
	case 1, 2, 3:
		return "☁"
	case 45, 48:
		return "☁"
	case 51, 53, 55, 56, 57:
		return "☂"
	case 61, 63, 65, 66, 67, 80, 81, 82:
		return "☔"
	case 71, 73, 75, 77, 85, 86:
		return "❄"
	case 95, 96, 99:
		return "⚡"
	default:
		return "☁"
	}
}

// Resolver looks up hourly point forecasts (Open-Meteo) and active weather
// alerts (NWS) for a fixed coordinate. The hourly forecast response is
// fetched once per run and reused for every event, so annotating a full
// day costs a single request.
type Resolver struct {
	client      *http.Client
	forecastURL string
	alertsURL   string
	userAgent   string

	timezone  string
	latitude  float64
	longitude float64

	hourly map[string]hourlyPoint // hour key "2006-01-02T15:00" -> forecast
}

type hourlyPoint struct {
	temperatureF float64
	code         int
}

// Option adjusts a Resolver; used by tests to point at local servers.
type Option func(*Resolver)

// WithEndpoints overrides the forecast and alert base URLs.
func WithEndpoints(forecastURL, alertsURL string) Option {
	return func(r *Resolver) {
		r.forecastURL = forecastURL
		r.alertsURL = alertsURL
	}
}

// NewResolver creates a run-scoped resolver for one coordinate.
func NewResolver(timezone string, latitude, longitude float64, opts ...Option) *Resolver {
	r := &Resolver{
		client: &http.Client{
			Timeout: 6 * time.Second,
		},
		forecastURL: defaultForecastURL,
		alertsURL:   defaultAlertsURL,
		userAgent:   defaultUserAgent,
		timezone:    timezone,
		latitude:    latitude,
		longitude:   longitude,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ForecastForTime returns the forecast for the hour containing t, or nil
// when the hour is outside the fetched horizon. t must be timezone-aware by
// construction (Go times always carry a location); the hour key is built in
// the event's own zone, matching the timezone the forecast was requested in.
func (r *Resolver) ForecastForTime(t time.Time) (*model.WeatherAtTime, error) {
	if r.hourly == nil {
		if err := r.fetchHourly(); err != nil {
			return nil, err
		}
	}

	point, ok := r.hourly[t.Format("2006-01-02T15:00")]
	if !ok {
		return nil, nil
	}
	return &model.WeatherAtTime{
		TemperatureF: int(math.Round(point.temperatureF)),
		Icon:         iconForCode(point.code),
	}, nil
}

func (r *Resolver) fetchHourly() error {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", r.latitude))
	q.Set("longitude", fmt.Sprintf("%g", r.longitude))
	q.Set("hourly", "temperature_2m,weather_code")
	q.Set("temperature_unit", "fahrenheit")
	q.Set("timezone", r.timezone)
	q.Set("forecast_days", "3")

	var payload struct {
		Hourly struct {
			Time          []string  `json:"time"`
			Temperature2M []float64 `json:"temperature_2m"`
			WeatherCode   []int     `json:"weather_code"`
		} `json:"hourly"`
	}
	if err := r.getJSON(r.forecastURL+"?"+q.Encode(), &payload); err != nil {
		return err
	}

	h := payload.Hourly
	if len(h.Time) == 0 || len(h.Time) != len(h.Temperature2M) || len(h.Time) != len(h.WeatherCode) {
		return fmt.Errorf("weather: malformed hourly payload (%d/%d/%d entries)",
			len(h.Time), len(h.Temperature2M), len(h.WeatherCode))
	}

	r.hourly = make(map[string]hourlyPoint, len(h.Time))
	for i, ts := range h.Time {
		r.hourly[ts] = hourlyPoint{
			temperatureF: h.Temperature2M[i],
			code:         h.WeatherCode[i],
		}
	}
	return nil
}

// ActiveAlerts returns the headlines of active NWS alerts for the
// configured point. Failures surface as errors; the caller substitutes an
// empty list and continues.
func (r *Resolver) ActiveAlerts() ([]model.Alert, error) {
	q := url.Values{}
	q.Set("point", fmt.Sprintf("%g,%g", r.latitude, r.longitude))

	var payload struct {
		Features []struct {
			Properties struct {
				Headline string `json:"headline"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := r.getJSON(r.alertsURL+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	alerts := make([]model.Alert, 0, len(payload.Features))
	for _, f := range payload.Features {
		if f.Properties.Headline == "" {
			continue
		}
		alerts = append(alerts, model.Alert{Headline: f.Properties.Headline})
	}
	return alerts, nil
}

func (r *Resolver) getJSON(rawURL string, out any) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

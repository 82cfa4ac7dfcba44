package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkycal/internal/model"
)

func signatureFixture() SignatureInput {
	start := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	capacity := 85
	online := true
	return SignatureInput{
		HeaderDate: "Thursday, February 5, 2026",
		WifiStatus: "connected",
		UPS: model.UPSStatus{
			Present:  true,
			Status:   "Charging",
			Capacity: &capacity,
			Online:   &online,
		},
		AlertHeadlines: []string{"Dust Storm Warning"},
		Events: []model.Event{
			timedEvent("google", "Dentist", "200 Elm St", start, time.Hour),
		},
		TomorrowEvents: []model.Event{
			timedEvent("icloud", "Recital", "Concert Hall", start.AddDate(0, 0, 1), time.Hour),
		},
	}
}

func TestSignatureDeterministic(t *testing.T) {
	tz := time.UTC
	a := Signature(tz, signatureFixture())
	b := Signature(tz, signatureFixture())
	require.Len(t, a, 64)
	assert.Equal(t, a, b)
}

func TestSignatureIgnoresWeatherFields(t *testing.T) {
	tz := time.UTC
	base := signatureFixture()
	withWeather := signatureFixture()
	withWeather.Events[0].WeatherIcon = "☀"
	withWeather.Events[0].WeatherText = "72°F"
	withWeather.Events[0].WeatherTemperatureF = 72
	withWeather.Events[0].WeatherEndText = "80°F"

	assert.Equal(t, Signature(tz, base), Signature(tz, withWeather))
}

func TestSignatureSensitivity(t *testing.T) {
	tz := time.UTC
	base := Signature(tz, signatureFixture())

	mutations := map[string]func(*SignatureInput){
		"header date":   func(in *SignatureInput) { in.HeaderDate = "Friday, February 6, 2026" },
		"sleep banner":  func(in *SignatureInput) { in.SleepBanner = true },
		"wifi status":   func(in *SignatureInput) { in.WifiStatus = "disconnected" },
		"ups status":    func(in *SignatureInput) { in.UPS.Status = "Discharging" },
		"ups capacity":  func(in *SignatureInput) { in.UPS.Capacity = nil },
		"alert added":   func(in *SignatureInput) { in.AlertHeadlines = append(in.AlertHeadlines, "Flood Watch") },
		"event title":   func(in *SignatureInput) { in.Events[0].Title = "Dentist (moved)" },
		"event start":   func(in *SignatureInput) { in.Events[0].Start = in.Events[0].Start.Add(time.Minute) },
		"event loc":     func(in *SignatureInput) { in.Events[0].Location = "201 Elm St" },
		"travel text":   func(in *SignatureInput) { in.Events[0].TravelTimeText = "Travel: 15 min" },
		"tomorrow gone": func(in *SignatureInput) { in.TomorrowEvents = nil },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := signatureFixture()
			mutate(&in)
			assert.NotEqual(t, base, Signature(tz, in))
		})
	}
}

func TestSignatureHeadlineOrderIrrelevant(t *testing.T) {
	tz := time.UTC
	a := signatureFixture()
	a.AlertHeadlines = []string{"Flood Watch", "Dust Storm Warning"}
	b := signatureFixture()
	b.AlertHeadlines = []string{"Dust Storm Warning", "Flood Watch"}

	assert.Equal(t, Signature(tz, a), Signature(tz, b))
}

func TestSignatureIndependentOfSourceZone(t *testing.T) {
	phoenix := time.FixedZone("MST", -7*3600)
	in := signatureFixture()
	shifted := signatureFixture()
	for i := range shifted.Events {
		shifted.Events[i].Start = shifted.Events[i].Start.In(phoenix)
		shifted.Events[i].End = shifted.Events[i].End.In(phoenix)
	}

	// Same instants expressed in different zones hash identically because
	// times are rendered in the display zone.
	assert.Equal(t, Signature(phoenix, in), Signature(phoenix, shifted))
}

package model

import "time"

// SourceMerged marks synthetic events produced by the all-day summarizer.
const SourceMerged = "merged"

// Event is a single calendar occurrence as it flows through the pipeline.
// Events are value objects: each pipeline stage builds new Event values and
// never mutates its input slice.
type Event struct {
	// Source is the provider name ("google", "icloud") or SourceMerged.
	Source string

	Title string

	// Start / End are timezone-aware; End >= Start.
	Start time.Time
	End   time.Time

	AllDay bool

	// Location is the free-text event location, empty if absent.
	Location string

	// TravelTimeText is the display text set by the travel annotator
	// ("Travel: 12 min"), empty if no estimate was available.
	TravelTimeText string

	// Weather at the event start, populated by the weather annotator for
	// timed events. All-day events never carry weather or travel fields.
	WeatherIcon         string
	WeatherText         string
	WeatherTemperatureF int

	// Weather at the event end, only populated for events longer than an
	// hour when end-of-event weather is enabled.
	WeatherEndIcon         string
	WeatherEndText         string
	WeatherEndTemperatureF int
}

// Duration returns the event length.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// TravelEstimate is the outcome of a travel-time lookup.
type TravelEstimate struct {
	// Minutes is the estimated driving time, never negative.
	Minutes int
	// Text is the display form ("12 min").
	Text string
}

// WeatherAtTime is a point forecast for a single instant.
type WeatherAtTime struct {
	TemperatureF int
	// Icon is a single glyph from the DejaVu-safe set used on the panel.
	Icon string
}

// UPSStatus is the normalized view of the sysfs power-supply probe.
type UPSStatus struct {
	Present bool `json:"present"`
	// Status is the raw sysfs status string ("Discharging", "Charging", ...).
	Status string `json:"status"`
	// Capacity is the charge percentage, nil when unreadable.
	Capacity *int `json:"capacity"`
	// Online reports whether external power is applied, nil when unknown.
	Online *bool `json:"online"`
}

// Alert is a single active weather alert; only the headline reaches the
// renderer and the content signature.
type Alert struct {
	Headline string
}

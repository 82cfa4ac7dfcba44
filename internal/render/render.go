package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"inkycal/internal/model"
)

//go:embed schedule.html.tmpl
var scheduleTemplate string

// Input is everything the schedule page shows.
type Input struct {
	Now             time.Time
	TZ              *time.Location
	Events          []model.Event
	TomorrowEvents  []model.Event
	ShowSleepBanner bool
	SleepBannerText string
	WifiStatus      string
	UPS             model.UPSStatus
	AlertHeadlines  []string
	Width           int
	Height          int
}

// row is the template's view of one event line.
type row struct {
	TimeText    string
	Title       string
	Location    string
	TravelText  string
	WeatherText string
	AllDay      bool
}

type page struct {
	Width          int
	Height         int
	HeaderDate     string
	UpdatedText    string
	Rows           []row
	TomorrowRows   []row
	ShowBanner     bool
	BannerText     string
	WifiStatus     string
	UPSText        string
	AlertHeadlines []string
}

// HeaderDate formats the page header the way the signature expects it:
// "Thursday, February 5, 2026".
func HeaderDate(now time.Time, tz *time.Location) string {
	local := now.In(tz)
	return fmt.Sprintf("%s, %s %d, %d",
		local.Weekday(), local.Month(), local.Day(), local.Year())
}

func formatClock(t time.Time, tz *time.Location) string {
	return strings.ToLower(t.In(tz).Format("3:04 PM"))
}

func eventRow(e model.Event, tz *time.Location) row {
	r := row{
		Title:    e.Title,
		Location: strings.TrimSpace(e.Location),
		AllDay:   e.AllDay,
	}
	if e.AllDay {
		r.TimeText = "All day"
	} else {
		r.TimeText = formatClock(e.Start, tz) + "–" + formatClock(e.End, tz)
	}
	r.TravelText = e.TravelTimeText

	if e.WeatherIcon != "" {
		r.WeatherText = e.WeatherIcon + " " + e.WeatherText
		if e.WeatherEndIcon != "" {
			r.WeatherText += " → " + e.WeatherEndIcon + " " + e.WeatherEndText
		}
	}
	return r
}

func upsText(ups model.UPSStatus) string {
	if !ups.Present {
		return ""
	}
	parts := make([]string, 0, 3)
	if ups.Capacity != nil {
		parts = append(parts, fmt.Sprintf("UPS %d%%", *ups.Capacity))
	} else {
		parts = append(parts, "UPS")
	}
	if ups.Online != nil {
		if *ups.Online {
			parts = append(parts, "on power")
		} else {
			parts = append(parts, "on battery")
		}
	}
	return strings.Join(parts, " ")
}

// HTML renders the schedule page document.
func HTML(in Input) ([]byte, error) {
	tmpl, err := template.New("schedule").Parse(scheduleTemplate)
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}

	p := page{
		Width:          in.Width,
		Height:         in.Height,
		HeaderDate:     HeaderDate(in.Now, in.TZ),
		UpdatedText:    "Updated: " + formatClock(in.Now, in.TZ),
		ShowBanner:     in.ShowSleepBanner,
		BannerText:     in.SleepBannerText,
		WifiStatus:     in.WifiStatus,
		UPSText:        upsText(in.UPS),
		AlertHeadlines: in.AlertHeadlines,
	}
	for _, e := range in.Events {
		p.Rows = append(p.Rows, eventRow(e, in.TZ))
	}
	for _, e := range in.TomorrowEvents {
		p.TomorrowRows = append(p.TomorrowRows, eventRow(e, in.TZ))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render: execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteTempHTML writes the rendered document to a temp file and returns a
// file:// URL suitable for the capture step. The caller removes the file.
func WriteTempHTML(in Input) (fileURL string, path string, err error) {
	html, err := HTML(in)
	if err != nil {
		return "", "", err
	}

	f, err := os.CreateTemp("", "inkycal-*.html")
	if err != nil {
		return "", "", err
	}
	name := f.Name()
	if _, err := f.Write(html); err != nil {
		f.Close()
		os.Remove(name)
		return "", "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", "", err
	}

	abs, err := filepath.Abs(name)
	if err != nil {
		os.Remove(name)
		return "", "", err
	}
	return "file://" + abs, name, nil
}

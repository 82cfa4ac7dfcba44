package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	appLog "inkycal/internal/log"
	"inkycal/internal/model"
)

const (
	googleEventsURL = "https://www.googleapis.com/calendar/v3/calendars"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
)

// GoogleSource fetches events from the Google Calendar v3 REST API using a
// previously-authorized OAuth token file. The interactive consent flow is
// out of scope; the token file is produced elsewhere and only refreshed
// here.
type GoogleSource struct {
	httpClient  *http.Client
	eventsURL   string
	tokenURL    string
	calendarIDs []string
	tokenPath   string
	tz          *time.Location

	accessToken string
}

// NewGoogleSource creates a fetcher for the given calendar ids. tokenPath
// points at an authorized-user JSON file (client id/secret + refresh
// token).
func NewGoogleSource(calendarIDs []string, tokenPath string, tz *time.Location) *GoogleSource {
	return &GoogleSource{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		eventsURL:   googleEventsURL,
		tokenURL:    googleTokenURL,
		calendarIDs: calendarIDs,
		tokenPath:   tokenPath,
		tz:          tz,
	}
}

// Name implements the event source interface.
func (g *GoogleSource) Name() string { return "google" }

// authorizedUserToken is the stored-token file layout written by the
// provisioning flow (Google "authorized user" format).
type authorizedUserToken struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	Token        string `json:"token"`
	Expiry       string `json:"expiry"`
}

// FetchEvents lists events intersecting [start, end) across the configured
// calendars, with recurring events pre-expanded server-side.
func (g *GoogleSource) FetchEvents(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	if err := g.ensureToken(ctx); err != nil {
		return nil, err
	}

	events := make([]model.Event, 0)
	for _, calID := range g.calendarIDs {
		q := url.Values{}
		q.Set("timeMin", start.Format(time.RFC3339))
		q.Set("timeMax", end.Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")

		reqURL := fmt.Sprintf("%s/%s/events?%s", g.eventsURL, url.PathEscape(calID), q.Encode())

		var payload struct {
			Items []struct {
				Summary  string `json:"summary"`
				Location string `json:"location"`
				Start    struct {
					Date     string `json:"date"`
					DateTime string `json:"dateTime"`
				} `json:"start"`
				End struct {
					Date     string `json:"date"`
					DateTime string `json:"dateTime"`
				} `json:"end"`
			} `json:"items"`
		}
		if err := g.getJSON(ctx, reqURL, &payload); err != nil {
			return nil, fmt.Errorf("google: list %s: %w", calID, err)
		}

		for _, item := range payload.Items {
			ev, err := g.buildEvent(item.Summary, item.Location,
				item.Start.Date, item.Start.DateTime,
				item.End.Date, item.End.DateTime)
			if err != nil {
				appLog.Error("google event skipped", err, "calendar", calID)
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func (g *GoogleSource) buildEvent(summary, location, startDate, startDateTime, endDate, endDateTime string) (model.Event, error) {
	title := summary
	if strings.TrimSpace(title) == "" {
		title = "(No title)"
	}

	ev := model.Event{
		Source:   "google",
		Title:    title,
		Location: location,
	}

	// All-day events carry "date" instead of "dateTime".
	if startDate != "" {
		start, err := time.ParseInLocation("2006-01-02", startDate, g.tz)
		if err != nil {
			return model.Event{}, err
		}
		end, err := time.ParseInLocation("2006-01-02", endDate, g.tz)
		if err != nil {
			return model.Event{}, err
		}
		ev.Start, ev.End, ev.AllDay = start, end, true
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, startDateTime)
	if err != nil {
		return model.Event{}, err
	}
	end, err := time.Parse(time.RFC3339, endDateTime)
	if err != nil {
		return model.Event{}, err
	}
	ev.Start, ev.End = start.In(g.tz), end.In(g.tz)
	return ev, nil
}

// ensureToken loads the stored token and exchanges the refresh token for a
// fresh access token.
func (g *GoogleSource) ensureToken(ctx context.Context) error {
	if g.accessToken != "" {
		return nil
	}

	data, err := os.ReadFile(g.tokenPath)
	if err != nil {
		return fmt.Errorf("google: read token file: %w", err)
	}
	var tok authorizedUserToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return fmt.Errorf("google: parse token file: %w", err)
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("google: token file has no refresh_token")
	}

	form := url.Values{}
	form.Set("client_id", tok.ClientID)
	form.Set("client_secret", tok.ClientSecret)
	form.Set("refresh_token", tok.RefreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google: token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google: token refresh status %s", resp.Status)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("google: token refresh decode: %w", err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("google: token refresh returned no access token")
	}

	g.accessToken = body.AccessToken
	return nil
}

func (g *GoogleSource) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

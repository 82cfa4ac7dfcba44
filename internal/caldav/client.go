package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "inkycal/internal/log"
)

// DefaultBaseURL is the iCloud CalDAV endpoint.
const DefaultBaseURL = "https://caldav.icloud.com/"

// Calendar is one discovered remote calendar collection.
type Calendar struct {
	// Href is the collection path on the server.
	Href string
	// DisplayName is the user-visible calendar name used by allowlists.
	DisplayName string
}

// Client speaks the minimal CalDAV subset this system needs: principal and
// calendar discovery via PROPFIND, event retrieval via a time-ranged
// calendar-query REPORT. Authentication is HTTP basic with an app-specific
// password.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// NewClient creates a CalDAV client for the given account.
func NewClient(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
	}
}

// multistatus mirrors the DAV:multistatus envelope; only the pieces this
// client reads are declared.
type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string `xml:"status"`
	Prop   prop   `xml:"prop"`
}

type prop struct {
	DisplayName          string  `xml:"displayname"`
	CurrentUserPrincipal hrefSet `xml:"current-user-principal"`
	CalendarHomeSet      hrefSet `xml:"calendar-home-set"`
	ResourceType         restype `xml:"resourcetype"`
	CalendarData         string  `xml:"calendar-data"`
}

type hrefSet struct {
	Href string `xml:"href"`
}

type restype struct {
	Calendar *struct{} `xml:"calendar"`
}

// Calendars discovers the account's calendar collections: principal,
// calendar home, then the home's child collections filtered to calendars.
func (c *Client) Calendars(ctx context.Context) ([]Calendar, error) {
	principal, err := c.findPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("caldav: principal discovery: %w", err)
	}

	home, err := c.findCalendarHome(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("caldav: calendar-home discovery: %w", err)
	}

	ms, err := c.propfind(ctx, home, "1", `<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
  </d:prop>
</d:propfind>`)
	if err != nil {
		return nil, fmt.Errorf("caldav: calendar listing: %w", err)
	}

	calendars := make([]Calendar, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstats {
			if !strings.Contains(ps.Status, "200") {
				continue
			}
			if ps.Prop.ResourceType.Calendar == nil {
				continue
			}
			calendars = append(calendars, Calendar{
				Href:        resp.Href,
				DisplayName: ps.Prop.DisplayName,
			})
		}
	}

	appLog.Info("caldav calendars discovered", "count", len(calendars))
	return calendars, nil
}

func (c *Client) findPrincipal(ctx context.Context) (string, error) {
	ms, err := c.propfind(ctx, "/", "0", `<d:propfind xmlns:d="DAV:">
  <d:prop><d:current-user-principal/></d:prop>
</d:propfind>`)
	if err != nil {
		return "", err
	}
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstats {
			if href := ps.Prop.CurrentUserPrincipal.Href; href != "" {
				return href, nil
			}
		}
	}
	return "", fmt.Errorf("no current-user-principal in response")
}

func (c *Client) findCalendarHome(ctx context.Context, principal string) (string, error) {
	ms, err := c.propfind(ctx, principal, "0", `<d:propfind xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:prop><cal:calendar-home-set/></d:prop>
</d:propfind>`)
	if err != nil {
		return "", err
	}
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstats {
			if href := ps.Prop.CalendarHomeSet.Href; href != "" {
				return href, nil
			}
		}
	}
	return "", fmt.Errorf("no calendar-home-set in response")
}

// caldavTimeLayout is the UTC stamp format used in time-range filters.
const caldavTimeLayout = "20060102T150405Z"

// EventsICS runs a calendar-query REPORT against one calendar and returns
// the raw ICS payloads of every VEVENT resource intersecting [start, end).
func (c *Client) EventsICS(ctx context.Context, cal Calendar, start, end time.Time) ([][]byte, error) {
	body := fmt.Sprintf(`<cal:calendar-query xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <cal:calendar-data/>
  </d:prop>
  <cal:filter>
    <cal:comp-filter name="VCALENDAR">
      <cal:comp-filter name="VEVENT">
        <cal:time-range start="%s" end="%s"/>
      </cal:comp-filter>
    </cal:comp-filter>
  </cal:filter>
</cal:calendar-query>`,
		start.UTC().Format(caldavTimeLayout),
		end.UTC().Format(caldavTimeLayout),
	)

	ms, err := c.report(ctx, cal.Href, body)
	if err != nil {
		return nil, fmt.Errorf("caldav: calendar-query %s: %w", redactHref(cal.Href), err)
	}

	payloads := make([][]byte, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstats {
			if data := strings.TrimSpace(ps.Prop.CalendarData); data != "" {
				payloads = append(payloads, []byte(data))
			}
		}
	}
	return payloads, nil
}

func (c *Client) propfind(ctx context.Context, path, depth, body string) (*multistatus, error) {
	return c.davRequest(ctx, "PROPFIND", path, depth, body)
}

func (c *Client) report(ctx context.Context, path, body string) (*multistatus, error) {
	return c.davRequest(ctx, "REPORT", path, "1", body)
}

func (c *Client) davRequest(ctx context.Context, method, path, depth, body string) (*multistatus, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", depth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("parse multistatus: %w", err)
	}
	return &ms, nil
}

// resolve joins a server-relative href onto the base URL; hrefs that are
// already absolute pass through.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" || path == "/" {
		return c.baseURL + "/"
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// redactHref hides account-identifying path segments in logs.
func redactHref(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Path == "" {
		return "...(redacted)"
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return "...(redacted)"
	}
	return ".../" + parts[len(parts)-1]
}

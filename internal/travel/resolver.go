package travel

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	appLog "inkycal/internal/log"
	"inkycal/internal/model"
	"inkycal/internal/schedule"
)

const (
	defaultGeocodeURL = "https://nominatim.openstreetmap.org/search"
	defaultRouteURL   = "https://router.project-osrm.org/route/v1/driving"
	defaultUserAgent  = "inkycal/1.0"
)

// latLon is a geocoded coordinate pair.
type latLon struct {
	Lat float64
	Lon float64
}

// Resolver estimates driving time between two free-text addresses by
// geocoding them (Nominatim) and querying a routing service (OSRM).
//
// A Resolver is scoped to one run: its caches are plain maps with no
// eviction and no cross-run persistence. Lookups are memoized both by
// normalized address (geocoding) and by normalized origin/destination pair
// (routing), so repeated event locations cost one network round trip each.
// Estimate never returns an error; every internal failure collapses to nil.
type Resolver struct {
	client     *http.Client
	geocodeURL string
	routeURL   string
	userAgent  string

	geocodeCache  map[string]*latLon
	durationCache map[[2]string]*model.TravelEstimate
}

// Option adjusts a Resolver; used by tests to point at local servers.
type Option func(*Resolver)

// WithEndpoints overrides the geocoding and routing base URLs.
func WithEndpoints(geocodeURL, routeURL string) Option {
	return func(r *Resolver) {
		r.geocodeURL = geocodeURL
		r.routeURL = routeURL
	}
}

// NewResolver creates a run-scoped resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client: &http.Client{
			Timeout: 8 * time.Second,
		},
		geocodeURL:    defaultGeocodeURL,
		routeURL:      defaultRouteURL,
		userAgent:     defaultUserAgent,
		geocodeCache:  make(map[string]*latLon),
		durationCache: make(map[[2]string]*model.TravelEstimate),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Estimate resolves the driving time from origin to destination. It returns
// nil when either address is blank or unresolvable, when no route exists,
// or on any network failure. Identical origin and destination short-circuit
// to a zero-minute estimate without touching the network.
func (r *Resolver) Estimate(origin, destination string) *model.TravelEstimate {
	originNorm := schedule.Normalize(origin)
	destNorm := schedule.Normalize(destination)
	if originNorm == "" || destNorm == "" {
		return nil
	}

	cacheKey := [2]string{originNorm, destNorm}
	if est, ok := r.durationCache[cacheKey]; ok {
		return est
	}

	if originNorm == destNorm {
		est := &model.TravelEstimate{Minutes: 0, Text: "0 min"}
		r.durationCache[cacheKey] = est
		return est
	}

	from := r.geocode(originNorm)
	to := r.geocode(destNorm)
	if from == nil || to == nil {
		r.durationCache[cacheKey] = nil
		return nil
	}

	est := r.route(*from, *to)
	r.durationCache[cacheKey] = est
	return est
}

func (r *Resolver) geocode(address string) *latLon {
	if cached, ok := r.geocodeCache[address]; ok {
		return cached
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := r.getJSON(r.geocodeURL+"?"+q.Encode(), &results); err != nil {
		appLog.Error("travel geocode failed", err, "address", address)
		r.geocodeCache[address] = nil
		return nil
	}
	if len(results) == 0 {
		r.geocodeCache[address] = nil
		return nil
	}

	var pos latLon
	if _, err := fmt.Sscanf(results[0].Lat, "%f", &pos.Lat); err != nil {
		r.geocodeCache[address] = nil
		return nil
	}
	if _, err := fmt.Sscanf(results[0].Lon, "%f", &pos.Lon); err != nil {
		r.geocodeCache[address] = nil
		return nil
	}

	r.geocodeCache[address] = &pos
	return &pos
}

func (r *Resolver) route(from, to latLon) *model.TravelEstimate {
	// OSRM takes lon,lat ordering.
	u := fmt.Sprintf("%s/%f,%f;%f,%f?overview=false", r.routeURL, from.Lon, from.Lat, to.Lon, to.Lat)

	var payload struct {
		Routes []struct {
			Duration float64 `json:"duration"`
		} `json:"routes"`
	}
	if err := r.getJSON(u, &payload); err != nil {
		appLog.Error("travel route failed", err)
		return nil
	}
	if len(payload.Routes) == 0 {
		return nil
	}

	minutes := int(math.Round(payload.Routes[0].Duration / 60))
	if minutes < 1 {
		minutes = 1
	}
	return &model.TravelEstimate{
		Minutes: minutes,
		Text:    fmt.Sprintf("%d min", minutes),
	}
}

func (r *Resolver) getJSON(rawURL string, out any) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("travel: unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

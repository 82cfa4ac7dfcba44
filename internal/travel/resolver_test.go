package travel

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServers runs a fake Nominatim and OSRM pair and counts requests.
type testServers struct {
	geocode *httptest.Server
	route   *httptest.Server

	geocodeHits int
	routeHits   int
}

func newTestServers(t *testing.T, durationSeconds float64) *testServers {
	t.Helper()
	ts := &testServers{}

	coords := map[string]string{
		"100 home ln":   `[{"lat":"33.43","lon":"-112.35"}]`,
		"200 elm st":    `[{"lat":"33.50","lon":"-112.10"}]`,
		"nowhere place": `[]`,
	}

	ts.geocode = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.geocodeHits++
		body, ok := coords[r.URL.Query().Get("q")]
		if !ok {
			body = `[]`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.geocode.Close)

	ts.route = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.routeHits++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"routes":[{"duration":%f}]}`, durationSeconds)
	}))
	t.Cleanup(ts.route.Close)

	return ts
}

func (ts *testServers) resolver() *Resolver {
	return NewResolver(WithEndpoints(ts.geocode.URL, ts.route.URL))
}

func TestEstimateHappyPath(t *testing.T) {
	ts := newTestServers(t, 900) // 15 minutes
	r := ts.resolver()

	est := r.Estimate("100 Home Ln", "200 Elm St")
	require.NotNil(t, est)
	assert.Equal(t, 15, est.Minutes)
	assert.Equal(t, "15 min", est.Text)
}

func TestEstimateRoundsUpToOneMinute(t *testing.T) {
	ts := newTestServers(t, 10)
	r := ts.resolver()

	est := r.Estimate("100 Home Ln", "200 Elm St")
	require.NotNil(t, est)
	assert.Equal(t, 1, est.Minutes)
	assert.Equal(t, "1 min", est.Text)
}

func TestEstimateCachesByNormalizedPair(t *testing.T) {
	ts := newTestServers(t, 900)
	r := ts.resolver()

	first := r.Estimate("100 Home Ln", "200 Elm St")
	// Different spacing and case, same normalized pair: served from cache.
	second := r.Estimate("100  HOME  LN", "200 elm st")

	require.NotNil(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, ts.geocodeHits)
	assert.Equal(t, 1, ts.routeHits)
}

func TestEstimateSelfToSelfSkipsNetwork(t *testing.T) {
	ts := newTestServers(t, 900)
	r := ts.resolver()

	est := r.Estimate("100 Home Ln", "100 home  ln")
	require.NotNil(t, est)
	assert.Equal(t, 0, est.Minutes)
	assert.Equal(t, "0 min", est.Text)
	assert.Equal(t, 0, ts.geocodeHits)
	assert.Equal(t, 0, ts.routeHits)
}

func TestEstimateBlankAddresses(t *testing.T) {
	ts := newTestServers(t, 900)
	r := ts.resolver()

	assert.Nil(t, r.Estimate("", "200 Elm St"))
	assert.Nil(t, r.Estimate("100 Home Ln", "   "))
	assert.Equal(t, 0, ts.geocodeHits)
}

func TestEstimateUnresolvableAddress(t *testing.T) {
	ts := newTestServers(t, 900)
	r := ts.resolver()

	assert.Nil(t, r.Estimate("100 Home Ln", "Nowhere Place"))

	// The negative geocode result is cached too.
	geocodeHits := ts.geocodeHits
	assert.Nil(t, r.Estimate("100 Home Ln", "Nowhere Place"))
	assert.Equal(t, geocodeHits, ts.geocodeHits)
}

func TestEstimateServerFailure(t *testing.T) {
	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer geocode.Close()

	r := NewResolver(WithEndpoints(geocode.URL, geocode.URL))
	assert.Nil(t, r.Estimate("100 Home Ln", "200 Elm St"))
}

func TestEstimateNoRoute(t *testing.T) {
	ts := newTestServers(t, 0)
	route := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"routes":[]}`)
	}))
	defer route.Close()

	r := NewResolver(WithEndpoints(ts.geocode.URL, route.URL))
	assert.Nil(t, r.Estimate("100 Home Ln", "200 Elm St"))
}

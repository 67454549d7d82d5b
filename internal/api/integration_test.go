package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/randytsao24/bikefinder/internal/api"
	"github.com/randytsao24/bikefinder/internal/cache"
	"github.com/randytsao24/bikefinder/internal/finder"
	"github.com/randytsao24/bikefinder/internal/gbfs"
	"github.com/randytsao24/bikefinder/internal/location"
	"github.com/randytsao24/bikefinder/internal/models"
	"github.com/randytsao24/bikefinder/internal/routing"
)

// ---------------------------------------------------------------------------
// Mock providers
// ---------------------------------------------------------------------------

type mockGeocoder struct {
	loc   models.Location
	found bool
	err   error
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) (models.Location, bool, error) {
	return m.loc, m.found, m.err
}

type mockRouter struct {
	route models.Route
	found bool
	err   error
}

func (m *mockRouter) Route(ctx context.Context, origin, destination models.Coordinate, profile routing.Profile) (models.Route, bool, error) {
	return m.route, m.found, m.err
}

type mockCache struct {
	snap   *models.Snapshot
	err    error
	status cache.Status
}

func (m *mockCache) Get(ctx context.Context) (*models.Snapshot, error) {
	return m.snap, m.err
}

func (m *mockCache) Status() cache.Status { return m.status }

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var unionStation = models.Location{
	Coordinate:  models.Coordinate{Lat: 43.6453, Lon: -79.3806},
	DisplayName: "Union Station, Toronto",
}

func defaultGeocoder() *mockGeocoder {
	return &mockGeocoder{loc: unionStation, found: true}
}

func defaultRouter() *mockRouter {
	return &mockRouter{
		found: true,
		route: models.Route{
			Waypoints:       []models.Coordinate{unionStation.Coordinate, {Lat: 43.6470, Lon: -79.3806}},
			DurationMinutes: 2.4,
			DistanceMeters:  190,
		},
	}
}

func defaultCache(t *testing.T) *mockCache {
	t.Helper()
	fetchedAt := time.Now()
	snap, err := models.NewSnapshot([]models.Station{
		{ID: "7000", Name: "Front St W / Bay St", Lat: 43.6470, Lon: -79.3806, Capacity: 20, BikesMechanical: 6, DocksAvailable: 0},
		{ID: "7001", Name: "York St / Queens Quay", Lat: 43.6400, Lon: -79.3800, Capacity: 15, BikesEbike: 2, DocksAvailable: 9},
		{ID: "7002", Name: "King St W / Spadina", Lat: 43.6450, Lon: -79.3950, Capacity: 10},
	}, fetchedAt, time.Time{})
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return &mockCache{
		snap:   snap,
		status: cache.Status{HasSnapshot: true, Stations: 3, FetchedAt: fetchedAt, Age: 10 * time.Second},
	}
}

func newTestServer(t *testing.T, geo *mockGeocoder, router *mockRouter, c *mockCache) *httptest.Server {
	t.Helper()

	f := finder.New(geo, c, router, finder.Config{
		DefaultCity:    "Toronto",
		DefaultCountry: "Canada",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return httptest.NewServer(api.NewRouter(f, c))
}

func get(t *testing.T, server *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return m
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Errorf("status = %d, want %d", resp.StatusCode, want)
	}
}

func assertSuccess(t *testing.T, body map[string]any) {
	t.Helper()
	if body["success"] != true {
		t.Errorf("expected success=true, body: %v", body)
	}
}

func assertField(t *testing.T, body map[string]any, field string) {
	t.Helper()
	if _, ok := body[field]; !ok {
		t.Errorf("missing field %q in response: %v", field, body)
	}
}

func resultState(t *testing.T, body map[string]any) string {
	t.Helper()
	result, ok := body["result"].(map[string]any)
	if !ok {
		t.Fatalf("missing result in response: %v", body)
	}
	state, _ := result["state"].(string)
	return state
}

// ---------------------------------------------------------------------------
// Health & root
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	resp := get(t, srv, "/health")
	assertStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	assertField(t, body, "status")
	assertField(t, body, "uptime")
	assertField(t, body, "snapshot")

	if body["status"] != "OK" {
		t.Errorf("status = %v, want OK", body["status"])
	}
}

func TestHealthDegraded(t *testing.T) {
	c := defaultCache(t)
	c.status.LastError = "station_status: timeout"
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), c)
	defer srv.Close()

	body := decodeBody(t, get(t, srv, "/health"))
	if body["status"] != "DEGRADED" {
		t.Errorf("status = %v, want DEGRADED", body["status"])
	}
}

func TestAPIRoot(t *testing.T) {
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	resp := get(t, srv, "/api")
	assertStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	assertField(t, body, "endpoints")
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	resp := get(t, srv, "/bikes/rent")
	assertStatus(t, resp, http.StatusNotFound)
	assertField(t, decodeBody(t, resp), "error")
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/stations/nearest?street=65+Front+St+W", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}

	body := decodeBody(t, resp)
	result := body["result"].(map[string]any)
	if result["request_id"] != "abc-123" {
		t.Errorf("result.request_id = %v, want abc-123", result["request_id"])
	}
}

// ---------------------------------------------------------------------------
// Snapshot endpoints
// ---------------------------------------------------------------------------

func TestStations(t *testing.T) {
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	resp := get(t, srv, "/stations")
	assertStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	assertSuccess(t, body)
	assertField(t, body, "fetched_at")

	stations, ok := body["stations"].([]any)
	if !ok || len(stations) != 3 {
		t.Fatalf("expected 3 stations, got %v", body["stations"])
	}

	want := map[string]string{"7000": "good", "7001": "low", "7002": "empty"}
	for _, s := range stations {
		st := s.(map[string]any)
		id := st["station_id"].(string)
		if st["availability"] != want[id] {
			t.Errorf("station %s availability = %v, want %s", id, st["availability"], want[id])
		}
	}
}

func TestStationsSummary(t *testing.T) {
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	resp := get(t, srv, "/stations/summary")
	assertStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	assertSuccess(t, body)

	summary, ok := body["summary"].(map[string]any)
	if !ok {
		t.Fatal("summary should be an object")
	}
	if summary["bikes_available"] != float64(8) {
		t.Errorf("bikes_available = %v, want 8", summary["bikes_available"])
	}
	if summary["stations_with_free_docks"] != float64(1) {
		t.Errorf("stations_with_free_docks = %v, want 1", summary["stations_with_free_docks"])
	}
}

func TestStationsFeedErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"fetch error", &gbfs.FetchError{Feed: "station_status", Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{"stale data", &cache.StaleDataError{Age: time.Hour, Ceiling: 10 * time.Minute, Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, defaultGeocoder(), defaultRouter(), &mockCache{err: tc.err})
			defer srv.Close()

			resp := get(t, srv, "/stations")
			assertStatus(t, resp, tc.status)
			assertField(t, decodeBody(t, resp), "error")
		})
	}
}

func TestStationsNearby(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		count  int
	}{
		{"rent", "/stations/nearby?lat=43.6453&lng=-79.3806", http.StatusOK, 2},
		{"return", "/stations/nearby?lat=43.6453&lng=-79.3806&mode=return", http.StatusOK, 1},
		{"ebike only", "/stations/nearby?lat=43.6453&lng=-79.3806&types=ebike", http.StatusOK, 1},
		{"limit", "/stations/nearby?lat=43.6453&lng=-79.3806&limit=1", http.StatusOK, 1},
		{"missing lat", "/stations/nearby?lng=-79.3806", http.StatusBadRequest, 0},
		{"invalid lng", "/stations/nearby?lat=43.6453&lng=xyz", http.StatusBadRequest, 0},
		{"out of range", "/stations/nearby?lat=95&lng=-79.3806", http.StatusBadRequest, 0},
		{"bad mode", "/stations/nearby?lat=43.6453&lng=-79.3806&mode=steal", http.StatusBadRequest, 0},
		{"bad type", "/stations/nearby?lat=43.6453&lng=-79.3806&types=tandem", http.StatusBadRequest, 0},
	}

	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := get(t, srv, tc.path)
			assertStatus(t, resp, tc.status)
			body := decodeBody(t, resp)
			if tc.status != http.StatusOK {
				assertField(t, body, "error")
				return
			}
			if body["count"] != float64(tc.count) {
				t.Errorf("count = %v, want %d", body["count"], tc.count)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Rent / return requests
// ---------------------------------------------------------------------------

func TestNearestRent(t *testing.T) {
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	resp := get(t, srv, "/stations/nearest?street=65+Front+St+W&mode=rent")
	assertStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	assertSuccess(t, body)
	if state := resultState(t, body); state != "DONE" {
		t.Errorf("state = %s, want DONE", state)
	}

	result := body["result"].(map[string]any)
	candidate := result["candidate"].(map[string]any)
	station := candidate["station"].(map[string]any)
	if station["station_id"] != "7000" {
		t.Errorf("station = %v, want 7000", station["station_id"])
	}
	route := result["route"].(map[string]any)
	if route["duration_minutes"] != 2.4 {
		t.Errorf("duration_minutes = %v, want 2.4", route["duration_minutes"])
	}
}

func TestNearestRequiresStreet(t *testing.T) {
	srv := newTestServer(t, defaultGeocoder(), defaultRouter(), defaultCache(t))
	defer srv.Close()

	resp := get(t, srv, "/stations/nearest?mode=rent")
	assertStatus(t, resp, http.StatusBadRequest)

	body := decodeBody(t, resp)
	if body["error"] != "Please input your location." {
		t.Errorf("error = %v", body["error"])
	}
}

func TestNearestNotFoundOutcomes(t *testing.T) {
	empty, _ := models.NewSnapshot([]models.Station{
		{ID: "1", Lat: 43.65, Lon: -79.38},
	}, time.Now(), time.Time{})

	tests := []struct {
		name    string
		geo     *mockGeocoder
		router  *mockRouter
		cache   *mockCache
		path    string
		state   string
		message string
	}{
		{
			name:    "address not found",
			geo:     &mockGeocoder{found: false},
			router:  defaultRouter(),
			cache:   defaultCache(t),
			path:    "/stations/nearest?street=Nowhere",
			state:   "LOCATION_FAILED",
			message: "Invalid address. Please check your input.",
		},
		{
			name:    "no bikes",
			geo:     defaultGeocoder(),
			router:  defaultRouter(),
			cache:   &mockCache{snap: empty},
			path:    "/stations/nearest?street=x&mode=rent",
			state:   "NO_CANDIDATE",
			message: "No available bikes found at nearby stations.",
		},
		{
			name:    "no docks",
			geo:     defaultGeocoder(),
			router:  defaultRouter(),
			cache:   &mockCache{snap: empty},
			path:    "/stations/nearest?street=x&mode=return",
			state:   "NO_CANDIDATE",
			message: "No available docks found at nearby stations.",
		},
		{
			name:    "no route",
			geo:     defaultGeocoder(),
			router:  &mockRouter{found: false},
			cache:   defaultCache(t),
			path:    "/stations/nearest?street=x&drive=true",
			state:   "ROUTE_FAILED",
			message: "No route found to the nearest station.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, tc.geo, tc.router, tc.cache)
			defer srv.Close()

			resp := get(t, srv, tc.path)
			assertStatus(t, resp, http.StatusOK)

			body := decodeBody(t, resp)
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
			if state := resultState(t, body); state != tc.state {
				t.Errorf("state = %s, want %s", state, tc.state)
			}
			if body["message"] != tc.message {
				t.Errorf("message = %v, want %q", body["message"], tc.message)
			}
		})
	}
}

func TestNearestUpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		geo    *mockGeocoder
		router *mockRouter
		cache  *mockCache
		status int
	}{
		{
			name:   "geocoder down",
			geo:    &mockGeocoder{err: &location.GeocodeError{Query: "x", Err: errors.New("refused")}},
			router: defaultRouter(),
			cache:  defaultCache(t),
			status: http.StatusBadGateway,
		},
		{
			name:   "router down",
			geo:    defaultGeocoder(),
			router: &mockRouter{err: &routing.RouteError{Err: errors.New("refused")}},
			cache:  defaultCache(t),
			status: http.StatusBadGateway,
		},
		{
			name:   "feeds down",
			geo:    defaultGeocoder(),
			router: defaultRouter(),
			cache:  &mockCache{err: &gbfs.FetchError{Feed: "station_information", Err: errors.New("502")}},
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, tc.geo, tc.router, tc.cache)
			defer srv.Close()

			resp := get(t, srv, "/stations/nearest?street=x")
			assertStatus(t, resp, tc.status)

			body := decodeBody(t, resp)
			assertField(t, body, "error")
			assertField(t, body, "result")
		})
	}
}

func TestNearestFromCoords(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"valid coords", "/stations/nearest/coords?lat=43.6453&lng=-79.3806", http.StatusOK},
		{"return mode", "/stations/nearest/coords?lat=43.6453&lng=-79.3806&mode=return", http.StatusOK},
		{"missing lat", "/stations/nearest/coords?lng=-79.3806", http.StatusBadRequest},
		{"invalid lat", "/stations/nearest/coords?lat=abc&lng=-79.3806", http.StatusBadRequest},
		{"out of range", "/stations/nearest/coords?lat=43.6453&lng=-190", http.StatusBadRequest},
	}

	srv := newTestServer(t, &mockGeocoder{}, defaultRouter(), defaultCache(t))
	defer srv.Close()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := get(t, srv, tc.path)
			assertStatus(t, resp, tc.status)
			resp.Body.Close()
		})
	}
}

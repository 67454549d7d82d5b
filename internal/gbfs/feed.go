// Package gbfs fetches and merges GBFS station status and station information feeds
package gbfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randytsao24/bikefinder/internal/models"
)

// Toronto Bike Share feeds
const (
	DefaultStatusURL      = "https://tor.publicbikesystem.net/ube/gbfs/v1/en/station_status"
	DefaultInformationURL = "https://tor.publicbikesystem.net/ube/gbfs/v1/en/station_information"
)

const defaultTimeout = 5 * time.Second

// FetchError means the feeds could not produce a usable snapshot
type FetchError struct {
	Feed string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Feed == "" {
		return fmt.Sprintf("fetching station feeds: %v", e.Err)
	}
	return fmt.Sprintf("fetching %s feed: %v", e.Feed, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves both GBFS feeds and joins them into a Snapshot.
// It holds no state between calls.
type Fetcher struct {
	statusURL      string
	informationURL string
	client         *http.Client
	timeout        time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithTimeout bounds each feed request
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithClock sets the clock used to stamp snapshots
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithLogger sets the logger for join diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher for the given status and information URLs
func NewFetcher(statusURL, informationURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		statusURL:      statusURL,
		informationURL: informationURL,
		client:         &http.Client{},
		timeout:        defaultTimeout,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// StatusURL identifies the live feed this fetcher reads
func (f *Fetcher) StatusURL() string {
	return f.statusURL
}

// FetchSnapshot retrieves both feeds concurrently and inner-joins them on station id
func (f *Fetcher) FetchSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var (
		status      statusFeed
		information informationFeed
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := f.fetchJSON(gctx, f.statusURL, &status); err != nil {
			return &FetchError{Feed: "station_status", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := f.fetchJSON(gctx, f.informationURL, &information); err != nil {
			return &FetchError{Feed: "station_information", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	live, err := status.byID()
	if err != nil {
		return nil, &FetchError{Feed: "station_status", Err: err}
	}
	static, err := information.byID()
	if err != nil {
		return nil, &FetchError{Feed: "station_information", Err: err}
	}

	stations, stats := join(live, static)
	if stats.missingInfo > 0 || stats.missingStatus > 0 || stats.invalid > 0 {
		f.logger.Warn("station feed join dropped entries",
			"live", len(live),
			"static", len(static),
			"missing_information", stats.missingInfo,
			"missing_status", stats.missingStatus,
			"invalid", stats.invalid,
		)
	}
	if len(stations) == 0 {
		return nil, &FetchError{Err: fmt.Errorf("no stations survived the join (live=%d, static=%d)", len(live), len(static))}
	}

	var sourceUpdated time.Time
	if status.LastUpdated > 0 {
		sourceUpdated = time.Unix(status.LastUpdated, 0).UTC()
	}

	snap, err := models.NewSnapshot(stations, f.now(), sourceUpdated)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	return snap, nil
}

func (f *Fetcher) fetchJSON(ctx context.Context, url string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

type joinStats struct {
	missingInfo   int
	missingStatus int
	invalid       int
}

// join keeps only stations present in both feeds
func join(live map[string]statusStation, static map[string]infoStation) ([]models.Station, joinStats) {
	var stats joinStats
	stations := make([]models.Station, 0, len(live))

	for id, st := range live {
		info, ok := static[id]
		if !ok {
			stats.missingInfo++
			continue
		}

		mechanical, ebike := st.bikeCounts()
		station, err := models.NewStation(models.Station{
			ID:              id,
			Name:            info.Name,
			Lat:             info.Lat,
			Lon:             info.Lon,
			Capacity:        info.Capacity,
			BikesMechanical: mechanical,
			BikesEbike:      ebike,
			DocksAvailable:  st.NumDocksAvailable,
		})
		if err != nil {
			stats.invalid++
			continue
		}
		stations = append(stations, station)
	}

	for id := range static {
		if _, ok := live[id]; !ok {
			stats.missingStatus++
		}
	}

	return stations, stats
}

// stationID accepts both "7000" and 7000
type stationID string

func (s *stationID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = stationID(str)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("station_id: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("station_id: %w", err)
	}
	*s = stationID(n.String())
	return nil
}

// API response structures
type statusFeed struct {
	LastUpdated int64 `json:"last_updated"`
	Data        struct {
		Stations []statusStation `json:"stations"`
	} `json:"data"`
}

type statusStation struct {
	StationID             stationID `json:"station_id"`
	NumBikesAvailable     int       `json:"num_bikes_available"`
	NumBikesAvailableType *struct {
		Mechanical int `json:"mechanical"`
		Ebike      int `json:"ebike"`
	} `json:"num_bikes_available_types"`
	NumDocksAvailable int `json:"num_docks_available"`
}

// bikeCounts splits available bikes by type; feeds without the breakdown
// count everything as mechanical
func (s statusStation) bikeCounts() (mechanical, ebike int) {
	if s.NumBikesAvailableType == nil {
		return s.NumBikesAvailable, 0
	}
	return s.NumBikesAvailableType.Mechanical, s.NumBikesAvailableType.Ebike
}

func (f statusFeed) byID() (map[string]statusStation, error) {
	out := make(map[string]statusStation, len(f.Data.Stations))
	for _, st := range f.Data.Stations {
		id := string(st.StationID)
		if id == "" {
			return nil, fmt.Errorf("station entry without station_id")
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("duplicate station_id %s", id)
		}
		out[id] = st
	}
	return out, nil
}

type informationFeed struct {
	Data struct {
		Stations []infoStation `json:"stations"`
	} `json:"data"`
}

type infoStation struct {
	StationID stationID `json:"station_id"`
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Capacity  int       `json:"capacity"`
}

func (f informationFeed) byID() (map[string]infoStation, error) {
	out := make(map[string]infoStation, len(f.Data.Stations))
	for _, st := range f.Data.Stations {
		id := string(st.StationID)
		if id == "" {
			return nil, fmt.Errorf("station entry without station_id")
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("duplicate station_id %s", id)
		}
		out[id] = st
	}
	return out, nil
}

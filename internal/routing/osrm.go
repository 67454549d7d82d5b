// Package routing requests travel paths from an OSRM server
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/randytsao24/bikefinder/internal/models"
)

const DefaultBaseURL = "https://router.project-osrm.org"

// Profile is an OSRM travel profile
type Profile string

const (
	ProfileFoot    Profile = "foot"
	ProfileBike    Profile = "bike"
	ProfileDriving Profile = "driving"
)

// RouteError is a transport or protocol failure. A path that does not exist
// is reported as a no-route result, not a RouteError.
type RouteError struct {
	Code string
	Err  error
}

func (e *RouteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("routing failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("routing failed: %v", e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

// Client calls the OSRM route service
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an OSRM client whose requests are bounded by timeout
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// OSRM response format
type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the fastest path between origin and destination.
// The bool is false when OSRM reports that no route exists.
func (c *Client) Route(ctx context.Context, origin, destination models.Coordinate, profile Profile) (models.Route, bool, error) {
	if profile == "" {
		profile = ProfileFoot
	}

	url := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		c.baseURL, profile, origin.Lon, origin.Lat, destination.Lon, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Route{}, false, &RouteError{Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Route{}, false, &RouteError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Route{}, false, &RouteError{Err: fmt.Errorf("reading response: %w", err)}
	}

	// OSRM reports NoRoute with a 400 status and a JSON body, so decode first
	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.Route{}, false, &RouteError{Err: fmt.Errorf("OSRM returned %d: %w", resp.StatusCode, err)}
	}

	switch parsed.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return models.Route{}, false, nil
	default:
		return models.Route{}, false, &RouteError{
			Code: parsed.Code,
			Err:  fmt.Errorf("OSRM returned %d: %s", resp.StatusCode, parsed.Message),
		}
	}

	if len(parsed.Routes) == 0 {
		return models.Route{}, false, nil
	}

	best := parsed.Routes[0]
	waypoints := make([]models.Coordinate, 0, len(best.Geometry.Coordinates))
	for _, pair := range best.Geometry.Coordinates {
		if len(pair) < 2 {
			return models.Route{}, false, &RouteError{Code: parsed.Code, Err: fmt.Errorf("malformed geometry point %v", pair)}
		}
		waypoints = append(waypoints, models.Coordinate{Lon: pair[0], Lat: pair[1]})
	}

	return models.Route{
		Waypoints:       waypoints,
		DurationMinutes: RoundMinutes(best.Duration),
		DistanceMeters:  best.Distance,
	}, true, nil
}

// RoundMinutes converts seconds to minutes with one decimal place
func RoundMinutes(seconds float64) float64 {
	return math.Round(seconds/60*10) / 10
}

// ProfileFor picks the travel profile for a request: walking to a bike when
// renting, riding when returning, or driving when the user says so
func ProfileFor(mode models.Mode, driving bool) Profile {
	switch {
	case driving:
		return ProfileDriving
	case mode == models.ModeReturn:
		return ProfileBike
	default:
		return ProfileFoot
	}
}

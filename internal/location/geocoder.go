// Package location handles geocoding, distances and station selection
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/randytsao24/bikefinder/internal/models"
)

const DefaultGeocoderURL = "https://nominatim.openstreetmap.org"

// GeocodeError is a transport or decoding failure talking to the geocoder.
// An address that simply does not resolve is not an error.
type GeocodeError struct {
	Query string
	Err   error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("geocoding %q: %v", e.Query, e.Err)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

// Geocoder resolves free-text addresses with a Nominatim-compatible search API
type Geocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewGeocoder creates a geocoder client. Nominatim's usage policy requires
// an identifying User-Agent.
func NewGeocoder(baseURL, userAgent string, timeout time.Duration) *Geocoder {
	if baseURL == "" {
		baseURL = DefaultGeocoderURL
	}
	return &Geocoder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// nominatimResult is the subset of a /search result we read
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode looks up an address. It returns false when nothing matches.
func (g *Geocoder) Geocode(ctx context.Context, address string) (models.Location, bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Location{}, false, nil
	}

	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return models.Location{}, false, &GeocodeError{Query: address, Err: err}
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return models.Location{}, false, &GeocodeError{Query: address, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Location{}, false, &GeocodeError{
			Query: address,
			Err:   fmt.Errorf("geocoder returned status %d", resp.StatusCode),
		}
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return models.Location{}, false, &GeocodeError{Query: address, Err: fmt.Errorf("parsing response: %w", err)}
	}

	if len(results) == 0 {
		return models.Location{}, false, nil
	}

	first := results[0]
	lat, err := strconv.ParseFloat(first.Lat, 64)
	if err != nil {
		return models.Location{}, false, &GeocodeError{Query: address, Err: fmt.Errorf("parsing lat: %w", err)}
	}
	lon, err := strconv.ParseFloat(first.Lon, 64)
	if err != nil {
		return models.Location{}, false, &GeocodeError{Query: address, Err: fmt.Errorf("parsing lon: %w", err)}
	}

	coord := models.Coordinate{Lat: lat, Lon: lon}
	if err := ValidateCoordinate(coord); err != nil {
		return models.Location{}, false, &GeocodeError{Query: address, Err: err}
	}

	return models.Location{Coordinate: coord, DisplayName: first.DisplayName}, true, nil
}

// ComposeAddress joins street, city and country the way the search box does,
// falling back to the given defaults for blank city or country.
func ComposeAddress(street, city, country, defaultCity, defaultCountry string) string {
	street = strings.TrimSpace(street)
	if street == "" {
		return ""
	}
	city = strings.TrimSpace(city)
	if city == "" {
		city = defaultCity
	}
	country = strings.TrimSpace(country)
	if country == "" {
		country = defaultCountry
	}

	parts := []string{street}
	for _, p := range []string{city, country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

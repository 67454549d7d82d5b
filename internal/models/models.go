// Package models defines shared data types
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Mode is the operation a user wants to perform at a station
type Mode string

const (
	ModeRent   Mode = "rent"
	ModeReturn Mode = "return"
)

// ParseMode accepts "rent" or "return" in any case
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRent:
		return ModeRent, nil
	case ModeReturn:
		return ModeReturn, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// BikeType is a kind of bike a station can hold
type BikeType string

const (
	BikeMechanical BikeType = "mechanical"
	BikeEbike      BikeType = "ebike"
)

// ParseBikeTypes parses a comma-separated list such as "ebike,mechanical".
// An empty string means any type.
func ParseBikeTypes(s string) ([]BikeType, error) {
	var types []BikeType
	seen := make(map[BikeType]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		bt := BikeType(part)
		if bt != BikeMechanical && bt != BikeEbike {
			return nil, fmt.Errorf("unknown bike type %q", part)
		}
		if !seen[bt] {
			seen[bt] = true
			types = append(types, bt)
		}
	}
	return types, nil
}

// Coordinate is a WGS84 lat/lon pair in degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a geocoded user position
type Location struct {
	Coordinate
	DisplayName string `json:"display_name,omitempty"`
}

// Station is one bike share station, merged from the live and static feeds.
// Build it with NewStation; a Station is never modified after construction.
type Station struct {
	ID              string  `json:"station_id"`
	Name            string  `json:"name"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	Capacity        int     `json:"capacity"`
	BikesMechanical int     `json:"bikes_mechanical"`
	BikesEbike      int     `json:"bikes_ebike"`
	DocksAvailable  int     `json:"docks_available"`
}

// NewStation validates and returns a Station
func NewStation(s Station) (Station, error) {
	if s.ID == "" {
		return Station{}, errors.New("station id is empty")
	}
	if s.BikesMechanical < 0 || s.BikesEbike < 0 || s.DocksAvailable < 0 || s.Capacity < 0 {
		return Station{}, fmt.Errorf("station %s: negative count", s.ID)
	}
	if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
		return Station{}, fmt.Errorf("station %s: coordinate out of range (%f, %f)", s.ID, s.Lat, s.Lon)
	}
	return s, nil
}

// BikesTotal is mechanical plus e-bikes
func (s Station) BikesTotal() int {
	return s.BikesMechanical + s.BikesEbike
}

// BikesOfType returns the count for a single bike type
func (s Station) BikesOfType(t BikeType) int {
	switch t {
	case BikeMechanical:
		return s.BikesMechanical
	case BikeEbike:
		return s.BikesEbike
	}
	return 0
}

// Coordinate returns the station position
func (s Station) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lon: s.Lon}
}

// Availability buckets a station by how many bikes it has, for map colouring
type Availability string

const (
	AvailabilityEmpty Availability = "empty"
	AvailabilityLow   Availability = "low"
	AvailabilityGood  Availability = "good"
)

const lowAvailabilityLimit = 5

// Availability returns the station's bike availability tier
func (s Station) Availability() Availability {
	switch total := s.BikesTotal(); {
	case total == 0:
		return AvailabilityEmpty
	case total < lowAvailabilityLimit:
		return AvailabilityLow
	default:
		return AvailabilityGood
	}
}

// Snapshot is a point-in-time set of stations. It is immutable: the cache
// replaces a Snapshot wholesale and never edits one in place.
type Snapshot struct {
	stations        []Station
	index           map[string]int
	fetchedAt       time.Time
	sourceUpdatedAt time.Time
}

// NewSnapshot builds a Snapshot, rejecting duplicate station ids.
// Stations are stored sorted by id.
func NewSnapshot(stations []Station, fetchedAt, sourceUpdatedAt time.Time) (*Snapshot, error) {
	sorted := make([]Station, len(stations))
	copy(sorted, stations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	index := make(map[string]int, len(sorted))
	for i, st := range sorted {
		if _, dup := index[st.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %s", st.ID)
		}
		index[st.ID] = i
	}

	return &Snapshot{
		stations:        sorted,
		index:           index,
		fetchedAt:       fetchedAt,
		sourceUpdatedAt: sourceUpdatedAt,
	}, nil
}

// Stations returns a copy of the stations, sorted by id
func (s *Snapshot) Stations() []Station {
	if s == nil {
		return nil
	}
	out := make([]Station, len(s.stations))
	copy(out, s.stations)
	return out
}

// Station looks up a station by id
func (s *Snapshot) Station(id string) (Station, bool) {
	if s == nil {
		return Station{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return Station{}, false
	}
	return s.stations[i], true
}

// Len returns the number of stations
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.stations)
}

// FetchedAt is when the feeds were retrieved
func (s *Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}

// SourceUpdatedAt is the feed's own last_updated stamp, zero if not reported
func (s *Snapshot) SourceUpdatedAt() time.Time {
	return s.sourceUpdatedAt
}

// Summary aggregates system-wide availability
type Summary struct {
	Stations              int `json:"stations"`
	BikesAvailable        int `json:"bikes_available"`
	EbikesAvailable       int `json:"ebikes_available"`
	StationsWithBikes     int `json:"stations_with_bikes"`
	StationsWithEbikes    int `json:"stations_with_ebikes"`
	StationsWithFreeDocks int `json:"stations_with_free_docks"`
}

// Summary computes the dashboard totals for the snapshot
func (s *Snapshot) Summary() Summary {
	var sum Summary
	if s == nil {
		return sum
	}
	sum.Stations = len(s.stations)
	for _, st := range s.stations {
		sum.BikesAvailable += st.BikesTotal()
		sum.EbikesAvailable += st.BikesEbike
		if st.BikesTotal() > 0 {
			sum.StationsWithBikes++
		}
		if st.BikesEbike > 0 {
			sum.StationsWithEbikes++
		}
		if st.DocksAvailable > 0 {
			sum.StationsWithFreeDocks++
		}
	}
	return sum
}

// Candidate is the station chosen for a request and its straight-line distance
type Candidate struct {
	Station        Station `json:"station"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Route is a travel path to a station
type Route struct {
	Waypoints       []Coordinate `json:"waypoints"`
	DurationMinutes float64      `json:"duration_minutes"`
	DistanceMeters  float64      `json:"distance_meters"`
}

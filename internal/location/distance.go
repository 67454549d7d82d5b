package location

import (
	"fmt"
	"math"

	"github.com/randytsao24/bikefinder/internal/models"
)

const earthRadiusMeters = 6371000

// InvalidLocationError reports a coordinate outside the WGS84 domain
type InvalidLocationError struct {
	Lat, Lon float64
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("invalid location (%f, %f): latitude must be within [-90, 90] and longitude within [-180, 180]", e.Lat, e.Lon)
}

// ValidateCoordinate fails with *InvalidLocationError for out-of-range or NaN values
func ValidateCoordinate(c models.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) ||
		c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return &InvalidLocationError{Lat: c.Lat, Lon: c.Lon}
	}
	return nil
}

// Haversine calculates the great-circle distance in meters between two points
func Haversine(a, b models.Coordinate) float64 {
	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLng := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	// rounding can push h a hair past 1 for antipodal points
	h = math.Min(1, h)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

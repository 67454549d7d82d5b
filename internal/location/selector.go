package location

import (
	"sort"

	"github.com/randytsao24/bikefinder/internal/models"
)

// Select returns the nearest station that can serve the request.
//
// For ModeRent a station needs at least one bike, and when types is non-empty
// at least one bike of a requested type. For ModeReturn it needs a free dock.
// Equidistant stations are ordered by station id. The bool is false when no
// station qualifies, which is a normal outcome rather than an error.
func Select(loc models.Coordinate, snap *models.Snapshot, mode models.Mode, types []models.BikeType) (models.Candidate, bool, error) {
	if err := ValidateCoordinate(loc); err != nil {
		return models.Candidate{}, false, err
	}

	var (
		best  models.Candidate
		found bool
	)

	for _, st := range snap.Stations() {
		if !viable(st, mode, types) {
			continue
		}

		dist := Haversine(loc, st.Coordinate())
		if !found || dist < best.DistanceMeters ||
			(dist == best.DistanceMeters && st.ID < best.Station.ID) {
			best = models.Candidate{Station: st, DistanceMeters: dist}
			found = true
		}
	}

	return best, found, nil
}

// FindClosest returns up to limit viable stations ordered by distance, then id
func FindClosest(loc models.Coordinate, snap *models.Snapshot, mode models.Mode, types []models.BikeType, limit int) ([]models.Candidate, error) {
	if err := ValidateCoordinate(loc); err != nil {
		return nil, err
	}

	var results []models.Candidate
	for _, st := range snap.Stations() {
		if !viable(st, mode, types) {
			continue
		}
		results = append(results, models.Candidate{
			Station:        st,
			DistanceMeters: Haversine(loc, st.Coordinate()),
		})
	}

	sortCandidates(results)

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func viable(st models.Station, mode models.Mode, types []models.BikeType) bool {
	switch mode {
	case models.ModeRent:
		if st.BikesTotal() == 0 {
			return false
		}
		if len(types) == 0 {
			return true
		}
		for _, t := range types {
			if st.BikesOfType(t) > 0 {
				return true
			}
		}
		return false
	case models.ModeReturn:
		return st.DocksAvailable > 0
	}
	return false
}

func sortCandidates(c []models.Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].DistanceMeters != c[j].DistanceMeters {
			return c[i].DistanceMeters < c[j].DistanceMeters
		}
		return c[i].Station.ID < c[j].Station.ID
	})
}

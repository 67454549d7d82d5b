package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/randytsao24/bikefinder/internal/finder"
	"github.com/randytsao24/bikefinder/internal/location"
	"github.com/randytsao24/bikefinder/internal/models"
)

const (
	defaultNearbyLimit = 5
	maxNearbyLimit     = 20
)

type StationHandler struct {
	finder    StationFinder
	snapshots SnapshotProvider
}

func NewStationHandler(f StationFinder, snapshots SnapshotProvider) *StationHandler {
	return &StationHandler{
		finder:    f,
		snapshots: snapshots,
	}
}

// stationView adds derived fields for map markers
type stationView struct {
	models.Station
	BikesTotal   int                 `json:"bikes_total"`
	Availability models.Availability `json:"availability"`
}

func newStationView(st models.Station) stationView {
	return stationView{
		Station:      st,
		BikesTotal:   st.BikesTotal(),
		Availability: st.Availability(),
	}
}

// GetStations returns every station in the current snapshot
func (h *StationHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Get(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}

	stations := snap.Stations()
	views := make([]stationView, len(stations))
	for i, st := range stations {
		views[i] = newStationView(st)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"count":      len(views),
		"fetched_at": snap.FetchedAt(),
		"stations":   views,
	})
}

// GetSummary returns system-wide availability totals
func (h *StationHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Get(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"fetched_at": snap.FetchedAt(),
		"summary":    snap.Summary(),
	})
}

// GetNearby lists the closest viable stations to lat/lng coordinates
func (h *StationHandler) GetNearby(w http.ResponseWriter, r *http.Request) {
	coord, ok := parseCoordinate(w, r)
	if !ok {
		return
	}
	req, ok := parseRequest(w, r)
	if !ok {
		return
	}
	limit := parseIntParam(r, "limit", defaultNearbyLimit, 1, maxNearbyLimit)

	snap, err := h.snapshots.Get(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}

	candidates, err := location.FindClosest(coord, snap, req.Mode, req.BikeTypes, limit)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"mode":     req.Mode,
		"location": coord,
		"count":    len(candidates),
		"stations": candidates,
	})
}

// GetNearest geocodes an address and routes to the best station
func (h *StationHandler) GetNearest(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	req.Street = strings.TrimSpace(q.Get("street"))
	req.City = q.Get("city")
	req.Country = q.Get("country")

	if req.Street == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Please input your location.",
			"message": "street query parameter is required",
		})
		return
	}

	res, err := h.finder.Find(r.Context(), req)
	writeResult(w, req, res, err)
}

// GetNearestFromCoords routes from lat/lng coordinates, skipping geocoding
func (h *StationHandler) GetNearestFromCoords(w http.ResponseWriter, r *http.Request) {
	coord, ok := parseCoordinate(w, r)
	if !ok {
		return
	}
	req, ok := parseRequest(w, r)
	if !ok {
		return
	}

	res, err := h.finder.FindFrom(r.Context(), coord, req)
	writeResult(w, req, res, err)
}

func writeResult(w http.ResponseWriter, req finder.Request, res finder.Result, err error) {
	if err != nil {
		writeError(w, err, map[string]any{"result": res})
		return
	}

	body := map[string]any{
		"success": res.State == finder.StateDone,
		"result":  res,
	}
	if msg := stateMessage(res.State, req.Mode); msg != "" {
		body["message"] = msg
	}
	writeJSON(w, http.StatusOK, body)
}

// stateMessage explains a not-found terminal state to the user
func stateMessage(s finder.State, mode models.Mode) string {
	switch s {
	case finder.StateLocationFailed:
		return "Invalid address. Please check your input."
	case finder.StateNoCandidate:
		if mode == models.ModeReturn {
			return "No available docks found at nearby stations."
		}
		return "No available bikes found at nearby stations."
	case finder.StateRouteFailed:
		return "No route found to the nearest station."
	}
	return ""
}

// parseRequest reads mode, types and drive. Mode defaults to rent.
func parseRequest(w http.ResponseWriter, r *http.Request) (finder.Request, bool) {
	q := r.URL.Query()

	mode := models.ModeRent
	if m := q.Get("mode"); m != "" {
		parsed, err := models.ParseMode(m)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Invalid mode parameter",
				"message": "mode must be rent or return",
			})
			return finder.Request{}, false
		}
		mode = parsed
	}

	types, err := models.ParseBikeTypes(q.Get("types"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid types parameter",
			"message": err.Error(),
		})
		return finder.Request{}, false
	}

	return finder.Request{
		Mode:      mode,
		BikeTypes: types,
		Driving:   parseBoolParam(r, "drive"),
	}, true
}

func parseCoordinate(w http.ResponseWriter, r *http.Request) (models.Coordinate, bool) {
	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")

	if latStr == "" || lngStr == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "lat and lng query parameters are required",
		})
		return models.Coordinate{}, false
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid lat parameter",
		})
		return models.Coordinate{}, false
	}

	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid lng parameter",
		})
		return models.Coordinate{}, false
	}

	return models.Coordinate{Lat: lat, Lon: lng}, true
}

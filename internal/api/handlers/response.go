package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/randytsao24/bikefinder/internal/cache"
	"github.com/randytsao24/bikefinder/internal/gbfs"
	"github.com/randytsao24/bikefinder/internal/location"
	"github.com/randytsao24/bikefinder/internal/routing"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

// errorStatus maps engine errors to an HTTP status and a message safe to show users
func errorStatus(err error) (int, string) {
	var (
		invalid *location.InvalidLocationError
		stale   *cache.StaleDataError
		fetch   *gbfs.FetchError
		geocode *location.GeocodeError
		route   *routing.RouteError
	)

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "Invalid location. Please check your input."
	case errors.As(err, &stale):
		return http.StatusServiceUnavailable, "Bike share data is out of date. Please try again later."
	case errors.As(err, &fetch):
		return http.StatusServiceUnavailable, "Unable to fetch bike share data. Please try again later."
	case errors.As(err, &geocode):
		return http.StatusBadGateway, "The address lookup service is unavailable. Please try again later."
	case errors.As(err, &route):
		return http.StatusBadGateway, "The routing service is unavailable. Please try again later."
	}
	return http.StatusInternalServerError, "An unexpected error occurred. Please try again later."
}

func writeError(w http.ResponseWriter, err error, extra map[string]any) {
	status, message := errorStatus(err)
	body := map[string]any{
		"error":   message,
		"message": err.Error(),
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}

	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func parseBoolParam(r *http.Request, name string) bool {
	val, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && val
}

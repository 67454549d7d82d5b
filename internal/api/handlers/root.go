package handlers

import (
	"net/http"
)

type RootHandler struct{}

func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

func (h *RootHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "bikefinder",
		"description": "Find the closest bike share station with a bike or a free dock",
		"version":     "1.0.0",
		"endpoints": map[string]string{
			"GET /api":                     "API information",
			"GET /health":                  "Health check with snapshot age",
			"GET /stations":                "All stations with availability",
			"GET /stations/summary":        "System-wide bike and dock totals",
			"GET /stations/nearby":         "Closest viable stations to ?lat=&lng=",
			"GET /stations/nearest":        "Route to the best station for ?street=&city=&country=&mode=&types=&drive=",
			"GET /stations/nearest/coords": "Route to the best station from ?lat=&lng=",
		},
	})
}

func (h *RootHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":   "Route not found",
		"message": "Check the /api endpoint for available routes",
	})
}

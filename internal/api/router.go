package api

import (
	"net/http"
	"time"

	"github.com/randytsao24/bikefinder/internal/api/handlers"
)

// requestTimeout covers a geocode, a possible snapshot refresh and a route
const requestTimeout = 30 * time.Second

// SnapshotCache is the snapshot source and health reporter the router serves from
type SnapshotCache interface {
	handlers.SnapshotProvider
	handlers.StatusProvider
}

// NewRouter creates and configures the HTTP router with all routes and middleware
func NewRouter(finder handlers.StationFinder, snapshots SnapshotCache) http.Handler {
	mux := http.NewServeMux()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(snapshots)
	rootHandler := handlers.NewRootHandler()
	stationHandler := handlers.NewStationHandler(finder, snapshots)

	// Core routes
	mux.HandleFunc("GET /{$}", rootHandler.Index)
	mux.HandleFunc("GET /api", rootHandler.Index)
	mux.HandleFunc("GET /health", healthHandler.Health)

	// Station snapshot routes
	mux.HandleFunc("GET /stations", stationHandler.GetStations)
	mux.HandleFunc("GET /stations/summary", stationHandler.GetSummary)
	mux.HandleFunc("GET /stations/nearby", stationHandler.GetNearby)

	// Rent / return requests
	mux.HandleFunc("GET /stations/nearest", stationHandler.GetNearest)
	mux.HandleFunc("GET /stations/nearest/coords", stationHandler.GetNearestFromCoords)

	mux.HandleFunc("/", rootHandler.NotFound)

	// Apply middleware stack
	handler := Chain(mux,
		Recovery,
		RequestID,
		Logging,
		CORS,
		Timeout(requestTimeout),
	)

	return handler
}

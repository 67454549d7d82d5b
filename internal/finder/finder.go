// Package finder runs a single rent or return request from address to route
package finder

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randytsao24/bikefinder/internal/location"
	"github.com/randytsao24/bikefinder/internal/models"
	"github.com/randytsao24/bikefinder/internal/routing"
)

// State is a step of the request state machine
type State string

const (
	StateIdle              State = "IDLE"
	StateAwaitingLocation  State = "AWAITING_LOCATION"
	StateLocationResolved  State = "LOCATION_RESOLVED"
	StateLocationFailed    State = "LOCATION_FAILED"
	StateCandidateSelected State = "CANDIDATE_SELECTED"
	StateNoCandidate       State = "NO_CANDIDATE"
	StateRouted            State = "ROUTED"
	StateRouteFailed       State = "ROUTE_FAILED"
	StateDone              State = "DONE"
)

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	switch s {
	case StateLocationFailed, StateNoCandidate, StateRouteFailed, StateDone:
		return true
	}
	return false
}

// Geocoder resolves addresses
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Location, bool, error)
}

// SnapshotSource supplies the current station snapshot
type SnapshotSource interface {
	Get(ctx context.Context) (*models.Snapshot, error)
}

// Router computes travel paths
type Router interface {
	Route(ctx context.Context, origin, destination models.Coordinate, profile routing.Profile) (models.Route, bool, error)
}

// Request is one user interaction
type Request struct {
	Street    string
	City      string
	Country   string
	Mode      models.Mode
	BikeTypes []models.BikeType
	Driving   bool
}

// Result is where a request ended up
type Result struct {
	RequestID string            `json:"request_id"`
	State     State             `json:"state"`
	Trace     []State           `json:"trace"`
	Address   string            `json:"address,omitempty"`
	Location  *models.Location  `json:"location,omitempty"`
	Candidate *models.Candidate `json:"candidate,omitempty"`
	Route     *models.Route     `json:"route,omitempty"`
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id for log correlation
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached to ctx, or a new one
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

// Finder wires the engine components together
type Finder struct {
	geocoder       Geocoder
	snapshots      SnapshotSource
	router         Router
	defaultCity    string
	defaultCountry string
	logger         *slog.Logger
}

// Config holds the address defaults used when a request leaves them blank
type Config struct {
	DefaultCity    string
	DefaultCountry string
	Logger         *slog.Logger
}

// New creates a Finder
func New(geocoder Geocoder, snapshots SnapshotSource, router Router, cfg Config) *Finder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		geocoder:       geocoder,
		snapshots:      snapshots,
		router:         router,
		defaultCity:    cfg.DefaultCity,
		defaultCountry: cfg.DefaultCountry,
		logger:         logger,
	}
}

// Find runs the request from IDLE to a terminal state. Not-found outcomes end
// in LOCATION_FAILED, NO_CANDIDATE or ROUTE_FAILED with a nil error; transport
// failures end in the matching state and are returned as well.
func (f *Finder) Find(ctx context.Context, req Request) (Result, error) {
	res := Result{RequestID: RequestID(ctx)}
	res.enter(StateIdle)

	res.Address = location.ComposeAddress(req.Street, req.City, req.Country, f.defaultCity, f.defaultCountry)
	res.enter(StateAwaitingLocation)

	loc, ok, err := f.geocoder.Geocode(ctx, res.Address)
	if err != nil || !ok {
		res.enter(StateLocationFailed)
		return f.finish(res, err)
	}
	res.Location = &loc
	res.enter(StateLocationResolved)

	return f.fromLocation(ctx, res, loc.Coordinate, req)
}

// FindFrom runs the request from an already known coordinate, skipping geocoding
func (f *Finder) FindFrom(ctx context.Context, coord models.Coordinate, req Request) (Result, error) {
	res := Result{RequestID: RequestID(ctx)}
	res.enter(StateIdle)
	res.enter(StateAwaitingLocation)

	if err := location.ValidateCoordinate(coord); err != nil {
		res.enter(StateLocationFailed)
		return f.finish(res, err)
	}
	res.Location = &models.Location{Coordinate: coord}
	res.enter(StateLocationResolved)

	return f.fromLocation(ctx, res, coord, req)
}

func (f *Finder) fromLocation(ctx context.Context, res Result, coord models.Coordinate, req Request) (Result, error) {
	snap, err := f.snapshots.Get(ctx)
	if err != nil {
		res.enter(StateNoCandidate)
		return f.finish(res, err)
	}

	candidate, ok, err := location.Select(coord, snap, req.Mode, req.BikeTypes)
	if err != nil || !ok {
		res.enter(StateNoCandidate)
		return f.finish(res, err)
	}
	res.Candidate = &candidate
	res.enter(StateCandidateSelected)

	route, ok, err := f.router.Route(ctx, coord, candidate.Station.Coordinate(), routing.ProfileFor(req.Mode, req.Driving))
	if err != nil || !ok {
		res.enter(StateRouteFailed)
		return f.finish(res, err)
	}
	res.Route = &route
	res.enter(StateRouted)

	res.enter(StateDone)
	return f.finish(res, nil)
}

func (f *Finder) finish(res Result, err error) (Result, error) {
	attrs := []any{
		"request_id", res.RequestID,
		"state", string(res.State),
	}
	if res.Candidate != nil {
		attrs = append(attrs, "station_id", res.Candidate.Station.ID, "distance_meters", res.Candidate.DistanceMeters)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
		f.logger.Warn("station request failed", attrs...)
	} else {
		f.logger.Info("station request finished", attrs...)
	}
	return res, err
}

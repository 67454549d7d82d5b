package handlers

import (
	"context"

	"github.com/randytsao24/bikefinder/internal/cache"
	"github.com/randytsao24/bikefinder/internal/finder"
	"github.com/randytsao24/bikefinder/internal/models"
)

// StationFinder runs rent and return requests.
type StationFinder interface {
	Find(ctx context.Context, req finder.Request) (finder.Result, error)
	FindFrom(ctx context.Context, coord models.Coordinate, req finder.Request) (finder.Result, error)
}

// SnapshotProvider abstracts the station snapshot source for testability.
type SnapshotProvider interface {
	Get(ctx context.Context) (*models.Snapshot, error)
}

// StatusProvider reports the snapshot cache state.
type StatusProvider interface {
	Status() cache.Status
}

package trip

import (
	"context"

	"github.com/tripforge/tripforge-backend/types"
)

// FieldRegistrar receives field observations emitted by trip mutations. Both
// the in-process registry and the redis-backed registry store satisfy it.
type FieldRegistrar interface {
	RegisterObservations(ctx context.Context, observations []types.FieldObservation, sourceDocumentID string) error
	IncrementTotalTrips(ctx context.Context) (int64, error)
}

// MergeDetector scores a trip against a pool of same-traveler trips.
type MergeDetector interface {
	Detect(target *types.Trip, pool []*types.Trip) []types.MergeCandidate
}

// Package store defines the persistence interfaces for the trip aggregation
// core. Implementations must honor compare-and-swap semantics on trip
// versions; the aggregate relies on the store to reject stale writes.
package store

import (
	"context"
	"time"

	"github.com/tripforge/tripforge-backend/types"
)

// TripStore handles trip persistence. All methods return copies; callers may
// mutate results freely.
type TripStore interface {
	// CreateTrip persists a new trip. Returns ErrAlreadyExists if the id is
	// taken.
	CreateTrip(ctx context.Context, trip *types.Trip) error

	// GetTrip returns the trip or ErrNotFound.
	GetTrip(ctx context.Context, id string) (*types.Trip, error)

	// UpdateTrip commits trip conditioned on the stored version still being
	// expectedVersion (compare-and-swap). Returns ErrVersionConflict when the
	// condition fails; the stored trip is left untouched.
	UpdateTrip(ctx context.Context, trip *types.Trip, expectedVersion int) error

	// ReplaceMergeCandidates swaps the candidate list wholesale and bumps
	// updated_at without touching the version.
	ReplaceMergeCandidates(ctx context.Context, id string, candidates []types.MergeCandidate, updatedAt time.Time) error

	// ListByTraveler returns the traveler's trips ordered by start date,
	// optionally filtered to trips starting at or after startDateFrom.
	ListByTraveler(ctx context.Context, travelerID string, startDateFrom *time.Time) ([]*types.Trip, error)

	// ListByStatus returns trips in the given status, optionally filtered to
	// trips updated at or after updatedSince.
	ListByStatus(ctx context.Context, status types.TripStatus, updatedSince *time.Time) ([]*types.Trip, error)

	// ListByOrigin returns trips with the given origin type ordered by
	// ascending confidence, optionally capped at maxConfidence. Used to queue
	// low-confidence derived trips for review.
	ListByOrigin(ctx context.Context, originType types.OriginType, maxConfidence *float64) ([]*types.Trip, error)

	// ListMergePool returns the same-traveler trips a merge detection run
	// scores against, excluding the target trip itself.
	ListMergePool(ctx context.Context, travelerID string, excludeTripID string) ([]*types.Trip, error)
}

// RegistryStore is the field-registry backend behind both registration and
// the schema read endpoints: the in-process catalog in a single-process
// deployment, the shared Redis catalog when workers fan out. Reads may be
// slightly stale.
type RegistryStore interface {
	Register(ctx context.Context, path string, value any, sourceDocumentID string) (types.FieldEntry, error)
	RegisterObservations(ctx context.Context, observations []types.FieldObservation, sourceDocumentID string) error
	IncrementTotalTrips(ctx context.Context) (int64, error)
	Summary(ctx context.Context) (types.SchemaSummary, error)
	SuggestIndexes(ctx context.Context) ([]string, error)
	FieldsByNamespace(ctx context.Context, namespace string) ([]types.FieldEntry, error)
	ExportSchema(ctx context.Context) (map[string]types.FieldEntry, error)
}

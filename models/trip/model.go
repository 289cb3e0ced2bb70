package trip

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/tripforge/tripforge-backend/errors"
	"github.com/tripforge/tripforge-backend/internal/store"
	"github.com/tripforge/tripforge-backend/logger"
	"github.com/tripforge/tripforge-backend/types"
)

// TripModel coordinates the aggregate with its collaborators: the trip store
// (compare-and-swap commits), the field registry (observation forwarding) and
// the merge detector (candidate scoring for derived trips).
type TripModel struct {
	store     store.TripStore
	registrar FieldRegistrar
	detector  MergeDetector
}

func NewTripModel(tripStore store.TripStore, registrar FieldRegistrar, detector MergeDetector) *TripModel {
	return &TripModel{
		store:     tripStore,
		registrar: registrar,
		detector:  detector,
	}
}

// CreateTrip validates and persists a new trip, forwards its flattened fields
// to the registry, and — for derived trips — runs merge detection against the
// traveler's other trips.
func (tm *TripModel) CreateTrip(ctx context.Context, in CreateInput) (*types.Trip, error) {
	log := logger.GetLogger()

	newTrip, err := Create(in)
	if err != nil {
		return nil, err
	}

	if err := tm.store.CreateTrip(ctx, newTrip); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	getMetrics().tripsCreated.Inc()
	log.Infow("Trip created",
		"tripID", newTrip.ID,
		"travelerEmail", logger.MaskEmail(newTrip.Traveler.Email),
		"originType", newTrip.OriginType,
	)

	tm.forwardObservations(ctx, newTrip, FlattenFields(newTrip), true)

	if newTrip.OriginType == types.OriginDerived && tm.detector != nil {
		candidates, recordedAt, err := tm.detectAndRecord(ctx, newTrip)
		if err != nil {
			return nil, err
		}
		newTrip = RecordMergeCandidates(newTrip, candidates, recordedAt)
	}

	return newTrip, nil
}

// UpdateTrip applies an optimistic-concurrency delta. The commit is a
// conditional write on the caller's base version; a stale token surfaces as a
// ConflictError and the stored trip is untouched. No retry happens here —
// re-reading and resubmitting is the caller's call.
func (tm *TripModel) UpdateTrip(ctx context.Context, tripID string, upd Update) (*types.Trip, error) {
	current, err := tm.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	updated, observations, err := ApplyUpdate(current, upd)
	if err != nil {
		if apperrors.IsConflict(err) {
			getMetrics().versionConflicts.Inc()
		}
		return nil, err
	}

	if err := tm.store.UpdateTrip(ctx, updated, upd.BaseVersion); err != nil {
		switch {
		case errors.Is(err, store.ErrVersionConflict):
			getMetrics().versionConflicts.Inc()
			// The conditional write lost a race after our read; re-read so the
			// conflict reports the version the caller must rebase onto.
			latest := current.Version
			if fresh, readErr := tm.store.GetTrip(ctx, tripID); readErr == nil {
				latest = fresh.Version
			}
			return nil, apperrors.VersionConflict(tripID, upd.BaseVersion, latest)
		case errors.Is(err, store.ErrNotFound):
			return nil, apperrors.NotFound("Trip", tripID)
		default:
			return nil, apperrors.NewDatabaseError(err)
		}
	}
	getMetrics().tripsUpdated.Inc()

	tm.forwardObservations(ctx, updated, observations, false)
	return updated, nil
}

// AddExtension is sugar over UpdateTrip restricted to a single namespace.
func (tm *TripModel) AddExtension(ctx context.Context, tripID string, namespace string, value types.Extension, baseVersion int, doc types.SourceDocument) (*types.Trip, error) {
	return tm.UpdateTrip(ctx, tripID, Update{
		BaseVersion:    baseVersion,
		Extensions:     map[string]types.Extension{namespace: value},
		SourceDocument: doc,
	})
}

// RecordMergeCandidates atomically replaces the candidate list on the stored
// trip. Candidates are derived metadata: updated_at moves to at, the version
// does not.
func (tm *TripModel) RecordMergeCandidates(ctx context.Context, tripID string, candidates []types.MergeCandidate, at time.Time) error {
	err := tm.store.ReplaceMergeCandidates(ctx, tripID, candidates, at)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NotFound("Trip", tripID)
	default:
		return apperrors.NewDatabaseError(err)
	}
}

// DetectMergeCandidates runs the detector for an existing trip on demand and
// records the result.
func (tm *TripModel) DetectMergeCandidates(ctx context.Context, tripID string) ([]types.MergeCandidate, error) {
	target, err := tm.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	candidates, _, err := tm.detectAndRecord(ctx, target)
	return candidates, err
}

// GetTrip returns the stored trip.
func (tm *TripModel) GetTrip(ctx context.Context, tripID string) (*types.Trip, error) {
	return tm.getTrip(ctx, tripID)
}

// ListByTraveler returns the traveler's trips ordered by start date.
func (tm *TripModel) ListByTraveler(ctx context.Context, travelerID string, startDateFrom *time.Time) ([]*types.Trip, error) {
	trips, err := tm.store.ListByTraveler(ctx, travelerID, startDateFrom)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return trips, nil
}

// ListByStatus returns trips in the given status.
func (tm *TripModel) ListByStatus(ctx context.Context, status types.TripStatus, updatedSince *time.Time) ([]*types.Trip, error) {
	if !status.IsValid() {
		return nil, apperrors.ValidationFailed("Invalid trip status", string(status))
	}
	trips, err := tm.store.ListByStatus(ctx, status, updatedSince)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return trips, nil
}

// ListByOrigin returns trips of the given origin type ordered by ascending
// confidence, optionally capped at maxConfidence. Derived trips below a
// confidence ceiling are the review queue for merge decisions.
func (tm *TripModel) ListByOrigin(ctx context.Context, originType types.OriginType, maxConfidence *float64) ([]*types.Trip, error) {
	if !originType.IsValid() {
		return nil, apperrors.ValidationFailed("Invalid origin type", string(originType))
	}
	if maxConfidence != nil && (*maxConfidence < 0 || *maxConfidence > 1) {
		return nil, apperrors.ValidationFailed("Invalid confidence ceiling",
			"max_confidence must be in [0.0, 1.0]")
	}
	trips, err := tm.store.ListByOrigin(ctx, originType, maxConfidence)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return trips, nil
}

func (tm *TripModel) getTrip(ctx context.Context, tripID string) (*types.Trip, error) {
	trip, err := tm.store.GetTrip(ctx, tripID)
	switch {
	case err == nil:
		return trip, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, apperrors.NotFound("Trip", tripID)
	default:
		return nil, apperrors.NewDatabaseError(err)
	}
}

func (tm *TripModel) detectAndRecord(ctx context.Context, target *types.Trip) ([]types.MergeCandidate, time.Time, error) {
	pool, err := tm.store.ListMergePool(ctx, target.Traveler.ID, target.ID)
	if err != nil {
		return nil, time.Time{}, apperrors.NewDatabaseError(err)
	}

	candidates := tm.detector.Detect(target, pool)
	getMetrics().mergeDetections.Inc()

	recordedAt := time.Now().UTC()
	if err := tm.RecordMergeCandidates(ctx, target.ID, candidates, recordedAt); err != nil {
		return nil, time.Time{}, err
	}
	return candidates, recordedAt, nil
}

// forwardObservations pushes field observations to the registry. The registry
// is advisory, eventually consistent state: a registration failure is logged,
// never propagated, and never unwinds a committed trip write.
func (tm *TripModel) forwardObservations(ctx context.Context, t *types.Trip, observations []types.FieldObservation, newTrip bool) {
	if tm.registrar == nil {
		return
	}
	log := logger.GetLogger()

	if newTrip {
		if _, err := tm.registrar.IncrementTotalTrips(ctx); err != nil {
			log.Warnw("Failed to bump registry trip counter", "tripID", t.ID, "error", err)
		}
	}

	documentID := ""
	if n := len(t.SourceDocuments); n > 0 {
		documentID = t.SourceDocuments[n-1].DocumentID
	}
	if err := tm.registrar.RegisterObservations(ctx, observations, documentID); err != nil {
		log.Warnw("Failed to register field observations", "tripID", t.ID, "error", err)
	}
}

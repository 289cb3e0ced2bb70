package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tripforge/tripforge-backend/internal/store"
	"github.com/tripforge/tripforge-backend/logger"
	"github.com/tripforge/tripforge-backend/types"
)

// TripDB persists trips as a JSONB document plus the indexed columns backing
// the traveler+start_date, status+updated_at and origin_type+trip_confidence
// queries. Updates are conditional on the stored version column — the
// compare-and-swap that enforces optimistic concurrency across processes.
type TripDB struct {
	db DBTX
}

var _ store.TripStore = (*TripDB)(nil)

func NewTripDB(db DBTX) *TripDB {
	return &TripDB{db: db}
}

func (tdb *TripDB) CreateTrip(ctx context.Context, trip *types.Trip) error {
	log := logger.GetLogger()

	doc, err := json.Marshal(trip)
	if err != nil {
		return fmt.Errorf("marshaling trip %s: %w", trip.ID, err)
	}

	tag, err := tdb.db.Exec(ctx, `
        INSERT INTO trips (
            id, traveler_id, status, origin_type, trip_confidence,
            start_date, end_date, version, updated_at, doc
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO NOTHING`,
		trip.ID,
		trip.Traveler.ID,
		string(trip.Status),
		string(trip.OriginType),
		trip.TripConfidence,
		trip.StartDate,
		trip.EndDate,
		trip.Version,
		trip.UpdatedAt,
		doc,
	)
	if err != nil {
		log.Errorw("Failed to create trip", "tripID", trip.ID, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %s: %w", trip.ID, store.ErrAlreadyExists)
	}
	return nil
}

func (tdb *TripDB) GetTrip(ctx context.Context, id string) (*types.Trip, error) {
	var doc []byte
	err := tdb.db.QueryRow(ctx, `SELECT doc FROM trips WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trip %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeTrip(doc)
}

// UpdateTrip writes the new document only if the stored version still equals
// expectedVersion. Zero rows affected means the token was stale (or the trip
// is gone); the stored row is left exactly as it was.
func (tdb *TripDB) UpdateTrip(ctx context.Context, trip *types.Trip, expectedVersion int) error {
	doc, err := json.Marshal(trip)
	if err != nil {
		return fmt.Errorf("marshaling trip %s: %w", trip.ID, err)
	}

	tag, err := tdb.db.Exec(ctx, `
        UPDATE trips
        SET status = $1, origin_type = $2, trip_confidence = $3,
            start_date = $4, end_date = $5, version = $6, updated_at = $7, doc = $8
        WHERE id = $9 AND version = $10`,
		string(trip.Status),
		string(trip.OriginType),
		trip.TripConfidence,
		trip.StartDate,
		trip.EndDate,
		trip.Version,
		trip.UpdatedAt,
		doc,
		trip.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current int
		err := tdb.db.QueryRow(ctx, `SELECT version FROM trips WHERE id = $1`, trip.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("trip %s: %w", trip.ID, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("trip %s at version %d, expected %d: %w",
			trip.ID, current, expectedVersion, store.ErrVersionConflict)
	}
	return nil
}

func (tdb *TripDB) ReplaceMergeCandidates(ctx context.Context, id string, candidates []types.MergeCandidate, updatedAt time.Time) error {
	if candidates == nil {
		candidates = []types.MergeCandidate{}
	}
	payload, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("marshaling merge candidates for trip %s: %w", id, err)
	}

	tag, err := tdb.db.Exec(ctx, `
        UPDATE trips
        SET doc = jsonb_set(jsonb_set(doc, '{merge_candidates}', $1::jsonb), '{updated_at}', to_jsonb($2::timestamptz)),
            updated_at = $2
        WHERE id = $3`,
		payload,
		updatedAt,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (tdb *TripDB) ListByTraveler(ctx context.Context, travelerID string, startDateFrom *time.Time) ([]*types.Trip, error) {
	if startDateFrom != nil {
		return tdb.queryTrips(ctx, `
            SELECT doc FROM trips
            WHERE traveler_id = $1 AND start_date >= $2
            ORDER BY start_date, id`, travelerID, *startDateFrom)
	}
	return tdb.queryTrips(ctx, `
        SELECT doc FROM trips
        WHERE traveler_id = $1
        ORDER BY start_date, id`, travelerID)
}

func (tdb *TripDB) ListByStatus(ctx context.Context, status types.TripStatus, updatedSince *time.Time) ([]*types.Trip, error) {
	if updatedSince != nil {
		return tdb.queryTrips(ctx, `
            SELECT doc FROM trips
            WHERE status = $1 AND updated_at >= $2
            ORDER BY updated_at, id`, string(status), *updatedSince)
	}
	return tdb.queryTrips(ctx, `
        SELECT doc FROM trips
        WHERE status = $1
        ORDER BY updated_at, id`, string(status))
}

func (tdb *TripDB) ListByOrigin(ctx context.Context, originType types.OriginType, maxConfidence *float64) ([]*types.Trip, error) {
	if maxConfidence != nil {
		return tdb.queryTrips(ctx, `
            SELECT doc FROM trips
            WHERE origin_type = $1 AND trip_confidence <= $2
            ORDER BY trip_confidence, id`, string(originType), *maxConfidence)
	}
	return tdb.queryTrips(ctx, `
        SELECT doc FROM trips
        WHERE origin_type = $1
        ORDER BY trip_confidence, id`, string(originType))
}

func (tdb *TripDB) ListMergePool(ctx context.Context, travelerID string, excludeTripID string) ([]*types.Trip, error) {
	return tdb.queryTrips(ctx, `
        SELECT doc FROM trips
        WHERE traveler_id = $1 AND id <> $2
        ORDER BY start_date, id`, travelerID, excludeTripID)
}

func (tdb *TripDB) queryTrips(ctx context.Context, sql string, args ...any) ([]*types.Trip, error) {
	rows, err := tdb.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*types.Trip
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		trip, err := decodeTrip(doc)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

func decodeTrip(doc []byte) (*types.Trip, error) {
	var trip types.Trip
	if err := json.Unmarshal(doc, &trip); err != nil {
		return nil, fmt.Errorf("unmarshaling trip document: %w", err)
	}
	return &trip, nil
}

// Package memory provides an in-memory TripStore with the same
// compare-and-swap semantics as the postgres store. Used in tests and for
// single-process deployments without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tripforge/tripforge-backend/internal/store"
	"github.com/tripforge/tripforge-backend/types"
)

// TripStore keeps trips in a map guarded by a RWMutex. Every trip crossing
// the boundary is deep-cloned so callers can never reach shared state.
type TripStore struct {
	mu    sync.RWMutex
	trips map[string]*types.Trip
}

var _ store.TripStore = (*TripStore)(nil)

func NewTripStore() *TripStore {
	return &TripStore{trips: make(map[string]*types.Trip)}
}

func (s *TripStore) CreateTrip(ctx context.Context, trip *types.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trips[trip.ID]; exists {
		return fmt.Errorf("trip %s: %w", trip.ID, store.ErrAlreadyExists)
	}
	s.trips[trip.ID] = trip.Clone()
	return nil
}

func (s *TripStore) GetTrip(ctx context.Context, id string) (*types.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trip, ok := s.trips[id]
	if !ok {
		return nil, fmt.Errorf("trip %s: %w", id, store.ErrNotFound)
	}
	return trip.Clone(), nil
}

func (s *TripStore) UpdateTrip(ctx context.Context, trip *types.Trip, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.trips[trip.ID]
	if !ok {
		return fmt.Errorf("trip %s: %w", trip.ID, store.ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("trip %s at version %d, expected %d: %w",
			trip.ID, stored.Version, expectedVersion, store.ErrVersionConflict)
	}
	s.trips[trip.ID] = trip.Clone()
	return nil
}

func (s *TripStore) ReplaceMergeCandidates(ctx context.Context, id string, candidates []types.MergeCandidate, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.trips[id]
	if !ok {
		return fmt.Errorf("trip %s: %w", id, store.ErrNotFound)
	}
	stored.MergeCandidates = append([]types.MergeCandidate(nil), candidates...)
	stored.UpdatedAt = updatedAt
	return nil
}

func (s *TripStore) ListByTraveler(ctx context.Context, travelerID string, startDateFrom *time.Time) ([]*types.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Trip
	for _, trip := range s.trips {
		if trip.Traveler.ID != travelerID {
			continue
		}
		if startDateFrom != nil && trip.StartDate.Before(*startDateFrom) {
			continue
		}
		out = append(out, trip.Clone())
	}
	sortByStartDate(out)
	return out, nil
}

func (s *TripStore) ListByStatus(ctx context.Context, status types.TripStatus, updatedSince *time.Time) ([]*types.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Trip
	for _, trip := range s.trips {
		if trip.Status != status {
			continue
		}
		if updatedSince != nil && trip.UpdatedAt.Before(*updatedSince) {
			continue
		}
		out = append(out, trip.Clone())
	}
	sortByStartDate(out)
	return out, nil
}

func (s *TripStore) ListByOrigin(ctx context.Context, originType types.OriginType, maxConfidence *float64) ([]*types.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Trip
	for _, trip := range s.trips {
		if trip.OriginType != originType {
			continue
		}
		if maxConfidence != nil && trip.TripConfidence > *maxConfidence {
			continue
		}
		out = append(out, trip.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TripConfidence != out[j].TripConfidence {
			return out[i].TripConfidence < out[j].TripConfidence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *TripStore) ListMergePool(ctx context.Context, travelerID string, excludeTripID string) ([]*types.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Trip
	for _, trip := range s.trips {
		if trip.Traveler.ID != travelerID || trip.ID == excludeTripID {
			continue
		}
		out = append(out, trip.Clone())
	}
	sortByStartDate(out)
	return out, nil
}

func sortByStartDate(trips []*types.Trip) {
	sort.Slice(trips, func(i, j int) bool {
		if !trips[i].StartDate.Equal(trips[j].StartDate) {
			return trips[i].StartDate.Before(trips[j].StartDate)
		}
		return trips[i].ID < trips[j].ID
	})
}

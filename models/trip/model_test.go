package trip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/tripforge-backend/config"
	apperrors "github.com/tripforge/tripforge-backend/errors"
	"github.com/tripforge/tripforge-backend/internal/store"
	"github.com/tripforge/tripforge-backend/internal/store/memory"
	"github.com/tripforge/tripforge-backend/models/merge"
	"github.com/tripforge/tripforge-backend/models/registry"
	"github.com/tripforge/tripforge-backend/types"
)

type modelFixture struct {
	model    *TripModel
	registry *registry.Registry
	store    *memory.TripStore
}

func newModelFixture(t *testing.T) *modelFixture {
	t.Helper()
	tripStore := memory.NewTripStore()
	reg := registry.New(config.DefaultRegistryConfig())
	detector := merge.NewDetector(config.DefaultMergeConfig())
	return &modelFixture{
		model:    NewTripModel(tripStore, reg, detector),
		registry: reg,
		store:    tripStore,
	}
}

func TestCreateTripExplicit(t *testing.T) {
	fix := newModelFixture(t)
	ctx := context.Background()

	created, err := fix.model.CreateTrip(ctx, CreateInput{
		Traveler:  types.Traveler{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com"},
		StartDate: time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, created.Version)
	assert.Equal(t, types.OriginExplicit, created.OriginType)
	assert.Equal(t, 1.0, created.TripConfidence)
	assert.Empty(t, created.MergeCandidates)

	// Core fields land in the registry on create.
	entry, ok := fix.registry.Get("traveler.email")
	require.True(t, ok)
	assert.Equal(t, types.FieldTypeEmail, entry.DataType)
	assert.EqualValues(t, 1, entry.OccurrenceCount)
	assert.EqualValues(t, 1, fix.registry.TotalTrips())
}

func TestAddExtensionBumpsVersionAndRegistry(t *testing.T) {
	fix := newModelFixture(t)
	ctx := context.Background()

	created, err := fix.model.CreateTrip(ctx, CreateInput{
		Traveler:  types.Traveler{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com"},
		StartDate: time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	updated, err := fix.model.AddExtension(ctx, created.ID, "lodging.marriott",
		types.Extension{"confirmation_number": "MAR123456"}, 1,
		types.SourceDocument{DocumentID: "doc-77", Type: "email", ConfidenceScore: 0.9, ExtractedAt: time.Now().UTC()})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	require.Len(t, updated.SourceDocuments, 1)
	assert.Equal(t, "doc-77", updated.SourceDocuments[0].DocumentID)
	require.Len(t, updated.VersionHistory, 2)
	assert.Contains(t, updated.VersionHistory[1].ChangedFields, "lodging.marriott.confirmation_number")

	entry, ok := fix.registry.Get("lodging.marriott.confirmation_number")
	require.True(t, ok)
	assert.Equal(t, types.FieldTypeConfirmationCode, entry.DataType)
	assert.EqualValues(t, 1, entry.OccurrenceCount)
	assert.Equal(t, "lodging", entry.SourceNamespace)
}

func TestUpdateTripStaleVersionRejected(t *testing.T) {
	fix := newModelFixture(t)
	ctx := context.Background()

	created, err := fix.model.CreateTrip(ctx, CreateInput{
		Traveler:  types.Traveler{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com"},
		StartDate: time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	doc := types.SourceDocument{DocumentID: "doc-1", Type: "email", ConfidenceScore: 0.9, ExtractedAt: time.Now().UTC()}
	_, err = fix.model.AddExtension(ctx, created.ID, "lodging.marriott",
		types.Extension{"confirmation_number": "MAR123456"}, 1, doc)
	require.NoError(t, err)

	// A second writer replaying against version 1 must be rejected without
	// touching the stored trip.
	_, err = fix.model.AddExtension(ctx, created.ID, "lodging.hilton",
		types.Extension{"confirmation_number": "HIL765432"}, 1, doc)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	stored, err := fix.model.GetTrip(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	_, ok := stored.GetExtension("lodging.hilton")
	assert.False(t, ok)
	_, ok = stored.GetExtension("lodging.marriott")
	assert.True(t, ok)
}

func TestCreateDerivedTripNoSimilarTrips(t *testing.T) {
	fix := newModelFixture(t)
	ctx := context.Background()

	confidence := 0.75
	created, err := fix.model.CreateTrip(ctx, CreateInput{
		Traveler:   types.Traveler{ID: "user-9", Name: "Grace Hopper", Email: "grace@example.com"},
		StartDate:  time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC),
		OriginType: types.OriginDerived,
		Confidence: &confidence,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.75, created.TripConfidence)
	assert.Empty(t, created.MergeCandidates)

	stored, err := fix.model.GetTrip(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version, "candidate recording must not bump the version")
}

func TestCreateDerivedTripWithOverlap(t *testing.T) {
	fix := newModelFixture(t)
	ctx := context.Background()

	existing, err := fix.model.CreateTrip(ctx, CreateInput{
		Traveler:  types.Traveler{ID: "user-9", Name: "Grace Hopper", Email: "grace@example.com"},
		StartDate: time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 11, 7, 0, 0, 0, 0, time.UTC),
		Extensions: map[string]types.Extension{
			"air.united": {"flight_number": "UA482"},
		},
	})
	require.NoError(t, err)

	confidence := 0.75
	derived, err := fix.model.CreateTrip(ctx, CreateInput{
		Traveler:   types.Traveler{ID: "user-9", Name: "Grace Hopper", Email: "grace@example.com"},
		StartDate:  time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2025, 11, 6, 0, 0, 0, 0, time.UTC),
		OriginType: types.OriginDerived,
		Confidence: &confidence,
		Extensions: map[string]types.Extension{
			"air.united": {"flight_number": "UA482"},
		},
	})
	require.NoError(t, err)

	require.Len(t, derived.MergeCandidates, 1)
	candidate := derived.MergeCandidates[0]
	assert.Equal(t, existing.ID, candidate.TripID)
	assert.Contains(t, candidate.MatchReasons, types.MatchReasonTravelerMatch)
	assert.Contains(t, candidate.MatchReasons, types.MatchReasonDateOverlap)
	assert.Contains(t, candidate.MatchReasons, types.MatchReasonSharedNamespace)
	assert.Greater(t, candidate.SimilarityScore, 0.0)
	assert.LessOrEqual(t, candidate.SimilarityScore, 1.0)

	// Candidates are persisted on the derived trip without a version bump.
	stored, err := fix.model.GetTrip(ctx, derived.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	require.Len(t, stored.MergeCandidates, 1)
}

// racingTripStore commits a competing update between the model's read and its
// conditional write, forcing the store-level conflict path.
type racingTripStore struct {
	store.TripStore
	raced bool
}

func (s *racingTripStore) UpdateTrip(ctx context.Context, t *types.Trip, expectedVersion int) error {
	if !s.raced {
		s.raced = true
		current, err := s.TripStore.GetTrip(ctx, t.ID)
		if err != nil {
			return err
		}
		rival := current.Clone()
		rival.Version++
		if err := s.TripStore.UpdateTrip(ctx, rival, current.Version); err != nil {
			return err
		}
	}
	return s.TripStore.UpdateTrip(ctx, t, expectedVersion)
}

func TestUpdateTripStoreConflictReportsCurrentVersion(t *testing.T) {
	racing := &racingTripStore{TripStore: memory.NewTripStore()}
	model := NewTripModel(racing, registry.New(config.DefaultRegistryConfig()), merge.NewDetector(config.DefaultMergeConfig()))
	ctx := context.Background()

	created, err := model.CreateTrip(ctx, CreateInput{
		Traveler:  types.Traveler{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com"},
		StartDate: time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	confirmed := types.TripStatusConfirmed
	_, err = model.UpdateTrip(ctx, created.ID, Update{
		BaseVersion:    1,
		Status:         &confirmed,
		SourceDocument: types.SourceDocument{DocumentID: "doc-1", Type: "manual", ConfidenceScore: 1.0, ExtractedAt: time.Now().UTC()},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	// The conflict names the version the rival committed, not a placeholder.
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Detail, "current version is 2")
}

func TestCreateDerivedTripTimestampMatchesStore(t *testing.T) {
	fix := newModelFixture(t)
	ctx := context.Background()

	confidence := 0.75
	created, err := fix.model.CreateTrip(ctx, CreateInput{
		Traveler:   types.Traveler{ID: "user-9", Name: "Grace Hopper", Email: "grace@example.com"},
		StartDate:  time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC),
		OriginType: types.OriginDerived,
		Confidence: &confidence,
	})
	require.NoError(t, err)

	// Candidate recording stamps one timestamp on both the returned trip and
	// the store write.
	stored, err := fix.model.GetTrip(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, created.UpdatedAt.Equal(stored.UpdatedAt))
}

func TestUpdateTripNotFound(t *testing.T) {
	fix := newModelFixture(t)

	_, err := fix.model.UpdateTrip(context.Background(), "trip-missing", Update{BaseVersion: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.NotFoundError))
}

func TestUpdateForwardsOnlyChangedObservations(t *testing.T) {
	fix := newModelFixture(t)
	ctx := context.Background()

	created, err := fix.model.CreateTrip(ctx, CreateInput{
		Traveler:  types.Traveler{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com"},
		StartDate: time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	emailBefore, ok := fix.registry.Get("traveler.email")
	require.True(t, ok)

	confirmed := types.TripStatusConfirmed
	_, err = fix.model.UpdateTrip(ctx, created.ID, Update{
		BaseVersion:    1,
		Status:         &confirmed,
		SourceDocument: types.SourceDocument{DocumentID: "doc-2", Type: "manual", ConfidenceScore: 1.0, ExtractedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	// Unchanged paths don't accrue occurrences on update.
	emailAfter, ok := fix.registry.Get("traveler.email")
	require.True(t, ok)
	assert.Equal(t, emailBefore.OccurrenceCount, emailAfter.OccurrenceCount)

	status, ok := fix.registry.Get("status")
	require.True(t, ok)
	assert.EqualValues(t, 2, status.OccurrenceCount)
}

func TestListByStatusValidation(t *testing.T) {
	fix := newModelFixture(t)

	_, err := fix.model.ListByStatus(context.Background(), "archived", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

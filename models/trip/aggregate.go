// Package trip implements the versioned trip aggregate: creation, optimistic
// updates, namespaced extensions, version history and merge-candidate
// bookkeeping.
package trip

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/tripforge/tripforge-backend/errors"
	"github.com/tripforge/tripforge-backend/types"
)

var namespaceKeyRe = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// NewTripID generates a trip identifier.
func NewTripID() string {
	return "trip-" + uuid.NewString()[:12]
}

// CreateInput carries everything needed to create a trip.
type CreateInput struct {
	Traveler   types.Traveler
	Status     types.TripStatus
	StartDate  time.Time
	EndDate    time.Time
	Purpose    string
	OriginType types.OriginType
	// Confidence is the trip-level grouping reliability. Required for derived
	// trips; ignored for explicit trips, which are always 1.0.
	Confidence     *float64
	Extensions     map[string]types.Extension
	SourceDocument *types.SourceDocument
}

// Update is one optimistic-concurrency delta against a trip. BaseVersion is
// the version the caller read before computing the delta; the update is
// rejected if it no longer matches. Extensions listed here replace the stored
// value for their namespace wholesale.
type Update struct {
	BaseVersion    int
	Status         *types.TripStatus
	StartDate      *time.Time
	EndDate        *time.Time
	Purpose        *string
	Extensions     map[string]types.Extension
	SourceDocument types.SourceDocument
}

// Create validates the core fields and builds a version-1 trip with a single
// "created" history entry. Nothing is persisted here; the caller hands the
// result to a TripStore.
func Create(in CreateInput) (*types.Trip, error) {
	if in.Traveler.ID == "" {
		return nil, apperrors.ValidationFailed("Missing traveler identity", "traveler.id is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, apperrors.ValidationFailed("Missing trip dates", "start_date and end_date are required")
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, apperrors.ValidationFailed("Invalid date range",
			fmt.Sprintf("end_date %s is before start_date %s",
				in.EndDate.Format("2006-01-02"), in.StartDate.Format("2006-01-02")))
	}

	status := in.Status
	if status == "" {
		status = types.TripStatusTentative
	}
	if !status.IsValid() {
		return nil, apperrors.ValidationFailed("Invalid trip status", string(status))
	}

	originType := in.OriginType
	if originType == "" {
		originType = types.OriginExplicit
	}
	if !originType.IsValid() {
		return nil, apperrors.ValidationFailed("Invalid origin type", string(originType))
	}

	confidence := 1.0
	if originType == types.OriginDerived {
		if in.Confidence == nil {
			return nil, apperrors.ValidationFailed("Missing trip confidence",
				"trip_confidence is required for derived trips")
		}
		if *in.Confidence < 0 || *in.Confidence > 1 {
			return nil, apperrors.ValidationFailed("Invalid trip confidence",
				fmt.Sprintf("trip_confidence must be in [0.0, 1.0], got %v", *in.Confidence))
		}
		confidence = *in.Confidence
	}

	if err := validateNamespaces(in.Extensions); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trip := &types.Trip{
		ID:             NewTripID(),
		Version:        1,
		Traveler:       in.Traveler,
		Status:         status,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Purpose:        in.Purpose,
		OriginType:     originType,
		TripConfidence: confidence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	changedFields := []string{"traveler", "status", "start_date", "end_date"}
	if in.Purpose != "" {
		changedFields = append(changedFields, "purpose")
	}
	if len(in.Extensions) > 0 {
		trip.Extensions = make(map[string]types.Extension, len(in.Extensions))
		for _, ns := range sortedKeys(in.Extensions) {
			trip.Extensions[ns] = in.Extensions[ns]
			changedFields = append(changedFields, ns)
		}
	}

	documentID := ""
	if in.SourceDocument != nil {
		documentID = in.SourceDocument.DocumentID
		trip.SourceDocuments = []types.SourceDocument{*in.SourceDocument}
	}

	trip.VersionHistory = []types.VersionEntry{{
		Version:       1,
		Timestamp:     now,
		DocumentID:    documentID,
		ChangeType:    types.ChangeTypeCreated,
		ChangedFields: changedFields,
	}}

	return trip, nil
}

// ApplyUpdate produces the next version of current from the delta in upd.
// current is never mutated; the returned trip carries the bumped version,
// the appended history entry and the appended source document. The second
// return value lists the field observations for every changed path, ready to
// forward to the field registry.
//
// The linchpin invariant lives here and at the store: an update whose
// BaseVersion does not match the current version is rejected with a conflict
// and nothing changes.
func ApplyUpdate(current *types.Trip, upd Update) (*types.Trip, []types.FieldObservation, error) {
	if upd.BaseVersion != current.Version {
		return nil, nil, apperrors.VersionConflict(current.ID, upd.BaseVersion, current.Version)
	}
	if err := validateNamespaces(upd.Extensions); err != nil {
		return nil, nil, err
	}

	next := current.Clone()
	var changedFields []string
	var observations []types.FieldObservation

	if upd.Status != nil && *upd.Status != current.Status {
		if !upd.Status.IsValid() {
			return nil, nil, apperrors.ValidationFailed("Invalid trip status", string(*upd.Status))
		}
		next.Status = *upd.Status
		changedFields = append(changedFields, "status")
		observations = append(observations, coreObservation("status", string(next.Status)))
	}
	if upd.StartDate != nil && !upd.StartDate.Equal(current.StartDate) {
		next.StartDate = *upd.StartDate
		changedFields = append(changedFields, "start_date")
		observations = append(observations, coreObservation("start_date", next.StartDate.Format("2006-01-02")))
	}
	if upd.EndDate != nil && !upd.EndDate.Equal(current.EndDate) {
		next.EndDate = *upd.EndDate
		changedFields = append(changedFields, "end_date")
		observations = append(observations, coreObservation("end_date", next.EndDate.Format("2006-01-02")))
	}
	if next.EndDate.Before(next.StartDate) {
		return nil, nil, apperrors.ValidationFailed("Invalid date range",
			fmt.Sprintf("end_date %s is before start_date %s",
				next.EndDate.Format("2006-01-02"), next.StartDate.Format("2006-01-02")))
	}
	if upd.Purpose != nil && *upd.Purpose != current.Purpose {
		next.Purpose = *upd.Purpose
		changedFields = append(changedFields, "purpose")
		observations = append(observations, coreObservation("purpose", next.Purpose))
	}

	// Extension replacement is wholesale: the caller supplies the complete
	// payload per namespace and every leaf under it counts as changed.
	for _, ns := range sortedKeys(upd.Extensions) {
		value := upd.Extensions[ns]
		if next.Extensions == nil {
			next.Extensions = make(map[string]types.Extension)
		}
		next.Extensions[ns] = value

		extObs := flattenExtension(ns, value)
		for _, obs := range extObs {
			changedFields = append(changedFields, obs.Path)
		}
		observations = append(observations, extObs...)
	}

	now := time.Now().UTC()
	next.Version++
	next.UpdatedAt = now
	next.VersionHistory = append(next.VersionHistory, types.VersionEntry{
		Version:       next.Version,
		Timestamp:     now,
		DocumentID:    upd.SourceDocument.DocumentID,
		ChangeType:    types.ChangeTypeUpdated,
		ChangedFields: changedFields,
	})
	next.SourceDocuments = append(next.SourceDocuments, upd.SourceDocument)

	return next, observations, nil
}

// RecordMergeCandidates replaces the candidate list wholesale on a copy of
// the trip. Candidates are derived metadata, so the version is not bumped,
// but updated_at moves to at. Callers stamp the store write with the same
// timestamp so the returned and persisted records agree.
func RecordMergeCandidates(current *types.Trip, candidates []types.MergeCandidate, at time.Time) *types.Trip {
	next := current.Clone()
	next.MergeCandidates = append([]types.MergeCandidate(nil), candidates...)
	next.UpdatedAt = at
	return next
}

func validateNamespaces(extensions map[string]types.Extension) error {
	for ns := range extensions {
		if !namespaceKeyRe.MatchString(ns) {
			return apperrors.ValidationFailed("Invalid extension namespace",
				fmt.Sprintf("%q is not a valid dotted namespace key", ns))
		}
		if types.IsReservedTripKey(ns) {
			return apperrors.ValidationFailed("Invalid extension namespace",
				fmt.Sprintf("%q collides with a core trip field", ns))
		}
	}
	return nil
}

func sortedKeys(m map[string]types.Extension) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

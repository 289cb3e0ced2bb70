package db

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/tripforge-backend/config"
	"github.com/tripforge/tripforge-backend/types"
)

func newMockFieldRegistry(t *testing.T) (*FieldRegistryDB, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = client.Close() })

	reg := NewFieldRegistryDB(client, config.DefaultRegistryConfig())
	reg.now = func() time.Time {
		return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return reg, mock
}

// expectRegister sets up the full command sequence Register issues for one
// observation. inferredType is what the classifier hands the merge script and
// mergedType the type the script settles on against the stored state.
func expectRegister(t *testing.T, mock redismock.ClientMock, reg *FieldRegistryDB, path, namespace string, value any, inferredType, mergedType string, newCount int64, total string) {
	t.Helper()

	now := reg.now()
	nowStr := now.Format(time.RFC3339Nano)
	key := fieldKey(path)

	mock.ExpectHSetNX(key, "first_seen", nowStr).SetVal(newCount == 1)
	mock.ExpectHSetNX(key, "source_namespace", namespace).SetVal(newCount == 1)
	mock.ExpectHIncrBy(key, "occurrence_count", 1).SetVal(newCount)
	mock.ExpectEval(typeMergeScript, []string{key}, inferredType, nowStr).SetVal(mergedType)
	mock.ExpectSAdd(registryFieldsKey, path).SetVal(1)
	mock.ExpectSAdd(registryNsPrefix+namespace, path).SetVal(1)

	example, err := json.Marshal(types.FieldExample{
		Value:            fmt.Sprint(value),
		SourceDocumentID: "doc-1",
		ExtractedAt:      now,
	})
	require.NoError(t, err)
	mock.ExpectLPush(examplesKey(path), example).SetVal(newCount)
	mock.ExpectLTrim(examplesKey(path), 0, int64(reg.cfg.MaxExamples-1)).SetVal("OK")

	get := mock.ExpectGet(registryTotalTripsKey)
	if total == "" {
		get.RedisNil()
	} else {
		get.SetVal(total)
	}
}

func TestFieldRegistryDBRegisterFirstObservation(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)
	path := "lodging.marriott.confirmation_number"

	expectRegister(t, mock, reg, path, "lodging", "MAR123456", "confirmation_code", "confirmation_code", 1, "1")

	entry, err := reg.Register(context.Background(), path, "MAR123456", "doc-1")
	require.NoError(t, err)

	assert.Equal(t, path, entry.FieldID)
	assert.Equal(t, types.FieldTypeConfirmationCode, entry.DataType)
	assert.Equal(t, "lodging", entry.SourceNamespace)
	assert.EqualValues(t, 1, entry.OccurrenceCount)
	assert.Equal(t, 100.0, entry.OccurrencePercentage)
	assert.Equal(t, types.StabilityEmerging, entry.Stability)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBRegisterTypeConflict(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)
	path := "lodging.rate"

	// Stored currency meets an incoming number: the merge script degrades the
	// stored type to number.
	expectRegister(t, mock, reg, path, "lodging", 189.99, "number", "number", 4, "4")

	entry, err := reg.Register(context.Background(), path, 189.99, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, types.FieldTypeNumber, entry.DataType)
	assert.EqualValues(t, 4, entry.OccurrenceCount)
	assert.Equal(t, types.StabilityStable, entry.Stability)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBRegisterTrustsServerMerge(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)
	path := "lodging.rate"

	// The merge runs server-side against whatever type is stored at that
	// instant. A racing worker may already have degraded the type past this
	// sample's meet; the returned entry reflects the script's answer, never a
	// locally recomputed one.
	expectRegister(t, mock, reg, path, "lodging", 189.99, "number", "text", 5, "5")

	entry, err := reg.Register(context.Background(), path, 189.99, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, types.FieldTypeText, entry.DataType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBRegisterNoTotalYet(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)
	path := "status"

	expectRegister(t, mock, reg, path, "status", "confirmed", "text", "text", 1, "")

	entry, err := reg.Register(context.Background(), path, "confirmed", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, entry.OccurrencePercentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBRegisterEmptyPath(t *testing.T) {
	reg, _ := newMockFieldRegistry(t)
	_, err := reg.Register(context.Background(), "", "x", "doc-1")
	assert.Error(t, err)
}

func TestFieldRegistryDBIncrementTotalTrips(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)

	mock.ExpectIncr(registryTotalTripsKey).SetVal(7)

	total, err := reg.IncrementTotalTrips(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBSummary(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)

	mock.ExpectGet(registryTotalTripsKey).SetVal("4")
	mock.ExpectSMembers(registryFieldsKey).SetVal([]string{"traveler.email", "air.seat"})
	mock.ExpectHGetAll(fieldKey("traveler.email")).SetVal(map[string]string{
		"data_type":        "email",
		"source_namespace": "traveler",
		"occurrence_count": "4",
	})
	mock.ExpectHGetAll(fieldKey("air.seat")).SetVal(map[string]string{
		"data_type":        "text",
		"source_namespace": "air",
		"occurrence_count": "1",
	})

	summary, err := reg.Summary(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 4, summary.TotalTrips)
	assert.Equal(t, 2, summary.TotalFields)
	assert.Equal(t, 1, summary.NamespaceCounts["traveler"])
	assert.Equal(t, 1, summary.NamespaceCounts["air"])
	assert.Equal(t, 1, summary.FieldsByType[types.FieldTypeEmail])
	assert.Equal(t, []string{"traveler.email"}, summary.StableFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBSuggestIndexes(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)

	mock.ExpectGet(registryTotalTripsKey).SetVal("4")
	mock.ExpectSMembers(registryFieldsKey).SetVal([]string{"traveler.email", "purpose", "air.rebooking_code"})
	mock.ExpectHGetAll(fieldKey("traveler.email")).SetVal(map[string]string{
		"data_type": "email", "source_namespace": "traveler", "occurrence_count": "4",
	})
	// Frequent but free text: never suggested.
	mock.ExpectHGetAll(fieldKey("purpose")).SetVal(map[string]string{
		"data_type": "text", "source_namespace": "purpose", "occurrence_count": "4",
	})
	// Indexable type but too rare.
	mock.ExpectHGetAll(fieldKey("air.rebooking_code")).SetVal(map[string]string{
		"data_type": "confirmation_code", "source_namespace": "air", "occurrence_count": "1",
	})

	suggestions, err := reg.SuggestIndexes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"traveler.email"}, suggestions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBFieldsByNamespace(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)
	path := "air.united.flight_number"

	mock.ExpectGet(registryTotalTripsKey).SetVal("2")
	mock.ExpectSMembers(registryNsPrefix + "air").SetVal([]string{path})
	mock.ExpectHGetAll(fieldKey(path)).SetVal(map[string]string{
		"data_type":        "confirmation_code",
		"source_namespace": "air",
		"occurrence_count": "2",
		"first_seen":       reg.now().Format(time.RFC3339Nano),
	})
	example, err := json.Marshal(types.FieldExample{
		Value:            "UA482",
		SourceDocumentID: "doc-1",
		ExtractedAt:      reg.now(),
	})
	require.NoError(t, err)
	mock.ExpectLRange(examplesKey(path), 0, -1).SetVal([]string{string(example)})

	fields, err := reg.FieldsByNamespace(context.Background(), "air")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, path, fields[0].FieldID)
	assert.Equal(t, types.FieldTypeConfirmationCode, fields[0].DataType)
	assert.Equal(t, 100.0, fields[0].OccurrencePercentage)
	require.Len(t, fields[0].Examples, 1)
	assert.Equal(t, "UA482", fields[0].Examples[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBExportSchema(t *testing.T) {
	reg, mock := newMockFieldRegistry(t)
	path := "traveler.email"

	mock.ExpectGet(registryTotalTripsKey).SetVal("3")
	mock.ExpectSMembers(registryFieldsKey).SetVal([]string{path})
	mock.ExpectHGetAll(fieldKey(path)).SetVal(map[string]string{
		"data_type":        "email",
		"source_namespace": "traveler",
		"occurrence_count": "3",
	})
	mock.ExpectLRange(examplesKey(path), 0, -1).SetVal(nil)

	schema, err := reg.ExportSchema(context.Background())
	require.NoError(t, err)
	require.Contains(t, schema, path)
	assert.Equal(t, types.FieldTypeEmail, schema[path].DataType)
	assert.EqualValues(t, 3, schema[path].OccurrenceCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRegistryDBStability(t *testing.T) {
	reg, _ := newMockFieldRegistry(t)

	assert.Equal(t, types.StabilityEmerging, reg.stability(2, 100))
	assert.Equal(t, types.StabilityStable, reg.stability(4, 90))
	assert.Equal(t, types.StabilityVolatile, reg.stability(4, 50))
}

func TestNamespaceOfPath(t *testing.T) {
	assert.Equal(t, "lodging", namespaceOfPath("lodging.marriott.confirmation_number"))
	assert.Equal(t, "status", namespaceOfPath("status"))
}

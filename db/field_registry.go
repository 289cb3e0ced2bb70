package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tripforge/tripforge-backend/config"
	"github.com/tripforge/tripforge-backend/internal/store"
	"github.com/tripforge/tripforge-backend/models/registry"
	"github.com/tripforge/tripforge-backend/types"
)

const (
	registryTotalTripsKey = "registry:total_trips"
	registryFieldsKey     = "registry:fields"
	registryFieldPrefix   = "registry:field:"
	registryNsPrefix      = "registry:ns:"
)

// FieldRegistryDB is the Redis-backed field registry used when trips are
// registered from multiple worker processes. Counters use atomic HINCRBY per
// field hash and the type merge runs server-side in a Lua script, so writes
// from different workers never lose each other's degradations; readers get an
// eventually consistent view, which is all the registry promises.
type FieldRegistryDB struct {
	client redis.Cmdable
	cfg    config.RegistryConfig
	now    func() time.Time
}

var _ store.RegistryStore = (*FieldRegistryDB)(nil)

func NewFieldRegistryDB(client redis.Cmdable, cfg config.RegistryConfig) *FieldRegistryDB {
	return &FieldRegistryDB{
		client: client,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// typeMergeScript folds a newly inferred type into the stored one under the
// type lattice in a single server-side step. Each merge reads the latest
// stored type inside the script, so a type another worker already degraded
// can never be re-narrowed by a racing registration.
//
// KEYS[1] is the field hash; ARGV[1] the inferred type, ARGV[2] last_seen.
const typeMergeScript = `
local parent = {
  currency = 'number',
  datetime = 'date',
  number = 'text',
  date = 'text',
  boolean = 'text',
  email = 'text',
  phone = 'text',
  airport_code = 'text',
  confirmation_code = 'text',
  array = 'text',
  object = 'text',
}
local merged = ARGV[1]
local stored = redis.call('HGET', KEYS[1], 'data_type')
if stored and stored ~= merged then
  local ancestors = {}
  local cur = stored
  while cur do
    ancestors[cur] = true
    cur = parent[cur]
  end
  cur = merged
  while cur and not ancestors[cur] do
    cur = parent[cur]
  end
  merged = cur or 'text'
end
redis.call('HSET', KEYS[1], 'data_type', merged, 'last_seen', ARGV[2])
return merged
`

func fieldKey(path string) string {
	return registryFieldPrefix + path
}

func examplesKey(path string) string {
	return fieldKey(path) + ":examples"
}

// Register records one observation of path in Redis and returns the entry as
// of this registration.
func (f *FieldRegistryDB) Register(ctx context.Context, path string, value any, sourceDocumentID string) (types.FieldEntry, error) {
	if path == "" {
		return types.FieldEntry{}, fmt.Errorf("field path must not be empty")
	}

	now := f.now()
	nowStr := now.Format(time.RFC3339Nano)
	key := fieldKey(path)
	namespace := namespaceOfPath(path)
	inferred := registry.Classify(value)

	if err := f.client.HSetNX(ctx, key, "first_seen", nowStr).Err(); err != nil {
		return types.FieldEntry{}, err
	}
	if err := f.client.HSetNX(ctx, key, "source_namespace", namespace).Err(); err != nil {
		return types.FieldEntry{}, err
	}
	count, err := f.client.HIncrBy(ctx, key, "occurrence_count", 1).Result()
	if err != nil {
		return types.FieldEntry{}, err
	}
	merged, err := f.client.Eval(ctx, typeMergeScript, []string{key}, string(inferred), nowStr).Text()
	if err != nil {
		return types.FieldEntry{}, fmt.Errorf("merging field type for %s: %w", path, err)
	}
	dataType := types.FieldDataType(merged)
	if err := f.client.SAdd(ctx, registryFieldsKey, path).Err(); err != nil {
		return types.FieldEntry{}, err
	}
	if err := f.client.SAdd(ctx, registryNsPrefix+namespace, path).Err(); err != nil {
		return types.FieldEntry{}, err
	}

	example, err := json.Marshal(types.FieldExample{
		Value:            fmt.Sprint(value),
		SourceDocumentID: sourceDocumentID,
		ExtractedAt:      now,
	})
	if err != nil {
		return types.FieldEntry{}, err
	}
	if err := f.client.LPush(ctx, examplesKey(path), example).Err(); err != nil {
		return types.FieldEntry{}, err
	}
	if err := f.client.LTrim(ctx, examplesKey(path), 0, int64(f.cfg.MaxExamples-1)).Err(); err != nil {
		return types.FieldEntry{}, err
	}

	total, err := f.totalTrips(ctx)
	if err != nil {
		return types.FieldEntry{}, err
	}

	entry := types.FieldEntry{
		FieldID:         path,
		DataType:        dataType,
		SourceNamespace: namespace,
		OccurrenceCount: count,
		LastSeen:        now,
	}
	if total > 0 {
		entry.OccurrencePercentage = float64(count) / float64(total) * 100
		if entry.OccurrencePercentage > 100 {
			entry.OccurrencePercentage = 100
		}
	}
	entry.Stability = f.stability(count, entry.OccurrencePercentage)
	return entry, nil
}

// RegisterObservations registers a batch of observations under one document.
func (f *FieldRegistryDB) RegisterObservations(ctx context.Context, observations []types.FieldObservation, sourceDocumentID string) error {
	for _, obs := range observations {
		if _, err := f.Register(ctx, obs.Path, obs.Value, sourceDocumentID); err != nil {
			return err
		}
	}
	return nil
}

// IncrementTotalTrips atomically bumps the shared trip counter.
func (f *FieldRegistryDB) IncrementTotalTrips(ctx context.Context) (int64, error) {
	return f.client.Incr(ctx, registryTotalTripsKey).Result()
}

// Summary builds the schema projection from the current Redis state.
func (f *FieldRegistryDB) Summary(ctx context.Context) (types.SchemaSummary, error) {
	summary := types.SchemaSummary{
		NamespaceCounts: map[string]int{},
		FieldsByType:    map[types.FieldDataType]int{},
	}

	total, err := f.totalTrips(ctx)
	if err != nil {
		return summary, err
	}
	summary.TotalTrips = total

	paths, err := f.client.SMembers(ctx, registryFieldsKey).Result()
	if err != nil {
		return summary, err
	}

	for _, path := range paths {
		entry, ok, err := f.loadEntry(ctx, path, total, false)
		if err != nil {
			return summary, err
		}
		if !ok {
			continue
		}
		summary.TotalFields++
		summary.NamespaceCounts[entry.SourceNamespace]++
		summary.FieldsByType[entry.DataType]++
		if entry.Stability == types.StabilityStable {
			summary.StableFields = append(summary.StableFields, path)
		}
	}
	sort.Strings(summary.StableFields)
	return summary, nil
}

// SuggestIndexes returns field paths that are both frequent enough and of an
// indexable type, computed over the shared state so every worker answers the
// same.
func (f *FieldRegistryDB) SuggestIndexes(ctx context.Context) ([]string, error) {
	total, err := f.totalTrips(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := f.client.SMembers(ctx, registryFieldsKey).Result()
	if err != nil {
		return nil, err
	}

	var suggestions []string
	for _, path := range paths {
		entry, ok, err := f.loadEntry(ctx, path, total, false)
		if err != nil {
			return nil, err
		}
		if ok && entry.OccurrencePercentage >= f.cfg.StablePct && registry.IndexableType(entry.DataType) {
			suggestions = append(suggestions, path)
		}
	}
	sort.Strings(suggestions)
	return suggestions, nil
}

// FieldsByNamespace returns every entry whose top-level namespace segment
// matches, examples included.
func (f *FieldRegistryDB) FieldsByNamespace(ctx context.Context, namespace string) ([]types.FieldEntry, error) {
	total, err := f.totalTrips(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := f.client.SMembers(ctx, registryNsPrefix+namespace).Result()
	if err != nil {
		return nil, err
	}

	var out []types.FieldEntry
	for _, path := range paths {
		entry, ok, err := f.loadEntry(ctx, path, total, true)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })
	return out, nil
}

// ExportSchema dumps every entry keyed by field id, for external schema
// consumers.
func (f *FieldRegistryDB) ExportSchema(ctx context.Context) (map[string]types.FieldEntry, error) {
	total, err := f.totalTrips(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := f.client.SMembers(ctx, registryFieldsKey).Result()
	if err != nil {
		return nil, err
	}

	out := map[string]types.FieldEntry{}
	for _, path := range paths {
		entry, ok, err := f.loadEntry(ctx, path, total, true)
		if err != nil {
			return nil, err
		}
		if ok {
			out[path] = entry
		}
	}
	return out, nil
}

// loadEntry materializes one field entry from its Redis hash. The examples
// list is stored newest-first; entries carry it oldest-first.
func (f *FieldRegistryDB) loadEntry(ctx context.Context, path string, total int64, withExamples bool) (types.FieldEntry, bool, error) {
	fields, err := f.client.HGetAll(ctx, fieldKey(path)).Result()
	if err != nil {
		return types.FieldEntry{}, false, err
	}
	if len(fields) == 0 {
		return types.FieldEntry{}, false, nil
	}

	count, _ := strconv.ParseInt(fields["occurrence_count"], 10, 64)
	entry := types.FieldEntry{
		FieldID:         path,
		DataType:        types.FieldDataType(fields["data_type"]),
		SourceNamespace: fields["source_namespace"],
		OccurrenceCount: count,
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["first_seen"]); err == nil {
		entry.FirstSeen = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["last_seen"]); err == nil {
		entry.LastSeen = ts
	}
	if total > 0 {
		entry.OccurrencePercentage = float64(count) / float64(total) * 100
		if entry.OccurrencePercentage > 100 {
			entry.OccurrencePercentage = 100
		}
	}
	entry.Stability = f.stability(count, entry.OccurrencePercentage)

	if withExamples {
		raw, err := f.client.LRange(ctx, examplesKey(path), 0, -1).Result()
		if err != nil {
			return types.FieldEntry{}, false, err
		}
		for i := len(raw) - 1; i >= 0; i-- {
			var example types.FieldExample
			if err := json.Unmarshal([]byte(raw[i]), &example); err == nil {
				entry.Examples = append(entry.Examples, example)
			}
		}
	}
	return entry, true, nil
}

func (f *FieldRegistryDB) totalTrips(ctx context.Context) (int64, error) {
	total, err := f.client.Get(ctx, registryTotalTripsKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

// stability in the shared backend is derived from the current counters only;
// the per-window trend refinement lives in the in-process registry.
func (f *FieldRegistryDB) stability(count int64, pct float64) types.FieldStability {
	switch {
	case count < int64(f.cfg.MinSamples):
		return types.StabilityEmerging
	case pct >= f.cfg.StablePct:
		return types.StabilityStable
	default:
		return types.StabilityVolatile
	}
}

func namespaceOfPath(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}

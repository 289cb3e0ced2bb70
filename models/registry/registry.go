package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tripforge/tripforge-backend/config"
	"github.com/tripforge/tripforge-backend/internal/store"
	"github.com/tripforge/tripforge-backend/types"
)

// metrics holds Prometheus metrics for the registry, registered once.
var (
	metricsOnce      sync.Once
	fieldsRegistered prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		fieldsRegistered = promauto.NewCounter(prometheus.CounterOpts{
			Name: "field_registrations_total",
			Help: "Total field observations registered",
		})
	})
}

// entry pairs a FieldEntry with its own lock and the recent-percentage ring
// used for stability classification. Locking is per path: writes to one field
// never contend with writes to another.
type entry struct {
	mu         sync.Mutex
	field      types.FieldEntry
	recentPcts []float64
}

// Registry is the in-process field catalog. It is shared state: many trips
// register fields concurrently. Reads (Summary, SuggestIndexes) never take a
// global lock and may observe a slightly stale snapshot.
type Registry struct {
	cfg        config.RegistryConfig
	entries    sync.Map // path -> *entry
	totalTrips atomic.Int64
}

var _ store.RegistryStore = (*Registry)(nil)

// New returns a Registry using the given thresholds.
func New(cfg config.RegistryConfig) *Registry {
	initMetrics()
	return &Registry{cfg: cfg}
}

// SetTotalTrips sets the externally supplied total-trip counter that
// occurrence percentages are computed against.
func (r *Registry) SetTotalTrips(n int64) {
	r.totalTrips.Store(n)
}

// IncrementTotalTrips bumps the total-trip counter and returns the new value.
func (r *Registry) IncrementTotalTrips(ctx context.Context) (int64, error) {
	return r.totalTrips.Add(1), nil
}

// TotalTrips returns the current total-trip counter.
func (r *Registry) TotalTrips() int64 {
	return r.totalTrips.Load()
}

// Register records one observation of path. The entry is created on first
// observation; on type conflict the stored type degrades to the most general
// common classification. Returns a snapshot of the entry after the update.
func (r *Registry) Register(ctx context.Context, path string, value any, sourceDocumentID string) (types.FieldEntry, error) {
	if path == "" {
		return types.FieldEntry{}, fmt.Errorf("field path must not be empty")
	}

	now := time.Now().UTC()
	actual, _ := r.entries.LoadOrStore(path, &entry{
		field: types.FieldEntry{
			FieldID:         path,
			SourceNamespace: namespaceOf(path),
			FirstSeen:       now,
		},
	})
	e := actual.(*entry)

	inferred := Classify(value)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.field.DataType == "" {
		e.field.DataType = inferred
	} else {
		e.field.DataType = Generalize(e.field.DataType, inferred)
	}

	e.field.OccurrenceCount++
	e.field.LastSeen = now

	e.field.Examples = append(e.field.Examples, types.FieldExample{
		Value:            fmt.Sprint(value),
		SourceDocumentID: sourceDocumentID,
		ExtractedAt:      now,
	})
	if len(e.field.Examples) > r.cfg.MaxExamples {
		e.field.Examples = e.field.Examples[len(e.field.Examples)-r.cfg.MaxExamples:]
	}

	if total := r.totalTrips.Load(); total > 0 {
		e.field.OccurrencePercentage = float64(e.field.OccurrenceCount) / float64(total) * 100
		if e.field.OccurrencePercentage > 100 {
			e.field.OccurrencePercentage = 100
		}
	}
	e.recentPcts = append(e.recentPcts, e.field.OccurrencePercentage)
	if len(e.recentPcts) > r.cfg.WindowSize {
		e.recentPcts = e.recentPcts[len(e.recentPcts)-r.cfg.WindowSize:]
	}
	e.field.Stability = r.computeStability(e.field.OccurrenceCount, e.recentPcts)

	fieldsRegistered.Inc()
	return snapshot(&e.field), nil
}

// RegisterObservations registers a batch of flattened trip fields under one
// source document.
func (r *Registry) RegisterObservations(ctx context.Context, observations []types.FieldObservation, sourceDocumentID string) error {
	for _, obs := range observations {
		if _, err := r.Register(ctx, obs.Path, obs.Value, sourceDocumentID); err != nil {
			return err
		}
	}
	return nil
}

// computeStability derives the stability class from the occurrence trend:
// emerging until MinSamples observations exist, stable while the recent
// window of occurrence percentages holds at or above StablePct, volatile
// otherwise.
func (r *Registry) computeStability(count int64, recent []float64) types.FieldStability {
	if count < int64(r.cfg.MinSamples) {
		return types.StabilityEmerging
	}
	for _, pct := range recent {
		if pct < r.cfg.StablePct {
			return types.StabilityVolatile
		}
	}
	return types.StabilityStable
}

// Get returns a snapshot of the entry for path.
func (r *Registry) Get(path string) (types.FieldEntry, bool) {
	actual, ok := r.entries.Load(path)
	if !ok {
		return types.FieldEntry{}, false
	}
	e := actual.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(&e.field), true
}

// Summary produces the read-only schema projection. It walks entries without
// a global lock, so concurrent writers are never blocked; the numbers may be
// marginally stale, which is acceptable for an advisory structure.
func (r *Registry) Summary(ctx context.Context) (types.SchemaSummary, error) {
	summary := types.SchemaSummary{
		TotalTrips:      r.totalTrips.Load(),
		NamespaceCounts: map[string]int{},
		FieldsByType:    map[types.FieldDataType]int{},
	}

	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		ns := e.field.SourceNamespace
		dt := e.field.DataType
		stable := e.field.Stability == types.StabilityStable
		id := e.field.FieldID
		e.mu.Unlock()

		summary.TotalFields++
		summary.NamespaceCounts[ns]++
		summary.FieldsByType[dt]++
		if stable {
			summary.StableFields = append(summary.StableFields, id)
		}
		return true
	})

	sort.Strings(summary.StableFields)
	return summary, nil
}

// indexableTypes is the allow-list for index suggestions: identifiers, dates
// and enum-like values. Free text and containers are never suggested.
var indexableTypes = map[types.FieldDataType]bool{
	types.FieldTypeEmail:            true,
	types.FieldTypeAirportCode:      true,
	types.FieldTypeConfirmationCode: true,
	types.FieldTypeDate:             true,
	types.FieldTypeDateTime:         true,
	types.FieldTypeBoolean:          true,
}

// IndexableType reports whether fields of this type qualify for index
// suggestions.
func IndexableType(t types.FieldDataType) bool {
	return indexableTypes[t]
}

// SuggestIndexes returns field paths that are both frequent enough and of an
// indexable type. Advisory output only; nothing is ever auto-applied.
func (r *Registry) SuggestIndexes(ctx context.Context) ([]string, error) {
	var suggestions []string
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if e.field.OccurrencePercentage >= r.cfg.StablePct && indexableTypes[e.field.DataType] {
			suggestions = append(suggestions, e.field.FieldID)
		}
		e.mu.Unlock()
		return true
	})
	sort.Strings(suggestions)
	return suggestions, nil
}

// ExportSchema dumps every entry keyed by field id, for external schema
// consumers.
func (r *Registry) ExportSchema(ctx context.Context) (map[string]types.FieldEntry, error) {
	out := map[string]types.FieldEntry{}
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		out[e.field.FieldID] = snapshot(&e.field)
		e.mu.Unlock()
		return true
	})
	return out, nil
}

// FieldsByNamespace returns snapshots of all entries whose top-level
// namespace segment matches.
func (r *Registry) FieldsByNamespace(ctx context.Context, namespace string) ([]types.FieldEntry, error) {
	var out []types.FieldEntry
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if e.field.SourceNamespace == namespace {
			out = append(out, snapshot(&e.field))
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })
	return out, nil
}

func snapshot(f *types.FieldEntry) types.FieldEntry {
	cp := *f
	cp.Examples = append([]types.FieldExample(nil), f.Examples...)
	return cp
}

func namespaceOf(path string) string {
	if i := strings.IndexByte(path, '.'); i > 0 {
		return path[:i]
	}
	return path
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"m3u-server/work/catalog"
	"m3u-server/work/config"
	"m3u-server/work/database"
	"m3u-server/work/fetcher"
	"m3u-server/work/filter"
	"m3u-server/work/logger"
	"m3u-server/work/merge"
	"m3u-server/work/metrics"
	"m3u-server/work/parser"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrRefreshInProgress is returned when a refresh trigger arrives while a
// cycle is already running. Triggers coalesce: the extra one is dropped, not
// queued.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Cycle outcome values recorded in history and metrics.
const (
	OutcomePublished = "published" // at least one source fresh, new catalog published
	OutcomeSkipped   = "skipped"   // all sources failed, prior catalog preserved
	OutcomeFailed    = "failed"    // all sources failed with no prior catalog
)

// SourceProvider supplies the set of enabled sources for a refresh cycle.
// The scheduler snapshots the set at the start of every cycle, so registry
// changes take effect on the next refresh.
type SourceProvider interface {
	EnabledSources() ([]config.SourceConfig, error)
}

// StaticSources is a SourceProvider over a fixed slice, used when no
// database registry is wired in.
type StaticSources []config.SourceConfig

// EnabledSources returns the enabled subset of the static slice.
func (s StaticSources) EnabledSources() ([]config.SourceConfig, error) {
	out := make([]config.SourceConfig, 0, len(s))
	for _, src := range s {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out, nil
}

// lastGood holds a source's most recent successfully parsed entries, reused
// when a later cycle fails for that source (stale-but-available policy).
type lastGood struct {
	entries   []catalog.ChannelEntry
	fetchedAt time.Time
}

// sourceResult is the per-source outcome of one cycle's fetch+parse stage.
type sourceResult struct {
	entries  []catalog.ChannelEntry
	dropped  int
	filtered int
	err      error
}

// Status is a snapshot of the scheduler and catalog state for the health
// endpoint and the admin API.
type Status struct {
	Generation  uint64    `json:"generation"`
	Entries     int       `json:"entries"`
	BuiltAt     time.Time `json:"builtAt,omitzero"`
	InProgress  bool      `json:"inProgress"`
	LastOutcome string    `json:"lastOutcome,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	LastRefresh time.Time `json:"lastRefresh,omitzero"`
}

// Scheduler owns the refresh pipeline: on a timer tick or an on-demand
// trigger it fetches every enabled source, parses and filters the results,
// merges them into a fresh catalog, and publishes it. A CAS guard makes the
// whole cycle single-flight process-wide; overlapping triggers are no-ops.
//
// The scheduler always returns to idle. Per-source failures are absorbed
// into SourceStatuses, a cycle where every source fails records its outcome
// without touching the published catalog, and even a panic inside the
// pipeline is caught at the Refresh boundary.
type Scheduler struct {
	cfg      *config.Config
	fetch    *fetcher.Fetcher
	store    *catalog.Store
	filters  *filter.Manager
	provider SourceProvider
	pool     *ants.Pool
	db       *database.DB // optional, history recording is skipped when nil

	inProgress atomic.Bool                    // single-flight guard for the whole cycle
	last       *xsync.MapOf[string, *lastGood] // last successful entries per source name

	stateMu     sync.Mutex // protects the fields below
	lastOutcome string
	lastError   string
	lastRefresh time.Time

	stopChan chan struct{} // signals the periodic loop to exit
	stopOnce sync.Once
}

// New wires a Scheduler. db may be nil; history recording is then skipped.
func New(cfg *config.Config, fetch *fetcher.Fetcher, store *catalog.Store, filters *filter.Manager, provider SourceProvider, pool *ants.Pool, db *database.DB) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		fetch:    fetch,
		store:    store,
		filters:  filters,
		provider: provider,
		pool:     pool,
		db:       db,
		last:     xsync.NewMapOf[string, *lastGood](),
		stopChan: make(chan struct{}),
	}
}

// Start launches the periodic refresh loop. Each tick shares the exact code
// path and single-flight guard with on-demand triggers.
func (s *Scheduler) Start() {
	go func() {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				logger.Debug("{scheduler/scheduler - Start} Periodic refresh loop stopped")
				return
			case <-ticker.C:
				if err := s.Refresh(context.Background(), "interval"); err != nil {
					// an overlapping manual refresh holds the guard, skip the tick
					logger.Debug("{scheduler/scheduler - Start} Tick coalesced: %v", err)
				}
			}
		}
	}()

	logger.Info("{scheduler/scheduler - Start} Periodic refresh every %s", s.cfg.RefreshInterval)
}

// Stop terminates the periodic loop. A cycle already in flight finishes
// normally.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// TriggerAsync starts an on-demand refresh in the background. Returns false
// when a cycle is already running (the trigger is dropped).
func (s *Scheduler) TriggerAsync(trigger string) bool {
	if s.inProgress.Load() {
		return false
	}
	go func() {
		if err := s.Refresh(context.Background(), trigger); err != nil {
			logger.Debug("{scheduler/scheduler - TriggerAsync} Trigger %q coalesced: %v", trigger, err)
		}
	}()
	return true
}

// Refresh runs one full refresh cycle synchronously. Returns
// ErrRefreshInProgress when another cycle holds the single-flight guard.
// The guard is always released, and a panic inside the pipeline is caught
// here so the scheduler can never wedge in the running state.
func (s *Scheduler) Refresh(ctx context.Context, trigger string) error {
	if !s.inProgress.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("{scheduler/scheduler - Refresh} Refresh cycle panicked: %v", r)
			s.recordOutcome(OutcomeFailed, fmt.Sprintf("refresh panic: %v", r))
			metrics.RefreshCycles.WithLabelValues(OutcomeFailed).Inc()
		}
		s.inProgress.Store(false)
	}()

	started := time.Now()
	logger.Info("{scheduler/scheduler - Refresh} Starting refresh cycle (trigger: %s)", trigger)

	outcome, entryCount, errText := s.runCycle(ctx)

	elapsed := time.Since(started)
	metrics.RefreshCycles.WithLabelValues(outcome).Inc()
	metrics.RefreshDuration.Observe(elapsed.Seconds())
	s.recordOutcome(outcome, errText)

	if s.db != nil {
		rec := &database.CycleRecord{
			Generation: s.store.Generation(),
			Outcome:    outcome,
			Entries:    entryCount,
			Error:      errText,
			BuiltAt:    started,
			DurationMs: elapsed.Milliseconds(),
		}
		if err := s.db.RecordCycle(rec); err != nil {
			logger.Warn("{scheduler/scheduler - Refresh} Failed to record cycle history: %v", err)
		}
	}

	logger.Info("{scheduler/scheduler - Refresh} Cycle finished in %s: %s (generation %d, %d entries)",
		elapsed.Round(time.Millisecond), outcome, s.store.Generation(), entryCount)

	if outcome == OutcomeFailed {
		return errors.New(errText)
	}
	return nil
}

// runCycle executes fetch → parse → filter → merge → publish and returns
// the cycle outcome, the published entry count, and an error description
// for non-published outcomes.
func (s *Scheduler) runCycle(ctx context.Context) (string, int, string) {
	sources, err := s.provider.EnabledSources()
	if err != nil {
		return OutcomeSkipped, 0, fmt.Sprintf("failed to load sources: %v", err)
	}
	if len(sources) == 0 {
		logger.Warn("{scheduler/scheduler - runCycle} No enabled sources configured, publishing empty catalog")
		s.publish(nil, map[string]catalog.SourceStatus{})
		return OutcomePublished, 0, ""
	}

	results := s.collect(ctx, sources)

	// classify per-source outcomes, substituting last-good entries for
	// failed sources
	inputs := make([]merge.Input, 0, len(sources))
	statuses := make(map[string]catalog.SourceStatus, len(sources))
	fresh := 0
	now := time.Now()

	for i := range sources {
		src := sources[i]
		res, ok := results.Load(src.Name)

		switch {
		case ok && res.err == nil:
			fresh++
			s.last.Store(src.Name, &lastGood{entries: res.entries, fetchedAt: now})
			inputs = append(inputs, merge.Input{Source: src, Entries: res.entries})
			statuses[src.Name] = catalog.SourceStatus{
				Outcome:   catalog.OutcomeOK,
				Entries:   len(res.entries),
				Dropped:   res.dropped,
				Filtered:  res.filtered,
				FetchedAt: now,
			}

		default:
			errText := "cycle deadline exceeded"
			if ok && res.err != nil {
				errText = res.err.Error()
			}

			if prior, stale := s.last.Load(src.Name); stale {
				// stale-but-available: the source keeps its last successful
				// contribution instead of vanishing from the catalog
				inputs = append(inputs, merge.Input{Source: src, Entries: prior.entries})
				statuses[src.Name] = catalog.SourceStatus{
					Outcome:   catalog.OutcomeStale,
					Entries:   len(prior.entries),
					Error:     errText,
					FetchedAt: prior.fetchedAt,
				}
			} else {
				statuses[src.Name] = catalog.SourceStatus{
					Outcome: catalog.OutcomeEmpty,
					Error:   errText,
				}
			}
		}
	}

	if fresh == 0 {
		// nothing succeeded this cycle: never replace the current catalog
		// with stale reconstructions, just record what happened
		if s.store.Generation() == 0 {
			return OutcomeFailed, 0, "startup refresh failed: all sources failed and no prior catalog exists"
		}
		return OutcomeSkipped, len(s.store.Read().Entries), "all sources failed; serving previous catalog"
	}

	merged, duplicates := merge.Merge(inputs, s.cfg.DedupIdentity)

	// fold dedup losses into the statuses for observability
	for name, count := range duplicates {
		st := statuses[name]
		st.Duplicates = count
		st.Entries -= count
		statuses[name] = st
	}

	s.publish(merged, statuses)
	return OutcomePublished, len(merged), ""
}

// collect fetches and parses all sources in parallel on the worker pool,
// bounded by the cycle deadline. A source that misses the deadline simply
// has no entry in the returned map.
func (s *Scheduler) collect(ctx context.Context, sources []config.SourceConfig) *xsync.MapOf[string, *sourceResult] {
	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleDeadline)
	defer cancel()

	results := xsync.NewMapOf[string, *sourceResult]()
	var wg sync.WaitGroup

	for i := range sources {
		src := sources[i]
		wg.Add(1)

		task := func() {
			defer wg.Done()
			results.Store(src.Name, s.fetchSource(cycleCtx, &src))
		}

		// fall back to a plain goroutine if the pool rejects the task
		if err := s.pool.Submit(task); err != nil {
			go task()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-cycleCtx.Done():
		logger.Warn("{scheduler/scheduler - collect} Cycle deadline reached, proceeding with %d of %d sources", mapLen(results), len(sources))
	}

	return results
}

// fetchSource runs the fetch → parse → filter stages for one source and
// classifies any failure for metrics.
func (s *Scheduler) fetchSource(ctx context.Context, src *config.SourceConfig) *sourceResult {
	raw, err := s.fetch.Fetch(ctx, src)
	if err != nil {
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			metrics.SourceErrors.WithLabelValues(src.Name, fe.Kind.String()).Inc()
		}
		logger.Warn("{scheduler/scheduler - fetchSource} Fetch failed for %s: %v", src.Name, err)
		return &sourceResult{err: err}
	}

	parsed, err := parser.ParseSource(raw, src)
	if err != nil {
		metrics.SourceErrors.WithLabelValues(src.Name, "parse").Inc()
		logger.Warn("{scheduler/scheduler - fetchSource} Parse failed for %s: %v", src.Name, err)
		return &sourceResult{err: err}
	}

	entries, filtered := s.filters.Apply(parsed.Entries, src)

	logger.Debug("{scheduler/scheduler - fetchSource} Source %s: %d entries (%d dropped, %d filtered)",
		src.Name, len(entries), parsed.Dropped, filtered)

	return &sourceResult{
		entries:  entries,
		dropped:  parsed.Dropped,
		filtered: filtered,
	}
}

// publish assembles and publishes a new catalog, updating the gauges.
func (s *Scheduler) publish(entries []catalog.ChannelEntry, statuses map[string]catalog.SourceStatus) uint64 {
	gen := s.store.Publish(&catalog.Catalog{
		Entries:        entries,
		BuiltAt:        time.Now(),
		SourceStatuses: statuses,
	})

	metrics.CatalogGeneration.Set(float64(gen))
	metrics.CatalogEntries.Set(float64(len(entries)))
	return gen
}

// recordOutcome stores the cycle result for Status readers.
func (s *Scheduler) recordOutcome(outcome, errText string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lastOutcome = outcome
	s.lastError = errText
	s.lastRefresh = time.Now()
}

// Status reports the current scheduler and catalog state.
func (s *Scheduler) Status() Status {
	cat := s.store.Read()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	return Status{
		Generation:  cat.Generation,
		Entries:     len(cat.Entries),
		BuiltAt:     cat.BuiltAt,
		InProgress:  s.inProgress.Load(),
		LastOutcome: s.lastOutcome,
		LastError:   s.lastError,
		LastRefresh: s.lastRefresh,
	}
}

// mapLen counts entries in an xsync map; Range is the only size primitive
// shared across versions.
func mapLen[K comparable, V any](m *xsync.MapOf[K, V]) int {
	n := 0
	m.Range(func(K, V) bool {
		n++
		return true
	})
	return n
}

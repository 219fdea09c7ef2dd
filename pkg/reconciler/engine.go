package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/gwsync/pkg/lease"
	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/metrics"
	"github.com/cuemby/gwsync/pkg/registry"
	"github.com/cuemby/gwsync/pkg/types"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Leaser hands out the lease store-mode entries are bound to
type Leaser interface {
	Ensure(ctx context.Context) (string, error)
}

// SnapshotStore persists the cached snapshot across restarts
type SnapshotStore interface {
	SaveSnapshot(snap *types.Snapshot) error
	LoadSnapshot() (*types.Snapshot, error)
}

// EngineConfig configures an Engine
type EngineConfig struct {
	Client registry.Client

	// Lease, when set, binds every entry write to a lease. Without it
	// entries are written plainly and survive a crash of this process.
	Lease Leaser

	// Store, when set, persists every cached snapshot
	Store SnapshotStore

	// DebugDiff logs what changed between consecutive snapshots
	DebugDiff bool
}

// Result summarizes one publication
type Result struct {
	// Cached is set when the registry was unreachable and nothing was
	// published
	Cached bool

	Deleted        int
	DeleteFailed   int
	Written        int
	WriteFailed    int
	Registered     int
	RegisterFailed int

	// LeaseSkipped is set when the write phase was skipped for lack of a
	// lease
	LeaseSkipped bool

	// Err aggregates every individual failure
	Err error
}

// Failed returns the number of failed registry operations
func (r Result) Failed() int {
	return r.DeleteFailed + r.WriteFailed + r.RegisterFailed
}

// Engine publishes built states to the registry. It caches every state it
// is given, publishes only while the registry is reachable and deletes the
// keys the previous publication wrote that the new state no longer has.
type Engine struct {
	client    registry.Client
	lease     Leaser
	store     SnapshotStore
	debugDiff bool
	logger    zerolog.Logger

	// cycleMu serializes Reconcile and Replay
	cycleMu sync.Mutex

	cacheMu  sync.RWMutex
	snapshot *types.Snapshot

	reachMu   sync.RWMutex
	reachable bool

	keysMu sync.RWMutex
	known  map[string]struct{}
}

// NewEngine creates an engine. The registry starts out unreachable until
// the health monitor reports otherwise.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		client:    cfg.Client,
		lease:     cfg.Lease,
		store:     cfg.Store,
		debugDiff: cfg.DebugDiff,
		logger:    log.WithComponent("engine"),
		known:     make(map[string]struct{}),
	}
}

// Reconcile caches state and, if the registry is reachable, publishes it
func (e *Engine) Reconcile(ctx context.Context, state *types.State) Result {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.cache(state)
	return e.publish(ctx, state)
}

// Replay publishes the cached snapshot again. It reports false when there
// is nothing cached.
func (e *Engine) Replay(ctx context.Context) (Result, bool) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	snap := e.Snapshot()
	if snap == nil {
		return Result{}, false
	}

	metrics.ReplaysTotal.Inc()
	e.logger.Info().Time("cached_at", snap.CachedAt).Msg("Replaying cached snapshot")
	return e.publish(ctx, snap.State), true
}

// SetReachable records the registry's reachability and reports whether
// this call is a transition from unreachable to reachable
func (e *Engine) SetReachable(reachable bool) bool {
	e.reachMu.Lock()
	defer e.reachMu.Unlock()

	recovered := reachable && !e.reachable
	e.reachable = reachable
	metrics.SetBool(metrics.RegistryReachable, reachable)
	return recovered
}

// Reachable reports whether the registry is currently considered reachable
func (e *Engine) Reachable() bool {
	e.reachMu.RLock()
	defer e.reachMu.RUnlock()
	return e.reachable
}

// Snapshot returns the cached snapshot, nil if nothing was cached yet
func (e *Engine) Snapshot() *types.Snapshot {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	return e.snapshot
}

// SnapshotAge implements metrics.Source
func (e *Engine) SnapshotAge() (time.Duration, bool) {
	snap := e.Snapshot()
	if snap == nil {
		return 0, false
	}
	return time.Since(snap.CachedAt), true
}

// KnownKeys returns the keys of the last publication in lexical order
func (e *Engine) KnownKeys() []string {
	e.keysMu.RLock()
	defer e.keysMu.RUnlock()
	return sortedKeys(e.known)
}

// KnownKeyCount implements metrics.Source
func (e *Engine) KnownKeyCount() int {
	e.keysMu.RLock()
	defer e.keysMu.RUnlock()
	return len(e.known)
}

// Restore loads the persisted snapshot into the cache without publishing
// it. Known keys are not restored: the registry is authoritative for what
// a previous process wrote.
func (e *Engine) Restore() error {
	if e.store == nil {
		return nil
	}

	snap, err := e.store.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil || snap.State == nil {
		return nil
	}

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.snapshot == nil {
		e.snapshot = snap
		e.logger.Info().Time("cached_at", snap.CachedAt).Msg("Restored cached snapshot")
	}
	return nil
}

func (e *Engine) cache(state *types.State) {
	snap := &types.Snapshot{State: state, CachedAt: time.Now()}

	e.cacheMu.Lock()
	prev := e.snapshot
	e.snapshot = snap
	e.cacheMu.Unlock()

	if e.debugDiff && prev != nil {
		if diff := snapshotDiff(prev.State, state); diff != "" {
			e.logger.Debug().Str("diff", diff).Msg("Snapshot changed")
		}
	}

	if e.store != nil {
		if err := e.store.SaveSnapshot(snap); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to persist snapshot")
		}
	}
}

func (e *Engine) publish(ctx context.Context, state *types.State) Result {
	if !e.Reachable() {
		e.logger.Info().Msg("Registry unreachable, state cached")
		return Result{Cached: true}
	}

	var (
		res  Result
		errs *multierror.Error
	)

	newKeys := state.Keys()

	e.keysMu.RLock()
	var stale []string
	for key := range e.known {
		if _, ok := newKeys[key]; !ok {
			stale = append(stale, key)
		}
	}
	e.keysMu.RUnlock()
	sort.Strings(stale)

	for _, key := range stale {
		err := e.client.Delete(ctx, key)
		metrics.ObserveOperation("delete", err)
		if err != nil {
			res.DeleteFailed++
			errs = multierror.Append(errs, err)
			logger := log.WithKey(e.logger, key)
			logger.Warn().Err(err).Msg("Failed to delete stale key")
			continue
		}
		res.Deleted++
	}

	if len(state.Entries) > 0 {
		if err := e.writeEntries(ctx, state.Entries, &res); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	e.keysMu.Lock()
	e.known = newKeys
	e.keysMu.Unlock()

	for _, svc := range state.Services {
		err := e.client.RegisterService(ctx, svc)
		metrics.ObserveOperation("register", err)
		if err != nil {
			res.RegisterFailed++
			errs = multierror.Append(errs, err)
			e.logger.Warn().Err(err).Str("service", svc.ID).Msg("Failed to register service")
			continue
		}
		res.Registered++
		e.logger.Debug().Str("service", svc.ID).Strs("tags", svc.Tags).Msg("Service registered")
	}

	res.Err = errs.ErrorOrNil()
	e.logger.Info().
		Int("deleted", res.Deleted).
		Int("written", res.Written).
		Int("registered", res.Registered).
		Int("failed", res.Failed()).
		Bool("lease_skipped", res.LeaseSkipped).
		Msg("State published")
	return res
}

// writeEntries writes every entry, bound to the lease when leasing is on.
// Without a lease the whole phase is skipped and an error returned; per key
// failures are counted and aggregated into the result instead.
func (e *Engine) writeEntries(ctx context.Context, entries []types.KVEntry, res *Result) error {
	var token string
	if e.lease != nil {
		t, err := e.lease.Ensure(ctx)
		if err != nil {
			if errors.Is(err, lease.ErrLeaseUnavailable) {
				res.LeaseSkipped = true
				e.logger.Warn().Err(err).Int("entries", len(entries)).Msg("No lease, skipping writes this cycle")
			}
			return err
		}
		token = t
	}

	var errs *multierror.Error
	for _, entry := range entries {
		key := entry.Key()

		var err error
		if token != "" {
			err = e.client.PutWithLease(ctx, key, entry.Value, token)
			metrics.ObserveOperation("acquire", err)
		} else {
			err = e.client.Put(ctx, key, entry.Value)
			metrics.ObserveOperation("put", err)
		}

		if err != nil {
			res.WriteFailed++
			errs = multierror.Append(errs, err)
			logger := log.WithKey(e.logger, key)
			logger.Warn().Err(err).Msg("Failed to write key")
			continue
		}
		res.Written++
	}
	return errs.ErrorOrNil()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// snapshotDiff renders a line diff of two states, empty if they are equal
func snapshotDiff(prev, next *types.State) string {
	a, b := renderState(prev), renderState(next)
	if a == b {
		return ""
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		var sign string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			sign = "+"
		case diffmatchpatch.DiffDelete:
			sign = "-"
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			sb.WriteString(sign + line + "\n")
		}
	}
	return sb.String()
}

func renderState(s *types.State) string {
	var sb strings.Builder
	entries := s.EntryMap()
	for _, key := range s.SortedKeys() {
		fmt.Fprintf(&sb, "%s=%s\n", key, entries[key])
	}
	if s == nil {
		return sb.String()
	}
	for _, svc := range s.Services {
		fmt.Fprintf(&sb, "service %s %s:%d\n", svc.ID, svc.Address, svc.Port)
		for _, tag := range svc.Tags {
			fmt.Fprintf(&sb, "service %s tag %s\n", svc.ID, tag)
		}
	}
	return sb.String()
}

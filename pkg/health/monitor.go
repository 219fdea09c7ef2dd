package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/metrics"
	"github.com/cuemby/gwsync/pkg/reconciler"
	"github.com/rs/zerolog"
)

// Target receives the monitor's verdicts
type Target interface {
	// SetReachable records reachability and reports a down→up transition
	SetReachable(reachable bool) bool

	// Replay publishes the cached state again
	Replay(ctx context.Context) (reconciler.Result, bool)
}

// Monitor polls a checker and keeps the target's reachability current.
// When the checked dependency recovers the target's cache is replayed once.
type Monitor struct {
	checker Checker
	target  Target
	config  Config
	logger  zerolog.Logger

	mu     sync.Mutex
	status *Status

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMonitor creates a monitor
func NewMonitor(checker Checker, target Target, config Config) *Monitor {
	if config.Retries < 1 {
		config.Retries = 1
	}
	return &Monitor{
		checker: checker,
		target:  target,
		config:  config,
		logger:  log.WithComponent("health").With().Str("check", string(checker.Type())).Logger(),
		status:  NewStatus(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Status returns a copy of the current status
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.status
}

// Probe runs one check, updates the target and replays on recovery. It
// reports whether the dependency is considered healthy afterwards.
func (m *Monitor) Probe(ctx context.Context) bool {
	checkCtx := ctx
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}
	result := m.checker.Check(checkCtx)

	m.mu.Lock()
	wasHealthy := m.status.Healthy
	m.status.Update(result, m.config)
	healthy := m.status.Healthy
	failures := m.status.ConsecutiveFailures
	m.mu.Unlock()

	metrics.UpdateComponent(metrics.ComponentRegistry, healthy, result.Message)

	switch {
	case wasHealthy && !healthy:
		m.logger.Warn().Str("reason", result.Message).Int("failures", failures).Msg("Registry unreachable, caching state")
	case !healthy && failures > 0:
		m.logger.Debug().Str("reason", result.Message).Int("failures", failures).Msg("Registry probe failed")
	}

	if !m.target.SetReachable(healthy) {
		return healthy
	}

	m.logger.Info().Dur("probe", result.Duration).Msg("Registry reachable")
	if res, ok := m.target.Replay(ctx); ok && res.Err != nil {
		m.logger.Warn().Err(res.Err).Int("failed", res.Failed()).Msg("Replay finished with errors")
	}
	return healthy
}

// Start begins polling
func (m *Monitor) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.run()
	}
}

// Stop stops polling and waits for an in-flight check and its replay
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.started.Load() {
		<-m.done
	}
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Probe(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

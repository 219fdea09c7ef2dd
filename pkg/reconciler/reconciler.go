package reconciler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/gwsync/pkg/builder"
	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/metrics"
	"github.com/cuemby/gwsync/pkg/types"
	"github.com/rs/zerolog"
)

// Fetcher returns the gateway's current raw configuration
type Fetcher interface {
	Fetch(ctx context.Context) (*types.Object, error)
}

// Driver runs reconciliation cycles: fetch, build, publish
type Driver struct {
	fetcher  Fetcher
	builder  builder.Builder
	engine   *Engine
	interval time.Duration
	logger   zerolog.Logger

	// initialBackoff is the first bootstrap retry delay
	initialBackoff time.Duration

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewDriver creates a driver that runs a cycle every interval once started
func NewDriver(fetcher Fetcher, b builder.Builder, engine *Engine, interval time.Duration) *Driver {
	return &Driver{
		fetcher:  fetcher,
		builder:  b,
		engine:   engine,
		interval: interval,
		logger:   log.WithComponent("driver"),

		initialBackoff: 500 * time.Millisecond,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// RunOnce performs one cycle. A fetch or build failure leaves both the
// cache and the registry untouched.
func (d *Driver) RunOnce(ctx context.Context) (Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CycleDuration)

	fetchTimer := metrics.NewTimer()
	raw, err := d.fetcher.Fetch(ctx)
	fetchTimer.ObserveDuration(metrics.GatewayFetchDuration)
	if err != nil {
		metrics.GatewayFetchErrorsTotal.Inc()
		metrics.CyclesTotal.WithLabelValues(metrics.CycleFetchError).Inc()
		metrics.UpdateComponent(metrics.ComponentGateway, false, err.Error())
		return Result{}, fmt.Errorf("failed to fetch gateway configuration: %w", err)
	}
	metrics.UpdateComponent(metrics.ComponentGateway, true, "")

	state, err := d.builder.Build(raw)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues(metrics.CycleBuildError).Inc()
		return Result{}, fmt.Errorf("failed to build state: %w", err)
	}

	d.logger.Debug().
		Int("entries", len(state.Entries)).
		Int("services", len(state.Services)).
		Msg("State built")

	res := d.engine.Reconcile(ctx, state)
	if res.Cached {
		metrics.CyclesTotal.WithLabelValues(metrics.CycleCached).Inc()
	} else {
		metrics.CyclesTotal.WithLabelValues(metrics.CyclePublished).Inc()
	}
	return res, nil
}

// Bootstrap runs the first cycle, retrying with exponential backoff until
// it succeeds, ctx ends or one resync interval has passed
func (d *Driver) Bootstrap(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.initialBackoff
	bo.MaxInterval = d.interval
	bo.MaxElapsedTime = d.interval

	return backoff.RetryNotify(func() error {
		_, err := d.RunOnce(ctx)
		return err
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		d.logger.Warn().Err(err).Dur("retry_in", next).Msg("Bootstrap cycle failed")
	})
}

// Start begins the periodic cycle loop
func (d *Driver) Start() {
	if d.started.CompareAndSwap(false, true) {
		go d.run()
	}
}

// Stop stops the loop and waits for a running cycle to finish
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	if d.started.Load() {
		<-d.done
	}
}

func (d *Driver) run() {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-d.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				// Log error but continue
				d.logger.Error().Err(err).Msg("Reconciliation cycle failed")
			}
		case <-d.stopCh:
			return
		}
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/gwsync/pkg/api"
	"github.com/cuemby/gwsync/pkg/builder"
	"github.com/cuemby/gwsync/pkg/gateway"
	"github.com/cuemby/gwsync/pkg/health"
	"github.com/cuemby/gwsync/pkg/lease"
	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/metrics"
	"github.com/cuemby/gwsync/pkg/reconciler"
	"github.com/cuemby/gwsync/pkg/registry"
	"github.com/cuemby/gwsync/pkg/storage"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Synchronize routing configuration until interrupted",
	Long: `Run probes the registry, publishes the gateway's configuration once
(retrying with backoff) and then keeps it in sync: a periodic resync
fetches and publishes the gateway state, a health monitor tracks the
registry and replays the cached state when it comes back, and in kv mode
the entries are bound to a session that is renewed in the background.

On SIGINT or SIGTERM the session is destroyed, which removes every entry
this node wrote.`,
	RunE: runDaemon,
}

// daemon holds the long-running parts of the run command
type daemon struct {
	client  registry.Client
	builder builder.Builder
	engine  *reconciler.Engine
	lease   *lease.Manager
	store   *storage.BoltStore

	driver    *reconciler.Driver
	monitor   *health.Monitor
	collector *metrics.Collector
	status    *api.HealthServer

	logger zerolog.Logger
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon()
	if err != nil {
		return err
	}
	if d.store != nil {
		defer d.store.Close()
	}

	d.logger.Info().
		Str("instance", uuid.New().String()).
		Str("mode", cfg.Mode).
		Str("version", Version).
		Bool("leased", d.lease != nil).
		Msg("Starting gwsync")

	d.bootstrap(ctx)
	if ctx.Err() != nil {
		d.shutdown()
		return nil
	}

	d.monitor.Start()
	d.driver.Start()
	if d.lease != nil {
		d.lease.Start()
	}
	d.collector.Start()

	g, gctx := errgroup.WithContext(ctx)
	if d.status != nil {
		g.Go(func() error {
			return d.status.Start(cfg.StatusAddr)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info().Msg("Shutting down")
		d.shutdown()
		return nil
	})

	return g.Wait()
}

func newDaemon() (*daemon, error) {
	d := &daemon{logger: log.WithComponent("main")}

	client, err := newRegistry()
	if err != nil {
		return nil, err
	}
	d.client = client

	if d.builder, err = newBuilder(); err != nil {
		return nil, err
	}

	engineCfg := reconciler.EngineConfig{Client: client, DebugDiff: cfg.DebugDiff}
	if cfg.StateDir != "" {
		store, err := storage.NewBoltStore(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		if err := store.ClaimNode(cfg.NodeName); err != nil {
			store.Close()
			return nil, err
		}
		d.store = store
		engineCfg.Store = store
	}
	if cfg.Leased() {
		d.lease = lease.NewManager(client, cfg.Lease())
		engineCfg.Lease = d.lease
	}

	d.engine = reconciler.NewEngine(engineCfg)
	d.driver = reconciler.NewDriver(gateway.NewClient(cfg.Gateway()), d.builder, d.engine, cfg.ResyncInterval)
	d.monitor = health.NewMonitor(health.NewRegistryChecker(client), d.engine, cfg.Probe())
	d.collector = metrics.NewCollector(d.engine)
	if cfg.StatusAddr != "" {
		d.status = api.NewHealthServer(d.engine)
	}
	return d, nil
}

// bootstrap restores the persisted snapshot, probes the registry and runs
// the first cycle. A failed first cycle is not fatal: the periodic resync
// keeps trying.
func (d *daemon) bootstrap(ctx context.Context) {
	if err := d.engine.Restore(); err != nil {
		d.logger.Warn().Err(err).Msg("Ignoring persisted snapshot")
	}

	if !d.monitor.Probe(ctx) {
		d.logger.Warn().Msg("Registry unreachable at startup, state will be cached")
	}

	if err := d.driver.Bootstrap(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn().Err(err).Msg("Bootstrap cycle failed, continuing with periodic resync")
	}
}

func (d *daemon) shutdown() {
	d.driver.Stop()
	d.monitor.Stop()
	d.collector.Stop()
	if d.lease != nil {
		d.lease.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.status != nil {
		if err := d.status.Shutdown(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Status server shutdown failed")
		}
	}

	if d.lease != nil {
		if err := d.lease.Destroy(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Lease not destroyed, entries expire with its TTL")
		}
	}

	if cfg.DeregisterOnExit {
		if err := deregister(ctx, d.client, d.builder); err != nil {
			d.logger.Warn().Err(err).Msg("Service deregistration incomplete")
		}
	}

	d.logger.Info().Msg("Shutdown complete")
}

// deregister removes the node's synthetic services
func deregister(ctx context.Context, client registry.Client, b builder.Builder) error {
	logger := log.WithComponent("main")
	var errs *multierror.Error
	for _, svc := range b.Describe() {
		if err := client.DeregisterService(ctx, svc.ID); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		logger.Info().Str("service", svc.ID).Msg("Service deregistered")
	}
	return errs.ErrorOrNil()
}

package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/metrics"
	"github.com/cuemby/gwsync/pkg/registry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrLeaseUnavailable is returned by Ensure when no lease is held and a new
// one could not be created. It is transient: the next cycle tries again.
var ErrLeaseUnavailable = errors.New("lease unavailable")

// State is the lifecycle state of the lease
type State string

const (
	StateNoLease State = "no_lease"
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Config configures the lease manager
type Config struct {
	Node string

	// TTL is how long the registry keeps the lease without renewal
	TTL time.Duration

	// RenewInterval is the period of the renewal loop
	RenewInterval time.Duration
}

// Manager owns the node's lease. Keys written under the lease are removed
// by the registry when the lease is destroyed or runs out.
type Manager struct {
	client registry.Client
	cfg    Config
	name   string
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	token string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a lease manager. No lease is created until Ensure.
func NewManager(client registry.Client, cfg Config) *Manager {
	return &Manager{
		client: client,
		cfg:    cfg,
		name:   fmt.Sprintf("gwsync-%s-%s", cfg.Node, uuid.New().String()),
		logger: log.WithComponent("lease"),
		state:  StateNoLease,
		stopCh: make(chan struct{}),
	}
}

// Name returns the name leases are created with
func (m *Manager) Name() string {
	return m.name
}

// State returns the current lease state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the active lease token, empty if there is none
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return ""
	}
	return m.token
}

// Ensure returns the active lease token, creating a lease if needed
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateActive {
		return m.token, nil
	}

	token, err := m.client.CreateLease(ctx, m.name, m.cfg.TTL)
	metrics.ObserveOperation("create_lease", err)
	if err != nil {
		m.logger.Warn().Err(err).Str("state", string(m.state)).Msg("Failed to create lease")
		metrics.UpdateComponent(metrics.ComponentLease, false, err.Error())
		return "", fmt.Errorf("%w: %v", ErrLeaseUnavailable, err)
	}

	m.setState(StateActive, token)
	m.logger.Info().Str("lease", token).Dur("ttl", m.cfg.TTL).Msg("Lease created")
	return token, nil
}

// setState must be called with mu held
func (m *Manager) setState(state State, token string) {
	m.state = state
	m.token = token
	metrics.LeaseTransitionsTotal.WithLabelValues(string(state)).Inc()
	metrics.SetBool(metrics.LeaseActive, state == StateActive)
	metrics.UpdateComponent(metrics.ComponentLease, state != StateExpired, string(state))
}

// Renew extends the active lease once. A failed renewal expires the lease;
// the next Ensure creates a fresh one.
func (m *Manager) Renew(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return nil
	}

	err := m.client.RenewLease(ctx, m.token)
	metrics.ObserveOperation("renew_lease", err)
	if err != nil {
		m.logger.Warn().Err(err).Str("lease", m.token).Msg("Lease renewal failed, lease expired")
		m.setState(StateExpired, "")
		return err
	}

	m.logger.Debug().Str("lease", m.token).Msg("Lease renewed")
	return nil
}

// Start begins the renewal loop
func (m *Manager) Start() {
	go m.run()
}

// Stop ends the renewal loop. The lease itself is left in place.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) run() {
	interval := m.cfg.RenewInterval
	if interval <= 0 {
		interval = m.cfg.TTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = m.Renew(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Destroy ends the active lease. The registry deletes every key written
// under it. This is the clean shutdown path.
func (m *Manager) Destroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return nil
	}

	token := m.token
	err := m.client.DestroyLease(ctx, token)
	metrics.ObserveOperation("destroy_lease", err)
	if err != nil {
		return fmt.Errorf("failed to destroy lease %s: %w", token, err)
	}

	m.setState(StateNoLease, "")
	m.logger.Info().Str("lease", token).Msg("Lease destroyed")
	return nil
}

package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/types"
	"github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

// ConsulConfig configures the Consul client
type ConsulConfig struct {
	Address string
	Token   string

	// ProbeTimeout bounds Health calls
	ProbeTimeout time.Duration
	// WriteTimeout bounds every other call
	WriteTimeout time.Duration
}

// Consul implements Client on top of the Consul HTTP API
type Consul struct {
	client       *api.Client
	probeTimeout time.Duration
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// NewConsul creates a Consul client. No request is made.
func NewConsul(cfg ConsulConfig) (*Consul, error) {
	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Token != "" {
		apiCfg.Token = cfg.Token
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	c := &Consul{
		client:       client,
		probeTimeout: cfg.ProbeTimeout,
		writeTimeout: cfg.WriteTimeout,
		logger:       log.WithComponent("registry"),
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = 5 * time.Second
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = 10 * time.Second
	}
	return c, nil
}

func (c *Consul) writeOptions(ctx context.Context) (*api.WriteOptions, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	return (&api.WriteOptions{}).WithContext(ctx), cancel
}

// Health asks the cluster for its leader
func (c *Consul) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	leader, err := c.client.Status().LeaderWithQueryOptions((&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to query leader: %w", err)
	}
	if leader == "" {
		return ErrNoLeader
	}
	return nil
}

// Put writes key without a lease
func (c *Consul) Put(ctx context.Context, key, value string) error {
	opts, cancel := c.writeOptions(ctx)
	defer cancel()

	if _, err := c.client.KV().Put(&api.KVPair{Key: key, Value: []byte(value)}, opts); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// PutWithLease acquires key with the session lease
func (c *Consul) PutWithLease(ctx context.Context, key, value, lease string) error {
	opts, cancel := c.writeOptions(ctx)
	defer cancel()

	pair := &api.KVPair{Key: key, Value: []byte(value), Session: lease}
	ok, _, err := c.client.KV().Acquire(pair, opts)
	if err != nil {
		return fmt.Errorf("failed to acquire %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire %s: %w", key, ErrLeaseConflict)
	}
	return nil
}

// Delete removes a single key
func (c *Consul) Delete(ctx context.Context, key string) error {
	opts, cancel := c.writeOptions(ctx)
	defer cancel()

	if _, err := c.client.KV().Delete(key, opts); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeleteTree removes every key starting with prefix
func (c *Consul) DeleteTree(ctx context.Context, prefix string) error {
	opts, cancel := c.writeOptions(ctx)
	defer cancel()

	if _, err := c.client.KV().DeleteTree(prefix, opts); err != nil {
		return fmt.Errorf("failed to delete tree %s: %w", prefix, err)
	}
	return nil
}

// CreateLease creates a session whose keys are deleted when it ends
func (c *Consul) CreateLease(ctx context.Context, name string, ttl time.Duration) (string, error) {
	opts, cancel := c.writeOptions(ctx)
	defer cancel()

	id, _, err := c.client.Session().Create(&api.SessionEntry{
		Name:      name,
		TTL:       ttl.String(),
		Behavior:  api.SessionBehaviorDelete,
		LockDelay: time.Millisecond,
	}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	c.logger.Debug().Str("session", id).Str("ttl", ttl.String()).Msg("Session created")
	return id, nil
}

// RenewLease extends the session ttl
func (c *Consul) RenewLease(ctx context.Context, id string) error {
	opts, cancel := c.writeOptions(ctx)
	defer cancel()

	entry, _, err := c.client.Session().Renew(id, opts)
	if err != nil {
		return fmt.Errorf("failed to renew session %s: %w", id, err)
	}
	if entry == nil {
		return fmt.Errorf("failed to renew session %s: %w", id, ErrLeaseNotFound)
	}
	return nil
}

// DestroyLease ends the session, deleting every key acquired under it
func (c *Consul) DestroyLease(ctx context.Context, id string) error {
	opts, cancel := c.writeOptions(ctx)
	defer cancel()

	if _, err := c.client.Session().Destroy(id, opts); err != nil {
		return fmt.Errorf("failed to destroy session %s: %w", id, err)
	}
	return nil
}

// RegisterService registers svc with the local agent, replacing any
// previous registration with the same id
func (c *Consul) RegisterService(ctx context.Context, svc types.ServicePayload) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	reg := &api.AgentServiceRegistration{
		ID:      svc.ID,
		Name:    svc.Name,
		Address: svc.Address,
		Port:    svc.Port,
		Tags:    svc.Tags,
		Check: &api.AgentServiceCheck{
			TCP:                            svc.Check.TCP,
			Interval:                       svc.Check.Interval,
			Timeout:                        svc.Check.Timeout,
			DeregisterCriticalServiceAfter: svc.Check.DeregisterAfter,
		},
	}

	opts := api.ServiceRegisterOpts{ReplaceExistingChecks: true}.WithContext(ctx)
	if err := c.client.Agent().ServiceRegisterOpts(reg, opts); err != nil {
		return fmt.Errorf("failed to register service %s: %w", svc.ID, err)
	}
	return nil
}

// DeregisterService removes a service from the local agent
func (c *Consul) DeregisterService(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := c.client.Agent().ServiceDeregisterOpts(id, (&api.QueryOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to deregister service %s: %w", id, err)
	}
	return nil
}

package builder

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/naming"
	"github.com/cuemby/gwsync/pkg/types"
	"github.com/rs/zerolog"
)

// Mode selects how routing configuration is published
type Mode string

const (
	// ModeKV writes the configuration into the registry key/value store
	ModeKV Mode = "kv"
	// ModeTags attaches the configuration as service tags
	ModeTags Mode = "tags"
)

// Default entry point names used to classify routers
const (
	DefaultEntryPointPlain  = "web"
	DefaultEntryPointSecure = "websecure"
	DefaultPrefix           = "traefik"
)

// Builder turns a raw gateway document into the state to publish
type Builder interface {
	// Mode reports which strategy the builder implements
	Mode() Mode

	// Build computes the full state for one reconciliation cycle
	Build(raw *types.Object) (*types.State, error)

	// Describe returns the tag-less liveness registrations of this node
	Describe() []types.ServicePayload
}

// CheckConfig configures the registry-side health check of the synthetic
// services
type CheckConfig struct {
	Interval        time.Duration
	Timeout         time.Duration
	DeregisterAfter time.Duration
}

// Config holds everything a builder needs besides the raw document
type Config struct {
	Node string

	// PlainURL is the plaintext backend of this gateway. Required.
	PlainURL string
	// EncryptedURL is the TLS backend. Optional: without it encrypted
	// routers are served by the plaintext backend.
	EncryptedURL string

	EntryPointPlain  string
	EntryPointSecure string

	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	Check CheckConfig

	// Prefix is the key/value root, store mode only
	Prefix string
}

// New creates the builder for mode
func New(mode Mode, cfg Config) (Builder, error) {
	switch mode {
	case ModeKV:
		return NewKVBuilder(cfg)
	case ModeTags:
		return NewTagBuilder(cfg)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

// endpoint is one synthetic service of the node
type endpoint struct {
	url       string
	address   string
	port      int
	service   string
	id        string
	encrypted bool
}

// base holds what both strategies share: the node's endpoints, the
// entry-point split and payload construction.
type base struct {
	cfg       Config
	plain     *endpoint
	encrypted *endpoint
	logger    zerolog.Logger
}

func newBase(cfg Config, component string) (*base, error) {
	if cfg.Node == "" {
		return nil, fmt.Errorf("node name is required")
	}
	if cfg.EntryPointPlain == "" {
		cfg.EntryPointPlain = DefaultEntryPointPlain
	}
	if cfg.EntryPointSecure == "" {
		cfg.EntryPointSecure = DefaultEntryPointSecure
	}

	b := &base{
		cfg:    cfg,
		logger: log.WithComponent(component).With().Str("node", cfg.Node).Logger(),
	}

	plain, err := newEndpoint(cfg.Node, cfg.PlainURL, false)
	if err != nil {
		return nil, fmt.Errorf("plaintext backend: %w", err)
	}
	b.plain = plain

	if cfg.EncryptedURL != "" {
		encrypted, err := newEndpoint(cfg.Node, cfg.EncryptedURL, true)
		if err != nil {
			return nil, fmt.Errorf("encrypted backend: %w", err)
		}
		b.encrypted = encrypted
	}

	return b, nil
}

func newEndpoint(node, rawURL string, encrypted bool) (*endpoint, error) {
	addr, port, err := naming.ParseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}
	proto := "http"
	if encrypted {
		proto = "https"
	}
	return &endpoint{
		url:       rawURL,
		address:   addr,
		port:      port,
		service:   ServiceName(node, proto),
		id:        ServiceID(node, proto),
		encrypted: encrypted,
	}, nil
}

// ServiceName returns the registry name of a node's synthetic service
func ServiceName(node, proto string) string {
	return "gw-" + naming.Sanitize(node) + "-" + proto
}

// ServiceID returns the registry id of a node's synthetic service
func ServiceID(node, proto string) string {
	return "gw:" + node + ":" + proto
}

// endpoints returns the configured endpoints, plaintext first
func (b *base) endpoints() []*endpoint {
	if b.encrypted == nil {
		return []*endpoint{b.plain}
	}
	return []*endpoint{b.plain, b.encrypted}
}

// encryptedService is the service encrypted routers bind to
func (b *base) encryptedService() string {
	if b.encrypted == nil {
		return b.plain.service
	}
	return b.encrypted.service
}

func (b *base) payload(ep *endpoint, tags []string) types.ServicePayload {
	return types.ServicePayload{
		ID:      ep.id,
		Name:    ep.service,
		Address: ep.address,
		Port:    ep.port,
		Tags:    tags,
		Check: types.HealthCheck{
			TCP:             net.JoinHostPort(ep.address, strconv.Itoa(ep.port)),
			Interval:        b.cfg.Check.Interval.String(),
			Timeout:         b.cfg.Check.Timeout.String(),
			DeregisterAfter: b.cfg.Check.DeregisterAfter.String(),
		},
	}
}

// Describe returns one tag-less payload per configured endpoint
func (b *base) Describe() []types.ServicePayload {
	var out []types.ServicePayload
	for _, ep := range b.endpoints() {
		out = append(out, b.payload(ep, nil))
	}
	return out
}

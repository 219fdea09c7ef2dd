package builder

import (
	"errors"
	"strconv"

	"github.com/cuemby/gwsync/pkg/flatten"
	"github.com/cuemby/gwsync/pkg/naming"
	"github.com/cuemby/gwsync/pkg/types"
)

// KVBuilder publishes the routing configuration as a key/value tree. The
// services it describes carry no tags and exist for liveness checks only.
type KVBuilder struct {
	*base
	prefix string
}

// NewKVBuilder creates a store strategy builder
func NewKVBuilder(cfg Config) (*KVBuilder, error) {
	b, err := newBase(cfg, "builder")
	if err != nil {
		return nil, err
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KVBuilder{base: b, prefix: prefix}, nil
}

// Mode implements Builder
func (b *KVBuilder) Mode() Mode {
	return ModeKV
}

// Prefix returns the key/value root the builder writes under
func (b *KVBuilder) Prefix() string {
	return b.prefix
}

// NodePrefixes returns the key prefixes owned by this node. Routers and
// middlewares are matched by their namespaced name, so a node whose
// sanitized name extends this one (gw1 vs gw1-b) shares those prefixes.
func (b *KVBuilder) NodePrefixes() []string {
	http := b.prefix + "/http/"
	edge := naming.Sanitize(b.cfg.Node) + "-"

	prefixes := []string{
		http + "routers/" + edge,
		http + "middlewares/" + edge,
	}
	for _, ep := range b.endpoints() {
		prefixes = append(prefixes,
			http+"services/"+ep.service+"/",
			http+"serversTransports/"+ep.service+"/",
		)
	}
	return prefixes
}

// Build implements Builder
func (b *KVBuilder) Build(raw *types.Object) (*types.State, error) {
	doc := b.normalize(raw)
	state := &types.State{Services: b.Describe()}

	for _, ep := range b.endpoints() {
		state.Entries = append(state.Entries, b.serviceEntries(ep)...)
	}

	for _, mw := range doc.middlewares {
		entries, err := b.middlewareEntries(mw)
		if err != nil {
			if errors.Is(err, flatten.ErrTooDeep) {
				b.logger.Warn().Err(err).Str("middleware", mw.name).Msg("Dropping middleware")
				continue
			}
			return nil, err
		}
		state.Entries = append(state.Entries, entries...)
	}

	for _, r := range doc.routers {
		state.Entries = append(state.Entries, b.routerEntries(r)...)
	}

	return state, nil
}

func (b *KVBuilder) entry(value string, path ...string) types.KVEntry {
	p := make([]string, 0, len(path)+2)
	p = append(p, b.prefix, "http")
	return types.KVEntry{Path: append(p, path...), Value: value}
}

func (b *KVBuilder) serviceEntries(ep *endpoint) []types.KVEntry {
	entries := []types.KVEntry{
		b.entry(ep.url, "services", ep.service, "loadBalancer", "servers", "0", "url"),
		b.entry(ep.service, "services", ep.service, "loadBalancer", "serversTransport"),
		b.entry(strconv.Itoa(b.cfg.MaxIdleConnsPerHost), "serversTransports", ep.service, "maxIdleConnsPerHost"),
		b.entry(b.cfg.IdleConnTimeout.String(), "serversTransports", ep.service, "forwardingTimeouts", "idleConnTimeout"),
	}
	if ep.encrypted {
		entries = append(entries, b.entry("true", "serversTransports", ep.service, "insecureSkipVerify"))
	}
	return entries
}

func (b *KVBuilder) middlewareEntries(mw edgeMiddleware) ([]types.KVEntry, error) {
	if mw.Config == nil {
		return []types.KVEntry{b.entry("true", "middlewares", mw.name, mw.Type)}, nil
	}
	entries, err := flatten.Flatten(mw.Config, b.prefix, "http", "middlewares", mw.name, mw.Type)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		// no options: enable the middleware with its defaults
		entries = []types.KVEntry{b.entry("true", "middlewares", mw.name, mw.Type)}
	}
	return entries, nil
}

func (b *KVBuilder) routerEntries(r types.EdgeRouter) []types.KVEntry {
	entries := []types.KVEntry{
		b.entry(r.Rule, "routers", r.Name, "rule"),
		b.entry(r.Service, "routers", r.Name, "service"),
	}
	if r.TLS {
		entries = append(entries, b.entry("true", "routers", r.Name, "tls"))
	}
	if r.Priority != "" {
		entries = append(entries, b.entry(r.Priority, "routers", r.Name, "priority"))
	}
	for i, ep := range r.EntryPoints {
		entries = append(entries, b.entry(ep, "routers", r.Name, "entryPoints", strconv.Itoa(i)))
	}
	for i, mw := range r.Middlewares {
		entries = append(entries, b.entry(mw, "routers", r.Name, "middlewares", strconv.Itoa(i)))
	}
	return entries
}

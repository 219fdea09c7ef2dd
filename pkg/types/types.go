package types

import (
	"sort"
	"strings"
	"time"
)

// Router is a gateway router reduced to the fields that are allowed to
// leave the gateway. It never references a backend service.
type Router struct {
	Rule        string
	EntryPoints []string
	Middlewares []string
	TLS         bool
	Priority    string
}

// Property is one key/value pair of an ordered property list
type Property struct {
	Key   string
	Value string
}

// Middleware is a gateway middleware with its inferred type
type Middleware struct {
	// Type is the middleware kind, e.g. "stripPrefix"
	Type string

	// Config is the raw value found under Type
	Config any

	// Properties are the lower-cased "type.key" pairs used for labels
	Properties []Property
}

// EdgeRouter is a namespaced router bound to exactly one synthetic service
type EdgeRouter struct {
	Name        string
	Rule        string
	EntryPoints []string
	Middlewares []string
	Priority    string
	TLS         bool
	Service     string
}

// KVEntry is a single key/value pair written to the registry store
type KVEntry struct {
	Path  []string `json:"path" yaml:"path"`
	Value string   `json:"value" yaml:"value"`
}

// Key returns the slash-joined registry key
func (e KVEntry) Key() string {
	return strings.Join(e.Path, "/")
}

// HealthCheck is the registry-side liveness check of a service
type HealthCheck struct {
	TCP             string `json:"tcp" yaml:"tcp"`
	Interval        string `json:"interval" yaml:"interval"`
	Timeout         string `json:"timeout" yaml:"timeout"`
	DeregisterAfter string `json:"deregister_after" yaml:"deregister_after"`
}

// ServicePayload is a service registration for one protocol of one node
type ServicePayload struct {
	ID      string      `json:"id" yaml:"id"`
	Name    string      `json:"name" yaml:"name"`
	Address string      `json:"address" yaml:"address"`
	Port    int         `json:"port" yaml:"port"`
	Tags    []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Check   HealthCheck `json:"check" yaml:"check"`
}

// State is everything one build produces for the registry
type State struct {
	Entries  []KVEntry        `json:"entries,omitempty" yaml:"entries,omitempty"`
	Services []ServicePayload `json:"services" yaml:"services"`
}

// Keys returns the set of registry keys held by the state
func (s *State) Keys() map[string]struct{} {
	keys := make(map[string]struct{})
	if s == nil {
		return keys
	}
	for _, e := range s.Entries {
		keys[e.Key()] = struct{}{}
	}
	return keys
}

// EntryMap returns the entries as key -> value
func (s *State) EntryMap() map[string]string {
	m := make(map[string]string)
	if s == nil {
		return m
	}
	for _, e := range s.Entries {
		m[e.Key()] = e.Value
	}
	return m
}

// SortedKeys returns the registry keys in lexical order
func (s *State) SortedKeys() []string {
	set := s.Keys()
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot is a cached state together with the time it was computed
type Snapshot struct {
	State    *State    `json:"state"`
	CachedAt time.Time `json:"cached_at"`
}

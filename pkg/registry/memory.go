package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/gwsync/pkg/types"
	"github.com/google/uuid"
)

// ErrUnavailable is returned by every Memory call while it is marked down
var ErrUnavailable = errors.New("registry unavailable")

// Op is one call recorded by Memory
type Op struct {
	Kind string
	Key  string
}

type memoryValue struct {
	value string
	lease string
}

// Memory is an in-process Client. It backs dry runs and tests: every call is
// recorded, and individual operations can be made to fail.
type Memory struct {
	mu       sync.Mutex
	kv       map[string]memoryValue
	leases   map[string]time.Duration
	services map[string]types.ServicePayload
	ops      []Op
	down     bool

	// Fail, when set, is consulted before every operation; a non-nil
	// result fails the call. Kind is the Op kind, key the key, prefix,
	// lease or service id the call refers to.
	Fail func(kind, key string) error
}

// NewMemory creates an empty in-memory registry
func NewMemory() *Memory {
	return &Memory{
		kv:       make(map[string]memoryValue),
		leases:   make(map[string]time.Duration),
		services: make(map[string]types.ServicePayload),
	}
}

// SetDown makes every following call fail with ErrUnavailable
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// Ops returns the calls recorded so far
func (m *Memory) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Op, len(m.ops))
	copy(out, m.ops)
	return out
}

// ResetOps clears the call record
func (m *Memory) ResetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}

// Keys returns the stored keys in lexical order
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.kv))
	for k := range m.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the value stored under key and the lease holding it
func (m *Memory) Value(key string) (value, lease string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	return v.value, v.lease, ok
}

// Service returns a registered service
func (m *Memory) Service(id string) (types.ServicePayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[id]
	return svc, ok
}

// Leases returns the number of live leases
func (m *Memory) Leases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}

// ExpireLease drops a lease as if its ttl ran out
func (m *Memory) ExpireLease(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLease(id)
}

// record must be called with mu held
func (m *Memory) record(ctx context.Context, kind, key string) error {
	m.ops = append(m.ops, Op{Kind: kind, Key: key})
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.down {
		return ErrUnavailable
	}
	if m.Fail != nil {
		return m.Fail(kind, key)
	}
	return nil
}

func (m *Memory) dropLease(id string) {
	delete(m.leases, id)
	for k, v := range m.kv {
		if v.lease == id {
			delete(m.kv, k)
		}
	}
}

// Health implements Client
func (m *Memory) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(ctx, "health", "")
}

// Put implements Client
func (m *Memory) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "put", key); err != nil {
		return err
	}
	m.kv[key] = memoryValue{value: value}
	return nil
}

// PutWithLease implements Client
func (m *Memory) PutWithLease(ctx context.Context, key, value, lease string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "acquire", key); err != nil {
		return err
	}
	if _, ok := m.leases[lease]; !ok {
		return fmt.Errorf("failed to acquire %s: %w", key, ErrLeaseNotFound)
	}
	if cur, ok := m.kv[key]; ok && cur.lease != "" && cur.lease != lease {
		return fmt.Errorf("failed to acquire %s: %w", key, ErrLeaseConflict)
	}
	m.kv[key] = memoryValue{value: value, lease: lease}
	return nil
}

// Delete implements Client
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "delete", key); err != nil {
		return err
	}
	delete(m.kv, key)
	return nil
}

// DeleteTree implements Client
func (m *Memory) DeleteTree(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "delete-tree", prefix); err != nil {
		return err
	}
	for k := range m.kv {
		if strings.HasPrefix(k, prefix) {
			delete(m.kv, k)
		}
	}
	return nil
}

// CreateLease implements Client
func (m *Memory) CreateLease(ctx context.Context, name string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "create-lease", name); err != nil {
		return "", err
	}
	id := uuid.New().String()
	m.leases[id] = ttl
	return id, nil
}

// RenewLease implements Client
func (m *Memory) RenewLease(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "renew-lease", id); err != nil {
		return err
	}
	if _, ok := m.leases[id]; !ok {
		return fmt.Errorf("failed to renew session %s: %w", id, ErrLeaseNotFound)
	}
	return nil
}

// DestroyLease implements Client
func (m *Memory) DestroyLease(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "destroy-lease", id); err != nil {
		return err
	}
	m.dropLease(id)
	return nil
}

// RegisterService implements Client
func (m *Memory) RegisterService(ctx context.Context, svc types.ServicePayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "register", svc.ID); err != nil {
		return err
	}
	m.services[svc.ID] = svc
	return nil
}

// DeregisterService implements Client
func (m *Memory) DeregisterService(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "deregister", id); err != nil {
		return err
	}
	delete(m.services, id)
	return nil
}

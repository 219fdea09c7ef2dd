package registry

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/gwsync/pkg/types"
)

var (
	// ErrNoLeader is returned by Health when the registry has no elected
	// leader and therefore cannot accept writes
	ErrNoLeader = errors.New("registry has no leader")

	// ErrLeaseConflict is returned when a key is held by another lease
	ErrLeaseConflict = errors.New("key is held by another lease")

	// ErrLeaseNotFound is returned when renewing a lease the registry no
	// longer knows about
	ErrLeaseNotFound = errors.New("lease not found")
)

// Client is the set of registry operations gwsync relies on
type Client interface {
	// Health reports whether the registry is reachable and able to write
	Health(ctx context.Context) error

	Put(ctx context.Context, key, value string) error
	// PutWithLease writes key bound to lease; the key disappears when the
	// lease is destroyed or expires
	PutWithLease(ctx context.Context, key, value, lease string) error
	Delete(ctx context.Context, key string) error
	DeleteTree(ctx context.Context, prefix string) error

	// CreateLease returns the id of a new lease with the given ttl
	CreateLease(ctx context.Context, name string, ttl time.Duration) (string, error)
	RenewLease(ctx context.Context, id string) error
	DestroyLease(ctx context.Context, id string) error

	RegisterService(ctx context.Context, svc types.ServicePayload) error
	DeregisterService(ctx context.Context, id string) error
}

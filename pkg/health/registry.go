package health

import (
	"context"
	"time"

	"github.com/cuemby/gwsync/pkg/registry"
)

// RegistryChecker probes the registry's ability to accept writes
type RegistryChecker struct {
	Client registry.Client
}

// NewRegistryChecker creates a registry checker
func NewRegistryChecker(client registry.Client) *RegistryChecker {
	return &RegistryChecker{Client: client}
}

// Check performs the registry health check
func (c *RegistryChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if err := c.Client.Health(ctx); err != nil {
		return Result{
			Healthy:   false,
			Message:   err.Error(),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   "registry reachable",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the check type
func (c *RegistryChecker) Type() CheckType {
	return CheckTypeRegistry
}

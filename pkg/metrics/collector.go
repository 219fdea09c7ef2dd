package metrics

import (
	"time"
)

// Source exposes the reconciliation state sampled by the Collector
type Source interface {
	// KnownKeyCount returns the number of keys last published
	KnownKeyCount() int

	// SnapshotAge returns how old the cached snapshot is, false if there
	// is none
	SnapshotAge() (time.Duration, bool)
}

// Collector periodically samples gauges that are not updated inline
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source) *Collector {
	return &Collector{
		source:   source,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	KnownKeys.Set(float64(c.source.KnownKeyCount()))

	if age, ok := c.source.SnapshotAge(); ok {
		SnapshotAge.Set(age.Seconds())
	} else {
		SnapshotAge.Set(0)
	}
}

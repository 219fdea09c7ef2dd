package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/gwsync/pkg/builder"
	"github.com/cuemby/gwsync/pkg/registry"
	"github.com/cuemby/gwsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawdata = `{
  "routers": {
    "api@docker": {"rule": "Host(` + "`api.example.com`" + `)", "entryPoints": ["web", "websecure"]},
    "api@internal": {"rule": "PathPrefix(` + "`/api`" + `)", "entryPoints": ["traefik"]}
  },
  "middlewares": {
    "compress@file": {"compress": {}, "status": "enabled"}
  }
}`

// fakeFetcher fails the first failures calls, then serves doc
type fakeFetcher struct {
	mu       sync.Mutex
	doc      string
	failures int
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*types.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return types.ParseObject([]byte(f.doc))
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDriver(t *testing.T, fetcher Fetcher) (*Driver, *Engine, *registry.Memory) {
	t.Helper()
	b, err := builder.NewKVBuilder(builder.Config{
		Node:                "gw1",
		PlainURL:            "http://10.0.0.5:80",
		EncryptedURL:        "https://10.0.0.5:443",
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
		Check:               builder.CheckConfig{Interval: 10 * time.Second, Timeout: 5 * time.Second, DeregisterAfter: 30 * time.Second},
	})
	require.NoError(t, err)

	mem := registry.NewMemory()
	engine := NewEngine(EngineConfig{Client: mem})
	engine.SetReachable(true)

	d := NewDriver(fetcher, b, engine, time.Minute)
	d.initialBackoff = 5 * time.Millisecond
	return d, engine, mem
}

func TestDriver_RunOnce(t *testing.T) {
	d, engine, mem := newTestDriver(t, &fakeFetcher{doc: rawdata})

	res, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Registered)
	assert.Positive(t, res.Written)

	v, _, ok := mem.Value("traefik/http/routers/gw1-api__docker_encrypted/tls")
	require.True(t, ok)
	assert.Equal(t, "true", v)

	for _, key := range mem.Keys() {
		assert.NotContains(t, key, "internal")
	}
	assert.Equal(t, mem.Keys(), engine.KnownKeys())
}

func TestDriver_FetchFailureLeavesStateUntouched(t *testing.T) {
	fetcher := &fakeFetcher{doc: rawdata}
	d, engine, mem := newTestDriver(t, fetcher)

	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	published := mem.Keys()
	snap := engine.Snapshot()

	fetcher.mu.Lock()
	fetcher.failures = 100
	fetcher.mu.Unlock()
	mem.ResetOps()

	_, err = d.RunOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, mem.Ops())
	assert.Equal(t, published, mem.Keys())
	assert.Same(t, snap, engine.Snapshot())
}

func TestDriver_BadDocument(t *testing.T) {
	d, engine, _ := newTestDriver(t, &fakeFetcher{doc: `["not", "an", "object"]`})

	_, err := d.RunOnce(context.Background())
	require.Error(t, err)
	assert.Nil(t, engine.Snapshot())
}

func TestDriver_BootstrapRetries(t *testing.T) {
	fetcher := &fakeFetcher{doc: rawdata, failures: 2}
	d, engine, _ := newTestDriver(t, fetcher)

	require.NoError(t, d.Bootstrap(context.Background()))
	assert.Equal(t, 3, fetcher.Calls())
	assert.NotNil(t, engine.Snapshot())
}

func TestDriver_BootstrapGivesUp(t *testing.T) {
	fetcher := &fakeFetcher{doc: rawdata, failures: 1 << 30}
	d, _, _ := newTestDriver(t, fetcher)
	d.interval = 50 * time.Millisecond

	err := d.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Greater(t, fetcher.Calls(), 1)
}

func TestDriver_BootstrapCanceled(t *testing.T) {
	d, _, _ := newTestDriver(t, &fakeFetcher{doc: rawdata, failures: 1 << 30})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, d.Bootstrap(ctx))
}

func TestDriver_StartStop(t *testing.T) {
	fetcher := &fakeFetcher{doc: rawdata}
	d, _, _ := newTestDriver(t, fetcher)
	d.interval = 10 * time.Millisecond

	d.Start()
	assert.Eventually(t, func() bool { return fetcher.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	d.Stop()

	calls := fetcher.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, fetcher.Calls(), "no cycle after Stop")

	d.Stop()
}

func TestDriver_StopWithoutStart(t *testing.T) {
	d, _, _ := newTestDriver(t, &fakeFetcher{doc: rawdata})
	d.Stop()
}

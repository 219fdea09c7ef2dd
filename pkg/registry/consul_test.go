package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/gwsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeConsul answers the handful of endpoints the client uses
type fakeConsul struct {
	mu       sync.Mutex
	requests []request
	leader   string
	acquire  bool
	sessions map[string]bool
}

func newFakeConsul(t *testing.T) (*fakeConsul, *Consul) {
	t.Helper()
	f := &fakeConsul{leader: `"10.0.0.1:8300"`, acquire: true, sessions: map[string]bool{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewConsul(ConsulConfig{Address: srv.URL, ProbeTimeout: time.Second, WriteTimeout: time.Second})
	require.NoError(t, err)
	return f, c
}

func (f *fakeConsul) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})

	path := r.URL.Path
	switch {
	case path == "/v1/status/leader":
		_, _ = io.WriteString(w, f.leader)
	case strings.HasPrefix(path, "/v1/kv/"):
		if r.URL.Query().Has("acquire") {
			_ = json.NewEncoder(w).Encode(f.acquire)
			return
		}
		_, _ = io.WriteString(w, "true")
	case path == "/v1/session/create":
		f.sessions["sess-1"] = true
		_, _ = io.WriteString(w, `{"ID":"sess-1"}`)
	case strings.HasPrefix(path, "/v1/session/renew/"):
		id := strings.TrimPrefix(path, "/v1/session/renew/")
		if !f.sessions[id] {
			http.Error(w, "Session id '"+id+"' not found", http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `[{"ID":"`+id+`","TTL":"30s"}]`)
	case strings.HasPrefix(path, "/v1/session/destroy/"):
		delete(f.sessions, strings.TrimPrefix(path, "/v1/session/destroy/"))
		_, _ = io.WriteString(w, "true")
	case strings.HasPrefix(path, "/v1/agent/service/"):
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeConsul) last() request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestConsul_Health(t *testing.T) {
	f, c := newFakeConsul(t)
	require.NoError(t, c.Health(context.Background()))

	f.mu.Lock()
	f.leader = `""`
	f.mu.Unlock()
	assert.True(t, errors.Is(c.Health(context.Background()), ErrNoLeader))
}

func TestConsul_HealthUnreachable(t *testing.T) {
	c, err := NewConsul(ConsulConfig{Address: "http://127.0.0.1:1", ProbeTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.Error(t, c.Health(context.Background()))
}

func TestConsul_KV(t *testing.T) {
	f, c := newFakeConsul(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "traefik/http/routers/r/rule", "Host(`a`)"))
	req := f.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/v1/kv/traefik/http/routers/r/rule", req.Path)
	assert.Equal(t, "Host(`a`)", req.Body)

	require.NoError(t, c.PutWithLease(ctx, "k", "v", "sess-1"))
	assert.Contains(t, f.last().Query, "acquire=sess-1")

	f.mu.Lock()
	f.acquire = false
	f.mu.Unlock()
	assert.True(t, errors.Is(c.PutWithLease(ctx, "k", "v", "sess-2"), ErrLeaseConflict))

	require.NoError(t, c.Delete(ctx, "k"))
	assert.Equal(t, http.MethodDelete, f.last().Method)

	require.NoError(t, c.DeleteTree(ctx, "traefik/http/routers/gw1-"))
	req = f.last()
	assert.Equal(t, "/v1/kv/traefik/http/routers/gw1-", req.Path)
	assert.Contains(t, req.Query, "recurse")
}

func TestConsul_Sessions(t *testing.T) {
	f, c := newFakeConsul(t)
	ctx := context.Background()

	id, err := c.CreateLease(ctx, "gwsync-gw1", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.last().Body), &entry))
	assert.Equal(t, "gwsync-gw1", entry["Name"])
	assert.Equal(t, "30s", entry["TTL"])
	assert.Equal(t, "delete", entry["Behavior"])

	require.NoError(t, c.RenewLease(ctx, id))
	require.NoError(t, c.DestroyLease(ctx, id))
	assert.True(t, errors.Is(c.RenewLease(ctx, id), ErrLeaseNotFound))
}

func TestConsul_Services(t *testing.T) {
	f, c := newFakeConsul(t)
	ctx := context.Background()

	svc := types.ServicePayload{
		ID:      "gw:gw1:http",
		Name:    "gw-gw1-http",
		Address: "10.0.0.5",
		Port:    8080,
		Tags:    []string{"traefik.enable=true"},
		Check:   types.HealthCheck{TCP: "10.0.0.5:8080", Interval: "10s", Timeout: "5s", DeregisterAfter: "30s"},
	}
	require.NoError(t, c.RegisterService(ctx, svc))

	req := f.last()
	assert.Equal(t, "/v1/agent/service/register", req.Path)
	assert.Contains(t, req.Query, "replace-existing-checks")

	var reg map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &reg))
	assert.Equal(t, "gw:gw1:http", reg["ID"])
	assert.Equal(t, []any{"traefik.enable=true"}, reg["Tags"])
	check, ok := reg["Check"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:8080", check["TCP"])
	assert.Equal(t, "30s", check["DeregisterCriticalServiceAfter"])

	require.NoError(t, c.DeregisterService(ctx, "gw:gw1:http"))
	assert.Equal(t, "/v1/agent/service/deregister/gw:gw1:http", f.last().Path)
}

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/gwsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *types.Snapshot {
	return &types.Snapshot{
		State: &types.State{
			Entries: []types.KVEntry{
				{Path: []string{"traefik", "http", "routers", "gw1-a", "rule"}, Value: "Host(`a`)"},
			},
			Services: []types.ServicePayload{{
				ID: "gw:gw1:http", Name: "gw-gw1-http", Address: "10.0.0.5", Port: 80,
				Check: types.HealthCheck{TCP: "10.0.0.5:80", Interval: "10s", Timeout: "5s", DeregisterAfter: "30s"},
			}},
		},
		CachedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBoltStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gwsync.db"), store.Path())

	snap, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap, "empty store has no snapshot")

	require.NoError(t, store.SaveSnapshot(testSnapshot()))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	snap, err = reopened.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, testSnapshot().State, snap.State)
	assert.True(t, testSnapshot().CachedAt.Equal(snap.CachedAt))
}

func TestBoltStore_SaveReplaces(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveSnapshot(testSnapshot()))
	newer := &types.Snapshot{State: &types.State{}, CachedAt: time.Now()}
	require.NoError(t, store.SaveSnapshot(newer))

	snap, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.State.Entries)

	require.NoError(t, store.Clear())
	snap, err = store.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestBoltStore_ClaimNode(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "nested", "state"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.ClaimNode("gw1"))
	require.NoError(t, store.ClaimNode("gw1"))
	assert.Error(t, store.ClaimNode("gw2"))
}

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/gwsync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")

	keyLatest = []byte("latest")
	keyNode   = []byte("node")
)

// BoltStore persists the engine's cached snapshot in a BoltDB file
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (or creates) gwsync.db in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "gwsync.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: dbPath}, nil
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.path
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored snapshot
func (s *BoltStore) SaveSnapshot(snap *types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put(keyLatest, data)
	})
}

// LoadSnapshot returns the stored snapshot, or nil when none was saved
func (s *BoltStore) LoadSnapshot() (*types.Snapshot, error) {
	var snap *types.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get(keyLatest)
		if data == nil {
			return nil
		}
		snap = &types.Snapshot{}
		return json.Unmarshal(data, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// ClaimNode records the node identity this state directory belongs to.
// Opening a directory that was written by another node is an error, since
// replaying its snapshot would publish that node's routes.
func (s *BoltStore) ClaimNode(node string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if owner := b.Get(keyNode); owner != nil && string(owner) != node {
			return fmt.Errorf("state directory belongs to node %q", owner)
		}
		return b.Put(keyNode, []byte(node))
	})
}

// Clear removes the stored snapshot
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete(keyLatest)
	})
}

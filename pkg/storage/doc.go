/*
Package storage persists the reconciliation engine's cached snapshot.

Persistence is optional. When enabled, the snapshot written on every cycle
survives a restart, so a registry that comes back while the gateway is
still unreachable can be replayed the state last seen before the restart.

The store is a single BoltDB file with two buckets:

	snapshots  latest -> JSON encoded types.Snapshot
	meta       node   -> owning node name

BoltStore satisfies reconciler.SnapshotStore.
*/
package storage

/*
Package lease manages the registry session that kv entries are bound to.

A Manager holds at most one lease at a time. Ensure returns the active
lease, creating one when there is none; Renew extends it and marks it
expired on failure so the next Ensure starts over. The registry deletes
every key written under a lease when the lease is destroyed or its TTL
runs out, so a publisher that dies without cleaning up leaves nothing
behind for longer than the TTL.

	no_lease ──Ensure──▶ active ──Renew fails──▶ expired
	    ▲                  │                        │
	    └────Destroy───────┘◀────────Ensure─────────┘

Sessions are created with the delete behavior and named
gwsync-<node>-<uuid>.
*/
package lease

/*
Package reconciler keeps the registry's copy of the gateway configuration
in line with what the gateway is actually running.

# Architecture

	┌──────────────────── Driver (every resync interval) ──────────────┐
	│                                                                    │
	│   gateway.Fetch ──► builder.Build ──► Engine.Reconcile             │
	│                                                                    │
	└────────────────────────────────────┬───────────────────────────────┘
	                                     │
	                    ┌────────────────▼────────────────┐
	                    │              Engine             │
	                    │  1. cache snapshot (+ persist)  │
	                    │  2. unreachable? stop here      │
	                    │  3. delete known - new keys     │
	                    │  4. ensure lease, write entries │
	                    │  5. known = new keys            │
	                    │  6. register services           │
	                    └────────────────▲────────────────┘
	                                     │ Replay on down→up
	                          health.Monitor

The Engine owns three pieces of shared state, each behind its own lock: the
reachability flag, the cached snapshot and the set of keys it last
published. Reconcile and Replay are additionally serialized so that two
publications never interleave.

# Failure Handling

A failed fetch or build aborts the cycle before the Engine is involved:
the previously published configuration stays in place. While the registry
is unreachable every cycle only refreshes the cache; the health monitor
replays the newest snapshot once when the registry comes back.

Individual registry failures never abort a publication. They are logged,
counted in Result and aggregated into Result.Err. The known key set
advances regardless, so a key whose delete failed is not retried unless it
is still absent from a later state.

If no lease can be obtained the write phase is skipped for that cycle.
Stale deletes and service registration still happen.

# Bootstrap

Driver.Bootstrap runs the first cycle synchronously and retries it with
exponential backoff for at most one resync interval. After that the
periodic loop takes over.
*/
package reconciler

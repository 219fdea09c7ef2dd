/*
Package types defines the data structures shared by every gwsync package.

The gateway's runtime configuration arrives as an arbitrary JSON document and
is decoded into an Object, which keeps keys in document order. Order matters
in two places: a middleware's type is its first non-status key, and the
label lists produced for the registry should be stable from one cycle to the
next.

# Pipeline types

	Object ──normalize──▶ Router / Middleware
	                           │
	                        builder
	                           ▼
	          EdgeRouter ──▶ State{Entries, Services}
	                           │
	                       reconciler
	                           ▼
	                        registry

In order of appearance:

  - Router and Middleware are the whitelisted projections of gateway entities.
    Routers never carry a backend service reference.
  - EdgeRouter is a router after namespacing and entry-point splitting; it is
    bound to exactly one synthetic service.
  - KVEntry is one registry key/value pair. Keys are slash-joined paths.
  - ServicePayload is the registration of one synthetic per-protocol service.
  - State is the full output of one build and the unit the reconciler caches.
*/
package types

/*
Package builder turns a raw gateway document into the state gwsync
publishes to the registry.

Two strategies implement the Builder interface:

	             raw document
	                  │
	       normalize + namespace + split
	                  │
	     ┌────────────┴────────────┐
	     ▼                         ▼
	TagBuilder                 KVBuilder
	tags on gw-<node>-http     traefik/http/routers/...
	and gw-<node>-https        traefik/http/middlewares/...
	                           traefik/http/services/...
	                           + tag-less liveness services

Every router is bound to one of the node's synthetic services. A router
listening on both the plaintext and the encrypted entry point is split into
"<edge>_plain" and "<edge>_encrypted"; a router listening only on the
encrypted entry point is bound to the encrypted service with TLS forced on;
anything else is plaintext.

The encrypted transport skips certificate verification. The link between
edge proxy and gateway is trusted, and the gateway presents certificates for
the public host names, not for its own address.
*/
package builder

/*
Package registry is gwsync's view of the service registry.

Client is the narrow set of calls the reconciler, the lease manager and the
health monitor need: key/value writes (plain or bound to a lease), lease
lifecycle, service (de)registration and a reachability probe. Consul
implements it over the Consul HTTP API with a timeout per call; Memory
implements it in process for dry runs and tests.

In Consul terms a lease is a session created with the "delete" behavior:
destroying the session, or letting its TTL lapse, deletes every key that was
acquired under it.
*/
package registry

/*
Package metrics provides Prometheus metrics and component health for gwsync.

All collectors are registered with the default registry at package init and
exposed by Handler:

	gwsync_cycles_total{outcome}                    published, cached, fetch_error, build_error
	gwsync_cycle_duration_seconds                   fetch to publish
	gwsync_replays_total                            cache replays after recovery
	gwsync_known_keys                               keys last published
	gwsync_snapshot_age_seconds                     age of the cached state
	gwsync_registry_reachable                       1 while the registry answers
	gwsync_registry_operations_total{operation,result}
	gwsync_lease_active                             1 while a session is held
	gwsync_lease_transitions_total{state}
	gwsync_gateway_fetch_duration_seconds
	gwsync_gateway_fetch_errors_total

Gauges derived from engine state are refreshed by a Collector on a fixed
interval rather than on every cycle.

# Component health

Components (gateway, registry, lease) report their state with
UpdateComponent. GetHealth is "degraded" while some are down and
"unhealthy" only when all are, since the process keeps caching and
recovers on its own. GetReadiness requires the gateway and registry
components to be healthy.

# Timing

	timer := metrics.NewTimer()
	doc, err := fetcher.Fetch(ctx)
	timer.ObserveDuration(metrics.GatewayFetchDuration)
*/
package metrics

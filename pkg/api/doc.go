/*
Package api serves gwsync's HTTP status endpoints.

	GET /health    component health; 200 while healthy or degraded,
	               503 once every component is down
	GET /ready     200 when the gateway was fetched and the registry is
	               reachable, 503 otherwise
	GET /live      200 while the process runs
	GET /metrics   Prometheus exposition
	GET /snapshot  the cached state, its age and the registry reachability

The server is optional and read-only. It never triggers a cycle.
*/
package api

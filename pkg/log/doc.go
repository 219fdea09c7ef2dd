/*
Package log provides structured logging for gwsync using zerolog.

A single global Logger is configured once by Init. Packages derive child
loggers from it with WithComponent so every line carries the subsystem that
produced it:

	engine    reconciliation cycles, replays, per-key write failures
	lease     session creation, renewal and expiry
	health    registry probes
	driver    gateway fetch and build
	gateway   HTTP fetches
	registry  Consul calls
	api       status server

Call WithNode once at startup, after Init and before any component logger
is created, to tag all output with the gateway node identity.

Output is a human-readable console format with RFC3339 timestamps unless
JSONOutput is set:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.WithNode("gw1")

	logger := log.WithComponent("engine")
	logger.Info().Int("written", 12).Msg("Cycle published")

Per-key failures are logged at warn, cycle summaries at info and full
payloads at debug.
*/
package log

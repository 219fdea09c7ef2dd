/*
Package health tracks registry reachability for the reconciliation engine.

A Monitor polls a Checker on a fixed interval and feeds each verdict into
its Target. The first successful check after a failed one is a recovery:
the target replays its cached snapshot so that state computed while the
registry was offline reaches it exactly once.

	┌──────────────┐  Check   ┌──────────────────┐
	│   Monitor    │─────────▶│ RegistryChecker  │──▶ registry.Client.Health
	└──────┬───────┘          └──────────────────┘
	       │ SetReachable / Replay
	       ▼
	┌──────────────┐
	│    Engine    │
	└──────────────┘

Status follows the retry semantics of Config: a dependency is marked
unhealthy once Retries consecutive checks have failed and healthy again
after the first success. Nothing is healthy before its first check.
*/
package health

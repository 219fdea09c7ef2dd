/*
Package config defines gwsync's command line flags and their validation.

Every flag can also be set from the environment. The variable name is the
flag name in SCREAMING_SNAKE case (--consul-addr reads CONSUL_ADDR); a flag
given on the command line wins over the environment.

Validate reports every problem at once, wrapped in ErrInvalid. Besides the
per-field rules it checks that backend URLs resolve to a host and port and,
when kv entries are leased, that the lease TTL (--hc-deregister-after)
falls within Consul's session TTL bounds and outlives the renewal period
(--hc-interval).
*/
package config

// Package normalize projects the gateway's loosely typed runtime
// configuration onto the small, whitelisted schema that gwsync exports.
//
// Routers keep only rule, entry points, middleware references, TLS and
// priority. Their backend service binding is dropped on purpose: downstream
// edge proxies resolve every router to the node's own synthetic service.
// Middlewares keep their type and configuration; runtime status fields are
// ignored. Entities whose name ends in "@internal" are never exported.
package normalize

// Package gateway fetches the runtime configuration document from the
// gateway's API. Every failure, including a non-2xx status or a body that is
// not a JSON object, is reported as a *FetchError.
package gateway

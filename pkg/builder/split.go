package builder

import (
	"strings"

	"github.com/cuemby/gwsync/pkg/naming"
	"github.com/cuemby/gwsync/pkg/normalize"
	"github.com/cuemby/gwsync/pkg/types"
)

// Suffixes of the two routers a dual-protocol router is split into
const (
	SuffixPlain     = "_plain"
	SuffixEncrypted = "_encrypted"
)

// edgeMiddleware is a normalized middleware under its namespaced name
type edgeMiddleware struct {
	name string
	types.Middleware
}

// document is a raw gateway document after normalization, namespacing and
// entry-point splitting
type document struct {
	middlewares []edgeMiddleware
	routers     []types.EdgeRouter
}

func (b *base) normalize(raw *types.Object) document {
	var doc document
	routers, middlewares := normalize.Extract(raw)

	for _, name := range middlewares.Keys() {
		v, _ := middlewares.Get(name)
		mw, ok := normalize.Middleware(v)
		if !ok {
			b.logger.Debug().Str("middleware", name).Msg("Skipping middleware without type")
			continue
		}
		doc.middlewares = append(doc.middlewares, edgeMiddleware{
			name:       naming.Namespace(name, b.cfg.Node),
			Middleware: mw,
		})
	}

	for _, name := range routers.Keys() {
		v, _ := routers.Get(name)
		r, ok := normalize.Router(v)
		if !ok {
			b.logger.Debug().Str("router", name).Msg("Skipping router without rule")
			continue
		}
		doc.routers = append(doc.routers, b.split(name, r)...)
	}

	return doc
}

// split binds a router to the node's synthetic services. A router that
// listens on both entry point classes becomes two edge routers, one per
// protocol. Anything not explicitly encrypted is treated as plaintext.
func (b *base) split(name string, r types.Router) []types.EdgeRouter {
	hasPlain, hasEncrypted := b.classify(r.EntryPoints)

	edge := types.EdgeRouter{
		Name:        naming.Namespace(name, b.cfg.Node),
		Rule:        r.Rule,
		Middlewares: naming.NamespaceAll(r.Middlewares, b.cfg.Node),
		Priority:    r.Priority,
	}

	plain := edge
	plain.EntryPoints = []string{b.cfg.EntryPointPlain}
	plain.Service = b.plain.service

	encrypted := edge
	encrypted.EntryPoints = []string{b.cfg.EntryPointSecure}
	encrypted.Service = b.encryptedService()
	encrypted.TLS = true

	switch {
	case hasPlain && hasEncrypted:
		plain.Name += SuffixPlain
		plain.Middlewares = cloneStrings(edge.Middlewares)
		encrypted.Name += SuffixEncrypted
		return []types.EdgeRouter{plain, encrypted}
	case hasEncrypted:
		return []types.EdgeRouter{encrypted}
	default:
		plain.TLS = r.TLS
		return []types.EdgeRouter{plain}
	}
}

func (b *base) classify(entryPoints []string) (hasPlain, hasEncrypted bool) {
	for _, ep := range entryPoints {
		ep = strings.TrimSpace(ep)
		if strings.EqualFold(ep, b.cfg.EntryPointPlain) {
			hasPlain = true
		}
		if strings.EqualFold(ep, b.cfg.EntryPointSecure) {
			hasEncrypted = true
		}
	}
	return hasPlain, hasEncrypted
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

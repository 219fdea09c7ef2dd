package builder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/gwsync/pkg/flatten"
	"github.com/cuemby/gwsync/pkg/types"
)

// TagBuilder publishes the routing configuration as tags on the node's
// synthetic services
type TagBuilder struct {
	*base
}

// NewTagBuilder creates a tag strategy builder
func NewTagBuilder(cfg Config) (*TagBuilder, error) {
	b, err := newBase(cfg, "builder")
	if err != nil {
		return nil, err
	}
	return &TagBuilder{base: b}, nil
}

// Mode implements Builder
func (b *TagBuilder) Mode() Mode {
	return ModeTags
}

// Build implements Builder. The state carries no key/value entries, only
// one tagged payload per endpoint.
func (b *TagBuilder) Build(raw *types.Object) (*types.State, error) {
	doc := b.normalize(raw)
	endpoints := b.endpoints()

	tags := make(map[string][]string, len(endpoints))
	for _, ep := range endpoints {
		tags[ep.service] = b.transportTags(ep)
	}

	// middlewares are shared by both protocols
	for _, mw := range doc.middlewares {
		if err := flatten.CheckDepth(mw.Config); err != nil {
			b.logger.Warn().Err(err).Str("middleware", mw.name).Msg("Dropping middleware")
			continue
		}
		for _, prop := range mw.Properties {
			tag := fmt.Sprintf("traefik.http.middlewares.%s.%s=%s", mw.name, prop.Key, prop.Value)
			for _, ep := range endpoints {
				tags[ep.service] = append(tags[ep.service], tag)
			}
		}
	}

	for _, r := range doc.routers {
		tags[r.Service] = append(tags[r.Service], routerTags(r)...)
	}

	state := &types.State{}
	for _, ep := range endpoints {
		state.Services = append(state.Services, b.payload(ep, tags[ep.service]))
	}
	return state, nil
}

func (b *TagBuilder) transportTags(ep *endpoint) []string {
	st := "traefik.http.serverstransports." + ep.service
	svc := "traefik.http.services." + ep.service

	tags := []string{
		"traefik.enable=true",
		st + ".maxidleconnsperhost=" + strconv.Itoa(b.cfg.MaxIdleConnsPerHost),
		st + ".forwardingtimeouts.idleconntimeout=" + b.cfg.IdleConnTimeout.String(),
		svc + ".loadbalancer.serverstransport=" + ep.service,
	}
	if ep.encrypted {
		tags = append(tags,
			st+".insecureskipverify=true",
			svc+".loadbalancer.server.scheme=https",
		)
	}
	return tags
}

func routerTags(r types.EdgeRouter) []string {
	p := "traefik.http.routers." + r.Name

	tags := []string{
		p + ".rule=" + r.Rule,
		p + ".entrypoints=" + strings.Join(r.EntryPoints, ","),
	}
	if len(r.Middlewares) > 0 {
		tags = append(tags, p+".middlewares="+strings.Join(r.Middlewares, ","))
	}
	if r.Priority != "" {
		tags = append(tags, p+".priority="+r.Priority)
	}
	if r.TLS {
		tags = append(tags, p+".tls=true")
	}
	return append(tags, p+".service="+r.Service)
}

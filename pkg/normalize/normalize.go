package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cuemby/gwsync/pkg/flatten"
	"github.com/cuemby/gwsync/pkg/types"
)

// InternalSuffix marks entities the gateway defines for itself
const InternalSuffix = "@internal"

// reservedMiddlewareKeys are runtime status fields, never a middleware type
var reservedMiddlewareKeys = map[string]bool{
	"status": true,
	"usedBy": true,
}

// Extract returns the routers and middlewares mappings of a raw gateway
// document with internal entities removed. Missing or wrongly shaped
// sections come back empty.
func Extract(doc *types.Object) (routers, middlewares *types.Object) {
	return section(doc, "routers"), section(doc, "middlewares")
}

func section(doc *types.Object, name string) *types.Object {
	out := types.NewObject()

	raw, _ := doc.Get(name)
	entities, ok := raw.(*types.Object)
	if !ok {
		return out
	}

	for _, key := range entities.Keys() {
		if strings.HasSuffix(key, InternalSuffix) {
			continue
		}
		v, _ := entities.Get(key)
		out.Set(key, v)
	}
	return out
}

// Router projects a raw router onto the exported fields. Routers without
// a rule are not exported and report false.
func Router(raw any) (types.Router, bool) {
	obj, ok := raw.(*types.Object)
	if !ok {
		return types.Router{}, false
	}

	var r types.Router

	if v, ok := lookup(obj, "rule", "Rule"); ok {
		r.Rule = strings.TrimSpace(flatten.Scalar(v))
	}
	if r.Rule == "" {
		return types.Router{}, false
	}

	if v, ok := lookup(obj, "entryPoints", "entrypoints", "EntryPoints"); ok {
		r.EntryPoints = dedupe(stringList(v))
	}
	if v, ok := lookup(obj, "middlewares", "Middlewares"); ok {
		r.Middlewares = stringList(v)
	}
	if v, ok := lookup(obj, "tls", "TLS"); ok {
		r.TLS = truthy(v)
	}
	if v, ok := lookup(obj, "priority", "Priority"); ok {
		r.Priority = flatten.Scalar(v)
	}

	return r, true
}

// Middleware infers the type of a raw middleware and derives its label
// properties. Middlewares without an inferable type report false.
func Middleware(raw any) (types.Middleware, bool) {
	obj, ok := raw.(*types.Object)
	if !ok {
		return types.Middleware{}, false
	}

	var mwType string
	for _, key := range obj.Keys() {
		if reservedMiddlewareKeys[key] {
			continue
		}
		mwType = key
		break
	}
	if mwType == "" {
		return types.Middleware{}, false
	}

	conf, _ := obj.Get(mwType)
	mw := types.Middleware{Type: mwType, Config: conf}
	typeKey := strings.ToLower(mwType)

	switch c := conf.(type) {
	case nil:
		mw.Properties = []types.Property{{Key: typeKey, Value: "true"}}
	case *types.Object:
		if c.Len() == 0 {
			// an empty config enables the middleware with its defaults
			mw.Properties = []types.Property{{Key: typeKey, Value: "true"}}
			break
		}
		for _, key := range c.Keys() {
			v, _ := c.Get(key)
			mw.Properties = append(mw.Properties, types.Property{
				Key:   strings.ToLower(mwType + "." + key),
				Value: propertyValue(v),
			})
		}
	default:
		mw.Properties = []types.Property{{Key: typeKey, Value: propertyValue(c)}}
	}

	return mw, true
}

func propertyValue(v any) string {
	switch v.(type) {
	case *types.Object, []any, map[string]any:
		s, err := types.EncodeCompact(v)
		if err != nil {
			return ""
		}
		return s
	default:
		return flatten.Scalar(v)
	}
}

// lookup returns the first of keys whose value is present and not null
func lookup(obj *types.Object, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := obj.Get(key); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// stringList accepts a list or a single (comma separated) scalar
func stringList(v any) []string {
	var items []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			items = append(items, flatten.Scalar(item))
		}
	case string:
		items = strings.Split(t, ",")
	default:
		items = []string{flatten.Scalar(t)}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case *types.Object:
		return true
	case []any:
		return len(t) > 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return strings.TrimSpace(t) != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	default:
		return v != nil
	}
}

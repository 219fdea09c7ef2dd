package normalize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuemby/gwsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *types.Object {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "rawdata.json"))
	require.NoError(t, err)
	doc, err := types.ParseObject(data)
	require.NoError(t, err)
	return doc
}

func mustParse(t *testing.T, s string) *types.Object {
	t.Helper()
	obj, err := types.ParseObject([]byte(s))
	require.NoError(t, err)
	return obj
}

func TestExtract_FiltersInternal(t *testing.T) {
	routers, middlewares := Extract(loadFixture(t))

	assert.Equal(t, []string{"api@docker", "blog@file", "shop@file", "norule@file"}, routers.Keys())
	assert.Equal(t, []string{"auth@file", "strip-api@docker", "compress@file", "broken@file"}, middlewares.Keys())

	for _, key := range append(routers.Keys(), middlewares.Keys()...) {
		assert.False(t, strings.HasSuffix(key, InternalSuffix), key)
	}
}

func TestExtract_MissingOrMalformedSections(t *testing.T) {
	routers, middlewares := Extract(mustParse(t, `{"routers": [1, 2], "services": {}}`))
	assert.Equal(t, 0, routers.Len())
	assert.Equal(t, 0, middlewares.Len())

	routers, middlewares = Extract(nil)
	assert.Equal(t, 0, routers.Len())
	assert.Equal(t, 0, middlewares.Len())
}

func TestRouter(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want types.Router
		ok   bool
	}{
		{
			name: "full router",
			raw:  `{"rule":"Host(` + "`a`" + `)","entryPoints":["web","websecure","web"],"middlewares":["m@file"],"tls":{"certResolver":"le"},"priority":10,"service":"s@file"}`,
			want: types.Router{
				Rule:        "Host(`a`)",
				EntryPoints: []string{"web", "websecure"},
				Middlewares: []string{"m@file"},
				TLS:         true,
				Priority:    "10",
			},
			ok: true,
		},
		{
			name: "scalar lists",
			raw:  `{"Rule":"Path(` + "`/`" + `)","entrypoints":"web, websecure","Middlewares":"a@file,,b@http "}`,
			want: types.Router{
				Rule:        "Path(`/`)",
				EntryPoints: []string{"web", "websecure"},
				Middlewares: []string{"a@file", "b@http"},
			},
			ok: true,
		},
		{
			name: "tls as string",
			raw:  `{"rule":"r","tls":"false"}`,
			want: types.Router{Rule: "r"},
			ok:   true,
		},
		{
			name: "tls as bool",
			raw:  `{"rule":"r","TLS":true}`,
			want: types.Router{Rule: "r", TLS: true},
			ok:   true,
		},
		{
			name: "missing rule",
			raw:  `{"entryPoints":["web"],"service":"x"}`,
			ok:   false,
		},
		{
			name: "blank rule",
			raw:  `{"rule":"   "}`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Router(mustParse(t, tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_NotAnObject(t *testing.T) {
	_, ok := Router("Host(`a`)")
	assert.False(t, ok)
	_, ok = Router(nil)
	assert.False(t, ok)
}

func TestRouter_FixtureDropsRuleless(t *testing.T) {
	routers, _ := Extract(loadFixture(t))

	var exported []string
	for _, name := range routers.Keys() {
		raw, _ := routers.Get(name)
		if _, ok := Router(raw); ok {
			exported = append(exported, name)
		}
	}
	assert.Equal(t, []string{"api@docker", "blog@file", "shop@file"}, exported)
}

func TestMiddleware_TypeInference(t *testing.T) {
	mw, ok := Middleware(mustParse(t, `{"status":"enabled","stripPrefix":{"prefixes":["/api"]},"usedBy":["r@file"]}`))
	require.True(t, ok)
	assert.Equal(t, "stripPrefix", mw.Type)
	assert.Equal(t, []types.Property{
		{Key: "stripprefix.prefixes", Value: `["/api"]`},
	}, mw.Properties)
}

func TestMiddleware_PropertiesKeepOrder(t *testing.T) {
	mw, ok := Middleware(mustParse(t, `{"headers":{"customResponseHeaders":{"X-B":"2","X-A":"1"},"sslRedirect":true,"stsSeconds":31536000}}`))
	require.True(t, ok)
	assert.Equal(t, []types.Property{
		{Key: "headers.customresponseheaders", Value: `{"X-B":"2","X-A":"1"}`},
		{Key: "headers.sslredirect", Value: "true"},
		{Key: "headers.stsseconds", Value: "31536000"},
	}, mw.Properties)
}

func TestMiddleware_EmptyAndScalarConfig(t *testing.T) {
	mw, ok := Middleware(mustParse(t, `{"compress":{}}`))
	require.True(t, ok)
	assert.Equal(t, []types.Property{{Key: "compress", Value: "true"}}, mw.Properties)

	mw, ok = Middleware(mustParse(t, `{"compress":null}`))
	require.True(t, ok)
	assert.Equal(t, []types.Property{{Key: "compress", Value: "true"}}, mw.Properties)

	mw, ok = Middleware(mustParse(t, `{"plugin":"enabled"}`))
	require.True(t, ok)
	assert.Equal(t, []types.Property{{Key: "plugin", Value: "enabled"}}, mw.Properties)
}

func TestMiddleware_NoType(t *testing.T) {
	_, ok := Middleware(mustParse(t, `{"status":"disabled","usedBy":[]}`))
	assert.False(t, ok)

	_, ok = Middleware(mustParse(t, `{}`))
	assert.False(t, ok)

	_, ok = Middleware([]any{"x"})
	assert.False(t, ok)
}

func TestMiddleware_NoHTMLEscaping(t *testing.T) {
	mw, ok := Middleware(mustParse(t, `{"basicAuth":{"users":["a:<b>&c"]}}`))
	require.True(t, ok)
	assert.Equal(t, `["a:<b>&c"]`, mw.Properties[0].Value)
}

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/gwsync/pkg/builder"
	"github.com/cuemby/gwsync/pkg/log"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg := &Config{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.SetupFlags(flags)
	require.NoError(t, flags.Parse(args))
	require.NoError(t, BindEnv(flags))
	return cfg
}

func validArgs() []string {
	return []string{
		"--node-name=gw1",
		"--traefik-url=http://traefik:8080",
		"--service-http=http://10.0.0.5:80",
	}
}

func TestDefaults(t *testing.T) {
	cfg := parse(t, validArgs()...)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://consul:8500", cfg.ConsulAddr)
	assert.Equal(t, 30*time.Second, cfg.ResyncInterval)
	assert.Equal(t, 10*time.Second, cfg.HCInterval)
	assert.Equal(t, 5*time.Second, cfg.HCTimeout)
	assert.Equal(t, 30*time.Second, cfg.HCDeregisterAfter)
	assert.Equal(t, 1, cfg.ProbeRetries)
	assert.Equal(t, "kv", cfg.Mode)
	assert.Equal(t, "traefik", cfg.KVPrefix)
	assert.Equal(t, "web", cfg.EntryPointPlain)
	assert.Equal(t, "websecure", cfg.EntryPointSecure)
	assert.Equal(t, 64, cfg.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.IdleConnTimeout)
	assert.Equal(t, ":9180", cfg.StatusAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Leased())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "CONSUL_ADDR", EnvName("consul-addr"))
	assert.Equal(t, "HC_DEREGISTER_AFTER", EnvName("hc-deregister-after"))
	assert.Equal(t, "SERVICE_HTTPS", EnvName("service-https"))
	assert.Equal(t, "MAX_IDLE_CONNS_PER_HOST", EnvName("max-idle-conns-per-host"))
}

func TestBindEnv(t *testing.T) {
	t.Setenv("CONSUL_ADDR", "http://registry:8500")
	t.Setenv("RESYNC_INTERVAL", "1m")
	t.Setenv("MODE", "tags")
	t.Setenv("NO_LEASE", "true")
	t.Setenv("NODE_NAME", "from-env")

	cfg := parse(t, append(validArgs(), "--mode=kv")...)

	assert.Equal(t, "http://registry:8500", cfg.ConsulAddr)
	assert.Equal(t, time.Minute, cfg.ResyncInterval)
	assert.True(t, cfg.NoLease)
	assert.Equal(t, "kv", cfg.Mode, "explicit flags win over the environment")
	assert.Equal(t, "gw1", cfg.NodeName)
}

func TestBindEnvInvalidValue(t *testing.T) {
	t.Setenv("PROBE_RETRIES", "many")

	cfg := &Config{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.SetupFlags(flags)
	require.NoError(t, flags.Parse(validArgs()))

	err := BindEnv(flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROBE_RETRIES")
}

func TestBindEnvLegacyNames(t *testing.T) {
	t.Setenv("RESYNC_SECONDS", "45")
	t.Setenv("SERVICE", "http://10.0.0.9:80")

	cfg := parse(t, "--node-name=gw1", "--traefik-url=http://traefik:8080")
	assert.Equal(t, 45*time.Second, cfg.ResyncInterval)
	assert.Equal(t, "http://10.0.0.9:80", cfg.ServiceHTTP)
	require.NoError(t, cfg.Validate())
}

func TestBindEnvLegacyNamesYield(t *testing.T) {
	t.Setenv("RESYNC_SECONDS", "45")
	t.Setenv("RESYNC_INTERVAL", "2m")
	t.Setenv("SERVICE", "http://10.0.0.9:80")

	cfg := parse(t, validArgs()...)
	assert.Equal(t, 2*time.Minute, cfg.ResyncInterval, "the current variable wins")
	assert.Equal(t, "http://10.0.0.5:80", cfg.ServiceHTTP, "the flag wins")
}

func TestBindEnvLegacyInvalidSeconds(t *testing.T) {
	t.Setenv("RESYNC_SECONDS", "30s")

	cfg := &Config{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.SetupFlags(flags)
	require.NoError(t, flags.Parse(validArgs()))

	err := BindEnv(flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESYNC_SECONDS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing gateway url", args: []string{"--node-name=gw1", "--service-http=http://10.0.0.5"}, wantErr: "--traefik-url"},
		{name: "missing plaintext backend", args: []string{"--node-name=gw1", "--traefik-url=http://t"}, wantErr: "--service-http"},
		{name: "unknown mode", args: append(validArgs(), "--mode=dns"), wantErr: "--mode"},
		{name: "bad log level", args: append(validArgs(), "--log-level=trace"), wantErr: "--log-level"},
		{name: "zero retries", args: append(validArgs(), "--probe-retries=0"), wantErr: "--probe-retries"},
		{name: "bad status addr", args: append(validArgs(), "--status-addr=nope"), wantErr: "--status-addr"},
		{name: "backend without host", args: append(validArgs(), "--service-https=https://:443"), wantErr: "--service-https"},
		{name: "lease ttl too short", args: append(validArgs(), "--hc-deregister-after=5s", "--hc-interval=1s"), wantErr: "lease TTL"},
		{name: "lease ttl too long", args: append(validArgs(), "--hc-deregister-after=25h"), wantErr: "lease TTL"},
		{name: "renewal slower than ttl", args: append(validArgs(), "--hc-interval=30s"), wantErr: "--hc-interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parse(t, tt.args...).Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_LeaseBoundsIgnoredWithoutLease(t *testing.T) {
	cfg := parse(t, append(validArgs(), "--hc-deregister-after=5s", "--hc-interval=10s", "--no-lease")...)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Leased())

	cfg = parse(t, append(validArgs(), "--hc-deregister-after=5s", "--hc-interval=10s", "--mode=tags")...)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Leased())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	err := parse(t, "--node-name=gw1", "--mode=x", "--log-level=x").Validate()
	require.Error(t, err)
	for _, flag := range []string{"--traefik-url", "--service-http", "--mode", "--log-level"} {
		assert.Contains(t, err.Error(), flag)
	}
}

func TestComponentConfigs(t *testing.T) {
	cfg := parse(t, append(validArgs(),
		"--service-https=https://10.0.0.5:8443",
		"--traefik-host=traefik.internal",
		"--consul-token=secret",
		"--log-level=debug",
		"--log-json",
	)...)
	require.NoError(t, cfg.Validate())

	b := cfg.Builder()
	assert.Equal(t, builder.Config{
		Node:                "gw1",
		PlainURL:            "http://10.0.0.5:80",
		EncryptedURL:        "https://10.0.0.5:8443",
		EntryPointPlain:     "web",
		EntryPointSecure:    "websecure",
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
		Check: builder.CheckConfig{
			Interval:        10 * time.Second,
			Timeout:         5 * time.Second,
			DeregisterAfter: 30 * time.Second,
		},
		Prefix: "traefik",
	}, b)

	assert.Equal(t, "secret", cfg.Consul().Token)
	assert.Equal(t, 10*time.Second, cfg.Consul().WriteTimeout)

	assert.Equal(t, 30*time.Second, cfg.Lease().TTL)
	assert.Equal(t, 10*time.Second, cfg.Lease().RenewInterval)

	assert.Equal(t, 1, cfg.Probe().Retries)
	assert.Equal(t, "traefik.internal", cfg.Gateway().Host)

	assert.Equal(t, log.DebugLevel, cfg.Log().Level)
	assert.True(t, cfg.Log().JSONOutput)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	validate "github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/iancoleman/strcase"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cuemby/gwsync/pkg/builder"
	"github.com/cuemby/gwsync/pkg/gateway"
	"github.com/cuemby/gwsync/pkg/health"
	"github.com/cuemby/gwsync/pkg/lease"
	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/naming"
	"github.com/cuemby/gwsync/pkg/registry"
)

// ErrInvalid wraps every configuration validation failure
var ErrInvalid = errors.New("invalid configuration")

// Session TTL bounds accepted by Consul
const (
	MinLeaseTTL = 10 * time.Second
	MaxLeaseTTL = 24 * time.Hour
)

// Config is the complete runtime configuration of gwsync
type Config struct {
	ConsulAddr  string `flag:"consul-addr" validate:"required"`
	ConsulToken string `flag:"consul-token"`

	NodeName string `flag:"node-name" validate:"required"`

	ResyncInterval time.Duration `flag:"resync-interval" validate:"gt=0"`

	HCInterval        time.Duration `flag:"hc-interval" validate:"gt=0"`
	HCTimeout         time.Duration `flag:"hc-timeout" validate:"gt=0"`
	HCDeregisterAfter time.Duration `flag:"hc-deregister-after" validate:"gt=0"`

	ProbeInterval time.Duration `flag:"probe-interval" validate:"gt=0"`
	ProbeTimeout  time.Duration `flag:"probe-timeout" validate:"gt=0"`
	ProbeRetries  int           `flag:"probe-retries" validate:"min=1"`
	WriteTimeout  time.Duration `flag:"write-timeout" validate:"gt=0"`

	TraefikURL   string        `flag:"traefik-url" validate:"required,url"`
	TraefikHost  string        `flag:"traefik-host"`
	FetchTimeout time.Duration `flag:"fetch-timeout" validate:"gt=0"`

	ServiceHTTP  string `flag:"service-http" validate:"required,url"`
	ServiceHTTPS string `flag:"service-https" validate:"omitempty,url"`

	Mode     string `flag:"mode" validate:"oneof=kv tags"`
	KVPrefix string `flag:"kv-prefix" validate:"required"`

	EntryPointPlain  string `flag:"entrypoint-plain" validate:"required"`
	EntryPointSecure string `flag:"entrypoint-secure" validate:"required"`

	MaxIdleConnsPerHost int           `flag:"max-idle-conns-per-host" validate:"min=0"`
	IdleConnTimeout     time.Duration `flag:"idle-conn-timeout" validate:"min=0"`

	NoLease          bool   `flag:"no-lease"`
	DeregisterOnExit bool   `flag:"deregister-on-exit"`
	StateDir         string `flag:"state-dir"`
	StatusAddr       string `flag:"status-addr" validate:"omitempty,hostname_port"`

	LogLevel  string `flag:"log-level" validate:"oneof=debug info warn error"`
	LogJSON   bool   `flag:"log-json"`
	DebugDiff bool   `flag:"debug-diff"`
	DryRun    bool   `flag:"dry-run"`
}

// SetupFlags registers every option on flags with its default
func (c *Config) SetupFlags(flags *pflag.FlagSet) {
	hostname, _ := os.Hostname()

	flags.StringVar(&c.ConsulAddr, "consul-addr", "http://consul:8500", "registry address")
	flags.StringVar(&c.ConsulToken, "consul-token", "", "registry ACL token")
	flags.StringVar(&c.NodeName, "node-name", hostname, "gateway node identity")
	flags.DurationVar(&c.ResyncInterval, "resync-interval", 30*time.Second, "period of the gateway resync")

	flags.DurationVar(&c.HCInterval, "hc-interval", 10*time.Second, "service check interval and lease renewal period")
	flags.DurationVar(&c.HCTimeout, "hc-timeout", 5*time.Second, "service check timeout")
	flags.DurationVar(&c.HCDeregisterAfter, "hc-deregister-after", 30*time.Second, "critical check deregistration delay and lease TTL")

	flags.DurationVar(&c.ProbeInterval, "probe-interval", 10*time.Second, "registry reachability probe interval")
	flags.DurationVar(&c.ProbeTimeout, "probe-timeout", 5*time.Second, "registry reachability probe timeout")
	flags.IntVar(&c.ProbeRetries, "probe-retries", 1, "consecutive failed probes before the registry is marked unreachable")
	flags.DurationVar(&c.WriteTimeout, "write-timeout", 10*time.Second, "timeout of a single registry write")

	flags.StringVar(&c.TraefikURL, "traefik-url", "", "gateway API base URL")
	flags.StringVar(&c.TraefikHost, "traefik-host", "", "Host header sent to the gateway API")
	flags.DurationVar(&c.FetchTimeout, "fetch-timeout", 10*time.Second, "gateway API request timeout")

	flags.StringVar(&c.ServiceHTTP, "service-http", "", "plaintext backend URL of this node")
	flags.StringVar(&c.ServiceHTTPS, "service-https", "", "encrypted backend URL of this node")

	flags.StringVar(&c.Mode, "mode", string(builder.ModeKV), "publication mode: kv or tags")
	flags.StringVar(&c.KVPrefix, "kv-prefix", builder.DefaultPrefix, "key/value root in kv mode")

	flags.StringVar(&c.EntryPointPlain, "entrypoint-plain", builder.DefaultEntryPointPlain, "name of the plaintext entry point")
	flags.StringVar(&c.EntryPointSecure, "entrypoint-secure", builder.DefaultEntryPointSecure, "name of the encrypted entry point")

	flags.IntVar(&c.MaxIdleConnsPerHost, "max-idle-conns-per-host", 64, "idle connections kept per backend")
	flags.DurationVar(&c.IdleConnTimeout, "idle-conn-timeout", 90*time.Second, "idle connection timeout towards backends")

	flags.BoolVar(&c.NoLease, "no-lease", false, "write kv entries without a session")
	flags.BoolVar(&c.DeregisterOnExit, "deregister-on-exit", false, "deregister the node services on shutdown")
	flags.StringVar(&c.StateDir, "state-dir", "", "directory persisting the cached state; empty disables")
	flags.StringVar(&c.StatusAddr, "status-addr", ":9180", "status server address; empty disables")

	flags.StringVar(&c.LogLevel, "log-level", string(log.InfoLevel), "log level: debug, info, warn or error")
	flags.BoolVar(&c.LogJSON, "log-json", false, "log in JSON")
	flags.BoolVar(&c.DebugDiff, "debug-diff", false, "log the state diff of every cycle")
	flags.BoolVar(&c.DryRun, "dry-run", false, "publish to an in-memory registry only")
}

// EnvName returns the environment variable bound to a flag
func EnvName(flag string) string {
	return strcase.ToScreamingSnake(flag)
}

// legacyEnv maps flags to the environment variables earlier releases read.
// They apply only when neither the flag nor its own variable is set.
var legacyEnv = map[string]envAlias{
	"resync-interval": {env: "RESYNC_SECONDS", convert: seconds},
	"service-http":    {env: "SERVICE"},
}

type envAlias struct {
	env     string
	convert func(string) (string, error)
}

func seconds(s string) (string, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("expected whole seconds: %w", err)
	}
	return (time.Duration(n) * time.Second).String(), nil
}

// BindEnv sets every flag that was not given on the command line from its
// environment variable, when present
func BindEnv(flags *pflag.FlagSet) error {
	v := viper.New()
	var errs *multierror.Error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		if err := v.BindEnv(f.Name, EnvName(f.Name)); err != nil {
			errs = multierror.Append(errs, err)
			return
		}

		if v.IsSet(f.Name) {
			if err := flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", EnvName(f.Name), err))
			}
			return
		}

		alias, ok := legacyEnv[f.Name]
		if !ok {
			return
		}
		key := "legacy-" + f.Name
		if err := v.BindEnv(key, alias.env); err != nil {
			errs = multierror.Append(errs, err)
			return
		}
		if !v.IsSet(key) {
			return
		}
		val := v.GetString(key)
		if alias.convert != nil {
			var err error
			if val, err = alias.convert(val); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", alias.env, err))
				return
			}
		}
		if err := flags.Set(f.Name, val); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", alias.env, err))
		}
	})
	return errs.ErrorOrNil()
}

// Leased reports whether kv entries are bound to a lease
func (c *Config) Leased() bool {
	return builder.Mode(c.Mode) == builder.ModeKV && !c.NoLease
}

// Validate checks field constraints and the rules that span fields
func (c *Config) Validate() error {
	var errs *multierror.Error

	v := validate.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("flag")
	})
	if err := v.Struct(c); err != nil {
		var verrs validate.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		for _, fe := range verrs {
			errs = multierror.Append(errs, fmt.Errorf("--%s: failed %q validation", fe.Field(), fe.Tag()))
		}
	}

	if c.ServiceHTTP != "" {
		if _, _, err := naming.ParseEndpoint(c.ServiceHTTP); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("--service-http: %w", err))
		}
	}
	if c.ServiceHTTPS != "" {
		if _, _, err := naming.ParseEndpoint(c.ServiceHTTPS); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("--service-https: %w", err))
		}
	}

	if c.Leased() {
		if c.HCDeregisterAfter < MinLeaseTTL || c.HCDeregisterAfter > MaxLeaseTTL {
			errs = multierror.Append(errs, fmt.Errorf("--hc-deregister-after: lease TTL %s outside [%s, %s]",
				c.HCDeregisterAfter, MinLeaseTTL, MaxLeaseTTL))
		}
		if c.HCInterval >= c.HCDeregisterAfter {
			errs = multierror.Append(errs, fmt.Errorf("--hc-interval: renewal every %s cannot keep a %s lease alive",
				c.HCInterval, c.HCDeregisterAfter))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Builder returns the builder configuration
func (c *Config) Builder() builder.Config {
	return builder.Config{
		Node:                c.NodeName,
		PlainURL:            c.ServiceHTTP,
		EncryptedURL:        c.ServiceHTTPS,
		EntryPointPlain:     c.EntryPointPlain,
		EntryPointSecure:    c.EntryPointSecure,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
		Check: builder.CheckConfig{
			Interval:        c.HCInterval,
			Timeout:         c.HCTimeout,
			DeregisterAfter: c.HCDeregisterAfter,
		},
		Prefix: c.KVPrefix,
	}
}

// Consul returns the registry client configuration
func (c *Config) Consul() registry.ConsulConfig {
	return registry.ConsulConfig{
		Address:      c.ConsulAddr,
		Token:        c.ConsulToken,
		ProbeTimeout: c.ProbeTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Lease returns the lease manager configuration
func (c *Config) Lease() lease.Config {
	return lease.Config{
		Node:          c.NodeName,
		TTL:           c.HCDeregisterAfter,
		RenewInterval: c.HCInterval,
	}
}

// Probe returns the registry health monitor configuration
func (c *Config) Probe() health.Config {
	return health.Config{
		Interval: c.ProbeInterval,
		Timeout:  c.ProbeTimeout,
		Retries:  c.ProbeRetries,
	}
}

// Gateway returns the gateway client configuration
func (c *Config) Gateway() gateway.Config {
	return gateway.Config{
		URL:     c.TraefikURL,
		Host:    c.TraefikHost,
		Timeout: c.FetchTimeout,
	}
}

// Log returns the logging configuration
func (c *Config) Log() log.Config {
	return log.Config{
		Level:      log.Level(c.LogLevel),
		JSONOutput: c.LogJSON,
	}
}

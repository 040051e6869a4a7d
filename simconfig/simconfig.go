// Package simconfig loads Simulation construction options from a YAML
// file, for embedding applications that want file-based bootstrap
// instead of wiring dslabcore.Option values in code. It follows the
// teacher's config-section/feeder pattern without pulling in the full
// feeder/tenant machinery: one struct, one yaml.Unmarshal call, plus an
// affixed-env override pass modeled on the teacher's env feeder.
package simconfig

import (
	"fmt"
	"os"
	"reflect"

	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"

	"github.com/osukhoroslov/dslab-core"
	"github.com/osukhoroslov/dslab-core/logx"
)

// envPrefix namespaces the environment variable overrides applied by
// Load, mirroring the teacher's prefixed-env feeder convention.
const envPrefix = "DSLAB_"

// Config is the file-based mirror of dslabcore's constructor arguments:
// { seed, cancellation_policy, unhandled_event_log_level }. Each field's
// `env` tag names the DSLAB_-prefixed environment variable that can
// override its YAML value.
type Config struct {
	Seed                   uint64 `yaml:"seed" env:"SEED"`
	CancellationPolicy     string `yaml:"cancellation_policy" env:"CANCELLATION_POLICY"`
	UnhandledEventLogLevel string `yaml:"unhandled_event_log_level" env:"UNHANDLED_EVENT_LOG_LEVEL"`
}

// Load reads and parses a Config from a YAML file at path, then applies
// any DSLAB_-prefixed environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simconfig: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("simconfig: parsing %s: %w", path, err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides walks cfg's fields by their `env` tag and, for each
// DSLAB_-prefixed variable actually set, casts the raw string into the
// field's own type and assigns it — the same setFieldValue-over-
// reflection idiom the teacher's affixed-env feeder uses, narrowed to
// this package's one flat struct instead of arbitrary nested configs.
func applyEnvOverrides(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(envPrefix + tag)
		if !ok || raw == "" {
			continue
		}
		field := v.Field(i)
		converted, err := cast.FromType(raw, field.Type())
		if err != nil {
			return fmt.Errorf("simconfig: env %s%s: %w", envPrefix, tag, err)
		}
		field.Set(reflect.ValueOf(converted))
	}
	return nil
}

// CancellationPolicyValue parses the configured policy name, defaulting to
// CancelPolicyNone for an empty or unrecognized string.
func (c *Config) CancellationPolicyValue() dslabcore.CancellationPolicy {
	switch c.CancellationPolicy {
	case "AllFromComponent":
		return dslabcore.CancelPolicyAllFromComponent
	case "SrcOnly":
		return dslabcore.CancelPolicySrcOnly
	default:
		return dslabcore.CancelPolicyNone
	}
}

// UnhandledEventLevel parses the configured log level name, defaulting
// to logx.LevelWarn for an empty or unrecognized string.
func (c *Config) UnhandledEventLevel() logx.Level {
	switch c.UnhandledEventLogLevel {
	case "debug":
		return logx.LevelDebug
	case "info":
		return logx.LevelInfo
	case "error":
		return logx.LevelError
	default:
		return logx.LevelWarn
	}
}

// Options converts Config into dslabcore.Option values, ready to pass to
// dslabcore.New alongside any code-side options (e.g. WithSink, which
// has no YAML-serializable form and so is never part of Config).
func (c *Config) Options() []dslabcore.Option {
	return []dslabcore.Option{
		dslabcore.WithCancellationPolicy(c.CancellationPolicyValue()),
		dslabcore.WithUnhandledEventLevel(c.UnhandledEventLevel()),
	}
}

// New builds a Simulation straight from a YAML file at path, layering
// any additional code-side options (e.g. WithSink) after the file's own.
func New(path string, extra ...dslabcore.Option) (*dslabcore.Simulation, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	opts := append(cfg.Options(), extra...)
	return dslabcore.New(cfg.Seed, opts...), nil
}

// Package config loads the service configuration from an optional file, a
// .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/yatrik/scheduler/core/metrics"
	"github.com/yatrik/scheduler/core/runlog"
	"github.com/yatrik/scheduler/core/scheduler"
	"github.com/yatrik/scheduler/infra/api"
)

// EnvPrefix prefixes every structured environment override, for example
// YATRIK_SCHEDULE__TIMEGAP=45 or YATRIK_RUN_LOG__BACKEND=sqlite.
const EnvPrefix = "YATRIK_"

// legacyEnv maps the variables of the original driver scripts to keys.
var legacyEnv = map[string]string{
	"API_BASE":       "api.base_url",
	"ADMIN_EMAIL":    "api.email",
	"ADMIN_PASSWORD": "api.password",
	"SERVICE_DATE":   "schedule.date",
	"DEPOT_IDS":      "schedule.depotids",
}

// Config is the application configuration. Each section validates itself.
type Config struct {
	API      api.Config        `json:"api"`
	Schedule scheduler.Options `json:"schedule"`
	RunLog   runlog.Config     `json:"run_log"`
	Metrics  metrics.Config    `json:"metrics"`
	Progress ProgressConfig    `json:"progress"`
	Server   ServerConfig      `json:"server"`
	Sentry   SentryConfig      `json:"sentry"`
	Report   ReportConfig      `json:"report"`
	Logging  LoggingConfig     `json:"logging"`
}

// Load reads the configuration. Sources apply in increasing precedence: the
// file at path (skipped when path is empty), .env in the working directory,
// the legacy variables API_BASE, ADMIN_EMAIL, ADMIN_PASSWORD, SERVICE_DATE
// and DEPOT_IDS, then YATRIK_<SECTION>__<KEY> variables. Keys match case
// insensitively.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		for key, v := range fk.All() {
			if err := k.Set(strings.ToLower(key), v); err != nil {
				return nil, err
			}
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	for name, key := range legacyEnv {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := k.Set(key, envValue(key, v)); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s, v string) (string, interface{}) {
		key := strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		return key, envValue(key, v)
	}), nil); err != nil {
		return nil, err
	}

	cfg := Config{Schedule: scheduler.DefaultOptions()}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
}

// envValue splits comma separated lists for list valued keys.
func envValue(key, v string) interface{} {
	if !strings.HasSuffix(key, "depotids") {
		return v
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.API.SetDefaults()
	c.Schedule.SetDefaults()
	c.RunLog.SetDefaults()
	c.Metrics.SetDefaults()
	c.Progress.SetDefaults()
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and returns all problems at once.
func (c Config) Validate() error {
	return errors.Join(
		c.API.Validate(),
		c.Schedule.Validate(),
		c.RunLog.Validate(),
		c.Progress.Validate(),
		c.Server.Validate(),
		c.Logging.Validate(),
	)
}

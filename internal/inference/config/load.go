package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration must be like \"5s\" or an int nanoseconds: %w", err)
	}
	return d, nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = u
	}
	dd, err := parseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.Duration.String())), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	dd, err := parseDuration(n.Value)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

// UnmarshalText is used for environment variables.
func (d *Duration) UnmarshalText(b []byte) error {
	dd, err := parseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: D(5 * time.Second),
			IdleTimeout:       D(2 * time.Minute),
			ShutdownTimeout:   D(15 * time.Second),
			MaxRequestBytes:   1 << 20,
		},
		Models: ModelsConfig{
			Enhanced: ModelSource{Dir: "kt_models/ckpts/dkt+/SkillBuilder"},
			Baseline: ModelSource{Dir: "kt_models/ckpts/dkt/ASSIST2009"},
		},
		Selector: SelectorConfig{
			BreakerFailures: 5,
			BreakerTimeout:  D(30 * time.Second),
			MaxConcurrency:  64,
		},
		Cache: CacheConfig{
			TTL:       D(10 * time.Minute),
			LocalSize: 10000,
		},
	}
}

// Load builds the service config: defaults, then the optional file named by
// KT_CONFIG_PATH (or config/config.{json,yaml,yml} under the working
// directory), then environment variables. A .env file is read first when
// present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("KT_CONFIG_PATH"))
	if cfgPath == "" {
		cfgPath = findConfigFile()
	}
	if cfgPath != "" {
		if err := overlayFile(cfg, cfgPath); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(wd, "config", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func overlayFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func normalize(cfg *Config) {
	cfg.Env = strings.TrimSpace(cfg.Env)
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	cfg.HTTP.Addr = strings.TrimSpace(cfg.HTTP.Addr)
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 1 << 20
	}
	if cfg.HTTP.RateLimitRPS > 0 && cfg.HTTP.RateLimitBurst <= 0 {
		cfg.HTTP.RateLimitBurst = int(cfg.HTTP.RateLimitRPS) + 1
	}
	for _, m := range []*ModelSource{&cfg.Models.Enhanced, &cfg.Models.Baseline} {
		m.Dir = strings.TrimSpace(m.Dir)
		m.SnapshotKey = strings.TrimSpace(m.SnapshotKey)
		// A snapshot key wins over the default directory.
		if m.SnapshotKey != "" {
			m.Dir = ""
		}
	}
	cfg.Registry.Driver = strings.ToLower(strings.TrimSpace(cfg.Registry.Driver))
}

var validate = validator.New()

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	usesRegistry := cfg.Models.Enhanced.SnapshotKey != "" || cfg.Models.Baseline.SnapshotKey != ""
	if usesRegistry && (cfg.Registry.Driver == "" || cfg.Registry.DSN == "") {
		return errors.New("invalid config: models.*.snapshot_key needs registry.driver and registry.dsn")
	}
	return nil
}

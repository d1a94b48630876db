package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KT_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Selector.BreakerFailures != 5 || cfg.Cache.TTL.Duration != 10*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Models.Enhanced.Dir == "" || cfg.Models.Baseline.Dir == "" {
		t.Fatalf("default model dirs missing: %+v", cfg.Models)
	}
}

func TestLoadJSONFileThenEnv(t *testing.T) {
	p := writeFile(t, "config.json", `{
		"http": {"addr": ":9000", "shutdown_timeout": "3s", "idle_timeout": 1000000000},
		"models": {"enhanced": {"dir": "gs://models/dkt+"}},
		"selector": {"breaker_failures": 2}
	}`)
	t.Setenv("KT_CONFIG_PATH", p)
	t.Setenv("KT_GRPC_ADDR", ":9090")
	t.Setenv("KT_BASELINE_DIR", "/srv/dkt")
	t.Setenv("KT_BREAKER_TIMEOUT", "45s")
	t.Setenv("KT_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" || cfg.HTTP.ShutdownTimeout.Duration != 3*time.Second || cfg.HTTP.IdleTimeout.Duration != time.Second {
		t.Fatalf("http not overlaid: %+v", cfg.HTTP)
	}
	if cfg.HTTP.ReadHeaderTimeout.Duration != 5*time.Second {
		t.Fatalf("unset file keys should keep defaults, got %v", cfg.HTTP.ReadHeaderTimeout.Duration)
	}
	if cfg.Models.Enhanced.Dir != "gs://models/dkt+" || cfg.Models.Baseline.Dir != "/srv/dkt" {
		t.Fatalf("models: %+v", cfg.Models)
	}
	if cfg.GRPC.Addr != ":9090" || cfg.Selector.BreakerFailures != 2 || cfg.Selector.BreakerTimeout.Duration != 45*time.Second {
		t.Fatalf("env not applied: %+v %+v", cfg.GRPC, cfg.Selector)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 {
		t.Fatalf("cors origins: %v", cfg.HTTP.CORSOrigins)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	p := writeFile(t, "config.yaml", `
env: production
cache:
  redis_addr: localhost:6379
  ttl: 30s
registry:
  driver: SQLite
  dsn: file:kt.db
models:
  enhanced:
    snapshot_key: dkt+
`)
	t.Setenv("KT_CONFIG_PATH", p)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "production" || cfg.Cache.RedisAddr != "localhost:6379" || cfg.Cache.TTL.Duration != 30*time.Second {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.Registry.Driver != "sqlite" {
		t.Fatalf("driver not normalised: %q", cfg.Registry.Driver)
	}
	if cfg.Models.Enhanced.Dir != "" || cfg.Models.Enhanced.SnapshotKey != "dkt+" {
		t.Fatalf("snapshot key should replace the default dir: %+v", cfg.Models.Enhanced)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"snapshot without registry": `{"models":{"baseline":{"snapshot_key":"dkt"}}}`,
		"missing model":             `{"models":{"enhanced":{"dir":""}}}`,
		"bad driver":                `{"registry":{"driver":"mysql"}}`,
		"bad duration":              `{"http":{"idle_timeout":"soon"}}`,
		"zero concurrency":          `{"selector":{"max_concurrency":0}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("KT_CONFIG_PATH", writeFile(t, "config.json", body))
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(D(1500 * time.Millisecond))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var d Duration
	if err := json.Unmarshal(b, &d); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	if d.Duration != 1500*time.Millisecond {
		t.Fatalf("got %v", d.Duration)
	}
}

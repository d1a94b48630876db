package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient(context.Background(), logger.Nop(), Config{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err=%v, want ErrNotConfigured", err)
	}
}

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{6, time.Second},
	}
	for _, tc := range cases {
		if got := clampBackoff(100*time.Millisecond, time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_TASK_QUEUE", "train-q")
	t.Setenv("TEMPORAL_DIAL_TIMEOUT", "2s")
	t.Setenv("TEMPORAL_NAMESPACE_RETENTION_DAYS", "900")
	t.Setenv("WORKER_CONCURRENCY", "0")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Namespace != "neurobridge-kt" || cfg.TaskQueue != "train-q" || cfg.Address != "" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.DialTimeout != 2*time.Second || cfg.BackoffMax != 5*time.Second {
		t.Fatalf("durations: dial=%v backoff_max=%v", cfg.DialTimeout, cfg.BackoffMax)
	}
	if cfg.RetentionDays != 7 || cfg.WorkerConcurrency != 1 {
		t.Fatalf("clamps: retention=%d concurrency=%d", cfg.RetentionDays, cfg.WorkerConcurrency)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("TEMPORAL_DIAL_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

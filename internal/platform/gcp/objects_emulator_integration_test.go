package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestObjectStoreEmulatorRoundTrip(t *testing.T) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("KT_RUN_GCS_EMULATOR_INTEGRATION")), "true") {
		t.Skip("set KT_RUN_GCS_EMULATOR_INTEGRATION=true to run emulator integration tests")
	}
	host := strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/")
	if host == "" {
		host = "http://127.0.0.1:4443"
	}
	if !isEmulatorReachable(host) {
		t.Skipf("storage emulator not reachable at %s", host)
	}
	t.Setenv("STORAGE_EMULATOR_HOST", host)

	bucket := fmt.Sprintf("kt-it-%d", time.Now().UnixNano())
	createBucket(t, host, bucket)

	ctx := context.Background()
	store, err := NewObjectStoreWithConfig(ctx, nil, Config{Mode: "gcs_emulator", EmulatorHost: host})
	if err != nil {
		t.Fatalf("NewObjectStoreWithConfig: %v", err)
	}
	defer store.Close()

	key := Join("ckpt/dkt+", "model_config.json")
	if err := store.Put(ctx, bucket, key, strings.NewReader(`{"emb_size":4}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, err := store.Open(ctx, bucket, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(body) != `{"emb_size":4}` {
		t.Fatalf("body=%q err=%v", body, err)
	}

	keys, err := store.List(ctx, bucket, "ckpt/")
	if err != nil || !slices.Contains(keys, key) {
		t.Fatalf("List keys=%v err=%v", keys, err)
	}

	if _, err := store.Open(ctx, bucket, "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Open(missing) err=%v, want ErrObjectNotFound", err)
	}
}

func isEmulatorReachable(host string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(host + "/storage/v1/b?project=local-dev")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func createBucket(t *testing.T, host, bucket string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"name": bucket})
	resp, err := http.Post(host+"/storage/v1/b?project=local-dev", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("create bucket %q: %v", bucket, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("create bucket %q failed: status=%d body=%s", bucket, resp.StatusCode, strings.TrimSpace(string(b)))
	}
}

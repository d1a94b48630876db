// Package gcp wraps the Cloud Storage client used to read and write model
// checkpoints.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore reads and writes objects in any bucket the credentials reach.
type ObjectStore struct {
	log    *logger.Logger
	client *storage.Client
}

func NewObjectStore(ctx context.Context, log *logger.Logger) (*ObjectStore, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewObjectStoreWithConfig(ctx, log, cfg)
}

func NewObjectStoreWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := cfg.clientOptions()
	if cfg.Emulated() {
		// The storage client switches to the emulator's JSON API when this
		// variable is set.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", "ObjectStore")
	log.Info("object storage initialized", "emulated", cfg.Emulated(), "emulator_host", cfg.EmulatorHost)
	return &ObjectStore{log: log, client: client}, nil
}

func (s *ObjectStore) Close() error { return s.client.Close() }

// Open returns a reader for bucket/key. The returned reader owns a timeout
// context that is released on Close.
func (s *ObjectStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *ObjectStore) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *ObjectStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

// ParseURI splits gs://bucket/prefix. The prefix has no leading or
// trailing slash and may be empty.
func ParseURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

func IsURI(s string) bool { return strings.HasPrefix(strings.TrimSpace(s), "gs://") }

// Join builds an object key under prefix.
func Join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

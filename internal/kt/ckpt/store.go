package ckpt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yungbote/neurobridge-kt/internal/platform/gcp"
)

var ErrNotFound = errors.New("checkpoint file not found")

// Store is a checkpoint directory: a local path or a gs:// prefix.
type Store interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	URI() string
}

// Objects is the subset of *gcp.ObjectStore a GCS checkpoint needs.
type Objects interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
}

// OpenStore resolves uri. objects may be nil when uri is a local path.
func OpenStore(uri string, objects Objects) (Store, error) {
	if !gcp.IsURI(uri) {
		if uri == "" {
			return nil, errors.New("empty checkpoint location")
		}
		return DirStore{Dir: uri}, nil
	}
	if objects == nil {
		return nil, fmt.Errorf("%s needs an object store", uri)
	}
	bucket, prefix, err := gcp.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return &GCSStore{objects: objects, bucket: bucket, prefix: prefix}, nil
}

type DirStore struct{ Dir string }

func (d DirStore) URI() string { return d.Dir }

func (d DirStore) Read(_ context.Context, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(d.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Join(d.Dir, name))
	}
	return b, err
}

// Write replaces name atomically via a temp file and rename.
func (d DirStore) Write(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.Dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(d.Dir, name))
}

type GCSStore struct {
	objects Objects
	bucket  string
	prefix  string
}

func (g *GCSStore) URI() string {
	if g.prefix == "" {
		return "gs://" + g.bucket
	}
	return "gs://" + g.bucket + "/" + g.prefix
}

func (g *GCSStore) Read(ctx context.Context, name string) ([]byte, error) {
	rc, err := g.objects.Open(ctx, g.bucket, gcp.Join(g.prefix, name))
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, g.URI(), name)
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (g *GCSStore) Write(ctx context.Context, name string, data []byte) error {
	ct := "application/octet-stream"
	if filepath.Ext(name) == ".json" {
		ct = "application/json"
	}
	return g.objects.Put(ctx, g.bucket, gcp.Join(g.prefix, name), bytes.NewReader(data), ct)
}

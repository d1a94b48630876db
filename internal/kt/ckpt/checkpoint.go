// Package ckpt reads and writes model checkpoints: a safetensors weight
// file next to model_config.json.
package ckpt

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

const (
	WeightsFile = "model.safetensors"
	ConfigFile  = "model_config.json"
)

// Info describes a loaded or saved checkpoint.
type Info struct {
	URI    string
	Config ModelConfig
	// Fingerprint is the hex BLAKE2b-256 digest of the weight file.
	Fingerprint string
	Meta        map[string]string
}

// Load reads a checkpoint of variant v from st. The question count comes
// from the first dimension of out_layer.weight unless model_config.json
// sets num_q; any disagreement with the weights is an error.
func Load(ctx context.Context, st Store, v model.Variant) (model.Trainable, Info, error) {
	var weights, cfgBytes []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		weights, err = st.Read(gctx, WeightsFile)
		return err
	})
	g.Go(func() (err error) {
		cfgBytes, err = st.Read(gctx, ConfigFile)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, Info{}, fmt.Errorf("load %s: %w", st.URI(), err)
	}

	cfg, err := ParseModelConfig(cfgBytes)
	if err != nil {
		return nil, Info{}, fmt.Errorf("load %s: %w", st.URI(), err)
	}
	tensors, meta, err := Decode(weights)
	if err != nil {
		return nil, Info{}, fmt.Errorf("load %s: %w", st.URI(), err)
	}
	out, ok := tensors["out_layer.weight"]
	if !ok || len(out.Shape) != 2 {
		return nil, Info{}, fmt.Errorf("load %s: %w: out_layer.weight", st.URI(), model.ErrMissingParam)
	}
	h, err := cfg.Hyper(v, out.Shape[0])
	if err != nil {
		return nil, Info{}, fmt.Errorf("load %s: %w", st.URI(), err)
	}
	m, err := model.FromTensors(v, h, tensors)
	if err != nil {
		return nil, Info{}, fmt.Errorf("load %s: %w", st.URI(), err)
	}
	return m, Info{URI: st.URI(), Config: cfg, Fingerprint: Fingerprint(weights), Meta: meta}, nil
}

// Save writes m to st. The weights go first so a reader never sees a new
// config next to stale weights of another shape.
func Save(ctx context.Context, st Store, m model.Model, meta map[string]string) (Info, error) {
	var buf bytes.Buffer
	if meta == nil {
		meta = map[string]string{}
	}
	meta["format"] = "pt"
	meta["variant"] = string(m.Variant())
	meta["num_q"] = strconv.Itoa(m.Hyper().NumQuestions)
	if err := Encode(&buf, m.Params(), meta); err != nil {
		return Info{}, err
	}
	cfg := ConfigFor(m)
	cfgBytes, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return Info{}, err
	}
	if err := st.Write(ctx, WeightsFile, buf.Bytes()); err != nil {
		return Info{}, fmt.Errorf("save %s: %w", st.URI(), err)
	}
	if err := st.Write(ctx, ConfigFile, cfgBytes); err != nil {
		return Info{}, fmt.Errorf("save %s: %w", st.URI(), err)
	}
	return Info{URI: st.URI(), Config: cfg, Fingerprint: Fingerprint(buf.Bytes()), Meta: meta}, nil
}

func Fingerprint(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

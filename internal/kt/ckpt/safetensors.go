package ckpt

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/yungbote/neurobridge-kt/internal/kt/nn"
)

const (
	metadataKey = "__metadata__"
	// maxHeaderLen bounds the JSON header we are willing to parse.
	maxHeaderLen = 100 << 20
)

var ErrCorrupt = errors.New("corrupt safetensors file")

type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

func dtypeSize(dtype string) (int, bool) {
	switch dtype {
	case "F32":
		return 4, true
	case "F64":
		return 8, true
	}
	return 0, false
}

// Encode writes ts as a safetensors blob with F32 data, in the given order.
func Encode(w io.Writer, ts []nn.NamedTensor, meta map[string]string) error {
	header := make(map[string]any, len(ts)+1)
	if len(meta) > 0 {
		header[metadataKey] = meta
	}
	var off int64
	for _, t := range ts {
		if _, dup := header[t.Name]; dup || t.Name == "" {
			return fmt.Errorf("safetensors: invalid or duplicate tensor name %q", t.Name)
		}
		n := int64(t.Tensor.Len()) * 4
		header[t.Name] = tensorInfo{DType: "F32", Shape: t.Tensor.Shape, DataOffsets: [2]int64{off, off + n}}
		off += n
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("safetensors: encode header: %w", err)
	}
	if pad := len(hdr) % 8; pad != 0 {
		hdr = append(hdr, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	buf := bufio.NewWriter(w)
	bw := &errWriter{w: buf}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hdr)))
	bw.write(lenBuf[:])
	bw.write(hdr)
	word := make([]byte, 4)
	for _, t := range ts {
		for _, v := range t.Tensor.Data {
			binary.LittleEndian.PutUint32(word, math.Float32bits(float32(v)))
			bw.write(word)
		}
	}
	if bw.err != nil {
		return bw.err
	}
	return buf.Flush()
}

// Decode parses a safetensors blob. F32 and F64 tensors are widened to
// float64; any other dtype is rejected.
func Decode(b []byte) (map[string]*nn.Tensor, map[string]string, error) {
	if len(b) < 8 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(b))
	}
	n := binary.LittleEndian.Uint64(b[:8])
	if n > maxHeaderLen || n > uint64(len(b)-8) {
		return nil, nil, fmt.Errorf("%w: header length %d exceeds file", ErrCorrupt, n)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b[8:8+n], &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	data := b[8+n:]

	var meta map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, nil, fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
		}
		delete(raw, metadataKey)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make(map[string]*nn.Tensor, len(raw))
	for _, name := range names {
		var info tensorInfo
		if err := json.Unmarshal(raw[name], &info); err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %s: %v", ErrCorrupt, name, err)
		}
		size, ok := dtypeSize(info.DType)
		if !ok {
			return nil, nil, fmt.Errorf("safetensors: tensor %s has unsupported dtype %s", name, info.DType)
		}
		// Elements cannot exceed what the data section holds, which also
		// keeps the product from overflowing.
		limit := int64(len(data) / size)
		count := int64(1)
		for _, d := range info.Shape {
			if d < 0 {
				return nil, nil, fmt.Errorf("%w: tensor %s has negative dimension", ErrCorrupt, name)
			}
			if d > 0 && count > limit/int64(d) {
				return nil, nil, fmt.Errorf("%w: tensor %s shape %s exceeds data section", ErrCorrupt, name, nn.ShapeString(info.Shape))
			}
			count *= int64(d)
		}
		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(data)) || end-begin != count*int64(size) {
			return nil, nil, fmt.Errorf("%w: tensor %s offsets [%d,%d) do not fit %s %s", ErrCorrupt, name, begin, end, info.DType, nn.ShapeString(info.Shape))
		}
		t := nn.NewTensor(info.Shape...)
		src := data[begin:end]
		for i := range t.Data {
			if size == 4 {
				t.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
			} else {
				t.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:]))
			}
		}
		out[name] = t
	}
	return out, meta, nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

package cache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// codec wraps a zstd encoder and decoder pair. EncodeAll and DecodeAll are
// safe for concurrent use.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

// maybeCompress returns the compressed form only when it is strictly smaller
func (c *codec) maybeCompress(raw []byte, threshold int) ([]byte, bool) {
	if len(raw) <= threshold {
		return raw, false
	}
	compressed := c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	if len(compressed) >= len(raw) {
		return raw, false
	}
	return compressed, true
}

func (c *codec) decompress(stored []byte) ([]byte, error) {
	return c.dec.DecodeAll(stored, nil)
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}

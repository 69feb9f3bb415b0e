package compression

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements the Compressor interface using Zstandard.
// EncodeAll / DecodeAll 可以并发调用，所以 encoder/decoder 只建一次。
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstd returns a new ZstdCompressor.
func NewZstd() (*ZstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &ZstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (c *ZstdCompressor) Type() CompressionType {
	return Compress_zstd
}

func (c *ZstdCompressor) TypeString() string {
	return "zstd"
}

func (c *ZstdCompressor) Compress(dst, src []byte) (int, error) {
	encoded := c.encoder.EncodeAll(src, nil)
	if len(encoded) > len(dst) {
		return 0, ErrNoSpace
	}
	return copy(dst, encoded), nil
}

func (c *ZstdCompressor) Decompress(dst, src []byte) error {
	decoded, err := c.decoder.DecodeAll(src, make([]byte, 0, len(dst)))
	if err != nil {
		return err
	}
	if len(decoded) != len(dst) {
		return ErrSizeMismatch
	}
	copy(dst, decoded)
	return nil
}

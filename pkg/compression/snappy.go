package compression

import "github.com/golang/snappy"

// SnappyCompressor implements the Compressor interface using Snappy.
type SnappyCompressor struct{}

// NewSnappy returns a new SnappyCompressor.
func NewSnappy() *SnappyCompressor {
	return &SnappyCompressor{}
}

// Type returns the compression type.
func (c *SnappyCompressor) Type() CompressionType {
	return Compress_snappy
}

// TypeString returns the compression type string.
func (c *SnappyCompressor) TypeString() string {
	return "snappy"
}

// Compress compresses src into dst using Snappy.
func (c *SnappyCompressor) Compress(dst, src []byte) (int, error) {
	// snappy.Encode 在 dst 不够大时会自己分配，所以先按最坏情况编码再检查
	encoded := snappy.Encode(nil, src)
	if len(encoded) > len(dst) {
		return 0, ErrNoSpace
	}
	return copy(dst, encoded), nil
}

// Decompress decompresses src into dst using Snappy.
func (c *SnappyCompressor) Decompress(dst, src []byte) error {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return ErrSizeMismatch
	}
	_, err = snappy.Decode(dst, src)
	return err
}

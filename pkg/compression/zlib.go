package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ZlibCompressor implements the Compressor interface using Zlib.
// 这是 chunk 格式默认使用的编码
type ZlibCompressor struct {
	level int
}

// NewZlib returns a new ZlibCompressor.
func NewZlib() *ZlibCompressor {
	return &ZlibCompressor{level: zlib.DefaultCompression}
}

func (c *ZlibCompressor) Type() CompressionType {
	return Compress_zlib
}

// TypeString returns the compression type.
func (c *ZlibCompressor) TypeString() string {
	return "zlib"
}

// Compress compresses src into dst using Zlib.
func (c *ZlibCompressor) Compress(dst, src []byte) (int, error) {
	fw := &fixedWriter{buf: dst}
	w, err := zlib.NewWriterLevel(fw, c.level)
	if err != nil {
		return 0, err
	}
	_, werr := w.Write(src)
	cerr := w.Close()
	// 底层 writer 满了之后 flate 可能把错误包一层，统一按 full 判断
	if fw.full {
		return 0, ErrNoSpace
	}
	if werr != nil {
		return 0, werr
	}
	if cerr != nil {
		return 0, cerr
	}
	return fw.n, nil
}

// Decompress decompresses src into dst using Zlib.
func (c *ZlibCompressor) Decompress(dst, src []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := io.ReadFull(r, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrSizeMismatch, err)
	}
	// 流里不能还有多余数据
	// 读到 EOF 时才会校验 adler32
	var probe [1]byte
	n, err := r.Read(probe[:])
	if n != 0 {
		return ErrSizeMismatch
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

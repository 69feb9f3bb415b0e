package compression

import "errors"

type CompressionType byte

const (
	Compress_zlib   CompressionType = iota //0
	Compress_snappy                        //1
	Compress_zstd                          //2
)

// MethodNone 表示不压缩，GetCompressorViaString 返回 nil
const MethodNone = "none"

var (
	CompressionMethods = map[string]CompressionType{
		"zlib":   Compress_zlib,
		"snappy": Compress_snappy,
		"zstd":   Compress_zstd,
	}
)

var (
	ErrInvalidCompressionType = errors.New("invalid compression type")
	// ErrNoSpace 压缩结果放不进调用方给的 buffer，视为不值得压缩
	ErrNoSpace = errors.New("compressed data does not fit in destination")
	// ErrSizeMismatch 解压结果和预期的长度不一致
	ErrSizeMismatch = errors.New("decompressed size does not match expected size")
)

// Compressor 的两个方法都只在调用方提供的 buffer 内工作。
// chunk header 只记录了"是否压缩"，所以压缩结果必须比原文小才有意义，
// 解压后的长度必须与 header 里记录的未压缩大小完全一致。
type Compressor interface {
	// Compress 把 src 压缩进 dst，返回写入的字节数；
	// 放不下时返回 ErrNoSpace。
	Compress(dst, src []byte) (int, error)

	// Decompress 把 src 解压进 dst，必须恰好填满 dst。
	Decompress(dst, src []byte) error

	// Type returns the type of compression, e.g., "zlib", "snappy".
	TypeString() string
	Type() CompressionType
}

// GetCompressorViaString "none" 和空串都返回 nil，表示不压缩
func GetCompressorViaString(compressionStr string) (Compressor, error) {
	if compressionStr == "" || compressionStr == MethodNone {
		return nil, nil
	}
	compressionType, ok := CompressionMethods[compressionStr]
	if !ok {
		return nil, ErrInvalidCompressionType
	}
	return GetCompressorViaType(compressionType)
}

func GetCompressorViaType(compressionType CompressionType) (Compressor, error) {
	switch compressionType {
	case Compress_zlib:
		return NewZlib(), nil
	case Compress_snappy:
		return NewSnappy(), nil
	case Compress_zstd:
		c, err := NewZstd()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, ErrInvalidCompressionType
	}
}

// fixedWriter 往定长 buffer 里写，写满就报 ErrNoSpace
type fixedWriter struct {
	buf  []byte
	n    int
	full bool
}

func (w *fixedWriter) Write(p []byte) (int, error) {
	if len(p) > len(w.buf)-w.n {
		w.full = true
		return 0, ErrNoSpace
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}

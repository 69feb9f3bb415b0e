package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"chunkvault/pkg/types"
)

// ChunkHeaderMagic 是每个 chunk 文件开头的 4 字节魔数
const ChunkHeaderMagic uint32 = 0xB1FE3AA2

// LegacyChunkDataSize 是老版本 header (没有 uncompressed size 字段) 隐含的固定块大小
const LegacyChunkDataSize = 1024 * 1024

// MaxChunkDataSize 是一个 chunk 未压缩 payload 的上限。
// DataSizeUncompressed 来自文件本身，解压前按它分配内存，超过上限的 header 视为损坏。
const MaxChunkDataSize = 256 * 1024 * 1024

// ChunkVersion 单调递增，每新增一组字段就 +1
type ChunkVersion uint32

const (
	VersionInvalid ChunkVersion = iota
	VersionOriginal
	VersionStoresShaAndHashType
	VersionStoresDataSizeUncompressed

	versionLatestPlusOne
	LatestVersion = versionLatestPlusOne - 1
)

func (v ChunkVersion) String() string {
	switch v {
	case VersionOriginal:
		return "Original"
	case VersionStoresShaAndHashType:
		return "StoresShaAndHashType"
	case VersionStoresDataSizeUncompressed:
		return "StoresDataSizeUncompressed"
	default:
		return fmt.Sprintf("Invalid(%d)", uint32(v))
	}
}

// chunkHeaderVersionSizes 每个版本序列化后的 header 长度
// 一旦发布永不修改
var chunkHeaderVersionSizes = [versionLatestPlusOne]uint32{
	VersionInvalid:                    0,
	VersionOriginal:                   41,
	VersionStoresShaAndHashType:       62,
	VersionStoresDataSizeUncompressed: 66,
}

// HeaderSizeForVersion 查表。未知版本返回 false
func HeaderSizeForVersion(v ChunkVersion) (uint32, bool) {
	if v <= VersionInvalid || v > LatestVersion {
		return 0, false
	}
	return chunkHeaderVersionSizes[v], true
}

// StorageFlags 描述 payload 的存储方式
type StorageFlags uint8

const (
	StorageNone       StorageFlags = 0
	StorageCompressed StorageFlags = 1 << 0
	StorageEncrypted  StorageFlags = 1 << 1
)

func (f StorageFlags) Has(flag StorageFlags) bool { return f&flag != 0 }

// HashFlags 标记 header 里哪些哈希字段是有意义的
type HashFlags uint8

const (
	HashNone          HashFlags = 0
	HashRollingPoly64 HashFlags = 1 << 0
	HashSha1          HashFlags = 1 << 1
)

func (f HashFlags) Has(flag HashFlags) bool { return f&flag != 0 }

func (f HashFlags) String() string {
	switch f {
	case HashNone:
		return "None"
	case HashRollingPoly64:
		return "RollingPoly64"
	case HashSha1:
		return "Sha1"
	case HashRollingPoly64 | HashSha1:
		return "RollingPoly64|Sha1"
	default:
		return fmt.Sprintf("HashFlags(%d)", uint8(f))
	}
}

// ChunkHeader 是单个 chunk 的元数据
type ChunkHeader struct {
	Version              ChunkVersion
	HeaderSize           uint32
	ID                   types.ChunkID
	DataSizeCompressed   uint32
	DataSizeUncompressed uint32
	StorageFlags         StorageFlags
	HashFlags            HashFlags
	// RollingHash 和 SHAHash 都是对 *未压缩* payload 计算的
	RollingHash uint64
	SHAHash     types.SHAHash
}

// NewChunkHeader 返回一个最新版本的默认 header
func NewChunkHeader() *ChunkHeader {
	return &ChunkHeader{
		Version:              LatestVersion,
		HeaderSize:           chunkHeaderVersionSizes[LatestVersion],
		DataSizeUncompressed: LegacyChunkDataSize,
		HashFlags:            HashRollingPoly64,
	}
}

var (
	ErrIncorrectFileSize   = errors.New("incorrect file size")
	ErrCorruptHeader       = errors.New("corrupt chunk header")
	ErrHeaderSerialization = errors.New("chunk header serialization error")
)

// magic + version + headerSize
const (
	magicSize        = 4
	headerPrefixSize = 12
)

// EncodeHeader 按最新版本序列化 header
// 先把 body 写进内存拿到真实长度，再回填 headerSize，所以不需要 Seek。
// h 的 Version/HeaderSize 会被更新成实际写出的值。
func EncodeHeader(h *ChunkHeader) []byte {
	return encodeHeaderAs(h, LatestVersion)
}

func encodeHeaderAs(h *ChunkHeader, version ChunkVersion) []byte {
	le := binary.LittleEndian

	body := make([]byte, 0, chunkHeaderVersionSizes[LatestVersion])
	body = le.AppendUint32(body, h.DataSizeCompressed)
	body = append(body, h.ID[:]...)
	body = le.AppendUint64(body, h.RollingHash)
	body = append(body, byte(h.StorageFlags))
	if version >= VersionStoresShaAndHashType {
		body = append(body, h.SHAHash[:]...)
		body = append(body, byte(h.HashFlags))
	}
	if version >= VersionStoresDataSizeUncompressed {
		body = le.AppendUint32(body, h.DataSizeUncompressed)
	}

	headerSize := uint32(headerPrefixSize + len(body))
	out := make([]byte, 0, headerSize)
	out = le.AppendUint32(out, ChunkHeaderMagic)
	out = le.AppendUint32(out, uint32(version))
	out = le.AppendUint32(out, headerSize)
	out = append(out, body...)

	h.Version = version
	h.HeaderSize = headerSize
	return out
}

// headerCursor 顺序读取小端字段，off 记录已消费的字节数
type headerCursor struct {
	buf []byte
	off int
}

func (c *headerCursor) u8() uint8 {
	v := c.buf[c.off]
	c.off++
	return v
}

func (c *headerCursor) u32() uint32 {
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v
}

func (c *headerCursor) u64() uint64 {
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v
}

func (c *headerCursor) bytes(dst []byte) {
	c.off += copy(dst, c.buf[c.off:])
}

// DecodeHeader 从 data 的起始位置解析 header
// data 是 header 开始后所有可用的字节 (可以包含 payload)。
// 每一组按版本出现的字段在读取之前都先做长度检查，绝不读越界。
func DecodeHeader(data []byte) (*ChunkHeader, error) {
	available := uint32(len(data))
	// 先看 magic：不是 chunk 的数据一律报 header 损坏，不管长度够不够
	if len(data) < magicSize {
		return nil, fmt.Errorf("%w: %d bytes available, magic needs %d", ErrIncorrectFileSize, available, magicSize)
	}
	if magic := binary.LittleEndian.Uint32(data); magic != ChunkHeaderMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08X", ErrCorruptHeader, magic)
	}
	if len(data) < int(chunkHeaderVersionSizes[VersionOriginal]) {
		return nil, fmt.Errorf("%w: %d bytes available, header needs at least %d",
			ErrIncorrectFileSize, available, chunkHeaderVersionSizes[VersionOriginal])
	}

	c := &headerCursor{buf: data, off: magicSize}
	h := NewChunkHeader()

	h.Version = ChunkVersion(c.u32())
	expectedSize, ok := HeaderSizeForVersion(h.Version)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptHeader, uint32(h.Version))
	}
	h.HeaderSize = c.u32()
	if h.HeaderSize != expectedSize {
		return nil, fmt.Errorf("%w: header size %d does not match version %s (%d)",
			ErrCorruptHeader, h.HeaderSize, h.Version, expectedSize)
	}

	h.DataSizeCompressed = c.u32()
	c.bytes(h.ID[:])
	h.RollingHash = c.u64()
	h.StorageFlags = StorageFlags(c.u8())
	expectedConsumed := chunkHeaderVersionSizes[VersionOriginal]

	// v2 开始有 SHA 和哈希类型；更老的版本只有 rolling hash
	if h.Version >= VersionStoresShaAndHashType {
		if available < chunkHeaderVersionSizes[VersionStoresShaAndHashType] {
			return nil, fmt.Errorf("%w: truncated sha fields", ErrIncorrectFileSize)
		}
		c.bytes(h.SHAHash[:])
		h.HashFlags = HashFlags(c.u8())
		expectedConsumed = chunkHeaderVersionSizes[VersionStoresShaAndHashType]
	}

	// v3 开始记录未压缩大小
	if h.Version >= VersionStoresDataSizeUncompressed {
		if available < chunkHeaderVersionSizes[VersionStoresDataSizeUncompressed] {
			return nil, fmt.Errorf("%w: truncated uncompressed size", ErrIncorrectFileSize)
		}
		h.DataSizeUncompressed = c.u32()
		expectedConsumed = chunkHeaderVersionSizes[VersionStoresDataSizeUncompressed]
	} else if !h.StorageFlags.Has(StorageCompressed) {
		h.DataSizeUncompressed = h.DataSizeCompressed
	}

	// 字段宽度被意外改动时这里会报警
	if uint32(c.off) != expectedConsumed {
		return nil, fmt.Errorf("%w: consumed %d bytes, version %s expects %d",
			ErrHeaderSerialization, c.off, h.Version, expectedConsumed)
	}
	return h, nil
}

// ReadHeader 从流中读取 header，available 是流中从当前位置起剩余的字节数。
// 返回时 r 恰好停在 header 起点之后 HeaderSize 字节处，也就是 payload 的起点。
func ReadHeader(r io.Reader, available int64) (*ChunkHeader, error) {
	if available < magicSize {
		return nil, fmt.Errorf("%w: %d bytes available, magic needs %d", ErrIncorrectFileSize, available, magicSize)
	}
	prefix := make([]byte, headerPrefixSize)
	if _, err := io.ReadFull(r, prefix[:magicSize]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncorrectFileSize, err)
	}
	if magic := binary.LittleEndian.Uint32(prefix); magic != ChunkHeaderMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08X", ErrCorruptHeader, magic)
	}

	if available < int64(chunkHeaderVersionSizes[VersionOriginal]) {
		return nil, fmt.Errorf("%w: %d bytes available, header needs at least %d",
			ErrIncorrectFileSize, available, chunkHeaderVersionSizes[VersionOriginal])
	}
	if _, err := io.ReadFull(r, prefix[magicSize:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncorrectFileSize, err)
	}

	headerSize := binary.LittleEndian.Uint32(prefix[8:])
	if headerSize < chunkHeaderVersionSizes[VersionOriginal] || headerSize > chunkHeaderVersionSizes[LatestVersion] {
		return nil, fmt.Errorf("%w: header size %d out of range", ErrCorruptHeader, headerSize)
	}
	if int64(headerSize) > available {
		return nil, fmt.Errorf("%w: header size %d exceeds %d available bytes",
			ErrIncorrectFileSize, headerSize, available)
	}

	buf := make([]byte, headerSize)
	copy(buf, prefix)
	if _, err := io.ReadFull(r, buf[headerPrefixSize:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncorrectFileSize, err)
	}
	return DecodeHeader(buf)
}

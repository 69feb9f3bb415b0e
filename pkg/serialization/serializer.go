package serialization

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"chunkvault/pkg/compression"
	"chunkvault/pkg/core"
	"chunkvault/pkg/logger"
	"chunkvault/pkg/storage"
	"chunkvault/pkg/types"
)

var log = logger.GetLogger("cv_serialization")

// Serializer 在内存中的 ChunkDataAccess 和外部介质 (文件 / 内存 / 流) 之间转换 chunk
type Serializer struct {
	fs storage.FileSystem
	// compressor 只用于保存，nil 表示不压缩
	compressor compression.Compressor
	// decompressor 用于加载；header 只记录是否压缩，所以读写两端必须用同一种编码
	decompressor compression.Compressor
}

// New 创建 Serializer；compressor 为 nil 时保存的 chunk 一律不压缩，
// 加载时仍按默认的 zlib 解压
func New(fs storage.FileSystem, compressor compression.Compressor) *Serializer {
	s := &Serializer{fs: fs, compressor: compressor, decompressor: compressor}
	if s.decompressor == nil {
		s.decompressor = compression.NewZlib()
	}
	return s
}

func (s *Serializer) FileSystem() storage.FileSystem { return s.fs }

// LoadFromFile 从 FileSystem 读取一个 chunk 文件
func (s *Serializer) LoadFromFile(ctx context.Context, path string) (*core.ChunkDataAccess, LoadResult) {
	if ctx.Err() != nil {
		return nil, LoadAborted
	}
	if s.fs == nil {
		return nil, LoadBadArchive
	}

	size, err := s.fs.GetFileSize(ctx, path)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Debugf("stat %s: %v", path, err)
		}
		return nil, LoadOpenFileFail
	}
	r, err := s.fs.CreateReader(ctx, path)
	if err != nil {
		log.Debugf("open %s: %v", path, err)
		return nil, LoadOpenFileFail
	}
	defer r.Close()

	return s.LoadFromReader(ctx, r, size)
}

// LoadFromMemory 从一段完整的 chunk 字节中加载
func (s *Serializer) LoadFromMemory(data []byte) (*core.ChunkDataAccess, LoadResult) {
	return s.LoadFromReader(context.Background(), bytes.NewReader(data), int64(len(data)))
}

// LoadFromReader 从流中加载，available 是流中剩余的字节数
// 返回 LoadSuccess 时 access 的锁已经释放，payload 是未压缩的数据
func (s *Serializer) LoadFromReader(ctx context.Context, r io.Reader, available int64) (*core.ChunkDataAccess, LoadResult) {
	if r == nil {
		return nil, LoadBadArchive
	}
	if ctx.Err() != nil {
		return nil, LoadAborted
	}

	// 1. 解析 header，任何解析失败都算 header 损坏
	header, err := core.ReadHeader(r, available)
	if err != nil {
		log.Debugf("decode chunk header: %v", err)
		return nil, LoadCorruptHeader
	}

	// 2. 基本校验
	if !header.ID.IsValid() {
		return nil, LoadCorruptHeader
	}
	if header.HashFlags == core.HashNone {
		return nil, LoadMissingHashInfo
	}

	// 3. 文件里必须装得下声明的 payload
	if int64(header.HeaderSize)+int64(header.DataSizeCompressed) > available {
		return nil, LoadIncorrectFileSize
	}

	// 4. 不支持加密
	if header.StorageFlags.Has(core.StorageEncrypted) {
		return nil, LoadUnsupportedStorage
	}
	if header.StorageFlags.Has(core.StorageCompressed) && header.DataSizeUncompressed > core.MaxChunkDataSize {
		log.Debugf("chunk %s declares %d uncompressed bytes, limit is %d",
			header.ID, header.DataSizeUncompressed, core.MaxChunkDataSize)
		return nil, LoadCorruptHeader
	}

	// 5. 读取磁盘上的 payload
	access := core.NewChunkDataAccess(header.DataSizeCompressed)
	h, data := access.AcquireData()
	*h = *header
	if _, err := io.ReadFull(r, data); err != nil {
		access.ReleaseData()
		log.Debugf("read chunk %s payload: %v", header.ID, err)
		return nil, LoadSerializationError
	}
	access.ReleaseData()

	if ctx.Err() != nil {
		return nil, LoadAborted
	}

	// 6. 解压到一个新的 access，成功后完全替换旧的
	if header.StorageFlags.Has(core.StorageCompressed) {
		access = s.decompress(access)
		if access == nil {
			return nil, LoadDecompressFailure
		}
	}

	// 7-8. 对未压缩数据做哈希校验
	if result := verify(access); result != LoadSuccess {
		return nil, result
	}
	return access, LoadSuccess
}

func (s *Serializer) decompress(compressed *core.ChunkDataAccess) *core.ChunkDataAccess {
	h, src := compressed.AcquireData()
	defer compressed.ReleaseData()

	out := core.NewChunkDataAccess(h.DataSizeUncompressed)
	oh, dst := out.AcquireData()
	defer out.ReleaseData()

	if err := s.decompressor.Decompress(dst, src); err != nil {
		log.Debugf("decompress chunk %s with %s: %v", h.ID, s.decompressor.TypeString(), err)
		return nil
	}
	*oh = *h
	oh.StorageFlags &^= core.StorageCompressed
	oh.DataSizeCompressed = h.DataSizeUncompressed
	return out
}

func verify(access *core.ChunkDataAccess) LoadResult {
	h, data := access.AcquireData()
	defer access.ReleaseData()

	if h.HashFlags.Has(core.HashRollingPoly64) {
		if h.DataSizeCompressed != h.DataSizeUncompressed {
			return LoadHashCheckFailed
		}
		if core.RollingPoly64(data) != h.RollingHash {
			return LoadHashCheckFailed
		}
	}
	if h.HashFlags.Has(core.HashSha1) {
		if core.Sha1(data) != h.SHAHash {
			return LoadHashCheckFailed
		}
	}
	return LoadSuccess
}

// SaveToFile 把 chunk 写成文件；目录需要调用方提前创建
func (s *Serializer) SaveToFile(ctx context.Context, path string, access *core.ChunkDataAccess) SaveResult {
	if access == nil || s.fs == nil {
		return SaveBadArchive
	}
	encoded, result := s.SaveToMemory(access)
	if result != SaveSuccess {
		return result
	}

	w, err := s.fs.CreateWriter(ctx, path)
	if err != nil {
		log.Debugf("create %s: %v", path, err)
		return SaveFileCreateFail
	}
	if _, err := w.Write(encoded); err != nil {
		w.Close()
		log.Debugf("write %s: %v", path, err)
		return SaveSerializationError
	}
	if err := w.Close(); err != nil {
		log.Debugf("commit %s: %v", path, err)
		return SaveSerializationError
	}
	return SaveSuccess
}

// SaveToWriter 把 header 和 payload 依次写入 w
func (s *Serializer) SaveToWriter(w io.Writer, access *core.ChunkDataAccess) SaveResult {
	if w == nil {
		return SaveBadArchive
	}
	encoded, result := s.SaveToMemory(access)
	if result != SaveSuccess {
		return result
	}
	if _, err := w.Write(encoded); err != nil {
		return SaveSerializationError
	}
	return SaveSuccess
}

// SaveToMemory 返回序列化后的完整 chunk
func (s *Serializer) SaveToMemory(access *core.ChunkDataAccess) ([]byte, SaveResult) {
	if access == nil {
		return nil, SaveBadArchive
	}

	// 1. 加锁读取 header 和未压缩数据，任何路径返回都会解锁
	in, data := access.AcquireData()
	defer access.ReleaseData()

	// 2. 尝试压缩到一个和原数据等长的 scratch buffer 里
	// 放不下 (或压缩器报错) 就保留原数据
	payload := data
	compressed := false
	if s.compressor != nil && len(data) > 0 {
		scratch := make([]byte, len(data))
		if n, err := s.compressor.Compress(scratch, data); err == nil {
			payload = scratch[:n]
			compressed = true
		} else if !errors.Is(err, compression.ErrNoSpace) {
			log.Debugf("compress chunk %s: %v, storing uncompressed", in.ID, err)
		}
	}

	// 3. 输出 header 永远使用最新版本，至少带上 rolling hash
	out := *in
	out.StorageFlags = in.StorageFlags &^ (core.StorageCompressed | core.StorageEncrypted)
	if compressed {
		out.StorageFlags |= core.StorageCompressed
	}
	out.DataSizeCompressed = uint32(len(payload))
	out.DataSizeUncompressed = uint32(len(data))
	if !out.HashFlags.Has(core.HashRollingPoly64) {
		out.HashFlags |= core.HashRollingPoly64
		out.RollingHash = core.RollingPoly64(data)
	}

	// 4. header + payload
	header := core.EncodeHeader(&out)
	buf := make([]byte, 0, len(header)+len(payload))
	buf = append(buf, header...)
	buf = append(buf, payload...)
	return buf, SaveSuccess
}

// InjectShaToChunkData 给一个已经序列化的 chunk 补上 SHA1
// 老版本 header 放不下 SHA 字段，需要在头部扩出 size(Latest) - headerSize 个字节，
// payload 本身原样保留。返回值可能和 data 不是同一个底层数组。
func InjectShaToChunkData(data []byte, sha types.SHAHash) ([]byte, error) {
	header, err := core.DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if int64(header.HeaderSize)+int64(header.DataSizeCompressed) > int64(len(data)) {
		return nil, fmt.Errorf("%w: payload truncated", core.ErrIncorrectFileSize)
	}

	header.HashFlags |= core.HashSha1
	header.SHAHash = sha

	oldSize := int(header.HeaderSize)
	latestSize, _ := core.HeaderSizeForVersion(core.LatestVersion)
	if delta := int(latestSize) - oldSize; delta > 0 {
		data = append(data, make([]byte, delta)...)
		copy(data[int(latestSize):], data[oldSize:len(data)-delta])
	}

	encoded := core.EncodeHeader(header)
	copy(data, encoded)
	return data, nil
}

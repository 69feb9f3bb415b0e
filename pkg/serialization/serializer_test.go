package serialization

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"chunkvault/pkg/compression"
	"chunkvault/pkg/core"
	"chunkvault/pkg/storage/memory"
	"chunkvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAccess 构造一个未压缩的 chunk，哈希按 flags 计算
func newAccess(payload []byte, flags core.HashFlags) *core.ChunkDataAccess {
	h := *core.NewChunkHeader()
	h.ID = types.ChunkIDFromContent(core.Sha1(payload))
	h.HashFlags = flags
	if flags.Has(core.HashRollingPoly64) {
		h.RollingHash = core.RollingPoly64(payload)
	}
	if flags.Has(core.HashSha1) {
		h.SHAHash = core.Sha1(payload)
	}
	return core.NewChunkDataAccessFrom(h, payload)
}

func compressiblePayload() []byte {
	return bytes.Repeat([]byte("chunkvault payload "), 200)
}

func TestRoundTrip_AllHashFlags(t *testing.T) {
	payloads := map[string][]byte{
		"compressible": compressiblePayload(),
		"tiny":         []byte("x"),
		"zeros":        make([]byte, 64),
	}
	flagSets := []core.HashFlags{
		core.HashRollingPoly64,
		core.HashSha1,
		core.HashRollingPoly64 | core.HashSha1,
	}
	codecs := []string{"none", "zlib", "snappy", "zstd"}

	for _, codec := range codecs {
		c, err := compression.GetCompressorViaString(codec)
		require.NoError(t, err)
		s := New(memory.New(), c)

		for name, payload := range payloads {
			for _, flags := range flagSets {
				t.Run(codec+"/"+name+"/"+flags.String(), func(t *testing.T) {
					encoded, result := s.SaveToMemory(newAccess(payload, flags))
					require.Equal(t, SaveSuccess, result)

					loaded, lr := s.LoadFromMemory(encoded)
					require.Equal(t, LoadSuccess, lr)

					h := loaded.Header()
					assert.Equal(t, payload, loaded.Payload())
					assert.Equal(t, uint32(len(payload)), h.DataSizeUncompressed)
					assert.Equal(t, core.LatestVersion, h.Version)
					assert.False(t, h.StorageFlags.Has(core.StorageCompressed), "加载后的数据总是未压缩的")
					// 保存时至少会带上 rolling hash
					assert.True(t, h.HashFlags.Has(core.HashRollingPoly64))
					assert.Equal(t, flags|core.HashRollingPoly64, h.HashFlags)
				})
			}
		}
	}
}

func TestSave_CompressionPolicy(t *testing.T) {
	s := New(memory.New(), compression.NewZlib())

	// 可压缩数据会被压缩
	payload := compressiblePayload()
	encoded, result := s.SaveToMemory(newAccess(payload, core.HashRollingPoly64))
	require.Equal(t, SaveSuccess, result)
	h, err := core.DecodeHeader(encoded)
	require.NoError(t, err)
	assert.True(t, h.StorageFlags.Has(core.StorageCompressed))
	assert.Less(t, h.DataSizeCompressed, h.DataSizeUncompressed)
	assert.Len(t, encoded, int(h.HeaderSize+h.DataSizeCompressed))

	// 压缩放不下就原样保存
	encoded, result = s.SaveToMemory(newAccess([]byte("abc"), core.HashRollingPoly64))
	require.Equal(t, SaveSuccess, result)
	h, err = core.DecodeHeader(encoded)
	require.NoError(t, err)
	assert.False(t, h.StorageFlags.Has(core.StorageCompressed))
	assert.Equal(t, uint32(3), h.DataSizeCompressed)
	assert.Equal(t, []byte("abc"), encoded[h.HeaderSize:])
}

func TestSave_ForcesRollingHash(t *testing.T) {
	s := New(memory.New(), nil)
	payload := []byte("no hash given")

	encoded, result := s.SaveToMemory(newAccess(payload, core.HashNone))
	require.Equal(t, SaveSuccess, result)

	h, err := core.DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, core.HashRollingPoly64, h.HashFlags)
	assert.Equal(t, core.RollingPoly64(payload), h.RollingHash)

	_, lr := s.LoadFromMemory(encoded)
	assert.Equal(t, LoadSuccess, lr)
}

func TestLoad_HashEnforcement(t *testing.T) {
	s := New(memory.New(), nil)
	payload := compressiblePayload()

	for _, flags := range []core.HashFlags{core.HashRollingPoly64, core.HashSha1 | core.HashRollingPoly64} {
		encoded, _ := s.SaveToMemory(newAccess(payload, flags))
		for _, off := range []int{0, len(payload) / 2, len(payload) - 1} {
			flipped := bytes.Clone(encoded)
			flipped[66+off] ^= 0x01
			access, lr := s.LoadFromMemory(flipped)
			assert.Equal(t, LoadHashCheckFailed, lr, "flags=%s off=%d", flags, off)
			assert.Nil(t, access)
		}
	}
}

func TestLoad_Sha1Only_Mismatch(t *testing.T) {
	s := New(memory.New(), nil)
	payload := []byte("sha only")

	// 手工构造只带 SHA 的 header
	h := *core.NewChunkHeader()
	h.ID = types.NewChunkID()
	h.HashFlags = core.HashSha1
	h.SHAHash = core.Sha1([]byte("something else"))
	h.DataSizeCompressed = uint32(len(payload))
	h.DataSizeUncompressed = uint32(len(payload))
	encoded := append(core.EncodeHeader(&h), payload...)

	_, lr := s.LoadFromMemory(encoded)
	assert.Equal(t, LoadHashCheckFailed, lr)
}

// rawChunk 直接拼 header + payload，不经过 SaveToMemory 的修正
func rawChunk(h core.ChunkHeader, payload []byte) []byte {
	h.DataSizeCompressed = uint32(len(payload))
	if !h.StorageFlags.Has(core.StorageCompressed) {
		h.DataSizeUncompressed = uint32(len(payload))
	}
	return append(core.EncodeHeader(&h), payload...)
}

func TestLoad_Errors(t *testing.T) {
	s := New(memory.New(), nil)
	payload := []byte("hello chunk")
	valid, result := s.SaveToMemory(newAccess(payload, core.HashRollingPoly64|core.HashSha1))
	require.Equal(t, SaveSuccess, result)

	base := *core.NewChunkHeader()
	base.ID = types.NewChunkID()
	base.RollingHash = core.RollingPoly64(payload)

	t.Run("zeroed magic", func(t *testing.T) {
		bad := bytes.Clone(valid)
		copy(bad, []byte{0, 0, 0, 0})
		access, lr := s.LoadFromMemory(bad)
		assert.Equal(t, LoadCorruptHeader, lr)
		assert.Nil(t, access)
	})

	t.Run("truncated payload", func(t *testing.T) {
		access, lr := s.LoadFromMemory(valid[:len(valid)-1])
		assert.Equal(t, LoadIncorrectFileSize, lr)
		assert.Nil(t, access)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, lr := s.LoadFromMemory(valid[:20])
		assert.Equal(t, LoadCorruptHeader, lr)
	})

	t.Run("nil id", func(t *testing.T) {
		h := base
		h.ID = types.ChunkID{}
		_, lr := s.LoadFromMemory(rawChunk(h, payload))
		assert.Equal(t, LoadCorruptHeader, lr)
	})

	t.Run("missing hash info", func(t *testing.T) {
		h := base
		h.HashFlags = core.HashNone
		_, lr := s.LoadFromMemory(rawChunk(h, payload))
		assert.Equal(t, LoadMissingHashInfo, lr)
	})

	t.Run("encrypted", func(t *testing.T) {
		h := base
		h.StorageFlags = core.StorageEncrypted
		_, lr := s.LoadFromMemory(rawChunk(h, payload))
		assert.Equal(t, LoadUnsupportedStorage, lr)
	})

	t.Run("bad compressed data", func(t *testing.T) {
		h := base
		h.StorageFlags = core.StorageCompressed
		h.DataSizeUncompressed = 1000
		_, lr := s.LoadFromMemory(rawChunk(h, []byte("definitely not zlib")))
		assert.Equal(t, LoadDecompressFailure, lr)
	})

	t.Run("oversized uncompressed size", func(t *testing.T) {
		h := base
		h.StorageFlags = core.StorageCompressed
		h.DataSizeUncompressed = 0xFFFFFFFF
		// 拒绝发生在按声明大小分配内存之前
		access, lr := s.LoadFromMemory(rawChunk(h, []byte("tiny")))
		assert.Equal(t, LoadCorruptHeader, lr)
		assert.Nil(t, access)
	})

	t.Run("size mismatch with rolling hash", func(t *testing.T) {
		h := base
		encoded := rawChunk(h, payload)
		// 未压缩却声明了不同的未压缩大小
		binary.LittleEndian.PutUint32(encoded[62:], uint32(len(payload)+1))
		_, lr := s.LoadFromMemory(encoded)
		assert.Equal(t, LoadHashCheckFailed, lr)
	})

	t.Run("nil reader", func(t *testing.T) {
		_, lr := s.LoadFromReader(context.Background(), nil, 100)
		assert.Equal(t, LoadBadArchive, lr)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, lr := s.LoadFromReader(ctx, bytes.NewReader(valid), int64(len(valid)))
		assert.Equal(t, LoadAborted, lr)
	})

	t.Run("short stream", func(t *testing.T) {
		// 声明的可用长度比实际流长，payload 读不全
		_, lr := s.LoadFromReader(context.Background(), bytes.NewReader(valid[:len(valid)-3]), int64(len(valid)))
		assert.Equal(t, LoadSerializationError, lr)
	})
}

func TestLoad_CodecMismatch(t *testing.T) {
	zs, err := compression.NewZstd()
	require.NoError(t, err)
	writer := New(memory.New(), zs)
	reader := New(memory.New(), compression.NewZlib())

	encoded, result := writer.SaveToMemory(newAccess(compressiblePayload(), core.HashRollingPoly64))
	require.Equal(t, SaveSuccess, result)

	_, lr := reader.LoadFromMemory(encoded)
	assert.Equal(t, LoadDecompressFailure, lr)
}

func TestLoad_LegacyVersions(t *testing.T) {
	s := New(memory.New(), nil)
	payload := []byte("legacy chunk payload")

	h := *core.NewChunkHeader()
	h.ID = types.NewChunkID()
	h.RollingHash = core.RollingPoly64(payload)
	h.DataSizeCompressed = uint32(len(payload))

	// Original 版本 header (41 字节)，只有 rolling hash
	legacy := append(encodeOriginal(h), payload...)

	loaded, lr := s.LoadFromMemory(legacy)
	require.Equal(t, LoadSuccess, lr)
	assert.Equal(t, payload, loaded.Payload())
	assert.Equal(t, core.VersionOriginal, loaded.Header().Version)
	assert.Equal(t, core.HashRollingPoly64, loaded.Header().HashFlags)
}

// encodeOriginal 手工按 Original 布局写 header
func encodeOriginal(h core.ChunkHeader) []byte {
	le := binary.LittleEndian
	out := make([]byte, 0, 41)
	out = le.AppendUint32(out, core.ChunkHeaderMagic)
	out = le.AppendUint32(out, uint32(core.VersionOriginal))
	out = le.AppendUint32(out, 41)
	out = le.AppendUint32(out, h.DataSizeCompressed)
	out = append(out, h.ID[:]...)
	out = le.AppendUint64(out, h.RollingHash)
	out = append(out, byte(h.StorageFlags))
	return out
}

func TestInjectShaToChunkData(t *testing.T) {
	s := New(memory.New(), nil)
	payload := []byte("inject me")

	t.Run("legacy header grows", func(t *testing.T) {
		h := *core.NewChunkHeader()
		h.ID = types.NewChunkID()
		h.RollingHash = core.RollingPoly64(payload)
		h.DataSizeCompressed = uint32(len(payload))
		legacy := append(encodeOriginal(h), payload...)

		upgraded, err := InjectShaToChunkData(legacy, core.Sha1(payload))
		require.NoError(t, err)
		assert.Len(t, upgraded, 66+len(payload))
		assert.Equal(t, payload, upgraded[66:], "payload 字节不能被改动")

		uh, err := core.DecodeHeader(upgraded)
		require.NoError(t, err)
		assert.Equal(t, core.LatestVersion, uh.Version)
		assert.Equal(t, core.HashRollingPoly64|core.HashSha1, uh.HashFlags)
		assert.Equal(t, core.Sha1(payload), uh.SHAHash)
		assert.Equal(t, h.ID, uh.ID)

		loaded, lr := s.LoadFromMemory(upgraded)
		require.Equal(t, LoadSuccess, lr)
		assert.Equal(t, payload, loaded.Payload())
	})

	t.Run("latest header in place", func(t *testing.T) {
		encoded, result := s.SaveToMemory(newAccess(payload, core.HashRollingPoly64))
		require.Equal(t, SaveSuccess, result)

		upgraded, err := InjectShaToChunkData(encoded, core.Sha1(payload))
		require.NoError(t, err)
		assert.Len(t, upgraded, len(encoded))

		loaded, lr := s.LoadFromMemory(upgraded)
		require.Equal(t, LoadSuccess, lr)
		assert.True(t, loaded.Header().HashFlags.Has(core.HashSha1))
	})

	t.Run("wrong sha is caught on load", func(t *testing.T) {
		encoded, _ := s.SaveToMemory(newAccess(payload, core.HashRollingPoly64))
		upgraded, err := InjectShaToChunkData(encoded, core.Sha1([]byte("other")))
		require.NoError(t, err)
		_, lr := s.LoadFromMemory(upgraded)
		assert.Equal(t, LoadHashCheckFailed, lr)
	})

	t.Run("corrupt input", func(t *testing.T) {
		_, err := InjectShaToChunkData([]byte("short"), types.SHAHash{})
		assert.ErrorIs(t, err, core.ErrIncorrectFileSize)
	})
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := memory.New()
	s := New(fs, compression.NewZlib())
	payload := compressiblePayload()

	assert.Equal(t, SaveSuccess, s.SaveToFile(ctx, "Chunks/00/a.chunk", newAccess(payload, core.HashRollingPoly64)))

	loaded, lr := s.LoadFromFile(ctx, "Chunks/00/a.chunk")
	require.Equal(t, LoadSuccess, lr)
	assert.Equal(t, payload, loaded.Payload())

	_, lr = s.LoadFromFile(ctx, "Chunks/00/missing.chunk")
	assert.Equal(t, LoadOpenFileFail, lr)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, lr = s.LoadFromFile(cancelled, "Chunks/00/a.chunk")
	assert.Equal(t, LoadAborted, lr)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

type failOnCloseFS struct{ *memory.FileSystem }

type failCloser struct{ io.Writer }

func (failCloser) Close() error { return errors.New("commit failed") }

func (f failOnCloseFS) CreateWriter(ctx context.Context, path string) (io.WriteCloser, error) {
	return failCloser{io.Discard}, nil
}

func TestSave_Errors(t *testing.T) {
	ctx := context.Background()
	access := newAccess([]byte("data"), core.HashRollingPoly64)

	fs := memory.New()
	fs.FailCreate = func(string) error { return errors.New("read-only") }
	s := New(fs, nil)
	assert.Equal(t, SaveFileCreateFail, s.SaveToFile(ctx, "x.chunk", access))

	s = New(failOnCloseFS{memory.New()}, nil)
	assert.Equal(t, SaveSerializationError, s.SaveToFile(ctx, "x.chunk", access))

	assert.Equal(t, SaveSerializationError, s.SaveToWriter(failingWriter{}, access))
	assert.Equal(t, SaveBadArchive, s.SaveToWriter(nil, access))
	assert.Equal(t, SaveBadArchive, s.SaveToFile(ctx, "x.chunk", nil))

	var buf bytes.Buffer
	assert.Equal(t, SaveSuccess, s.SaveToWriter(&buf, access))
	_, lr := s.LoadFromMemory(buf.Bytes())
	assert.Equal(t, LoadSuccess, lr)
}

func TestResultStrings(t *testing.T) {
	assert.Equal(t, "HashCheckFailed", LoadHashCheckFailed.String())
	assert.Equal(t, "Aborted", LoadAborted.String())
	assert.Equal(t, "FileCreateFail", SaveFileCreateFail.String())
	assert.Equal(t, "LoadResult(99)", LoadResult(99).String())
}

// pkg/types/common.go
package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ChunkNamespace 是派生确定性 ChunkID (UUIDv5) 的命名空间
var ChunkNamespace = uuid.MustParse("6c1b6c54-9f5e-4d53-a8d2-0f3a1c7be1a4")

// ChunkID 代表 chunk 的 128 位槽位标识
// 注意：它是“身份”而不一定是内容哈希，同一个 ID 可以配不同的 RollingHash
type ChunkID [16]byte

// NewChunkID 生成一个随机 ID (UUIDv4)
func NewChunkID() ChunkID { return ChunkID(uuid.New()) }

// ChunkIDFromContent 根据内容的 SHA1 派生确定性 ID
// 相同内容永远得到相同 ID，这样按 (ID, Hash) 命名的文件天然去重
func ChunkIDFromContent(sha SHAHash) ChunkID {
	return ChunkID(uuid.NewSHA1(ChunkNamespace, sha[:]))
}

// IsValid 全零 ID 视为无效
func (id ChunkID) IsValid() bool { return id != ChunkID{} }

// String 输出 32 位大写 Hex，用于文件名
func (id ChunkID) String() string { return strings.ToUpper(hex.EncodeToString(id[:])) }

func (id ChunkID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ChunkID) UnmarshalText(text []byte) error {
	parsed, err := ParseChunkID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseChunkID 接受 32 位 Hex 或标准 UUID 格式
func ParseChunkID(s string) (ChunkID, error) {
	var id ChunkID
	if len(s) == 2*len(id) {
		if _, err := hex.Decode(id[:], []byte(s)); err != nil {
			return ChunkID{}, fmt.Errorf("invalid chunk id %q: %w", s, err)
		}
		return id, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ChunkID{}, fmt.Errorf("invalid chunk id %q: %w", s, err)
	}
	return ChunkID(u), nil
}

// SHAHash 是 160 位 SHA1 摘要
type SHAHash [20]byte

func (h SHAHash) String() string { return hex.EncodeToString(h[:]) }
func (h SHAHash) IsZero() bool   { return h == SHAHash{} }

func (h SHAHash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *SHAHash) UnmarshalText(text []byte) error {
	parsed, err := ParseSHAHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func ParseSHAHash(s string) (SHAHash, error) {
	var h SHAHash
	if len(s) != 2*len(h) {
		return SHAHash{}, fmt.Errorf("invalid sha1 %q: want %d hex chars", s, 2*len(h))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return SHAHash{}, fmt.Errorf("invalid sha1 %q: %w", s, err)
	}
	return h, nil
}

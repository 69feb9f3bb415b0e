package core

import (
	"fmt"
	"hash/crc32"
	"path"
	"strings"

	"chunkvault/pkg/types"
)

// FeatureLevel 是构建产物的格式等级，按发布顺序递增
// 对 chunk 来说它只决定输出子目录，header 永远按 LatestVersion 写
type FeatureLevel int

const (
	FeatureOriginal FeatureLevel = iota
	FeatureCustomFields
	FeatureStartStoringVersion
	FeatureDataFileRenames
	FeatureStoresIfChunkOrFileData
	FeatureStoresDataGroupNumbers
	FeatureChunkCompressionSupport
	FeatureStoresPrerequisitesInfo
	FeatureStoresChunkFileSizes
	FeatureStoredAsCompressedUClass
	FeatureUnused0
	FeatureStoredAsBinaryData
	FeatureVariableSizeChunksWithoutWindowSizeChunkInfo
	FeatureVariableSizeChunks
	FeatureUsesRuntimeGeneratedBuildID
	FeatureUsesBuildTimeGeneratedBuildID

	featureLatestPlusOne
	FeatureLatest = featureLatestPlusOne - 1
)

var featureLevelNames = [featureLatestPlusOne]string{
	"Original",
	"CustomFields",
	"StartStoringVersion",
	"DataFileRenames",
	"StoresIfChunkOrFileData",
	"StoresDataGroupNumbers",
	"ChunkCompressionSupport",
	"StoresPrerequisitesInfo",
	"StoresChunkFileSizes",
	"StoredAsCompressedUClass",
	"UNUSED_0",
	"StoredAsBinaryData",
	"VariableSizeChunksWithoutWindowSizeChunkInfo",
	"VariableSizeChunks",
	"UsesRuntimeGeneratedBuildId",
	"UsesBuildTimeGeneratedBuildId",
}

func (l FeatureLevel) IsValid() bool {
	return l >= FeatureOriginal && l <= FeatureLatest
}

func (l FeatureLevel) String() string {
	if !l.IsValid() {
		return fmt.Sprintf("FeatureLevel(%d)", int(l))
	}
	return featureLevelNames[l]
}

// ParseFeatureLevel 不区分大小写；"latest" 指向最新等级
func ParseFeatureLevel(s string) (FeatureLevel, error) {
	if strings.EqualFold(s, "latest") {
		return FeatureLatest, nil
	}
	for i, name := range featureLevelNames {
		if strings.EqualFold(s, name) {
			return FeatureLevel(i), nil
		}
	}
	return FeatureOriginal, fmt.Errorf("unknown feature level %q", s)
}

func (l FeatureLevel) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("invalid feature level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *FeatureLevel) UnmarshalText(text []byte) error {
	v, err := ParseFeatureLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ChunkSubdir 返回该等级下 chunk 文件所在的子目录
func (l FeatureLevel) ChunkSubdir() string {
	switch {
	case l < FeatureDataFileRenames:
		return "Chunks"
	case l < FeatureChunkCompressionSupport:
		return "ChunksV2"
	case l < FeatureVariableSizeChunks:
		return "ChunksV3"
	default:
		return "ChunksV4"
	}
}

// ChunkHeaderVersion 是保存时写出的 header 版本
func (l FeatureLevel) ChunkHeaderVersion() ChunkVersion {
	return LatestVersion
}

// ChunkFilename 由 id 和 rolling hash 推出 chunk 的相对路径:
// root/<subdir>/<crc32(id)%100>/<HASH>_<ID>.chunk
// 同样内容的 chunk 一定落在同一个文件名上，文件存在即视为已持久化。
func ChunkFilename(level FeatureLevel, root string, id types.ChunkID, rollingHash uint64) string {
	group := crc32.ChecksumIEEE(id[:]) % 100
	return path.Join(
		root,
		level.ChunkSubdir(),
		fmt.Sprintf("%02d", group),
		fmt.Sprintf("%016X_%s.chunk", rollingHash, id.String()),
	)
}

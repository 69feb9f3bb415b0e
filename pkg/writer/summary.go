package writer

import (
	"bytes"
	"sort"

	"chunkvault/pkg/core"
	"chunkvault/pkg/types"
)

// ChunkRecord 是 worker 每保存 (或命中去重) 一个 chunk 发布的一条结果
type ChunkRecord struct {
	ID          types.ChunkID `json:"id"`
	Filename    string        `json:"filename"`
	Size        int64         `json:"size"`
	RollingHash uint64        `json:"rolling_hash"`
	SHA         types.SHAHash `json:"sha"`
	Deduped     bool          `json:"deduped"`
}

// Summary 是 OnProcessComplete 返回的结果
type Summary struct {
	ChunkOutputSize map[types.ChunkID]int64
	ChunkOutputHash map[types.ChunkID]uint64
	ChunkOutputSha  map[types.ChunkID]types.SHAHash
	FeatureLevel    core.FeatureLevel
	HeaderVersion   core.ChunkVersion

	records []ChunkRecord
}

func newSummary(level core.FeatureLevel, records []ChunkRecord) Summary {
	s := Summary{
		ChunkOutputSize: make(map[types.ChunkID]int64, len(records)),
		ChunkOutputHash: make(map[types.ChunkID]uint64, len(records)),
		ChunkOutputSha:  make(map[types.ChunkID]types.SHAHash, len(records)),
		FeatureLevel:    level,
		HeaderVersion:   level.ChunkHeaderVersion(),
		records:         records,
	}
	for _, r := range records {
		s.ChunkOutputSize[r.ID] = r.Size
		s.ChunkOutputHash[r.ID] = r.RollingHash
		s.ChunkOutputSha[r.ID] = r.SHA
	}
	return s
}

// Records 按发布顺序返回所有结果，同一个 chunk 被添加多次就会出现多次
func (s Summary) Records() []ChunkRecord {
	return append([]ChunkRecord(nil), s.records...)
}

// UniqueRecords 每个 chunk 只保留一条，按 ID 排序
func (s Summary) UniqueRecords() []ChunkRecord {
	seen := make(map[types.ChunkID]struct{}, len(s.records))
	out := make([]ChunkRecord, 0, len(s.ChunkOutputSize))
	for _, r := range s.records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// TotalOutputSize 是所有不同 chunk 的输出大小之和
func (s Summary) TotalOutputSize() int64 {
	var total int64
	for _, size := range s.ChunkOutputSize {
		total += size
	}
	return total
}

package sqldb

import (
	"time"

	"gorm.io/datatypes"
)

// ChunkModel 是 chunk 位置的投影，ID 相同的 chunk 只保留最后一次写入的位置
// 64 位的 rolling hash 用 hex 存，避免 postgres bigint 的符号问题
type ChunkModel struct {
	ID           string `gorm:"primaryKey;type:char(32)"`
	Filename     string `gorm:"type:varchar(1024);not null"`
	Root         string `gorm:"index;type:varchar(512)"`
	Size         int64
	RollingHash  string `gorm:"type:char(16);not null"`
	SHA          string `gorm:"type:char(40)"`
	FeatureLevel int
	UpdatedAt    time.Time
}

func (ChunkModel) TableName() string {
	return "chunks"
}

// SessionModel 是一次写入会话，统计数字整体放在 JSON 里
type SessionModel struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	Root          string `gorm:"index;type:varchar(512)"`
	FeatureLevel  int
	HeaderVersion uint32
	Stats         datatypes.JSON
	CreatedAt     time.Time `gorm:"index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

// FileModel 记录 put 时的路径对应哪个 recipe
type FileModel struct {
	Path      string `gorm:"primaryKey;type:varchar(1024)"`
	RecipeID  string `gorm:"type:char(64);not null"`
	Size      int64
	UpdatedAt time.Time
}

func (FileModel) TableName() string {
	return "files"
}

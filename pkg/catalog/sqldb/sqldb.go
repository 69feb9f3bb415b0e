// Package sqldb 用 GORM 实现 catalog，支持 sqlite (单机) 和 postgres (共享)
package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chunkvault/pkg/catalog"
	"chunkvault/pkg/core"
	"chunkvault/pkg/types"
	"chunkvault/pkg/writer"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// chunk upsert 每批的行数，sqlite 对单条语句的变量个数有上限
const batchSize = 200

type Config struct {
	Driver string
	// sqlite 是文件路径，postgres 是 "host=... user=..." 形式的 DSN
	DSN string
}

// DB 封装 GORM 连接
type DB struct {
	conn *gorm.DB
}

var _ catalog.Catalog = (*DB)(nil)

// Open 建立连接、配置连接池并迁移表结构
func Open(ctx context.Context, cfg Config) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverPostgres {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite 只允许一个写者
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("catalog database ping failed: %w", err)
	}

	db := NewWithConn(conn)
	if err := db.AutoMigrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return db, nil
}

// NewWithConn 复用已有的 GORM 连接，调用方负责迁移
func NewWithConn(conn *gorm.DB) *DB {
	return &DB{conn: conn}
}

func (d *DB) AutoMigrate() error {
	return d.conn.AutoMigrate(&ChunkModel{}, &SessionModel{}, &FileModel{})
}

func (d *DB) Close() error {
	sqlDB, err := d.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *DB) RecordSummary(ctx context.Context, summary writer.Summary, root string) (*catalog.Session, error) {
	now := time.Now().UTC()
	session := catalog.NewSession(summary, root, now)

	statsJSON, err := json.Marshal(session.Stats)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session stats: %w", err)
	}

	entries := catalog.ChunkEntries(summary, root, now)
	models := make([]ChunkModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, toChunkModel(e))
	}

	sessionModel := SessionModel{
		Root:          root,
		FeatureLevel:  int(session.FeatureLevel),
		HeaderVersion: uint32(session.HeaderVersion),
		Stats:         datatypes.JSON(statsJSON),
		CreatedAt:     now,
	}

	err = d.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 同一个 ID 再次出现时覆盖成最新位置
		if len(models) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).CreateInBatches(&models, batchSize).Error
			if err != nil {
				return fmt.Errorf("failed to upsert chunks: %w", err)
			}
		}
		// 2. 会话本身只追加
		if err := tx.Create(&sessionModel).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	session.ID = sessionModel.ID
	return &session, nil
}

func (d *DB) GetChunk(ctx context.Context, id types.ChunkID) (*catalog.ChunkEntry, error) {
	var m ChunkModel
	err := d.conn.WithContext(ctx).
		Where("id = ?", id.String()).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, catalog.ErrChunkNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromChunkModel(m)
}

func (d *DB) ListSessions(ctx context.Context, limit int) ([]catalog.Session, error) {
	var models []SessionModel
	// id 自增，倒序就是最新在前
	q := d.conn.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	sessions := make([]catalog.Session, 0, len(models))
	for _, m := range models {
		s := catalog.Session{
			ID:            m.ID,
			Root:          m.Root,
			FeatureLevel:  core.FeatureLevel(m.FeatureLevel),
			HeaderVersion: core.ChunkVersion(m.HeaderVersion),
			CreatedAt:     m.CreatedAt,
		}
		if len(m.Stats) > 0 {
			if err := json.Unmarshal(m.Stats, &s.Stats); err != nil {
				return nil, fmt.Errorf("session %d: bad stats: %w", m.ID, err)
			}
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (d *DB) RecordFile(ctx context.Context, entry catalog.FileEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	m := FileModel{
		Path:      entry.Path,
		RecipeID:  entry.RecipeID,
		Size:      entry.Size,
		UpdatedAt: entry.UpdatedAt,
	}
	err := d.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			UpdateAll: true,
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to record file: %w", err)
	}
	return nil
}

func (d *DB) LookupFile(ctx context.Context, path string) (*catalog.FileEntry, error) {
	var m FileModel
	err := d.conn.WithContext(ctx).
		Where("path = ?", path).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, catalog.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &catalog.FileEntry{
		Path:      m.Path,
		RecipeID:  m.RecipeID,
		Size:      m.Size,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func toChunkModel(e catalog.ChunkEntry) ChunkModel {
	return ChunkModel{
		ID:           e.ID.String(),
		Filename:     e.Filename,
		Root:         e.Root,
		Size:         e.Size,
		RollingHash:  fmt.Sprintf("%016X", e.RollingHash),
		SHA:          e.SHA.String(),
		FeatureLevel: int(e.FeatureLevel),
		UpdatedAt:    e.UpdatedAt,
	}
}

func fromChunkModel(m ChunkModel) (*catalog.ChunkEntry, error) {
	id, err := types.ParseChunkID(m.ID)
	if err != nil {
		return nil, err
	}
	rolling, err := strconv.ParseUint(m.RollingHash, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: bad rolling hash %q: %w", m.ID, m.RollingHash, err)
	}
	sha, err := types.ParseSHAHash(m.SHA)
	if err != nil {
		return nil, err
	}
	return &catalog.ChunkEntry{
		ID:           id,
		Filename:     m.Filename,
		Root:         m.Root,
		Size:         m.Size,
		RollingHash:  rolling,
		SHA:          sha,
		FeatureLevel: core.FeatureLevel(m.FeatureLevel),
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

// Package bolt 用单个 bbolt 文件实现 catalog，适合没有数据库的单机部署
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"chunkvault/pkg/catalog"
	"chunkvault/pkg/types"
	"chunkvault/pkg/writer"

	"go.etcd.io/bbolt"
)

var (
	// chunksBucketName 以 chunk ID (hex) 为 key
	chunksBucketName = []byte("chunks")
	// sessionsBucketName 以大端序 session ID 为 key，遍历顺序即写入顺序
	sessionsBucketName = []byte("sessions")
	filesBucketName    = []byte("files")
)

type store struct {
	db *bbolt.DB
}

var _ catalog.Catalog = (*store)(nil)

func New(path string) (catalog.Catalog, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{chunksBucketName, sessionsBucketName, filesBucketName} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &store{db: db}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func sessionKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// RecordSummary implements catalog.Catalog.
func (s *store) RecordSummary(ctx context.Context, summary writer.Summary, root string) (*catalog.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	session := catalog.NewSession(summary, root, now)
	entries := catalog.ChunkEntries(summary, root, now)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(chunksBucketName)
		for _, e := range entries {
			value, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal chunk %s: %w", e.ID, err)
			}
			if err := chunks.Put([]byte(e.ID.String()), value); err != nil {
				return fmt.Errorf("write chunk %s: %w", e.ID, err)
			}
		}

		sessions := tx.Bucket(sessionsBucketName)
		id, err := sessions.NextSequence()
		if err != nil {
			return fmt.Errorf("next session id: %w", err)
		}
		session.ID = id
		value, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		return sessions.Put(sessionKey(id), value)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetChunk implements catalog.Catalog.
func (s *store) GetChunk(ctx context.Context, id types.ChunkID) (*catalog.ChunkEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entry catalog.ChunkEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(chunksBucketName).Get([]byte(id.String()))
		if value == nil {
			return catalog.ErrChunkNotFound
		}
		// value 只在事务内有效，这里直接解码出副本
		return json.Unmarshal(value, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListSessions implements catalog.Catalog.
func (s *store) ListSessions(ctx context.Context, limit int) ([]catalog.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sessions []catalog.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(sessionsBucketName).Cursor()
		// 倒序遍历：最新的在前
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(sessions) >= limit {
				break
			}
			var session catalog.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("unmarshal session %d: %w", binary.BigEndian.Uint64(k), err)
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	return sessions, err
}

// RecordFile implements catalog.Catalog.
func (s *store) RecordFile(ctx context.Context, entry catalog.FileEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal file entry: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(filesBucketName).Put([]byte(entry.Path), value)
	})
}

// LookupFile implements catalog.Catalog.
func (s *store) LookupFile(ctx context.Context, path string) (*catalog.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entry catalog.FileEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(filesBucketName).Get([]byte(path))
		if value == nil {
			return catalog.ErrFileNotFound
		}
		return json.Unmarshal(value, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

package core

import "sync"

// ChunkDataAccess 独占持有一个 chunk 的 header 和 payload
// 所有读写都必须在 AcquireData / ReleaseData 之间进行。
// 并发的 AcquireData 只会排队，不会复制出第二份数据。
type ChunkDataAccess struct {
	mu     sync.Mutex
	header ChunkHeader
	data   []byte
}

// NewChunkDataAccess 按调用方指定的大小分配 buffer，之后不再改变大小
// 需要不同大小时请新建一个实例再拷贝
func NewChunkDataAccess(dataSize uint32) *ChunkDataAccess {
	return &ChunkDataAccess{
		header: *NewChunkHeader(),
		data:   make([]byte, dataSize),
	}
}

// NewChunkDataAccessFrom 用现成的 payload 构造一个未压缩的 chunk
func NewChunkDataAccessFrom(header ChunkHeader, payload []byte) *ChunkDataAccess {
	a := NewChunkDataAccess(uint32(len(payload)))
	copy(a.data, payload)
	header.StorageFlags &^= StorageCompressed
	header.DataSizeCompressed = uint32(len(payload))
	header.DataSizeUncompressed = uint32(len(payload))
	a.header = header
	return a
}

// AcquireData 加锁并返回 header 与 payload 的引用
// 调用方必须配对调用 ReleaseData
func (a *ChunkDataAccess) AcquireData() (*ChunkHeader, []byte) {
	a.mu.Lock()
	return &a.header, a.data
}

// ReleaseData 释放数据锁
func (a *ChunkDataAccess) ReleaseData() {
	a.mu.Unlock()
}

// Header 返回 header 的副本
func (a *ChunkDataAccess) Header() ChunkHeader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.header
}

// Payload 返回 payload 的副本
func (a *ChunkDataAccess) Payload() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// DataSize 是分配时的 buffer 长度
func (a *ChunkDataAccess) DataSize() int {
	return len(a.data)
}

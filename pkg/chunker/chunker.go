package chunker

import (
	"errors"
	"fmt"
	"io"
	"math"

	"chunkvault/pkg/core"
)

// 默认配置 (单位: 字节)
const (
	MinSize   = 4 * 1024  // 4KB
	AvgSize   = 8 * 1024  // 8KB
	MaxSize   = 64 * 1024 // 64KB
	NormLevel = 2
)

type Config struct {
	MinSize int
	AvgSize int
	MaxSize int
}

func DefaultConfig() Config {
	return Config{MinSize: MinSize, AvgSize: AvgSize, MaxSize: MaxSize}
}

func (c Config) Validate() error {
	if c.MinSize < 64 {
		return fmt.Errorf("chunker min size %d is below 64 bytes", c.MinSize)
	}
	if !(c.MinSize < c.AvgSize && c.AvgSize < c.MaxSize) {
		return fmt.Errorf("chunker sizes must satisfy min < avg < max, got %d/%d/%d", c.MinSize, c.AvgSize, c.MaxSize)
	}
	if c.MaxSize > core.MaxChunkDataSize {
		return fmt.Errorf("chunker max size %d exceeds chunk limit %d", c.MaxSize, core.MaxChunkDataSize)
	}
	return nil
}

// Chunker 是一个无状态的 FastCDC 切分工具，可以并发使用
type Chunker struct {
	cfg   Config
	maskS uint64
	maskL uint64
}

// NewChunker 使用默认配置
func NewChunker() *Chunker {
	c, _ := New(DefaultConfig())
	return c
}

func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// 预计算掩码: 归一化区域用更严的掩码，之后用更宽的
	bits := int(math.Round(math.Log2(float64(cfg.AvgSize))))
	return &Chunker{
		cfg:   cfg,
		maskS: uint64(1<<(bits+NormLevel)) - 1,
		maskL: uint64(1<<max(bits-NormLevel, 1)) - 1,
	}, nil
}

func (c *Chunker) Config() Config { return c.cfg }

// next 返回 data 开头第一个块的长度
// data 要么至少有 MaxSize 字节，要么就是输入的最后一段
func (c *Chunker) next(data []byte) int {
	n := len(data)
	// 1. 剩余不足最小块，直接收尾
	if n <= c.cfg.MinSize {
		return n
	}

	fp := uint64(0)
	idx := c.cfg.MinSize
	normLimit := min(c.cfg.AvgSize, n)
	maxLimit := min(c.cfg.MaxSize, n)

	scan := func(limit int, mask uint64) bool {
		for ; idx < limit; idx++ {
			fp = (fp << 1) + gearTable[data[idx]]
			if (fp & mask) == 0 {
				return true
			}
		}
		return false
	}

	// A. 归一化区域 (严掩码)
	if scan(normLimit, c.maskS) {
		return idx + 1
	}
	// B. 普通区域 (宽掩码)
	if scan(maxLimit, c.maskL) {
		return idx + 1
	}
	// C. 强制切分
	return maxLimit
}

// Cut 将数据切分成一系列块，返回每个块的结束 offset
// 非空输入的最后一个切点一定是 len(data)
func (c *Chunker) Cut(data []byte) []int {
	var cutPoints []int
	offset := 0
	for offset < len(data) {
		offset += c.next(data[offset:])
		cutPoints = append(cutPoints, offset)
	}
	return cutPoints
}

// Split 流式切分 r，每切出一块就调用一次 fn
// 传给 fn 的切片在 fn 返回后会被复用，需要保留的话调用方自己拷贝。
// 切点和对整个输入调用 Cut 完全一致。
func (c *Chunker) Split(r io.Reader, fn func(chunk []byte) error) error {
	buf := make([]byte, c.cfg.MaxSize)
	filled := 0
	eof := false

	for {
		if !eof && filled < len(buf) {
			n, err := io.ReadFull(r, buf[filled:])
			filled += n
			switch {
			case err == nil:
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				eof = true
			default:
				return fmt.Errorf("read input: %w", err)
			}
		}

		if filled == 0 {
			return nil
		}

		cut := c.next(buf[:filled])
		if err := fn(buf[:cut]); err != nil {
			return err
		}
		filled = copy(buf, buf[cut:filled])
	}
}

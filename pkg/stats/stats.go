// Package stats 收集命名的计数器并格式化输出。
// 计数只做累加，没有任何回调，调用方可以随意在热路径上使用。
package stats

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Format 决定一个 Stat 在报告里如何显示
type Format int

const (
	FormatValue Format = iota
	FormatBytes
	FormatBytesPerSecond
	FormatDuration   // 纳秒
	FormatPercentage // 基点，10000 = 100%
)

func (f Format) String() string {
	switch f {
	case FormatValue:
		return "value"
	case FormatBytes:
		return "bytes"
	case FormatBytesPerSecond:
		return "bytes/s"
	case FormatDuration:
		return "duration"
	case FormatPercentage:
		return "percentage"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Stat 是一个并发安全的 int64 计数器
type Stat struct {
	name   string
	format Format
	v      atomic.Int64
}

func (s *Stat) Name() string          { return s.name }
func (s *Stat) Format() Format        { return s.format }
func (s *Stat) Load() int64           { return s.v.Load() }
func (s *Stat) Add(delta int64) int64 { return s.v.Add(delta) }
func (s *Stat) Set(v int64)           { s.v.Store(v) }

// AddDuration 累加一段耗时
func (s *Stat) AddDuration(d time.Duration) { s.v.Add(int64(d)) }

// Since 累加从 start 到现在的耗时
func (s *Stat) Since(start time.Time) { s.AddDuration(time.Since(start)) }

// String 按 Format 渲染当前值
func (s *Stat) String() string {
	v := s.Load()
	switch s.format {
	case FormatBytes:
		return humanize.IBytes(uint64(max(v, 0)))
	case FormatBytesPerSecond:
		return humanize.IBytes(uint64(max(v, 0))) + "/s"
	case FormatDuration:
		return time.Duration(v).String()
	case FormatPercentage:
		return fmt.Sprintf("%.2f%%", float64(v)/100)
	default:
		return humanize.Comma(v)
	}
}

// Collector 持有所有命名的 Stat
type Collector struct {
	mu    sync.Mutex
	stats map[string]*Stat
	order []string
}

func NewCollector() *Collector {
	return &Collector{stats: make(map[string]*Stat)}
}

// CreateStat 同名只会创建一次，重复调用返回同一个实例
func (c *Collector) CreateStat(name string, format Format) *Stat {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stats[name]; ok {
		return s
	}
	s := &Stat{name: name, format: format}
	c.stats[name] = s
	c.order = append(c.order, name)
	return s
}

// Get 查找已创建的 Stat
func (c *Collector) Get(name string) (*Stat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[name]
	return s, ok
}

// Snapshot 返回当前所有值，方便持久化或断言
func (c *Collector) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.stats))
	for name, s := range c.stats {
		out[name] = s.Load()
	}
	return out
}

func (c *Collector) list() []*Stat {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Stat, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.stats[name])
	}
	return out
}

// Report 按创建顺序输出 "name: value"，名字对齐
func (c *Collector) Report(w io.Writer) error {
	list := c.list()
	width := 0
	for _, s := range list {
		width = max(width, len(s.name)+1)
	}
	for _, s := range list {
		if _, err := fmt.Fprintf(w, "%-*s  %s\n", width, s.name+":", s.String()); err != nil {
			return err
		}
	}
	return nil
}

// LogReport 每个 Stat 一行 Info 日志
func (c *Collector) LogReport(l logrus.FieldLogger) {
	for _, s := range c.list() {
		l.WithField("stat", s.name).Info(s.String())
	}
}

// SortedNames 主要给测试和 CLI 用
func (c *Collector) SortedNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	return names
}

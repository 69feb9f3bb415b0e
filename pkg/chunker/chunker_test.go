package chunker

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
	"testing/iotest"

	"chunkvault/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Deterministic(t *testing.T) {
	// 1. 准备数据：100KB 随机数据
	data := make([]byte, 100*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)

	c := NewChunker()

	// 2. 第一次切分
	cuts1 := c.Cut(data)
	assert.NotEmpty(t, cuts1)
	assert.Equal(t, len(data), cuts1[len(cuts1)-1], "最后一块必须结束于文件末尾")

	// 3. 第二次切分 (验证确定性)
	cuts2 := c.Cut(data)
	assert.Equal(t, cuts1, cuts2, "对于相同数据，切分点必须完全一致")
}

func TestChunker_MinMaxConstraints(t *testing.T) {
	// 全 0 数据容易触发 worst-case
	data := make([]byte, 200*1024)
	c := NewChunker()
	cuts := c.Cut(data)

	start := 0
	for i, end := range cuts {
		size := end - start
		// 最后一块可能小于 MinSize
		if i < len(cuts)-1 {
			assert.GreaterOrEqual(t, size, MinSize, "Chunk %d size %d too small", i, size)
		}
		assert.LessOrEqual(t, size, MaxSize, "Chunk %d size %d too large", i, size)
		start = end
	}
	assert.Equal(t, len(data), start)
}

func TestChunker_EmptyAndSmall(t *testing.T) {
	c := NewChunker()
	assert.Empty(t, c.Cut(nil))
	assert.Equal(t, []int{100}, c.Cut(make([]byte, 100)))
}

func TestChunker_SplitMatchesCut(t *testing.T) {
	data := make([]byte, 300*1024+17)
	_, err := rand.Read(data)
	require.NoError(t, err)

	c := NewChunker()
	want := c.Cut(data)

	var got []int
	var rebuilt bytes.Buffer
	offset := 0
	// HalfReader 模拟短读
	err = c.Split(iotest.HalfReader(bytes.NewReader(data)), func(chunk []byte) error {
		offset += len(chunk)
		got = append(got, offset)
		rebuilt.Write(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, data, rebuilt.Bytes())
}

func TestChunker_SplitErrors(t *testing.T) {
	c := NewChunker()
	boom := errors.New("boom")

	err := c.Split(iotest.ErrReader(boom), func([]byte) error { return nil })
	assert.ErrorIs(t, err, boom)

	err = c.Split(bytes.NewReader(make([]byte, 10)), func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MinSize: 8, AvgSize: 16, MaxSize: 32}.Validate())
	assert.Error(t, Config{MinSize: 4096, AvgSize: 4096, MaxSize: 8192}.Validate())
	assert.Error(t, Config{MinSize: 4096, AvgSize: 8192, MaxSize: core.MaxChunkDataSize + 1}.Validate())

	c, err := New(Config{MinSize: 1024, AvgSize: 2048, MaxSize: 8192})
	require.NoError(t, err)
	data := make([]byte, 50*1024)
	_, err = rand.Read(data)
	require.NoError(t, err)
	start := 0
	for _, end := range c.Cut(data) {
		assert.LessOrEqual(t, end-start, 8192)
		start = end
	}
}

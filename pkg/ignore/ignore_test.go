package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	// 没有 .cvignore 的目录
	matcher, err := NewMatcher(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		path     string
		shouldIg bool
	}{
		{".cv", true},
		{".cv/Chunks/aa", true}, // 子路径也应该被忽略
		{".cv/", true},
		{"out/0A1B_ABCD.chunk", true},
		{"Recipes/ab/abcd.recipe", true},
		{".git", true},
		{"config.yaml", true},
		{".DS_Store", true},
		{"main.go", false},
		{"data/model.bin", false},
		{".", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_WithUserFile(t *testing.T) {
	tmpDir := t.TempDir()

	ignoreContent := `
# 注释
*.log
temp
!important.log
`
	err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte(ignoreContent), 0644)
	require.NoError(t, err)

	matcher, err := NewMatcher(tmpDir)
	require.NoError(t, err)

	tests := []struct {
		path     string
		shouldIg bool
	}{
		// 默认规则依然生效
		{".cv", true},
		{"config.yaml", true},

		{"app.log", true},
		{"logs/error.log", true},
		{"temp", true},
		{"temp/file", true},
		{"main.go", false},

		// 负向规则
		{"important.log", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_ExtraRules(t *testing.T) {
	matcher, err := NewMatcher(t.TempDir(), "*.tmp")
	require.NoError(t, err)

	assert.True(t, matcher.Matches("build/x.tmp"))
	assert.False(t, matcher.Matches("build/x.bin"))
	assert.True(t, matcher.Matches(".cv"))
}

func TestMatcher_NegationCannotOverrideDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, FileName), []byte("!.env\n"), 0644))

	matcher, err := NewMatcher(tmpDir)
	require.NoError(t, err)
	assert.True(t, matcher.Matches(".env"))
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Matches("anything"))
}

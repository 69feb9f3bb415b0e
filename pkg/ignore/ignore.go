package ignore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是用户自定义忽略规则所在的文件
const FileName = ".cvignore"

// defaultRules 永远生效，用户文件里的 ! 规则也无法把它们放出来
var defaultRules = []string{
	// 仓库自身的数据，索引进来会无限递归
	".cv",
	"*.chunk",
	"*.recipe",
	".git",

	// 凭据
	"config.yaml",
	".env",

	".DS_Store",
	"Thumbs.db",
}

// Matcher 判断 put 目录时某个相对路径是否要跳过
type Matcher struct {
	defaults *gitignore.GitIgnore
	user     *gitignore.GitIgnore
}

// NewMatcher 读取 rootPath 下的 .cvignore (不存在就只用默认规则)，
// extra 是命令行额外传入的规则
func NewMatcher(rootPath string, extra ...string) (*Matcher, error) {
	m := &Matcher{defaults: gitignore.CompileIgnoreLines(defaultRules...)}

	ignoreFilePath := filepath.Join(rootPath, FileName)
	_, err := os.Stat(ignoreFilePath)
	switch {
	case err == nil:
		m.user, err = gitignore.CompileIgnoreFileAndLines(ignoreFilePath, extra...)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
		if len(extra) > 0 {
			m.user = gitignore.CompileIgnoreLines(extra...)
		}
	default:
		return nil, err
	}
	return m, nil
}

// Matches 的 path 是相对 rootPath 的路径，两种分隔符都接受
// 返回 true 表示跳过
func (m *Matcher) Matches(path string) bool {
	if m == nil {
		return false
	}
	path = strings.TrimSuffix(filepath.ToSlash(path), "/")
	if path == "" || path == "." {
		return false
	}
	if m.defaults != nil && m.defaults.MatchesPath(path) {
		return true
	}
	return m.user != nil && m.user.MatchesPath(path)
}

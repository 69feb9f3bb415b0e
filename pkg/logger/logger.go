// Package logger 提供按名字区分的 logrus logger，所有 logger 共享级别、输出和颜色设置。
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

const timeLayout = "2006-01-02 15:04:05.000"

// registry 保存全局设置；新建的 logger 继承当前设置，SetXxx 同时作用于已有 logger
type registry struct {
	mu      sync.Mutex
	loggers map[string]*Logger
	level   logrus.Level
	out     io.Writer
	color   bool
}

var global = &registry{
	loggers: make(map[string]*Logger),
	level:   logrus.InfoLevel,
	out:     os.Stderr,
	color:   isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
}

// Logger 是带名字的 logrus.Logger
type Logger struct {
	*logrus.Logger
	name string
}

// lineFormatter 输出一行: 时间 级别 [名字] 消息 k=v ... (文件:行)
type lineFormatter struct {
	name  string
	color bool
}

var levelColors = map[logrus.Level]int{
	logrus.PanicLevel: 31,
	logrus.FatalLevel: 31,
	logrus.ErrorLevel: 31,
	logrus.WarnLevel:  33,
	logrus.InfoLevel:  36,
}

func (f *lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(e.Time.Format(timeLayout))
	b.WriteByte(' ')

	lvl := strings.ToUpper(e.Level.String())
	if len(lvl) > 5 {
		lvl = lvl[:4]
	}
	if f.color {
		code, ok := levelColors[e.Level]
		if !ok {
			code = 90
		}
		fmt.Fprintf(&b, "\033[%dm%-5s\033[0m", code, lvl)
	} else {
		fmt.Fprintf(&b, "%-5s", lvl)
	}

	fmt.Fprintf(&b, " [%s] %s", f.name, strings.TrimRight(e.Message, "\n"))

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}
	if e.HasCaller() {
		fmt.Fprintf(&b, " (%s)", CallerLocation(e.Caller))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// CallerLocation 返回 "包目录/文件:行"，比如 writer/writer.go:120
func CallerLocation(frame *runtime.Frame) string {
	if frame == nil || frame.File == "" {
		return "?"
	}
	dir := filepath.Base(filepath.Dir(frame.File))
	return fmt.Sprintf("%s/%s:%d", dir, filepath.Base(frame.File), frame.Line)
}

// GetLogger 同名返回同一个实例
func GetLogger(name string) *Logger {
	global.mu.Lock()
	defer global.mu.Unlock()

	if l, ok := global.loggers[name]; ok {
		return l
	}
	base := logrus.New()
	base.SetLevel(global.level)
	base.SetOutput(global.out)
	base.SetReportCaller(true)
	base.SetFormatter(&lineFormatter{name: name, color: global.color})

	l := &Logger{Logger: base, name: name}
	global.loggers[name] = l
	return l
}

func (l *Logger) Name() string { return l.name }

// apply 在持锁状态下把设置推给所有已有 logger
func (r *registry) apply() {
	for name, l := range r.loggers {
		l.SetLevel(r.level)
		l.SetOutput(r.out)
		l.SetFormatter(&lineFormatter{name: name, color: r.color})
	}
}

func SetLogLevel(lvl logrus.Level) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.level = lvl
	global.apply()
}

// ParseAndSetLevel 接受 logrus 的级别名 (debug/info/warn/...)
func ParseAndSetLevel(s string) error {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return err
	}
	SetLogLevel(lvl)
	return nil
}

// SetColor 强制开关 ANSI 颜色，默认只在 stderr 是终端时开启
func SetColor(enabled bool) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.color = enabled
	global.apply()
}

// SetOutput 切换输出；不是终端的输出一律不带颜色
func SetOutput(w io.Writer) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.out = w
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		global.color = false
	}
	global.apply()
}

// SetOutFile 按天轮转写入 name.YYYYMMDD，name 是指向最新文件的软链接
func SetOutFile(name string) error {
	logf, err := rotatelogs.New(
		name+".%Y%m%d",
		rotatelogs.WithLinkName(name),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", name, err)
	}
	SetOutput(logf)
	return nil
}

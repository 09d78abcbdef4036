package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ReplaceAttrFunc 属性替换函数，返回空 Key 的 Attr 表示移除。
type ReplaceAttrFunc func(groups []string, a slog.Attr) slog.Attr

// Builder 日志记录器构建器，一次性使用。
type Builder struct {
	output      io.Writer
	closer      io.Closer
	levelVar    *slog.LevelVar
	format      string
	addSource   bool
	redactKeys  []string
	replaceAttr ReplaceAttrFunc
	attrs       []slog.Attr
	err         error
}

// New 创建构建器：stderr、INFO、text、默认脱敏。
func New() *Builder {
	return &Builder{
		output:     os.Stderr,
		levelVar:   new(slog.LevelVar),
		format:     "text",
		redactKeys: RedactKeys,
	}
}

// SetOutput 设置输出目标。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if b.err == nil && w != nil {
		b.output = w
	}
	return b
}

// SetLevel 设置级别。
func (b *Builder) SetLevel(level Level) *Builder {
	if b.err == nil {
		b.levelVar.Set(slog.Level(level))
	}
	return b
}

// SetLevelString 通过字符串设置级别。
func (b *Builder) SetLevelString(s string) *Builder {
	if b.err != nil {
		return b
	}
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置格式：text 或 json，空值为 text。
func (b *Builder) SetFormat(format string) *Builder {
	if b.err != nil {
		return b
	}
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = f
	default:
		b.err = fmt.Errorf("xlog: unknown format %q", format)
	}
	return b
}

// SetAddSource 是否输出源码位置。
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetRotation 输出到按大小轮转的文件。
func (b *Builder) SetRotation(filename string, cfg RotateConfig) *Builder {
	if b.err != nil {
		return b
	}
	r, err := newRotator(filename, cfg)
	if err != nil {
		b.err = err
		return b
	}
	b.output, b.closer = r, r
	return b
}

// SetRedactKeys 替换脱敏键列表，传空表示关闭脱敏。
func (b *Builder) SetRedactKeys(keys ...string) *Builder {
	b.redactKeys = keys
	return b
}

// SetReplaceAttr 设置额外的属性替换函数，在脱敏之后执行。
func (b *Builder) SetReplaceAttr(fn ReplaceAttrFunc) *Builder {
	b.replaceAttr = fn
	return b
}

// With 为每条日志附加固定属性（如 appid、service）。
func (b *Builder) With(attrs ...slog.Attr) *Builder {
	b.attrs = append(b.attrs, attrs...)
	return b
}

// Build 返回日志记录器、释放资源的清理函数与配置错误。
// 清理函数可重复调用。
func (b *Builder) Build() (*slog.Logger, func() error, error) {
	if b.err != nil {
		if b.closer != nil {
			_ = b.closer.Close() //nolint:errcheck // 已有配置错误
		}
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{Level: b.levelVar, AddSource: b.addSource}
	var replace func([]string, slog.Attr) slog.Attr
	if b.replaceAttr != nil {
		replace = b.replaceAttr
	}
	if len(b.redactKeys) > 0 {
		replace = redactor(b.redactKeys, replace)
	}
	opts.ReplaceAttr = replace

	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}
	if len(b.attrs) > 0 {
		handler = handler.WithAttrs(b.attrs)
	}

	var once sync.Once
	closer := b.closer
	cleanup := func() error {
		var err error
		once.Do(func() {
			if closer != nil {
				err = closer.Close()
			}
		})
		return err
	}
	return slog.New(handler), cleanup, nil
}

// LevelVar 返回构建器使用的动态级别，Build 之后修改立即生效。
func (b *Builder) LevelVar() *slog.LevelVar {
	return b.levelVar
}

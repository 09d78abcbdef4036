package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置文件格式。
type Format string

// 支持的配置格式。
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Source 从文件加载的配置，支持重载。
type Source struct {
	path   string
	format Format

	mu       sync.RWMutex
	k        *koanf.Koanf
	settings *Settings
}

// Open 加载配置文件，格式由扩展名决定（.yaml/.yml/.json）。
func Open(path string) (*Source, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	s := &Source{path: path, format: format}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse 解析字节数据，不记录来源。
func Parse(data []byte, format Format) (*Settings, error) {
	_, settings, err := parse(data, format)
	return settings, err
}

// Reload 重新读取文件。失败时保留旧配置。
func (s *Source) Reload() (*Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	k, settings, err := parse(data, s.format)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.k, s.settings = k, settings
	s.mu.Unlock()
	return settings.clone(), nil
}

// Settings 返回当前配置的副本。
func (s *Source) Settings() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// Koanf 返回底层 koanf 实例，用于读取 Settings 之外的自定义键。
func (s *Source) Koanf() *koanf.Koanf {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k
}

// Path 返回配置文件路径。
func (s *Source) Path() string { return s.path }

// Format 返回配置格式。
func (s *Source) Format() Format { return s.format }

// DetectFormat 根据文件扩展名检测配置格式。
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func parse(data []byte, format Format) (*koanf.Koanf, *Settings, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, nil, ErrUnsupportedFormat
	}

	k := koanf.New(".")
	if len(data) > 0 {
		expanded := os.ExpandEnv(string(data))
		if err := k.Load(rawbytes.Provider([]byte(expanded)), parser); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	settings := new(Settings)
	if err := k.UnmarshalWithConf("", settings, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, nil, err
	}
	return k, settings, nil
}

func (s *Settings) clone() *Settings {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Store.Etcd.Endpoints = append([]string(nil), s.Store.Etcd.Endpoints...)
	return &cp
}

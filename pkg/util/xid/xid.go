package xid

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"

	"github.com/sony/sonyflake/v2"
)

// EnvMachineID 指定机器 ID 的环境变量。
const EnvMachineID = "XWECHAT_MACHINE_ID"

var (
	// ErrInvalidConfig 机器 ID 无法确定或 sonyflake 初始化失败。
	ErrInvalidConfig = errors.New("xid: invalid config")

	// ErrInvalidID 无法解析的 ID 字符串。
	ErrInvalidID = errors.New("xid: invalid id")
)

// 测试注入点。
var osHostname = os.Hostname

// Option 生成器选项。
type Option func(*options)

type options struct {
	machineID func() (uint16, error)
}

// WithMachineID 自定义机器 ID。
func WithMachineID(fn func() (uint16, error)) Option {
	return func(o *options) { o.machineID = fn }
}

// Generator 并发安全的 ID 生成器。
type Generator struct {
	next func() (int64, error)
}

// NewGenerator 创建生成器。
func NewGenerator(opts ...Option) (*Generator, error) {
	o := &options{machineID: DefaultMachineID}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	sf, err := sonyflake.New(sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := o.machineID()
			return int(id), err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Generator{next: sf.NextID}, nil
}

// New 返回下一个 ID。
func (g *Generator) New() (int64, error) {
	id, err := g.next()
	if err != nil {
		return 0, fmt.Errorf("xid: generate: %w", err)
	}
	return id, nil
}

// NewString 返回下一个 ID 的 36 进制表示。
func (g *Generator) NewString() (string, error) {
	id, err := g.New()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}

// Parse 解析 NewString 生成的字符串。
func Parse(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 36, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// DefaultMachineID 读取 XWECHAT_MACHINE_ID，未设置时取主机名哈希。
func DefaultMachineID() (uint16, error) {
	if s := os.Getenv(EnvMachineID); s != "" {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("xid: invalid %s value %q: %w", EnvMachineID, s, err)
		}
		return uint16(id), nil
	}
	host, err := osHostname()
	if err != nil {
		return 0, fmt.Errorf("xid: hostname: %w", err)
	}
	if host == "" {
		return 0, errors.New("xid: empty hostname")
	}
	return hashToMachineID(host), nil
}

// hashToMachineID FNV-1a 32 位哈希的高低半字异或。
func hashToMachineID(s string) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum32()
	return uint16(sum>>16) ^ uint16(sum&0xFFFF) //nolint:gosec // 有意截断
}

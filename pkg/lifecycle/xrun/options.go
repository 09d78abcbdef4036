package xrun

import (
	"log/slog"
	"os"
	"syscall"
)

// Option Group 选项。
type Option func(*groupOptions)

type groupOptions struct {
	logger   *slog.Logger
	signals  []os.Signal
	noSignal bool
}

func defaultOptions() *groupOptions {
	return &groupOptions{logger: slog.Default()}
}

// DefaultSignals SIGHUP、SIGINT、SIGTERM、SIGQUIT。
func DefaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}

// WithLogger 设置生命周期日志。
func WithLogger(logger *slog.Logger) Option {
	return func(o *groupOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSignals 自定义 Run 监听的信号，空列表使用 DefaultSignals。
func WithSignals(signals ...os.Signal) Option {
	copied := append([]os.Signal(nil), signals...)
	return func(o *groupOptions) { o.signals = copied }
}

// WithoutSignalHandler Run 不监听信号。
func WithoutSignalHandler() Option {
	return func(o *groupOptions) { o.noSignal = true }
}

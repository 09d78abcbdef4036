package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 因收到系统信号而退出，用 errors.Is 判断。
	ErrSignal = errors.New("received signal")

	// ErrNilService 服务函数为 nil。
	ErrNilService = errors.New("xrun: nil service")
)

// SignalError 携带触发退出的信号。
type SignalError struct {
	Signal os.Signal
}

// Error 实现 error。
func (e *SignalError) Error() string {
	return fmt.Sprintf("received signal %v", e.Signal)
}

// Unwrap 返回 ErrSignal。
func (e *SignalError) Unwrap() error { return ErrSignal }

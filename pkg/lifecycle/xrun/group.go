package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"
)

// Service 阻塞运行直到 ctx 取消或出错。
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Named 为服务函数命名，名称出现在日志中。
func Named(name string, run func(ctx context.Context) error) Service {
	return Service{Name: name, Run: run}
}

// Group 并发运行服务并协调关闭。Go 与 Cancel 可并发调用，Wait 只调用一次。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *groupOptions
}

// NewGroup 创建 Group，返回的 context 在任一服务出错或 Cancel 时取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, causeCtx: causeCtx, cancel: cancel, opts: o}, egCtx
}

// Go 启动服务。
func (g *Group) Go(svc Service) {
	g.eg.Go(func() error {
		if svc.Run == nil {
			return ErrNilService
		}
		g.opts.logger.Debug("service starting", slog.String("service", svc.Name))
		err := svc.Run(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Warn("service exited with error",
				slog.String("service", svc.Name), slog.Any("error", err))
		} else {
			g.opts.logger.Debug("service stopped", slog.String("service", svc.Name))
		}
		return err
	})
}

// Cancel 以 cause 取消所有服务，Wait 会返回该原因。
// cause 不应包装 context.Canceled，否则会被当作普通取消过滤掉。
func (g *Group) Cancel(cause error) { g.cancel(cause) }

// Wait 等待所有服务返回。
//
// 服务因 Group 取消而返回的 context.Canceled 被过滤；Cancel 设置的原因优先返回。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()

	if g.causeCtx.Err() != nil {
		if cause := context.Cause(g.causeCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
	}
	return err
}

// Run 运行服务直到全部返回。默认监听 DefaultSignals，收到信号时返回 *SignalError。
func Run(ctx context.Context, opts []Option, services ...Service) error {
	g, _ := NewGroup(ctx, opts...)
	if !g.opts.noSignal {
		signals := g.opts.signals
		if len(signals) == 0 {
			signals = DefaultSignals()
		}
		g.Go(Named("signal", func(ctx context.Context) error {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, signals...)
			defer signal.Stop(ch)
			select {
			case sig := <-ch:
				g.opts.logger.Info("received signal", slog.String("signal", sig.String()))
				g.Cancel(&SignalError{Signal: sig})
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
	}
	for _, svc := range services {
		g.Go(svc)
	}
	return g.Wait()
}

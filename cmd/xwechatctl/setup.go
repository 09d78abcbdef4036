package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/omeyang/xwechat/pkg/config/xconf"
	"github.com/omeyang/xwechat/pkg/observability/xlog"
	"github.com/omeyang/xwechat/pkg/observability/xmetrics"
	"github.com/omeyang/xwechat/pkg/storage/xsession"
	"github.com/omeyang/xwechat/pkg/wechat/xclient"
)

// env 一次命令执行所需的依赖，Close 按创建的逆序释放。
type env struct {
	source   *xconf.Source
	settings *xconf.Settings
	logger   *slog.Logger
	level    *slog.LevelVar
	// levelPinned 命令行指定了日志级别。
	levelPinned bool
	client      *xclient.Client
	closers     []func() error
}

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// newLogger 按配置构建日志，命令行参数优先。日志写 stderr 或轮转文件，不占用 stdout。
func newLogger(cmd *cli.Command, ls xconf.LogSettings, rotation xlog.RotateConfig) (*slog.Logger, *slog.LevelVar, func() error, error) {
	level, format := ls.Level, ls.Format
	if v := cmd.String("log-level"); v != "" {
		level = v
	}
	if v := cmd.String("log-format"); v != "" {
		format = v
	}
	b := xlog.New().SetLevelString(level).SetFormat(format).SetOutput(cmd.Root().ErrWriter)
	if ls.File != "" {
		b.SetRotation(ls.File, rotation)
	}
	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, nil, usagef("%v", err)
	}
	return logger, b.LevelVar(), cleanup, nil
}

// setup 读取配置并创建客户端。observer 为 nil 时不做观测。
func setup(ctx context.Context, cmd *cli.Command, observer xmetrics.Observer) (*env, error) {
	src, err := xconf.Open(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	settings := src.Settings()
	logger, level, cleanup, err := newLogger(cmd, settings.Log, settings.Rotation())
	if err != nil {
		return nil, err
	}
	e := &env{
		source:   src,
		settings: settings,
		logger:   logger,
		level:    level,
		closers:  []func() error{cleanup},

		levelPinned: cmd.String("log-level") != "",
	}

	opts := []xclient.Option{xclient.WithLogger(logger)}
	if observer != nil {
		opts = append(opts, xclient.WithObserver(observer))
	}
	if b := settings.Breaker(); b != nil {
		opts = append(opts, xclient.WithCircuitBreaker(*b))
	}

	storeOpts, err := e.storeOptions(ctx, settings)
	if err != nil {
		_ = e.Close() //nolint:errcheck // 已有错误
		return nil, err
	}
	opts = append(opts, storeOpts...)

	client, err := xclient.New(settings.ClientConfig(), opts...)
	if err != nil {
		_ = e.Close() //nolint:errcheck // 已有错误
		return nil, err
	}
	e.client = client
	e.closers = append(e.closers, client.Close)
	return e, nil
}

func (e *env) storeOptions(ctx context.Context, s *xconf.Settings) ([]xclient.Option, error) {
	var prefix []xsession.Option
	if s.Store.Prefix != "" {
		prefix = append(prefix, xsession.WithKeyPrefix(s.Store.Prefix))
	}

	switch s.Store.Driver {
	case xconf.DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     s.Store.Redis.Addr,
			Password: s.Store.Redis.Password,
			DB:       s.Store.Redis.DB,
		})
		e.closers = append(e.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", s.Store.Redis.Addr, err)
		}
		store, err := xsession.NewRedisStore(rdb, prefix...)
		if err != nil {
			return nil, err
		}
		opts := []xclient.Option{xclient.WithStore(store)}
		if n := s.Resilience.RatePerMinute; n > 0 {
			opts = append(opts, xclient.WithLimiter(xclient.NewRedisLimiter(rdb, redis_rate.PerMinute(n))))
		}
		return opts, nil

	case xconf.DriverEtcd:
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   s.Store.Etcd.Endpoints,
			DialTimeout: s.Store.Etcd.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect etcd: %w", err)
		}
		e.closers = append(e.closers, cli.Close)
		store, err := xsession.NewEtcdStore(cli, prefix...)
		if err != nil {
			return nil, err
		}
		return []xclient.Option{xclient.WithStore(store)}, nil

	default:
		if len(prefix) == 0 {
			return nil, nil
		}
		store, err := xsession.NewMemoryStore(nil, prefix...)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		return []xclient.Option{xclient.WithStore(store)}, nil
	}
}

// withEnv 为需要客户端的命令创建并释放 env。
func withEnv(fn func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		e, err := setup(ctx, cmd, nil)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := e.Close(); cerr != nil {
				e.logger.Warn("release resources failed", slog.Any("error", cerr))
			}
		}()
		return fn(ctx, cmd, e)
	}
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xwechat/internal/webhook"
	"github.com/omeyang/xwechat/pkg/config/xconf"
	"github.com/omeyang/xwechat/pkg/distributed/xcron"
	"github.com/omeyang/xwechat/pkg/lifecycle/xrun"
	"github.com/omeyang/xwechat/pkg/observability/xlog"
	"github.com/omeyang/xwechat/pkg/observability/xmetrics"
	"github.com/omeyang/xwechat/pkg/util/xid"
	"github.com/omeyang/xwechat/pkg/util/xnet"
	"github.com/omeyang/xwechat/pkg/wechat/xclient"
	"github.com/omeyang/xwechat/pkg/wechat/xmessage"
)

const (
	shutdownTimeout   = 10 * time.Second
	jobTimeout        = 30 * time.Second
	allowlistSchedule = "@every 1h"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "运行公众号回调服务",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "监听地址，覆盖 server.addr"},
			&cli.StringFlag{Name: "token", Usage: "回调令牌，覆盖 app.token", Sources: cli.EnvVars("XWECHAT_CALLBACK_TOKEN")},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := xmetrics.NewPrometheusObserver("xwechat", reg)
	if err != nil {
		return err
	}

	e, err := setup(ctx, cmd, observer)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			e.logger.Warn("release resources failed", slog.Any("error", cerr))
		}
	}()

	srvCfg := e.settings.Server
	if v := cmd.String("addr"); v != "" {
		srvCfg.Addr = v
	}
	token := e.settings.App.Token
	if v := cmd.String("token"); v != "" {
		token = v
	}
	if token == "" {
		return usagef("callback token is required (app.token or --token)")
	}

	dedup, err := xmessage.NewDeduplicator(srvCfg.Dedup, srvCfg.DedupTTL)
	if err != nil {
		return err
	}
	defer dedup.Close()
	dispatcher := newDispatcher(dedup, e.logger, observer)

	var allow *xnet.Allowlist
	if srvCfg.Allowlist {
		if allow, err = loadAllowlist(ctx, e.client); err != nil {
			return err
		}
	}

	ids, err := xid.NewGenerator()
	if err != nil {
		return err
	}
	handler, err := webhook.New(webhook.Config{
		Token:       token,
		Path:        srvCfg.Path,
		MetricsPath: srvCfg.Metrics,
		Gatherer:    reg,
		Allowlist:   allow,
	}, dispatcher, webhook.WithLogger(e.logger), webhook.WithIDGenerator(ids))
	if err != nil {
		return err
	}

	sched, err := newScheduler(e, srvCfg.Prewarm, allow)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// 平台等待回复 5 秒，超时后会重投。
		WriteTimeout: 5 * time.Second,
	}
	e.logger.Info("callback server starting",
		slog.String("addr", srv.Addr),
		slog.String("path", srvCfg.Path),
		slog.Bool("allowlist", allow != nil))

	err = xrun.Run(ctx, []xrun.Option{xrun.WithLogger(e.logger)},
		xrun.Named("http", xrun.HTTPServer(srv, shutdownTimeout)),
		xrun.Named("config-watch", watchLogLevel(e)),
	)
	if errors.Is(err, xrun.ErrSignal) {
		return nil
	}
	return err
}

// watchLogLevel 配置文件变更时更新日志级别；其余配置需要重启生效。
// 命令行指定了 --log-level 时不跟随配置。
func watchLogLevel(e *env) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		w, err := xconf.Watch(e.source, func(s *xconf.Settings, err error) {
			if err != nil {
				e.logger.Warn("config reload failed", slog.Any("error", err))
				return
			}
			if e.levelPinned {
				return
			}
			level, err := xlog.ParseLevel(s.Log.Level)
			if err != nil {
				return
			}
			e.level.Set(slog.Level(level))
			e.logger.Info("log level reloaded", slog.String("level", level.String()))
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

// newDispatcher 回显文本消息并在关注时回复欢迎语，其余消息回复 success。
func newDispatcher(dedup *xmessage.Deduplicator, logger *slog.Logger, observer xmetrics.Observer) *xmessage.Dispatcher {
	d := xmessage.NewDispatcher(
		xmessage.WithDeduplicator(dedup),
		xmessage.WithLogger(logger),
		xmessage.WithObserver(observer),
	)
	d.HandleMessage(xmessage.TypeText, xmessage.HandlerFunc(func(_ context.Context, msg xmessage.Message) (xmessage.Reply, error) {
		text, ok := msg.(*xmessage.TextMessage)
		if !ok {
			return nil, nil
		}
		return xmessage.NewTextReply(msg, text.Content), nil
	}))
	welcome := xmessage.HandlerFunc(func(_ context.Context, msg xmessage.Message) (xmessage.Reply, error) {
		return xmessage.NewTextReply(msg, "welcome"), nil
	})
	d.HandleEvent(xmessage.EventSubscribe, welcome)
	d.HandleEvent(xmessage.EventSubscribeScan, welcome)
	d.HandleDefault(xmessage.HandlerFunc(func(_ context.Context, msg xmessage.Message) (xmessage.Reply, error) {
		logger.Debug("callback without handler",
			slog.String("type", msg.Type()),
			slog.String("event", msg.Header().Event))
		return nil, nil
	}))
	return d
}

func loadAllowlist(ctx context.Context, client *xclient.Client) (*xnet.Allowlist, error) {
	ips, err := client.Misc.CallbackIPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load callback ip list: %w", err)
	}
	return xnet.NewAllowlist(ips)
}

// newScheduler 注册凭据预热与回调 IP 刷新任务。
func newScheduler(e *env, prewarm string, allow *xnet.Allowlist) (*xcron.Scheduler, error) {
	sched := xcron.New(xcron.WithLogger(e.logger))
	if prewarm != "" {
		_, err := sched.AddFunc(prewarm, func(ctx context.Context) error {
			return prewarmCredentials(ctx, e.client)
		}, xcron.WithName("prewarm"), xcron.WithImmediate(), xcron.WithTimeout(jobTimeout))
		if err != nil {
			return nil, err
		}
	}
	if allow != nil {
		_, err := sched.AddFunc(allowlistSchedule, func(ctx context.Context) error {
			ips, err := e.client.Misc.CallbackIPs(ctx)
			if err != nil {
				return err
			}
			return allow.Replace(ips)
		}, xcron.WithName("callback-ips"), xcron.WithTimeout(jobTimeout))
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// prewarmCredentials 提前获取 access_token 与 jsapi_ticket，让请求路径命中缓存。
func prewarmCredentials(ctx context.Context, client *xclient.Client) error {
	if _, err := client.AccessToken(ctx); err != nil {
		return err
	}
	_, err := client.JSAPI.GetTicket(ctx)
	return err
}

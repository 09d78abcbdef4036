// Package xrun 以 errgroup 管理一组长期运行的服务：任一服务出错或收到退出信号时，
// 其余服务的 context 被取消并等待它们全部返回。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)},
//		xrun.Named("http", xrun.HTTPServer(srv, 10*time.Second)),
//		xrun.Named("config-watch", watch),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//		// 正常退出
//	}
package xrun

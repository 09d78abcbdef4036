package xrun

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPServer 把 http.Server 包装为服务：ctx 取消时在 shutdownTimeout 内优雅关闭。
// shutdownTimeout 非正表示等待所有在途请求结束。
func HTTPServer(srv *http.Server, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if srv == nil {
			return ErrNilService
		}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx := context.WithoutCancel(ctx)
		if shutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(shutdownCtx, shutdownTimeout)
			defer cancel()
		}
		err := srv.Shutdown(shutdownCtx)
		if lerr := <-errCh; lerr != nil && !errors.Is(lerr, http.ErrServerClosed) {
			return errors.Join(err, lerr)
		}
		return err
	}
}

// Package xcron 封装 robfig/cron/v3，为定时任务提供超时、panic 恢复、日志与执行统计。
//
//	s := xcron.New(xcron.WithLogger(logger))
//	_, err := s.AddFunc("@every 30m", func(ctx context.Context) error {
//		_, err := client.AccessToken(ctx)
//		return err
//	}, xcron.WithName("prewarm"), xcron.WithImmediate())
//	s.Start()
//	defer s.Stop()
//
// 同一任务上一次执行未结束时，本次调度会被跳过。
package xcron

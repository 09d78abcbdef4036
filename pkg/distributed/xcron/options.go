package xcron

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type schedulerOptions struct {
	logger   *slog.Logger
	location *time.Location
	parser   cron.ScheduleParser
}

// SchedulerOption 调度器选项。
type SchedulerOption func(*schedulerOptions)

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		logger:   slog.Default(),
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// WithLogger 设置日志记录器。
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLocation 设置 cron 表达式的时区，默认本地时区。
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSeconds 启用秒级精度（6 段表达式）。
func WithSeconds() SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}
}

type jobOptions struct {
	name      string
	timeout   time.Duration
	immediate bool
}

// JobOption 任务选项。
type JobOption func(*jobOptions)

// WithName 任务名，用于日志。
func WithName(name string) JobOption {
	return func(o *jobOptions) { o.name = name }
}

// WithTimeout 单次执行超时，0 表示不限制。
func WithTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) { o.timeout = d }
}

// WithImmediate 添加后立即在后台执行一次。
func WithImmediate() JobOption {
	return func(o *jobOptions) { o.immediate = true }
}

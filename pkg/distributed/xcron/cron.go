package xcron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNilJob 表示任务为 nil。
var ErrNilJob = errors.New("xcron: job cannot be nil")

// JobID 任务标识。
type JobID = cron.EntryID

// Stats 执行统计，可并发读取。
type Stats struct {
	total   atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

// Total 已执行次数（含失败）。
func (s *Stats) Total() int64 { return s.total.Load() }

// Failed 返回错误或 panic 的次数。
func (s *Stats) Failed() int64 { return s.failed.Load() }

// Skipped 因上一次尚未结束而跳过的次数。
func (s *Stats) Skipped() int64 { return s.skipped.Load() }

// Scheduler 定时任务调度器。
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	stats  Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建调度器，默认 5 段表达式与本地时区。
func New(opts ...SchedulerOption) *Scheduler {
	o := defaultSchedulerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(o.location), cron.WithParser(o.parser)),
		logger: o.logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddFunc 按 spec 调度 fn，fn 收到的 context 在超时或 Stop 时取消。
func (s *Scheduler) AddFunc(spec string, fn func(ctx context.Context) error, opts ...JobOption) (JobID, error) {
	if fn == nil {
		return 0, ErrNilJob
	}
	jo := &jobOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(jo)
		}
	}

	j := &job{s: s, fn: fn, opts: jo}
	id, err := s.cron.AddJob(spec, j)
	if err != nil {
		return 0, fmt.Errorf("xcron: add job %q: %w", jo.name, err)
	}
	if jo.immediate {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			j.Run()
		}()
	}
	return id, nil
}

// Remove 移除任务，执行中的不受影响。
func (s *Scheduler) Remove(id JobID) { s.cron.Remove(id) }

// Start 启动调度（非阻塞），重复调用无效果。
func (s *Scheduler) Start() { s.cron.Start() }

// Stop 停止调度，取消执行中任务的 context 并等待它们结束。
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Entries 返回已注册的任务。
func (s *Scheduler) Entries() []cron.Entry { return s.cron.Entries() }

// Stats 返回执行统计。
func (s *Scheduler) Stats() *Stats { return &s.stats }

type job struct {
	s       *Scheduler
	fn      func(ctx context.Context) error
	opts    *jobOptions
	running atomic.Bool
}

// Run 实现 cron.Job。
func (j *job) Run() {
	if !j.running.CompareAndSwap(false, true) {
		j.s.stats.skipped.Add(1)
		j.s.logger.Warn("cron job still running, skipped", slog.String("job", j.opts.name))
		return
	}
	defer j.running.Store(false)

	ctx := j.s.ctx
	if j.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	err := j.call(ctx)
	j.s.stats.total.Add(1)
	if err != nil {
		j.s.stats.failed.Add(1)
		j.s.logger.Error("cron job failed",
			slog.String("job", j.opts.name),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err))
		return
	}
	j.s.logger.Debug("cron job done",
		slog.String("job", j.opts.name),
		slog.Duration("elapsed", time.Since(start)))
}

func (j *job) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xcron: job panic: %v", r)
		}
	}()
	return j.fn(ctx)
}

// Package distributed 提供跨进程协调相关的子包。
//
// 子包列表：
//   - xcron: 定时任务调度，基于 robfig/cron，支持超时、防重叠与立即执行
//
// 分布式锁不在此目录下，凭据刷新的互斥由 xsession 通过 redsync 完成。
package distributed

// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，内置文件轮转和敏感字段脱敏
//   - xmetrics: 统一可观测性接口（指标、追踪），提供 OpenTelemetry 与 Prometheus 实现
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 日志级别可在运行时调整
package observability

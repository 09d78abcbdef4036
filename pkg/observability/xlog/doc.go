// Package xlog 构建 log/slog 日志记录器。
//
// Builder 采用 first-error-wins：第一个配置错误之后的 Set 调用被忽略，由 Build 返回该错误。
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xwechat/app.log", xlog.RotateConfig{MaxSizeMB: 100}).
//		Build()
//	defer cleanup()
//
// 默认开启凭据脱敏：access_token、secret、ticket 等键的值以及 URL 属性中的同名查询参数
// 会被替换为 "***"，见 [RedactKeys]。
//
// Level 实现 encoding.TextUnmarshaler，可直接作为配置字段。
package xlog

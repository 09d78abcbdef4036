// Package xmetrics 提供统一的观测接口（Observer/Span）。
//
// 业务组件只依赖 [Observer]，由调用方决定接入哪种后端：
//
//   - [NoopObserver]：默认，零开销
//   - [NewOTelObserver]：OpenTelemetry trace + metric
//   - [NewPrometheusObserver]：Prometheus 计数器与直方图
//
// 用法：
//
//	ctx, span := xmetrics.Start(ctx, observer, xmetrics.SpanOptions{
//		Component: "xclient",
//		Operation: "call",
//		Kind:      xmetrics.KindClient,
//	})
//	defer func() { span.End(xmetrics.Result{Err: err}) }()
package xmetrics

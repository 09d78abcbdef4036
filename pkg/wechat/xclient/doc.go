// Package xclient 提供微信公众平台 API 的客户端核心。
//
// # 组成
//
//   - [TokenManager]：access_token 与各类 ticket 的获取、缓存与刷新
//   - [Pipeline]：附加凭据、发送请求、规整并分类响应，凭据失效时刷新重试一次
//   - [Classifier]：errcode 到错误类别的映射
//   - [Client]：组合以上部件，并通过 Menu/JSAPI/Misc 等字段暴露接口组
//
// # 凭据
//
// 凭据保存在 xsession.Store 中，键为 {appid}_{purpose}。多个客户端共享同一个
// Store 即共享凭据；Store 同时实现 xsession.Locker 时（如 RedisStore），
// 跨进程的刷新会被串行化，后到者直接采用先到者的结果。
//
// # 错误
//
// 远端与传输失败以 [*ClientError] 返回，可用 errors.Is 配合
// [ErrCredentialExpired]、[ErrRateLimited]、[ErrTransport]、[ErrRemote] 判断类别。
// 只有凭据失效会被自动重试，且仅一次。
package xclient

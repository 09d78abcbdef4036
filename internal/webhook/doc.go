// Package webhook 实现公众号回调服务的 HTTP 层：URL 签名校验、服务器配置时的
// echostr 握手、来源 IP 白名单以及把消息体交给 xmessage.Dispatcher。
package webhook

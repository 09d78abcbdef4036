// Package xnet 提供基于 netipx 的 IP 范围解析与可热替换的来源地址白名单。
//
// 白名单条目可以是单个地址、CIDR 或 "a-b" 形式的闭区间，例如微信
// getcallbackip 接口返回的回调出口地址段。
package xnet

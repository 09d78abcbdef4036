// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: 基于 sonyflake 的分布式 ID 生成
//   - xlru: LRU 缓存，泛型支持、自动 TTL 过期
//   - xnet: IP 范围解析与白名单，基于 net/netip + go4.org/netipx
package util

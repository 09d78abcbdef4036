// Package xlru 提供带 TTL 的泛型 LRU 缓存。
//
// 基于 github.com/hashicorp/golang-lru/v2/expirable，补充了两点：
//
//   - SetIfAbsent：原子的"不存在才写入"，用于回调去重
//   - Close：停止底层库无法通过公开 API 停止的过期清理 goroutine
//
// 零值不可用，必须通过 [New] 创建。所有方法并发安全；Close 之后读返回未命中，写被忽略。
package xlru

// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xsession: 凭据存储，支持内存（ristretto）、Redis 和 etcd 后端，以及基于 redsync 的刷新锁
package storage

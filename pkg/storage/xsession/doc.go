// Package xsession 提供凭据存储（CredentialStore）抽象及其实现。
//
// 凭据存储是 access_token / jsapi_ticket 等短期凭据的共享来源：
// 同一身份的多个客户端实例共享同一个 Store，看到的是一致的当前值。
//
// # 契约
//
//   - Get 在键不存在时返回 [ErrNotFound]
//   - Set 写入空值是空操作，不会创建条目
//   - Set 的 TTL 仅作为后端的建议过期时间，0 表示不过期
//   - Delete 幂等
//
// # 实现
//
//   - [MemoryStore]：进程内缓存，基于 ristretto
//   - [RedisStore]：基于 go-redis，并通过 redsync 实现 [Locker]
//   - [EtcdStore]：基于 etcd 租约
//
// 所有实现可相互替换，行为一致。
package xsession

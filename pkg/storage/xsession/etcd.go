package xsession

import (
	"context"
	"fmt"
	"math"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdClient 是 EtcdStore 依赖的 etcd 操作子集，*clientv3.Client 实现了它。
type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
}

var _ etcdClient = (*clientv3.Client)(nil)

// =============================================================================
// EtcdStore
// =============================================================================

// EtcdStore 基于 etcd 的凭据存储。TTL 通过租约实现，按秒向上取整。
type EtcdStore struct {
	client etcdClient
	prefix string
}

// NewEtcdStore 创建 etcd 存储。
func NewEtcdStore(client *clientv3.Client, opts ...Option) (*EtcdStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return newEtcdStore(client, opts...), nil
}

func newEtcdStore(client etcdClient, opts ...Option) *EtcdStore {
	return &EtcdStore{client: client, prefix: applyOptions(opts).prefix}
}

// Get 实现 Store。
func (s *EtcdStore) Get(ctx context.Context, key string) (string, error) {
	resp, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		return "", fmt.Errorf("xsession: etcd get failed: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return "", ErrNotFound
	}
	return string(resp.Kvs[0].Value), nil
}

// Set 实现 Store。
func (s *EtcdStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if value == "" {
		return nil
	}

	var opts []clientv3.OpOption
	if ttl > 0 {
		seconds := int64(math.Ceil(ttl.Seconds()))
		lease, err := s.client.Grant(ctx, seconds)
		if err != nil {
			return fmt.Errorf("xsession: etcd grant lease failed: %w", err)
		}
		opts = append(opts, clientv3.WithLease(lease.ID))
	}

	if _, err := s.client.Put(ctx, s.prefix+key, value, opts...); err != nil {
		return fmt.Errorf("xsession: etcd put failed: %w", err)
	}
	return nil
}

// Delete 实现 Store。
func (s *EtcdStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Delete(ctx, s.prefix+key); err != nil {
		return fmt.Errorf("xsession: etcd delete failed: %w", err)
	}
	return nil
}

var _ Store = (*EtcdStore)(nil)

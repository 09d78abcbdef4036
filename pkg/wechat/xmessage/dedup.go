package xmessage

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xwechat/pkg/util/xlru"
)

// 去重窗口默认值。微信在 5 秒内未收到响应会重试，最多 3 次。
const (
	DefaultDedupSize = 4096
	DefaultDedupTTL  = time.Minute
)

// Deduplicator 过滤微信的重复推送。
//
// 普通消息按 MsgId 去重；没有 MsgId 的按 FromUserName + CreateTime + MsgType + Event 去重。
// 既没有 MsgId 也没有发送者和时间的推送无法识别重复，总是放行。
// 键以 xxhash 摘要保存，只占固定大小。
type Deduplicator struct {
	seen *xlru.Cache[uint64, struct{}]
}

// NewDeduplicator 创建去重器。size、ttl 非正时使用默认值。
func NewDeduplicator(size int, ttl time.Duration) (*Deduplicator, error) {
	if size <= 0 {
		size = DefaultDedupSize
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	cache, err := xlru.New[uint64, struct{}](xlru.Config{Size: size, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &Deduplicator{seen: cache}, nil
}

// Seen 记录消息并返回此前是否已经见过。
func (d *Deduplicator) Seen(msg Message) bool {
	key, ok := dedupKey(msg.Header())
	if !ok {
		return false
	}
	return !d.seen.SetIfAbsent(key, struct{}{})
}

// Forget 移除消息记录，处理失败时调用以便微信重试能再次进入。
func (d *Deduplicator) Forget(msg Message) {
	if key, ok := dedupKey(msg.Header()); ok {
		d.seen.Delete(key)
	}
}

// Close 释放后台资源。
func (d *Deduplicator) Close() {
	d.seen.Close()
}

func dedupKey(h *Base) (uint64, bool) {
	if h.MsgID != 0 {
		return xxhash.Sum64String("id:" + strconv.FormatInt(h.MsgID, 10)), true
	}
	if h.FromUserName == "" && h.CreateTime == 0 {
		return 0, false
	}
	return xxhash.Sum64String(h.FromUserName + ":" + strconv.FormatInt(h.CreateTime, 10) + ":" + h.MsgType + ":" + h.Event), true
}

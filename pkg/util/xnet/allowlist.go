package xnet

import (
	"net/netip"
	"sync/atomic"

	"go4.org/netipx"
)

// Allowlist 来源地址白名单，可在运行中整体替换。零值拒绝一切。
type Allowlist struct {
	set atomic.Pointer[netipx.IPSet]
}

// NewAllowlist 用 entries 创建白名单。
func NewAllowlist(entries []string) (*Allowlist, error) {
	a := new(Allowlist)
	if err := a.Replace(entries); err != nil {
		return nil, err
	}
	return a, nil
}

// Replace 用新的条目替换白名单。解析失败时保留原内容。
func (a *Allowlist) Replace(entries []string) error {
	set, err := ParseRanges(entries)
	if err != nil {
		return err
	}
	a.set.Store(set)
	return nil
}

// Contains 判断地址是否在白名单内，IPv4-mapped IPv6 按 IPv4 处理。
func (a *Allowlist) Contains(addr netip.Addr) bool {
	set := a.set.Load()
	if set == nil || !addr.IsValid() {
		return false
	}
	return set.Contains(addr.Unmap())
}

// ContainsString 解析字符串后判断，无法解析时返回 false。
func (a *Allowlist) ContainsString(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return a.Contains(addr)
}

// Ranges 返回当前白名单的合并区间。
func (a *Allowlist) Ranges() []netipx.IPRange {
	set := a.set.Load()
	if set == nil {
		return nil
	}
	return set.Ranges()
}

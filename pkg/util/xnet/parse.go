package xnet

import (
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// ParseRange 解析单 IP、CIDR 或 "start-end"。首尾空白会被去除。
//
// 含 IPv6 zone 的输入被拒绝：IPSet 会丢弃 zone，匹配结果将与预期不符。
func ParseRange(s string) (netipx.IPRange, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "%") {
		return netipx.IPRange{}, fmt.Errorf("%w: zone not supported: %s", ErrInvalidRange, s)
	}

	if start, end, ok := strings.Cut(s, "-"); ok {
		from, err1 := netip.ParseAddr(strings.TrimSpace(start))
		to, err2 := netip.ParseAddr(strings.TrimSpace(end))
		if err1 != nil || err2 != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, s)
		}
		r := netipx.IPRangeFrom(from.Unmap(), to.Unmap())
		if !r.IsValid() {
			return netipx.IPRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, s)
		}
		return r, nil
	}

	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: invalid CIDR: %w", ErrInvalidRange, err)
		}
		return netipx.RangeOfPrefix(prefix.Masked()), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netipx.IPRange{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	addr = addr.Unmap()
	return netipx.IPRangeFrom(addr, addr), nil
}

// ParseRanges 解析并合并为 IPSet，空输入得到空集合。
func ParseRanges(entries []string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, s := range entries {
		r, err := ParseRange(s)
		if err != nil {
			return nil, fmt.Errorf("parse range %q: %w", s, err)
		}
		b.AddRange(r)
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("xnet: build IPSet: %w", err)
	}
	return set, nil
}

package xclient

import (
	"context"
)

// Misc 杂项接口。
type Misc struct {
	p *Pipeline
}

// CallbackIPs 返回微信回调服务器的 IP 地址（段）列表。
func (m *Misc) CallbackIPs(ctx context.Context) ([]string, error) {
	res, err := m.p.Call(ctx, &Request{
		URL: PathCallbackIP,
		PostProcess: func(data map[string]any) (any, error) {
			list, ok := data["ip_list"].([]any)
			if !ok {
				return nil, ErrMalformedIPList
			}
			ips := make([]string, 0, len(list))
			for _, v := range list {
				if s, ok := v.(string); ok {
					ips = append(ips, s)
				}
			}
			return ips, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Value.([]string), nil //nolint:forcetypeassert // PostProcess 固定返回 []string
}

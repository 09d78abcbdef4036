package xclient

import (
	"context"
	"errors"
)

// Menu 自定义菜单接口。
type Menu struct {
	p *Pipeline
}

// Get 查询自定义菜单。公众号未创建菜单（46003）时返回 nil, nil。
func (m *Menu) Get(ctx context.Context) (map[string]any, error) {
	res, err := m.p.Get(ctx, PathMenuGet, nil)
	if err != nil {
		var ce *ClientError
		if errors.As(err, &ce) && ce.Code == CodeMenuNotFound {
			return nil, nil
		}
		return nil, err
	}
	return res.Data, nil
}

// Create 创建自定义菜单。menu 形如 {"button": [...]}。
func (m *Menu) Create(ctx context.Context, menu any) error {
	_, err := m.p.Post(ctx, PathMenuCreate, menu)
	return err
}

// Delete 删除自定义菜单。
func (m *Menu) Delete(ctx context.Context) error {
	_, err := m.p.Get(ctx, PathMenuDelete, nil)
	return err
}

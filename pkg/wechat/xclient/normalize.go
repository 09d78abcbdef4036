package xclient

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Normalizer 在分类前就地改写已解码的 JSON 响应。
//
// 部分接口族把状态放在嵌套字段里（如 base_resp），
// 通过 Normalizer 把它们提到顶层后再统一读取 errcode/errmsg。
type Normalizer func(data map[string]any)

// FlattenBaseResp 把 base_resp 中的字段提升到顶层。
func FlattenBaseResp(data map[string]any) {
	flattenField(data, "base_resp")
}

// FlattenNested 返回把指定嵌套字段提升到顶层的 Normalizer。
// 嵌套字段中的同名键会覆盖顶层值。
func FlattenNested(field string) Normalizer {
	return func(data map[string]any) {
		flattenField(data, field)
	}
}

// RenameStatus 返回把自定义状态字段映射为 errcode/errmsg 的 Normalizer。
// 适用于使用 ret/err_msg 之类命名的接口族；顶层已有 errcode 时不覆盖。
func RenameStatus(codeField, msgField string) Normalizer {
	return func(data map[string]any) {
		if _, ok := data["errcode"]; ok {
			return
		}
		if v, ok := data[codeField]; ok {
			data["errcode"] = v
		}
		if v, ok := data[msgField]; ok {
			data["errmsg"] = v
		}
	}
}

func flattenField(data map[string]any, field string) {
	nested, ok := data[field].(map[string]any)
	if !ok {
		return
	}
	delete(data, field)
	maps.Copy(data, nested)
}

// readStatus 读取 errcode/errmsg，并把 errcode 统一写回为 int。
// 缺失的 errcode 视为 0；存在但无法解析时返回 ErrMalformedErrcode，原值保持不变。
func readStatus(data map[string]any) (int, string, error) {
	msg, _ := data["errmsg"].(string)
	raw, ok := data["errcode"]
	if !ok {
		return CodeOK, msg, nil
	}

	var (
		code int
		err  error
	)
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, msg, ErrMalformedErrcode
		}
		code = int(v)
	case int:
		code = v
	case int64:
		code = int(v)
	case json.Number:
		var n int64
		n, err = v.Int64()
		code = int(n)
	case string:
		code, err = strconv.Atoi(strings.TrimSpace(v))
	default:
		err = ErrMalformedErrcode
	}
	if err != nil {
		return 0, msg, ErrMalformedErrcode
	}
	data["errcode"] = code
	return code, msg, nil
}

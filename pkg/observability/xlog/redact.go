package xlog

import (
	"log/slog"
	"net/url"
	"strings"
)

const redacted = "***"

// RedactKeys 默认脱敏的属性键与 URL 查询参数。
var RedactKeys = []string{"access_token", "secret", "appsecret", "ticket", "jsapi_ticket", "token", "echostr"}

// redactor 返回把敏感键替换为 *** 的 ReplaceAttr 函数。
func redactor(keys []string, next func([]string, slog.Attr) slog.Attr) func([]string, slog.Attr) slog.Attr {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return func(groups []string, a slog.Attr) slog.Attr {
		if _, ok := set[strings.ToLower(a.Key)]; ok {
			a = slog.String(a.Key, redacted)
		} else if a.Value.Kind() == slog.KindString && strings.Contains(a.Value.String(), "?") {
			a.Value = slog.StringValue(redactQuery(a.Value.String(), set))
		}
		if next != nil {
			return next(groups, a)
		}
		return a
	}
}

// redactQuery 替换 URL 中敏感查询参数的值；无法解析时原样返回。
func redactQuery(s string, keys map[string]struct{}) string {
	u, err := url.Parse(s)
	if err != nil || u.RawQuery == "" {
		return s
	}
	q := u.Query()
	changed := false
	for k := range q {
		if _, ok := keys[strings.ToLower(k)]; ok {
			q.Set(k, redacted)
			changed = true
		}
	}
	if !changed {
		return s
	}
	u.RawQuery = q.Encode()
	return u.String()
}

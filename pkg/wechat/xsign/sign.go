package xsign

import (
	"crypto/sha1" //nolint:gosec // 平台协议规定使用 SHA1
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidSignature 表示签名校验不通过。
var ErrInvalidSignature = errors.New("xsign: invalid signature")

// Field 参与签名的一个参数。
type Field struct {
	Name  string
	Value string
}

// F 创建签名参数。
func F(name, value string) Field {
	return Field{Name: name, Value: value}
}

// Sign 按参数名字节序排序后拼接 name=value，以 & 连接，返回 SHA1 小写十六进制。
// 输入顺序不影响结果，入参切片不会被修改。
func Sign(fields []Field) string {
	sorted := slices.Clone(fields)
	slices.SortStableFunc(sorted, func(a, b Field) int {
		return strings.Compare(a.Name, b.Name)
	})

	var b strings.Builder
	for i, f := range sorted {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return digest(b.String())
}

// SignValues 对参数值排序后直接拼接（无分隔符），返回 SHA1 小写十六进制。
func SignValues(values ...string) string {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return digest(strings.Join(sorted, ""))
}

// Verify 常量时间比较两个签名，忽略十六进制大小写。
func Verify(expected, actual string) bool {
	e := strings.ToLower(expected)
	a := strings.ToLower(actual)
	return subtle.ConstantTimeCompare([]byte(e), []byte(a)) == 1
}

// CheckSignature 校验回调 URL 上的 signature 参数。
// 签名由服务器配置的 token 与 timestamp、nonce 计算得出。
func CheckSignature(token, signature, timestamp, nonce string) error {
	if signature == "" || !Verify(SignValues(token, timestamp, nonce), signature) {
		return ErrInvalidSignature
	}
	return nil
}

// JSAPISignature 计算 wx.config 使用的 JS-SDK 签名。
// url 为调用 JS 接口页面的完整 URL（不含 # 及其后部分）。
func JSAPISignature(nonceStr, ticket string, timestamp int64, url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		url = url[:i]
	}
	return Sign([]Field{
		F("noncestr", nonceStr),
		F("jsapi_ticket", ticket),
		F("timestamp", strconv.FormatInt(timestamp, 10)),
		F("url", url),
	})
}

// CardSignature 计算添加卡券（wx.addCard）使用的签名。
// 空值不参与签名。
func CardSignature(cardTicket string, values ...string) string {
	parts := make([]string, 0, len(values)+1)
	parts = append(parts, cardTicket)
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return SignValues(parts...)
}

// NonceStr 返回 16 位随机字符串。
func NonceStr() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:16]
}

func digest(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec // 平台协议规定使用 SHA1
	return hex.EncodeToString(sum[:])
}

// Package xsign 实现微信开放平台使用的两类 SHA1 参数签名。
//
// 两类签名共享"排序后摘要"算法，区别只在于参与签名的内容：
//
//   - [Sign]：按参数名排序，拼接为 name=value&name=value 后做 SHA1，
//     用于 JS-SDK（wx.config）签名
//   - [SignValues]：只对参数值排序并直接拼接后做 SHA1，
//     用于回调 URL 校验（token/timestamp/nonce）和添加卡券签名
//
// 摘要统一输出为小写十六进制。校验使用常量时间比较，失败返回错误值而非 panic。
package xsign

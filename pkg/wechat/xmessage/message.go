package xmessage

import (
	"strconv"
	"strings"
	"time"
)

// 消息类型。
const (
	TypeText       = "text"
	TypeImage      = "image"
	TypeVoice      = "voice"
	TypeVideo      = "video"
	TypeShortVideo = "shortvideo"
	TypeLocation   = "location"
	TypeLink       = "link"
	TypeEvent      = "event"
)

// 事件类型。
const (
	EventSubscribe             = "subscribe"
	EventUnsubscribe           = "unsubscribe"
	EventSubscribeScan         = "subscribe_scan"
	EventScan                  = "scan"
	EventLocation              = "location"
	EventClick                 = "click"
	EventView                  = "view"
	EventTemplateSendJobFinish = "templatesendjobfinish"
)

// qrScenePrefix 未关注用户扫带参二维码时 EventKey 的前缀。
const qrScenePrefix = "qrscene_"

// Message 一条回调消息或事件。
type Message interface {
	// Type 小写的 MsgType，事件统一为 "event"。
	Type() string
	// Header 公共字段。
	Header() *Base
}

// Event 事件类消息。
type Event interface {
	Message
	// EventType 小写的事件类型；带参二维码关注为 "subscribe_scan"。
	EventType() string
}

// Base 所有消息共有的字段。
type Base struct {
	ToUserName   string
	FromUserName string
	CreateTime   int64
	MsgID        int64
	MsgType      string
	// Event 原始的小写事件名，非事件消息为空。
	Event string
	// Raw 解析得到的全部字段。
	Raw map[string]string
}

// Header 实现 Message。
func (b *Base) Header() *Base { return b }

// Time 消息创建时间。
func (b *Base) Time() time.Time { return time.Unix(b.CreateTime, 0) }

func newBase(raw map[string]string) Base {
	msgID := raw["MsgId"]
	if msgID == "" {
		// 模板消息发送结果事件使用 MsgID
		msgID = raw["MsgID"]
	}
	return Base{
		ToUserName:   raw["ToUserName"],
		FromUserName: raw["FromUserName"],
		CreateTime:   parseInt(raw["CreateTime"]),
		MsgID:        parseInt(msgID),
		MsgType:      strings.ToLower(raw["MsgType"]),
		Event:        strings.ToLower(raw["Event"]),
		Raw:          raw,
	}
}

// =============================================================================
// 普通消息
// =============================================================================

// TextMessage 文本消息。
type TextMessage struct {
	Base
	Content string
}

func (*TextMessage) Type() string { return TypeText }

// ImageMessage 图片消息。
type ImageMessage struct {
	Base
	PicURL  string
	MediaID string
}

func (*ImageMessage) Type() string { return TypeImage }

// VoiceMessage 语音消息。开通语音识别后 Recognition 为识别结果。
type VoiceMessage struct {
	Base
	MediaID     string
	Format      string
	Recognition string
}

func (*VoiceMessage) Type() string { return TypeVoice }

// VideoMessage 视频消息。
type VideoMessage struct {
	Base
	MediaID      string
	ThumbMediaID string
}

func (*VideoMessage) Type() string { return TypeVideo }

// ShortVideoMessage 小视频消息。
type ShortVideoMessage struct {
	Base
	MediaID      string
	ThumbMediaID string
}

func (*ShortVideoMessage) Type() string { return TypeShortVideo }

// LocationMessage 地理位置消息。
type LocationMessage struct {
	Base
	LocationX float64
	LocationY float64
	Scale     int64
	Label     string
}

func (*LocationMessage) Type() string { return TypeLocation }

// LinkMessage 链接消息。
type LinkMessage struct {
	Base
	Title       string
	Description string
	URL         string
}

func (*LinkMessage) Type() string { return TypeLink }

// =============================================================================
// 事件
// =============================================================================

// SubscribeEvent 关注事件。
type SubscribeEvent struct {
	Base
}

func (*SubscribeEvent) Type() string      { return TypeEvent }
func (*SubscribeEvent) EventType() string { return EventSubscribe }

// UnsubscribeEvent 取消关注事件。
type UnsubscribeEvent struct {
	Base
}

func (*UnsubscribeEvent) Type() string      { return TypeEvent }
func (*UnsubscribeEvent) EventType() string { return EventUnsubscribe }

// SubscribeScanEvent 未关注用户扫描带参二维码后关注。SceneID 已去掉 qrscene_ 前缀。
type SubscribeScanEvent struct {
	Base
	SceneID string
	Ticket  string
}

func (*SubscribeScanEvent) Type() string      { return TypeEvent }
func (*SubscribeScanEvent) EventType() string { return EventSubscribeScan }

// ScanEvent 已关注用户扫描带参二维码。
type ScanEvent struct {
	Base
	SceneID string
	Ticket  string
}

func (*ScanEvent) Type() string      { return TypeEvent }
func (*ScanEvent) EventType() string { return EventScan }

// LocationEvent 上报地理位置事件。
type LocationEvent struct {
	Base
	Latitude  float64
	Longitude float64
	Precision float64
}

func (*LocationEvent) Type() string      { return TypeEvent }
func (*LocationEvent) EventType() string { return EventLocation }

// ClickEvent 点击菜单拉取消息事件。
type ClickEvent struct {
	Base
	Key string
}

func (*ClickEvent) Type() string      { return TypeEvent }
func (*ClickEvent) EventType() string { return EventClick }

// ViewEvent 点击菜单跳转链接事件。
type ViewEvent struct {
	Base
	URL    string
	MenuID string
}

func (*ViewEvent) Type() string      { return TypeEvent }
func (*ViewEvent) EventType() string { return EventView }

// TemplateSendJobFinishEvent 模板消息发送结果。Status 如 "success"、"failed:user block"。
type TemplateSendJobFinishEvent struct {
	Base
	Status string
}

func (*TemplateSendJobFinishEvent) Type() string      { return TypeEvent }
func (*TemplateSendJobFinishEvent) EventType() string { return EventTemplateSendJobFinish }

// =============================================================================
// Unknown
// =============================================================================

// Unknown 未注册类型的消息，字段保留在 Raw 中。
type Unknown struct {
	Base
}

// Type 返回原始的 MsgType。
func (u *Unknown) Type() string { return u.MsgType }

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64) //nolint:errcheck // 缺失或非法按 0 处理
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64) //nolint:errcheck // 缺失或非法按 0 处理
	return f
}

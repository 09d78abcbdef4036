package xmessage

import (
	"encoding/xml"
	"fmt"
	"time"
)

// maxArticles 单条图文回复的文章上限。
const maxArticles = 10

// emptyReply 被动回复 "success" 表示不回复，微信不会重试。
var emptyReply = []byte("success")

// Reply 被动回复。
type Reply interface {
	Render() ([]byte, error)
}

// cdata 以 CDATA 输出的文本。
type cdata struct {
	Value string `xml:",cdata"`
}

// replyHeader 回复的公共字段。
type replyHeader struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   cdata
	FromUserName cdata
	CreateTime   int64
	MsgType      cdata
}

// ReplyTarget 回复的收发双方与时间。
type ReplyTarget struct {
	// ToUserName 接收方，即消息的 FromUserName。
	ToUserName string
	// FromUserName 发送方，即公众号原始 ID。
	FromUserName string
	CreateTime   int64
}

// TargetOf 根据收到的消息生成回复方向：收发双方互换，时间取当前时间。
func TargetOf(msg Message) ReplyTarget {
	h := msg.Header()
	return ReplyTarget{
		ToUserName:   h.FromUserName,
		FromUserName: h.ToUserName,
		CreateTime:   time.Now().Unix(),
	}
}

func (t ReplyTarget) header(msgType string) replyHeader {
	return replyHeader{
		ToUserName:   cdata{t.ToUserName},
		FromUserName: cdata{t.FromUserName},
		CreateTime:   t.CreateTime,
		MsgType:      cdata{msgType},
	}
}

// TextReply 文本回复。
type TextReply struct {
	ReplyTarget
	Content string
}

// NewTextReply 创建对 msg 的文本回复。
func NewTextReply(msg Message, content string) *TextReply {
	return &TextReply{ReplyTarget: TargetOf(msg), Content: content}
}

// Render 实现 Reply。
func (r *TextReply) Render() ([]byte, error) {
	return xml.Marshal(struct {
		replyHeader
		Content cdata
	}{r.header("text"), cdata{r.Content}})
}

// Article 图文回复中的一篇文章。
type Article struct {
	Title       string
	Description string
	PicURL      string
	URL         string
}

// NewsReply 图文回复，最多 10 篇。
type NewsReply struct {
	ReplyTarget
	Articles []Article
}

// NewNewsReply 创建对 msg 的图文回复。
func NewNewsReply(msg Message, articles ...Article) *NewsReply {
	return &NewsReply{ReplyTarget: TargetOf(msg), Articles: articles}
}

type articleXML struct {
	Title       cdata
	Description cdata
	PicURL      cdata `xml:"PicUrl"`
	URL         cdata `xml:"Url"`
}

// Render 实现 Reply。
func (r *NewsReply) Render() ([]byte, error) {
	switch n := len(r.Articles); {
	case n == 0:
		return nil, ErrNoArticles
	case n > maxArticles:
		return nil, fmt.Errorf("%w: got %d", ErrTooManyArticles, n)
	}

	items := make([]articleXML, len(r.Articles))
	for i, a := range r.Articles {
		items[i] = articleXML{cdata{a.Title}, cdata{a.Description}, cdata{a.PicURL}, cdata{a.URL}}
	}
	return xml.Marshal(struct {
		replyHeader
		ArticleCount int
		Articles     []articleXML `xml:"Articles>item"`
	}{r.header("news"), len(items), items})
}

// EmptyReply 不回复任何内容。
type EmptyReply struct{}

// Render 返回 "success"。
func (EmptyReply) Render() ([]byte, error) {
	return emptyReply, nil
}

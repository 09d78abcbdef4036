package xmessage

import "errors"

var (
	// ErrEmptyBody 表示消息体为空。
	ErrEmptyBody = errors.New("xmessage: empty body")

	// ErrNotXMLRoot 表示根元素不是 <xml>。
	ErrNotXMLRoot = errors.New("xmessage: root element is not <xml>")

	// ErrMalformed 表示 XML 格式错误。
	ErrMalformed = errors.New("xmessage: malformed xml")

	// ErrTooManyArticles 表示图文回复超过 10 条。
	ErrTooManyArticles = errors.New("xmessage: news reply allows at most 10 articles")

	// ErrNoArticles 表示图文回复没有任何文章。
	ErrNoArticles = errors.New("xmessage: news reply requires at least 1 article")
)

package xmessage

import (
	"strings"
	"sync"
)

// Constructor 从扁平字段构造具体消息。缺失的字段取零值。
type Constructor func(raw map[string]string) Message

// Registry 类型到构造函数的映射，并发安全。
type Registry struct {
	mu       sync.RWMutex
	messages map[string]Constructor
	events   map[string]Constructor
}

// NewRegistry 返回包含内置类型的注册表。
func NewRegistry() *Registry {
	return &Registry{
		messages: map[string]Constructor{
			TypeText: func(raw map[string]string) Message {
				return &TextMessage{Base: newBase(raw), Content: raw["Content"]}
			},
			TypeImage: func(raw map[string]string) Message {
				return &ImageMessage{Base: newBase(raw), PicURL: raw["PicUrl"], MediaID: raw["MediaId"]}
			},
			TypeVoice: func(raw map[string]string) Message {
				return &VoiceMessage{Base: newBase(raw), MediaID: raw["MediaId"], Format: raw["Format"], Recognition: raw["Recognition"]}
			},
			TypeVideo: func(raw map[string]string) Message {
				return &VideoMessage{Base: newBase(raw), MediaID: raw["MediaId"], ThumbMediaID: raw["ThumbMediaId"]}
			},
			TypeShortVideo: func(raw map[string]string) Message {
				return &ShortVideoMessage{Base: newBase(raw), MediaID: raw["MediaId"], ThumbMediaID: raw["ThumbMediaId"]}
			},
			TypeLocation: func(raw map[string]string) Message {
				return &LocationMessage{
					Base:      newBase(raw),
					LocationX: parseFloat(raw["Location_X"]),
					LocationY: parseFloat(raw["Location_Y"]),
					Scale:     parseInt(raw["Scale"]),
					Label:     raw["Label"],
				}
			},
			TypeLink: func(raw map[string]string) Message {
				return &LinkMessage{Base: newBase(raw), Title: raw["Title"], Description: raw["Description"], URL: raw["Url"]}
			},
		},
		events: map[string]Constructor{
			EventSubscribe: func(raw map[string]string) Message {
				return &SubscribeEvent{Base: newBase(raw)}
			},
			EventUnsubscribe: func(raw map[string]string) Message {
				return &UnsubscribeEvent{Base: newBase(raw)}
			},
			EventSubscribeScan: func(raw map[string]string) Message {
				return &SubscribeScanEvent{
					Base:    newBase(raw),
					SceneID: strings.TrimPrefix(raw["EventKey"], qrScenePrefix),
					Ticket:  raw["Ticket"],
				}
			},
			EventScan: func(raw map[string]string) Message {
				return &ScanEvent{Base: newBase(raw), SceneID: raw["EventKey"], Ticket: raw["Ticket"]}
			},
			EventLocation: func(raw map[string]string) Message {
				return &LocationEvent{
					Base:      newBase(raw),
					Latitude:  parseFloat(raw["Latitude"]),
					Longitude: parseFloat(raw["Longitude"]),
					Precision: parseFloat(raw["Precision"]),
				}
			},
			EventClick: func(raw map[string]string) Message {
				return &ClickEvent{Base: newBase(raw), Key: raw["EventKey"]}
			},
			EventView: func(raw map[string]string) Message {
				return &ViewEvent{Base: newBase(raw), URL: raw["EventKey"], MenuID: raw["MenuId"]}
			},
			EventTemplateSendJobFinish: func(raw map[string]string) Message {
				return &TemplateSendJobFinishEvent{Base: newBase(raw), Status: raw["Status"]}
			},
		},
	}
}

// RegisterMessage 注册或覆盖一种消息类型。类型名大小写不敏感。
func (r *Registry) RegisterMessage(msgType string, c Constructor) {
	r.mu.Lock()
	r.messages[strings.ToLower(msgType)] = c
	r.mu.Unlock()
}

// RegisterEvent 注册或覆盖一种事件类型。事件名大小写不敏感。
func (r *Registry) RegisterEvent(event string, c Constructor) {
	r.mu.Lock()
	r.events[strings.ToLower(event)] = c
	r.mu.Unlock()
}

// Parse 解析 XML 并构造具体消息。只有 XML 本身无效时返回错误。
func (r *Registry) Parse(raw []byte) (Message, error) {
	fields, err := ParseMap(raw)
	if err != nil {
		return nil, err
	}
	return r.FromFields(fields), nil
}

// FromFields 用已解码的字段构造消息，未注册的类型返回 *Unknown。
func (r *Registry) FromFields(fields map[string]string) Message {
	msgType := strings.ToLower(fields["MsgType"])

	r.mu.RLock()
	var c Constructor
	if msgType == TypeEvent {
		event := strings.ToLower(fields["Event"])
		if event == EventSubscribe && strings.HasPrefix(fields["EventKey"], qrScenePrefix) {
			event = EventSubscribeScan
		}
		c = r.events[event]
	} else {
		c = r.messages[msgType]
	}
	r.mu.RUnlock()

	if c == nil {
		return &Unknown{Base: newBase(fields)}
	}
	if msg := c(fields); msg != nil {
		return msg
	}
	return &Unknown{Base: newBase(fields)}
}

var defaultRegistry = NewRegistry()

// Parse 使用内置注册表解析消息。
func Parse(raw []byte) (Message, error) {
	return defaultRegistry.Parse(raw)
}

package xmessage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/omeyang/xwechat/pkg/observability/xmetrics"
)

// 观测名称。
const (
	MetricsComponent  = "xmessage"
	MetricsOpDispatch = "dispatch"

	MetricsAttrMsgType   = "wechat.msg_type"
	MetricsAttrEvent     = "wechat.event"
	MetricsAttrDuplicate = "wechat.duplicate"
)

// Handler 处理一条消息，返回被动回复。返回 nil 回复等同于 EmptyReply。
type Handler interface {
	Handle(ctx context.Context, msg Message) (Reply, error)
}

// HandlerFunc 函数适配器。
type HandlerFunc func(ctx context.Context, msg Message) (Reply, error)

// Handle 实现 Handler。
func (f HandlerFunc) Handle(ctx context.Context, msg Message) (Reply, error) {
	return f(ctx, msg)
}

// Dispatcher 解析回调并路由到对应的 Handler。
//
// 路由键为 "text"、"image" 等消息类型，或 "event:subscribe" 之类的事件类型；
// 都未命中时交给默认 Handler，没有默认 Handler 则回复 EmptyReply。
type Dispatcher struct {
	registry *Registry
	dedup    *Deduplicator
	logger   *slog.Logger
	observer xmetrics.Observer

	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// DispatcherOption Dispatcher 配置函数。
type DispatcherOption func(*Dispatcher)

// WithRegistry 使用自定义注册表。
func WithRegistry(r *Registry) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithDeduplicator 启用重复推送过滤。重复消息直接回复 EmptyReply，不调用 Handler。
func WithDeduplicator(dd *Deduplicator) DispatcherOption {
	return func(d *Dispatcher) { d.dedup = dd }
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver 设置观测后端。
func WithObserver(o xmetrics.Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// NewDispatcher 创建分发器。
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: defaultRegistry,
		logger:   slog.Default(),
		observer: xmetrics.NoopObserver{},
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Registry 返回使用的注册表。
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// HandleMessage 为消息类型注册 Handler。
func (d *Dispatcher) HandleMessage(msgType string, h Handler) {
	d.setHandler(strings.ToLower(msgType), h)
}

// HandleEvent 为事件类型注册 Handler。
func (d *Dispatcher) HandleEvent(event string, h Handler) {
	d.setHandler(eventRoute(strings.ToLower(event)), h)
}

// HandleDefault 设置未命中任何路由时的 Handler。
func (d *Dispatcher) HandleDefault(h Handler) {
	d.mu.Lock()
	d.fallback = h
	d.mu.Unlock()
}

func (d *Dispatcher) setHandler(route string, h Handler) {
	d.mu.Lock()
	d.handlers[route] = h
	d.mu.Unlock()
}

// Dispatch 解析 raw 并调用对应的 Handler，返回渲染好的回复体。
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) ([]byte, error) {
	msg, err := d.registry.Parse(raw)
	if err != nil {
		return nil, err
	}
	reply, err := d.DispatchMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	return reply.Render()
}

// DispatchMessage 路由已解析的消息。
func (d *Dispatcher) DispatchMessage(ctx context.Context, msg Message) (reply Reply, err error) {
	route := routeOf(msg)
	ctx, span := xmetrics.Start(ctx, d.observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: MetricsOpDispatch,
		Kind:      xmetrics.KindServer,
		Attrs: []xmetrics.Attr{
			xmetrics.String(MetricsAttrMsgType, msg.Type()),
			xmetrics.String(MetricsAttrEvent, msg.Header().Event),
		},
	})
	duplicate := false
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Bool(MetricsAttrDuplicate, duplicate)}})
	}()

	if d.dedup != nil && d.dedup.Seen(msg) {
		duplicate = true
		d.logger.Debug("xmessage: duplicate delivery dropped",
			slog.String("route", route),
			slog.String("from", msg.Header().FromUserName),
			slog.Int64("msg_id", msg.Header().MsgID),
		)
		return EmptyReply{}, nil
	}

	h := d.handlerFor(route)
	if h == nil {
		return EmptyReply{}, nil
	}

	reply, err = h.Handle(ctx, msg)
	if err != nil {
		if d.dedup != nil {
			d.dedup.Forget(msg)
		}
		return nil, fmt.Errorf("xmessage: handle %s: %w", route, err)
	}
	if reply == nil {
		reply = EmptyReply{}
	}
	return reply, nil
}

func (d *Dispatcher) handlerFor(route string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if h, ok := d.handlers[route]; ok {
		return h
	}
	return d.fallback
}

func routeOf(msg Message) string {
	if ev, ok := msg.(Event); ok {
		return eventRoute(ev.EventType())
	}
	if msg.Type() == TypeEvent {
		return eventRoute(msg.Header().Event)
	}
	return msg.Type()
}

func eventRoute(event string) string {
	return TypeEvent + ":" + event
}

// Package xmessage 解析公众号回调推送的 XML 消息并分发给处理函数。
//
// 解析分两步：[ParseMap] 把 <xml> 根元素下的直接子元素展开为扁平映射，
// [Registry] 再根据 MsgType（事件还要看 Event）选择构造函数得到具体类型。
// 未注册的类型返回 [*Unknown]，不视为错误。
//
//	msg, err := xmessage.Parse(body)
//	switch m := msg.(type) {
//	case *xmessage.TextMessage:
//		reply := xmessage.NewTextReply(m, "收到："+m.Content)
//	case *xmessage.SubscribeEvent:
//		...
//	}
//
// [Dispatcher] 在此基础上提供按类型路由、重复推送过滤（[Deduplicator]）与观测。
package xmessage

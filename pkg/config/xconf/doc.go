// Package xconf 加载 xwechat 的 yaml/json 配置文件。
//
// 配置通过 koanf 解析为 [Settings]，字段使用 koanf 标签，时长写作 "10s"、"2m" 等形式：
//
//	app:
//	  appid: wx1234567890
//	  secret: ${APP_SECRET}
//	store:
//	  driver: redis
//	  redis:
//	    addr: 127.0.0.1:6379
//	log:
//	  level: info
//	  format: json
//
// [Open] 从文件加载并记住路径，可调用 Reload 或 [Watch] 热更新；[Parse] 直接解析字节数据，
// 适用于 ConfigMap 挂载内容或测试。
//
// 字符串中的 ${NAME} 在解析前按环境变量展开，未设置的变量展开为空串。
package xconf

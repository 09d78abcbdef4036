package xclient

// 观测组件与操作名。
const (
	MetricsComponent = "xclient"

	MetricsOpCall         = "call"
	MetricsOpGetToken     = "get_token"
	MetricsOpRefreshToken = "refresh_token"

	MetricsAttrPath    = "wechat.path"
	MetricsAttrMethod  = "http.method"
	MetricsAttrPurpose = "wechat.purpose"
	MetricsAttrAttempt = "wechat.attempt"
	MetricsAttrCode    = "wechat.errcode"
)

package xclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/omeyang/xwechat/pkg/wechat/xsign"
)

// getticket 接口的 type 参数。
const (
	TicketTypeJSAPI = "jsapi"
	TicketTypeCard  = "wx_card"
)

// JSConfig 网页调用 wx.config 所需的参数。
type JSConfig struct {
	AppID     string `json:"appId"`
	Timestamp int64  `json:"timestamp"`
	NonceStr  string `json:"nonceStr"`
	Signature string `json:"signature"`
}

// CardParams 调用 chooseCard/addCard 所需的签名参数。
type CardParams struct {
	CardID    string `json:"cardId,omitempty"`
	Code      string `json:"code,omitempty"`
	OpenID    string `json:"openid,omitempty"`
	Timestamp int64  `json:"timestamp"`
	NonceStr  string `json:"nonceStr"`
	Signature string `json:"signature"`
}

// JSAPI 网页 JS-SDK 相关接口。ticket 与 access_token 共用同一套凭据管理。
type JSAPI struct {
	appID string
	p     *Pipeline

	now   func() time.Time
	nonce func() string
}

func newJSAPI(appID string, p *Pipeline) *JSAPI {
	j := &JSAPI{appID: appID, p: p, now: time.Now, nonce: xsign.NonceStr}
	p.tokens.Register(PurposeJSAPITicket, j.ticketFetcher(TicketTypeJSAPI))
	p.tokens.Register(PurposeCardTicket, j.ticketFetcher(TicketTypeCard))
	return j
}

func (j *JSAPI) ticketFetcher(typ string) Fetcher {
	return func(ctx context.Context) (Credential, error) {
		res, err := j.p.Get(ctx, PathTicket, url.Values{"type": {typ}})
		if err != nil {
			return Credential{}, fmt.Errorf("xclient: fetch %s ticket: %w", typ, err)
		}
		var body struct {
			Ticket    string `json:"ticket"`
			ExpiresIn int64  `json:"expires_in"`
		}
		if err := res.Decode(&body); err != nil {
			return Credential{}, err
		}
		return Credential{Value: body.Ticket, ExpiresIn: body.ExpiresIn}, nil
	}
}

// GetTicket 返回 jsapi_ticket。
func (j *JSAPI) GetTicket(ctx context.Context) (string, error) {
	return j.p.tokens.Get(ctx, PurposeJSAPITicket)
}

// GetCardTicket 返回卡券 api_ticket。
func (j *JSAPI) GetCardTicket(ctx context.Context) (string, error) {
	return j.p.tokens.Get(ctx, PurposeCardTicket)
}

// Signature 为页面 URL 生成 wx.config 参数，URL 中 # 之后的部分不参与签名。
func (j *JSAPI) Signature(ctx context.Context, pageURL string) (*JSConfig, error) {
	ticket, err := j.GetTicket(ctx)
	if err != nil {
		return nil, err
	}
	ts := j.now().Unix()
	nonce := j.nonce()
	return &JSConfig{
		AppID:     j.appID,
		Timestamp: ts,
		NonceStr:  nonce,
		Signature: xsign.JSAPISignature(nonce, ticket, ts, pageURL),
	}, nil
}

// CardParams 生成卡券签名参数。code 与 openID 可为空，空值不参与签名。
func (j *JSAPI) CardParams(ctx context.Context, cardID, code, openID string) (*CardParams, error) {
	ticket, err := j.GetCardTicket(ctx)
	if err != nil {
		return nil, err
	}
	ts := j.now().Unix()
	nonce := j.nonce()
	return &CardParams{
		CardID:    cardID,
		Code:      code,
		OpenID:    openID,
		Timestamp: ts,
		NonceStr:  nonce,
		Signature: xsign.CardSignature(ticket, strconv.FormatInt(ts, 10), nonce, cardID, code, openID),
	}, nil
}

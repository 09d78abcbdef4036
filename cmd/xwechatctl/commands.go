package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xwechat/pkg/wechat/xclient"
	"github.com/omeyang/xwechat/pkg/wechat/xmessage"
	"github.com/omeyang/xwechat/pkg/wechat/xsign"
)

// mismatchError 签名不匹配，结果已输出，退出码 1。
type mismatchError struct{}

func (*mismatchError) Error() string { return "signature mismatch" }

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "获取并打印 access_token",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "忽略缓存，强制刷新"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			var (
				token string
				err   error
			)
			if cmd.Bool("force") {
				token, err = e.client.Tokens().ForceRefresh(ctx, xclient.PurposeAccessToken)
			} else {
				token, err = e.client.AccessToken(ctx)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout(cmd), token)
			return err
		}),
	}
}

func ticketCommand() *cli.Command {
	return &cli.Command{
		Name:  "ticket",
		Usage: "获取并打印 JS-SDK 或卡券 ticket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "jsapi 或 wx_card", Value: xclient.TicketTypeJSAPI},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			typ := cmd.String("type")
			if typ != xclient.TicketTypeJSAPI && typ != xclient.TicketTypeCard {
				return usagef("unknown ticket type %q", typ)
			}
			return withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
				get := e.client.JSAPI.GetTicket
				if typ == xclient.TicketTypeCard {
					get = e.client.JSAPI.GetCardTicket
				}
				ticket, err := get(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(stdout(cmd), ticket)
				return err
			})(ctx, cmd)
		},
	}
}

func signCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "签名工具",
		Commands: []*cli.Command{
			{
				Name:  "jsapi",
				Usage: "生成 wx.config 参数",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "页面完整 URL", Required: true},
				},
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					cfg, err := e.client.JSAPI.Signature(ctx, cmd.String("url"))
					if err != nil {
						return err
					}
					return printJSON(stdout(cmd), cfg)
				}),
			},
			{
				Name:  "check",
				Usage: "校验回调 URL 签名",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "服务器令牌", Required: true},
					&cli.StringFlag{Name: "signature", Required: true},
					&cli.StringFlag{Name: "timestamp", Required: true},
					&cli.StringFlag{Name: "nonce", Required: true},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					err := xsign.CheckSignature(cmd.String("token"), cmd.String("signature"),
						cmd.String("timestamp"), cmd.String("nonce"))
					if err != nil {
						fmt.Fprintf(stdout(cmd), "mismatch: expected %s\n",
							xsign.SignValues(cmd.String("token"), cmd.String("timestamp"), cmd.String("nonce")))
						return &mismatchError{}
					}
					_, err = fmt.Fprintln(stdout(cmd), "ok")
					return err
				},
			},
		},
	}
}

// parsed parse 命令的输出。
type parsed struct {
	Variant string            `json:"variant"`
	Type    string            `json:"type"`
	Event   string            `json:"event,omitempty"`
	Fields  map[string]string `json:"fields"`
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "解析回调 XML 并打印消息类型与字段",
		ArgsUsage: "<file|->",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return usagef("parse expects exactly one argument")
			}
			data, err := readInput(cmd.Args().First(), cmd.Root().Reader)
			if err != nil {
				return err
			}
			msg, err := xmessage.Parse(data)
			if err != nil {
				return err
			}
			out := parsed{
				Variant: strings.TrimPrefix(fmt.Sprintf("%T", msg), "*xmessage."),
				Type:    msg.Type(),
				Fields:  msg.Header().Raw,
			}
			if ev, ok := msg.(xmessage.Event); ok {
				out.Event = ev.EventType()
			}
			return printJSON(stdout(cmd), out)
		},
	}
}

func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name) //nolint:gosec // 路径由操作者提供
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

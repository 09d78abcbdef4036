// xwechatctl 是 xwechat 的命令行工具：获取凭据、计算签名、解析回调消息，
// 以及运行公众号回调服务。
//
// 用法:
//
//	xwechatctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件路径 (环境变量 XWECHAT_CONFIG，默认 xwechat.yaml)
//	--log-level       覆盖配置中的日志级别
//	--log-format      覆盖配置中的日志格式 (text/json)
//
// 命令:
//
//	token                          获取并打印 access_token
//	ticket --type jsapi|wx_card    获取并打印 JS-SDK / 卡券 ticket
//	sign jsapi --url <url>         生成 wx.config 签名参数
//	sign check ...                 校验回调 URL 签名
//	parse <file|->                 解析回调 XML 并打印消息类型与字段
//	serve --addr :8080             运行回调服务
//
// 退出码:
//
//	0: 成功
//	1: 执行失败（含签名不匹配）
//	2: 参数错误
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// 版本信息，可通过 -ldflags 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xwechatctl",
		Usage:   "公众号客户端命令行工具",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径 (.yaml/.yml/.json)",
				Value:   "xwechat.yaml",
				Sources: cli.EnvVars("XWECHAT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 debug/info/warn/error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 text/json",
			},
		},
		Commands: []*cli.Command{
			tokenCommand(),
			ticketCommand(),
			signCommand(),
			parseCommand(),
			serveCommand(),
		},
		// 退出码由 run 统一映射，不让框架直接退出进程。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	if err := createApp().Run(context.Background(), args); err != nil {
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var mismatch *mismatchError
	if errors.As(err, &mismatch) {
		return 1
	}
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usage)
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}

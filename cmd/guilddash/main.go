// Command guilddash はDiscord Botダッシュボードの認証・集約ゲートウェイを起動する。
//
//	guilddash serve       ダッシュボードAPI
//	guilddash poller      ゲートウェイに接続してギルド統計を公開するポーラー
//	guilddash healthcheck /healthを確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/guilddash/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "guilddash: %v\n", err)
		os.Exit(1)
	}
}

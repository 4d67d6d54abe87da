// 通知サービスのエントリポイント。
// 通知の永続化・履歴APIと、認証済みクライアントへの
// WebSocketリアルタイム配信を単一プロセスで提供する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/notifyhub/internal/notification"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8087"
	}

	server, err := notification.NewServer(port)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}

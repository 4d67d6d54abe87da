package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/nao1215/notifyhub/pkg/event"
)

// Stream は通知サービスへのライブWebSocket接続。
// サーバーが通知を作成するたびに1件ずつプッシュメッセージが届く。
type Stream struct {
	// ws は下位のWebSocket接続。
	ws *websocket.Conn
}

// DialStream は通知サービスのWebSocketストリームに接続する。
// トークンはX-Auth-Tokenヘッダーで渡す。認証に失敗した場合は
// ハンドシェイクが拒否されエラーが返る。
func DialStream(ctx context.Context, baseURL, token string) (*Stream, error) {
	wsURL, err := streamURL(baseURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if token != "" {
		header.Set("X-Auth-Token", token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			return nil, fmt.Errorf("ストリーム接続が拒否されました（status=%d）: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("ストリーム接続に失敗: %w", err)
	}
	return &Stream{ws: ws}, nil
}

// streamURL はHTTPベースURLからWebSocketストリームのURLを構築する。
func streamURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("ベースURLの解析に失敗: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// そのまま使用する
	default:
		return "", fmt.Errorf("未対応のURLスキームです: %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/stream"
	return u.String(), nil
}

// Next は次のプッシュ通知を受信するまでブロックする。
// 接続が閉じられた場合はエラーを返す。
func (s *Stream) Next() (event.Notification, error) {
	var n event.Notification
	if err := s.ws.ReadJSON(&n); err != nil {
		return event.Notification{}, fmt.Errorf("プッシュ通知の受信に失敗: %w", err)
	}
	return n, nil
}

// Close はストリーム接続を閉じる。
func (s *Stream) Close() error {
	return s.ws.Close()
}

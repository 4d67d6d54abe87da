package stream

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nao1215/notifyhub/pkg/middleware"
)

// Handler はWebSocketストリームエンドポイントのGinハンドラを返す。
//
// 認証は接続確立時に一度だけ行う。トークンはX-Auth-Tokenヘッダー、
// Authorization: Bearer、tokenクエリパラメータの優先順で受け付け、
// 欠落・署名不正・期限切れの場合はアップグレード前に401で拒否する。
// 部分的・匿名の接続は存在しない。
func Handler(hub *Hub, secret string, allowedOrigins []string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return func(c *gin.Context) {
		token := middleware.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証トークンが必要です"})
			return
		}

		claims, err := middleware.ParseToken(secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンが無効です"})
			return
		}
		// 署名が正しくてもuser_idクレームを欠くトークンは認めない。
		// 匿名の接続を在席集合に登録してしまうことを防ぐ。
		if claims.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgradeが失敗した場合はupgrader自身がエラー応答を書いている
			log.Printf("[Stream] WebSocketアップグレードに失敗: %v", err)
			return
		}

		conn := newConn(ws)
		hub.Register(claims.UserID, conn)
		defer func() {
			hub.Unregister(claims.UserID, conn)
			_ = conn.Close()
		}()

		go conn.writePump()
		// 接続が切れるまでブロックする。切断はこの接続の以降の配信のみを打ち切る。
		conn.readPump()
	}
}

// originChecker はWebSocketハンドシェイクのOriginヘッダー検証関数を返す。
// Originヘッダーが無いリクエスト（ブラウザ以外のクライアント）は許可する。
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := originsSet[origin]
		return ok
	}
}

// Package notification は通知サブシステムの中核を提供する。
//
// 通知の永続化（Store）、プロデューサー向けの発行窓口（Notifier）、
// 履歴・未読数・既読化のREST APIとWebSocketストリームを束ねるHTTPサーバーを含む。
package notification

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/notifyhub/internal/stream"
	"github.com/nao1215/notifyhub/pkg/event"
	"github.com/nao1215/notifyhub/pkg/middleware"
)

const (
	// defaultPageSize は履歴取得の既定ページサイズ。
	defaultPageSize = 20
	// maxPageSize は履歴取得の最大ページサイズ。
	maxPageSize = 100
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は通知の永続化層。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// hub はライブ接続への配信ルーター。
	hub *stream.Hub
	// notifier はプロデューサー向けの通知発行窓口。
	notifier *Notifier
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dsn := os.Getenv("NOTIFYHUB_DB")
	if dsn == "" {
		dsn = "/data/notifyhub.db?_journal_mode=WAL&_busy_timeout=5000"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	store, err := NewStore(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("ストアの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	hub := stream.NewHub()
	s := &Server{
		router:   router,
		port:     port,
		store:    store,
		db:       sqlDB,
		hub:      hub,
		notifier: NewNotifier(store, hub),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	allowedOrigins := splitOrigins(os.Getenv("ALLOWED_ORIGINS"))
	s.router.Use(middleware.CORS(allowedOrigins))

	api := s.router.Group("/api/v1")

	// WebSocketストリーム。RESTと同じ資格情報で接続時に一度だけ認証する。
	// トークンの受け渡し方法が複数あるため、JWTAuthミドルウェアではなく
	// ハンドラ内で認証する。
	api.GET("/stream", stream.Handler(s.hub, jwtSecret, allowedOrigins))

	authed := api.Group("")
	authed.Use(middleware.JWTAuth(jwtSecret))
	{
		notifications := authed.Group("/notifications")
		{
			// 通知履歴取得（新しい順・ページネーション）
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// 未読通知数取得
			notifications.GET("/unread-count", s.handleUnreadCount())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllRead())
		}

		// 通知発行（内部API - コメント・いいね・入札等のプロデューサーから呼び出される）
		internal := authed.Group("/internal")
		{
			internal.POST("/notify", s.handleNotify())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notifyhub"})
	})
}

// splitOrigins はカンマ区切りのオリジンリストを分割する。
func splitOrigins(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// toWireList はストアのレコードをワイヤー形式のスライスに変換する。
func toWireList(notifications []Notification) []event.Notification {
	wire := make([]event.Notification, 0, len(notifications))
	for _, n := range notifications {
		wire = append(wire, n.Wire())
	}
	return wire
}

// handleList は認証済みユーザーの通知履歴を新しい順に返すハンドラ。
// クエリパラメータ: page（1始まり）, page_size（最大100）。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pageは1以上の整数で指定してください"})
			return
		}
		pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
		if err != nil || pageSize < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page_sizeは1以上の整数で指定してください"})
			return
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		notifications, err := s.store.ListPage(c.Request.Context(), userID, page, pageSize)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toWireList(notifications))
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notifications, err := s.store.ListUnread(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			log.Printf("未読通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toWireList(notifications))
	}
}

// handleUnreadCount は認証済みユーザーの未読通知数を返すハンドラ。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		count, err := s.store.CountUnread(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未読通知数の取得に失敗しました"})
			log.Printf("未読通知数取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"unread_count": count})
	}
}

// handleMarkRead は指定された通知を既読にするハンドラ。
// 所有権はストア層で検査され、他ユーザーの通知はForbiddenで拒否される。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notificationID := c.Param("id")
		if notificationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが必要です"})
			return
		}

		err := s.store.MarkRead(c.Request.Context(), userID, notificationID)
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
		case errors.Is(err, ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			log.Printf("所有権違反の既読要求: user_id=%s, notification_id=%s", userID, notificationID)
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("通知既読処理エラー: %v", err)
		default:
			c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
		}
	}
}

// handleMarkAllRead は認証済みユーザーの全通知を既読にするハンドラ。
// 対象は常に呼び出し元本人の通知のみで、リクエストから受信者は指定できない。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		if err := s.store.MarkAllRead(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("全通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました"})
	}
}

// notifyRequest は通知発行リクエストのJSON構造。
type notifyRequest struct {
	// Recipient は通知先のユーザーID。
	Recipient string `json:"recipient" binding:"required"`
	// Type は通知の種別。
	Type event.Kind `json:"type" binding:"required"`
	// Payload は種別固有のデータ（JSON形式）。
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// handleNotify は通知を永続化しライブ配信するハンドラ。
// 内部API（コメント・いいね・入札等のプロデューサーから呼び出される）。
// 永続化が保証された時点で201を返す。ライブ配信の成否は待たない。
func (s *Server) handleNotify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		n, err := s.notifier.Notify(c.Request.Context(), req.Recipient, req.Type, req.Payload)
		if err != nil {
			if errors.Is(err, ErrInvalid) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "通知の保存に失敗しました"})
			log.Printf("通知発行エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, n.Wire())
	}
}

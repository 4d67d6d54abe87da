package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nao1215/notifyhub/pkg/event"
)

// recordedRequest はテストサーバーが受け取ったリクエストの記録。
type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

// setupAPIServer は固定レスポンスを返すテストサーバーを起動し、
// 受け取ったリクエストの記録先を返す。
func setupAPIServer(t *testing.T, status int, response any) (*Client, *recordedRequest) {
	t.Helper()

	recorded := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded.method = r.Method
		recorded.path = r.URL.Path
		recorded.query = r.URL.RawQuery
		recorded.auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		recorded.body = body

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if response != nil {
			_ = json.NewEncoder(w).Encode(response)
		}
	}))
	t.Cleanup(server.Close)

	return New(server.URL, "test-token"), recorded
}

// TestClientListNotifications は履歴取得APIのテスト。
func TestClientListNotifications(t *testing.T) {
	t.Parallel()

	t.Run("パスとページパラメータと認証ヘッダーが正しい", func(t *testing.T) {
		t.Parallel()

		now := time.Now().UTC().Truncate(time.Second)
		c, recorded := setupAPIServer(t, http.StatusOK, []event.Notification{
			{ID: "n-1", Type: event.KindLiked, Payload: []byte(`{"item_id":"item-1"}`), CreatedAt: now},
		})

		notifications, err := c.ListNotifications(context.Background(), 2, 10)
		if err != nil {
			t.Fatalf("履歴取得に失敗: %v", err)
		}

		if recorded.method != http.MethodGet {
			t.Errorf("メソッド: got %s, want GET", recorded.method)
		}
		if recorded.path != "/api/v1/notifications" {
			t.Errorf("パス: got %s, want /api/v1/notifications", recorded.path)
		}
		if recorded.query != "page=2&page_size=10" {
			t.Errorf("クエリ: got %s, want page=2&page_size=10", recorded.query)
		}
		if recorded.auth != "Bearer test-token" {
			t.Errorf("Authorizationヘッダー: got %s, want Bearer test-token", recorded.auth)
		}

		if len(notifications) != 1 {
			t.Fatalf("件数: got %d, want 1", len(notifications))
		}
		if notifications[0].ID != "n-1" {
			t.Errorf("id: got %s, want n-1", notifications[0].ID)
		}
		if !notifications[0].CreatedAt.Equal(now) {
			t.Errorf("created_at: got %v, want %v", notifications[0].CreatedAt, now)
		}
	})

	t.Run("認証エラーはHTTPErrorとして返る", func(t *testing.T) {
		t.Parallel()

		c, _ := setupAPIServer(t, http.StatusUnauthorized, map[string]string{"error": "認証が必要です"})

		_, err := c.ListNotifications(context.Background(), 1, 10)
		if err == nil {
			t.Fatal("エラーが返りません")
		}
		if !IsStatus(err, http.StatusUnauthorized) {
			t.Errorf("401のHTTPErrorではありません: %v", err)
		}
	})
}

// TestClientUnreadCount は未読数取得APIのテスト。
func TestClientUnreadCount(t *testing.T) {
	t.Parallel()

	c, recorded := setupAPIServer(t, http.StatusOK, map[string]int64{"unread_count": 7})

	count, err := c.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("未読数取得に失敗: %v", err)
	}
	if count != 7 {
		t.Errorf("未読数: got %d, want 7", count)
	}
	if recorded.path != "/api/v1/notifications/unread-count" {
		t.Errorf("パス: got %s, want /api/v1/notifications/unread-count", recorded.path)
	}
}

// TestClientListUnread は未読一覧取得APIのテスト。
func TestClientListUnread(t *testing.T) {
	t.Parallel()

	c, recorded := setupAPIServer(t, http.StatusOK, []event.Notification{
		{ID: "n-1", Type: event.KindFollowed, Payload: []byte(`{"actor_id":"user-9"}`)},
	})

	notifications, err := c.ListUnread(context.Background())
	if err != nil {
		t.Fatalf("未読一覧取得に失敗: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("件数: got %d, want 1", len(notifications))
	}
	if recorded.path != "/api/v1/notifications/unread" {
		t.Errorf("パス: got %s, want /api/v1/notifications/unread", recorded.path)
	}
}

// TestClientMarkRead は既読化APIのテスト。
func TestClientMarkRead(t *testing.T) {
	t.Parallel()

	t.Run("PUTで正しいパスに送信される", func(t *testing.T) {
		t.Parallel()

		c, recorded := setupAPIServer(t, http.StatusOK, map[string]string{"message": "通知を既読にしました"})

		if err := c.MarkRead(context.Background(), "n-1"); err != nil {
			t.Fatalf("既読化に失敗: %v", err)
		}
		if recorded.method != http.MethodPut {
			t.Errorf("メソッド: got %s, want PUT", recorded.method)
		}
		if recorded.path != "/api/v1/notifications/n-1/read" {
			t.Errorf("パス: got %s, want /api/v1/notifications/n-1/read", recorded.path)
		}
	})

	t.Run("所有権エラーは403のHTTPErrorとして返る", func(t *testing.T) {
		t.Parallel()

		c, _ := setupAPIServer(t, http.StatusForbidden, map[string]string{"error": "この通知を操作する権限がありません"})

		err := c.MarkRead(context.Background(), "someone-elses")
		if !IsStatus(err, http.StatusForbidden) {
			t.Errorf("403のHTTPErrorではありません: %v", err)
		}
	})

	t.Run("不存在エラーは404のHTTPErrorとして返る", func(t *testing.T) {
		t.Parallel()

		c, _ := setupAPIServer(t, http.StatusNotFound, map[string]string{"error": "通知が見つかりません"})

		err := c.MarkRead(context.Background(), "ghost")
		if !IsStatus(err, http.StatusNotFound) {
			t.Errorf("404のHTTPErrorではありません: %v", err)
		}
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatal("HTTPErrorに変換できません")
		}
		if httpErr.Message != "通知が見つかりません" {
			t.Errorf("メッセージ: got %s", httpErr.Message)
		}
	})
}

// TestClientMarkAllRead は全件既読化APIのテスト。
func TestClientMarkAllRead(t *testing.T) {
	t.Parallel()

	c, recorded := setupAPIServer(t, http.StatusOK, map[string]string{"message": "全ての通知を既読にしました"})

	if err := c.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("全件既読化に失敗: %v", err)
	}
	if recorded.method != http.MethodPut {
		t.Errorf("メソッド: got %s, want PUT", recorded.method)
	}
	if recorded.path != "/api/v1/notifications/read-all" {
		t.Errorf("パス: got %s, want /api/v1/notifications/read-all", recorded.path)
	}
}

// TestClientNotify は通知発行APIのテスト。
func TestClientNotify(t *testing.T) {
	t.Parallel()

	t.Run("発行リクエストのボディと作成済み通知の返却", func(t *testing.T) {
		t.Parallel()

		c, recorded := setupAPIServer(t, http.StatusCreated, event.Notification{
			ID:   "n-created",
			Type: event.KindOutbid,
		})

		created, err := c.Notify(context.Background(), "user-1", event.KindOutbid, []byte(`{"auction_id":"a-1","amount":5000}`))
		if err != nil {
			t.Fatalf("通知発行に失敗: %v", err)
		}
		if created.ID != "n-created" {
			t.Errorf("id: got %s, want n-created", created.ID)
		}

		var sent struct {
			Recipient string          `json:"recipient"`
			Type      string          `json:"type"`
			Payload   json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(recorded.body, &sent); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if sent.Recipient != "user-1" {
			t.Errorf("recipient: got %s, want user-1", sent.Recipient)
		}
		if sent.Type != "outbid" {
			t.Errorf("type: got %s, want outbid", sent.Type)
		}
	})

	t.Run("検証エラーは400のHTTPErrorとして返る", func(t *testing.T) {
		t.Parallel()

		c, _ := setupAPIServer(t, http.StatusBadRequest, map[string]string{"error": "通知の内容が不正です"})

		_, err := c.Notify(context.Background(), "user-1", "undefined-kind", []byte(`{}`))
		if !IsStatus(err, http.StatusBadRequest) {
			t.Errorf("400のHTTPErrorではありません: %v", err)
		}
	})
}

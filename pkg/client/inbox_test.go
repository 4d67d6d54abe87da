package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/notifyhub/pkg/event"
)

// inboxServerState はInboxテスト用サーバーの応答を制御する。
type inboxServerState struct {
	notifications []event.Notification
	unreadCount   int64
	// failMutations がtrueの場合、既読化系のエンドポイントは503を返す
	failMutations bool
}

// setupInboxServer は履歴・未読数・既読化のエンドポイントを持つテストサーバーを起動する。
func setupInboxServer(t *testing.T, state *inboxServerState) *Inbox {
	t.Helper()

	markHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if state.failMutations {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "通知の更新に失敗しました"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	}
	// Go 1.21のServeMuxはメソッド付きパターン("GET /path")や{id}ワイルドカードを
	// 解釈できないため、パスとメソッドを手動で振り分ける。
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state.notifications)
	})
	mux.HandleFunc("/api/v1/notifications/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/notifications/unread-count":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]int64{"unread_count": state.unreadCount})
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/notifications/read-all":
			markHandler(w, r)
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/read"):
			markHandler(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewInbox(New(server.URL, "test-token"))
}

// TestInboxBootstrap は初期同期のテスト。
func TestInboxBootstrap(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	state := &inboxServerState{
		notifications: []event.Notification{
			cachedNotification("n-2", now, false),
			cachedNotification("n-1", now.Add(-time.Hour), true),
		},
		unreadCount: 1,
	}
	inbox := setupInboxServer(t, state)

	serverUnread, err := inbox.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("初期同期に失敗: %v", err)
	}

	if serverUnread != 1 {
		t.Errorf("サーバー側未読数: got %d, want 1", serverUnread)
	}
	if got := len(inbox.Notifications()); got != 2 {
		t.Errorf("ローカルビューの件数: got %d, want 2", got)
	}
	if got := inbox.UnreadCount(); got != 1 {
		t.Errorf("ローカル未読数: got %d, want 1", got)
	}
}

// TestInboxApplyPush はライブプッシュと履歴の統合のテスト。
func TestInboxApplyPush(t *testing.T) {
	t.Parallel()

	t.Run("履歴に無い通知はプッシュで追加される", func(t *testing.T) {
		t.Parallel()

		now := time.Now().UTC()
		state := &inboxServerState{
			notifications: []event.Notification{cachedNotification("n-1", now.Add(-time.Hour), false)},
			unreadCount:   1,
		}
		inbox := setupInboxServer(t, state)
		if _, err := inbox.Bootstrap(context.Background()); err != nil {
			t.Fatalf("初期同期に失敗: %v", err)
		}

		inbox.ApplyPush(cachedNotification("n-2", now, false))

		list := inbox.Notifications()
		if len(list) != 2 {
			t.Fatalf("件数: got %d, want 2", len(list))
		}
		if list[0].ID != "n-2" {
			t.Errorf("先頭: got %s, want n-2", list[0].ID)
		}
	})

	t.Run("履歴と同じ通知がプッシュされても重複しない", func(t *testing.T) {
		t.Parallel()

		now := time.Now().UTC()
		shared := cachedNotification("n-1", now, false)
		state := &inboxServerState{
			notifications: []event.Notification{shared},
			unreadCount:   1,
		}
		inbox := setupInboxServer(t, state)
		if _, err := inbox.Bootstrap(context.Background()); err != nil {
			t.Fatalf("初期同期に失敗: %v", err)
		}

		// 再接続の隙間で履歴とプッシュの両経路から同じ通知が届くケース
		inbox.ApplyPush(shared)

		if got := len(inbox.Notifications()); got != 1 {
			t.Errorf("件数: got %d, want 1", got)
		}
		if got := inbox.UnreadCount(); got != 1 {
			t.Errorf("未読数: got %d, want 1", got)
		}
	})
}

// TestInboxMarkRead は楽観的な既読化と失敗時の巻き戻しのテスト。
func TestInboxMarkRead(t *testing.T) {
	t.Parallel()

	t.Run("成功時はローカルとサーバーの両方が既読になる", func(t *testing.T) {
		t.Parallel()

		state := &inboxServerState{
			notifications: []event.Notification{cachedNotification("n-1", time.Now().UTC(), false)},
			unreadCount:   1,
		}
		inbox := setupInboxServer(t, state)
		if _, err := inbox.Bootstrap(context.Background()); err != nil {
			t.Fatalf("初期同期に失敗: %v", err)
		}

		if err := inbox.MarkRead(context.Background(), "n-1"); err != nil {
			t.Fatalf("既読化に失敗: %v", err)
		}
		if got := inbox.UnreadCount(); got != 0 {
			t.Errorf("未読数: got %d, want 0", got)
		}
	})

	t.Run("サーバーへの反映に失敗したらローカルの変更が巻き戻る", func(t *testing.T) {
		t.Parallel()

		state := &inboxServerState{
			notifications: []event.Notification{cachedNotification("n-1", time.Now().UTC(), false)},
			unreadCount:   1,
			failMutations: true,
		}
		inbox := setupInboxServer(t, state)
		if _, err := inbox.Bootstrap(context.Background()); err != nil {
			t.Fatalf("初期同期に失敗: %v", err)
		}

		err := inbox.MarkRead(context.Background(), "n-1")
		if err == nil {
			t.Fatal("エラーが返りません")
		}
		if !IsStatus(err, http.StatusServiceUnavailable) {
			t.Errorf("503のHTTPErrorではありません: %v", err)
		}
		// ローカルビューは未読のまま
		if got := inbox.UnreadCount(); got != 1 {
			t.Errorf("巻き戻し後の未読数: got %d, want 1", got)
		}
	})

	t.Run("既読済み通知への失敗では巻き戻さない", func(t *testing.T) {
		t.Parallel()

		state := &inboxServerState{
			notifications: []event.Notification{cachedNotification("n-1", time.Now().UTC(), true)},
			failMutations: true,
		}
		inbox := setupInboxServer(t, state)
		if _, err := inbox.Bootstrap(context.Background()); err != nil {
			t.Fatalf("初期同期に失敗: %v", err)
		}

		if err := inbox.MarkRead(context.Background(), "n-1"); err == nil {
			t.Fatal("エラーが返りません")
		}
		// 元々既読だった通知は既読のまま
		if got := inbox.UnreadCount(); got != 0 {
			t.Errorf("未読数: got %d, want 0", got)
		}
	})
}

// TestInboxMarkAllRead は全件既読化の楽観的更新のテスト。
func TestInboxMarkAllRead(t *testing.T) {
	t.Parallel()

	t.Run("成功時は全件が既読になる", func(t *testing.T) {
		t.Parallel()

		now := time.Now().UTC()
		state := &inboxServerState{
			notifications: []event.Notification{
				cachedNotification("n-1", now, false),
				cachedNotification("n-2", now.Add(-time.Minute), false),
			},
			unreadCount: 2,
		}
		inbox := setupInboxServer(t, state)
		if _, err := inbox.Bootstrap(context.Background()); err != nil {
			t.Fatalf("初期同期に失敗: %v", err)
		}

		if err := inbox.MarkAllRead(context.Background()); err != nil {
			t.Fatalf("全件既読化に失敗: %v", err)
		}
		if got := inbox.UnreadCount(); got != 0 {
			t.Errorf("未読数: got %d, want 0", got)
		}
	})

	t.Run("失敗時は未読だった通知だけが巻き戻る", func(t *testing.T) {
		t.Parallel()

		now := time.Now().UTC()
		state := &inboxServerState{
			notifications: []event.Notification{
				cachedNotification("n-1", now, false),
				cachedNotification("n-2", now.Add(-time.Minute), true),
			},
			unreadCount:   1,
			failMutations: true,
		}
		inbox := setupInboxServer(t, state)
		if _, err := inbox.Bootstrap(context.Background()); err != nil {
			t.Fatalf("初期同期に失敗: %v", err)
		}

		if err := inbox.MarkAllRead(context.Background()); err == nil {
			t.Fatal("エラーが返りません")
		}

		if got := inbox.UnreadCount(); got != 1 {
			t.Errorf("巻き戻し後の未読数: got %d, want 1", got)
		}
		// 元々既読だった通知は既読のまま
		if n, ok := inbox.cache.Get("n-2"); !ok || !n.Read {
			t.Error("既読だった通知が未読に巻き戻っている")
		}
	})
}

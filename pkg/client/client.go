package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nao1215/notifyhub/pkg/event"
)

// Client は通知サービスのREST APIクライアント。
type Client struct {
	// baseURL は通知サービスのベースURL。
	baseURL string
	// token は認証に使用するJWTトークン。
	token string
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
}

// New は新しいAPIクライアントを生成する。
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListNotifications は通知履歴を新しい順にページ単位で取得する。
func (c *Client) ListNotifications(ctx context.Context, page, pageSize int) ([]event.Notification, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))

	var notifications []event.Notification
	if err := c.get(ctx, "/api/v1/notifications?"+params.Encode(), &notifications); err != nil {
		return nil, fmt.Errorf("client.ListNotifications: %w", err)
	}
	return notifications, nil
}

// ListUnread は未読通知の一覧を取得する。
func (c *Client) ListUnread(ctx context.Context) ([]event.Notification, error) {
	var notifications []event.Notification
	if err := c.get(ctx, "/api/v1/notifications/unread", &notifications); err != nil {
		return nil, fmt.Errorf("client.ListUnread: %w", err)
	}
	return notifications, nil
}

// unreadCountResponse は未読数APIのレスポンス構造。
type unreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// UnreadCount はサーバーが保持する未読通知数を取得する。
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var resp unreadCountResponse
	if err := c.get(ctx, "/api/v1/notifications/unread-count", &resp); err != nil {
		return 0, fmt.Errorf("client.UnreadCount: %w", err)
	}
	return resp.UnreadCount, nil
}

// MarkRead は指定された通知を既読にする。
// 他の受信者の通知を指定した場合は403のHTTPErrorが返る。
func (c *Client) MarkRead(ctx context.Context, id string) error {
	path := "/api/v1/notifications/" + url.PathEscape(id) + "/read"
	if err := c.doRequest(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("client.MarkRead: %w", err)
	}
	return nil
}

// MarkAllRead は自分宛の全通知を既読にする。対象は常に認証済みの本人のみ。
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodPut, "/api/v1/notifications/read-all", nil, nil); err != nil {
		return fmt.Errorf("client.MarkAllRead: %w", err)
	}
	return nil
}

// notifyRequest は通知発行リクエストのJSON構造。
type notifyRequest struct {
	Recipient string          `json:"recipient"`
	Type      event.Kind      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// Notify は通知を発行する（プロデューサー向けの内部API）。
// 永続化が保証された時点で作成済みの通知が返る。
func (c *Client) Notify(ctx context.Context, recipient string, kind event.Kind, payload json.RawMessage) (*event.Notification, error) {
	req := notifyRequest{Recipient: recipient, Type: kind, Payload: payload}
	var created event.Notification
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/internal/notify", req, &created); err != nil {
		return nil, fmt.Errorf("client.Notify: %w", err)
	}
	return &created, nil
}

// get はGETリクエストを実行しレスポンスをoutにデコードする。
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

// doRequest はJSON形式のHTTPリクエストを実行する共通処理。
// 2xx以外のレスポンスはHTTPErrorとして返す。
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// newHTTPError はエラーレスポンスからHTTPErrorを構築する。
func newHTTPError(resp *http.Response) *HTTPError {
	var errBody struct {
		Error string `json:"error"`
	}
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
		message = errBody.Error
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: message}
}

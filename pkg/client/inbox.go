package client

import (
	"context"
	"fmt"

	"github.com/nao1215/notifyhub/pkg/event"
)

// defaultInboxPageSize はInboxの履歴取得に使う既定ページサイズ。
const defaultInboxPageSize = 20

// Inbox はREST履歴とライブプッシュを統合するクライアント側の通知ビュー。
//
// 初回ロード（または再接続）時にBootstrapで未読数と最初のページを取得し、
// 以降はApplyPushでライブ通知を統合する。初回フェッチの完了前に同じ通知が
// ライブで届くレースは想定内で、Cacheの通知IDによる重複排除で吸収される。
// 既読化はUI即時反映の楽観的更新で、サーバーへの往復が失敗した場合は
// ローカルの変更を巻き戻す。
type Inbox struct {
	// api はREST APIクライアント。
	api *Client
	// cache は通知IDをキーとしたローカルキャッシュ。
	cache *Cache
	// pageSize は履歴取得のページサイズ。
	pageSize int
}

// NewInbox は新しいInboxを生成する。
func NewInbox(api *Client) *Inbox {
	return &Inbox{
		api:      api,
		cache:    NewCache(),
		pageSize: defaultInboxPageSize,
	}
}

// Bootstrap は未読数と最初のページを取得してキャッシュに統合する。
// サーバー側の未読数を返す（ローカルの未読数は以降の操作で収束する）。
// 接続確立（ライブストリーム）とは独立して呼び出せる。
func (i *Inbox) Bootstrap(ctx context.Context) (int64, error) {
	serverUnread, err := i.api.UnreadCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("inbox.Bootstrap: %w", err)
	}

	page, err := i.api.ListNotifications(ctx, 1, i.pageSize)
	if err != nil {
		return 0, fmt.Errorf("inbox.Bootstrap: %w", err)
	}
	i.cache.Merge(page...)

	return serverUnread, nil
}

// FetchPage は指定ページの履歴を取得してキャッシュに統合する。
func (i *Inbox) FetchPage(ctx context.Context, page int) error {
	notifications, err := i.api.ListNotifications(ctx, page, i.pageSize)
	if err != nil {
		return fmt.Errorf("inbox.FetchPage: %w", err)
	}
	i.cache.Merge(notifications...)
	return nil
}

// ApplyPush はライブストリームから届いた通知をキャッシュに統合する。
// 履歴フェッチで取得済みのIDなら重複追加しない。
func (i *Inbox) ApplyPush(n event.Notification) {
	i.cache.Merge(n)
}

// MarkRead は通知を既読にする。ローカルを即時更新（楽観的）した後、
// サーバーへの往復が失敗した場合はローカルの変更を巻き戻してエラーを返す。
func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	flipped := i.cache.MarkRead(id)

	if err := i.api.MarkRead(ctx, id); err != nil {
		if flipped {
			i.cache.Unmark(id)
		}
		return fmt.Errorf("inbox.MarkRead: %w", err)
	}
	return nil
}

// MarkAllRead は全通知を既読にする。ローカルを即時更新した後、
// サーバーへの往復が失敗した場合は変化した通知だけを未読に巻き戻す。
func (i *Inbox) MarkAllRead(ctx context.Context) error {
	flipped := i.cache.MarkAllRead()

	if err := i.api.MarkAllRead(ctx); err != nil {
		i.cache.Unmark(flipped...)
		return fmt.Errorf("inbox.MarkAllRead: %w", err)
	}
	return nil
}

// Notifications はローカルビューの通知を新しい順に返す。
func (i *Inbox) Notifications() []event.Notification {
	return i.cache.Notifications()
}

// UnreadCount はローカルビューの未読通知数を返す。
func (i *Inbox) UnreadCount() int {
	return i.cache.UnreadCount()
}

package client

import (
	"sort"
	"sync"

	"github.com/nao1215/notifyhub/pkg/event"
)

// Cache は通知のクライアント側ローカルキャッシュ。
//
// REST履歴とライブプッシュという2つの独立したチャネルから届く通知を、
// サーバー発行の通知IDをキーとして1つの重複の無い集合に統合する。
// 同じ通知がどちらのチャネルから先に届いても結果は同じになる。
// UIフレームワークに依存せず、単体でテストできる。
type Cache struct {
	mu sync.Mutex
	// byID は通知IDをキーとした通知の集合。配列位置や到着順はキーにしない。
	byID map[string]event.Notification
}

// NewCache は空のキャッシュを生成する。
func NewCache() *Cache {
	return &Cache{byID: make(map[string]event.Notification)}
}

// Merge は通知をキャッシュに統合する。
// 既知のIDは重複追加せず、既読フラグのみ「どちらかが既読なら既読」で合成する
// （既読は単調変化であり、古いチャネルの未読が新しい既読を巻き戻さないようにする）。
func (c *Cache) Merge(notifications ...event.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range notifications {
		if existing, ok := c.byID[n.ID]; ok {
			if n.Read && !existing.Read {
				existing.Read = true
				c.byID[n.ID] = existing
			}
			continue
		}
		c.byID[n.ID] = n
	}
}

// Notifications はキャッシュ内の通知を新しい順に返す。
// 並び順は作成日時の降順（同時刻はID降順）で、統合された順序には依存しない。
func (c *Cache) Notifications() []event.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]event.Notification, 0, len(c.byID))
	for _, n := range c.byID {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list
}

// Get は指定されたIDの通知を返す。
func (c *Cache) Get(id string) (event.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.byID[id]
	return n, ok
}

// Len はキャッシュ内の通知数を返す。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// UnreadCount はキャッシュ内の未読通知数を返す。
// UIに表示する未読数は常にこの値から導出され、既読化やフェッチの成功後に
// サーバーの未読数へ収束する。
func (c *Cache) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, n := range c.byID {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead は指定された通知をローカルで既読にする。
// 実際にフラグが変化した場合のみtrueを返す（ロールバックの要否判定に使う）。
func (c *Cache) MarkRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.byID[id]
	if !ok || n.Read {
		return false
	}
	n.Read = true
	c.byID[id] = n
	return true
}

// MarkAllRead はキャッシュ内の全通知をローカルで既読にする。
// フラグが変化した通知のIDを返す（失敗時のロールバックに使う）。
func (c *Cache) MarkAllRead() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	flipped := make([]string, 0)
	for id, n := range c.byID {
		if !n.Read {
			n.Read = true
			c.byID[id] = n
			flipped = append(flipped, id)
		}
	}
	return flipped
}

// Unmark は指定された通知のローカル既読フラグを未読へ戻す。
// サーバーへの既読化が失敗した際の楽観的更新のロールバック専用。
func (c *Cache) Unmark(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if n, ok := c.byID[id]; ok {
			n.Read = false
			c.byID[id] = n
		}
	}
}

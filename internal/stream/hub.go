package stream

import (
	"log"
	"sync"

	"github.com/nao1215/notifyhub/pkg/event"
)

// Subscriber は通知のプッシュ先となる1本のライブ接続を表す。
// Sendはブロックしてはならず、受け付けられない場合はエラーを返す。
// WebSocket接続はConnが実装するが、Hubのルーティングは
// ソケット無しでテストできるようインターフェースで受ける。
type Subscriber interface {
	Send(msg event.Notification) error
	Close() error
}

// userConns は1人の受信者に属する接続集合。
// 同一受信者への接続・切断はこのミューテックスで直列化され、
// 異なる受信者同士は互いにロックを共有しない。
type userConns struct {
	mu sync.Mutex
	// subs は接続ごとの配信済み通知IDの集合。
	// 同じ通知IDを同じ接続に二度送らないためのガード（接続の生存期間分だけ保持）。
	subs map[Subscriber]map[string]struct{}
	// gone はこのエントリがHubのマップから削除済みであることを表す。
	// 削除後にロックを取ったRegisterは新しいエントリでやり直す。
	gone bool
}

// Hub は受信者IDから在席接続集合への対応（Recipient Presence Set）を保持し、
// 通知を受信者の全接続へ配信するルーター。
type Hub struct {
	// users は受信者ID → *userConns のマップ。
	users sync.Map
}

// NewHub は空のHubを生成する。在席状態は永続化されないため、
// プロセス起動直後のHubは常に空で、クライアントの再接続で再構築される。
func NewHub() *Hub {
	return &Hub{}
}

// Register は認証済み接続を受信者の在席集合に追加する。
// 認証成功時に一度だけ呼ぶ。
func (h *Hub) Register(userID string, sub Subscriber) {
	for {
		v, _ := h.users.LoadOrStore(userID, &userConns{
			subs: make(map[Subscriber]map[string]struct{}),
		})
		uc := v.(*userConns)

		uc.mu.Lock()
		if uc.gone {
			// 直前に最後の接続が切断されエントリが削除された。新しいエントリで登録し直す。
			uc.mu.Unlock()
			continue
		}
		uc.subs[sub] = make(map[string]struct{})
		uc.mu.Unlock()
		return
	}
}

// Unregister は接続を受信者の在席集合から取り除く。
// 切断理由を問わず呼ばれ、冪等（同じ接続の二重解除はエラーにならない）。
// 最後の接続が消えた受信者のエントリはマップからも削除する。
func (h *Hub) Unregister(userID string, sub Subscriber) {
	v, ok := h.users.Load(userID)
	if !ok {
		return
	}
	uc := v.(*userConns)

	uc.mu.Lock()
	delete(uc.subs, sub)
	if len(uc.subs) == 0 && !uc.gone {
		uc.gone = true
		h.users.Delete(userID)
	}
	uc.mu.Unlock()
}

// Deliver は通知を受信者の全ライブ接続へブロードキャストする。
// 受信者に接続が無い場合は何もしない（通知はストアに残っており、
// 次回接続時の履歴取得で届く）。同じ通知IDは同じ接続に最大1回しか送らない。
// 送信できない接続（バッファ溢れ・切断済み）は在席集合から外して閉じる。
func (h *Hub) Deliver(userID string, msg event.Notification) {
	v, ok := h.users.Load(userID)
	if !ok {
		return
	}
	uc := v.(*userConns)

	uc.mu.Lock()
	targets := make([]Subscriber, 0, len(uc.subs))
	for sub, delivered := range uc.subs {
		if _, seen := delivered[msg.ID]; seen {
			continue
		}
		delivered[msg.ID] = struct{}{}
		targets = append(targets, sub)
	}
	uc.mu.Unlock()

	// 送信はロックの外で行う。Sendは非ブロッキングなので、
	// 遅い接続が他の受信者やプロデューサーを止めることはない。
	for _, sub := range targets {
		if err := sub.Send(msg); err != nil {
			log.Printf("[Stream] 接続への配信に失敗したため切断します: user_id=%s, notification_id=%s: %v", userID, msg.ID, err)
			h.Unregister(userID, sub)
			_ = sub.Close()
		}
	}
}

// Connections は受信者の現在の接続数を返す。
func (h *Hub) Connections(userID string) int {
	v, ok := h.users.Load(userID)
	if !ok {
		return 0
	}
	uc := v.(*userConns)

	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.subs)
}

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nao1215/notifyhub/pkg/event"
)

// ErrInvalid は通知発行リクエストの検証エラーを表す。
// 受信者の欠落や種別に合わないペイロードなど、リトライしても成功しない不正。
var ErrInvalid = errors.New("通知の内容が不正です")

// Deliverer は永続化済み通知をライブ接続へプッシュする配信先を表す。
// 単一プロセスではstream.Hubが実装するが、ブローカー経由の配信に
// 差し替えられるようインターフェースで受ける。配信はベストエフォートであり、
// 実装はブロックしてはならない。呼び出し順＝受信者ごとの作成順であり、
// 実装はこの順序を接続ごとに保たなければならない。
type Deliverer interface {
	Deliver(userID string, msg event.Notification)
}

// createMaxAttempts はストア書き込みの最大試行回数。
// 一時的なストア障害はこの回数までリトライし、それでも失敗したら呼び出し元に返す。
const createMaxAttempts = 3

// createRetryInterval はストア書き込みリトライの間隔。
const createRetryInterval = 50 * time.Millisecond

// Notifier はプロデューサー（コメント・いいね・入札等の外部ロジック）に公開する
// 通知発行の窓口。永続化してからプッシュ配信する。
//
// 自分自身の操作を通知しない等のフィルタリングはプロデューサー側の責務であり、
// Notifierは受け取ったイベントを無条件に発行する。
type Notifier struct {
	// store は通知の永続化層。
	store *Store
	// deliverer はライブ接続への配信先。nilの場合は配信をスキップする。
	deliverer Deliverer
}

// NewNotifier は新しいNotifierを生成する。
func NewNotifier(store *Store, deliverer Deliverer) *Notifier {
	return &Notifier{store: store, deliverer: deliverer}
}

// Notify は通知を永続化し、受信者のライブ接続へプッシュ配信する。
// 永続化が保証された時点で戻る。プロデューサーはライブ配信の成否を待たない。
// ペイロードは種別に対応するバリアントとして検証され、不正ならエラーを返す。
func (nf *Notifier) Notify(ctx context.Context, userID string, kind event.Kind, payload json.RawMessage) (*Notification, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: 受信者IDが必要です", ErrInvalid)
	}
	if err := event.ValidatePayload(kind, payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	// 永続化はプッシュより先。一時的なストア障害は有限回リトライする。
	var (
		n   *Notification
		err error
	)
	for attempt := 1; attempt <= createMaxAttempts; attempt++ {
		n, err = nf.store.Create(ctx, userID, kind, payload)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("通知の保存が中断されました: %w", ctx.Err())
		}
		if attempt < createMaxAttempts {
			log.Printf("[Notifier] 通知の保存に失敗（%d/%d回目）、リトライします: %v", attempt, createMaxAttempts, err)
			time.Sleep(createRetryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("通知の保存に%d回失敗しました: %w", createMaxAttempts, err)
	}

	// 配信はベストエフォート。受信者に接続が無ければストアに残るだけで、
	// 次回の履歴取得で届く。クライアントの切断が保存を巻き戻すことはない。
	// Deliverはブロックしない実装前提なので同期呼び出しでよく、
	// 同一受信者への連続したNotifyは作成順のまま各接続に積まれる。
	if nf.deliverer != nil {
		nf.deliverer.Deliver(userID, n.Wire())
	}

	return n, nil
}

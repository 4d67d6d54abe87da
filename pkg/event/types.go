// Package event は通知イベントの種別（Kind）とペイロードの型定義を提供する。
//
// 通知のペイロードは種別ごとに構造が異なるタグ付きユニオンであり、
// 種別に対応するバリアント構造体で検証してから永続化・配信する。
package event

import (
	"encoding/json"
	"time"
)

// Kind は通知の種別を表す。閉じた集合であり、自由文字列で挙動を分岐させてはならない。
type Kind string

const (
	// KindNewItem は新しいアイテムが出品されたことを表す。
	KindNewItem Kind = "new-item"
	// KindRepliedTo は自分のコメントに返信が付いたことを表す。
	KindRepliedTo Kind = "replied-to"
	// KindLiked は自分の投稿にいいねが付いたことを表す。
	KindLiked Kind = "liked"
	// KindFollowed は他のユーザーにフォローされたことを表す。
	KindFollowed Kind = "followed"
	// KindOutbid はオークションで他のユーザーに入札額を上回られたことを表す。
	KindOutbid Kind = "outbid"
	// KindItemEnded はウォッチ中のオークションが終了したことを表す。
	KindItemEnded Kind = "item-ended"
	// KindWon はオークションで落札したことを表す。
	KindWon Kind = "won"
)

// Kinds は定義済みの全通知種別を返す。
func Kinds() []Kind {
	return []Kind{
		KindNewItem,
		KindRepliedTo,
		KindLiked,
		KindFollowed,
		KindOutbid,
		KindItemEnded,
		KindWon,
	}
}

// Valid はkが定義済みの通知種別かどうかを返す。
func (k Kind) Valid() bool {
	switch k {
	case KindNewItem, KindRepliedTo, KindLiked, KindFollowed,
		KindOutbid, KindItemEnded, KindWon:
		return true
	}
	return false
}

// Notification はクライアントとの間でやり取りする通知のワイヤー形式。
// REST履歴APIのレスポンスとWebSocketプッシュメッセージの両方で同じ形を使う。
// プッシュ配信時点のReadは常にfalse（通知は作成時に一度だけプッシュされる）。
type Notification struct {
	// ID は通知の一意識別子（サーバー発行のUUID）。クライアント側の重複排除キー。
	ID string `json:"id"`
	// Type は通知の種別。
	Type Kind `json:"type"`
	// Payload は種別固有のデータ（JSON形式）。ディープリンク生成に必要な情報を含む。
	Payload json.RawMessage `json:"payload"`
	// Read は通知の既読状態。
	Read bool `json:"read"`
	// CreatedAt は通知の作成日時。受信者ごとに単調非減少。
	CreatedAt time.Time `json:"created_at"`
}

// NewItemPayload はnew-item通知のペイロード。
type NewItemPayload struct {
	// ItemID は出品されたアイテムのID。
	ItemID string `json:"item_id"`
}

// RepliedToPayload はreplied-to通知のペイロード。
type RepliedToPayload struct {
	// ItemID は返信が付いた投稿・アイテムのID。
	ItemID string `json:"item_id"`
	// CommentID は返信コメントのID。
	CommentID string `json:"comment_id"`
	// ActorID は返信したユーザーのID。
	ActorID string `json:"actor_id,omitempty"`
}

// LikedPayload はliked通知のペイロード。
type LikedPayload struct {
	// ItemID はいいねが付いた投稿・アイテムのID。
	ItemID string `json:"item_id"`
	// ActorID はいいねしたユーザーのID。
	ActorID string `json:"actor_id,omitempty"`
}

// FollowedPayload はfollowed通知のペイロード。
type FollowedPayload struct {
	// ActorID はフォローしたユーザーのID。
	ActorID string `json:"actor_id"`
}

// OutbidPayload はoutbid通知のペイロード。
type OutbidPayload struct {
	// AuctionID は対象オークションのID。
	AuctionID string `json:"auction_id"`
	// Amount は現在の最高入札額。
	Amount int64 `json:"amount,omitempty"`
}

// ItemEndedPayload はitem-ended通知のペイロード。
type ItemEndedPayload struct {
	// AuctionID は終了したオークションのID。
	AuctionID string `json:"auction_id"`
}

// WonPayload はwon通知のペイロード。
type WonPayload struct {
	// AuctionID は落札したオークションのID。
	AuctionID string `json:"auction_id"`
	// Amount は落札額。
	Amount int64 `json:"amount,omitempty"`
}

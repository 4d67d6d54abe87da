package event

import (
	"encoding/json"
	"fmt"
)

// ValidatePayload はペイロードが種別に対応するバリアントとして妥当かを検証する。
// 種別が未定義、JSONが不正、または必須フィールドが欠けている場合はエラーを返す。
func ValidatePayload(kind Kind, payload json.RawMessage) error {
	if !kind.Valid() {
		return fmt.Errorf("未定義の通知種別です: %q", kind)
	}

	switch kind {
	case KindNewItem:
		p, err := DecodePayload[NewItemPayload](payload)
		if err != nil {
			return err
		}
		if p.ItemID == "" {
			return fmt.Errorf("%s通知にはitem_idが必要です", kind)
		}
	case KindRepliedTo:
		p, err := DecodePayload[RepliedToPayload](payload)
		if err != nil {
			return err
		}
		if p.ItemID == "" {
			return fmt.Errorf("%s通知にはitem_idが必要です", kind)
		}
		if p.CommentID == "" {
			return fmt.Errorf("%s通知にはcomment_idが必要です", kind)
		}
	case KindLiked:
		p, err := DecodePayload[LikedPayload](payload)
		if err != nil {
			return err
		}
		if p.ItemID == "" {
			return fmt.Errorf("%s通知にはitem_idが必要です", kind)
		}
	case KindFollowed:
		p, err := DecodePayload[FollowedPayload](payload)
		if err != nil {
			return err
		}
		if p.ActorID == "" {
			return fmt.Errorf("%s通知にはactor_idが必要です", kind)
		}
	case KindOutbid:
		p, err := DecodePayload[OutbidPayload](payload)
		if err != nil {
			return err
		}
		if p.AuctionID == "" {
			return fmt.Errorf("%s通知にはauction_idが必要です", kind)
		}
	case KindItemEnded:
		p, err := DecodePayload[ItemEndedPayload](payload)
		if err != nil {
			return err
		}
		if p.AuctionID == "" {
			return fmt.Errorf("%s通知にはauction_idが必要です", kind)
		}
	case KindWon:
		p, err := DecodePayload[WonPayload](payload)
		if err != nil {
			return err
		}
		if p.AuctionID == "" {
			return fmt.Errorf("%s通知にはauction_idが必要です", kind)
		}
	}
	return nil
}

// DecodePayload はペイロードを指定されたバリアント型にデシリアライズする。
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var data T
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("ペイロードのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

// EncodePayload はバリアント構造体をJSON形式のペイロードにシリアライズする。
func EncodePayload(data any) (json.RawMessage, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("ペイロードのシリアライズに失敗: %w", err)
	}
	return jsonData, nil
}

package notification

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。通知は既読フラグ以外は不変で、ハードデリートしない。
const schema = `
CREATE TABLE IF NOT EXISTS notifications (
    -- 通知の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 受信者のユーザーID
    user_id TEXT NOT NULL,
    -- 通知の種別（new-item, liked 等の閉じた集合）
    kind TEXT NOT NULL,
    -- 種別固有のペイロード（JSON形式）
    payload TEXT NOT NULL,
    -- 通知の既読状態
    is_read INTEGER NOT NULL DEFAULT 0,
    -- 通知の作成日時（RFC3339Nano形式。辞書順と時刻順が一致する）
    created_at TEXT NOT NULL
);

-- 受信者の履歴を新しい順に取得するためのインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_user_created
    ON notifications(user_id, created_at DESC);

-- 未読件数の集計を高速化する部分インデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_unread
    ON notifications(user_id, is_read) WHERE is_read = 0;
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}

package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/notifyhub/pkg/event"
)

var (
	// ErrNotFound は指定されたIDの通知が存在しないことを表す。
	ErrNotFound = errors.New("通知が見つかりません")
	// ErrNotOwner は他の受信者が所有する通知を操作しようとしたことを表す。
	// 所有権違反はサイレントに成功させず、必ずこのエラーで拒否する。
	ErrNotOwner = errors.New("この通知を操作する権限がありません")
)

// Notification は永続化された通知レコードを表す。
// 既読フラグ以外は作成後に変更されない。既読フラグはfalse→trueの単調変化のみ。
type Notification struct {
	// ID は通知の一意識別子（UUID）。サーバー側で発行する。
	ID string
	// UserID は受信者のユーザーID。通知はちょうど1人の受信者に属する。
	UserID string
	// Kind は通知の種別。
	Kind event.Kind
	// Payload は種別固有のデータ（JSON形式）。
	Payload json.RawMessage
	// Read は通知の既読状態。
	Read bool
	// CreatedAt は通知の作成日時（UTC）。
	CreatedAt time.Time
}

// Wire は通知をクライアント向けワイヤー形式に変換する。
// 受信者IDはワイヤー形式に含めない（常に認証済みの本人宛のため）。
func (n Notification) Wire() event.Notification {
	return event.Notification{
		ID:        n.ID,
		Type:      n.Kind,
		Payload:   n.Payload,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// createdAtFormat はcreated_at列の保存形式。
// RFC3339Nanoの固定幅版で、文字列の辞書順比較が時刻順比較と一致する。
const createdAtFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store は通知の永続化層。SQLiteデータベースを使用する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しい通知ストアを生成し、スキーマを適用する。
func NewStore(db *sql.DB) (*Store, error) {
	if err := initSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Create は通知を永続化する。IDとタイムスタンプはサーバー側で発行する。
// プッシュ配信より先に必ず呼ばれる（配信失敗でレコードが失われないようにするため）。
func (s *Store) Create(ctx context.Context, userID string, kind event.Kind, payload json.RawMessage) (*Notification, error) {
	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, kind, payload, is_read, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		n.ID, n.UserID, string(n.Kind), string(n.Payload), n.CreatedAt.Format(createdAtFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return n, nil
}

// ListPage は受信者の通知履歴を新しい順にページ単位で返す。
// pageは1始まり。並び順はcreated_at降順、同時刻はID降順で安定させる。
func (s *Store) ListPage(ctx context.Context, userID string, page, pageSize int) ([]Notification, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, payload, is_read, created_at
		 FROM notifications
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, pageSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNotifications(rows)
}

// ListUnread は受信者の未読通知を新しい順に返す。
func (s *Store) ListUnread(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, payload, is_read, created_at
		 FROM notifications
		 WHERE user_id = ? AND is_read = 0
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("未読通知一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNotifications(rows)
}

// CountUnread は受信者の未読通知数を返す。
// 部分インデックスを使う集計クエリで、履歴取得とは独立して呼び出せる。
func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("未読通知数の取得に失敗: %w", err)
	}
	return count, nil
}

// Get は指定されたIDの通知を返す。存在しない場合はErrNotFound。
func (s *Store) Get(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, payload, is_read, created_at
		 FROM notifications WHERE id = ?`,
		id,
	)

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return n, nil
}

// MarkRead は指定された通知を既読にする。
// userIDが所有する通知のみ更新できる。他の受信者の通知に対してはErrNotOwnerを返す。
// 更新は1レコード単位のアトミックなUPDATEで、既に既読の場合も成功する（冪等）。
func (s *Store) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("通知の既読処理に失敗: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// 更新対象が無かった場合、不存在か所有権違反かを区別する
	var owner string
	err = s.db.QueryRowContext(ctx,
		`SELECT user_id FROM notifications WHERE id = ?`, id,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return ErrNotOwner
}

// MarkAllRead は受信者の全通知を既読にする。
// 対象は常に呼び出し元の受信者の通知のみで、冪等（2回実行しても結果は同じ）。
func (s *Store) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}
	return nil
}

// scanner はsql.Rowとsql.Rowsの共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

// scanNotification は1行を通知レコードに変換する。
func scanNotification(row scanner) (*Notification, error) {
	var (
		n         Notification
		kind      string
		payload   string
		isRead    int64
		createdAt string
	)
	if err := row.Scan(&n.ID, &n.UserID, &kind, &payload, &isRead, &createdAt); err != nil {
		return nil, err
	}

	n.Kind = event.Kind(kind)
	n.Payload = json.RawMessage(payload)
	n.Read = isRead != 0

	t, err := time.Parse(createdAtFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("created_atの解析に失敗: %w", err)
	}
	n.CreatedAt = t
	return &n, nil
}

// scanNotifications は複数行を通知レコードのスライスに変換する。
func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	notifications := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("通知行の読み取りに失敗: %w", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知一覧の走査に失敗: %w", err)
	}
	return notifications, nil
}

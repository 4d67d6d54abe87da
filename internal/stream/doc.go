// Package stream は認証済みクライアントへのリアルタイム通知配信を提供する。
//
// Hubが受信者ごとの在席接続集合（Presence Set）を管理し、通知を受信者の
// 全接続へブロードキャストする。接続はWebSocketハンドシェイク時に一度だけ
// 認証され、匿名の接続は許可されない。Presence Setは永続化せず、
// プロセス再起動後はクライアントの再接続によって一から再構築される。
package stream

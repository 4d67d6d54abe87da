// Package client は通知サービスのGoクライアントを提供する。
//
// REST（履歴・未読数・既読化）とWebSocketストリーム（ライブプッシュ）の
// 2系統のチャネルを扱い、Cache/Inboxが両者を通知IDをキーとして
// 重複の無い1つのビューへ統合する。統合ロジックはUIフレームワークに
// 依存せず単体でテストできる。
package client

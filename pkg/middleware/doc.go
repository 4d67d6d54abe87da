// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンの生成・検証、接続確立時のトークン抽出、
// パニックリカバリ、CORS設定など、RESTとWebSocketの両方の
// 認証経路で共通して使用する処理を含む。
package middleware

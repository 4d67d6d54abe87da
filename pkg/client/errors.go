package client

import (
	"errors"
	"fmt"
)

// HTTPError はAPIからの2xx以外のレスポンスを表す。
// 401（認証）・403（所有権）・404（不存在）は操作の終端エラーであり、
// 503（ストア障害）はリトライ可能な一時エラーとして区別できる。
type HTTPError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Message はサーバーが返したエラーメッセージ。
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus はerr（またはラップされたエラー）が指定ステータスコードの
// HTTPErrorかどうかを返す。
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

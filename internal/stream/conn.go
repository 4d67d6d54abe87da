package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/notifyhub/pkg/event"
)

const (
	// writeWait は1回の書き込みに許容する最大時間。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのPong応答を待つ最大時間。
	pongWait = 60 * time.Second
	// pingPeriod はPing送信の間隔。pongWaitより短くなければならない。
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize はクライアントからの受信メッセージの最大サイズ。
	// クライアントからのデータは読み捨てるため小さくてよい。
	maxMessageSize = 512
	// sendBufferSize は接続ごとの送信バッファ長。
	// バッファが埋まった接続は遅延クライアントとみなして切断する。
	sendBufferSize = 32
)

var (
	// errConnClosed は閉じられた接続への送信を表す。
	errConnClosed = errors.New("接続は既に閉じられています")
	// errSendBufferFull は送信バッファが満杯であることを表す。
	errSendBufferFull = errors.New("送信バッファが満杯です")
)

// Conn は1本のWebSocket接続を表す。
// 接続は確立時に認証されたただ1人のユーザーに属し、その対応は接続の生存期間中不変。
// 書き込みはwritePumpの単一ゴルーチンに直列化される（gorilla/websocketは
// 並行書き込みをサポートしないため）。
type Conn struct {
	// ws は下位のWebSocket接続。
	ws *websocket.Conn
	// send はHubからの通知を書き込みゴルーチンへ渡すバッファ付きチャネル。
	send chan event.Notification
	// done は接続の終了を通知するチャネル。
	done chan struct{}
	// closeOnce はCloseの多重呼び出しを一度にまとめる。
	closeOnce sync.Once
}

// newConn はWebSocket接続をラップした新しいConnを生成する。
func newConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:   ws,
		send: make(chan event.Notification, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Send は通知を送信バッファに積む。ブロックしない。
// 接続が閉じている、またはバッファが満杯の場合はエラーを返す。
func (c *Conn) Send(msg event.Notification) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

// Close は接続を閉じる。複数回呼んでも安全。
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
	return nil
}

// writePump は送信バッファの通知を順番に書き込み、定期的にPingを送る。
// 通知は積まれた順（＝作成順）のまま配信され、途中で並び替えられることはない。
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump は切断検知のために受信ループを回す。
// このサブシステムのクライアントは接続上でデータを送らないため、受信内容は読み捨てる。
// 関数は接続が切れるまでブロックする。
func (c *Conn) readPump() {
	defer func() { _ = c.Close() }()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

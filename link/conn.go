package link

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn 通道所需的最小连接接口，*websocket.Conn 直接满足
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer 建立一条新连接
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer 基于 gorilla/websocket 的拨号器
type WSDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

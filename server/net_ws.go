package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"minisync/codec"
	"minisync/game"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	readLimit  = 1 << 20 // 1MB
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃），返回是否入队
func (c *ClientConn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性直接丢弃；下一帧完整快照会覆盖
		return false
	}
}

// Close 关闭底层连接并结束写协程；可重复调用
func (c *ClientConn) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定时发送 ping
func (c *ClientConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端帧：限流 → 解码 → 注入房间
func (c *ClientConn) readPump(room *Room, playerID PlayerID, limiter *rate.Limiter) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在 Tick 线程中移除该玩家
	defer room.RequestLeave(playerID, c)
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if limiter != nil && !limiter.Allow() {
			room.metrics.IncConnRateLimited()
			continue
		}
		m, err := codec.Decode(payload)
		if err != nil {
			// 帧级错误：记录后丢弃，连接保持
			room.metrics.IncDecodeErrors()
			Log.Debugw("discard frame", "room", room.ID, "player", playerID, "error", err)
			continue
		}
		in, ok := inputFromMessage(playerID, m)
		if !ok {
			Log.Debugw("ignoring server-side message type from client", "room", room.ID, "player", playerID, "type", m.MessageType())
			continue
		}
		room.OnInput(in)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?room=room-1&player=<uuid>&game=pong&country=USA
func HandleWS(w http.ResponseWriter, r *http.Request) {
	GetRoomManager().HandleWS(w, r)
}

func (m *RoomManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := game.Mode(q.Get("game"))
	if mode != "" && !mode.Valid() {
		http.Error(w, "unknown game mode", http.StatusBadRequest)
		return
	}
	playerID := uuid.New()
	if s := q.Get("player"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "player must be a uuid", http.StatusBadRequest)
			return
		}
		playerID = id
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "error", err)
		return
	}

	room := m.GetOrCreateRoom(q.Get("room"), mode)
	client := NewClientConn(ws)
	if !room.JoinPlayer(&Player{ID: playerID, Country: q.Get("country"), Conn: client}) {
		client.Close()
		return
	}

	go client.writePump()
	go client.readPump(room, playerID, m.newLimiter())
}

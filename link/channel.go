// Package link 是客户端一侧的同步通道：单条 WebSocket 连接，断线自动重连。
//
// 入站消息先进入有界收件箱，由调用方在自己的 tick 中 Poll 派发，
// 因此处理函数与 tick 永远不会并发执行。
package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"minisync/codec"
)

var (
	ErrNotOpen   = errors.New("link: channel not open")
	ErrQueueFull = errors.New("link: send queue full")
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	readLimit  = 1 << 20
)

// State 通道状态
type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Stats 通道计数
type Stats struct {
	Received     uint64
	DecodeErrors uint64
	Dropped      uint64
	Sent         uint64
	Reconnects   uint64
}

type Option func(*Channel)

func WithLogger(l *zap.SugaredLogger) Option { return func(c *Channel) { c.log = l } }

func WithDialer(d Dialer) Option { return func(c *Channel) { c.dialer = d } }

// WithReconnect 为 false 时意外断线后停在 Closed
func WithReconnect(on bool) Option { return func(c *Channel) { c.reconnect = on } }

func WithBackoff(min, max time.Duration) Option {
	return func(c *Channel) { c.minBackoff, c.maxBackoff = min, max }
}

func WithQueues(send, inbox int) Option {
	return func(c *Channel) { c.sendSize, c.inboxSize = send, inbox }
}

// WithStateHook 每次状态变化时回调，回调内不要阻塞
func WithStateHook(fn func(State)) Option { return func(c *Channel) { c.onState = fn } }

// Channel 客户端同步通道
type Channel struct {
	url        string
	dialer     Dialer
	log        *zap.SugaredLogger
	reconnect  bool
	minBackoff time.Duration
	maxBackoff time.Duration
	sendSize   int
	inboxSize  int
	onState    func(State)

	state atomic.Int32
	send  chan []byte
	inbox chan codec.Message

	// dispatchMu 串行化 Poll。closed 在每次调用处理函数之前检查，
	// 处理函数内部可以调用 Close 或 OnMessage
	dispatchMu sync.Mutex
	handler    atomic.Pointer[func(codec.Message)]
	closed     atomic.Bool

	connMu sync.Mutex
	conn   Conn

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	rng       *rand.Rand

	received, decodeErrors, dropped, sent, reconnects atomic.Uint64
}

// Dial 在后台开始连接 url 并立即返回
func Dial(ctx context.Context, url string, opts ...Option) *Channel {
	c := &Channel{
		url:        url,
		dialer:     WSDialer{},
		log:        zap.NewNop().Sugar(),
		reconnect:  true,
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 5 * time.Second,
		sendSize:   64,
		inboxSize:  128,
		rng:        rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.send = make(chan []byte, c.sendSize)
	c.inbox = make(chan codec.Message, c.inboxSize)
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.setState(Connecting)

	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Channel) State() State { return State(c.state.Load()) }

func (c *Channel) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.log.Debugw("link state", "url", c.url, "state", s.String())
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Channel) Stats() Stats {
	return Stats{
		Received:     c.received.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		Dropped:      c.dropped.Load(),
		Sent:         c.sent.Load(),
		Reconnects:   c.reconnects.Load(),
	}
}

// Send 编码后入队，不阻塞；非 Open 状态直接丢弃
func (c *Channel) Send(m codec.Message) error {
	if c.State() != Open {
		return ErrNotOpen
	}
	b, err := codec.Encode(m)
	if err != nil {
		return err
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// OnMessage 注册唯一的消息处理函数；Close 之后调用无效
func (c *Channel) OnMessage(fn func(codec.Message)) {
	if fn == nil {
		c.handler.Store(nil)
		return
	}
	c.handler.Store(&fn)
	if c.closed.Load() {
		c.handler.Store(nil)
	}
}

// Poll 在调用方协程内按到达顺序派发收件箱中的全部消息，返回派发条数。
// 处理函数调用 Close 后本次 Poll 立即停止，剩余消息不再派发
func (c *Channel) Poll() int {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	n := 0
	for !c.closed.Load() {
		select {
		case m := <-c.inbox:
			if c.closed.Load() {
				return n
			}
			if h := c.handler.Load(); h != nil {
				(*h)(m)
			}
			n++
		default:
			return n
		}
	}
	return n
}

// WaitOpen 阻塞直到通道进入 Open 或 ctx 结束
func (c *Channel) WaitOpen(ctx context.Context) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for {
		switch c.State() {
		case Open:
			return nil
		case Closing, Closed:
			if c.ctx.Err() != nil || !c.reconnect {
				return ErrNotOpen
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Close 取消未发送的数据、关闭连接并注销处理函数。可重复调用，也可以在处理函数中调用。
// 返回后开始的 Poll 不会再派发任何消息；与另一协程上的 Poll 并发时，
// 正在执行的那一次处理函数照常结束
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		// 不取 dispatchMu：处理函数里调用 Close 时该锁由本协程的 Poll 持有
		c.closed.Store(true)
		c.handler.Store(nil)
		c.setState(Closing)
		c.cancel()
		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.connMu.Unlock()
		c.wg.Wait()

		drain(c.send)
		c.setState(Closed)
	})
	return nil
}

func (c *Channel) run() {
	defer c.wg.Done()
	attempt := 0
	for {
		conn, err := c.dialer.Dial(c.ctx, c.url)
		if err == nil {
			attempt = 0
			c.serve(conn)
		} else if c.ctx.Err() == nil {
			c.log.Warnw("link dial failed", "url", c.url, "error", err)
		}
		if c.ctx.Err() != nil {
			return
		}
		c.setState(Closed)
		if !c.reconnect {
			return
		}
		attempt++
		c.reconnects.Add(1)
		c.setState(Reconnecting)
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.backoff(attempt)):
		}
		c.setState(Connecting)
	}
}

// backoff 指数退避加抖动
func (c *Channel) backoff(attempt int) time.Duration {
	d := c.minBackoff
	for i := 1; i < attempt && d < c.maxBackoff; i++ {
		d *= 2
	}
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	if half := int64(d / 2); half > 0 {
		return time.Duration(half + c.rng.Int63n(half))
	}
	return d
}

func (c *Channel) serve(conn Conn) {
	c.connMu.Lock()
	if c.ctx.Err() != nil {
		c.connMu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.connMu.Unlock()

	// 上一条连接没写出去的输入直接作废
	drain(c.send)
	c.setState(Open)
	c.log.Infow("link open", "url", c.url)

	done := make(chan struct{})
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		c.writePump(conn, done)
	}()
	c.readPump(conn)
	close(done)
	_ = conn.Close()
	writer.Wait()

	c.connMu.Lock()
	c.conn = nil
	c.connMu.Unlock()
	if c.ctx.Err() == nil {
		c.log.Infow("link dropped", "url", c.url)
	}
}

func (c *Channel) readPump(conn Conn) {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		m, err := codec.Decode(payload)
		if err != nil {
			c.decodeErrors.Add(1)
			c.log.Debugw("link discard frame", "error", err)
			continue
		}
		c.received.Add(1)
		c.deliver(m)
	}
}

// deliver 收件箱满时丢弃最旧的一条，新的快照总比旧的有用
func (c *Channel) deliver(m codec.Message) {
	for {
		select {
		case c.inbox <- m:
			return
		default:
		}
		select {
		case <-c.inbox:
			c.dropped.Add(1)
		default:
		}
	}
}

func (c *Channel) writePump(conn Conn, done <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case b := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debugw("link write failed", "error", err)
				_ = conn.Close()
				return
			}
			c.sent.Add(1)
		}
	}
}

func drain(ch chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

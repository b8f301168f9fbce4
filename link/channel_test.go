package link

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"minisync/codec"
	"minisync/game"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func snapshot(seq uint64) []byte {
	st := game.NewGameState(uuid.New(), game.ModePath)
	st.Seq = seq
	b, err := codec.Encode(&codec.StateBroadcast{GameState: st})
	if err != nil {
		panic(err)
	}
	return b
}

// newServer 每条连接交给 fn 处理
func newServer(t *testing.T, fn func(conn *websocket.Conn, n int)) *httptest.Server {
	t.Helper()
	var count atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn, int(count.Add(1)))
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func waitOpen(t *testing.T, c *Channel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitOpen(ctx); err != nil {
		t.Fatalf("channel never opened: %v (state %s)", err, c.State())
	}
}

// pollUntil 反复 Poll 直到 cond 成立
func pollUntil(t *testing.T, c *Channel, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		c.Poll()
		time.Sleep(2 * time.Millisecond)
	}
}

func readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestMessagesArriveInOrder(t *testing.T) {
	const n = 20
	s := newServer(t, func(conn *websocket.Conn, _ int) {
		for i := 1; i <= n; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, snapshot(uint64(i))); err != nil {
				return
			}
		}
		readUntilClosed(conn)
	})

	c := Dial(context.Background(), wsURL(s))
	defer c.Close()

	var seqs []uint64
	c.OnMessage(func(m codec.Message) {
		seqs = append(seqs, m.(*codec.StateBroadcast).Seq)
	})
	pollUntil(t, c, func() bool { return len(seqs) == n })
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("message %d has seq %d", i, seq)
		}
	}
}

func TestBadFramesAreDiscardedConnectionStaysOpen(t *testing.T) {
	s := newServer(t, func(conn *websocket.Conn, _ int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("x"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("\"not base64!\"\n"))
		_ = conn.WriteMessage(websocket.TextMessage, snapshot(7))
		readUntilClosed(conn)
	})

	c := Dial(context.Background(), wsURL(s))
	defer c.Close()
	var got []codec.Message
	c.OnMessage(func(m codec.Message) { got = append(got, m) })
	pollUntil(t, c, func() bool { return len(got) == 1 })

	if st := c.Stats(); st.DecodeErrors != 2 || st.Received != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if c.State() != Open {
		t.Fatalf("state = %s, want open", c.State())
	}
}

func TestSendDeliversToServer(t *testing.T) {
	got := make(chan codec.Message, 1)
	s := newServer(t, func(conn *websocket.Conn, _ int) {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m, err := codec.Decode(b)
		if err == nil {
			got <- m
		}
		readUntilClosed(conn)
	})

	c := Dial(context.Background(), wsURL(s))
	defer c.Close()
	waitOpen(t, c)

	if err := c.Send(&codec.WaypointAdd{Header: codec.Header{Seq: 1}, Point: game.Vec2{X: 100, Y: 50}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case m := <-got:
		w, ok := m.(*codec.WaypointAdd)
		if !ok || w.Point != (game.Vec2{X: 100, Y: 50}) {
			t.Fatalf("server got %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received the message")
	}
}

type failingDialer struct{ calls atomic.Int32 }

func (d *failingDialer) Dial(context.Context, string) (Conn, error) {
	d.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestSendWhileNotOpenIsDropped(t *testing.T) {
	d := &failingDialer{}
	c := Dial(context.Background(), "ws://unused", WithDialer(d), WithBackoff(time.Millisecond, 2*time.Millisecond))
	defer c.Close()

	if err := c.Send(&codec.WaypointAdd{}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send = %v, want ErrNotOpen", err)
	}
	deadline := time.Now().Add(time.Second)
	for d.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("dialer retried %d times", d.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
	c.Close()
	if c.State() != Closed {
		t.Fatalf("state = %s, want closed", c.State())
	}
	if err := c.Send(&codec.WaypointAdd{}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send after Close = %v, want ErrNotOpen", err)
	}
}

func TestNoHandlerRunsAfterClose(t *testing.T) {
	s := newServer(t, func(conn *websocket.Conn, _ int) {
		for seq := uint64(1); ; seq++ {
			if err := conn.WriteMessage(websocket.TextMessage, snapshot(seq)); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	})

	c := Dial(context.Background(), wsURL(s))
	var calls atomic.Int32
	c.OnMessage(func(codec.Message) { calls.Add(1) })
	pollUntil(t, c, func() bool { return calls.Load() >= 3 })

	var returned atomic.Bool
	var late atomic.Int32
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			// 只统计 Close 返回之后才开始的 Poll
			after := returned.Load()
			if n := c.Poll(); after && n > 0 {
				late.Add(int32(n))
			}
		}
	}()
	c.Close()
	returned.Store(true)
	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()

	if n := late.Load(); n != 0 {
		t.Fatalf("%d messages dispatched by Poll calls that began after Close", n)
	}
	before := calls.Load()
	if c.Poll() != 0 || calls.Load() != before {
		t.Fatalf("Poll dispatched after Close")
	}
	c.OnMessage(func(codec.Message) { calls.Add(1) })
	if c.Poll() != 0 || calls.Load() != before {
		t.Fatalf("handler registered after Close was invoked")
	}
}

func TestCloseFromHandler(t *testing.T) {
	s := newServer(t, func(conn *websocket.Conn, _ int) {
		for seq := uint64(1); seq <= 5; seq++ {
			_ = conn.WriteMessage(websocket.TextMessage, snapshot(seq))
		}
		readUntilClosed(conn)
	})

	c := Dial(context.Background(), wsURL(s))
	waitOpen(t, c)
	var calls atomic.Int32
	c.OnMessage(func(codec.Message) {
		calls.Add(1)
		c.Close()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for c.State() != Closed {
			c.Poll()
			time.Sleep(time.Millisecond)
		}
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Close inside the handler never returned; state %s", c.State())
	}

	if n := calls.Load(); n != 1 {
		t.Fatalf("handler ran %d times, want exactly 1", n)
	}
	if c.Poll() != 0 {
		t.Fatalf("Poll dispatched after Close")
	}
	if err := c.Send(&codec.WaypointAdd{Point: game.Vec2{X: 1, Y: 1}}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send after Close = %v, want ErrNotOpen", err)
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	s := newServer(t, func(conn *websocket.Conn, n int) {
		_ = conn.WriteMessage(websocket.TextMessage, snapshot(uint64(n)))
		if n == 1 {
			return
		}
		readUntilClosed(conn)
	})

	var mu sync.Mutex
	var states []State
	c := Dial(context.Background(), wsURL(s),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
		WithStateHook(func(st State) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		}))
	defer c.Close()

	var seqs []uint64
	c.OnMessage(func(m codec.Message) { seqs = append(seqs, m.(*codec.StateBroadcast).Seq) })
	pollUntil(t, c, func() bool { return len(seqs) == 2 })

	if seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("seqs = %v", seqs)
	}
	if c.Stats().Reconnects == 0 {
		t.Fatalf("expected a reconnect")
	}
	mu.Lock()
	defer mu.Unlock()
	sawReconnecting := false
	for _, st := range states {
		if st == Reconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Fatalf("states %v never entered reconnecting", states)
	}
}

func TestNoReconnectStopsClosed(t *testing.T) {
	s := newServer(t, func(conn *websocket.Conn, _ int) {})
	c := Dial(context.Background(), wsURL(s), WithReconnect(false))
	defer c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != Closed {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want closed", c.State())
		}
		time.Sleep(2 * time.Millisecond)
	}
	if c.Stats().Reconnects != 0 {
		t.Fatalf("reconnected with reconnect disabled")
	}
}

func TestInboxDropsOldestWhenFull(t *testing.T) {
	c := &Channel{inbox: make(chan codec.Message, 2)}
	for i := 1; i <= 3; i++ {
		st := game.NewGameState(uuid.New(), game.ModePath)
		st.Seq = uint64(i)
		c.deliver(&codec.StateBroadcast{GameState: st})
	}
	if c.dropped.Load() != 1 {
		t.Fatalf("dropped = %d", c.dropped.Load())
	}
	if first := (<-c.inbox).(*codec.StateBroadcast).Seq; first != 2 {
		t.Fatalf("oldest kept seq = %d, want 2", first)
	}
}

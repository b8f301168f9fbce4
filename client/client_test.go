package client

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"minisync/codec"
	"minisync/game"
	"minisync/sim"
)

func pongState(t *testing.T, id uuid.UUID, seq uint64, paddleY float64) game.GameState {
	t.Helper()
	st := game.NewGameState(id, game.ModePong)
	st.Seq = seq
	m, err := game.NewMatch(800, 400, game.Vec2{X: 3, Y: -4})
	if err != nil {
		t.Fatal(err)
	}
	m.UserPaddle.Position.Y = paddleY
	st.Match = &m
	return st
}

func newReconciler() *Reconciler { return NewReconciler(sim.New(sim.DefaultRules()), nil) }

func TestAuthoritativeSnapshotOverridesLocalPrediction(t *testing.T) {
	r := newReconciler()
	id := uuid.New()
	if err := r.Apply(pongState(t, id, 1, 150)); err != nil {
		t.Fatal(err)
	}

	in, err := r.MoveLocalPaddle(200)
	if err != nil {
		t.Fatalf("MoveLocalPaddle: %v", err)
	}
	if in.UserPaddle == nil || in.UserPaddle.Position.Y != 200 || in.Seq != 1 {
		t.Fatalf("input update = %+v", in)
	}
	r.Predict(sim.Inputs{})
	if got := r.View().Match.UserPaddle.Position.Y; got != 200 {
		t.Fatalf("predicted paddle y = %g, want 200", got)
	}

	if err := r.Apply(pongState(t, id, 2, 50)); err != nil {
		t.Fatal(err)
	}
	if got := r.View().Match.UserPaddle.Position.Y; got != 50 {
		t.Fatalf("rendered paddle y after snapshot = %g, want 50", got)
	}
	r.Predict(sim.Inputs{})
	if got := r.View().Match.UserPaddle.Position.Y; got != 50 {
		t.Fatalf("prediction resurrected local paddle: %g", got)
	}
}

// launchedState 返回刚发射、尚未激活一枚导弹的快照
func launchedState(t *testing.T) game.GameState {
	t.Helper()
	st := game.NewGameState(uuid.New(), game.ModeMissiles)
	st.Countries = game.DefaultCountries()
	launch := sim.Launch{Country: "USA", Battery: 0, TargetCountry: "Russia", TargetCity: "Moscow"}
	st = sim.New(sim.DefaultRules()).Step(st, sim.Inputs{Launches: []sim.Launch{launch}}, 1)
	if len(st.Missiles) != 1 {
		t.Fatalf("launch failed: %+v", st.Missiles)
	}
	st.Seq = 1
	return st
}

func TestPredictionUsesRulesFromServer(t *testing.T) {
	r := newReconciler()
	if err := r.Apply(launchedState(t)); err != nil {
		t.Fatal(err)
	}
	if got := r.Predict(sim.Inputs{}).Missiles[0].Elapsed; math.Abs(got-12) > 1e-9 {
		t.Fatalf("elapsed with default rules = %g, want 12", got)
	}

	// 25 Hz 的房间：欢迎消息带来的步长覆盖本地默认值
	rules := sim.DefaultRules()
	rules.TickSeconds = 0.04
	r.Handle(&codec.Welcome{PlayerID: uuid.New(), Room: "slow", Mode: game.ModeMissiles, TickHz: 25, Rules: &rules})
	if r.View().Seq != 1 || len(r.View().Missiles) != 1 || r.View().Missiles[0].Active {
		t.Fatalf("rules change should drop the stale prediction: %+v", r.View().Missiles)
	}
	if got := r.Predict(sim.Inputs{}).Missiles[0].Elapsed; math.Abs(got-24) > 1e-9 {
		t.Fatalf("elapsed after welcome = %g, want 24", got)
	}

	// 管理接口热更新
	rules.TimeScale = 1200
	r.Handle(&codec.RulesUpdate{Rules: rules})
	if got := r.Predict(sim.Inputs{}).Missiles[0].Elapsed; math.Abs(got-48) > 1e-9 {
		t.Fatalf("elapsed after rules update = %g, want 48", got)
	}
	if r.Rules() != rules {
		t.Fatalf("rules = %+v, want %+v", r.Rules(), rules)
	}
}

func TestInvalidRulesFromServerIgnored(t *testing.T) {
	r := newReconciler()
	bad := sim.DefaultRules()
	bad.TickSeconds = 0
	bad.AIFollow = 2
	r.Handle(&codec.RulesUpdate{Rules: bad})
	r.Handle(&codec.Welcome{PlayerID: uuid.New(), Mode: game.ModePong, TickHz: 50, Rules: &bad})
	if r.Rules() != sim.DefaultRules() {
		t.Fatalf("invalid rules adopted: %+v", r.Rules())
	}
	if r.Identity().Mode != game.ModePong {
		t.Fatalf("welcome identity dropped along with its rules: %+v", r.Identity())
	}
	// 不带规则的欢迎消息保留当前参数
	r.Handle(&codec.Welcome{PlayerID: uuid.New(), Mode: game.ModePath, TickHz: 50})
	if r.Rules() != sim.DefaultRules() {
		t.Fatalf("rules reset by bare welcome: %+v", r.Rules())
	}
}

func TestApplyTwiceIsIdempotent(t *testing.T) {
	r := newReconciler()
	st := pongState(t, uuid.New(), 3, 120)
	st.Log("point to the left paddle (1 : 0)")

	if err := r.Apply(st); err != nil {
		t.Fatal(err)
	}
	first, _ := r.Mirror()
	feed := r.Feed()
	if err := r.Apply(st); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second, _ := r.Mirror()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("mirror changed on re-application")
	}
	if !reflect.DeepEqual(feed, r.Feed()) || len(feed) != 1 {
		t.Fatalf("feed = %v, want one line", r.Feed())
	}
}

func TestStaleSnapshotDropped(t *testing.T) {
	r := newReconciler()
	id := uuid.New()
	if err := r.Apply(pongState(t, id, 5, 100)); err != nil {
		t.Fatal(err)
	}
	if err := r.Apply(pongState(t, id, 4, 10)); !errors.Is(err, ErrStale) {
		t.Fatalf("Apply(seq 4) = %v, want ErrStale", err)
	}
	mirror, _ := r.Mirror()
	if mirror.Seq != 5 || mirror.Match.UserPaddle.Position.Y != 100 {
		t.Fatalf("stale snapshot leaked into mirror: %+v", mirror)
	}
	if _, stale, _ := r.Counts(); stale != 1 {
		t.Fatalf("stale count = %d", stale)
	}
}

func TestNewSessionResetsSequence(t *testing.T) {
	r := newReconciler()
	if err := r.Apply(pongState(t, uuid.New(), 90, 100)); err != nil {
		t.Fatal(err)
	}
	if err := r.Apply(pongState(t, uuid.New(), 1, 20)); err != nil {
		t.Fatalf("snapshot from a restarted session rejected: %v", err)
	}
	if r.LastSeq() != 1 {
		t.Fatalf("last seq = %d", r.LastSeq())
	}
}

func TestInvalidSnapshotKeepsLastGood(t *testing.T) {
	r := newReconciler()
	id := uuid.New()
	good := game.NewGameState(id, game.ModeMissiles)
	good.Seq = 1
	good.Countries = game.DefaultCountries()
	if err := r.Apply(good); err != nil {
		t.Fatal(err)
	}

	bad := game.NewGameState(id, game.ModeMissiles)
	bad.Seq = 2
	bad.Countries = game.DefaultCountries()
	usa := bad.Countries["USA"]
	ny := usa.Cities["New York"]
	ny.Population = -1
	usa.Cities["New York"] = ny

	err := r.Apply(bad)
	var verr *game.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Apply(bad) = %v, want ValidationError", err)
	}
	mirror, _ := r.Mirror()
	if mirror.Seq != 1 || mirror.Countries["USA"].Cities["New York"].Population != 50000000 {
		t.Fatalf("invalid snapshot replaced the mirror")
	}
}

func TestFeedAppendsOnlyUnseenLines(t *testing.T) {
	r := newReconciler()
	id := uuid.New()
	steps := []struct {
		offset int
		lines  []string
	}{
		{0, []string{"a", "b"}},
		{1, []string{"b", "c"}},
		{2, []string{"c", "d"}},
		{2, []string{"c", "d"}},
	}
	for i, s := range steps {
		st := game.NewGameState(id, game.ModePath)
		st.Seq = uint64(i + 1)
		st.LogOffset = s.offset
		st.Messages = s.lines
		if err := r.Apply(st); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.Feed(); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("feed = %v", got)
	}
}

func TestMirrorIsIsolatedFromCaller(t *testing.T) {
	r := newReconciler()
	st := game.NewGameState(uuid.New(), game.ModeMissiles)
	st.Countries = game.DefaultCountries()
	if err := r.Apply(st); err != nil {
		t.Fatal(err)
	}
	st.Countries["USA"].Cities["New York"] = game.City{Name: "New York"}
	mirror, _ := r.Mirror()
	if mirror.Countries["USA"].Cities["New York"].Population != 50000000 {
		t.Fatalf("mirror aliases the applied snapshot")
	}
}

type call struct {
	kind string
	text string
}

type recordingSurface struct{ calls []call }

func (s *recordingSurface) Clear(w, h float64) { s.calls = append(s.calls, call{kind: "clear"}) }
func (s *recordingSurface) Circle(game.Vec2, float64, string) {
	s.calls = append(s.calls, call{kind: "circle"})
}
func (s *recordingSurface) Rect(game.Vec2, float64, float64, string) {
	s.calls = append(s.calls, call{kind: "rect"})
}
func (s *recordingSurface) Text(_ game.Vec2, text, _ string) {
	s.calls = append(s.calls, call{kind: "text", text: text})
}
func (s *recordingSurface) Image(name string, _ game.Vec2, _, _ float64) {
	s.calls = append(s.calls, call{kind: "image", text: name})
}

func (s *recordingSurface) count(kind string) int {
	n := 0
	for _, c := range s.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func TestEmptyBroadcastRendersCleanly(t *testing.T) {
	payload := `{"type":"gameStateBroadcast","id":"` + uuid.NewString() + `","missiles":[],"countries":{}}`
	m, err := codec.Decode([]byte(`"` + base64.StdEncoding.EncodeToString([]byte(payload)) + "\"\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r := newReconciler()
	r.Handle(m)
	if _, ok := r.Mirror(); !ok {
		t.Fatalf("empty broadcast not applied")
	}

	s := &recordingSurface{}
	DrawFrame(r.View(), r.Feed(), s)
	if s.count("clear") != 1 || s.count("image") != 1 || s.count("circle") != 0 {
		t.Fatalf("unexpected draw calls %+v", s.calls)
	}
}

func TestDrawFrameCoversEntities(t *testing.T) {
	st := game.NewGameState(uuid.New(), game.ModeMissiles)
	st.Countries = game.DefaultCountries()
	msl, err := game.NewMissile("USA", game.GeoPoint{Latitude: 40, Longitude: -74}, "Russia", st.Countries["Russia"].Cities["Moscow"], 2.5)
	if err != nil {
		t.Fatal(err)
	}
	st.Missiles = append(st.Missiles, msl)

	s := &recordingSurface{}
	DrawFrame(st, []string{"one", "two"}, s)
	// 4 座城市 + 1 枚导弹
	if got := s.count("circle"); got != 5 {
		t.Fatalf("circles = %d, want 5", got)
	}
	if got := s.count("rect"); got != 3 {
		t.Fatalf("battery rects = %d, want 3", got)
	}
	last := s.calls[len(s.calls)-1]
	if last.kind != "text" || last.text != "two" {
		t.Fatalf("feed not drawn last: %+v", last)
	}
}

func TestProject(t *testing.T) {
	if p := Project(game.GeoPoint{}, 800, 400); p != (game.Vec2{X: 400, Y: 200}) {
		t.Fatalf("origin projects to %v", p)
	}
	if p := Project(game.GeoPoint{Latitude: 90, Longitude: -180}, 800, 400); p != (game.Vec2{}) {
		t.Fatalf("north-west corner projects to %v", p)
	}
}

type fakeLink struct {
	handler func(codec.Message)
	queue   []codec.Message
	sent    []codec.Message
}

func (f *fakeLink) OnMessage(fn func(codec.Message)) { f.handler = fn }
func (f *fakeLink) Poll() int {
	n := len(f.queue)
	for _, m := range f.queue {
		f.handler(m)
	}
	f.queue = nil
	return n
}
func (f *fakeLink) Send(m codec.Message) error {
	f.sent = append(f.sent, m)
	return nil
}

func TestLoopTickPollsPredictsAndDraws(t *testing.T) {
	r := newReconciler()
	link := &fakeLink{}
	s := &recordingSurface{}
	loop := &Loop{
		Link:       link,
		Reconciler: r,
		Surface:    s,
		Controller: func(tick uint64, r *Reconciler) []codec.Message {
			if tick != 2 {
				return nil
			}
			in, err := r.MoveLocalPaddle(10)
			if err != nil {
				t.Errorf("MoveLocalPaddle: %v", err)
				return nil
			}
			return []codec.Message{in}
		},
	}
	link.OnMessage(r.Handle)

	loop.Tick()
	if s.count("clear") != 0 {
		t.Fatalf("drew before any snapshot arrived")
	}

	link.queue = append(link.queue, &codec.StateBroadcast{GameState: pongState(t, uuid.New(), 1, 150)})
	loop.Tick()
	if s.count("clear") != 1 {
		t.Fatalf("expected one frame, got %d", s.count("clear"))
	}
	if len(link.sent) != 1 || r.View().Match.UserPaddle.Position.Y != 10 {
		t.Fatalf("local input not sent or not predicted: sent=%d y=%g", len(link.sent), r.View().Match.UserPaddle.Position.Y)
	}
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	loop := &Loop{Link: &fakeLink{}, Reconciler: newReconciler(), Period: time.Millisecond}
	if err := loop.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v", err)
	}
	if loop.Ticks() == 0 {
		t.Fatalf("loop never ticked")
	}
}

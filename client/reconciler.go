// Package client 维护服务端状态的只读镜像，并在其上做单帧预测
package client

import (
	"errors"

	"github.com/brunoga/deep/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"minisync/codec"
	"minisync/game"
	"minisync/sim"
)

var ErrStale = errors.New("client: stale snapshot")

// DefaultFeedLimit 可见日志最多保留的行数
const DefaultFeedLimit = 200

// Identity 服务端在 welcome 中分配的身份
type Identity struct {
	PlayerID  uuid.UUID
	SessionID uuid.UUID
	Room      string
	Country   string
	Mode      game.Mode
	TickHz    int
}

// Reconciler 镜像 + 预测。非并发安全，只在客户端 tick 协程中使用
type Reconciler struct {
	sim sim.Simulator
	log *zap.SugaredLogger

	mirror    game.GameState
	hasMirror bool
	lastSeq   uint64

	feed      []string
	nextLog   int
	FeedLimit int

	pending   sim.Inputs
	predicted *game.GameState
	inputSeq  uint64
	identity  Identity

	applied, stale, invalid uint64
}

func NewReconciler(s sim.Simulator, log *zap.SugaredLogger) *Reconciler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{sim: s, log: log, FeedLimit: DefaultFeedLimit}
}

// Handle 作为通道的消息处理函数
func (r *Reconciler) Handle(m codec.Message) {
	switch msg := m.(type) {
	case *codec.StateBroadcast:
		if err := r.Apply(msg.GameState); err != nil && !errors.Is(err, ErrStale) {
			r.log.Warnw("snapshot rejected", "seq", msg.Seq, "error", err)
		}
	case *codec.Welcome:
		r.identity = Identity{
			PlayerID:  msg.PlayerID,
			SessionID: msg.SessionID,
			Room:      msg.Room,
			Country:   msg.Country,
			Mode:      msg.Mode,
			TickHz:    msg.TickHz,
		}
		r.log.Infow("welcome", "player", msg.PlayerID, "room", msg.Room, "country", msg.Country, "mode", msg.Mode)
		if msg.Rules != nil {
			r.SetRules(*msg.Rules)
		}
	case *codec.RulesUpdate:
		r.SetRules(msg.Rules)
	default:
		r.log.Debugw("ignoring message", "type", m.MessageType())
	}
}

// SetRules 换用服务端下发的模拟参数；不合法时保留原参数。
// 当前预测随之作废，下一次 Predict 按新参数计算
func (r *Reconciler) SetRules(rules sim.Rules) {
	if err := rules.Validate(); err != nil {
		r.log.Warnw("rules rejected", "error", err)
		return
	}
	r.sim = sim.New(rules)
	r.predicted = nil
	r.log.Infow("rules updated", "tickSeconds", rules.TickSeconds, "timeScale", rules.TimeScale, "greatCircle", rules.GreatCircle)
}

func (r *Reconciler) Rules() sim.Rules { return r.sim.Rules }

// Apply 用快照整体替换镜像。校验失败保留上一份好的状态，序号更旧的直接丢弃
func (r *Reconciler) Apply(st game.GameState) error {
	if err := st.Validate(); err != nil {
		r.invalid++
		return err
	}
	sameSession := r.hasMirror && st.ID == r.mirror.ID
	if sameSession && st.Seq < r.lastSeq {
		r.stale++
		return ErrStale
	}
	if r.hasMirror && !sameSession {
		// 新会话：序号与日志都从头开始
		r.feed = nil
		r.nextLog = 0
	}

	r.mirror = deep.MustCopy(st)
	r.mirror.Normalize()
	r.hasMirror = true
	r.lastSeq = st.Seq
	r.pending = sim.Inputs{}
	r.predicted = nil
	r.applied++
	r.appendFeed(st)
	return nil
}

// appendFeed 只追加绝对序号未见过的日志行，重复应用同一快照不会重复显示
func (r *Reconciler) appendFeed(st game.GameState) {
	for i, line := range st.Messages {
		abs := st.LogOffset + i
		if abs < r.nextLog {
			continue
		}
		r.feed = append(r.feed, line)
		r.nextLog = abs + 1
	}
	if r.FeedLimit > 0 && len(r.feed) > r.FeedLimit {
		r.feed = append([]string{}, r.feed[len(r.feed)-r.FeedLimit:]...)
	}
}

// Predict 从镜像出发前进一帧。预测不会累积，下一次 Apply 即作废
func (r *Reconciler) Predict(in sim.Inputs) game.GameState {
	if !r.hasMirror {
		return game.GameState{}
	}
	next := r.sim.Step(r.mirror, r.pending.Merge(in), 1)
	r.predicted = &next
	return next
}

// MoveLocalPaddle 记录本地球拍位置用于预测，返回需要上行的输入
func (r *Reconciler) MoveLocalPaddle(y float64) (*codec.InputUpdate, error) {
	if !r.hasMirror || r.mirror.Match == nil {
		return nil, errors.New("client: no paddle to move")
	}
	if err := sim.ValidatePaddleY(r.mirror.Match, y); err != nil {
		return nil, err
	}
	r.pending.UserPaddleY = &y
	p := r.mirror.Match.UserPaddle
	p.Position.Y = y
	r.inputSeq++
	return &codec.InputUpdate{Header: codec.Header{Seq: r.inputSeq}, UserPaddle: &p}, nil
}

// AddWaypoint 本地先画出路点，同时返回上行消息
func (r *Reconciler) AddWaypoint(p game.Vec2) (*codec.WaypointAdd, error) {
	if !p.IsFinite() {
		return nil, errors.New("client: waypoint not finite")
	}
	r.pending.Waypoints = append(r.pending.Waypoints, p)
	r.inputSeq++
	return &codec.WaypointAdd{Header: codec.Header{Seq: r.inputSeq}, Point: p}, nil
}

// Launch 发射不做本地预测，等待服务端确认
func (r *Reconciler) Launch(battery int, targetCountry, targetCity string) *codec.MissileLaunch {
	r.inputSeq++
	return &codec.MissileLaunch{
		Header:        codec.Header{Seq: r.inputSeq},
		Battery:       battery,
		TargetCountry: targetCountry,
		TargetCity:    targetCity,
	}
}

// View 当前应渲染的状态
func (r *Reconciler) View() game.GameState {
	if r.predicted != nil {
		return *r.predicted
	}
	return r.mirror
}

func (r *Reconciler) Mirror() (game.GameState, bool) { return r.mirror, r.hasMirror }

func (r *Reconciler) LastSeq() uint64 { return r.lastSeq }

func (r *Reconciler) Identity() Identity { return r.identity }

// Feed 可见日志的副本
func (r *Reconciler) Feed() []string { return append([]string{}, r.feed...) }

// Counts 已应用、过期、无效的快照数
func (r *Reconciler) Counts() (applied, stale, invalid uint64) {
	return r.applied, r.stale, r.invalid
}

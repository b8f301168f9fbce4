package server

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"

	"minisync/codec"
	"minisync/game"
	"minisync/replay"
	"minisync/sim"
)

// RoomOptions 创建房间时的参数
type RoomOptions struct {
	Mode             game.Mode
	Rules            sim.Rules
	TickHz           int
	MaxInputsPerTick int

	SimulateDelayMinMs int
	SimulateDelayMaxMs int
	SimulateDropProb   float64

	Recorder *replay.Recorder
	Seed     uint64 // 0 表示按时间取种子
}

func DefaultRoomOptions() RoomOptions {
	return RoomOptions{
		Mode:             game.ModeMissiles,
		Rules:            sim.DefaultRules(),
		TickHz:           50,
		MaxInputsPerTick: 4,
	}
}

type leaveReq struct {
	id   PlayerID
	conn *ClientConn
}

// Room 房间世界：权威状态维护在内存，只有房间协程可以写
type Room struct {
	ID   string
	Mode game.Mode

	state   game.GameState
	players map[PlayerID]*Player
	order   []PlayerID // 加入顺序；第一个球拍模式玩家控制左侧球拍

	joinChan  chan *Player
	leaveChan chan leaveReq
	inputChan chan Input
	delayed   []Input

	// 配置：可由管理接口热更新
	cfgMu              sync.RWMutex
	rules              sim.Rules
	rulesChanged       bool // 下一个 tick 需要向玩家下发新规则
	maxInputsPerTick   int
	simulateDelayMinMs int
	simulateDelayMaxMs int
	simulateDropProb   float64

	tickInterval  time.Duration
	tickerStarted bool
	quit          chan struct{}
	done          chan struct{}
	stopOnce      sync.Once

	tickSeq     atomic.Uint64 // 已广播的快照序号
	playerCount atomic.Int32
	metrics     *RoomMetrics
	recorder    *replay.Recorder
	rng         *rand.Rand
}

// NewRoom 创建房间，按模式初始化世界
func NewRoom(id string, opts RoomOptions) *Room {
	if !opts.Mode.Valid() {
		opts.Mode = game.ModeMissiles
	}
	if opts.TickHz <= 0 {
		opts.TickHz = 50
	}
	if opts.MaxInputsPerTick <= 0 {
		opts.MaxInputsPerTick = 4
	}
	// 步长只由 tick 频率决定
	opts.Rules.TickSeconds = 1 / float64(opts.TickHz)
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	r := &Room{
		ID:                 id,
		Mode:               opts.Mode,
		players:            make(map[PlayerID]*Player),
		joinChan:           make(chan *Player, 64),
		leaveChan:          make(chan leaveReq, 64),
		inputChan:          make(chan Input, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		rules:              opts.Rules,
		maxInputsPerTick:   opts.MaxInputsPerTick,
		simulateDelayMinMs: opts.SimulateDelayMinMs,
		simulateDelayMaxMs: opts.SimulateDelayMaxMs,
		simulateDropProb:   opts.SimulateDropProb,
		tickInterval:       time.Second / time.Duration(opts.TickHz),
		quit:               make(chan struct{}),
		done:               make(chan struct{}),
		metrics:            &RoomMetrics{},
		recorder:           opts.Recorder,
		rng:                rand.New(rand.NewSource(seed)),
	}
	r.state = r.initialState()
	return r
}

func (r *Room) initialState() game.GameState {
	st := game.NewGameState(uuid.New(), r.Mode)
	switch r.Mode {
	case game.ModeMissiles:
		st.Countries = game.DefaultCountries()
	case game.ModePong:
		m, err := game.NewMatch(Canvas.Width, Canvas.Height, r.serve())
		if err == nil {
			st.Match = &m
		}
	case game.ModePath:
		f, err := game.NewPathFollower(game.Vec2{}, 1)
		if err == nil {
			st.Tracer = &f
		}
	}
	st.Log(fmt.Sprintf("room %s started (%s)", r.ID, r.Mode))
	return st
}

// serve 随机发球方向：左右随机，角度在 ±45° 内
func (r *Room) serve() game.Vec2 {
	angle := (r.rng.Float64()*2 - 1) * math.Pi / 4
	dir := 1.0
	if r.rng.Intn(2) == 0 {
		dir = -1
	}
	return game.Vec2{
		X: dir * game.DefaultBallSpeed * math.Cos(angle),
		Y: game.DefaultBallSpeed * math.Sin(angle),
	}
}

func (r *Room) Simulator() sim.Simulator {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return sim.New(r.rules)
}

func (r *Room) Metrics() *RoomMetrics { return r.metrics }

func (r *Room) PlayerCount() int { return int(r.playerCount.Load()) }

func (r *Room) Seq() uint64 { return r.tickSeq.Load() }

// JoinPlayer 请求在 Tick 线程中加入玩家；房间已停止时返回 false
func (r *Room) JoinPlayer(p *Player) bool {
	select {
	case r.joinChan <- p:
		return true
	case <-r.quit:
		return false
	}
}

// RequestLeave 请求在 Tick 线程中移除玩家，避免并发改动房间状态
// conn 用于区分同一玩家的新旧连接：旧连接退出不会踢掉重连后的新连接
func (r *Room) RequestLeave(pid PlayerID, conn *ClientConn) {
	select {
	case r.leaveChan <- leaveReq{id: pid, conn: conn}:
	case <-r.quit:
	}
}

// OnInput 入站输入（不立即改变状态），仅记录意图，等下一次 Tick 处理
func (r *Room) OnInput(in Input) {
	// 不阻塞：输入拥塞时丢弃，保证 Tick 准时
	select {
	case r.inputChan <- in:
	default:
		r.metrics.IncChanFullDiscarded()
	}
}

// BeginTick 重置帧内状态：每位玩家的输入预算
func (r *Room) BeginTick() {
	r.cfgMu.RLock()
	budget := r.maxInputsPerTick
	r.cfgMu.RUnlock()
	for _, p := range r.players {
		p.budget = budget
	}
}

// ProcessInputs 非阻塞地处理本帧的加入、离开与输入，返回校验通过的输入
func (r *Room) ProcessInputs(now time.Time) sim.Inputs {
	var merged sim.Inputs
	for {
		select {
		case p := <-r.joinChan:
			r.addPlayer(p)
		case req := <-r.leaveChan:
			r.removePlayer(req)
		case in := <-r.inputChan:
			if r.deferInput(&in, now) {
				continue
			}
			merged = r.handleInput(merged, in)
		default:
			return r.releaseDelayed(merged, now)
		}
	}
}

// deferInput 按配置模拟丢包与延迟；返回 true 表示本帧不处理
func (r *Room) deferInput(in *Input, now time.Time) bool {
	r.cfgMu.RLock()
	drop, lo, hi := r.simulateDropProb, r.simulateDelayMinMs, r.simulateDelayMaxMs
	r.cfgMu.RUnlock()

	if drop > 0 && r.rng.Float64() < drop {
		r.metrics.IncDropsSimulated()
		return true
	}
	if hi <= 0 {
		return false
	}
	delay := lo
	if hi > lo {
		delay += r.rng.Intn(hi - lo + 1)
	}
	in.release = now.Add(time.Duration(delay) * time.Millisecond)
	r.delayed = append(r.delayed, *in)
	return true
}

func (r *Room) releaseDelayed(merged sim.Inputs, now time.Time) sim.Inputs {
	kept := r.delayed[:0]
	for _, in := range r.delayed {
		if in.release.After(now) {
			kept = append(kept, in)
			continue
		}
		merged = r.handleInput(merged, in)
	}
	r.delayed = kept
	return merged
}

func (r *Room) handleInput(merged sim.Inputs, in Input) sim.Inputs {
	p, ok := r.players[in.PlayerID]
	if !ok {
		return merged
	}
	if in.Seq != 0 {
		if in.Seq <= p.lastSeq {
			r.metrics.IncOldSeqIgnored()
			return merged
		}
		p.lastSeq = in.Seq
	}
	if p.budget <= 0 {
		r.metrics.IncRateLimited()
		return merged
	}
	p.budget--

	accepted, err := r.admit(p, in)
	if err != nil {
		r.metrics.IncValidationRejected()
		Log.Warnw("input rejected", "room", r.ID, "player", p.ID, "type", in.Msg.MessageType(), "seq", in.Seq, "error", err)
		return merged
	}
	r.metrics.IncAccepted()
	return merged.Merge(accepted)
}

func (r *Room) addPlayer(p *Player) {
	if old, ok := r.players[p.ID]; ok {
		// 同一玩家重连：替换连接，保留国家
		if old.Conn != nil && old.Conn != p.Conn {
			old.Conn.Close()
		}
		old.Conn = p.Conn
		old.lastSeq = 0
		r.welcome(old)
		Log.Infow("player reconnected", "room", r.ID, "player", p.ID)
		return
	}

	if r.Mode == game.ModeMissiles {
		p.Country = r.assignCountry(p.Country)
	} else {
		p.Country = ""
	}
	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	r.state.Players = append(r.state.Players, game.Player{ID: p.ID, Country: p.Country})
	r.playerCount.Store(int32(len(r.players)))
	r.metrics.IncJoins()

	line := fmt.Sprintf("player %s joined", shortID(p.ID))
	if p.Country != "" {
		line += " as " + p.Country
	}
	r.state.Log(line)
	r.welcome(p)
	Log.Infow("player joined", "room", r.ID, "player", p.ID, "country", p.Country)
}

func (r *Room) welcome(p *Player) {
	if p.Conn == nil {
		return
	}
	rules := r.Simulator().Rules
	b, err := codec.Encode(&codec.Welcome{
		PlayerID:  p.ID,
		SessionID: r.state.ID,
		Room:      r.ID,
		Country:   p.Country,
		Mode:      r.Mode,
		TickHz:    int(time.Second / r.tickInterval),
		Rules:     &rules,
	})
	if err != nil {
		Log.Errorw("encode welcome", "error", err)
		return
	}
	p.Conn.Enqueue(b)
}

// assignCountry 使用玩家指定的国家，否则分配人数最少的国家
func (r *Room) assignCountry(want string) string {
	if _, ok := r.state.Countries[want]; ok {
		return want
	}
	counts := make(map[string]int)
	for _, p := range r.players {
		counts[p.Country]++
	}
	best := ""
	for _, name := range game.CountryNames(r.state.Countries) {
		if best == "" || counts[name] < counts[best] {
			best = name
		}
	}
	return best
}

func (r *Room) removePlayer(req leaveReq) {
	p, ok := r.players[req.id]
	if !ok || (req.conn != nil && p.Conn != req.conn) {
		return
	}
	if p.Conn != nil {
		p.Conn.Close()
	}
	delete(r.players, req.id)
	for i, id := range r.order {
		if id == req.id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	players := r.state.Players[:0]
	for _, gp := range r.state.Players {
		if gp.ID != req.id {
			players = append(players, gp)
		}
	}
	r.state.Players = players
	r.playerCount.Store(int32(len(r.players)))
	r.metrics.IncLeaves()
	r.state.Log(fmt.Sprintf("player %s left", shortID(req.id)))
	Log.Infow("player left", "room", r.ID, "player", req.id)
}

// paddleOwner 最早加入且仍在线的玩家控制左侧球拍
func (r *Room) paddleOwner() PlayerID {
	if len(r.order) == 0 {
		return uuid.Nil
	}
	return r.order[0]
}

// UpdateWorld 用本帧输入推进权威状态
func (r *Room) UpdateWorld(in sim.Inputs) {
	r.state = r.Simulator().Step(r.state, in, 1)
}

// PushRules 规则被热更新过时，把新规则发给所有玩家；须先于同一 tick 的快照
func (r *Room) PushRules() {
	r.cfgMu.Lock()
	changed, rules := r.rulesChanged, r.rules
	r.rulesChanged = false
	r.cfgMu.Unlock()
	if !changed {
		return
	}
	b, err := codec.Encode(&codec.RulesUpdate{Rules: rules})
	if err != nil {
		Log.Errorw("encode rules", "room", r.ID, "error", err)
		return
	}
	for _, id := range r.sortedPlayerIDs() {
		if p := r.players[id]; p.Conn != nil && !p.Conn.Enqueue(b) {
			r.metrics.IncSendDropped()
		}
	}
	Log.Infow("rules pushed", "room", r.ID, "players", len(r.players))
}

// Broadcast 编码一次完整快照并发给所有玩家
func (r *Room) Broadcast() {
	r.state.Seq = r.tickSeq.Add(1)
	b, err := codec.Encode(&codec.StateBroadcast{GameState: r.state})
	if err != nil {
		Log.Errorw("encode snapshot", "room", r.ID, "seq", r.state.Seq, "error", err)
		return
	}
	for _, id := range r.sortedPlayerIDs() {
		if p := r.players[id]; p.Conn != nil && !p.Conn.Enqueue(b) {
			r.metrics.IncSendDropped()
		}
	}
	r.metrics.IncBroadcasts()
	if r.recorder != nil {
		if err := r.recorder.Record(r.state); err != nil {
			r.metrics.IncReplayDropped()
		}
	}
}

func (r *Room) sortedPlayerIDs() []PlayerID {
	ids := make([]PlayerID, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// tick 核心循环：处理输入 → 更新世界 → 广播结果
func (r *Room) tick(now time.Time) {
	start := time.Now()
	r.BeginTick()
	in := r.ProcessInputs(now)
	r.UpdateWorld(in)
	r.PushRules()
	r.Broadcast()
	r.metrics.AddTick(time.Since(start).Nanoseconds())
}

func shortID(id PlayerID) string { return id.String()[:8] }

// Package sim 实现确定性的模拟步进，服务端与客户端预测共用
package sim

import (
	"github.com/brunoga/deep/v2"

	"minisync/game"
)

// Simulator 纯函数式步进器，不持有任何可变状态
type Simulator struct {
	Rules Rules
}

func New(r Rules) Simulator { return Simulator{Rules: r} }

// Step 返回 state 前进 dt 个 tick 后的新状态，不修改 state。
// 相同的 state、inputs、dt 总是得到相同的结果
func (s Simulator) Step(state game.GameState, in Inputs, dt float64) game.GameState {
	next := deep.MustCopy(state)
	next.Normalize()
	if dt < 0 {
		dt = 0
	}
	next.Tick++

	pruneDetonated(&next)
	// 本 tick 新发射的导弹从下一 tick 才开始飞行
	inFlight := len(next.Missiles)

	s.applyPaddle(&next, in.UserPaddleY)
	applyWaypoints(&next, in.Waypoints)
	for _, l := range in.Launches {
		s.launch(&next, l)
	}

	if next.Tracer != nil {
		followPath(next.Tracer, dt)
	}
	if next.Match != nil {
		s.stepMatch(&next, dt)
	}
	s.fly(&next, inFlight, dt)

	next.TrimLog(s.Rules.MessageLimit)
	return next
}

func (s Simulator) applyPaddle(st *game.GameState, y *float64) {
	if y == nil || ValidatePaddleY(st.Match, *y) != nil {
		return
	}
	st.Match.UserPaddle.Position.Y = *y
}

func applyWaypoints(st *game.GameState, points []game.Vec2) {
	if st.Tracer == nil {
		return
	}
	for _, p := range points {
		if p.IsFinite() {
			st.Tracer.AddWaypoint(p)
		}
	}
}

package sim

import (
	"fmt"
	"math"

	"minisync/game"
)

func (s Simulator) stepMatch(st *game.GameState, dt float64) {
	m := st.Match
	b := &m.Ball
	b.Position = b.Position.Add(b.Velocity.Scale(dt))

	// 只在朝墙运动时反弹，避免贴墙时来回翻转
	if b.Position.Y-b.Radius < 0 && b.Velocity.Y < 0 {
		b.Velocity.Y = -b.Velocity.Y
	}
	if b.Position.Y+b.Radius > m.Canvas.Height && b.Velocity.Y > 0 {
		b.Velocity.Y = -b.Velocity.Y
	}

	if b.Position.X < m.Canvas.Width/2 {
		if b.Velocity.X < 0 && overlaps(*b, m.UserPaddle) {
			b.Velocity.X = -b.Velocity.X
		}
	} else if b.Velocity.X > 0 && overlaps(*b, m.AIPaddle) {
		b.Velocity.X = -b.Velocity.X
	}

	if m.AIPaddle.AI {
		followBall(&m.AIPaddle, *b, m.Canvas.Height, s.Rules.AIFollow*dt)
	}

	s.score(st)
}

// overlaps 球的外接矩形与球拍相交
func overlaps(b game.Ball, p game.Paddle) bool {
	return b.Position.X+b.Radius > p.Position.X &&
		b.Position.X-b.Radius < p.Position.X+p.Width &&
		b.Position.Y+b.Radius > p.Position.Y &&
		b.Position.Y-b.Radius < p.Position.Y+p.Height
}

// followBall 比例控制：球拍中心每次移动到球距离的 gain 倍
func followBall(p *game.Paddle, b game.Ball, canvasHeight, gain float64) {
	gain = math.Min(math.Max(gain, 0), 1)
	y := p.Position.Y + (b.Position.Y-p.Center())*gain
	p.Position.Y = math.Min(math.Max(y, 0), canvasHeight-p.Height)
}

// score 球完全出界时对侧得分，从中心反向重新发球
func (s Simulator) score(st *game.GameState) {
	m := st.Match
	b := &m.Ball
	var scorer *game.Paddle
	var side string
	switch {
	case b.Position.X+b.Radius < 0:
		scorer, side = &m.AIPaddle, "right"
	case b.Position.X-b.Radius > m.Canvas.Width:
		scorer, side = &m.UserPaddle, "left"
	default:
		return
	}
	scorer.Score++
	st.Log(fmt.Sprintf("point to the %s paddle (%d : %d)", side, m.UserPaddle.Score, m.AIPaddle.Score))
	b.Position = game.Vec2{X: m.Canvas.Width / 2, Y: m.Canvas.Height / 2}
	b.Velocity.X = -b.Velocity.X
}

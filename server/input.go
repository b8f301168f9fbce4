package server

import (
	"errors"
	"fmt"
	"time"

	"minisync/codec"
	"minisync/game"
	"minisync/sim"
)

var (
	ErrWrongMode     = errors.New("input does not apply to this game mode")
	ErrNotOwner      = errors.New("player does not own the paddle")
	ErrNothingToDo   = errors.New("input carries nothing the server accepts")
	ErrOutsideCanvas = errors.New("waypoint outside the canvas")
)

// Canvas 房间画布尺寸：球拍对战的场地与路点模式的可点击区域
var Canvas = game.Canvas{Width: 800, Height: 400}

// Input 客户端输入（意图），由服务端在 Tick 中校验后交给模拟
type Input struct {
	PlayerID PlayerID
	Seq      uint64 // 客户端本地序列号，用于去重
	Msg      codec.Message

	release time.Time // 模拟延迟：到达该时间后才处理
}

// inputFromMessage 只接受客户端可以发送的消息类型
func inputFromMessage(pid PlayerID, m codec.Message) (Input, bool) {
	switch msg := m.(type) {
	case *codec.InputUpdate:
		return Input{PlayerID: pid, Seq: msg.Seq, Msg: msg}, true
	case *codec.WaypointAdd:
		return Input{PlayerID: pid, Seq: msg.Seq, Msg: msg}, true
	case *codec.MissileLaunch:
		return Input{PlayerID: pid, Seq: msg.Seq, Msg: msg}, true
	}
	return Input{}, false
}

// admit 在输入进入权威状态之前做校验，返回可交给 Step 的输入
func (r *Room) admit(p *Player, in Input) (sim.Inputs, error) {
	switch msg := in.Msg.(type) {
	case *codec.InputUpdate:
		// 球和 AI 球拍由服务端模拟，客户端上报的值一律忽略
		if msg.UserPaddle == nil {
			return sim.Inputs{}, ErrNothingToDo
		}
		if r.state.Match == nil {
			return sim.Inputs{}, ErrWrongMode
		}
		if r.paddleOwner() != p.ID {
			return sim.Inputs{}, ErrNotOwner
		}
		y := msg.UserPaddle.Position.Y
		if err := sim.ValidatePaddleY(r.state.Match, y); err != nil {
			return sim.Inputs{}, err
		}
		return sim.Inputs{UserPaddleY: &y}, nil

	case *codec.WaypointAdd:
		if r.state.Tracer == nil {
			return sim.Inputs{}, ErrWrongMode
		}
		pt := msg.Point
		if !pt.IsFinite() || pt.X < 0 || pt.Y < 0 || pt.X > Canvas.Width || pt.Y > Canvas.Height {
			return sim.Inputs{}, fmt.Errorf("%w: %v", ErrOutsideCanvas, pt)
		}
		return sim.Inputs{Waypoints: []game.Vec2{pt}}, nil

	case *codec.MissileLaunch:
		if r.state.Mode != game.ModeMissiles {
			return sim.Inputs{}, ErrWrongMode
		}
		l := sim.Launch{
			Country:       p.Country,
			Battery:       msg.Battery,
			TargetCountry: msg.TargetCountry,
			TargetCity:    msg.TargetCity,
		}
		if err := sim.ValidateLaunch(r.state, l); err != nil {
			return sim.Inputs{}, err
		}
		return sim.Inputs{Launches: []sim.Launch{l}}, nil
	}
	return sim.Inputs{}, ErrNothingToDo
}

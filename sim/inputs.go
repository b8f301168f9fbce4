package sim

import (
	"errors"
	"fmt"

	"minisync/game"
)

var (
	ErrUnknownCountry = errors.New("unknown country")
	ErrUnknownCity    = errors.New("unknown city")
	ErrNoBattery      = errors.New("no such battery")
	ErrEmptyBattery   = errors.New("battery has no missiles left")
	ErrSelfTarget     = errors.New("cannot target own country")
)

// Launch 一次发射指令。Country 由服务端按发送者填写，不信任客户端
type Launch struct {
	Country       string `json:"country"`
	Battery       int    `json:"battery"`
	TargetCountry string `json:"targetCountry"`
	TargetCity    string `json:"targetCity"`
}

// Inputs 一个 tick 内已经过校验的输入
type Inputs struct {
	UserPaddleY *float64    `json:"userPaddleY,omitempty"`
	Waypoints   []game.Vec2 `json:"waypoints,omitempty"`
	Launches    []Launch    `json:"launches,omitempty"`
}

func (in Inputs) Empty() bool {
	return in.UserPaddleY == nil && len(in.Waypoints) == 0 && len(in.Launches) == 0
}

// Merge 把 o 追加到 in 后面；球拍位置以后到的为准
func (in Inputs) Merge(o Inputs) Inputs {
	out := Inputs{
		UserPaddleY: in.UserPaddleY,
		Waypoints:   append(append([]game.Vec2{}, in.Waypoints...), o.Waypoints...),
		Launches:    append(append([]Launch{}, in.Launches...), o.Launches...),
	}
	if o.UserPaddleY != nil {
		y := *o.UserPaddleY
		out.UserPaddleY = &y
	}
	return out
}

// ValidateLaunch 检查发射指令在 state 中是否可执行
func ValidateLaunch(state game.GameState, l Launch) error {
	origin, ok := state.Countries[l.Country]
	if !ok {
		return fmt.Errorf("launch from %q: %w", l.Country, ErrUnknownCountry)
	}
	if l.Battery < 0 || l.Battery >= len(origin.MissileBatteries) {
		return fmt.Errorf("launch from %s battery %d: %w", l.Country, l.Battery, ErrNoBattery)
	}
	if origin.MissileBatteries[l.Battery].MissileCount <= 0 {
		return fmt.Errorf("launch from %s battery %d: %w", l.Country, l.Battery, ErrEmptyBattery)
	}
	if l.TargetCountry == l.Country {
		return fmt.Errorf("launch from %s: %w", l.Country, ErrSelfTarget)
	}
	target, ok := state.Countries[l.TargetCountry]
	if !ok {
		return fmt.Errorf("target %q: %w", l.TargetCountry, ErrUnknownCountry)
	}
	if _, ok := target.Cities[l.TargetCity]; !ok {
		return fmt.Errorf("target %s/%s: %w", l.TargetCountry, l.TargetCity, ErrUnknownCity)
	}
	return nil
}

// ValidatePaddleY 检查用户球拍的新位置
func ValidatePaddleY(m *game.Match, y float64) error {
	if m == nil {
		return errors.New("no paddle match in this session")
	}
	p := m.UserPaddle
	p.Position.Y = y
	return p.Validate(m.Canvas.Height)
}

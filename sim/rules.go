package sim

import (
	"fmt"

	"go.uber.org/multierr"
)

// Rules 模拟参数，服务端与客户端预测必须使用同一份
type Rules struct {
	// AIFollow AI 球拍每 tick 追赶球的比例
	AIFollow float64 `json:"aiFollow"`
	// MissileDamage 每次命中减少的人口
	MissileDamage int `json:"missileDamage"`
	// TickSeconds 一个 tick 对应的秒数
	TickSeconds float64 `json:"tickSeconds"`
	// TimeScale 导弹飞行的时间倍率
	TimeScale float64 `json:"timeScale"`
	// MessageLimit 快照里保留的日志条数，0 表示不裁剪
	MessageLimit int `json:"messageLimit"`
	// GreatCircle 导弹沿大圆飞行，否则按经纬度线性插值
	GreatCircle bool `json:"greatCircle"`
	// SpeedMach 新发射导弹的速度
	SpeedMach float64 `json:"speedMach"`
}

func DefaultRules() Rules {
	return Rules{
		AIFollow:      0.1,
		MissileDamage: 4500000,
		TickSeconds:   0.02,
		TimeScale:     600,
		MessageLimit:  50,
		SpeedMach:     2.5,
	}
}

// Validate 汇总所有越界参数；服务端下发的规则在客户端也要过一遍
func (r Rules) Validate() error {
	var err error
	if r.AIFollow < 0 || r.AIFollow > 1 {
		err = multierr.Append(err, fmt.Errorf("aiFollow %g outside [0, 1]", r.AIFollow))
	}
	if r.MissileDamage < 0 {
		err = multierr.Append(err, fmt.Errorf("missileDamage %d is negative", r.MissileDamage))
	}
	if r.TickSeconds <= 0 || r.TimeScale <= 0 {
		err = multierr.Append(err, fmt.Errorf("tickSeconds %g and timeScale %g must be positive", r.TickSeconds, r.TimeScale))
	}
	if r.SpeedMach <= 0 {
		err = multierr.Append(err, fmt.Errorf("speedMach %g must be positive", r.SpeedMach))
	}
	if r.MessageLimit < 0 {
		err = multierr.Append(err, fmt.Errorf("messageLimit %d is negative", r.MessageLimit))
	}
	return err
}

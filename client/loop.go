package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"minisync/codec"
	"minisync/sim"
)

// DefaultPeriod 50 Hz
const DefaultPeriod = 20 * time.Millisecond

// Link 客户端循环所需的通道能力，*link.Channel 满足
type Link interface {
	OnMessage(fn func(codec.Message))
	Poll() int
	Send(m codec.Message) error
}

// Controller 每个 tick 产生本地输入，返回需要上行的消息
type Controller func(tick uint64, r *Reconciler) []codec.Message

// Loop 固定频率的客户端主循环：拉取消息、预测、绘制。全部在同一协程内
type Loop struct {
	Link       Link
	Reconciler *Reconciler
	Surface    Surface
	Controller Controller
	Period     time.Duration
	Log        *zap.SugaredLogger

	ticks uint64
}

// Run 阻塞直到 ctx 结束
func (l *Loop) Run(ctx context.Context) error {
	if l.Log == nil {
		l.Log = zap.NewNop().Sugar()
	}
	period := l.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	l.Link.OnMessage(l.Reconciler.Handle)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick 执行一帧
func (l *Loop) Tick() {
	l.ticks++
	l.Link.Poll()

	if l.Controller != nil {
		for _, m := range l.Controller(l.ticks, l.Reconciler) {
			if err := l.Link.Send(m); err != nil && l.Log != nil {
				l.Log.Debugw("input dropped", "type", m.MessageType(), "error", err)
			}
		}
	}

	if _, ok := l.Reconciler.Mirror(); !ok {
		return
	}
	l.Reconciler.Predict(sim.Inputs{})
	if l.Surface != nil {
		DrawFrame(l.Reconciler.View(), l.Reconciler.Feed(), l.Surface)
	}
}

func (l *Loop) Ticks() uint64 { return l.ticks }

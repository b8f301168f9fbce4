package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount          int64 // 统计的 Tick 次数
	InputsAccepted     int64 // 被接受的输入数
	RateLimited        int64 // 因同帧限流被拒绝的输入数
	OldSeqIgnored      int64 // 因旧序列被忽略的输入数
	DropsSimulated     int64 // 因模拟丢包被丢弃的输入数
	ChanFullDiscarded  int64 // 因通道满被丢弃的输入数
	ValidationRejected int64 // 校验失败被丢弃的输入数
	DecodeErrors       int64 // 帧解码失败数
	ConnRateLimited    int64 // 因连接令牌桶耗尽被丢弃的帧数
	Broadcasts         int64 // 已广播的快照数
	SendDropped        int64 // 因客户端发送队列满丢弃的快照数
	ReplayDropped      int64 // 回放队列满丢弃的帧数
	Joins              int64
	Leaves             int64
	TotalTickNs        int64 // Tick 累计耗时（纳秒）
}

func (m *RoomMetrics) IncAccepted()           { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *RoomMetrics) IncRateLimited()        { atomic.AddInt64(&m.RateLimited, 1) }
func (m *RoomMetrics) IncOldSeqIgnored()      { atomic.AddInt64(&m.OldSeqIgnored, 1) }
func (m *RoomMetrics) IncDropsSimulated()     { atomic.AddInt64(&m.DropsSimulated, 1) }
func (m *RoomMetrics) IncChanFullDiscarded()  { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *RoomMetrics) IncValidationRejected() { atomic.AddInt64(&m.ValidationRejected, 1) }
func (m *RoomMetrics) IncDecodeErrors()       { atomic.AddInt64(&m.DecodeErrors, 1) }
func (m *RoomMetrics) IncConnRateLimited()    { atomic.AddInt64(&m.ConnRateLimited, 1) }
func (m *RoomMetrics) IncBroadcasts()         { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *RoomMetrics) IncSendDropped()        { atomic.AddInt64(&m.SendDropped, 1) }
func (m *RoomMetrics) IncReplayDropped()      { atomic.AddInt64(&m.ReplayDropped, 1) }
func (m *RoomMetrics) IncJoins()              { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncLeaves()             { atomic.AddInt64(&m.Leaves, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":          tick,
		"inputs_accepted":     atomic.LoadInt64(&m.InputsAccepted),
		"rate_limited":        atomic.LoadInt64(&m.RateLimited),
		"old_seq_ignored":     atomic.LoadInt64(&m.OldSeqIgnored),
		"drops_simulated":     atomic.LoadInt64(&m.DropsSimulated),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"validation_rejected": atomic.LoadInt64(&m.ValidationRejected),
		"decode_errors":       atomic.LoadInt64(&m.DecodeErrors),
		"conn_rate_limited":   atomic.LoadInt64(&m.ConnRateLimited),
		"broadcasts":          atomic.LoadInt64(&m.Broadcasts),
		"send_dropped":        atomic.LoadInt64(&m.SendDropped),
		"replay_dropped":      atomic.LoadInt64(&m.ReplayDropped),
		"joins":               atomic.LoadInt64(&m.Joins),
		"leaves":              atomic.LoadInt64(&m.Leaves),
		"avg_tick_ms":         avgMs,
	}
}

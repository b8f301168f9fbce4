package server

import "time"

// StartTicker 启动房间的 Tick 循环（单线程推进世界）
func (r *Room) StartTicker() {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	go r.run()
}

func (r *Room) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.quit:
			r.shutdown()
			return
		case now := <-ticker.C:
			r.tick(now)
		}
	}
}

// Stop 停止 Tick 并关闭所有连接与回放文件；可重复调用
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
		if r.tickerStarted {
			<-r.done
		} else {
			r.shutdown()
		}
	})
}

func (r *Room) shutdown() {
	for _, p := range r.players {
		if p.Conn != nil {
			p.Conn.Close()
		}
	}
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			Log.Warnw("close replay", "room", r.ID, "error", err)
		}
	}
	Log.Infow("room stopped", "room", r.ID, "seq", r.tickSeq.Load())
}

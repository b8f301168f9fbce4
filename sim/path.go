package sim

import "minisync/game"

// followPath 朝下一个路点移动 speed*dt；距离不足一步时吸附到路点并前进索引
func followPath(f *game.PathFollower, dt float64) {
	if f.Idle() || dt == 0 {
		return
	}
	target := f.Waypoints[f.NextWaypoint]
	delta := target.Sub(f.Position)
	dist := delta.Len()
	step := f.Speed * dt
	if dist == 0 || dist <= step {
		f.Position = target
		f.NextWaypoint++
		return
	}
	f.Position = f.Position.Add(delta.Scale(step / dist))
}

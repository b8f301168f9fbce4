package game

// PathFollower 按顺序经过一组路点的实体；NextWaypoint == len(Waypoints) 表示已到终点
type PathFollower struct {
	Position     Vec2    `json:"position"`
	Waypoints    []Vec2  `json:"waypoints"`
	NextWaypoint int     `json:"nextWaypointIndex"`
	Speed        float64 `json:"speed"`
}

func NewPathFollower(position Vec2, speed float64, waypoints ...Vec2) (PathFollower, error) {
	f := PathFollower{Position: position, Waypoints: append([]Vec2{}, waypoints...), Speed: speed}
	if err := f.Validate(); err != nil {
		return PathFollower{}, err
	}
	return f, nil
}

func (f PathFollower) Validate() error {
	switch {
	case !(f.Speed > 0):
		return invalid("pathFollower", "speed", "must be positive, got %g", f.Speed)
	case !f.Position.IsFinite():
		return invalid("pathFollower", "position", "not a finite vector")
	case f.NextWaypoint < 0 || f.NextWaypoint > len(f.Waypoints):
		return invalid("pathFollower", "nextWaypointIndex", "%d outside [0, %d]", f.NextWaypoint, len(f.Waypoints))
	}
	for i, w := range f.Waypoints {
		if !w.IsFinite() {
			return invalid("pathFollower", "waypoints", "waypoint %d not finite", i)
		}
	}
	return nil
}

// Idle 已走完全部路点
func (f PathFollower) Idle() bool { return f.NextWaypoint >= len(f.Waypoints) }

// AddWaypoint 追加路点。第一个路点直接把实体放到该处
func (f *PathFollower) AddWaypoint(p Vec2) {
	f.Waypoints = append(f.Waypoints, p)
	if len(f.Waypoints) == 1 {
		f.Position = p
		f.NextWaypoint = 1
	}
}

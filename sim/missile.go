package sim

import (
	"fmt"

	"minisync/game"
)

// pruneDetonated 移除上一 tick 已爆炸的导弹，每次爆炸只会出现在一次广播里
func pruneDetonated(st *game.GameState) {
	kept := st.Missiles[:0]
	for _, m := range st.Missiles {
		if !m.Detonated {
			kept = append(kept, m)
		}
	}
	st.Missiles = kept
}

func (s Simulator) launch(st *game.GameState, l Launch) {
	if ValidateLaunch(*st, l) != nil {
		return
	}
	origin := st.Countries[l.Country]
	battery := &origin.MissileBatteries[l.Battery]
	city := st.Countries[l.TargetCountry].Cities[l.TargetCity]

	m, err := game.NewMissile(l.Country, battery.Coordinates, l.TargetCountry, city, s.speed())
	if err != nil {
		return
	}
	battery.MissileCount--
	m.ID = st.NextMissileID
	st.NextMissileID++
	st.Missiles = append(st.Missiles, m)
	st.Log(fmt.Sprintf("%s launched missile %d at %s (%d left in battery %d)",
		l.Country, m.ID, city.Name, battery.MissileCount, l.Battery))
}

func (s Simulator) speed() float64 {
	if s.Rules.SpeedMach > 0 {
		return s.Rules.SpeedMach
	}
	return DefaultRules().SpeedMach
}

// fly 推进前 n 枚导弹：激活、飞行、拦截、命中
func (s Simulator) fly(st *game.GameState, n int, dt float64) {
	for i := 0; i < n; i++ {
		m := &st.Missiles[i]
		if m.Detonated {
			continue
		}
		m.Active = true
		m.Elapsed += dt * s.Rules.TickSeconds * s.Rules.TimeScale

		target := m.Destination.Coordinates
		flight := game.FlightSeconds(game.DistanceKm(m.LaunchSite, target), m.SpeedMach)
		progress := 1.0
		if flight > 0 {
			progress = m.Elapsed / flight
		}
		if progress >= 1 {
			m.PositionInFlight = target
			m.Active = false
			m.Detonated = true
			s.impact(st, *m)
			continue
		}
		if s.Rules.GreatCircle {
			m.PositionInFlight = game.Slerp(m.LaunchSite, target, progress)
		} else {
			m.PositionInFlight = game.Lerp(m.LaunchSite, target, progress)
		}
		intercept(st, m)
	}
}

// intercept 敌方导弹连在射程内且仍有弹药时拦截
func intercept(st *game.GameState, m *game.Missile) {
	for _, name := range game.CountryNames(st.Countries) {
		if name == m.OriginCountry {
			continue
		}
		batteries := st.Countries[name].MissileBatteries
		for i := range batteries {
			b := &batteries[i]
			if b.Range <= 0 || b.MissileCount <= 0 {
				continue
			}
			if game.DistanceKm(b.Coordinates, m.PositionInFlight) > b.Range {
				continue
			}
			b.MissileCount--
			m.Active = false
			m.Detonated = true
			m.Intercepted = true
			st.Log(fmt.Sprintf("%s intercepted missile %d from %s", name, m.ID, m.OriginCountry))
			return
		}
	}
}

func (s Simulator) impact(st *game.GameState, m game.Missile) {
	country, ok := st.Countries[m.TargetCountry]
	if !ok {
		return
	}
	city, ok := country.Cities[m.Destination.Name]
	if !ok {
		return
	}
	before := city.Population
	city.Population -= s.Rules.MissileDamage
	if city.Population < 0 {
		city.Population = 0
	}
	country.Cities[city.Name] = city
	st.Log(fmt.Sprintf("missile %d from %s hit %s: population %d -> %d",
		m.ID, m.OriginCountry, city.Name, before, city.Population))
}

package client

import (
	"fmt"
	"sort"

	"minisync/game"
)

const (
	MapImage      = "vector-world-map.svg"
	DefaultWidth  = 800
	DefaultHeight = 400
	pointRadius   = 5
	feedLines     = 5
)

// Surface 渲染协作方，只读地消费状态
type Surface interface {
	Clear(width, height float64)
	Circle(center game.Vec2, radius float64, color string)
	Rect(pos game.Vec2, width, height float64, color string)
	Text(pos game.Vec2, text, color string)
	Image(name string, pos game.Vec2, width, height float64)
}

// Project 等距圆柱投影，把经纬度映射到画布
func Project(p game.GeoPoint, width, height float64) game.Vec2 {
	return game.Vec2{
		X: (p.Longitude + 180) / 360 * width,
		Y: (90 - p.Latitude) / 180 * height,
	}
}

// DrawFrame 每个 tick 调用一次
func DrawFrame(st game.GameState, feed []string, s Surface) {
	w, h := float64(DefaultWidth), float64(DefaultHeight)
	if st.Match != nil {
		w, h = st.Match.Canvas.Width, st.Match.Canvas.Height
	}
	s.Clear(w, h)

	if st.Match != nil {
		drawMatch(st.Match, s)
	} else {
		s.Image(MapImage, game.Vec2{}, w, h)
	}
	if st.Tracer != nil {
		for _, p := range st.Tracer.Waypoints {
			s.Circle(p, pointRadius, "RED")
		}
		s.Circle(st.Tracer.Position, pointRadius, "RED")
	}
	drawWorld(st, w, h, s)

	if len(feed) > feedLines {
		feed = feed[len(feed)-feedLines:]
	}
	for i, line := range feed {
		s.Text(game.Vec2{X: 10, Y: h - float64(len(feed)-i)*14}, line, "WHITE")
	}
}

func drawMatch(m *game.Match, s Surface) {
	for _, p := range []game.Paddle{m.UserPaddle, m.AIPaddle} {
		s.Rect(p.Position, p.Width, p.Height, "WHITE")
	}
	s.Circle(m.Ball.Position, m.Ball.Radius, "WHITE")
	s.Text(game.Vec2{X: m.Canvas.Width / 4, Y: 30}, fmt.Sprint(m.UserPaddle.Score), "WHITE")
	s.Text(game.Vec2{X: 3 * m.Canvas.Width / 4, Y: 30}, fmt.Sprint(m.AIPaddle.Score), "WHITE")
}

func drawWorld(st game.GameState, w, h float64, s Surface) {
	for _, name := range game.CountryNames(st.Countries) {
		c := st.Countries[name]
		for _, city := range sortedCities(c) {
			pos := Project(city.Coordinates, w, h)
			color := "GREEN"
			if city.Population < city.StartingPopulation {
				color = "YELLOW"
			}
			if city.Population == 0 {
				color = "GREY"
			}
			s.Circle(pos, city.Radius/2, color)
			s.Text(pos.Add(game.Vec2{X: 6, Y: -6}), fmt.Sprintf("%s %d", city.Name, city.Population), color)
		}
		for _, b := range c.MissileBatteries {
			pos := Project(b.Coordinates, w, h)
			s.Rect(pos.Sub(game.Vec2{X: 3, Y: 3}), 6, 6, "BLUE")
		}
	}
	for _, m := range st.Missiles {
		pos := Project(m.PositionInFlight, w, h)
		switch {
		case m.Intercepted:
			s.Circle(pos, pointRadius*2, "BLUE")
		case m.Detonated:
			s.Circle(pos, pointRadius*3, "ORANGE")
		default:
			s.Circle(pos, pointRadius*0.5, "RED")
		}
	}
}

func sortedCities(c game.Country) []game.City {
	names := make([]string, 0, len(c.Cities))
	for name := range c.Cities {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]game.City, 0, len(names))
	for _, n := range names {
		out = append(out, c.Cities[n])
	}
	return out
}

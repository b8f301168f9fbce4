package game

import "math"

const (
	// EarthRadiusKm 地球半径（公里），用于 haversine 距离
	EarthRadiusKm = 6371.0
	// SpeedOfSound 音速（米/秒），用于把马赫数换算为速度
	SpeedOfSound = 343.0
)

// Vec2 画布坐标（像素）
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }
func (v Vec2) Len() float64         { return math.Hypot(v.X, v.Y) }
func (v Vec2) IsFinite() bool       { return finite(v.X) && finite(v.Y) }

// GeoPoint 地理坐标（度）。同一实体内不与 Vec2 混用
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p GeoPoint) IsValid() bool {
	return finite(p.Latitude) && finite(p.Longitude) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// DistanceKm 两点间的大圆距离（haversine）
func DistanceKm(a, b GeoPoint) float64 {
	lat1 := toRadians(a.Latitude)
	lon1 := toRadians(a.Longitude)
	lat2 := toRadians(b.Latitude)
	lon2 := toRadians(b.Longitude)

	dlat := lat2 - lat1
	dlon := lon2 - lon1
	h := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FlightSeconds 以给定马赫数飞完 distanceKm 所需秒数
func FlightSeconds(distanceKm, speedMach float64) float64 {
	if speedMach <= 0 {
		return math.Inf(1)
	}
	return distanceKm * 1000 / (speedMach * SpeedOfSound)
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Lerp 经纬度线性插值，t 取 [0,1]
func Lerp(a, b GeoPoint, t float64) GeoPoint {
	return GeoPoint{
		Latitude:  a.Latitude + (b.Latitude-a.Latitude)*t,
		Longitude: a.Longitude + (b.Longitude-a.Longitude)*t,
	}
}

// Slerp 沿大圆插值，t 取 [0,1]
func Slerp(a, b GeoPoint, t float64) GeoPoint {
	lat1, lon1 := toRadians(a.Latitude), toRadians(a.Longitude)
	lat2, lon2 := toRadians(b.Latitude), toRadians(b.Longitude)

	d := DistanceKm(a, b) / EarthRadiusKm
	if d == 0 {
		return a
	}
	sd := math.Sin(d)
	wa := math.Sin((1-t)*d) / sd
	wb := math.Sin(t*d) / sd

	x := wa*math.Cos(lat1)*math.Cos(lon1) + wb*math.Cos(lat2)*math.Cos(lon2)
	y := wa*math.Cos(lat1)*math.Sin(lon1) + wb*math.Cos(lat2)*math.Sin(lon2)
	z := wa*math.Sin(lat1) + wb*math.Sin(lat2)

	return GeoPoint{
		Latitude:  toDegrees(math.Atan2(z, math.Hypot(x, y))),
		Longitude: toDegrees(math.Atan2(y, x)),
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

package game

// City 城市；Population 不会超过 StartingPopulation
type City struct {
	Name               string   `json:"name"`
	Coordinates        GeoPoint `json:"coordinates"`
	Population         int      `json:"population"`
	StartingPopulation int      `json:"startingPopulation"`
	Radius             float64  `json:"radius"`
}

func NewCity(name string, coordinates GeoPoint, population int, radius float64) (City, error) {
	c := City{
		Name:               name,
		Coordinates:        coordinates,
		Population:         population,
		StartingPopulation: population,
		Radius:             radius,
	}
	if err := c.Validate(); err != nil {
		return City{}, err
	}
	return c, nil
}

func (c City) Validate() error {
	switch {
	case c.Name == "":
		return invalid("city", "name", "empty name")
	case !c.Coordinates.IsValid():
		return invalid("city", "coordinates", "%v is not a valid coordinate", c.Coordinates)
	case c.Population < 0:
		return invalid("city", "population", "%s: negative population %d", c.Name, c.Population)
	case c.Population > c.StartingPopulation:
		return invalid("city", "population", "%s: %d exceeds starting population %d", c.Name, c.Population, c.StartingPopulation)
	case c.Radius < 0:
		return invalid("city", "radius", "%s: negative radius %g", c.Name, c.Radius)
	}
	return nil
}

// MissileBattery 导弹发射阵地；Range 为拦截半径（公里）
type MissileBattery struct {
	Coordinates  GeoPoint `json:"coordinates"`
	MissileCount int      `json:"missileCount"`
	Range        float64  `json:"range"`
}

func NewMissileBattery(coordinates GeoPoint, missileCount int, rangeKm float64) (MissileBattery, error) {
	b := MissileBattery{Coordinates: coordinates, MissileCount: missileCount, Range: rangeKm}
	if err := b.Validate(); err != nil {
		return MissileBattery{}, err
	}
	return b, nil
}

func (b MissileBattery) Validate() error {
	switch {
	case !b.Coordinates.IsValid():
		return invalid("missileBattery", "coordinates", "%v is not a valid coordinate", b.Coordinates)
	case b.MissileCount < 0:
		return invalid("missileBattery", "missileCount", "negative count %d", b.MissileCount)
	case b.Range < 0:
		return invalid("missileBattery", "range", "negative range %g", b.Range)
	}
	return nil
}

// Missile 飞行中的导弹。发射决定时为未激活，下一次 Tick 激活，命中或被拦截后 Detonated
type Missile struct {
	ID               int      `json:"id"`
	OriginCountry    string   `json:"countryOfOrigin"`
	TargetCountry    string   `json:"targetCountry"`
	LaunchSite       GeoPoint `json:"launchSite"`
	Destination      City     `json:"destination"`
	PositionInFlight GeoPoint `json:"positionInFlight"`
	SpeedMach        float64  `json:"speedMach"`
	Active           bool     `json:"active"`
	Detonated        bool     `json:"detonated,omitempty"`
	Intercepted      bool     `json:"intercepted,omitempty"`
	Elapsed          float64  `json:"elapsed"`
}

// NewMissile 以目标城市的值快照创建一枚未激活的导弹
func NewMissile(origin string, launchSite GeoPoint, targetCountry string, destination City, speedMach float64) (Missile, error) {
	m := Missile{
		OriginCountry:    origin,
		TargetCountry:    targetCountry,
		LaunchSite:       launchSite,
		Destination:      destination,
		PositionInFlight: launchSite,
		SpeedMach:        speedMach,
	}
	if err := m.Validate(); err != nil {
		return Missile{}, err
	}
	return m, nil
}

func (m Missile) Validate() error {
	switch {
	case m.OriginCountry == "":
		return invalid("missile", "countryOfOrigin", "empty origin")
	case !(m.SpeedMach > 0):
		return invalid("missile", "speedMach", "must be positive, got %g", m.SpeedMach)
	case !m.LaunchSite.IsValid():
		return invalid("missile", "launchSite", "%v is not a valid coordinate", m.LaunchSite)
	case !m.PositionInFlight.IsValid():
		return invalid("missile", "positionInFlight", "%v is not a valid coordinate", m.PositionInFlight)
	case m.Active && m.Detonated:
		return invalid("missile", "active", "detonated missile still active")
	case m.Elapsed < 0:
		return invalid("missile", "elapsed", "negative elapsed %g", m.Elapsed)
	}
	return m.Destination.Validate()
}

// Country 国家：城市按名字索引
type Country struct {
	Name             string           `json:"name"`
	Cities           map[string]City  `json:"cities"`
	MissileBatteries []MissileBattery `json:"missileBatteries"`
}

func NewCountry(name string, cities []City, batteries []MissileBattery) (Country, error) {
	c := Country{
		Name:             name,
		Cities:           make(map[string]City, len(cities)),
		MissileBatteries: append([]MissileBattery{}, batteries...),
	}
	for _, city := range cities {
		c.Cities[city.Name] = city
	}
	if err := c.Validate(); err != nil {
		return Country{}, err
	}
	return c, nil
}

func (c Country) Validate() error {
	if c.Name == "" {
		return invalid("country", "name", "empty name")
	}
	for name, city := range c.Cities {
		if name != city.Name {
			return invalid("country", "cities", "%s: key %q does not match city %q", c.Name, name, city.Name)
		}
		if err := city.Validate(); err != nil {
			return err
		}
	}
	for _, b := range c.MissileBatteries {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

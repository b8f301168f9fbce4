package game

// Owner 球拍由谁控制（相对于渲染它的客户端）
type Owner string

const (
	OwnerLocal  Owner = "local"
	OwnerRemote Owner = "remote"
)

// Canvas 画布尺寸
type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Paddle 球拍；只有 Position.Y 随输入变化，X 由所在侧决定
type Paddle struct {
	Position Vec2    `json:"position"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Score    int     `json:"score"`
	Owner    Owner   `json:"owner"`
	AI       bool    `json:"ai,omitempty"`
}

// NewPaddle 创建球拍并检查 0 ≤ y ≤ canvasHeight − height
func NewPaddle(x, y, width, height, canvasHeight float64, owner Owner) (Paddle, error) {
	p := Paddle{Position: Vec2{X: x, Y: y}, Width: width, Height: height, Owner: owner}
	if err := p.Validate(canvasHeight); err != nil {
		return Paddle{}, err
	}
	return p, nil
}

func (p Paddle) Validate(canvasHeight float64) error {
	switch {
	case !p.Position.IsFinite():
		return invalid("paddle", "position", "not a finite vector")
	case !(p.Width > 0) || !(p.Height > 0):
		return invalid("paddle", "size", "width and height must be positive, got %gx%g", p.Width, p.Height)
	case p.Position.Y < 0 || p.Position.Y > canvasHeight-p.Height:
		return invalid("paddle", "position.y", "%g outside [0, %g]", p.Position.Y, canvasHeight-p.Height)
	case p.Score < 0:
		return invalid("paddle", "score", "negative score %d", p.Score)
	case p.Owner != OwnerLocal && p.Owner != OwnerRemote:
		return invalid("paddle", "owner", "unknown owner %q", p.Owner)
	}
	return nil
}

// Center 球拍中心的 y
func (p Paddle) Center() float64 { return p.Position.Y + p.Height/2 }

// Ball 球；Speed 始终等于 |Velocity|
type Ball struct {
	Position Vec2    `json:"position"`
	Radius   float64 `json:"radius"`
	Velocity Vec2    `json:"velocity"`
	Speed    float64 `json:"speed"`
}

func NewBall(position Vec2, radius float64, velocity Vec2) (Ball, error) {
	b := Ball{Position: position, Radius: radius, Velocity: velocity, Speed: velocity.Len()}
	if err := b.Validate(); err != nil {
		return Ball{}, err
	}
	return b, nil
}

func (b Ball) Validate() error {
	switch {
	case !(b.Radius > 0):
		return invalid("ball", "radius", "must be positive, got %g", b.Radius)
	case !b.Position.IsFinite():
		return invalid("ball", "position", "not a finite vector")
	case !b.Velocity.IsFinite():
		return invalid("ball", "velocity", "not a finite vector")
	case b.Speed < 0:
		return invalid("ball", "speed", "negative speed %g", b.Speed)
	}
	return nil
}

// Match 球拍对战：左侧为用户球拍，右侧为 AI 球拍
type Match struct {
	Canvas     Canvas `json:"canvas"`
	Ball       Ball   `json:"ball"`
	UserPaddle Paddle `json:"userPaddle"`
	AIPaddle   Paddle `json:"aiPaddle"`
}

const (
	DefaultPaddleWidth  = 10
	DefaultPaddleHeight = 100
	DefaultBallRadius   = 10
	DefaultBallSpeed    = 5
)

// NewMatch 在画布中央发球，两侧球拍居中
func NewMatch(width, height float64, ballVelocity Vec2) (Match, error) {
	if !(width > 0) || !(height > 0) {
		return Match{}, invalid("match", "canvas", "width and height must be positive, got %gx%g", width, height)
	}
	y := height/2 - DefaultPaddleHeight/2
	user, err := NewPaddle(0, y, DefaultPaddleWidth, DefaultPaddleHeight, height, OwnerLocal)
	if err != nil {
		return Match{}, err
	}
	ai, err := NewPaddle(width-DefaultPaddleWidth, y, DefaultPaddleWidth, DefaultPaddleHeight, height, OwnerRemote)
	if err != nil {
		return Match{}, err
	}
	ai.AI = true
	ball, err := NewBall(Vec2{X: width / 2, Y: height / 2}, DefaultBallRadius, ballVelocity)
	if err != nil {
		return Match{}, err
	}
	return Match{
		Canvas:     Canvas{Width: width, Height: height},
		Ball:       ball,
		UserPaddle: user,
		AIPaddle:   ai,
	}, nil
}

func (m Match) Validate() error {
	if !(m.Canvas.Width > 0) || !(m.Canvas.Height > 0) {
		return invalid("match", "canvas", "width and height must be positive")
	}
	if err := m.Ball.Validate(); err != nil {
		return err
	}
	if err := m.UserPaddle.Validate(m.Canvas.Height); err != nil {
		return err
	}
	return m.AIPaddle.Validate(m.Canvas.Height)
}

package codec

import (
	"github.com/google/uuid"

	"minisync/game"
	"minisync/sim"
)

// Version 当前线路协议版本
const Version = game.SchemaVersion

const (
	TypeState    = game.StateTag
	TypeInput    = "inputUpdate"
	TypeWaypoint = "waypointAdd"
	TypeLaunch   = "missileLaunch"
	TypeWelcome  = "welcome"
	TypeRules    = "rulesUpdate"
)

// Message 线路上的一条消息。只有指针类型实现该接口
type Message interface {
	MessageType() string
	stamp()
}

// Header 所有客户端消息共有的字段
type Header struct {
	Type    string `json:"type"`
	Version int    `json:"v"`
	// Seq 发送方自增的序号，服务端据此丢弃过期输入
	Seq uint64 `json:"seq,omitempty"`
}

func (h *Header) set(t string) {
	h.Type = t
	h.Version = Version
}

// StateBroadcast 服务端每个 tick 下发的完整快照
type StateBroadcast struct {
	game.GameState
}

func (*StateBroadcast) MessageType() string { return TypeState }
func (m *StateBroadcast) stamp() {
	m.Type = TypeState
	m.Version = Version
}

// InputUpdate 球拍对战的客户端输入。服务端只采纳发送者自己的球拍 y
type InputUpdate struct {
	Header
	Ball       *game.Ball   `json:"ball,omitempty"`
	UserPaddle *game.Paddle `json:"userPaddle,omitempty"`
	AIPaddle   *game.Paddle `json:"aiPaddle,omitempty"`
}

func (*InputUpdate) MessageType() string { return TypeInput }
func (m *InputUpdate) stamp()            { m.set(TypeInput) }

// WaypointAdd 画布坐标下的一次点击
type WaypointAdd struct {
	Header
	Point game.Vec2 `json:"point"`
}

func (*WaypointAdd) MessageType() string { return TypeWaypoint }
func (m *WaypointAdd) stamp()            { m.set(TypeWaypoint) }

// MissileLaunch 从发送者所属国家的第 Battery 个导弹连发射
type MissileLaunch struct {
	Header
	Battery       int    `json:"battery"`
	TargetCountry string `json:"targetCountry"`
	TargetCity    string `json:"targetCity"`
}

func (*MissileLaunch) MessageType() string { return TypeLaunch }
func (m *MissileLaunch) stamp()            { m.set(TypeLaunch) }

// Welcome 连接建立后服务端告知客户端的身份信息
type Welcome struct {
	Header
	PlayerID  uuid.UUID `json:"playerId"`
	SessionID uuid.UUID `json:"sessionId"`
	Room      string    `json:"room"`
	Country   string    `json:"country,omitempty"`
	Mode      game.Mode `json:"mode"`
	TickHz    int       `json:"tickHz"`
	// Rules 房间当前的模拟参数，客户端预测以此为准
	Rules *sim.Rules `json:"rules,omitempty"`
}

func (*Welcome) MessageType() string { return TypeWelcome }
func (m *Welcome) stamp()            { m.set(TypeWelcome) }

// RulesUpdate 房间参数热更新后在下一个快照之前下发
type RulesUpdate struct {
	Header
	Rules sim.Rules `json:"rules"`
}

func (*RulesUpdate) MessageType() string { return TypeRules }
func (m *RulesUpdate) stamp()            { m.set(TypeRules) }

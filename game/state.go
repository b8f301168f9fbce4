package game

import (
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	// StateTag 快照在线路上的类型标签
	StateTag = "gameStateBroadcast"
	// SchemaVersion 当前快照结构版本
	SchemaVersion = 1
)

// Mode 会话玩法
type Mode string

const (
	ModeMissiles Mode = "missiles"
	ModePong     Mode = "pong"
	ModePath     Mode = "path"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeMissiles, ModePong, ModePath:
		return true
	}
	return false
}

// Player 会话内的玩家，国家按名字引用
type Player struct {
	ID      uuid.UUID `json:"id"`
	Country string    `json:"country,omitempty"`
}

// GameState 权威状态：服务端持有唯一正本，客户端持有只读镜像
type GameState struct {
	Type          string             `json:"type"`
	Version       int                `json:"v"`
	Seq           uint64             `json:"seq"`
	Tick          uint64             `json:"tick"`
	ID            uuid.UUID          `json:"id"`
	Mode          Mode               `json:"mode,omitempty"`
	Countries     map[string]Country `json:"countries"`
	Missiles      []Missile          `json:"missiles"`
	Players       []Player           `json:"players"`
	Messages      []string           `json:"messages"`
	LogOffset     int                `json:"logOffset"`
	NextMissileID int                `json:"nextMissileId"`
	Match         *Match             `json:"match,omitempty"`
	Tracer        *PathFollower      `json:"tracer,omitempty"`
}

// NewGameState 空会话；集合字段均为非 nil
func NewGameState(id uuid.UUID, mode Mode) GameState {
	return GameState{
		Type:      StateTag,
		Version:   SchemaVersion,
		ID:        id,
		Mode:      mode,
		Countries: make(map[string]Country),
		Missiles:  []Missile{},
		Players:   []Player{},
		Messages:  []string{},
	}
}

// Normalize 把缺省的集合字段补成空集合
func (s *GameState) Normalize() {
	if s.Countries == nil {
		s.Countries = make(map[string]Country)
	}
	if s.Missiles == nil {
		s.Missiles = []Missile{}
	}
	if s.Players == nil {
		s.Players = []Player{}
	}
	if s.Messages == nil {
		s.Messages = []string{}
	}
}

// Player 按 id 查找玩家
func (s GameState) Player(id uuid.UUID) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Log 追加一条日志
func (s *GameState) Log(line string) {
	s.Messages = append(s.Messages, line)
}

// TrimLog 只保留最近 limit 条日志，并推进 LogOffset
func (s *GameState) TrimLog(limit int) {
	if limit <= 0 || len(s.Messages) <= limit {
		return
	}
	drop := len(s.Messages) - limit
	s.Messages = append([]string{}, s.Messages[drop:]...)
	s.LogOffset += drop
}

// Validate 检查快照内所有实体的不变量，汇总全部错误
func (s GameState) Validate() error {
	var err error
	if s.Type != StateTag {
		err = multierr.Append(err, invalid("gameState", "type", "unexpected tag %q", s.Type))
	}
	if s.ID == uuid.Nil {
		err = multierr.Append(err, invalid("gameState", "id", "missing session id"))
	}
	if s.Mode != "" && !s.Mode.Valid() {
		err = multierr.Append(err, invalid("gameState", "mode", "unknown mode %q", s.Mode))
	}
	if s.LogOffset < 0 {
		err = multierr.Append(err, invalid("gameState", "logOffset", "negative offset %d", s.LogOffset))
	}
	for name, c := range s.Countries {
		if name != c.Name {
			err = multierr.Append(err, invalid("gameState", "countries", "key %q does not match country %q", name, c.Name))
			continue
		}
		err = multierr.Append(err, c.Validate())
	}
	for _, m := range s.Missiles {
		err = multierr.Append(err, m.Validate())
	}
	for _, p := range s.Players {
		if p.ID == uuid.Nil {
			err = multierr.Append(err, invalid("player", "id", "missing player id"))
		}
	}
	if s.Match != nil {
		err = multierr.Append(err, s.Match.Validate())
	}
	if s.Tracer != nil {
		err = multierr.Append(err, s.Tracer.Validate())
	}
	return err
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/multierr"

	"minisync/config"
)

// roomConfig 管理接口读写的字段；POST 时只更新给出的字段
type roomConfig struct {
	AIFollow           *float64 `json:"aiFollow,omitempty"`
	MissileDamage      *int     `json:"missileDamage,omitempty"`
	TimeScale          *float64 `json:"timeScale,omitempty"`
	MessageLimit       *int     `json:"messageLimit,omitempty"`
	GreatCircle        *bool    `json:"greatCircle,omitempty"`
	SpeedMach          *float64 `json:"speedMach,omitempty"`
	MaxInputsPerTick   *int     `json:"maxInputsPerTick,omitempty"`
	SimulateDelayMinMs *int     `json:"simulateDelayMinMs,omitempty"`
	SimulateDelayMaxMs *int     `json:"simulateDelayMaxMs,omitempty"`
	SimulateDropProb   *float64 `json:"simulateDropProb,omitempty"`
}

// currentConfig 返回房间配置的副本
func (r *Room) currentConfig() roomConfig {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	rules := r.rules
	maxInputs, lo, hi, drop := r.maxInputsPerTick, r.simulateDelayMinMs, r.simulateDelayMaxMs, r.simulateDropProb
	return roomConfig{
		AIFollow:           &rules.AIFollow,
		MissileDamage:      &rules.MissileDamage,
		TimeScale:          &rules.TimeScale,
		MessageLimit:       &rules.MessageLimit,
		GreatCircle:        &rules.GreatCircle,
		SpeedMach:          &rules.SpeedMach,
		MaxInputsPerTick:   &maxInputs,
		SimulateDelayMinMs: &lo,
		SimulateDelayMaxMs: &hi,
		SimulateDropProb:   &drop,
	}
}

// applyConfig 校验通过后整体替换，失败时不改动任何字段
func (r *Room) applyConfig(c roomConfig) error {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	rules := r.rules
	maxInputs, lo, hi, drop := r.maxInputsPerTick, r.simulateDelayMinMs, r.simulateDelayMaxMs, r.simulateDropProb

	set(&rules.AIFollow, c.AIFollow)
	set(&rules.MissileDamage, c.MissileDamage)
	set(&rules.TimeScale, c.TimeScale)
	set(&rules.MessageLimit, c.MessageLimit)
	set(&rules.GreatCircle, c.GreatCircle)
	set(&rules.SpeedMach, c.SpeedMach)
	set(&maxInputs, c.MaxInputsPerTick)
	set(&lo, c.SimulateDelayMinMs)
	set(&hi, c.SimulateDelayMaxMs)
	set(&drop, c.SimulateDropProb)

	err := config.ValidateRules(rules)
	if maxInputs <= 0 {
		err = multierr.Append(err, fmt.Errorf("maxInputsPerTick %d must be positive", maxInputs))
	}
	if lo < 0 || hi < lo {
		err = multierr.Append(err, fmt.Errorf("simulated delay [%d, %d] is not a range", lo, hi))
	}
	if drop < 0 || drop > 1 {
		err = multierr.Append(err, errors.New("simulateDropProb must be within [0, 1]"))
	}
	if err != nil {
		return err
	}
	if rules != r.rules {
		r.rules = rules
		r.rulesChanged = true
	}
	r.maxInputsPerTick, r.simulateDelayMinMs, r.simulateDelayMaxMs, r.simulateDropProb = maxInputs, lo, hi, drop
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// HandleAdminConfig 提供房间配置的读取与更新（热更新模拟规则）
// GET /admin/config?room=room-1  返回当前配置
// POST /admin/config?room=room-1 以 JSON 载荷更新部分字段
func HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	GetRoomManager().HandleAdminConfig(w, r)
}

func (m *RoomManager) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	// 只读写已存在的房间；房间由玩家接入时创建
	room, ok := m.Room(r.URL.Query().Get("room"))
	if !ok {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, room.currentConfig())
	case http.MethodPost:
		var body roomConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := room.applyConfig(body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		Log.Infow("config updated", "room", room.ID, "config", room.currentConfig())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=room-1
func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	GetRoomManager().HandleMetrics(w, r)
}

func (m *RoomManager) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	room, ok := m.Room(r.URL.Query().Get("room"))
	if !ok {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    room.ID,
		"mode":    room.Mode,
		"seq":     room.Seq(),
		"players": room.PlayerCount(),
		"metrics": room.metrics.Snapshot(),
	})
}

// HandleRooms 列出当前房间
// GET /admin/rooms
func HandleRooms(w http.ResponseWriter, r *http.Request) {
	GetRoomManager().HandleRooms(w, r)
}

func (m *RoomManager) HandleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": m.Rooms()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

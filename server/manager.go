package server

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"minisync/config"
	"minisync/game"
	"minisync/replay"
)

// Options 房间管理器参数
type Options struct {
	Room        RoomOptions
	DefaultRoom string
	InputRate   float64
	InputBurst  int
	ReplayPath  string // 非空时每个房间录制到 <ReplayPath>.<room>
}

func DefaultOptions() Options {
	return Options{
		Room:        DefaultRoomOptions(),
		DefaultRoom: "room-1",
		InputRate:   60,
		InputBurst:  20,
	}
}

// OptionsFromConfig 由服务端配置生成管理器参数
func OptionsFromConfig(c config.Config) Options {
	return Options{
		Room: RoomOptions{
			Mode:               c.DefaultMode,
			Rules:              c.Rules,
			TickHz:             c.TickHz,
			MaxInputsPerTick:   c.MaxInputsPerTick,
			SimulateDelayMinMs: c.SimulateDelayMinMs,
			SimulateDelayMaxMs: c.SimulateDelayMaxMs,
			SimulateDropProb:   c.SimulateDropProb,
		},
		DefaultRoom: c.DefaultRoom,
		InputRate:   c.InputRate,
		InputBurst:  c.InputBurst,
		ReplayPath:  c.ReplayPath,
	}
}

// RoomManager 管理多个房间的生命周期
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	opts  Options
}

var (
	defaultManager *RoomManager
	defaultOptions = DefaultOptions()
	once           sync.Once
)

// Configure 设置单例的参数，必须在第一次 GetRoomManager 之前调用
func Configure(o Options) { defaultOptions = o }

// GetRoomManager 单例房间管理器
func GetRoomManager() *RoomManager {
	once.Do(func() {
		defaultManager = NewRoomManager(defaultOptions)
	})
	return defaultManager
}

func NewRoomManager(o Options) *RoomManager {
	if o.DefaultRoom == "" {
		o.DefaultRoom = "room-1"
	}
	return &RoomManager{rooms: make(map[string]*Room), opts: o}
}

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick。mode 只在创建时生效
func (m *RoomManager) GetOrCreateRoom(id string, mode game.Mode) *Room {
	if id == "" {
		id = m.opts.DefaultRoom
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		opts := m.opts.Room
		if mode != "" {
			opts.Mode = mode
		}
		if m.opts.ReplayPath != "" {
			rec, err := replay.Create(replayFile(m.opts.ReplayPath, id), Log)
			if err != nil {
				Log.Warnw("replay disabled", "room", id, "error", err)
			} else {
				opts.Recorder = rec
			}
		}
		r = NewRoom(id, opts)
		m.rooms[id] = r
		r.StartTicker()
		Log.Infow("room created", "room", id, "mode", r.Mode)
	}
	return r
}

// Room 查找已存在的房间
func (m *RoomManager) Room(id string) (*Room, bool) {
	if id == "" {
		id = m.opts.DefaultRoom
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Rooms 按名字排序的房间列表
func (m *RoomManager) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown 停止全部房间
func (m *RoomManager) Shutdown() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()
	for _, r := range rooms {
		r.Stop()
	}
}

func (m *RoomManager) newLimiter() *rate.Limiter {
	if m.opts.InputRate <= 0 {
		return nil
	}
	burst := m.opts.InputBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(m.opts.InputRate), burst)
}

// replayFile session.replay + room-1 → session.room-1.replay
func replayFile(base, room string) string {
	room = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(room)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + room + ext
}

package server

import "github.com/google/uuid"

// PlayerID 表示玩家唯一标识
type PlayerID = uuid.UUID

// Player 房间内的玩家（仅由房间协程读写）
type Player struct {
	ID      PlayerID
	Country string // 导弹模式下所属国家，由服务端分配

	Conn *ClientConn // 网络连接的发送端（写协程）

	lastSeq uint64 // 已处理的最大输入序号
	budget  int    // 本 Tick 剩余可处理的输入数
}

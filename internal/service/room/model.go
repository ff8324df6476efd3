package room

import "podium-lobby/internal/protocol"

// Member 是房间内的一名玩家及其连接的响应通道
type Member struct {
	protocol.Player

	RespCh chan protocol.ResponseWrapper `json:"-"`
}

// Request 是送入房间事件循环的一条请求，由连接处理器附上发送者身份
type Request struct {
	Wrapper protocol.RequestWrapper

	// 连接当前绑定的玩家 ID，加入前为空
	PlayerID string
	RespCh   chan protocol.ResponseWrapper

	// 加入成功后回传服务端确定的玩家信息，失败时被关闭；容量至少为 1
	Joined chan protocol.Player

	// 连接断开时由服务端合成
	Disconnect bool

	// 非空时只查询当前名单，容量至少为 1
	Snapshot chan []protocol.Player
}

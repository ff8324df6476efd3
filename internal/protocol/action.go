package protocol

// 加入时携带客户端本地生成的玩家信息，服务端可能重新分配 ID
type JoinRequest struct {
	Player Player `json:"player"`
}

type JoinedResponse struct {
	RoomID string `json:"room_id"`
	Joiner Player `json:"joiner"`
}

type LeaveRequest struct{}

type LeftResponse struct {
	PlayerID string `json:"player_id"`
}

type UpdateRequest struct {
	Player Player `json:"player"`
}

// 每次推送都是完整的名单快照，没有增量语义
type UpdatePlayersResponse struct {
	Players []Player `json:"players"`
}

type StartGameRequest struct{}

type GameStartingResponse struct {
	StartedBy string `json:"started_by"`
}

package room

import (
	"go.uber.org/zap"

	"podium-lobby/internal/protocol"
)

// RoomContext 只在房间协程中访问。成员按加入顺序排列，这个顺序就是领奖台上的顺序。
type RoomContext struct {
	RoomID     string
	MaxPlayers int
	Members    []*Member

	// 已被按 ID 重连顶替并关闭的响应通道，不能再向其发送
	retired map[chan protocol.ResponseWrapper]struct{}
}

func (rc *RoomContext) Find(playerID string) (*Member, int) {
	for i, m := range rc.Members {
		if m.ID == playerID {
			return m, i
		}
	}

	return nil, -1
}

func (rc *RoomContext) Remove(playerID string) bool {
	_, idx := rc.Find(playerID)
	if idx < 0 {
		return false
	}

	rc.Members = append(rc.Members[:idx], rc.Members[idx+1:]...)
	return true
}

// Snapshot 返回完整的公开名单
func (rc *RoomContext) Snapshot() []protocol.Player {
	players := make([]protocol.Player, 0, len(rc.Members))
	for _, m := range rc.Members {
		players = append(players, m.Player)
	}

	return players
}

func (rc *RoomContext) BroadcastSnapshot() {
	rc.BroadcastResp(protocol.WrapResponse(
		protocol.RESP_UPDATE_PLAYERS,
		protocol.UpdatePlayersResponse{Players: rc.Snapshot()},
	))
}

func (rc *RoomContext) BroadcastResp(resp protocol.ResponseWrapper) {
	for _, m := range rc.Members {
		select {
		case m.RespCh <- resp:
			zap.L().Debug(
				"成功发送广播响应",
				zap.String("room_id", rc.RoomID),
				zap.String("player_id", m.ID),
				zap.String("response_type", resp.RespType),
			)
		default:
			zap.L().Warn(
				"发送广播响应失败：玩家响应通道已满",
				zap.String("room_id", rc.RoomID),
				zap.String("player_id", m.ID),
			)
		}
	}
}

func (rc *RoomContext) UnicastResp(playerID string, resp protocol.ResponseWrapper) {
	m, _ := rc.Find(playerID)
	if m == nil {
		zap.L().Warn(
			"无法找到玩家进行单播响应",
			zap.String("room_id", rc.RoomID),
			zap.String("player_id", playerID),
		)
		return
	}

	rc.reply(m.RespCh, resp)
}

// Retire 关闭被顶替连接的响应通道
func (rc *RoomContext) Retire(respCh chan protocol.ResponseWrapper) {
	if respCh == nil {
		return
	}
	if _, ok := rc.retired[respCh]; ok {
		return
	}
	if rc.retired == nil {
		rc.retired = make(map[chan protocol.ResponseWrapper]struct{})
	}

	rc.retired[respCh] = struct{}{}
	close(respCh)
}

// Forget 在旧连接彻底断开后释放其记录
func (rc *RoomContext) Forget(respCh chan protocol.ResponseWrapper) {
	delete(rc.retired, respCh)
}

func (rc *RoomContext) reply(respCh chan protocol.ResponseWrapper, resp protocol.ResponseWrapper) {
	if respCh == nil {
		return
	}
	if _, ok := rc.retired[respCh]; ok {
		return
	}

	select {
	case respCh <- resp:
	default:
		zap.L().Warn(
			"发送单播响应失败：响应通道已满",
			zap.String("response_type", resp.RespType),
		)
	}
}

package room

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"podium-lobby/internal/protocol"
)

var (
	ErrRoomFull     = errors.New("房间已满")
	ErrNotJoined    = errors.New("尚未加入房间")
	ErrUnknownReq   = errors.New("无法处理请求：不支持该请求类型")
	ErrMalformedReq = errors.New("无法处理请求：请求数据无效")
	ErrRoomClosed   = errors.New("房间已关闭")
)

// handle 处理一条请求。每次成员变化都会向全体成员广播完整名单。
func handle(ctx *RoomContext, req Request) error {
	if req.Snapshot != nil {
		req.Snapshot <- ctx.Snapshot()
		return nil
	}

	if req.Disconnect {
		onPlayerLeave(ctx, req.PlayerID, req.RespCh)
		ctx.Forget(req.RespCh)
		return nil
	}

	switch req.Wrapper.ReqType {
	case protocol.REQ_JOIN:
		join := protocol.TryUnwrapJoinRequest(req.Wrapper)
		if join == nil {
			return ErrMalformedReq
		}
		return onPlayerJoin(ctx, join.Player, req)

	case protocol.REQ_LEAVE:
		if protocol.TryUnwrapLeaveRequest(req.Wrapper) == nil {
			return ErrMalformedReq
		}
		if !onPlayerLeave(ctx, req.PlayerID, req.RespCh) {
			return ErrNotJoined
		}
		ctx.reply(req.RespCh, protocol.WrapResponse(
			protocol.RESP_LEFT,
			protocol.LeftResponse{PlayerID: req.PlayerID},
		))
		return nil

	case protocol.REQ_UPDATE:
		update := protocol.TryUnwrapUpdateRequest(req.Wrapper)
		if update == nil {
			return ErrMalformedReq
		}
		return onPlayerUpdate(ctx, req.PlayerID, update.Player)

	case protocol.REQ_START_GAME:
		if protocol.TryUnwrapStartGameRequest(req.Wrapper) == nil {
			return ErrMalformedReq
		}
		return onStartGame(ctx, req.PlayerID)
	}

	return ErrUnknownReq
}

func onPlayerJoin(ctx *RoomContext, player protocol.Player, req Request) error {
	player = player.Sanitize()
	player.Ready = false

	// 同一连接重复加入时先移除它之前绑定的玩家
	if req.PlayerID != "" && req.PlayerID != player.ID {
		if m, _ := ctx.Find(req.PlayerID); m != nil && m.RespCh == req.RespCh {
			ctx.Remove(req.PlayerID)
		}
	}

	if !validID(player.ID) {
		player.ID = GenID()
	}

	// 相同的玩家 ID 视为按 ID 重连：替换 RespCh，保留原有位置
	if existing, _ := ctx.Find(player.ID); existing != nil {
		zap.L().Info(
			"检测到相同 player ID，执行按 ID 重连",
			zap.String("room_id", ctx.RoomID),
			zap.String("player_id", player.ID),
		)

		if existing.RespCh != req.RespCh {
			// 让旧连接的写协程退出
			ctx.Retire(existing.RespCh)
		}

		player.Ready = existing.Ready
		existing.Player = player
		existing.RespCh = req.RespCh

		joined(ctx, existing, req.Joined)
		return nil
	}

	if ctx.MaxPlayers > 0 && len(ctx.Members) >= ctx.MaxPlayers {
		return fmt.Errorf("%w: 最多 %d 人", ErrRoomFull, ctx.MaxPlayers)
	}

	member := &Member{
		Player: player,
		RespCh: req.RespCh,
	}
	ctx.Members = append(ctx.Members, member)

	zap.L().Info(
		"玩家加入房间",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", player.ID),
		zap.String("player_name", player.Name),
		zap.Int("members", len(ctx.Members)),
	)

	joined(ctx, member, req.Joined)
	return nil
}

// 先给加入者私发确认，再广播名单
func joined(ctx *RoomContext, member *Member, joinedCh chan protocol.Player) {
	if joinedCh != nil {
		select {
		case joinedCh <- member.Player:
		default:
		}
	}

	ctx.reply(member.RespCh, protocol.WrapResponse(
		protocol.RESP_JOINED,
		protocol.JoinedResponse{
			RoomID: ctx.RoomID,
			Joiner: member.Player,
		},
	))

	ctx.BroadcastSnapshot()
}

// onPlayerLeave 只移除仍由该连接持有的玩家。已被新连接顶替的旧连接退出时什么也不做。
func onPlayerLeave(ctx *RoomContext, playerID string, reqRespCh chan protocol.ResponseWrapper) bool {
	member, _ := ctx.Find(playerID)
	if member == nil {
		zap.L().Debug(
			"玩家不存在，无法退出",
			zap.String("room_id", ctx.RoomID),
			zap.String("player_id", playerID),
		)
		return false
	}

	if member.RespCh != reqRespCh {
		zap.L().Info(
			"检测到旧连接退出（已被顶替），不删除玩家",
			zap.String("room_id", ctx.RoomID),
			zap.String("player_id", playerID),
		)
		return false
	}

	ctx.Remove(playerID)

	zap.L().Info(
		"玩家离开房间",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", playerID),
		zap.String("player_name", member.Name),
		zap.Int("members", len(ctx.Members)),
	)

	ctx.BroadcastResp(protocol.WrapResponse(
		protocol.RESP_LEFT,
		protocol.LeftResponse{PlayerID: playerID},
	))
	ctx.BroadcastSnapshot()

	return true
}

// onPlayerUpdate 以连接绑定的 ID 为准，忽略客户端声称的 ID；非法颜色保留原值
func onPlayerUpdate(ctx *RoomContext, playerID string, player protocol.Player) error {
	member, _ := ctx.Find(playerID)
	if member == nil {
		return ErrNotJoined
	}

	next := protocol.Player{
		ID:     member.ID,
		Name:   protocol.SanitizeName(player.Name),
		Color:  member.Color,
		Helmet: player.Helmet,
		Ready:  player.Ready,
	}
	if color, ok := protocol.NormalizeColor(player.Color); ok {
		next.Color = color
	}

	if next == member.Player {
		return nil
	}

	member.Player = next

	zap.L().Debug(
		"玩家信息更新",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", playerID),
		zap.String("color", next.Color),
		zap.Bool("helmet", next.Helmet),
		zap.Bool("ready", next.Ready),
	)

	ctx.BroadcastSnapshot()
	return nil
}

// onStartGame 只负责通知，开局逻辑不在大厅范围内
func onStartGame(ctx *RoomContext, playerID string) error {
	member, _ := ctx.Find(playerID)
	if member == nil {
		return ErrNotJoined
	}

	zap.L().Info(
		"玩家请求开始游戏",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", playerID),
	)

	ctx.BroadcastResp(protocol.WrapResponse(
		protocol.RESP_GAME_STARTING,
		protocol.GameStartingResponse{StartedBy: member.Name},
	))
	return nil
}

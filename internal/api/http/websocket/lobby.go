package websocket

import (
	"encoding/json"
	"time"

	"podium-lobby/internal/protocol"
	"podium-lobby/internal/service/room"
	"podium-lobby/internal/state"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
)

func JoinLobby(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		roomID := ctx.URLParamDefault("room_id", appState.Cfg.RoomID)

		r, err := appState.RoomSvc.JoinRoom(roomID)
		if err != nil {
			ctx.StatusCode(iris.StatusNotFound)
			ctx.JSON(iris.Map{
				"error": err.Error(),
			})
			return
		}

		conn, err := upgrader.Upgrade(
			ctx.ResponseWriter(),
			ctx.Request(),
			nil,
		)
		if err != nil {
			zap.L().Error("升级到WebSocket失败", zap.Error(err))
			return
		}

		ServeConn(r, conn, ctx.RemoteAddr())
	}
}

// ServeConn 处理一条大厅连接直到断开。首条消息必须是 Join。
func ServeConn(r *room.Room, conn *websocket.Conn, clientIP string) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
	conn.SetPongHandler(heartbeatHandler(conn))

	respCh := make(chan protocol.ResponseWrapper, 64)
	// 连接处理器自己产生的错误响应，房间协程只写 respCh
	errCh := make(chan protocol.ResponseWrapper, 8)

	// 读取首次请求
	_, msg, err := conn.ReadMessage()
	if err != nil {
		zap.L().Error(
			"读取首次请求失败",
			zap.String("client_ip", clientIP),
			zap.Error(err),
		)
		return
	}

	var wrapper protocol.RequestWrapper

	if err := json.Unmarshal(msg, &wrapper); err != nil || wrapper.ReqType != protocol.REQ_JOIN {
		zap.L().Error(
			"首次请求不是Join类型",
			zap.String("client_ip", clientIP),
			zap.ByteString("message", msg),
		)

		writeNow(conn, protocol.WrapErrResponse("首条消息必须是 Join"))
		return
	}

	forward := func(req room.Request) bool {
		select {
		case r.ReqCh() <- req:
			return true
		case <-r.Done():
			return false
		default:
			zap.L().Error(
				"发送请求到房间失败：请求通道已满",
				zap.String("client_ip", clientIP),
			)
			select {
			case errCh <- protocol.WrapErrResponse("房间繁忙，请稍后再试"):
			default:
			}
			return false
		}
	}

	// join 等待房间确认，返回服务端确定的玩家 ID
	join := func(wrapper protocol.RequestWrapper, boundID string) (string, bool) {
		joinedCh := make(chan protocol.Player, 1)

		if !forward(room.Request{
			Wrapper:  wrapper,
			PlayerID: boundID,
			RespCh:   respCh,
			Joined:   joinedCh,
		}) {
			return "", false
		}

		timer := time.NewTimer(JOIN_TIMEOUT)
		defer timer.Stop()

		select {
		case joiner, ok := <-joinedCh:
			return joiner.ID, ok
		case <-timer.C:
			zap.L().Warn("等待加入响应超时", zap.String("client_ip", clientIP))
			return "", false
		case <-r.Done():
			return "", false
		}
	}

	playerID, ok := join(wrapper, "")
	if !ok {
		// 把房间给出的错误原因直接发给客户端
		select {
		case resp, open := <-respCh:
			if open {
				writeNow(conn, resp)
			}
		default:
		}
		return
	}

	zap.L().Info(
		"玩家成功加入房间",
		zap.String("client_ip", clientIP),
		zap.String("room_id", r.ID()),
		zap.String("player_id", playerID),
	)

	// 写协程的退出信号
	writeDoneCh := make(chan struct{})
	defer close(writeDoneCh)

	go writeLoop(conn, clientIP, respCh, errCh, writeDoneCh)

	// 读取协程（主协程）
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
			) {
				zap.L().Error(
					"读取消息失败",
					zap.String("client_ip", clientIP),
					zap.Error(err),
				)
			}

			break
		}

		conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))

		var wrapper protocol.RequestWrapper

		if err := json.Unmarshal(msg, &wrapper); err != nil {
			zap.L().Error(
				"解析消息失败",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)

			select {
			case errCh <- protocol.WrapErrResponse("无效的请求格式"):
			default:
			}

			continue
		}

		switch wrapper.ReqType {
		case protocol.REQ_JOIN:
			if id, ok := join(wrapper, playerID); ok {
				playerID = id
			}

		case protocol.REQ_LEAVE:
			forward(room.Request{
				Wrapper:  wrapper,
				PlayerID: playerID,
				RespCh:   respCh,
			})
			playerID = ""

		default:
			forward(room.Request{
				Wrapper:  wrapper,
				PlayerID: playerID,
				RespCh:   respCh,
			})
		}
	}

	// 读循环退出，表示客户端断开连接
	zap.L().Info(
		"客户端连接断开",
		zap.String("client_ip", clientIP),
		zap.String("player_id", playerID),
	)

	disconnect(r, room.Request{
		PlayerID:   playerID,
		RespCh:     respCh,
		Disconnect: true,
	})
}

// 断开通知必须送达，否则玩家会一直留在名单里
func disconnect(r *room.Room, req room.Request) {
	timer := time.NewTimer(JOIN_TIMEOUT)
	defer timer.Stop()

	select {
	case r.ReqCh() <- req:
	case <-r.Done():
	case <-timer.C:
		zap.L().Warn(
			"发送断开通知超时",
			zap.String("player_id", req.PlayerID),
		)
	}
}

func writeLoop(
	conn *websocket.Conn,
	clientIP string,
	respCh <-chan protocol.ResponseWrapper,
	errCh <-chan protocol.ResponseWrapper,
	writeDoneCh <-chan struct{},
) {
	ticker := time.NewTicker(HEARTBEAT_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-writeDoneCh:
			zap.L().Debug(
				"WebSocket写入协程退出",
				zap.String("client_ip", clientIP),
			)
			return

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				zap.L().Error(
					"发送心跳失败",
					zap.String("client_ip", clientIP),
					zap.Error(err),
				)
				conn.Close()
				return
			}

		case resp := <-errCh:
			if !writeNow(conn, resp) {
				conn.Close()
				return
			}

		case resp, ok := <-respCh:
			// 通道被关闭：连接已被按 ID 重连顶替，或房间已关闭
			if !ok {
				zap.L().Info(
					"响应通道已关闭，断开连接",
					zap.String("client_ip", clientIP),
				)
				conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"),
					time.Now().Add(time.Second),
				)
				conn.Close()
				return
			}

			if !writeNow(conn, resp) {
				conn.Close()
				return
			}

			zap.L().Debug(
				"发送消息",
				zap.String("client_ip", clientIP),
				zap.String("response_type", resp.RespType),
			)
		}
	}
}

func writeNow(conn *websocket.Conn, resp protocol.ResponseWrapper) bool {
	conn.SetWriteDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))

	if err := conn.WriteJSON(resp); err != nil {
		zap.L().Error("发送消息失败", zap.Error(err))
		return false
	}

	return true
}

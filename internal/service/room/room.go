// Package room 是大厅服务端的房间：每个房间一个协程，串行处理成员的请求。
package room

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"podium-lobby/internal/protocol"
)

type Room struct {
	ctx *RoomContext
	// 所有连接的请求汇总到这个通道
	reqCh chan Request
	// 结束通道，用于通知房间退出事件循环
	doneCh   chan struct{}
	stopOnce sync.Once
	exited   chan struct{}

	name      string
	createdAt time.Time
	// 由房间协程维护，供清理协程读取
	size atomic.Int32
}

func NewRoom(roomID, name string, maxPlayers int) *Room {
	return &Room{
		ctx: &RoomContext{
			RoomID:     roomID,
			MaxPlayers: maxPlayers,
			Members:    make([]*Member, 0),
		},
		reqCh:     make(chan Request, 64),
		doneCh:    make(chan struct{}),
		exited:    make(chan struct{}),
		name:      name,
		createdAt: time.Now(),
	}
}

func (r *Room) ID() string {
	return r.ctx.RoomID
}

func (r *Room) Name() string {
	return r.name
}

func (r *Room) ReqCh() chan<- Request {
	return r.reqCh
}

func (r *Room) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Room) Size() int {
	return int(r.size.Load())
}

func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Start 运行房间事件循环，直到 Stop 被调用
func (r *Room) Start() {
	defer close(r.exited)

	for {
		var req Request

		select {
		case req = <-r.reqCh:
			zap.L().Debug(
				"接收到客户端请求",
				zap.String("room_id", r.ctx.RoomID),
				zap.String("request_type", req.Wrapper.ReqType),
				zap.String("player_id", req.PlayerID),
				zap.Bool("disconnect", req.Disconnect),
			)

		case <-r.doneCh:
			zap.L().Info(
				"收到退出信号，关闭房间",
				zap.String("room_id", r.ctx.RoomID),
			)

			// 关闭全部响应通道，让各连接的写协程退出
			for _, m := range r.ctx.Members {
				if m.RespCh != nil {
					close(m.RespCh)
				}
			}
			r.ctx.Members = nil
			r.size.Store(0)
			return
		}

		if err := handle(r.ctx, req); err != nil {
			zap.L().Debug(
				"处理请求失败",
				zap.String("room_id", r.ctx.RoomID),
				zap.String("request_type", req.Wrapper.ReqType),
				zap.Error(err),
			)

			r.ctx.reply(req.RespCh, protocol.WrapErrResponse(err.Error()))

			// 告知等待中的连接处理器加入失败
			if req.Joined != nil {
				close(req.Joined)
			}
		}

		r.size.Store(int32(len(r.ctx.Members)))
	}
}

// Players 向房间协程查询当前名单
func (r *Room) Players(ctx context.Context) ([]protocol.Player, error) {
	replyCh := make(chan []protocol.Player, 1)

	select {
	case r.reqCh <- Request{Snapshot: replyCh}:
	case <-r.doneCh:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case players := <-replyCh:
		return players, nil
	case <-r.doneCh:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop 通知房间协程退出并等待其结束，可重复调用
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.doneCh)
	})
	<-r.exited
}

// Package transport 是大厅客户端一侧的实时通道，基于 websocket。
//
// 出站意图：Join / Leave / Update / StartGame；入站事件：UpdatePlayers 完整快照。
// 连接断开后按固定节奏重连，直到 ctx 结束。
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"podium-lobby/internal/protocol"
)

var ErrNotConnected = errors.New("transport not connected")

const (
	writeWait        = 5 * time.Second
	heartbeatTimeout = 45 * time.Second
)

// Handlers 在读协程中被调用，实现方应尽快返回
type Handlers struct {
	OnSnapshot     func(players []protocol.Player)
	OnJoined       func(joiner protocol.Player)
	OnGameStarting func(startedBy string)
	OnError        func(msg string)
	OnConnect      func()
	OnDisconnect   func(err error)
}

type Client struct {
	url     string
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers Handlers
}

// NewClient 每 interval 最多尝试一次连接
func NewClient(url string, interval time.Duration) *Client {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Client{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = h
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Run 建立连接并处理入站消息，断线后重连，ctx 结束时返回
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			// 下一次尝试已经赶不上 ctx 的截止时间
			<-ctx.Done()
			return ctx.Err()
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Warn("连接大厅服务失败，稍后重试", zap.String("url", c.url), zap.Error(err))
			continue
		}

		zap.L().Info("已连接大厅服务", zap.String("url", c.url))

		err = c.serve(ctx, conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().Warn("与大厅服务的连接断开", zap.Error(err))
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	handlers := c.handlers
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(writeWait),
		)
		conn.Close()
	})

	defer func() {
		stop()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	if handlers.OnConnect != nil {
		handlers.OnConnect()
	}

	var err error
	for {
		var msg []byte
		_, msg, err = conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))

		c.dispatch(handlers, msg)
	}

	if handlers.OnDisconnect != nil {
		handlers.OnDisconnect(err)
	}

	return err
}

func (c *Client) dispatch(handlers Handlers, msg []byte) {
	var wrapper protocol.RawResponseWrapper
	if err := json.Unmarshal(msg, &wrapper); err != nil {
		zap.L().Warn("解析服务端消息失败", zap.Error(err))
		return
	}

	switch wrapper.RespType {
	case protocol.RESP_UPDATE_PLAYERS:
		var data protocol.UpdatePlayersResponse
		if err := json.Unmarshal(wrapper.Data, &data); err != nil {
			zap.L().Warn("解析名单快照失败", zap.Error(err))
			return
		}
		if handlers.OnSnapshot != nil {
			handlers.OnSnapshot(data.Players)
		}

	case protocol.RESP_JOINED:
		var data protocol.JoinedResponse
		if err := json.Unmarshal(wrapper.Data, &data); err != nil {
			zap.L().Warn("解析加入确认失败", zap.Error(err))
			return
		}
		if handlers.OnJoined != nil {
			handlers.OnJoined(data.Joiner)
		}

	case protocol.RESP_GAME_STARTING:
		var data protocol.GameStartingResponse
		if err := json.Unmarshal(wrapper.Data, &data); err != nil {
			zap.L().Warn("解析开始游戏通知失败", zap.Error(err))
			return
		}
		if handlers.OnGameStarting != nil {
			handlers.OnGameStarting(data.StartedBy)
		}

	case protocol.RESP_ERROR:
		zap.L().Warn("服务端返回错误", zap.String("error_message", wrapper.ErrMsg))
		if handlers.OnError != nil {
			handlers.OnError(wrapper.ErrMsg)
		}

	default:
		zap.L().Debug("忽略未知消息", zap.String("response_type", wrapper.RespType))
	}
}

func (c *Client) Join(p protocol.Player) error {
	return c.send(protocol.WrapRequest(protocol.REQ_JOIN, protocol.JoinRequest{Player: p}))
}

func (c *Client) Leave() error {
	return c.send(protocol.WrapRequest(protocol.REQ_LEAVE, protocol.LeaveRequest{}))
}

func (c *Client) Update(p protocol.Player) error {
	return c.send(protocol.WrapRequest(protocol.REQ_UPDATE, protocol.UpdateRequest{Player: p}))
}

func (c *Client) Start() error {
	return c.send(protocol.WrapRequest(protocol.REQ_START_GAME, protocol.StartGameRequest{}))
}

// 同一时刻只允许一个写者
func (c *Client) send(req protocol.RequestWrapper) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return c.conn.WriteJSON(req)
}

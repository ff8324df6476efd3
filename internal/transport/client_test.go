package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium-lobby/internal/protocol"
)

// fakeLobby 把每条连接交给测试处理
type fakeLobby struct {
	conns chan *websocket.Conn
	url   string
}

func newFakeLobby(t *testing.T) *fakeLobby {
	t.Helper()

	f := &fakeLobby{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- conn
	}))
	t.Cleanup(srv.Close)

	f.url = "ws" + strings.TrimPrefix(srv.URL, "http")

	return f
}

func (f *fakeLobby) accept(t *testing.T) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-f.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("客户端没有连接")
		return nil
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("等待回调超时")
		var zero T
		return zero
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", time.Second)

	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Join(protocol.Player{ID: "a"}), ErrNotConnected)
	assert.ErrorIs(t, c.Leave(), ErrNotConnected)
	assert.ErrorIs(t, c.Update(protocol.Player{ID: "a"}), ErrNotConnected)
	assert.ErrorIs(t, c.Start(), ErrNotConnected)
}

func TestClientExchangesMessages(t *testing.T) {
	lobby := newFakeLobby(t)

	connected := make(chan struct{}, 4)
	snapshots := make(chan []protocol.Player, 4)
	joined := make(chan protocol.Player, 4)
	starting := make(chan string, 4)
	serverErrs := make(chan string, 4)

	c := NewClient(lobby.url, 20*time.Millisecond)
	c.SetHandlers(Handlers{
		OnConnect:      func() { connected <- struct{}{} },
		OnSnapshot:     func(players []protocol.Player) { snapshots <- players },
		OnJoined:       func(p protocol.Player) { joined <- p },
		OnGameStarting: func(name string) { starting <- name },
		OnError:        func(msg string) { serverErrs <- msg },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	server := lobby.accept(t)
	recv(t, connected)
	assert.True(t, c.Connected())

	require.NoError(t, c.Join(protocol.Player{ID: "local-1", Name: "Ann"}))

	var req protocol.RequestWrapper
	require.NoError(t, server.ReadJSON(&req))
	assert.Equal(t, protocol.REQ_JOIN, req.ReqType)
	join := protocol.TryUnwrapJoinRequest(req)
	require.NotNil(t, join)
	assert.Equal(t, "Ann", join.Player.Name)

	require.NoError(t, server.WriteJSON(protocol.WrapResponse(
		protocol.RESP_JOINED,
		protocol.JoinedResponse{RoomID: "lobby", Joiner: protocol.Player{ID: "srv-1", Name: "Ann"}},
	)))
	assert.Equal(t, "srv-1", recv(t, joined).ID)

	require.NoError(t, server.WriteJSON(protocol.WrapResponse(
		protocol.RESP_UPDATE_PLAYERS,
		protocol.UpdatePlayersResponse{Players: []protocol.Player{{ID: "srv-1", Name: "Ann"}, {ID: "b", Name: "Bob"}}},
	)))
	players := recv(t, snapshots)
	require.Len(t, players, 2)
	assert.Equal(t, "Bob", players[1].Name)

	require.NoError(t, server.WriteJSON(protocol.WrapErrResponse("房间已满")))
	assert.Equal(t, "房间已满", recv(t, serverErrs))

	// 无法解析的消息只记录日志
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("not json")))

	require.NoError(t, server.WriteJSON(protocol.WrapResponse(
		protocol.RESP_GAME_STARTING,
		protocol.GameStartingResponse{StartedBy: "Bob"},
	)))
	assert.Equal(t, "Bob", recv(t, starting))

	require.NoError(t, c.Start())
	require.NoError(t, server.ReadJSON(&req))
	assert.Equal(t, protocol.REQ_START_GAME, req.ReqType)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run 没有退出")
	}
	assert.False(t, c.Connected())
}

func TestClientReconnects(t *testing.T) {
	lobby := newFakeLobby(t)

	connected := make(chan struct{}, 4)
	disconnected := make(chan error, 4)

	c := NewClient(lobby.url, 20*time.Millisecond)
	c.SetHandlers(Handlers{
		OnConnect:    func() { connected <- struct{}{} },
		OnDisconnect: func(err error) { disconnected <- err },
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	first := lobby.accept(t)
	recv(t, connected)

	first.Close()
	assert.Error(t, recv(t, disconnected))

	lobby.accept(t)
	recv(t, connected)
	assert.True(t, c.Connected())
}

func TestRunStopsWhileDialing(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

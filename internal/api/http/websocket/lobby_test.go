package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium-lobby/internal/protocol"
	"podium-lobby/internal/service/room"
)

func newLobbyServer(t *testing.T, maxPlayers int) (*room.Room, string) {
	t.Helper()

	r := room.NewRoom("lobby", "lobby", maxPlayers)
	go r.Start()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		ServeConn(r, conn, req.RemoteAddr)
	}))

	t.Cleanup(func() {
		srv.Close()
		r.Stop()
	})

	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, reqType string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.WrapRequest(reqType, data)))
}

// readUntil 跳过其它类型的消息，直到读到 respType
func readUntil(t *testing.T, conn *websocket.Conn, respType string) protocol.RawResponseWrapper {
	t.Helper()

	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var resp protocol.RawResponseWrapper
		require.NoError(t, conn.ReadJSON(&resp))

		if resp.RespType == respType {
			return resp
		}
	}
}

func readPlayers(t *testing.T, conn *websocket.Conn) []protocol.Player {
	t.Helper()

	resp := readUntil(t, conn, protocol.RESP_UPDATE_PLAYERS)

	var data protocol.UpdatePlayersResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	return data.Players
}

func joinAs(t *testing.T, conn *websocket.Conn, p protocol.Player) protocol.Player {
	t.Helper()

	send(t, conn, protocol.REQ_JOIN, protocol.JoinRequest{Player: p})
	resp := readUntil(t, conn, protocol.RESP_JOINED)

	var data protocol.JoinedResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	return data.Joiner
}

func TestJoinReceivesSnapshot(t *testing.T) {
	_, url := newLobbyServer(t, 8)

	ann := dial(t, url)
	joiner := joinAs(t, ann, protocol.Player{ID: "ann", Name: "Ann", Color: "#3a86ff"})
	assert.Equal(t, "ann", joiner.ID)
	assert.Equal(t, "#3A86FF", joiner.Color)

	players := readPlayers(t, ann)
	require.Len(t, players, 1)
	assert.Equal(t, "Ann", players[0].Name)

	bob := dial(t, url)
	joinAs(t, bob, protocol.Player{ID: "bob", Name: "Bob"})

	players = readPlayers(t, ann)
	require.Len(t, players, 2)
	assert.Equal(t, "ann", players[0].ID)
	assert.Equal(t, "bob", players[1].ID)
}

func TestUpdateIsBroadcast(t *testing.T) {
	_, url := newLobbyServer(t, 8)

	ann := dial(t, url)
	joinAs(t, ann, protocol.Player{ID: "ann", Name: "Ann"})
	readPlayers(t, ann)

	send(t, ann, protocol.REQ_UPDATE, protocol.UpdateRequest{
		Player: protocol.Player{ID: "someone-else", Name: "Ann", Color: "#FF006E", Ready: true},
	})

	players := readPlayers(t, ann)
	require.Len(t, players, 1)
	assert.Equal(t, "ann", players[0].ID)
	assert.Equal(t, "#FF006E", players[0].Color)
	assert.True(t, players[0].Ready)
}

func TestFirstMessageMustBeJoin(t *testing.T) {
	_, url := newLobbyServer(t, 8)

	conn := dial(t, url)
	send(t, conn, protocol.REQ_UPDATE, protocol.UpdateRequest{})

	resp := readUntil(t, conn, protocol.RESP_ERROR)
	assert.NotEmpty(t, resp.ErrMsg)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestJoinRejectedWhenFull(t *testing.T) {
	_, url := newLobbyServer(t, 1)

	ann := dial(t, url)
	joinAs(t, ann, protocol.Player{ID: "ann", Name: "Ann"})

	bob := dial(t, url)
	send(t, bob, protocol.REQ_JOIN, protocol.JoinRequest{Player: protocol.Player{ID: "bob", Name: "Bob"}})

	resp := readUntil(t, bob, protocol.RESP_ERROR)
	assert.Contains(t, resp.ErrMsg, room.ErrRoomFull.Error())
}

func TestDisconnectRemovesPlayer(t *testing.T) {
	r, url := newLobbyServer(t, 8)

	ann := dial(t, url)
	joinAs(t, ann, protocol.Player{ID: "ann", Name: "Ann"})
	readPlayers(t, ann)

	bob := dial(t, url)
	joinAs(t, bob, protocol.Player{ID: "bob", Name: "Bob"})
	require.Len(t, readPlayers(t, ann), 2)

	bob.Close()

	left := readUntil(t, ann, protocol.RESP_LEFT)
	var data protocol.LeftResponse
	require.NoError(t, json.Unmarshal(left.Data, &data))
	assert.Equal(t, "bob", data.PlayerID)

	players := readPlayers(t, ann)
	require.Len(t, players, 1)
	assert.Equal(t, "ann", players[0].ID)

	assert.Eventually(t, func() bool { return r.Size() == 1 }, time.Second, 10*time.Millisecond)
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	_, url := newLobbyServer(t, 8)

	first := dial(t, url)
	joinAs(t, first, protocol.Player{ID: "ann", Name: "Ann"})
	readPlayers(t, first)

	second := dial(t, url)
	joinAs(t, second, protocol.Player{ID: "ann", Name: "Ann"})
	players := readPlayers(t, second)
	require.Len(t, players, 1)

	// 旧连接被服务端关闭
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
}

package http

import (
	"fmt"

	"podium-lobby/internal/api/http/websocket"
	"podium-lobby/internal/state"

	"github.com/kataras/iris/v12"
)

func NewApp(appState *state.AppState) *iris.Application {
	app := iris.Default()

	if dir := appState.Cfg.StaticDir; dir != "" {
		app.HandleDir(
			"/",
			iris.Dir(dir),
			iris.DirOptions{
				IndexName: "index.html",
				SPA:       true,
				Compress:  true,
			},
		)
	}

	api := app.Party("/api/v1")

	api.Get("/healthz", Healthz(appState))

	api.Post("/rooms/create", CreateRoom(appState))

	api.Get("/rooms/{room_id}/players", RoomPlayers(appState))

	api.Get("/ws/join", websocket.JoinLobby(appState))

	return app
}

// RunServer 阻塞直到服务器退出
func RunServer(app *iris.Application, appState *state.AppState) error {
	addr := fmt.Sprintf(
		"%s:%d",
		appState.Cfg.Host,
		appState.Cfg.Port,
	)

	return app.Listen(addr, iris.WithoutServerError(iris.ErrServerClosed))
}

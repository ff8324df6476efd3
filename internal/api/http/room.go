package http

import (
	"podium-lobby/internal/lobby/display"
	"podium-lobby/internal/service/dto"
	"podium-lobby/internal/state"

	"github.com/kataras/iris/v12"
)

func CreateRoom(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.CreateRoomRequest

		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StatusCode(iris.StatusBadRequest)
			ctx.JSON(iris.Map{
				"error": "请求参数无效",
			})
			return
		}

		resp, err := appState.RoomSvc.CreateRoom(req)
		if err != nil {
			ctx.StatusCode(iris.StatusBadRequest)
			ctx.JSON(iris.Map{
				"error": err.Error(),
			})
			return
		}

		ctx.JSON(resp)
	}
}

func Healthz(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		ctx.JSON(iris.Map{
			"status": "ok",
			"rooms":  appState.RoomSvc.RoomCount(),
		})
	}
}

// RoomPlayers 以 HTML 列表返回房间当前名单
func RoomPlayers(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		r, err := appState.RoomSvc.JoinRoom(ctx.Params().Get("room_id"))
		if err != nil {
			ctx.StatusCode(iris.StatusNotFound)
			ctx.JSON(iris.Map{
				"error": err.Error(),
			})
			return
		}

		players, err := r.Players(ctx.Request().Context())
		if err != nil {
			ctx.StatusCode(iris.StatusServiceUnavailable)
			ctx.JSON(iris.Map{
				"error": err.Error(),
			})
			return
		}

		html, err := display.RenderList(players)
		if err != nil {
			ctx.StatusCode(iris.StatusInternalServerError)
			return
		}

		ctx.ContentType("text/html; charset=utf-8")
		ctx.WriteString(html)
	}
}

package protocol

import (
	"encoding/json"

	"go.uber.org/zap"
)

// 请求类型
const (
	REQ_JOIN       = "Join"
	REQ_LEAVE      = "Leave"
	REQ_UPDATE     = "Update"
	REQ_START_GAME = "StartGame"
)

type RequestWrapper struct {
	ReqType string          `json:"request_type"`
	Data    json.RawMessage `json:"data"`
}

func WrapRequest(reqType string, data any) RequestWrapper {
	return RequestWrapper{
		ReqType: reqType,
		Data:    mustMarshal(data),
	}
}

func TryUnwrapJoinRequest(wrapper RequestWrapper) *JoinRequest {
	return tryUnwrap[JoinRequest](wrapper, REQ_JOIN)
}

func TryUnwrapLeaveRequest(wrapper RequestWrapper) *LeaveRequest {
	return tryUnwrap[LeaveRequest](wrapper, REQ_LEAVE)
}

func TryUnwrapUpdateRequest(wrapper RequestWrapper) *UpdateRequest {
	return tryUnwrap[UpdateRequest](wrapper, REQ_UPDATE)
}

func TryUnwrapStartGameRequest(wrapper RequestWrapper) *StartGameRequest {
	return tryUnwrap[StartGameRequest](wrapper, REQ_START_GAME)
}

func tryUnwrap[T any](wrapper RequestWrapper, reqType string) *T {
	if wrapper.ReqType != reqType {
		return nil
	}

	var req T

	// 允许 data 为空，例如 Leave
	if len(wrapper.Data) == 0 || string(wrapper.Data) == "null" {
		return &req
	}

	if err := json.Unmarshal(wrapper.Data, &req); err != nil {
		zap.L().Error(
			"Failed to unwrap request",
			zap.String("request_type", reqType),
			zap.Error(err),
			zap.ByteString("data", wrapper.Data),
		)
		return nil
	}

	return &req
}

// 响应类型
const (
	RESP_ERROR = "Error"

	RESP_JOINED         = "Joined"
	RESP_LEFT           = "Left"
	RESP_UPDATE_PLAYERS = "UpdatePlayers"
	RESP_GAME_STARTING  = "GameStarting"
)

type ResponseWrapper struct {
	RespType string `json:"response_type"`
	Data     any    `json:"data"`
	ErrMsg   string `json:"error_message,omitempty"`
}

// 客户端侧解码用，Data 延迟解析
type RawResponseWrapper struct {
	RespType string          `json:"response_type"`
	Data     json.RawMessage `json:"data"`
	ErrMsg   string          `json:"error_message,omitempty"`
}

func WrapResponse(respType string, data any) ResponseWrapper {
	return ResponseWrapper{
		RespType: respType,
		Data:     data,
	}
}

func WrapErrResponse(errMsg string) ResponseWrapper {
	return ResponseWrapper{
		RespType: RESP_ERROR,
		ErrMsg:   errMsg,
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("Failed to marshal: " + err.Error())
	}

	return data
}

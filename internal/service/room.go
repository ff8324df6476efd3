package service

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"podium-lobby/internal/service/dto"
	"podium-lobby/internal/service/room"
)

var (
	ErrRoomNotFound  = errors.New("房间不存在")
	ErrEmptyRoomName = errors.New("房间名称不能为空")
	ErrServiceClosed = errors.New("房间服务已关闭")
)

const (
	cleanupInterval = time.Minute
	// 新建的房间在这段时间内即使没人也不会被清理
	roomGracePeriod = 5 * time.Minute
)

type RoomService struct {
	state *roomServiceState
}

type roomServiceState struct {
	mu sync.RWMutex

	// 从 ID 到房间的映射
	rooms map[string]*room.Room
	// 常驻房间不会被清理
	persistent map[string]struct{}
	maxPlayers int

	cleanUpDone chan struct{}
	closeOnce   sync.Once
	closed      bool
}

func NewRoomService(maxPlayers int) *RoomService {
	state := &roomServiceState{
		rooms:       make(map[string]*room.Room),
		persistent:  make(map[string]struct{}),
		maxPlayers:  maxPlayers,
		cleanUpDone: make(chan struct{}),
	}

	// 启动一个 goroutine 定期清理过期的房间
	go startCleanupLoop(state)

	return &RoomService{
		state: state,
	}
}

func startCleanupLoop(state *roomServiceState) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-state.cleanUpDone:
			return

		case <-ticker.C:
			state.cleanup(time.Now())
		}
	}
}

func (state *roomServiceState) cleanup(now time.Time) {
	state.mu.Lock()

	expired := make([]*room.Room, 0)
	for roomID, r := range state.rooms {
		if isRoomValid(r, now) {
			continue
		}
		if _, ok := state.persistent[roomID]; ok {
			continue
		}

		zap.S().Infof("房间 %s 状态失效，开始清理", roomID)

		delete(state.rooms, roomID)
		expired = append(expired, r)
	}

	state.mu.Unlock()

	for _, r := range expired {
		r.Stop()
		zap.S().Debugf("房间 %s 已关闭", r.ID())
	}
}

func isRoomValid(r *room.Room, now time.Time) bool {
	if r == nil {
		return false
	}

	return r.Size() > 0 || now.Sub(r.CreatedAt()) < roomGracePeriod
}

func (rs *RoomService) Close() {
	rs.state.closeOnce.Do(func() {
		close(rs.state.cleanUpDone)

		rs.state.mu.Lock()
		rs.state.closed = true
		rooms := rs.state.rooms
		rs.state.rooms = make(map[string]*room.Room)
		rs.state.mu.Unlock()

		for _, r := range rooms {
			r.Stop()
		}

		zap.S().Infof("房间服务已关闭，共关闭 %d 个房间", len(rooms))
	})
}

func (rs *RoomService) CreateRoom(req dto.CreateRoomRequest) (dto.CreateRoomResponse, error) {
	if req.RoomName == "" {
		return dto.CreateRoomResponse{}, ErrEmptyRoomName
	}

	rs.state.mu.Lock()
	defer rs.state.mu.Unlock()

	if rs.state.closed {
		return dto.CreateRoomResponse{}, ErrServiceClosed
	}

	roomID := room.ShortID()
	for rs.state.rooms[roomID] != nil {
		roomID = room.ShortID()
	}

	rs.startRoomLocked(roomID, req.RoomName)

	zap.S().Infof("房间 %s(%s) 已创建", roomID, req.RoomName)

	return dto.CreateRoomResponse{
		RoomID:   roomID,
		RoomName: req.RoomName,
	}, nil
}

// EnsureRoom 创建一个常驻房间，已存在时直接返回
func (rs *RoomService) EnsureRoom(roomID string) error {
	if roomID == "" {
		return ErrRoomNotFound
	}

	rs.state.mu.Lock()
	defer rs.state.mu.Unlock()

	if rs.state.closed {
		return ErrServiceClosed
	}

	rs.state.persistent[roomID] = struct{}{}
	if rs.state.rooms[roomID] != nil {
		return nil
	}

	rs.startRoomLocked(roomID, roomID)

	zap.S().Infof("常驻房间 %s 已就绪", roomID)

	return nil
}

func (rs *RoomService) startRoomLocked(roomID, name string) {
	r := room.NewRoom(roomID, name, rs.state.maxPlayers)
	rs.state.rooms[roomID] = r

	// 每个房间一个独立的 goroutine
	go r.Start()
}

// JoinRoom 返回房间，连接处理器通过它的请求通道发送 Join 及后续请求
func (rs *RoomService) JoinRoom(roomID string) (*room.Room, error) {
	rs.state.mu.RLock()
	defer rs.state.mu.RUnlock()

	r := rs.state.rooms[roomID]
	if r == nil {
		return nil, ErrRoomNotFound
	}

	return r, nil
}

func (rs *RoomService) RoomCount() int {
	rs.state.mu.RLock()
	defer rs.state.mu.RUnlock()

	return len(rs.state.rooms)
}

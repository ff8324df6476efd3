// Package roster 维护大厅名单与本地玩家身份。
//
// 离线模式下名单由本地直接修改；配置了传输通道后，服务端推送的快照是名单的权威来源，
// 本地尚未被快照确认的修改会临时覆盖在快照之上。
package roster

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"podium-lobby/internal/protocol"
)

// Transport 是名单管理器向外发送意图的通道
type Transport interface {
	Join(p protocol.Player) error
	Leave() error
	Update(p protocol.Player) error
}

// 离线预览时固定放在本地玩家旁边的机器人
var MockBot = protocol.Player{
	ID:    "999",
	Name:  "Bot1",
	Color: "#FFD166",
}

type ChangeKind int

const (
	ChangeMembership ChangeKind = iota
	ChangeColor
	ChangeHelmet
	ChangeReady
	ChangeSnapshot
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeMembership:
		return "membership"
	case ChangeColor:
		return "color"
	case ChangeHelmet:
		return "helmet"
	case ChangeReady:
		return "ready"
	case ChangeSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Entry 是名单中的一项，Local 标记本客户端拥有的玩家
type Entry struct {
	protocol.Player
	Local bool
}

// Change 描述一次状态变化。颜色变化单独通知，展示层可以原地改色而不用重建。
type Change struct {
	Kind     ChangeKind
	Roster   []Entry
	PlayerID string
	Color    string
}

type Listener func(Change)

type Manager struct {
	mu sync.Mutex

	players []protocol.Player
	localID string

	transport Transport
	listeners []Listener

	// 已发出但尚未在快照中确认的本地状态
	pending *protocol.Player
	// 本地玩家是否已经出现在某次快照中
	acked bool

	newID func() string
}

type Option func(*Manager)

// WithTransport 切换到通道模式
func WithTransport(t Transport) Option {
	return func(m *Manager) {
		m.transport = t
	}
}

// WithIDGenerator 替换本地 ID 的生成方式
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		players: make([]protocol.Player, 0),
		newID:   newLocalID,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// 本地 ID 基于时间生成（UUIDv7），传输通道可能会重新分配
func newLocalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, l)
}

func (m *Manager) Online() bool {
	return m.transport != nil
}

func (m *Manager) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.localID != ""
}

func (m *Manager) LocalID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.localID
}

// Local 返回本地玩家的当前记录
func (m *Manager) Local() (protocol.Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.localIndexLocked()
	if idx < 0 {
		return protocol.Player{}, false
	}

	return m.players[idx], true
}

// Players 返回名单副本，顺序即领奖台上的摆放顺序
func (m *Manager) Players() []protocol.Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]protocol.Player(nil), m.players...)
}

func (m *Manager) Roster() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.rosterLocked()
}

// Join 已加入时不做任何事并返回 false
func (m *Manager) Join(name string) (protocol.Player, bool) {
	m.mu.Lock()

	if m.localID != "" {
		m.mu.Unlock()
		return protocol.Player{}, false
	}

	local := protocol.Player{
		ID:    m.newID(),
		Name:  protocol.SanitizeName(name),
		Color: protocol.DefaultColor,
	}
	m.localID = local.ID

	if m.transport == nil {
		m.players = []protocol.Player{local, MockBot}
	} else {
		// 先乐观地把自己放进名单，等服务端快照确认
		m.players = append(m.withoutLocked(local.ID), local)
		m.pending = &local
		m.acked = false
	}

	change := m.changeLocked(ChangeMembership, local.ID)
	m.mu.Unlock()

	if m.transport != nil {
		m.send("join", func() error { return m.transport.Join(local) })
	}

	zap.L().Info(
		"本地玩家加入大厅",
		zap.String("player_id", local.ID),
		zap.String("player_name", local.Name),
		zap.Bool("online", m.transport != nil),
	)

	m.notify(change)

	return local, true
}

// Leave 未加入时是空操作
func (m *Manager) Leave() {
	m.mu.Lock()

	if m.localID == "" {
		m.mu.Unlock()
		return
	}

	leftID := m.localID
	m.localID = ""
	m.pending = nil
	m.acked = false

	if m.transport == nil {
		m.players = make([]protocol.Player, 0)
	} else {
		// 真正的移除以下一次快照为准
		m.players = m.withoutLocked(leftID)
	}

	change := m.changeLocked(ChangeMembership, leftID)
	m.mu.Unlock()

	if m.transport != nil {
		m.send("leave", m.transport.Leave)
	}

	zap.L().Info("本地玩家离开大厅", zap.String("player_id", leftID))

	m.notify(change)
}

// SetColor 非法颜色会被忽略
func (m *Manager) SetColor(hex string) {
	color, ok := protocol.NormalizeColor(hex)
	if !ok {
		zap.L().Debug("忽略非法颜色", zap.String("color", hex))
		return
	}

	m.mutateLocal(ChangeColor, func(p *protocol.Player) bool {
		if p.Color == color {
			return false
		}
		p.Color = color
		return true
	})
}

func (m *Manager) SetHelmet(on bool) {
	m.mutateLocal(ChangeHelmet, func(p *protocol.Player) bool {
		if p.Helmet == on {
			return false
		}
		p.Helmet = on
		return true
	})
}

func (m *Manager) ToggleReady() {
	m.mutateLocal(ChangeReady, func(p *protocol.Player) bool {
		p.Ready = !p.Ready
		return true
	})
}

func (m *Manager) mutateLocal(kind ChangeKind, mutate func(p *protocol.Player) bool) {
	m.mu.Lock()

	idx := m.localIndexLocked()
	if idx < 0 {
		m.mu.Unlock()
		return
	}

	if !mutate(&m.players[idx]) {
		m.mu.Unlock()
		return
	}

	local := m.players[idx]
	if m.transport != nil {
		m.pending = &local
	}

	change := m.changeLocked(kind, local.ID)
	change.Color = local.Color
	m.mu.Unlock()

	if m.transport != nil {
		m.send("update", func() error { return m.transport.Update(local) })
	}

	m.notify(change)
}

// ApplySnapshot 用服务端推送的完整名单替换本地名单。
// 本地身份按 ID 匹配，不会重新创建；重复 ID 只保留第一个。
func (m *Manager) ApplySnapshot(list []protocol.Player) {
	m.mu.Lock()

	seen := make(map[string]struct{}, len(list))
	players := make([]protocol.Player, 0, len(list))

	for _, p := range list {
		if p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			zap.L().Warn("快照中存在重复的玩家 ID", zap.String("player_id", p.ID))
			continue
		}
		seen[p.ID] = struct{}{}
		players = append(players, p.Sanitize())
	}

	if m.localID != "" {
		idx := indexOf(players, m.localID)

		switch {
		case idx >= 0:
			m.acked = true
			if m.pending != nil {
				if players[idx] == *m.pending {
					m.pending = nil
				} else {
					// 服务端还没处理到最近一次修改，保持乐观值
					players[idx] = *m.pending
				}
			}

		case !m.acked && m.pending != nil:
			// 加入请求还在路上
			players = append(players, *m.pending)
		}
	}

	m.players = players

	change := m.changeLocked(ChangeSnapshot, "")
	m.mu.Unlock()

	m.notify(change)
}

// AssignID 采用传输通道分配的本地 ID，同时表示加入已被服务端接受
func (m *Manager) AssignID(id string) {
	m.mu.Lock()

	if m.localID == "" || id == "" {
		m.mu.Unlock()
		return
	}

	m.acked = true
	if id == m.localID {
		m.mu.Unlock()
		return
	}

	oldID := m.localID
	m.localID = id

	// 快照可能已经带着新 ID 先到了
	if indexOf(m.players, id) >= 0 {
		m.players = m.withoutLocked(oldID)
	} else if idx := indexOf(m.players, oldID); idx >= 0 {
		m.players[idx].ID = id
	}
	if m.pending != nil {
		m.pending.ID = id
	}

	change := m.changeLocked(ChangeMembership, id)
	m.mu.Unlock()

	zap.L().Info(
		"本地玩家 ID 由服务端重新分配",
		zap.String("old_id", oldID),
		zap.String("player_id", id),
	)

	m.notify(change)
}

// Resend 在通道重连后重新发送本地玩家的加入意图，重新等待服务端确认
func (m *Manager) Resend() {
	if m.transport == nil {
		return
	}

	m.mu.Lock()
	idx := m.localIndexLocked()
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	local := m.players[idx]
	m.pending = &local
	m.acked = false
	m.mu.Unlock()

	m.send("rejoin", func() error { return m.transport.Join(local) })
}

// RejectJoin 在服务端拒绝尚未确认的加入时撤销本地身份和乐观加入的条目。
// 加入已被确认时什么都不做并返回 false。
func (m *Manager) RejectJoin(reason string) bool {
	m.mu.Lock()

	if m.transport == nil || m.localID == "" || m.acked {
		m.mu.Unlock()
		return false
	}

	rejectedID := m.localID
	m.localID = ""
	m.pending = nil
	m.players = m.withoutLocked(rejectedID)

	change := m.changeLocked(ChangeMembership, rejectedID)
	m.mu.Unlock()

	zap.L().Warn(
		"服务端拒绝了加入请求",
		zap.String("player_id", rejectedID),
		zap.String("reason", reason),
	)

	m.notify(change)

	return true
}

func (m *Manager) send(intent string, fn func() error) {
	if err := fn(); err != nil {
		zap.L().Warn(
			"发送意图失败",
			zap.String("intent", intent),
			zap.Error(err),
		)
	}
}

func (m *Manager) notify(change Change) {
	m.mu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}

func (m *Manager) changeLocked(kind ChangeKind, playerID string) Change {
	return Change{
		Kind:     kind,
		Roster:   m.rosterLocked(),
		PlayerID: playerID,
	}
}

func (m *Manager) rosterLocked() []Entry {
	entries := make([]Entry, 0, len(m.players))
	for _, p := range m.players {
		entries = append(entries, Entry{
			Player: p,
			Local:  m.localID != "" && p.ID == m.localID,
		})
	}

	return entries
}

func (m *Manager) localIndexLocked() int {
	if m.localID == "" {
		return -1
	}

	return indexOf(m.players, m.localID)
}

func (m *Manager) withoutLocked(id string) []protocol.Player {
	players := make([]protocol.Player, 0, len(m.players))
	for _, p := range m.players {
		if p.ID != id {
			players = append(players, p)
		}
	}

	return players
}

func indexOf(players []protocol.Player, id string) int {
	for i, p := range players {
		if p.ID == id {
			return i
		}
	}

	return -1
}

// Players 从名单项中取出玩家列表
func Players(entries []Entry) []protocol.Player {
	players := make([]protocol.Player, 0, len(entries))
	for _, e := range entries {
		players = append(players, e.Player)
	}

	return players
}

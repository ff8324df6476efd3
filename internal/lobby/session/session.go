// Package session 是大厅客户端的组装点。
//
// 所有界面事件、服务端快照和渲染帧都在同一个事件循环协程里按顺序执行，
// 头像重建在独立协程中进行，由 Presenter 的代号保证只有最新的一次生效。
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"podium-lobby/internal/lobby/avatar"
	"podium-lobby/internal/lobby/roster"
	"podium-lobby/internal/protocol"
	"podium-lobby/internal/scene"
	"podium-lobby/internal/transport"
)

var ErrClosed = errors.New("session closed")

// Channel 是在线模式下的传输通道
type Channel interface {
	roster.Transport
	Start() error
	SetHandlers(h transport.Handlers)
}

// Ticker 推进场景动画
type Ticker interface {
	Tick(dt time.Duration)
}

type AvatarView struct {
	PlayerID string
	Source   avatar.Source
	Position mgl64.Vec3
	ScaleY   float64
	Color    string
	Helmet   bool
	// 正在播放的动画片段名
	Playing []string
}

// View 是某一时刻的只读快照，供界面渲染
type View struct {
	Roster       []roster.Entry
	Joined       bool
	LocalID      string
	Online       bool
	Connected    bool
	StartEnabled bool
	Status       string
	Avatars      []AvatarView
}

type Session struct {
	roster    *roster.Manager
	presenter *avatar.Presenter
	ticker    Ticker
	channel   Channel
	tickRate  int

	inbox  chan func()
	closed chan struct{}

	// 只在事件循环中访问
	ctx       context.Context
	connected bool
	status    string

	reconciles sync.WaitGroup
}

type Option func(*Session)

// WithChannel 切换到在线模式
func WithChannel(ch Channel) Option {
	return func(s *Session) {
		s.channel = ch
	}
}

// WithTicker 由事件循环按 tickRate 推进场景
func WithTicker(t Ticker, tickRate int) Option {
	return func(s *Session) {
		s.ticker = t
		s.tickRate = tickRate
	}
}

func New(presenter *avatar.Presenter, opts ...Option) *Session {
	s := &Session{
		presenter: presenter,
		tickRate:  30,
		inbox:     make(chan func(), 64),
		closed:    make(chan struct{}),
		ctx:       context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.channel != nil {
		s.roster = roster.NewManager(roster.WithTransport(s.channel))
		s.channel.SetHandlers(transport.Handlers{
			OnSnapshot: func(players []protocol.Player) {
				s.post(func() { s.roster.ApplySnapshot(players) })
			},
			OnJoined: func(joiner protocol.Player) {
				s.post(func() { s.roster.AssignID(joiner.ID) })
			},
			OnGameStarting: func(startedBy string) {
				s.post(func() { s.status = "游戏即将开始，发起人: " + startedBy })
			},
			OnError: func(msg string) {
				s.post(func() {
					if s.roster.RejectJoin(msg) {
						s.status = "加入失败: " + msg
					}
				})
			},
			OnConnect: func() {
				s.post(func() {
					s.connected = true
					s.roster.Resend()
				})
			},
			OnDisconnect: func(err error) {
				s.post(func() { s.connected = false })
			},
		})
	} else {
		s.roster = roster.NewManager()
	}

	s.roster.Subscribe(s.onChange)

	return s
}

func (s *Session) Roster() *roster.Manager {
	return s.roster
}

// Run 执行事件循环，直到 ctx 结束；返回前等待进行中的头像重建并释放全部头像
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx

	var tick <-chan time.Time
	if s.ticker != nil && s.tickRate > 0 {
		t := time.NewTicker(time.Second / time.Duration(s.tickRate))
		defer t.Stop()
		tick = t.C
	}

	defer func() {
		close(s.closed)
		s.reconciles.Wait()
		s.presenter.Close()
	}()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			zap.L().Debug("大厅事件循环退出")
			return ctx.Err()

		case fn := <-s.inbox:
			fn()

		case now := <-tick:
			s.ticker.Tick(now.Sub(last))
			last = now
		}
	}
}

func (s *Session) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.closed:
		return false
	}
}

// call 在事件循环中执行 fn 并等待其完成
func (s *Session) call(fn func()) error {
	done := make(chan struct{})
	if !s.post(func() {
		fn()
		close(done)
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

func (s *Session) Join(name string) {
	s.post(func() { s.roster.Join(name) })
}

func (s *Session) Leave() {
	s.post(s.roster.Leave)
}

func (s *Session) SetColor(hex string) {
	s.post(func() { s.roster.SetColor(hex) })
}

func (s *Session) SetHelmet(on bool) {
	s.post(func() { s.roster.SetHelmet(on) })
}

func (s *Session) ToggleHelmet() {
	s.post(func() {
		if local, ok := s.roster.Local(); ok {
			s.roster.SetHelmet(!local.Helmet)
		}
	})
}

func (s *Session) ToggleReady() {
	s.post(s.roster.ToggleReady)
}

// Emote 让本地玩家的头像播放表情
func (s *Session) Emote(name string) {
	s.post(func() {
		id := s.roster.LocalID()
		if id == "" {
			return
		}
		s.presenter.PlayEmote(id, name)
	})
}

// Start 只有加入后才可用；在线时通知服务端
func (s *Session) Start() {
	s.post(func() {
		local, ok := s.roster.Local()
		if !ok {
			return
		}

		if s.channel == nil {
			s.status = "游戏即将开始，发起人: " + local.Name
			return
		}

		if err := s.channel.Start(); err != nil {
			zap.L().Warn("发送开始游戏请求失败", zap.Error(err))
			s.status = "开始游戏失败: " + err.Error()
		}
	})
}

// Settle 等待已投递的事件处理完毕，并等待由此触发的头像重建结束
func (s *Session) Settle() error {
	if err := s.call(func() {}); err != nil {
		return err
	}
	s.reconciles.Wait()

	return nil
}

func (s *Session) View() (View, error) {
	var v View
	err := s.call(func() { v = s.viewLocked() })

	return v, err
}

func (s *Session) viewLocked() View {
	entries := s.roster.Roster()
	records := s.presenter.Records()

	v := View{
		Roster:    entries,
		LocalID:   s.roster.LocalID(),
		Online:    s.channel != nil,
		Connected: s.channel == nil || s.connected,
		Status:    s.status,
	}
	v.Joined = v.LocalID != ""
	v.StartEnabled = v.Joined

	for _, e := range entries {
		rec, ok := records[e.ID]
		if !ok {
			continue
		}

		av := AvatarView{
			PlayerID: e.ID,
			Source:   rec.Source,
			Position: rec.Root.Position(),
			ScaleY:   rec.Root.Scaling().Y(),
			Helmet:   rec.Helmet,
		}
		if len(rec.Surfaces) > 0 {
			if m := rec.Surfaces[0].Material(); m != nil {
				av.Color = m.Color().Hex()
			}
		}
		for _, clip := range rec.Clips {
			if clip.Playing() {
				av.Playing = append(av.Playing, clip.Name())
			}
		}

		v.Avatars = append(v.Avatars, av)
	}

	return v
}

// 名单监听器，在事件循环中被同步调用
func (s *Session) onChange(change roster.Change) {
	switch change.Kind {
	case roster.ChangeColor:
		s.presenter.UpdateColor(change.PlayerID, change.Color)

	case roster.ChangeReady:
		// 准备状态只影响列表显示

	default:
		s.reconcile(roster.Players(change.Roster))
	}
}

func (s *Session) reconcile(players []protocol.Player) {
	ctx := s.ctx
	// 代号在事件循环中按顺序领取
	gen := s.presenter.Begin()

	s.reconciles.Add(1)
	go func() {
		defer s.reconciles.Done()

		err := s.presenter.Rebuild(ctx, gen, players)
		switch {
		case err == nil, errors.Is(err, avatar.ErrSuperseded):
		case errors.Is(err, context.Canceled):
			zap.L().Debug("头像重建被取消")
		default:
			zap.L().Warn("头像重建失败", zap.Error(err))
		}
	}()
}

// 确保 Headless 满足 Ticker
var _ Ticker = (*scene.Headless)(nil)

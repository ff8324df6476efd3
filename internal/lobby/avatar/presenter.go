// Package avatar 把名单映射成场景中的头像，并保持两者一致。
package avatar

import (
	"context"
	"errors"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"podium-lobby/internal/protocol"
	"podium-lobby/internal/scene"
)

var ErrSuperseded = errors.New("reconcile superseded by a newer one")

type Source string

const (
	SourceRich     Source = "rich"
	SourceFallback Source = "fallback"
)

// Prober 检查富资源是否可达，失败时返回 false
type Prober interface {
	Probe(ctx context.Context) bool
}

// Importer 导入富资源
type Importer interface {
	Import(ctx context.Context, eng scene.Engine, url string, opts scene.ImportOptions) (*scene.Imported, error)
}

// Record 是一个玩家与其头像的绑定，根节点只归 Presenter 所有
type Record struct {
	PlayerID string
	Source   Source
	Helmet   bool

	Root *scene.Node
	// 根节点的静止纵向缩放，点头动画结束后回到这个值
	RestScaleY float64
	// 承载皮肤颜色的表面，头盔不在其中
	Surfaces []*scene.Node
	Clips    []*scene.AnimationGroup
	Skeleton *scene.Skeleton
}

func (r *Record) dispose() {
	for _, clip := range r.Clips {
		clip.Dispose()
	}
	r.Root.Dispose()
}

type Options struct {
	AssetURL string
	Radius   float64
	Scale    float64
}

// Presenter 独占头像集合。
//
// Reconcile 每次都整体重建：先在舞台外构建新头像，提交时再释放旧头像并挂载新头像。
// 每次调用会领取一个递增的代号，提交时代号已过期的调用丢弃自己构建的结果，
// 因此较早的调用无论何时完成都不会覆盖较新的结果。
type Presenter struct {
	eng      scene.Engine
	prober   Prober
	importer Importer
	opts     Options

	mu      sync.Mutex
	gen     uint64
	records map[string]*Record
	// 当前代号领取之后才到达的颜色，提交时覆盖名单里的旧颜色
	colors map[string]scene.Color3
}

// prober 或 importer 为 nil 时始终使用备用头像
func NewPresenter(eng scene.Engine, prober Prober, importer Importer, opts Options) *Presenter {
	if opts.Radius <= 0 {
		opts.Radius = DefaultRadius
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}

	return &Presenter{
		eng:      eng,
		prober:   prober,
		importer: importer,
		opts:     opts,
		records:  make(map[string]*Record),
		colors:   make(map[string]scene.Color3),
	}
}

func (p *Presenter) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.gen
}

// Record 返回玩家当前的头像绑定
func (p *Presenter) Record(playerID string) (*Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[playerID]
	return rec, ok
}

// Records 返回当前全部绑定的副本
func (p *Presenter) Records() map[string]*Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]*Record, len(p.records))
	for id, rec := range p.records {
		out[id] = rec
	}

	return out
}

// Reconcile 让头像集合与名单一致。单个玩家的富资源导入失败只会让该玩家退回备用头像。
// 被更新的调用取代时返回 ErrSuperseded，此时场景保持较新调用的结果。
func (p *Presenter) Reconcile(ctx context.Context, players []protocol.Player) error {
	return p.Rebuild(ctx, p.Begin(), players)
}

// Begin 领取下一个代号，之前领取的代号随即过期。
// 需要异步重建的调用方应当按事件顺序同步调用它，再把代号交给 Rebuild。
func (p *Presenter) Begin() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.colors = make(map[string]scene.Color3)
	return p.gen
}

// Rebuild 以 Begin 领取的代号重建头像集合
func (p *Presenter) Rebuild(ctx context.Context, gen uint64, players []protocol.Player) error {
	useRich := p.prober != nil && p.importer != nil && p.prober.Probe(ctx)

	built := make(map[string]*Record, len(players))
	discard := func() {
		for _, rec := range built {
			rec.dispose()
		}
	}

	players = uniquePlayers(players)

	for i, player := range players {
		if err := ctx.Err(); err != nil {
			discard()
			return err
		}
		if p.stale(gen) {
			discard()
			return ErrSuperseded
		}

		pos := PodiumPosition(i, len(players), p.opts.Radius)
		built[player.ID] = p.spawn(ctx, player, pos, useRich)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen {
		discard()
		zap.L().Debug("头像重建已过期，丢弃结果", zap.Uint64("generation", gen))
		return ErrSuperseded
	}

	for _, rec := range p.records {
		rec.dispose()
	}

	stage := p.eng.Stage()
	for id, rec := range built {
		if color, ok := p.colors[id]; ok {
			paint(rec.Surfaces, color)
		}
		rec.Root.SetParent(stage)
		if idle := IdleClip(rec.Clips); idle != nil {
			idle.Start(true)
		}
	}
	p.records = built

	zap.L().Debug(
		"头像重建完成",
		zap.Uint64("generation", gen),
		zap.Int("players", len(built)),
		zap.Bool("rich", useRich),
	)

	return nil
}

// 重复 ID 只保留第一个，领奖台的位置按去重后的人数计算
func uniquePlayers(players []protocol.Player) []protocol.Player {
	seen := make(map[string]struct{}, len(players))
	out := make([]protocol.Player, 0, len(players))

	for _, player := range players {
		if _, dup := seen[player.ID]; dup {
			zap.L().Warn("名单中存在重复的玩家 ID，忽略", zap.String("player_id", player.ID))
			continue
		}
		seen[player.ID] = struct{}{}
		out = append(out, player)
	}

	return out
}

func (p *Presenter) stale(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return gen != p.gen
}

func (p *Presenter) spawn(ctx context.Context, player protocol.Player, pos mgl64.Vec3, useRich bool) *Record {
	if useRich {
		rec, err := p.spawnRich(ctx, player, pos)
		if err == nil {
			return rec
		}

		zap.L().Warn(
			"富资源加载失败，退回备用头像",
			zap.String("player_id", player.ID),
			zap.String("player_name", player.Name),
			zap.Error(err),
		)
	}

	return p.spawnFallback(player, pos)
}

func (p *Presenter) spawnRich(ctx context.Context, player protocol.Player, pos mgl64.Vec3) (*Record, error) {
	res, err := p.importer.Import(ctx, p.eng, p.opts.AssetURL, scene.ImportOptions{
		Scale:    p.opts.Scale,
		Position: pos,
	})
	if err != nil {
		return nil, err
	}

	res.Root.SetPosition(pos)

	rec := &Record{
		PlayerID:   player.ID,
		Source:     SourceRich,
		Root:       res.Root,
		RestScaleY: res.Root.Scaling().Y(),
		Surfaces:   res.Surfaces,
		Clips:      res.Clips,
		Skeleton:   res.Skeleton,
	}

	paint(rec.Surfaces, scene.ColorFromHex(player.Color))
	p.applyHelmet(rec, player.Helmet)

	return rec, nil
}

// 胶囊身体 + 可选的球形头盔
func (p *Presenter) spawnFallback(player protocol.Player, pos mgl64.Vec3) *Record {
	root := p.eng.NewTransformNode("avatar")
	root.SetPosition(pos)

	body := p.eng.NewCapsule("body", 1.2, 0.35)
	body.SetPosition(mgl64.Vec3{0, 1, 0})
	body.SetMaterial(p.eng.NewStandardMaterial("bodyMat", scene.ColorFromHex(player.Color)))
	body.SetParent(root)

	rec := &Record{
		PlayerID:   player.ID,
		Source:     SourceFallback,
		Root:       root,
		RestScaleY: 1,
		Surfaces:   []*scene.Node{body},
	}

	p.applyHelmet(rec, player.Helmet)

	return rec
}

func (p *Presenter) applyHelmet(rec *Record, on bool) {
	rec.Helmet = on
	if !on {
		return
	}

	helmet := p.eng.NewSphere("helmet", 0.7)
	helmet.SetPosition(mgl64.Vec3{0, 1.45, 0})
	helmet.SetMaterial(p.eng.NewStandardMaterial("helmetMat", scene.NewColor3(0.12, 0.12, 0.12)))
	helmet.SetParent(rec.Root)
}

// UpdateColor 原地给已生成的头像换色，不重建、不影响动画。
// 颜色同时被记下，进行中的重建提交时也会用上它。
func (p *Presenter) UpdateColor(playerID, hex string) bool {
	color, err := scene.ParseHex(hex)
	if err != nil {
		return false
	}

	p.mu.Lock()
	p.colors[playerID] = color
	rec, ok := p.records[playerID]
	p.mu.Unlock()

	if !ok {
		return false
	}

	paint(rec.Surfaces, color)

	return true
}

func paint(surfaces []*scene.Node, color scene.Color3) {
	for _, s := range surfaces {
		if m := s.Material(); m != nil {
			m.SetColor(color)
		}
	}
}

// PlayEmote 命中动画片段时单次播放，结束后回到待机；
// 没有片段或没有命中时做一次程序化的纵向缩放作为通用反馈。
func (p *Presenter) PlayEmote(playerID, name string) bool {
	p.mu.Lock()
	rec, ok := p.records[playerID]
	p.mu.Unlock()

	if !ok {
		return false
	}

	if target := MatchClip(rec.Clips, name); target != nil {
		for _, clip := range rec.Clips {
			clip.Stop()
		}

		clips := rec.Clips
		target.OnEndOnce(func() {
			if idle := IdleClip(clips); idle != nil {
				idle.Start(true)
			}
		})
		target.Start(false)

		zap.L().Debug(
			"播放表情动画",
			zap.String("player_id", playerID),
			zap.String("emote", name),
			zap.String("clip", target.Name()),
		)

		return true
	}

	root, rest := rec.Root, rec.RestScaleY
	p.eng.Animate(root, pulseTween(rest), func() {
		s := root.Scaling()
		s[1] = rest
		root.SetScaling(s)
	})

	return true
}

// Close 释放全部头像，并让进行中的 Reconcile 失效
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	for _, rec := range p.records {
		rec.dispose()
	}
	p.records = make(map[string]*Record)
}

package avatar

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium-lobby/internal/protocol"
	"podium-lobby/internal/scene"
)

type staticProber bool

func (p staticProber) Probe(context.Context) bool { return bool(p) }

// fakeImporter 构建一个带 Idle/Wave 片段的模型，failOn 中列出的调用序号会失败
type fakeImporter struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (f *fakeImporter) Import(_ context.Context, eng scene.Engine, _ string, opts scene.ImportOptions) (*scene.Imported, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failOn[f.calls]
	f.mu.Unlock()

	if fail {
		return nil, errors.New("corrupt asset")
	}

	root := eng.NewTransformNode("glbRoot")
	root.SetPosition(opts.Position)
	if opts.Scale > 0 {
		root.SetScaling(mgl64.Vec3{opts.Scale, opts.Scale, opts.Scale})
	}

	body := eng.NewMesh("Body_0")
	body.SetMaterial(eng.NewPBRMaterial("BodyMat", scene.NewColor3(1, 1, 1)))
	body.SetParent(root)

	return &scene.Imported{
		Root:     root,
		Surfaces: []*scene.Node{body},
		Skeleton: &scene.Skeleton{Name: "Armature", Joints: 20},
		Clips: []*scene.AnimationGroup{
			eng.NewAnimationGroup("Armature|Idle", time.Second),
			eng.NewAnimationGroup("Armature|Wave", time.Second),
		},
	}, nil
}

var roster3 = []protocol.Player{
	{ID: "1", Name: "Ann", Color: "#3A86FF"},
	{ID: "2", Name: "Bob", Color: "#FF006E"},
	{ID: "3", Name: "Cid", Color: "#06D6A0"},
}

func keys(records map[string]*Record) []string {
	out := make([]string, 0, len(records))
	for id := range records {
		out = append(out, id)
	}
	return out
}

func TestPodiumAngles(t *testing.T) {
	assert.Equal(t, 0.0, PodiumAngle(0, 1))
	assert.Equal(t, 0.0, PodiumAngle(0, 0))

	for i := 0; i < 5; i++ {
		assert.InDelta(t, 2*math.Pi*float64(i)/5, PodiumAngle(i, 5), 1e-12)
	}

	pos := PodiumPosition(1, 4, DefaultRadius)
	assert.InDelta(t, 0, pos.X(), 1e-9)
	assert.InDelta(t, 0, pos.Y(), 1e-9)
	assert.InDelta(t, DefaultRadius, pos.Z(), 1e-9)
}

func TestReconcileKeysMatchRoster(t *testing.T) {
	eng := scene.NewHeadless()
	p := NewPresenter(eng, nil, nil, Options{})

	require.NoError(t, p.Reconcile(context.Background(), roster3))

	records := p.Records()
	assert.ElementsMatch(t, []string{"1", "2", "3"}, keys(records))

	for i, pl := range roster3 {
		rec := records[pl.ID]
		assert.Equal(t, SourceFallback, rec.Source)
		assert.True(t, rec.Root.Visible())

		want := PodiumPosition(i, len(roster3), DefaultRadius)
		assert.True(t, rec.Root.Position().ApproxEqual(want))

		require.Len(t, rec.Surfaces, 1)
		assert.Equal(t, scene.KindCapsule, rec.Surfaces[0].Kind())
		assert.Equal(t, pl.Color, rec.Surfaces[0].Material().Color().Hex())
	}

	// 成员变化后整体重建
	old := records["1"].Root
	require.NoError(t, p.Reconcile(context.Background(), roster3[1:]))
	assert.ElementsMatch(t, []string{"2", "3"}, keys(p.Records()))
	assert.True(t, old.Disposed())

	// 舞台上只有地面、领奖台和两个头像
	assert.Len(t, eng.Stage().Children(), 4)
}

func TestReconcileEmptyRoster(t *testing.T) {
	eng := scene.NewHeadless()
	p := NewPresenter(eng, nil, nil, Options{})

	require.NoError(t, p.Reconcile(context.Background(), roster3))
	require.NoError(t, p.Reconcile(context.Background(), nil))

	assert.Empty(t, p.Records())
	assert.Len(t, eng.Stage().Children(), 2)
}

func TestOneFailedImportFallsBackForThatPlayerOnly(t *testing.T) {
	eng := scene.NewHeadless()
	im := &fakeImporter{failOn: map[int]bool{2: true}}
	p := NewPresenter(eng, staticProber(true), im, Options{AssetURL: "/assets/models/character.glb"})

	require.NoError(t, p.Reconcile(context.Background(), roster3))

	records := p.Records()
	require.Len(t, records, 3)
	assert.Equal(t, SourceRich, records["1"].Source)
	assert.Equal(t, SourceFallback, records["2"].Source)
	assert.Equal(t, SourceRich, records["3"].Source)

	// 富资源的颜色写在 PBR 材质上，待机动画循环播放
	rich := records["1"]
	assert.True(t, rich.Surfaces[0].Material().IsPBR())
	assert.Equal(t, "#3A86FF", rich.Surfaces[0].Material().Color().Hex())
	assert.True(t, rich.Clips[0].Looping())
	assert.False(t, rich.Clips[1].Playing())
	require.NotNil(t, rich.Skeleton)

	assert.Empty(t, records["2"].Clips)
}

func TestUnavailableAssetSkipsImport(t *testing.T) {
	im := &fakeImporter{}
	p := NewPresenter(scene.NewHeadless(), staticProber(false), im, Options{})

	require.NoError(t, p.Reconcile(context.Background(), roster3))
	assert.Equal(t, 0, im.calls)
	for _, rec := range p.Records() {
		assert.Equal(t, SourceFallback, rec.Source)
	}
}

func TestUpdateColorTouchesOnlyTarget(t *testing.T) {
	p := NewPresenter(scene.NewHeadless(), staticProber(true), &fakeImporter{failOn: map[int]bool{3: true}}, Options{})
	require.NoError(t, p.Reconcile(context.Background(), roster3))

	gen := p.Generation()
	before := p.Records()

	require.True(t, p.UpdateColor("2", "#FFD166"))

	after := p.Records()
	assert.Equal(t, "#FFD166", after["2"].Surfaces[0].Material().Color().Hex())
	assert.Equal(t, "#3A86FF", after["1"].Surfaces[0].Material().Color().Hex())
	assert.Equal(t, "#06D6A0", after["3"].Surfaces[0].Material().Color().Hex())

	// 原地改色，不重建
	assert.Equal(t, gen, p.Generation())
	assert.Same(t, before["2"].Root, after["2"].Root)
	assert.True(t, after["2"].Clips[0].Looping())

	assert.False(t, p.UpdateColor("2", "nope"))
	assert.False(t, p.UpdateColor("404", "#FFD166"))
}

func TestHelmetIsNotColorBearing(t *testing.T) {
	eng := scene.NewHeadless()
	p := NewPresenter(eng, nil, nil, Options{})

	players := []protocol.Player{{ID: "1", Name: "Ann", Color: "#3A86FF", Helmet: true}}
	require.NoError(t, p.Reconcile(context.Background(), players))

	rec, ok := p.Record("1")
	require.True(t, ok)
	assert.True(t, rec.Helmet)

	var helmet *scene.Node
	for _, child := range rec.Root.Children() {
		if child.Kind() == scene.KindSphere {
			helmet = child
		}
	}
	require.NotNil(t, helmet)
	assert.InDelta(t, 0.7, helmet.Geometry().Diameter, 1e-9)
	assert.InDelta(t, 1.45, helmet.Position().Y(), 1e-9)

	p.UpdateColor("1", "#FF006E")
	assert.NotEqual(t, "#FF006E", helmet.Material().Color().Hex())
}

func TestPulseEndsAtUnitScale(t *testing.T) {
	eng := scene.NewHeadless()
	p := NewPresenter(eng, nil, nil, Options{})
	require.NoError(t, p.Reconcile(context.Background(), roster3[:1]))

	require.True(t, p.PlayEmote("1", "wave"))

	rec, _ := p.Record("1")
	require.True(t, eng.Animating(rec.Root, scene.PropScaleY))

	peak := 0.0
	for i := 0; i < 20; i++ {
		eng.Tick(time.Second / 30)
		peak = math.Max(peak, rec.Root.Scaling().Y())
	}

	assert.InDelta(t, pulseFactor, peak, 0.02)
	assert.False(t, eng.Animating(rec.Root, scene.PropScaleY))
	assert.Equal(t, 1.0, rec.Root.Scaling().Y())

	assert.False(t, p.PlayEmote("404", "wave"))
}

func TestEmotePlaysClipThenResumesIdle(t *testing.T) {
	eng := scene.NewHeadless()
	p := NewPresenter(eng, staticProber(true), &fakeImporter{}, Options{})
	require.NoError(t, p.Reconcile(context.Background(), roster3[:1]))

	rec, _ := p.Record("1")
	idle, wave := rec.Clips[0], rec.Clips[1]

	require.True(t, p.PlayEmote("1", "WAVE"))
	assert.False(t, idle.Playing())
	assert.True(t, wave.Playing())
	assert.False(t, wave.Looping())

	eng.Tick(1100 * time.Millisecond)

	assert.False(t, wave.Playing())
	assert.True(t, idle.Looping())
	assert.Equal(t, 2, idle.Plays())
}

func TestEmoteWithoutMatchPulses(t *testing.T) {
	eng := scene.NewHeadless()
	p := NewPresenter(eng, staticProber(true), &fakeImporter{}, Options{})
	require.NoError(t, p.Reconcile(context.Background(), roster3[:1]))

	rec, _ := p.Record("1")

	require.True(t, p.PlayEmote("1", "dance"))
	assert.True(t, eng.Animating(rec.Root, scene.PropScaleY))
	assert.True(t, rec.Clips[0].Looping())
}

func TestMatchClip(t *testing.T) {
	eng := scene.NewHeadless()
	clips := []*scene.AnimationGroup{
		eng.NewAnimationGroup("Armature|Run", time.Second),
		eng.NewAnimationGroup("Armature|Wave", time.Second),
	}

	assert.Same(t, clips[1], MatchClip(clips, "wave"))
	assert.Nil(t, MatchClip(clips, "dance"))
	assert.Nil(t, MatchClip(clips, " "))

	// 没有 idle 时用第一个片段待机
	assert.Same(t, clips[0], IdleClip(clips))
	assert.Nil(t, IdleClip(nil))
}

// gatedProber 的第一次探测会阻塞到 release 被关闭
type gatedProber struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedProber) Probe(ctx context.Context) bool {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()

	if first {
		close(g.entered)
		<-g.release
	}

	return false
}

func TestStaleReconcileNeverClobbersNewer(t *testing.T) {
	eng := scene.NewHeadless()
	prober := &gatedProber{entered: make(chan struct{}), release: make(chan struct{})}
	p := NewPresenter(eng, prober, &fakeImporter{}, Options{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Reconcile(context.Background(), roster3)
	}()

	<-prober.entered

	newer := []protocol.Player{{ID: "9", Name: "Zed", Color: "#FF7F50"}}
	require.NoError(t, p.Reconcile(context.Background(), newer))

	close(prober.release)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	assert.Equal(t, []string{"9"}, keys(p.Records()))
	rec, _ := p.Record("9")
	assert.True(t, rec.Root.Visible())
	assert.False(t, rec.Root.Disposed())

	// 过期的调用没有在舞台上留下任何东西
	assert.Len(t, eng.Stage().Children(), 3)
}

func TestDuplicateIDsSpawnOnce(t *testing.T) {
	p := NewPresenter(scene.NewHeadless(), nil, nil, Options{})

	players := []protocol.Player{roster3[0], roster3[0], roster3[1]}
	require.NoError(t, p.Reconcile(context.Background(), players))
	assert.Len(t, p.Records(), 2)

	// 重复项不占领奖台的位置
	bob, _ := p.Record("2")
	assert.InDelta(t, -DefaultRadius, bob.Root.Position().X(), 1e-9)
	assert.InDelta(t, 0, bob.Root.Position().Z(), 1e-9)
}

func TestPulseRestoresImportedScale(t *testing.T) {
	eng := scene.NewHeadless()
	p := NewPresenter(eng, staticProber(true), &fakeImporter{}, Options{Scale: 2})
	require.NoError(t, p.Reconcile(context.Background(), roster3[:1]))

	rec, _ := p.Record("1")
	require.Equal(t, SourceRich, rec.Source)
	assert.Equal(t, 2.0, rec.RestScaleY)

	require.True(t, p.PlayEmote("1", "dance"))

	peak := 0.0
	for i := 0; i < 20; i++ {
		eng.Tick(time.Second / 30)
		peak = math.Max(peak, rec.Root.Scaling().Y())
	}

	assert.InDelta(t, 2*pulseFactor, peak, 0.04)
	assert.Equal(t, 2.0, rec.Root.Scaling().Y())
	assert.Equal(t, 2.0, rec.Root.Scaling().X())
}

func TestColorChangedDuringRebuildIsKept(t *testing.T) {
	eng := scene.NewHeadless()
	prober := &gatedProber{entered: make(chan struct{}), release: make(chan struct{})}
	p := NewPresenter(eng, prober, &fakeImporter{}, Options{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Reconcile(context.Background(), roster3)
	}()

	<-prober.entered
	assert.False(t, p.UpdateColor("1", "#8E44AD"))

	close(prober.release)
	require.NoError(t, <-errCh)

	ann, _ := p.Record("1")
	assert.Equal(t, "#8E44AD", ann.Surfaces[0].Material().Color().Hex())
	bob, _ := p.Record("2")
	assert.Equal(t, "#FF006E", bob.Surfaces[0].Material().Color().Hex())

	// 下一次重建以新名单的颜色为准
	require.NoError(t, p.Reconcile(context.Background(), roster3))
	ann, _ = p.Record("1")
	assert.Equal(t, "#3A86FF", ann.Surfaces[0].Material().Color().Hex())
}

func TestClose(t *testing.T) {
	eng := scene.NewHeadless()
	p := NewPresenter(eng, nil, nil, Options{})
	require.NoError(t, p.Reconcile(context.Background(), roster3))

	rec, _ := p.Record("1")
	p.Close()

	assert.Empty(t, p.Records())
	assert.True(t, rec.Root.Disposed())
	assert.Len(t, eng.Stage().Children(), 2)
}

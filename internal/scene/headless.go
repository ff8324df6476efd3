package scene

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

type tweenKey struct {
	node     *Node
	property Property
}

type activeTween struct {
	tween   Tween
	elapsed time.Duration
	onEnd   func()
}

// Headless 是不依赖 GPU 的场景实现：维护节点树并按 Tick 推进动画。
// 舞台上预置了地面和圆形领奖台。
type Headless struct {
	mu sync.Mutex

	stage  *Node
	groups map[*AnimationGroup]struct{}
	tweens map[tweenKey]*activeTween
	frames uint64
}

var _ Engine = (*Headless)(nil)

func NewHeadless() *Headless {
	h := &Headless{
		groups: make(map[*AnimationGroup]struct{}),
		tweens: make(map[tweenKey]*activeTween),
	}

	h.stage = h.newNode("scene", KindTransform, Geometry{})

	ground := h.newNode("ground", KindGround, Geometry{Width: 20, Depth: 20})
	ground.material = h.NewStandardMaterial("groundMat", NewColor3(0.08, 0.12, 0.09))
	ground.SetParent(h.stage)

	podium := h.newNode("podium", KindCylinder, Geometry{Diameter: 6, Height: 0.5})
	podium.position = mgl64.Vec3{0, 0.25, 0}
	podium.material = h.NewStandardMaterial("podiumMat", NewColor3(0.12, 0.14, 0.18))
	podium.SetParent(h.stage)

	return h
}

func (h *Headless) newNode(name string, kind Kind, geo Geometry) *Node {
	return &Node{
		sc:       h,
		name:     name,
		kind:     kind,
		geometry: geo,
		scaling:  mgl64.Vec3{1, 1, 1},
	}
}

func (h *Headless) Stage() *Node {
	return h.stage
}

// 新建的节点都不在舞台上，需要调用方显式挂载
func (h *Headless) NewTransformNode(name string) *Node {
	return h.newNode(name, KindTransform, Geometry{})
}

func (h *Headless) NewCapsule(name string, height, radius float64) *Node {
	return h.newNode(name, KindCapsule, Geometry{Height: height, Radius: radius})
}

func (h *Headless) NewSphere(name string, diameter float64) *Node {
	return h.newNode(name, KindSphere, Geometry{Diameter: diameter})
}

func (h *Headless) NewMesh(name string) *Node {
	return h.newNode(name, KindMesh, Geometry{})
}

func (h *Headless) NewStandardMaterial(name string, diffuse Color3) *Material {
	return &Material{sc: h, name: name, color: diffuse}
}

func (h *Headless) NewPBRMaterial(name string, albedo Color3) *Material {
	return &Material{sc: h, name: name, pbr: true, color: albedo}
}

func (h *Headless) NewAnimationGroup(name string, duration time.Duration) *AnimationGroup {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := &AnimationGroup{sc: h, name: name, duration: duration}
	h.groups[group] = struct{}{}

	return group
}

// Animate 同一节点同一属性上的新补间会顶替旧的
func (h *Headless) Animate(target *Node, tw Tween, onEnd func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if target == nil || target.disposed {
		return
	}

	key := tweenKey{node: target, property: tw.Property}
	h.tweens[key] = &activeTween{tween: tw, onEnd: onEnd}
	setProperty(target, tw.Property, tw.From)
}

// Animating 报告节点属性上是否有进行中的补间
func (h *Headless) Animating(target *Node, prop Property) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.tweens[tweenKey{node: target, property: prop}]
	return ok
}

// Tick 推进一帧。结束回调在释放锁之后执行，回调里可以继续操作场景。
func (h *Headless) Tick(dt time.Duration) {
	h.mu.Lock()

	h.frames++

	var callbacks []func()

	for group := range h.groups {
		callbacks = append(callbacks, group.advanceLocked(dt)...)
	}

	for key, at := range h.tweens {
		at.elapsed += dt
		total := at.tween.Duration()

		if at.elapsed >= total {
			setProperty(key.node, key.property, at.tween.End())
			delete(h.tweens, key)
			if at.onEnd != nil {
				callbacks = append(callbacks, at.onEnd)
			}
			continue
		}

		progress := float64(at.elapsed) / float64(total)
		setProperty(key.node, key.property, at.tween.At(progress))
	}

	h.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func (h *Headless) Frames() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.frames
}

func setProperty(n *Node, prop Property, v float64) {
	switch prop {
	case PropScaleY:
		n.scaling[1] = v
	case PropPositionY:
		n.position[1] = v
	}
}

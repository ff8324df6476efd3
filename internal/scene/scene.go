// Package scene 提供大厅预览用的场景宿主：
// 节点树、材质、动画组，以及一个由 Tick 驱动的无头实现。
package scene

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Engine 是头像展示层依赖的渲染引擎能力
type Engine interface {
	// Stage 返回可见的场景根节点，挂在它下面的节点才会被渲染
	Stage() *Node

	NewTransformNode(name string) *Node
	NewCapsule(name string, height, radius float64) *Node
	NewSphere(name string, diameter float64) *Node
	NewMesh(name string) *Node

	NewStandardMaterial(name string, diffuse Color3) *Material
	NewPBRMaterial(name string, albedo Color3) *Material

	NewAnimationGroup(name string, duration time.Duration) *AnimationGroup

	// Animate 对节点属性做一次性补间，结束后调用 onEnd（可为 nil）
	Animate(target *Node, tw Tween, onEnd func())
}

type Kind string

const (
	KindTransform Kind = "transform"
	KindCapsule   Kind = "capsule"
	KindSphere    Kind = "sphere"
	KindCylinder  Kind = "cylinder"
	KindGround    Kind = "ground"
	KindMesh      Kind = "mesh"
)

// Geometry 记录图元的尺寸参数，只用于展示和测试
type Geometry struct {
	Height   float64
	Radius   float64
	Diameter float64
	Width    float64
	Depth    float64
}

// Skeleton 是导入模型的骨骼绑定
type Skeleton struct {
	Name   string
	Joints int
}

// ImportOptions 是导入富资源时的摆放参数
type ImportOptions struct {
	Scale    float64
	Position mgl64.Vec3
}

// Imported 是一次富资源导入的结果
type Imported struct {
	Root     *Node
	Surfaces []*Node
	Skeleton *Skeleton
	Clips    []*AnimationGroup
}

// Dispose 释放导入产生的全部资源
func (im *Imported) Dispose() {
	if im == nil {
		return
	}
	for _, clip := range im.Clips {
		clip.Dispose()
	}
	if im.Root != nil {
		im.Root.Dispose()
	}
}

type Property int

const (
	PropScaleY Property = iota
	PropPositionY
)

// Tween 描述一次补间：在 Frames/FPS 秒内从 From 走到 To。
// Yoyo 为 true 时走到 To 后再回到 From。
type Tween struct {
	Property Property
	From     float64
	To       float64
	Frames   int
	FPS      int
	Yoyo     bool
}

func (tw Tween) Duration() time.Duration {
	if tw.FPS <= 0 || tw.Frames <= 0 {
		return 0
	}

	return time.Duration(tw.Frames) * time.Second / time.Duration(tw.FPS)
}

// At 返回进度 t（0~1）处的取值
func (tw Tween) At(t float64) float64 {
	t = mgl64.Clamp(t, 0, 1)
	if tw.Yoyo {
		t = 1 - mgl64.Abs(2*t-1)
	}

	return tw.From + (tw.To-tw.From)*t
}

// End 返回补间结束时的取值
func (tw Tween) End() float64 {
	if tw.Yoyo {
		return tw.From
	}

	return tw.To
}

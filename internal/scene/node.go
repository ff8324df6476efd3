package scene

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Node 是场景中的变换节点，图元和导入的网格也是节点。
// 所有方法都通过所属场景的锁串行化，可以在渲染循环之外安全调用。
type Node struct {
	sc *Headless

	name     string
	kind     Kind
	geometry Geometry

	position mgl64.Vec3
	scaling  mgl64.Vec3
	material *Material

	parent   *Node
	children []*Node
	disposed bool
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Kind() Kind {
	return n.kind
}

func (n *Node) Geometry() Geometry {
	return n.geometry
}

func (n *Node) Position() mgl64.Vec3 {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	return n.position
}

func (n *Node) SetPosition(pos mgl64.Vec3) {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	n.position = pos
}

func (n *Node) Scaling() mgl64.Vec3 {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	return n.scaling
}

func (n *Node) SetScaling(s mgl64.Vec3) {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	n.scaling = s
}

func (n *Node) Material() *Material {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	return n.material
}

func (n *Node) SetMaterial(m *Material) {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	n.material = m
}

func (n *Node) Parent() *Node {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	return n.parent
}

// SetParent 把节点挂到 parent 下，parent 为 nil 时从树上摘下
func (n *Node) SetParent(parent *Node) {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	if n.disposed || (parent != nil && parent.disposed) {
		return
	}

	n.detachLocked()

	if parent != nil {
		n.parent = parent
		parent.children = append(parent.children, n)
	}
}

func (n *Node) Children() []*Node {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	return append([]*Node(nil), n.children...)
}

// ChildMeshes 返回所有后代中的可渲染网格（不含纯变换节点）
func (n *Node) ChildMeshes() []*Node {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	var meshes []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, child := range cur.children {
			if child.kind != KindTransform {
				meshes = append(meshes, child)
			}
			walk(child)
		}
	}
	walk(n)

	return meshes
}

// Visible 表示节点当前挂在舞台上
func (n *Node) Visible() bool {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	for cur := n; cur != nil; cur = cur.parent {
		if cur.disposed {
			return false
		}
		if cur == n.sc.stage {
			return true
		}
	}

	return false
}

func (n *Node) Disposed() bool {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	return n.disposed
}

// Dispose 递归释放节点及其子树，并停止作用在它们上的补间
func (n *Node) Dispose() {
	n.sc.mu.Lock()
	defer n.sc.mu.Unlock()

	if n.disposed {
		return
	}

	n.detachLocked()
	n.disposeLocked()
}

func (n *Node) disposeLocked() {
	n.disposed = true
	for _, child := range n.children {
		child.parent = nil
		child.disposeLocked()
	}
	n.children = nil
	n.material = nil

	for key := range n.sc.tweens {
		if key.node == n {
			delete(n.sc.tweens, key)
		}
	}
}

func (n *Node) detachLocked() {
	if n.parent == nil {
		return
	}

	siblings := n.parent.children
	for i, child := range siblings {
		if child == n {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}

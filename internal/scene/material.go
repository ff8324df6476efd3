package scene

// Material 只关心颜色通道：PBR 材质用 albedo，标准材质用 diffuse
type Material struct {
	sc *Headless

	name  string
	pbr   bool
	color Color3
}

func (m *Material) Name() string {
	return m.name
}

// IsPBR 为 true 时颜色写在 albedo 通道
func (m *Material) IsPBR() bool {
	return m.pbr
}

func (m *Material) Color() Color3 {
	m.sc.mu.Lock()
	defer m.sc.mu.Unlock()

	return m.color
}

func (m *Material) SetColor(c Color3) {
	m.sc.mu.Lock()
	defer m.sc.mu.Unlock()

	m.color = c
}

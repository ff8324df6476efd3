package scene

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

const DefaultHex = "#3A86FF"

// Color3 是 0~1 区间的线性 RGB
type Color3 struct {
	R, G, B float64
}

func NewColor3(r, g, b float64) Color3 {
	return Color3{R: r, G: g, B: b}
}

// ParseHex 解析 "#RRGGBB" / "#RGB"
func ParseHex(hex string) (Color3, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return Color3{}, err
	}

	return Color3{R: c.R, G: c.G, B: c.B}, nil
}

// ColorFromHex 解析失败时回落到 DefaultHex
func ColorFromHex(hex string) Color3 {
	c, err := ParseHex(hex)
	if err != nil {
		c, _ = ParseHex(DefaultHex)
	}

	return c
}

// Hex 返回大写的 "#RRGGBB"
func (c Color3) Hex() string {
	return strings.ToUpper(colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped().Hex())
}

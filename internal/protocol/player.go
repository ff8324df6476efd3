package protocol

import (
	"strings"
	"unicode"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	// 名字最多 16 个字符，超出部分直接截断
	MaxNameLength = 16
	DefaultName   = "Player"
)

// 固定的 6 色皮肤调色板，第一项为默认颜色
var Palette = []string{
	"#3A86FF",
	"#FF006E",
	"#FFD166",
	"#06D6A0",
	"#8E44AD",
	"#FF7F50",
}

var DefaultColor = Palette[0]

// 大厅中的玩家信息，同时也是线上传输的格式
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Helmet bool   `json:"helmet"`
	Ready  bool   `json:"ready"`
}

// SanitizeName 去掉首尾空白和控制字符，截断到 MaxNameLength，空名字回落到 DefaultName。
// 这里不做 HTML 转义，转义发生在渲染时。
func SanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	runes := []rune(cleaned)
	if len(runes) > MaxNameLength {
		runes = runes[:MaxNameLength]
	}

	cleaned = strings.TrimSpace(string(runes))
	if cleaned == "" {
		return DefaultName
	}

	return cleaned
}

// NormalizeColor 把 "#rgb"、"#rrggbb"（可省略 #）统一为大写的 "#RRGGBB"
func NormalizeColor(hex string) (string, bool) {
	hex = strings.TrimSpace(hex)
	if hex == "" {
		return "", false
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	if len(hex) != 4 && len(hex) != 7 {
		return "", false
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return "", false
	}

	return strings.ToUpper(c.Hex()), true
}

// Sanitize 返回一个名字与颜色都已规范化的副本
func (p Player) Sanitize() Player {
	p.Name = SanitizeName(p.Name)

	if color, ok := NormalizeColor(p.Color); ok {
		p.Color = color
	} else {
		p.Color = DefaultColor
	}

	return p
}

package ui

import "github.com/charmbracelet/bubbles/key"

type keymap struct {
	name   key.Binding
	color  key.Binding
	swatch key.Binding
	helmet key.Binding
	ready  key.Binding
	join   key.Binding
	leave  key.Binding
	wave   key.Binding
	dance  key.Binding
	jump   key.Binding
	cheer  key.Binding
	start  key.Binding
	accept key.Binding
	back   key.Binding
	quit   key.Binding
}

var DefaultKeyMap = keymap{
	name: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "名字"),
	),
	color: key.NewBinding(
		key.WithKeys("#"),
		key.WithHelp("#", "自定义颜色"),
	),
	swatch: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6"),
		key.WithHelp("1-6", "色板"),
	),
	helmet: key.NewBinding(
		key.WithKeys("h"),
		key.WithHelp("h", "头盔"),
	),
	ready: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "准备"),
	),
	join: key.NewBinding(
		key.WithKeys("j"),
		key.WithHelp("j", "加入"),
	),
	leave: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "离开"),
	),
	wave: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "挥手"),
	),
	dance: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "跳舞"),
	),
	jump: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "跳跃"),
	),
	cheer: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "欢呼"),
	),
	start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "开始"),
	),
	accept: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "确认"),
	),
	back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "取消"),
	),
	quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "退出"),
	),
}

func (k keymap) help() []key.Binding {
	return []key.Binding{
		k.name, k.join, k.leave, k.swatch, k.color, k.helmet, k.ready,
		k.wave, k.dance, k.jump, k.cheer, k.start, k.quit,
	}
}

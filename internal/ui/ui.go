// Package ui 是大厅客户端的终端界面。
package ui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"podium-lobby/internal/lobby/display"
	"podium-lobby/internal/lobby/session"
	"podium-lobby/internal/protocol"
)

var (
	ErrUIExit       = errors.New("ui error returned")
	errInvalidColor = errors.New("非法颜色")
)

const refreshInterval = 100 * time.Millisecond

// Lobby 是界面驱动的大厅会话
type Lobby interface {
	Join(name string)
	Leave()
	SetColor(hex string)
	ToggleHelmet()
	ToggleReady()
	Emote(name string)
	Start()
	View() (session.View, error)
}

type inputMode int

const (
	modeNone inputMode = iota
	modeName
	modeColor
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3A86FF"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD166"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF006E"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type refreshMsg struct {
	view session.View
	err  error
}

type Model struct {
	lobby Lobby

	mode      inputMode
	nameInput textinput.Model
	hexInput  textinput.Model

	view    session.View
	lastErr error
	width   int
}

func NewModel(lobby Lobby) Model {
	nameInput := textinput.New()
	nameInput.Placeholder = protocol.DefaultName
	nameInput.CharLimit = protocol.MaxNameLength
	nameInput.Prompt = "名字: "

	hexInput := textinput.New()
	hexInput.Placeholder = protocol.DefaultColor
	hexInput.CharLimit = 7
	hexInput.Prompt = "颜色: "
	hexInput.Validate = func(s string) error {
		if len(s) < 7 {
			return nil
		}
		if _, ok := protocol.NormalizeColor(s); !ok {
			return errInvalidColor
		}
		return nil
	}

	return Model{
		lobby:     lobby,
		nameInput: nameInput,
		hexInput:  hexInput,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("podium-lobby"),
		m.refresh(),
	)
}

func (m Model) refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		v, err := m.lobby.View()
		return refreshMsg{view: v, err: err}
	})
}

func (m Model) Update(inMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := inMsg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case refreshMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, tea.Quit
		}
		m.view = msg.view
		return m, m.refresh()

	case tea.KeyMsg:
		if m.mode != modeNone {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultKeyMap.back):
		m.blur()
		return m, nil

	case key.Matches(msg, DefaultKeyMap.accept):
		switch m.mode {
		case modeName:
			if !m.view.Joined {
				m.lobby.Join(m.nameInput.Value())
			}
		case modeColor:
			m.lobby.SetColor(m.hexInput.Value())
			m.hexInput.Reset()
		}
		m.blur()
		return m, nil
	}

	var cmd tea.Cmd
	if m.mode == modeName {
		m.nameInput, cmd = m.nameInput.Update(msg)
	} else {
		m.hexInput, cmd = m.hexInput.Update(msg)
	}

	return m, cmd
}

func (m *Model) blur() {
	m.mode = modeNone
	m.nameInput.Blur()
	m.hexInput.Blur()
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := DefaultKeyMap

	switch {
	case key.Matches(msg, keys.quit):
		return m, tea.Quit

	case key.Matches(msg, keys.name):
		if m.view.Joined {
			break
		}
		m.mode = modeName
		return m, m.nameInput.Focus()

	case key.Matches(msg, keys.color):
		m.mode = modeColor
		m.hexInput.SetValue("#")
		return m, m.hexInput.Focus()

	case key.Matches(msg, keys.swatch):
		idx := int(msg.String()[0] - '1')
		if idx >= 0 && idx < len(protocol.Palette) {
			m.lobby.SetColor(protocol.Palette[idx])
		}

	case key.Matches(msg, keys.join):
		m.lobby.Join(m.nameInput.Value())

	case key.Matches(msg, keys.leave):
		m.lobby.Leave()

	case key.Matches(msg, keys.helmet):
		m.lobby.ToggleHelmet()

	case key.Matches(msg, keys.ready):
		m.lobby.ToggleReady()

	case key.Matches(msg, keys.wave):
		m.lobby.Emote("wave")
	case key.Matches(msg, keys.dance):
		m.lobby.Emote("dance")
	case key.Matches(msg, keys.jump):
		m.lobby.Emote("jump")
	case key.Matches(msg, keys.cheer):
		m.lobby.Emote("cheer")

	case key.Matches(msg, keys.start):
		if m.view.StartEnabled {
			m.lobby.Start()
		}
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Podium Lobby"))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(connection(m.view)))
	b.WriteString("\n\n")

	switch m.mode {
	case modeName:
		b.WriteString(m.nameInput.View() + "\n")
	case modeColor:
		b.WriteString(m.hexInput.View() + "\n")
		if m.hexInput.Err != nil {
			b.WriteString(errStyle.Render(m.hexInput.Err.Error()) + "\n")
		}
	}

	b.WriteString(lipgloss.JoinHorizontal(
		lipgloss.Top,
		panelStyle.Render(renderRoster(m.view)),
		panelStyle.Render(renderPodium(m.view)),
	))
	b.WriteString("\n")

	b.WriteString(renderPalette() + "\n")

	if m.view.Status != "" {
		b.WriteString(statusStyle.Render(m.view.Status) + "\n")
	}

	start := "开始游戏: 需要先加入"
	if m.view.StartEnabled {
		start = "开始游戏: 按 s"
	}
	b.WriteString(dimStyle.Render(start) + "\n")

	b.WriteString(renderHelp())

	return b.String()
}

func connection(v session.View) string {
	switch {
	case !v.Online:
		return "离线预览"
	case v.Connected:
		return "已连接"
	default:
		return "重连中…"
	}
}

func renderRoster(v session.View) string {
	lines := []string{"玩家"}

	if len(v.Roster) == 0 {
		lines = append(lines, dimStyle.Render("（空）"))
	}

	for _, e := range v.Roster {
		name := lipgloss.NewStyle().Foreground(lipgloss.Color(e.Color)).Render(e.Name)
		line := fmt.Sprintf("● %s %s", name, display.ReadyIndicator(e.Ready))
		if e.Helmet {
			line += " ⛑"
		}
		if e.Local {
			line += dimStyle.Render(" (你)")
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func renderPodium(v session.View) string {
	lines := []string{"领奖台"}

	if len(v.Avatars) == 0 {
		lines = append(lines, dimStyle.Render("（无头像）"))
	}

	for _, av := range v.Avatars {
		angle := math.Atan2(av.Position.Z(), av.Position.X()) * 180 / math.Pi
		if angle < 0 {
			angle += 360
		}

		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(av.Color)).Render("■")
		line := fmt.Sprintf("%s %-8s %5.1f° y×%.2f", swatch, av.Source, angle, av.ScaleY)
		if len(av.Playing) > 0 {
			line += " " + dimStyle.Render(strings.Join(av.Playing, ","))
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func renderPalette() string {
	parts := make([]string, 0, len(protocol.Palette))
	for i, hex := range protocol.Palette {
		parts = append(parts, lipgloss.NewStyle().
			Foreground(lipgloss.Color(hex)).
			Render(fmt.Sprintf("%d■", i+1)))
	}

	return strings.Join(parts, " ")
}

func renderHelp() string {
	parts := make([]string, 0)
	for _, b := range DefaultKeyMap.help() {
		parts = append(parts, fmt.Sprintf("%s %s", b.Help().Key, b.Help().Desc))
	}

	return dimStyle.Render(strings.Join(parts, " · "))
}

type UI struct {
	program *tea.Program
}

func New(ctx context.Context, lobby Lobby) *UI {
	program := tea.NewProgram(NewModel(lobby), tea.WithAltScreen(), tea.WithContext(ctx))

	return &UI{
		program: program,
	}
}

func (t UI) Run() error {
	if _, err := t.program.Run(); err != nil {
		return errors.Join(err, ErrUIExit)
	}

	return nil
}

// Package display 渲染名单列表的 HTML 片段
package display

import (
	"bytes"
	"html/template"

	"podium-lobby/internal/protocol"
)

const (
	ReadyMark    = "✅"
	NotReadyMark = "—"
)

// html/template 负责转义名字和校验 style 中的颜色值
var listTmpl = template.Must(template.New("players").Parse(
	`<ul id="playersList">` +
		`{{range .}}<li class="playerItem"><span style="color:{{.Color}}">{{.Name}}</span>` +
		`<span>{{if .Ready}}` + ReadyMark + `{{else}}` + NotReadyMark + `{{end}}</span></li>{{end}}` +
		`</ul>`,
))

// RenderList 按名单顺序输出 <ul>，空名单输出空列表
func RenderList(players []protocol.Player) (string, error) {
	var buf bytes.Buffer
	if err := listTmpl.Execute(&buf, players); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ReadyIndicator 返回准备状态的标记
func ReadyIndicator(ready bool) string {
	if ready {
		return ReadyMark
	}

	return NotReadyMark
}

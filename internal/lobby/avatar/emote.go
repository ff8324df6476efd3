package avatar

import (
	"strings"

	"podium-lobby/internal/scene"
)

// MatchClip 按名字做不区分大小写的子串匹配，返回第一个命中的片段
func MatchClip(clips []*scene.AnimationGroup, name string) *scene.AnimationGroup {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}

	for _, clip := range clips {
		if strings.Contains(strings.ToLower(clip.Name()), needle) {
			return clip
		}
	}

	return nil
}

// IdleClip 返回名字包含 idle 的片段，没有则返回第一个
func IdleClip(clips []*scene.AnimationGroup) *scene.AnimationGroup {
	if idle := MatchClip(clips, "idle"); idle != nil {
		return idle
	}
	if len(clips) > 0 {
		return clips[0]
	}

	return nil
}

// 程序化的点头动画：纵向放大 12%，10 帧 @30fps 往返一次
const (
	pulseFactor = 1.12
	pulseFrames = 10
	pulseFPS    = 30
)

func pulseTween(fromY float64) scene.Tween {
	return scene.Tween{
		Property: scene.PropScaleY,
		From:     fromY,
		To:       fromY * pulseFactor,
		Frames:   pulseFrames,
		FPS:      pulseFPS,
		Yoyo:     true,
	}
}

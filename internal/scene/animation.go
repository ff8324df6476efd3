package scene

import "time"

// AnimationGroup 是一段可驱动的命名动画片段
type AnimationGroup struct {
	sc *Headless

	name     string
	duration time.Duration

	elapsed  time.Duration
	playing  bool
	loop     bool
	plays    int
	onEnd    []func()
	disposed bool
}

func (a *AnimationGroup) Name() string {
	return a.name
}

func (a *AnimationGroup) Duration() time.Duration {
	return a.duration
}

func (a *AnimationGroup) Playing() bool {
	a.sc.mu.Lock()
	defer a.sc.mu.Unlock()

	return a.playing
}

func (a *AnimationGroup) Looping() bool {
	a.sc.mu.Lock()
	defer a.sc.mu.Unlock()

	return a.playing && a.loop
}

// Plays 返回 Start 被调用的次数
func (a *AnimationGroup) Plays() int {
	a.sc.mu.Lock()
	defer a.sc.mu.Unlock()

	return a.plays
}

// Start 从头播放，loop 为 false 时播放一次后触发 OnEndOnce 注册的回调
func (a *AnimationGroup) Start(loop bool) {
	a.sc.mu.Lock()
	defer a.sc.mu.Unlock()

	if a.disposed {
		return
	}

	a.elapsed = 0
	a.playing = true
	a.loop = loop
	a.plays++
}

// Stop 停止播放，未触发的结束回调一并丢弃
func (a *AnimationGroup) Stop() {
	a.sc.mu.Lock()
	defer a.sc.mu.Unlock()

	a.playing = false
	a.onEnd = nil
}

// OnEndOnce 注册一次性结束回调
func (a *AnimationGroup) OnEndOnce(fn func()) {
	a.sc.mu.Lock()
	defer a.sc.mu.Unlock()

	if a.disposed || fn == nil {
		return
	}

	a.onEnd = append(a.onEnd, fn)
}

func (a *AnimationGroup) Dispose() {
	a.sc.mu.Lock()
	defer a.sc.mu.Unlock()

	a.disposed = true
	a.playing = false
	a.onEnd = nil
	delete(a.sc.groups, a)
}

// advanceLocked 推进 dt，返回需要在锁外执行的结束回调
func (a *AnimationGroup) advanceLocked(dt time.Duration) []func() {
	if !a.playing {
		return nil
	}

	a.elapsed += dt
	if a.elapsed < a.duration {
		return nil
	}

	if a.loop {
		if a.duration > 0 {
			a.elapsed %= a.duration
		} else {
			a.elapsed = 0
		}
		return nil
	}

	a.playing = false
	callbacks := a.onEnd
	a.onEnd = nil

	return callbacks
}

// Package asset 负责富头像资源：可达性探测与 GLB 导入。
package asset

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Availability int

const (
	Unknown Availability = iota
	Available
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Prober 用 HEAD 请求检查富资源是否存在，并缓存最近一次结果。
// 并发的探测会被合并成一次请求。
type Prober struct {
	url    string
	client *http.Client

	group singleflight.Group

	mu   sync.RWMutex
	last Availability
}

func NewProber(url string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Prober{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Prober) URL() string {
	return p.url
}

// Availability 返回最近一次探测的结果
func (p *Prober) Availability() Availability {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.last
}

// Probe 任何错误都视为不可用，从不返回 error
func (p *Prober) Probe(ctx context.Context) bool {
	v, _, _ := p.group.Do(p.url, func() (any, error) {
		return p.head(ctx), nil
	})

	ok, _ := v.(bool)

	p.mu.Lock()
	if ok {
		p.last = Available
	} else {
		p.last = Unavailable
	}
	p.mu.Unlock()

	return ok
}

func (p *Prober) head(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		zap.L().Warn("构造资源探测请求失败", zap.String("url", p.url), zap.Error(err))
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		zap.L().Warn("富资源探测失败，使用备用头像", zap.String("url", p.url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		zap.L().Warn(
			"富资源不可用，使用备用头像",
			zap.String("url", p.url),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}

	return true
}

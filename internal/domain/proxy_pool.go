// Package domain contains the core business entities and value objects.
package domain

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoProxiesAvailable is returned when every configured proxy is dead.
var ErrNoProxiesAvailable = errors.New("no proxies available in the pool")

// ProxyPool hands out egress proxy URLs round-robin. A proxy that fails is
// taken out of rotation and comes back automatically after the cooldown.
type ProxyPool struct {
	// proxies holds the URLs currently in rotation.
	proxies []string

	// dead maps a failed proxy to the time it was taken out of rotation.
	dead map[string]time.Time

	// index is the round-robin counter.
	index int64

	mu     sync.RWMutex
	deadMu sync.RWMutex

	// cooldown is how long a proxy stays dead. Zero disables auto-revival.
	cooldown time.Duration

	// known is the immutable set of configured proxies.
	known map[string]struct{}
}

// NewProxyPool builds a pool from urls, dropping blanks and duplicates while
// keeping the configured order.
func NewProxyPool(urls []string, cooldown time.Duration) *ProxyPool {
	p := &ProxyPool{
		proxies:  make([]string, 0, len(urls)),
		dead:     make(map[string]time.Time),
		cooldown: cooldown,
		known:    make(map[string]struct{}),
	}

	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, exists := p.known[u]; exists {
			continue
		}
		p.known[u] = struct{}{}
		p.proxies = append(p.proxies, u)
	}

	return p
}

// Direct reports whether the pool is empty, meaning requests go out without
// a proxy.
func (p *ProxyPool) Direct() bool {
	return len(p.known) == 0
}

// Next returns the next live proxy. It is safe for concurrent use.
func (p *ProxyPool) Next() (string, error) {
	p.reviveExpired()

	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.proxies)
	if n == 0 {
		return "", ErrNoProxiesAvailable
	}

	idx := atomic.AddInt64(&p.index, 1) - 1
	return p.proxies[int(idx%int64(n))], nil
}

// MarkAsDead takes proxy out of rotation until the cooldown elapses.
func (p *ProxyPool) MarkAsDead(proxy string) {
	if _, ok := p.known[proxy]; !ok {
		return
	}

	p.deadMu.Lock()
	p.dead[proxy] = time.Now()
	p.deadMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	live := make([]string, 0, len(p.proxies))
	for _, u := range p.proxies {
		if u != proxy {
			live = append(live, u)
		}
	}
	p.proxies = live
}

// Revive puts a dead proxy back into rotation.
func (p *ProxyPool) Revive(proxy string) {
	if _, ok := p.known[proxy]; !ok {
		return
	}

	p.deadMu.Lock()
	_, wasDead := p.dead[proxy]
	delete(p.dead, proxy)
	p.deadMu.Unlock()

	if !wasDead {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, u := range p.proxies {
		if u == proxy {
			return
		}
	}
	p.proxies = append(p.proxies, proxy)
}

func (p *ProxyPool) reviveExpired() {
	if p.cooldown == 0 {
		return
	}

	now := time.Now()
	var due []string

	p.deadMu.RLock()
	for u, since := range p.dead {
		if now.Sub(since) >= p.cooldown {
			due = append(due, u)
		}
	}
	p.deadMu.RUnlock()

	for _, u := range due {
		p.Revive(u)
	}
}

// ActiveCount returns the number of proxies in rotation.
func (p *ProxyPool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

// DeadCount returns the number of proxies waiting out their cooldown.
func (p *ProxyPool) DeadCount() int {
	p.deadMu.RLock()
	defer p.deadMu.RUnlock()
	return len(p.dead)
}

// TotalCount returns the number of configured proxies.
func (p *ProxyPool) TotalCount() int {
	return len(p.known)
}

// IsDead reports whether proxy is currently out of rotation.
func (p *ProxyPool) IsDead(proxy string) bool {
	p.deadMu.RLock()
	defer p.deadMu.RUnlock()
	_, dead := p.dead[proxy]
	return dead
}

package common

import (
	"sort"
	"strings"
	"sync"
)

// Pauses is a PauseView toggled by operators at runtime. It is safe for
// concurrent use.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]struct{}
}

// NewPauses returns a view with the given modules paused.
func NewPauses(modules ...string) *Pauses {
	p := &Pauses{paused: make(map[string]struct{})}
	for _, module := range modules {
		p.Pause(module)
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.paused[normalizeModule(module)]
	return ok
}

func (p *Pauses) Pause(module string) {
	module = normalizeModule(module)
	if module == "" {
		return
	}
	p.mu.Lock()
	p.paused[module] = struct{}{}
	p.mu.Unlock()
}

func (p *Pauses) Resume(module string) {
	p.mu.Lock()
	delete(p.paused, normalizeModule(module))
	p.mu.Unlock()
}

// Paused lists paused modules in sorted order.
func (p *Pauses) Paused() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.paused))
	for module := range p.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}

// Package variant resolves which experiment variant a piece of UI should
// render.
//
// Two lookup rules exist. Resolve is the declarative rule: the selected
// variant, else the caller's default. ResolveWithFallback additionally tries
// the first declared variant before the default, for callers that must
// always render one of the experiment's own variants.
package variant

import (
	"sync"

	"github.com/roach88/flowrl/internal/cache"
	"github.com/roach88/flowrl/internal/model"
)

// Source supplies the current configuration and change notifications.
// Implemented by *cache.Manager.
type Source interface {
	Current() *model.Configuration
	Subscribe(fn func(*model.Configuration)) *cache.Subscription
}

// Resolve returns the selected variant of test in cfg, or def when cfg is
// nil, the test is unknown or it has no selection.
func Resolve(cfg *model.Configuration, test, def string) string {
	v, ok := selected(cfg, test)
	if !ok {
		return def
	}
	return v
}

// ResolveWithFallback walks selected variant, first declared variant, def.
func ResolveWithFallback(cfg *model.Configuration, test, def string) string {
	if v, ok := selected(cfg, test); ok {
		return v
	}
	ch, ok := cfg.Choice(test)
	if !ok {
		return def
	}
	if v, ok := ch.FirstVariant(); ok {
		return v
	}
	return def
}

func selected(cfg *model.Configuration, test string) (string, bool) {
	ch, ok := cfg.Choice(test)
	if !ok {
		return "", false
	}
	return ch.SelectedVariant()
}

// Picker reads variants from a Source.
type Picker struct {
	src Source
}

// NewPicker creates a Picker over src.
func NewPicker(src Source) *Picker {
	return &Picker{src: src}
}

// Resolve applies Resolve to the source's current configuration.
func (p *Picker) Resolve(test, def string) string {
	return Resolve(p.src.Current(), test, def)
}

// ResolveWithFallback applies ResolveWithFallback to the source's current
// configuration.
func (p *Picker) ResolveWithFallback(test, def string) string {
	return ResolveWithFallback(p.src.Current(), test, def)
}

// Watch calls fn with the resolved variant now and again after every
// configuration change where the resolved value differs from the last one
// delivered. Cancel the returned subscription to stop.
func (p *Picker) Watch(test, def string, fn func(string)) *cache.Subscription {
	w := &watcher{test: test, def: def, fn: fn}
	sub := p.src.Subscribe(w.update)
	w.update(p.src.Current())
	return sub
}

type watcher struct {
	test, def string
	fn        func(string)

	mu        sync.Mutex
	delivered bool
	last      string
}

func (w *watcher) update(cfg *model.Configuration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := Resolve(cfg, w.test, w.def)
	if w.delivered && v == w.last {
		return
	}
	w.delivered = true
	w.last = v
	w.fn(v)
}

package leaktracer

import (
	"sync"

	"github.com/petermattis/goid"
)

// reentrancyGuard marks, per goroutine, that the tracer's own bookkeeping is
// executing. The bookkeeping path allocates (stack buffers, table entries,
// symbol strings); if any of that goes through the traced allocator, the
// guard makes the nested call take the skip branch instead of recursing back
// into the bookkeeping.
//
// A goroutine's flag is created lazily on first entry and removed again on
// release, so the map only holds goroutines that are inside bookkeeping
// right now. Goroutines never observe each other's flag.
type reentrancyGuard struct {
	active sync.Map // goroutine id -> struct{}
}

// isActive reports whether the calling goroutine is already inside
// bookkeeping.
func (g *reentrancyGuard) isActive() bool {
	_, ok := g.active.Load(goid.Get())
	return ok
}

// enter marks the calling goroutine as inside bookkeeping. If the goroutine
// is already marked, ok is false and the caller must skip bookkeeping.
// release must run on every exit path of the acquiring scope; callers defer
// it immediately.
func (g *reentrancyGuard) enter() (release func(), ok bool) {
	id := goid.Get()
	if _, loaded := g.active.LoadOrStore(id, struct{}{}); loaded {
		return nil, false
	}
	return func() { g.active.Delete(id) }, true
}

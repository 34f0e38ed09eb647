package leaktracer

import (
	"runtime"
	"strings"
)

// skipFrames jumps over runtime.Callers, resolveCaller and the allocator
// method that invoked it, so the walk starts at the allocator's caller.
// resolveCaller must therefore sit exactly one call below the allocator's
// public entry points; the ignore list below catches anything that slips
// through anyway.
const skipFrames = 3

// defaultMaxStackDepth bounds the walk when the configuration does not.
const defaultMaxStackDepth = 64

// ignorePrefixes lists the tracer's own entry points. They are never
// attributable, even when the user traces this module itself.
var ignorePrefixes = []string{
	"leaktracer.dev/leaktracer/leaktracer.(*TraceAllocator).",
	"leaktracer.dev/leaktracer/leaktracer.(*stackResolver).",
	"leaktracer.dev/leaktracer/leaktracer.(*SymbolTable).",
	"leaktracer.dev/leaktracer/leaktracer.WithSymbolTable",
}

// callerResolver turns the current call stack into an attributable function
// name. The bool result is false when no frame matched the configured
// module prefixes.
type callerResolver interface {
	resolveCaller() (string, bool)
}

// addressSymbolizer names raw return addresses the runtime has no symbol
// for, typically frames from outside the Go heap of this binary. It is
// optional; a nil symbolizer just leaves such frames unnamed.
type addressSymbolizer interface {
	symbolize(addr uint64) (string, bool)
}

// stackResolver walks the current call stack outward and returns the first
// function whose name starts with one of the configured module prefixes.
// Symbolication stops at the first match, so the cost is proportional to
// the depth of the first interesting frame, not to the whole stack.
type stackResolver struct {
	modules    []string
	maxDepth   int
	symbolizer addressSymbolizer
}

func newStackResolver(modules []string, maxDepth int, symbolizer addressSymbolizer) *stackResolver {
	if maxDepth <= 0 {
		maxDepth = defaultMaxStackDepth
	}
	return &stackResolver{
		modules:    modules,
		maxDepth:   maxDepth,
		symbolizer: symbolizer,
	}
}

func (r *stackResolver) resolveCaller() (string, bool) {
	pcs := make([]uintptr, r.maxDepth)
	n := runtime.Callers(skipFrames, pcs)
	if n == 0 {
		return "", false
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		name := frame.Function
		if name == "" && r.symbolizer != nil {
			// A frame the runtime cannot name is not fatal; try the ELF
			// fallback and otherwise keep walking.
			if s, ok := r.symbolizer.symbolize(uint64(frame.PC)); ok {
				name = s
			}
		}
		if name != "" && !isIgnoredFrame(name) && r.matchesModule(name) {
			return name, true
		}
		if !more {
			return "", false
		}
	}
}

func (r *stackResolver) matchesModule(name string) bool {
	for _, m := range r.modules {
		if strings.HasPrefix(name, m) {
			return true
		}
	}
	return false
}

func isIgnoredFrame(name string) bool {
	for _, p := range ignorePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

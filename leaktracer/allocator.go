package leaktracer

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// TraceAllocator implements memory.Allocator by delegating every request to
// an upstream allocator and attributing each allocation to the function
// that issued it. Handing it to the components whose memory should be
// traced substitutes it for the process's allocator for their lifetime.
//
// The actual memory operation always reaches the upstream allocator first.
// If the upstream cannot satisfy a request its failure propagates to the
// caller untouched, with no bookkeeping performed. Bookkeeping walks the
// call stack on every allocation, which is why this allocator is a
// debugging tool and not something to ship in production builds.
type TraceAllocator struct {
	upstream memory.Allocator
	table    *SymbolTable
	resolver callerResolver
	guard    *reentrancyGuard

	// allocated tracks live bytes (net), total tracks bytes ever
	// requested (gross).
	allocated atomic.Int64
	total     atomic.Uint64
}

var _ memory.Allocator = (*TraceAllocator)(nil)

func newTraceAllocator(upstream memory.Allocator, table *SymbolTable, resolver callerResolver, guard *reentrancyGuard) *TraceAllocator {
	return &TraceAllocator{
		upstream: upstream,
		table:    table,
		resolver: resolver,
		guard:    guard,
	}
}

// Allocate obtains size bytes from the upstream allocator and records the
// allocation against the caller's symbol. When the calling goroutine is
// already inside the tracer's bookkeeping, the buffer is returned with no
// bookkeeping at all.
func (a *TraceAllocator) Allocate(size int) []byte {
	buf := a.upstream.Allocate(size)
	release, ok := a.guard.enter()
	if !ok {
		return buf
	}
	defer release()

	a.allocated.Add(int64(size))
	a.total.Add(uint64(size))
	name, resolved := a.resolver.resolveCaller()
	if !resolved {
		name = UnknownSymbol
	}
	a.table.Record(name, uint64(size))
	return buf
}

// Reallocate resizes b through the upstream allocator. Growth is recorded
// as an allocation of the size delta, attributed like Allocate; shrinking
// performs no symbol bookkeeping.
func (a *TraceAllocator) Reallocate(size int, b []byte) []byte {
	delta := size - len(b)
	buf := a.upstream.Reallocate(size, b)
	release, ok := a.guard.enter()
	if !ok {
		return buf
	}
	defer release()

	a.allocated.Add(int64(delta))
	if delta > 0 {
		a.total.Add(uint64(delta))
		name, resolved := a.resolver.resolveCaller()
		if !resolved {
			name = UnknownSymbol
		}
		a.table.Record(name, uint64(delta))
	}
	return buf
}

// Free returns b to the upstream allocator. Per-symbol counters are gross
// and never decrease on free; only the allocator-wide live gauge moves.
func (a *TraceAllocator) Free(b []byte) {
	if !a.guard.isActive() {
		a.allocated.Add(-int64(len(b)))
	}
	a.upstream.Free(b)
}

// Allocated returns the number of live bytes currently held from this
// allocator, net of frees.
func (a *TraceAllocator) Allocated() int64 {
	return a.allocated.Load()
}

// TotalAllocated returns the gross number of bytes ever requested from this
// allocator.
func (a *TraceAllocator) TotalAllocated() uint64 {
	return a.total.Load()
}

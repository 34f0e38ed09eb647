package leaktracer

import (
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(modules ...string) *TraceAllocator {
	return newTraceAllocator(
		memory.NewGoAllocator(),
		NewSymbolTable(),
		newStackResolver(modules, 32, nil),
		&reentrancyGuard{},
	)
}

func TestAllocateAttributesToCaller(t *testing.T) {
	a := newTestAllocator(testPkg)

	for _, size := range []int{10, 20, 30} {
		_ = a.Allocate(size)
	}

	stats := a.table.Snapshot()
	require.Len(t, stats, 1)
	require.Equal(t, testPkg+".TestAllocateAttributesToCaller", stats[0].Name)
	require.Equal(t, uint64(3), stats[0].Count)
	require.Equal(t, uint64(60), stats[0].Allocated)
}

func TestAllocateUnmatchedGoesToUnknown(t *testing.T) {
	a := newTestAllocator("example.com/otherapp")

	_ = a.Allocate(128)

	sym := a.table.Get(UnknownSymbol)
	require.NotNil(t, sym)
	require.Equal(t, uint64(1), sym.Count())
	require.Equal(t, uint64(128), sym.Allocated())
}

func TestFreeIsGrossNotNet(t *testing.T) {
	a := newTestAllocator(testPkg)

	buf := a.Allocate(100)
	name := a.table.Snapshot()[0].Name
	a.Free(buf)

	sym := a.table.Get(name)
	require.Equal(t, uint64(100), sym.Allocated())
	require.Equal(t, uint64(1), sym.Count())
	require.Equal(t, int64(0), a.Allocated())
	require.Equal(t, uint64(100), a.TotalAllocated())
}

func TestReallocateRecordsGrowthDelta(t *testing.T) {
	a := newTestAllocator(testPkg)

	buf := a.Allocate(100)
	buf = a.Reallocate(150, buf)

	require.Equal(t, int64(150), a.Allocated())
	require.Equal(t, uint64(150), a.TotalAllocated())
	sym := a.table.Get(testPkg + ".TestReallocateRecordsGrowthDelta")
	require.NotNil(t, sym)
	require.Equal(t, uint64(2), sym.Count())
	require.Equal(t, uint64(150), sym.Allocated())

	// Shrinking moves the live gauge but records nothing.
	_ = a.Reallocate(50, buf)
	require.Equal(t, int64(50), a.Allocated())
	require.Equal(t, uint64(150), a.TotalAllocated())
	require.Equal(t, uint64(2), sym.Count())
	require.Equal(t, uint64(150), sym.Allocated())
}

// failingAllocator refuses every request the way arrow allocators do, by
// panicking.
type failingAllocator struct{}

func (failingAllocator) Allocate(int) []byte           { panic("allocator: out of memory") }
func (failingAllocator) Reallocate(int, []byte) []byte { panic("allocator: out of memory") }
func (failingAllocator) Free([]byte)                   {}

func TestUpstreamFailurePassesThroughUntouched(t *testing.T) {
	a := newTraceAllocator(
		failingAllocator{},
		NewSymbolTable(),
		newStackResolver([]string{testPkg}, 32, nil),
		&reentrancyGuard{},
	)

	require.PanicsWithValue(t, "allocator: out of memory", func() {
		_ = a.Allocate(1 << 40)
	})

	// A failed allocation is never attributed.
	require.Equal(t, 0, a.table.Len())
	require.Equal(t, int64(0), a.Allocated())
	require.Equal(t, uint64(0), a.TotalAllocated())
	require.False(t, a.guard.isActive())
}

// recursiveResolver allocates through the traced allocator from inside the
// bookkeeping path, the exact situation the reentrancy guard exists for.
type recursiveResolver struct {
	a     *TraceAllocator
	calls int
}

func (r *recursiveResolver) resolveCaller() (string, bool) {
	r.calls++
	_ = r.a.Allocate(8)
	return "app.nested", true
}

func TestBookkeepingAllocationsDoNotRecurse(t *testing.T) {
	a := newTestAllocator(testPkg)
	rec := &recursiveResolver{a: a}
	a.resolver = rec

	_ = a.Allocate(16)

	// The nested allocation took the skip branch: the resolver ran once,
	// and only the outer allocation was recorded.
	require.Equal(t, 1, rec.calls)
	sym := a.table.Get("app.nested")
	require.NotNil(t, sym)
	require.Equal(t, uint64(1), sym.Count())
	require.Equal(t, uint64(16), sym.Allocated())
	require.Equal(t, uint64(16), a.TotalAllocated())
	require.False(t, a.guard.isActive())
}

func TestConcurrentAllocationsAggregate(t *testing.T) {
	const (
		goroutines = 8
		perG       = 200
		size       = 64
	)
	a := newTestAllocator(testPkg)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allocMany(a, perG, size)
		}()
	}
	wg.Wait()

	sym := a.table.Get(testPkg + ".allocMany")
	require.NotNil(t, sym)
	require.Equal(t, uint64(goroutines*perG), sym.Count())
	require.Equal(t, uint64(goroutines*perG*size), sym.Allocated())
	require.Equal(t, uint64(goroutines*perG*size), a.TotalAllocated())
}

func allocMany(a *TraceAllocator, n, size int) {
	for i := 0; i < n; i++ {
		_ = a.Allocate(size)
	}
}

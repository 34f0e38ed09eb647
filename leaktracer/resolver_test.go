package leaktracer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPkg = "leaktracer.dev/leaktracer/leaktracer"

// resolveVia sits at the same stack depth as the allocator's entry points,
// so the frame recorded first is resolveVia's caller.
func resolveVia(r *stackResolver) (string, bool) {
	return r.resolveCaller()
}

func interestingCaller(r *stackResolver) (string, bool) {
	return resolveVia(r)
}

func TestResolveCallerMatchesModulePrefix(t *testing.T) {
	r := newStackResolver([]string{testPkg}, 16, nil)

	name, ok := interestingCaller(r)
	require.True(t, ok)
	require.Equal(t, testPkg+".interestingCaller", name)
}

func TestResolveCallerNoMatch(t *testing.T) {
	r := newStackResolver([]string{"example.com/otherapp"}, 16, nil)

	_, ok := interestingCaller(r)
	require.False(t, ok)
}

func TestResolveCallerEmptyModuleList(t *testing.T) {
	r := newStackResolver(nil, 16, nil)

	_, ok := interestingCaller(r)
	require.False(t, ok)
}

func TestResolveCallerSkipsToFirstMatch(t *testing.T) {
	// Only the test function itself is configured, so the walk must pass
	// over interestingCaller and stop at the first matching frame.
	r := newStackResolver([]string{testPkg + ".TestResolveCallerSkipsToFirstMatch"}, 16, nil)

	name, ok := interestingCaller(r)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(name, testPkg+".TestResolveCallerSkipsToFirstMatch"))
}

func TestResolveCallerDepthBound(t *testing.T) {
	// With a walk bounded to a single frame, the matching test function
	// is out of reach.
	r := newStackResolver([]string{testPkg + ".TestResolveCallerDepthBound"}, 1, nil)

	_, ok := interestingCaller(r)
	require.False(t, ok)
}

func TestIgnoredFrames(t *testing.T) {
	require.True(t, isIgnoredFrame(testPkg+".(*TraceAllocator).Allocate"))
	require.True(t, isIgnoredFrame(testPkg+".(*SymbolTable).Record"))
	require.False(t, isIgnoredFrame(testPkg+".interestingCaller"))
	require.False(t, isIgnoredFrame("main.main"))
}

type staticSymbolizer struct {
	names map[uint64]string
}

func (s *staticSymbolizer) symbolize(addr uint64) (string, bool) {
	name, ok := s.names[addr]
	return name, ok
}

func TestResolverUsesSymbolizerForUnnamedFrames(t *testing.T) {
	// Frames the runtime can name never reach the symbolizer.
	called := &staticSymbolizer{names: map[uint64]string{}}
	r := newStackResolver([]string{testPkg}, 16, called)

	name, ok := interestingCaller(r)
	require.True(t, ok)
	require.Equal(t, testPkg+".interestingCaller", name)
}

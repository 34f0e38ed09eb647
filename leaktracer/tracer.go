// Package leaktracer attributes every allocation made through a traced
// allocator to the function that issued it, keeping gross per-function
// byte and call counts for leak diagnosis. It walks the call stack on
// every allocation and is meant for debugging builds, not production.
package leaktracer

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	log "github.com/sirupsen/logrus"
)

// ErrNotSetup is returned when the symbol table is accessed before Setup
// has run. Reporting code may run before or without tracing configured, so
// this is recoverable, not a crash.
var ErrNotSetup = errors.New("leaktracer: not set up")

// Config controls process-wide tracing. The module list is captured once at
// Setup and immutable afterwards.
type Config struct {
	// Modules lists the function-name prefixes considered attributable.
	// A frame matches when its fully qualified function name starts with
	// one of these prefixes; everything else is treated as noise
	// (runtime, standard library, the tracer itself).
	Modules []string

	// MaxStackDepth bounds the stack walk per allocation. Zero means the
	// default of 64 frames.
	MaxStackDepth int

	// Symbolize enables naming frames the runtime has no symbol for by
	// falling back to the executable's ELF symbol table.
	Symbolize bool

	// Upstream is the allocator being wrapped. Nil means
	// memory.DefaultAllocator; arrow's mallocator works unchanged for
	// tracing C-heap allocations.
	Upstream memory.Allocator

	// Verbose enables debug logging. The allocation hot path never logs.
	Verbose bool
}

// State is the process-wide tracer instance created by Setup.
type State struct {
	cfg       Config
	table     *SymbolTable
	guard     *reentrancyGuard
	allocator *TraceAllocator
	meta      ReportMeta
}

var globalState atomic.Pointer[State]

// Setup initializes tracing for the whole process. It is meant to run once,
// early in startup, before the first traced allocation; calling it again
// returns the already-initialized state and ignores the new configuration.
func Setup(cfg Config) (*State, error) {
	if s := globalState.Load(); s != nil {
		log.Debug("leaktracer already set up, ignoring configuration")
		return s, nil
	}

	s := newState(cfg)
	if !globalState.CompareAndSwap(nil, s) {
		return globalState.Load(), nil
	}
	log.WithFields(log.Fields{
		"modules":   s.cfg.Modules,
		"max_depth": s.cfg.MaxStackDepth,
		"symbolize": s.cfg.Symbolize,
	}).Debug("leaktracer set up")
	return s, nil
}

// Init is a convenience wrapper around Setup for the common case of tracing
// a set of module prefixes with default settings.
func Init(modules ...string) error {
	_, err := Setup(Config{Modules: modules})
	return err
}

func newState(cfg Config) *State {
	if cfg.Upstream == nil {
		cfg.Upstream = memory.DefaultAllocator
	}
	if cfg.MaxStackDepth <= 0 {
		cfg.MaxStackDepth = defaultMaxStackDepth
	}
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	meta := processMeta()

	var symbolizer addressSymbolizer
	if cfg.Symbolize {
		st, err := loadSymtab(meta.ExecutablePath)
		if err != nil {
			// Never fatal; unresolved frames are simply skipped.
			log.WithError(err).Debug("ELF symbol fallback unavailable")
		} else {
			symbolizer = st
		}
	}

	guard := &reentrancyGuard{}
	table := NewSymbolTable()
	resolver := newStackResolver(cfg.Modules, cfg.MaxStackDepth, symbolizer)
	return &State{
		cfg:       cfg,
		table:     table,
		guard:     guard,
		allocator: newTraceAllocator(cfg.Upstream, table, resolver, guard),
		meta:      meta,
	}
}

// processMeta inspects the host executable once, at setup time, so reports
// can carry the binary's identity without touching the hot path.
func processMeta() ReportMeta {
	meta := ReportMeta{PID: os.Getpid()}

	exe, err := os.Executable()
	if err != nil {
		log.WithError(err).Debug("cannot determine executable path")
		return meta
	}
	meta.ExecutablePath = exe
	meta.Command = filepath.Base(exe)

	f, err := GetELFReader().Open(exe)
	if err != nil {
		log.WithError(err).WithField("exe", exe).Debug("cannot open executable")
		return meta
	}
	defer f.Close()

	if v, err := f.GoVersion(); err == nil {
		meta.GoVersion = v
	}
	if id, err := f.GetBuildID(); err == nil {
		meta.BuildID = id
	}
	if _, err := f.LookupSymbol("runtime.main"); err != nil {
		log.WithField("exe", exe).Debug("executable looks stripped, ELF symbol lookups may fail")
	}
	return meta
}

// WithSymbolTable gives fn read access to the process-wide symbol table.
// It returns ErrNotSetup before initialization. The caller's reentrancy
// guard is held while fn runs, so allocations fn makes through the traced
// allocator are not attributed.
func WithSymbolTable(fn func(*SymbolTable) error) error {
	s := globalState.Load()
	if s == nil {
		return ErrNotSetup
	}
	return s.WithSymbolTable(fn)
}

// WithSymbolTable is the instance form of the package-level function.
func (s *State) WithSymbolTable(fn func(*SymbolTable) error) error {
	if release, ok := s.guard.enter(); ok {
		defer release()
	}
	return fn(s.table)
}

// Allocator returns the allocator shim to hand to the code whose memory
// should be traced.
func (s *State) Allocator() *TraceAllocator {
	return s.allocator
}

// Snapshot returns the current per-symbol stats.
func (s *State) Snapshot() []SymbolStats {
	return s.table.Snapshot()
}

// Meta returns the host process metadata captured at setup.
func (s *State) Meta() ReportMeta {
	return s.meta
}

// Report sends the current table snapshot to r.
func (s *State) Report(r Reporter) error {
	return r.Report(s.Snapshot(), s.meta)
}

package leaktracer

import (
	"sort"
	"sync"
	"sync/atomic"
)

// UnknownSymbol is the entry that collects allocations whose call stack
// contains no frame matching a configured module prefix. Recording them
// under a sentinel instead of dropping them keeps the table's total equal
// to the total traced bytes.
const UnknownSymbol = "<unknown>"

// Symbol holds the aggregated allocation stats for one attributed function.
// Both counters are gross: they only ever grow, deallocations are never
// subtracted. Readers may load them at any time without synchronization.
type Symbol struct {
	allocated atomic.Uint64
	count     atomic.Uint64
}

// Allocated returns the total number of bytes requested through allocation
// calls attributed to this symbol.
func (s *Symbol) Allocated() uint64 {
	return s.allocated.Load()
}

// Count returns the number of allocation calls attributed to this symbol.
func (s *Symbol) Count() uint64 {
	return s.count.Load()
}

// SymbolTable maps attributed function names to their allocation stats.
// Entries are created lazily on first attribution and live for the rest of
// the process. Updates to different symbols never serialize against each
// other; updates to the same symbol are atomic per counter, so increments
// are never lost regardless of interleaving.
type SymbolTable struct {
	symbols sync.Map // function name -> *Symbol
}

// NewSymbolTable returns an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{}
}

// Record adds size bytes and one call to the entry for name, creating the
// entry first if this is the symbol's first attribution.
func (t *SymbolTable) Record(name string, size uint64) {
	v, ok := t.symbols.Load(name)
	if !ok {
		// LoadOrStore allocates the entry; racing recorders converge on
		// whichever entry won the store.
		v, _ = t.symbols.LoadOrStore(name, &Symbol{})
	}
	sym := v.(*Symbol)
	sym.allocated.Add(size)
	sym.count.Add(1)
}

// Get returns the entry for name, or nil if nothing has been attributed to
// it yet.
func (t *SymbolTable) Get(name string) *Symbol {
	v, ok := t.symbols.Load(name)
	if !ok {
		return nil
	}
	return v.(*Symbol)
}

// Len returns the number of symbols in the table.
func (t *SymbolTable) Len() int {
	n := 0
	t.symbols.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Range calls fn for every symbol in the table, in no particular order,
// until fn returns false.
func (t *SymbolTable) Range(fn func(name string, sym *Symbol) bool) {
	t.symbols.Range(func(k, v any) bool {
		return fn(k.(string), v.(*Symbol))
	})
}

// Snapshot returns the current stats for every symbol, sorted by allocated
// bytes descending. Each row is internally consistent; rows keep updating
// independently while the snapshot is taken, so the snapshot as a whole is
// not a single atomic cut across the table.
func (t *SymbolTable) Snapshot() []SymbolStats {
	var stats []SymbolStats
	t.Range(func(name string, sym *Symbol) bool {
		stats = append(stats, SymbolStats{
			Name:      name,
			Allocated: sym.Allocated(),
			Count:     sym.Count(),
		})
		return true
	})
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Allocated != stats[j].Allocated {
			return stats[i].Allocated > stats[j].Allocated
		}
		return stats[i].Name < stats[j].Name
	})
	return stats
}

package leaktracer

import (
	"debug/elf"
	"errors"
	"sort"
)

// symtab resolves raw return addresses against the host executable's ELF
// symbol table. The resolver uses it as a fallback for frames the Go
// runtime cannot name.
type symtab struct {
	syms []SymbolInfo // sorted by address
}

var _ addressSymbolizer = (*symtab)(nil)

func newSymtab(syms []SymbolInfo) *symtab {
	sorted := make([]SymbolInfo, len(syms))
	copy(sorted, syms)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})
	return &symtab{syms: sorted}
}

// loadSymtab reads the symbol table of the ELF binary at path.
func loadSymtab(path string) (*symtab, error) {
	if path == "" {
		return nil, errors.New("no executable path")
	}
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	syms := collectSymbols(f)
	if len(syms) == 0 {
		return nil, errors.New("no symbols in executable")
	}
	return newSymtab(syms), nil
}

// symbolize returns the name of the symbol containing addr.
func (s *symtab) symbolize(addr uint64) (string, bool) {
	idx := sort.Search(len(s.syms), func(i int) bool {
		return s.syms[i].Address > addr
	}) - 1
	if idx < 0 {
		return "", false
	}
	sym := s.syms[idx]
	// A zero size means the table does not record the symbol's extent;
	// the nearest preceding symbol is the best available answer then.
	if sym.Size > 0 && addr >= sym.Address+sym.Size {
		return "", false
	}
	return sym.Name, true
}

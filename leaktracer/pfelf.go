//go:build linux

// Copyright 2025 The Leaktracer Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package leaktracer

import (
	"go.opentelemetry.io/ebpf-profiler/libpf"
	"go.opentelemetry.io/ebpf-profiler/libpf/pfelf"
)

// pfelfReader is an ELFReader backed by ebpf-profiler's pfelf package,
// which parses lazily and handles more binary layouts than debug/elf.
type pfelfReader struct{}

// PfelfReader returns a pfelf-backed ELFReader.
func PfelfReader() ELFReader {
	return pfelfReader{}
}

func (pfelfReader) Open(path string) (ELFFile, error) {
	f, err := pfelf.Open(path)
	if err != nil {
		return nil, err
	}
	return &pfelfFile{f: f}, nil
}

type pfelfFile struct {
	f       *pfelf.File
	symbols *libpf.SymbolMap
}

func (p *pfelfFile) Close() error {
	p.f.Close()
	return nil
}

func (p *pfelfFile) GetBuildID() (string, error) {
	return p.f.GetBuildID()
}

func (p *pfelfFile) GoVersion() (string, error) {
	return p.f.GoVersion()
}

func (p *pfelfFile) LookupSymbol(name string) (SymbolInfo, error) {
	if p.symbols == nil {
		symbols, err := p.f.ReadSymbols()
		if err != nil {
			return SymbolInfo{}, err
		}
		p.symbols = symbols
	}

	sym, err := p.symbols.LookupSymbol(libpf.SymbolName(name))
	if err != nil {
		return SymbolInfo{}, err
	}
	return SymbolInfo{
		Name:    name,
		Address: uint64(sym.Address),
	}, nil
}

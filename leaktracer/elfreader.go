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
	"debug/buildinfo"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// SymbolInfo describes one symbol of the host executable.
type SymbolInfo struct {
	Name    string
	Address uint64
	Size    uint64
}

// ELFReader reads the host executable's debug information for report
// metadata and symbol lookups. Users can provide their own optimized
// implementation (e.g. using ebpf-profiler's pfelf, see PfelfReader) while
// leaktracer ships a default one built on debug/elf.
type ELFReader interface {
	// Open opens an ELF file for reading.
	Open(path string) (ELFFile, error)
}

// ELFFile represents an open ELF file.
type ELFFile interface {
	// Close closes the ELF file.
	Close() error

	// GetBuildID returns the build ID of the ELF file.
	GetBuildID() (string, error)

	// GoVersion returns the Go version the binary was built with.
	// Returns an error if this is not a Go binary.
	GoVersion() (string, error)

	// LookupSymbol looks up a symbol by name and returns its address.
	// Returns an error if the symbol is not found.
	LookupSymbol(name string) (SymbolInfo, error)
}

// defaultELFReader is the default implementation using debug/elf.
type defaultELFReader struct{}

// DefaultELFReader returns the default ELF reader implementation using
// debug/elf.
func DefaultELFReader() ELFReader {
	return &defaultELFReader{}
}

func (r *defaultELFReader) Open(path string) (ELFFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	elfFile, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &defaultELFFile{
		file:    f,
		elfFile: elfFile,
	}, nil
}

// defaultELFFile implements ELFFile using debug/elf.
type defaultELFFile struct {
	file    *os.File
	elfFile *elf.File
}

func (f *defaultELFFile) Close() error {
	f.elfFile.Close()
	return f.file.Close()
}

func (f *defaultELFFile) GetBuildID() (string, error) {
	// The GNU build ID lives in a PT_NOTE segment.
	for _, prog := range f.elfFile.Progs {
		if prog.Type != elf.PT_NOTE {
			continue
		}

		notes, err := readNotes(prog.Open(), f.elfFile.ByteOrder)
		if err != nil {
			continue
		}

		for _, note := range notes {
			if note.Type == 3 && note.Name == "GNU" { // NT_GNU_BUILD_ID = 3
				return fmt.Sprintf("%x", note.Desc), nil
			}
		}
	}

	// Go binaries built without a GNU note still carry the Go build ID.
	if sec := f.elfFile.Section(".note.go.buildid"); sec != nil {
		data, err := sec.Data()
		if err == nil && len(data) > 16 {
			// Skip the 16-byte note header.
			return string(data[16:]), nil
		}
	}

	return "", errors.New("build ID not found")
}

func (f *defaultELFFile) GoVersion() (string, error) {
	bi, err := buildinfo.Read(f.file)
	if err != nil {
		return "", err
	}

	if bi != nil && bi.GoVersion != "" {
		return bi.GoVersion, nil
	}

	return "", errors.New("go version not found")
}

func (f *defaultELFFile) LookupSymbol(name string) (SymbolInfo, error) {
	for _, sym := range f.readSymbols() {
		if sym.Name == name {
			return sym, nil
		}
	}
	return SymbolInfo{}, fmt.Errorf("symbol %s not found", name)
}

func (f *defaultELFFile) readSymbols() []SymbolInfo {
	return collectSymbols(f.elfFile)
}

// collectSymbols merges the static and dynamic symbol tables. A missing
// table is not an error; stripped binaries just yield fewer symbols.
func collectSymbols(ef *elf.File) []SymbolInfo {
	var out []SymbolInfo
	for _, load := range []func() ([]elf.Symbol, error){ef.Symbols, ef.DynamicSymbols} {
		syms, err := load()
		if err != nil {
			continue
		}
		for _, sym := range syms {
			if sym.Name == "" || sym.Value == 0 {
				continue
			}
			out = append(out, SymbolInfo{
				Name:    sym.Name,
				Address: sym.Value,
				Size:    sym.Size,
			})
		}
	}
	return out
}

// note represents an ELF note.
type note struct {
	Name string
	Type uint32
	Desc []byte
}

// readNotes reads ELF notes from a reader.
func readNotes(r io.Reader, order binary.ByteOrder) ([]note, error) {
	var notes []note

	for {
		var nameSize, descSize, noteType uint32

		// Read note header
		if err := binary.Read(r, order, &nameSize); err != nil {
			if err == io.EOF {
				break
			}
			return notes, err
		}
		if err := binary.Read(r, order, &descSize); err != nil {
			return notes, err
		}
		if err := binary.Read(r, order, &noteType); err != nil {
			return notes, err
		}

		// Name is padded to 4 bytes and NUL terminated.
		namePadded := (nameSize + 3) &^ 3
		nameBytes := make([]byte, namePadded)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return notes, err
		}

		name := string(nameBytes[:nameSize])
		if nameSize > 0 && name[nameSize-1] == 0 {
			name = name[:nameSize-1]
		}

		// Descriptor is padded to 4 bytes as well.
		descPadded := (descSize + 3) &^ 3
		desc := make([]byte, descPadded)
		if _, err := io.ReadFull(r, desc); err != nil {
			return notes, err
		}

		notes = append(notes, note{
			Name: name,
			Type: noteType,
			Desc: desc[:descSize],
		})
	}

	return notes, nil
}

// globalELFReader holds the current ELF reader implementation.
var globalELFReader ELFReader = DefaultELFReader()

// SetELFReader sets the global ELF reader implementation. Call it before
// Setup so the executable inspection uses it.
func SetELFReader(reader ELFReader) {
	globalELFReader = reader
}

// GetELFReader returns the current ELF reader implementation.
func GetELFReader() ELFReader {
	return globalELFReader
}

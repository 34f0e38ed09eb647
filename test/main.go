package main

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"leaktracer.dev/leaktracer/leaktracer"
)

// Standalone workload for exercising the tracer end to end: three
// functions allocate with distinct patterns, then the table is printed
// through the package-level access point.
func main() {
	state, err := leaktracer.Setup(leaktracer.Config{Modules: []string{"main"}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	mem := state.Allocator()

	steady(mem)
	burst(mem)
	leaky(mem)

	err = leaktracer.WithSymbolTable(func(table *leaktracer.SymbolTable) error {
		for _, st := range table.Snapshot() {
			fmt.Printf("%-40s %8d bytes %6d calls\n", st.Name, st.Allocated, st.Count)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
		os.Exit(1)
	}
}

func steady(mem memory.Allocator) {
	for i := 0; i < 100; i++ {
		buf := mem.Allocate(256)
		mem.Free(buf)
	}
}

func burst(mem memory.Allocator) {
	bufs := make([][]byte, 0, 32)
	for i := 0; i < 32; i++ {
		bufs = append(bufs, mem.Allocate(4096))
	}
	for _, b := range bufs {
		mem.Free(b)
	}
}

var retained [][]byte

func leaky(mem memory.Allocator) {
	for i := 0; i < 10; i++ {
		retained = append(retained, mem.Allocate(1024))
	}
}

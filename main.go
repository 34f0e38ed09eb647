package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"

	"leaktracer.dev/leaktracer/leaktracer"
)

func main() {
	fs := flag.NewFlagSet("leaktracer", flag.ExitOnError)
	var (
		modules   = fs.String("modules", "main", "comma-separated function name prefixes to attribute")
		pprofOut  = fs.String("pprof", "", "write a pprof profile to this file on exit")
		symbolize = fs.Bool("symbolize", true, "resolve unnamed frames against the executable's ELF symbols")
		verbose   = fs.Bool("v", false, "enable debug logging")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("LEAKTRACER")); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	leaktracer.SetELFReader(leaktracer.PfelfReader())

	state, err := leaktracer.Setup(leaktracer.Config{
		Modules:   strings.Split(*modules, ","),
		Symbolize: *symbolize,
		Verbose:   *verbose,
	})
	if err != nil {
		log.Fatalf("setting up tracer: %v", err)
	}

	runWorkload(state.Allocator())

	if err := state.Report(&leaktracer.WriterReporter{W: os.Stdout}); err != nil {
		log.Fatalf("reporting: %v", err)
	}
	fmt.Printf("\nlive: %d bytes, gross: %d bytes\n",
		state.Allocator().Allocated(), state.Allocator().TotalAllocated())

	if *pprofOut != "" {
		if err := writeProfile(state, *pprofOut); err != nil {
			log.Fatalf("writing profile: %v", err)
		}
		log.WithField("path", *pprofOut).Info("wrote pprof profile")
	}
}

// cache keeps buffers reachable so the workload shows sustained growth next
// to the transient allocations in scratchWork.
var cache [][]byte

func runWorkload(mem memory.Allocator) {
	loadIndex(mem)
	for i := 0; i < 8; i++ {
		growCache(mem, 1024*(i+1))
	}
	scratchWork(mem)
}

func loadIndex(mem memory.Allocator) {
	buf := mem.Allocate(64 * 1024)
	defer mem.Free(buf)
	for i := range buf {
		buf[i] = byte(i)
	}
}

func growCache(mem memory.Allocator, size int) {
	buf := mem.Allocate(size)
	// grow it once to exercise reallocation accounting
	buf = mem.Reallocate(size*2, buf)
	cache = append(cache, buf)
}

func scratchWork(mem memory.Allocator) {
	for i := 0; i < 16; i++ {
		buf := mem.Allocate(512)
		mem.Free(buf)
	}
}

func writeProfile(state *leaktracer.State, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	prof := leaktracer.ToPprof(state.Snapshot(), state.Meta())
	return prof.Write(f)
}

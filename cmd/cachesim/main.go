// Command cachesim drives the cache/DRAM hierarchy against a memory
// access trace and reports hit/miss statistics for each cache level;
// row-buffer outcomes are not counted or reported. It is the
// issuer/shell around the core model (spec.md §1, §6): it owns the cycle
// counter, feeds addresses in, and observes HIT/MISS_WAIT/NO_MSHR, but it
// is not itself part of the timing model.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/hierarchy"
)

var (
	configPath = flag.String("config", "", "Path to simulator configuration JSON file")
	tracePath  = flag.String("trace", "", "Path to a memory access trace file (one \"0xADDR I|D\" per line); a synthetic trace is used if omitted")
	verbose    = flag.Bool("v", false, "Verbose per-access output")
	maxCycles  = flag.Uint64("max-cycles", 10_000_000, "Abort the run if this many cycles elapse without finishing the trace")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
)

// access is one trace entry: an address and which L1 it targets.
type access struct {
	address uint32
	which   hierarchy.CacheKind
}

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	cfg := config.DefaultSimConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	accesses, err := loadTrace(*tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
		os.Exit(1)
	}

	policy, err := cfg.CachePolicy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving policy: %v\n", err)
		os.Exit(1)
	}

	var tracer hierarchy.Tracer
	if *verbose {
		tracer = log.New(os.Stdout, "", 0).Printf
	}

	h, err := hierarchy.New(policy, cfg.Timing(), hierarchy.WithTracer(tracer))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building hierarchy: %v\n", err)
		os.Exit(1)
	}

	finalCycle, err := run(h, accesses, *maxCycles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	report(h, accesses, finalCycle)
}

// run drives the hierarchy one access at a time: each cycle first
// observes completions from the previous cycle's tick (spec.md §5's fixed
// ordering), then attempts the pending access, then ticks the controller.
// It stalls on MISS_WAIT by retrying the same access next cycle and
// advances to the next access once one returns HIT.
func run(h *hierarchy.Hierarchy, accesses []access, budget uint64) (uint64, error) {
	cycle := uint64(0)
accessLoop:
	for _, a := range accesses {
		for {
			if cycle >= budget {
				return cycle, fmt.Errorf("cachesim: exceeded max-cycles budget of %d without completing trace", budget)
			}

			if h.CheckFillReady(a.which, a.address) {
				if err := h.CompleteL1Fill(a.which, a.address); err != nil {
					return cycle, err
				}
			}

			res, err := h.L1Access(a.which, a.address, cycle)
			if err != nil {
				return cycle, err
			}

			if err := h.Tick(cycle); err != nil {
				return cycle, err
			}
			cycle++

			switch res {
			case hierarchy.AccessHit:
				continue accessLoop
			case hierarchy.AccessNoMSHR:
				return cycle, fmt.Errorf("cachesim: MSHR file exhausted at cycle %d, address 0x%08x", cycle, a.address)
			}
			// AccessMissWait: retry the same access next cycle until it
			// either hits (coalesced or freshly filled) or completes.
		}
	}
	return cycle, nil
}

func report(h *hierarchy.Hierarchy, accesses []access, finalCycle uint64) {
	l1i := h.L1(hierarchy.I).Stats()
	l1d := h.L1(hierarchy.D).Stats()
	l2 := h.L2().Stats()

	fmt.Printf("\nSimulation complete: %d accesses, %d cycles\n", len(accesses), finalCycle)
	fmt.Printf("\nL1-I: probes=%d hits=%d misses=%d (hit rate %.1f%%)\n",
		l1i.Probes, l1i.Hits, l1i.Misses, hitRate(l1i.Hits, l1i.Probes))
	fmt.Printf("L1-D: probes=%d hits=%d misses=%d (hit rate %.1f%%)\n",
		l1d.Probes, l1d.Hits, l1d.Misses, hitRate(l1d.Hits, l1d.Probes))
	fmt.Printf("L2:   probes=%d hits=%d misses=%d (hit rate %.1f%%)\n",
		l2.Probes, l2.Hits, l2.Misses, hitRate(l2.Hits, l2.Probes))
}

func hitRate(hits, probes uint64) float64 {
	if probes == 0 {
		return 0
	}
	return 100.0 * float64(hits) / float64(probes)
}

// loadTrace reads a trace file of "0xADDR I|D" lines, or generates a
// small synthetic pointer-chase-like trace over a handful of cache lines
// if path is empty — enough to exercise cold misses, coalescing, and
// reuse without requiring a real workload (microbenchmark generation is
// explicitly out of this simulator's scope; spec.md §1).
func loadTrace(path string) ([]access, error) {
	if path == "" {
		return syntheticTrace(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var accesses []access
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("trace line %d: expected \"0xADDR I|D\", got %q", lineNo, line)
		}

		addrVal, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: bad address %q: %w", lineNo, fields[0], err)
		}

		var which hierarchy.CacheKind
		switch strings.ToUpper(fields[1]) {
		case "I":
			which = hierarchy.I
		case "D":
			which = hierarchy.D
		default:
			return nil, fmt.Errorf("trace line %d: kind must be I or D, got %q", lineNo, fields[1])
		}

		accesses = append(accesses, access{address: uint32(addrVal), which: which})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return accesses, nil
}

func syntheticTrace() []access {
	rng := rand.New(rand.NewPCG(1, 1))
	var accesses []access

	base := uint32(0x1000)
	for i := 0; i < 16; i++ {
		accesses = append(accesses, access{address: base + uint32(i)*hierarchy.BlockSize, which: hierarchy.D})
	}
	// Re-reference the same lines to exercise L1 hits.
	for i := 0; i < 16; i++ {
		accesses = append(accesses, access{address: base + uint32(i)*hierarchy.BlockSize, which: hierarchy.D})
	}
	// A handful of addresses scattered across rows to exercise row-buffer
	// hit/conflict paths. The 2 KiB stride keeps every one in bank 0.
	for i := 0; i < 8; i++ {
		accesses = append(accesses, access{address: base + uint32(rng.IntN(64))*hierarchy.BlockSize*64, which: hierarchy.D})
	}

	return accesses
}

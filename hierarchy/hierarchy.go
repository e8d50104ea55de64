// Package hierarchy assembles the L1-I, L1-D, and L2 caches, the shared
// MSHR file, and the memory controller into the MemoryHierarchy aggregate
// the issuer drives one cycle at a time (spec.md §4.D, §9's note on
// replacing the source's global mutable cache/MSHR arrays with an owned
// aggregate passed by reference).
package hierarchy

import (
	"github.com/sarchlab/cachesim/addr"
	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/dram"
	"github.com/sarchlab/cachesim/memctrl"
	"github.com/sarchlab/cachesim/mshr"
)

// BlockSize is the uniform cache-line size across L1-I, L1-D, and L2
// (spec.md §4.F's constants table: "block 32 B").
const BlockSize = 32

// L2HitLatency is the fixed cycle cost of an L2 hit observed from L1
// (spec.md §4.F: L2_HIT_LATENCY).
const L2HitLatency uint64 = 15

// CacheKind names which L1 an access targets.
type CacheKind int

const (
	I CacheKind = iota
	D
)

// String renders a CacheKind for trace output.
func (k CacheKind) String() string {
	if k == I {
		return "I"
	}
	return "D"
}

// AccessResult is the outcome of L1Access (spec.md §4.D / §6).
type AccessResult int

const (
	AccessHit AccessResult = iota
	AccessMissWait
	AccessNoMSHR
)

// String renders an AccessResult for trace output.
func (r AccessResult) String() string {
	switch r {
	case AccessHit:
		return "HIT"
	case AccessMissWait:
		return "MISS_WAIT"
	case AccessNoMSHR:
		return "NO_MSHR"
	default:
		return "?"
	}
}

// Tracer receives one formatted diagnostic line per traced hierarchy
// event: an L1 probe outcome, or an L1 fill completion. This is the
// optional per-cycle trace sink the issuer wires to a stdlib log.Logger
// when it wants per-access tracing, and leaves nil (no-op) otherwise —
// the same plain-printf diagnostic texture as
// original_source/lab2/src/cache.c's "Hit L1 cache\r\n", made pluggable
// instead of an unconditional print.
type Tracer func(format string, args ...any)

func noopTracer(string, ...any) {}

// L1IGeometry, L1DGeometry, L2Geometry are spec.md §4.F's fixed cache
// geometries: L1-I 8 KiB 4-way, L1-D 64 KiB 8-way, L2 256 KiB 16-way,
// all with 32 B blocks.
func L1IGeometry() addr.Geometry { return addr.Geometry{NumSets: 64, NumWays: 4, BlockSize: BlockSize} }
func L1DGeometry() addr.Geometry {
	return addr.Geometry{NumSets: 256, NumWays: 8, BlockSize: BlockSize}
}
func L2Geometry() addr.Geometry {
	return addr.Geometry{NumSets: 512, NumWays: 16, BlockSize: BlockSize}
}

// Hierarchy is the MemoryHierarchy aggregate: two L1s, an L2, the MSHR
// file they share, and the memory controller that drives L2-miss fills.
type Hierarchy struct {
	l1i *cache.Cache
	l1d *cache.Cache
	l2  *cache.Cache

	mshrs  *mshr.File
	ctl    *memctrl.Controller
	tracer Tracer
}

// Option configures a Hierarchy at construction time.
type Option func(*Hierarchy)

// WithTracer installs a Tracer that receives one line per L1 probe
// outcome and fill completion. A nil Tracer leaves the default no-op in
// place.
func WithTracer(t Tracer) Option {
	return func(h *Hierarchy) {
		if t != nil {
			h.tracer = t
		}
	}
}

// New builds a Hierarchy with the fixed geometries from spec.md §4.F,
// all three caches using policy, a shared MSHR file, and a memory
// controller wired to timing.
func New(policy cache.Policy, timing dram.Timing, opts ...Option) (*Hierarchy, error) {
	l1i, err := cache.New(L1IGeometry(), policy)
	if err != nil {
		return nil, err
	}
	l1d, err := cache.New(L1DGeometry(), policy)
	if err != nil {
		return nil, err
	}
	l2, err := cache.New(L2Geometry(), policy)
	if err != nil {
		return nil, err
	}

	mshrs := mshr.New()
	h := &Hierarchy{
		l1i:    l1i,
		l1d:    l1d,
		l2:     l2,
		mshrs:  mshrs,
		ctl:    memctrl.New(mshrs, l2, timing, mshr.NumEntries),
		tracer: noopTracer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// L1 returns the L1-I or L1-D cache for introspection (statistics, tests).
func (h *Hierarchy) L1(which CacheKind) *cache.Cache {
	if which == I {
		return h.l1i
	}
	return h.l1d
}

// L2 returns the L2 cache for introspection.
func (h *Hierarchy) L2() *cache.Cache { return h.l2 }

// Controller returns the memory controller for introspection.
func (h *Hierarchy) Controller() *memctrl.Controller { return h.ctl }

func blockAlign(address uint32) uint32 {
	return address &^ uint32(BlockSize-1)
}

func (h *Hierarchy) sourceFor(which CacheKind) mshr.Source {
	if which == I {
		return mshr.SourceInstr
	}
	return mshr.SourceData
}

// L1Access performs one cycle's worth of l1_access (spec.md §4.D):
// probe L1; on miss, coalesce in the MSHR file or probe L2 the same
// cycle, allocating an MSHR and either scheduling a fixed-latency L2-hit
// fill or leaving the MSHR for the memory controller to pick up.
func (h *Hierarchy) L1Access(which CacheKind, address uint32, currentCycle uint64) (AccessResult, error) {
	l1 := h.L1(which)

	res, err := l1.Probe(address)
	if err != nil {
		return 0, err
	}
	if res.Hit {
		h.tracer("cycle %d l1-%s 0x%08x %s", currentCycle, which, address, AccessHit)
		return AccessHit, nil
	}

	blockAddr := blockAlign(address)
	if _, found := h.mshrs.Find(blockAddr); found {
		h.tracer("cycle %d l1-%s 0x%08x %s (coalesced)", currentCycle, which, address, AccessMissWait)
		return AccessMissWait, nil
	}

	idx, err := h.mshrs.Allocate(blockAddr, h.sourceFor(which))
	if err != nil {
		h.tracer("cycle %d l1-%s 0x%08x %s", currentCycle, which, address, AccessNoMSHR)
		return AccessNoMSHR, nil
	}

	l2Res, err := h.l2.Probe(address)
	if err != nil {
		return 0, err
	}
	if l2Res.Hit {
		h.mshrs.SetFillReadyCycle(idx, currentCycle+L2HitLatency)
		h.tracer("cycle %d l1-%s 0x%08x %s (l2 hit)", currentCycle, which, address, AccessMissWait)
	} else {
		// On an L2 miss, fill_ready_cycle stays at its post-Allocate zero
		// value — the sentinel the memory controller watches for to admit
		// this MSHR into its request queue.
		h.tracer("cycle %d l1-%s 0x%08x %s (l2 miss, queued)", currentCycle, which, address, AccessMissWait)
	}

	return AccessMissWait, nil
}

// CheckFillReady reports whether address's outstanding L1 fill is done
// (spec.md §6: check_l1_fill_ready).
func (h *Hierarchy) CheckFillReady(which CacheKind, address uint32) bool {
	idx, found := h.mshrs.Find(blockAlign(address))
	if !found {
		return false
	}
	return h.mshrs.Get(idx).Done
}

// CompleteL1Fill installs address into the given L1 and frees its MSHR
// (spec.md §4.D / §6: complete_l1_fill).
func (h *Hierarchy) CompleteL1Fill(which CacheKind, address uint32) error {
	blockAddr := blockAlign(address)
	idx, found := h.mshrs.Find(blockAddr)
	if !found {
		return nil
	}

	l1 := h.L1(which)
	if _, err := l1.Install(address); err != nil {
		return err
	}
	h.mshrs.Free(idx)
	h.tracer("l1-%s 0x%08x fill complete", which, address)
	return nil
}

// Tick drives the memory controller one cycle (spec.md §6:
// memory_controller_cycle), completing due MSHRs (installing into L2 for
// DRAM-routed fills), admitting new L2 misses, and scheduling at most one
// DRAM request.
func (h *Hierarchy) Tick(currentCycle uint64) error {
	return h.ctl.Tick(currentCycle)
}

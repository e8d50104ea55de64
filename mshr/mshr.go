// Package mshr implements the MSHR (Miss Status Holding Register) File: a
// small fixed-size table of outstanding L1-miss records that coalesces
// concurrent requests to the same block and tracks fill readiness.
package mshr

import "errors"

// NumEntries is the fixed MSHR file size (spec.md §4: NUM_MSHR).
const NumEntries = 16

// ErrNoMSHR is returned by Allocate when the file is full. Per spec.md §7
// this "should not happen in practice" for the target workloads, but the
// return path exists for the issuer to stall on.
var ErrNoMSHR = errors.New("mshr: no free entry available")

// Source distinguishes which L1 path (instruction or data) a miss
// originated from; the memory controller uses it to break FR-FCFS ties
// (spec.md §4.F priority 3: DATA over FETCH).
type Source int

const (
	SourceInstr Source = iota
	SourceData
)

// Entry is one MSHR record (spec.md §3). FillReadyCycle uses the
// original's sentinel convention: 0 means "not yet scheduled", 1 means
// "queued but not yet given a real deadline", and any value > 1 is the
// real deadline cycle.
type Entry struct {
	Address        uint32 // block-aligned
	Valid          bool
	Done           bool
	FillReadyCycle uint64
	Source         Source
}

// File is the fixed-size MSHR table. Entries are addressed by index
// rather than by raw pointer (spec.md §9's design note on eliminating
// pointer aliasing between the memory controller's request queue and the
// MSHR table): callers hold an int handle, not a *Entry.
type File struct {
	entries [NumEntries]Entry
}

// New creates an empty MSHR file.
func New() *File {
	return &File{}
}

// Find returns the index of the valid MSHR whose block-aligned address
// matches blockAddr, or (-1, false) if none exists.
func (f *File) Find(blockAddr uint32) (int, bool) {
	for i := range f.entries {
		if f.entries[i].Valid && f.entries[i].Address == blockAddr {
			return i, true
		}
	}
	return -1, false
}

// Allocate claims the first free entry for blockAddr, initializing it to
// (valid, done=false, fill_ready_cycle=0). Returns ErrNoMSHR if the file
// is full.
func (f *File) Allocate(blockAddr uint32, source Source) (int, error) {
	for i := range f.entries {
		if !f.entries[i].Valid {
			f.entries[i] = Entry{
				Address: blockAddr,
				Valid:   true,
				Source:  source,
			}
			return i, nil
		}
	}
	return -1, ErrNoMSHR
}

// Get returns a copy of the entry at index i.
func (f *File) Get(i int) Entry {
	return f.entries[i]
}

// Free releases the entry at index i, making it available for reuse. It
// is the caller's responsibility to have consumed the fill first (spec.md
// §3's MSHR lifecycle: "consumed by L1 fill and freed").
func (f *File) Free(i int) {
	f.entries[i] = Entry{}
}

// SetFillReadyCycle updates the deadline of the entry at index i.
func (f *File) SetFillReadyCycle(i int, cycle uint64) {
	f.entries[i].FillReadyCycle = cycle
}

// MarkDone marks the entry at index i as done.
func (f *File) MarkDone(i int) {
	f.entries[i].Done = true
}

// Each calls fn once per valid entry with its index, for callers (the
// memory controller) that must scan the whole file per cycle.
func (f *File) Each(fn func(index int, e Entry)) {
	for i := range f.entries {
		if f.entries[i].Valid {
			fn(i, f.entries[i])
		}
	}
}

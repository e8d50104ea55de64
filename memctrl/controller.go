// Package memctrl implements the Memory Controller: the per-cycle
// FR-FCFS DRAM command scheduler that admits L2 misses, enforces
// command-bus / data-bus / bank exclusion, and computes each request's
// fill-ready cycle (spec.md §4.F).
package memctrl

import (
	"errors"
	"fmt"

	"github.com/sarchlab/cachesim/addr"
	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/dram"
	"github.com/sarchlab/cachesim/mshr"
)

// ErrQueueOverflow is returned when the request queue's configured
// capacity is exceeded. Spec.md §3 describes the queue as "effectively
// unbounded (asserts on overflow)"; this is the Go-idiomatic rendering of
// that assertion — a returned error the harness treats as fatal, rather
// than a library call to panic/os.Exit (see DESIGN.md).
var ErrQueueOverflow = errors.New("memctrl: request queue overflow")

// L2ToMemLatency is the wire delay from L2 to the memory controller
// (spec.md §4.F: L2_TO_MEM_LATENCY).
const L2ToMemLatency uint64 = 5

// Request is one queued memory request (spec.md §3's MemRequest). It
// holds an index into the MSHR file rather than a raw pointer, per
// spec.md §9's design note on eliminating pointer aliasing between the
// queue and the MSHR table.
type Request struct {
	Address      uint32
	ArrivalCycle uint64
	Priority     mshr.Source
	MSHRIndex    int
	Valid        bool
}

// Controller is the memory controller: request queue, DRAM banks, and
// the MSHR file / L2 cache it drives completions into.
type Controller struct {
	mshrs  *mshr.File
	l2     *cache.Cache
	timing dram.Timing
	banks  dram.Banks

	queue    []Request
	maxQueue int

	// cmdBusFreeCycle and dataBusFreeCycle are the cycles at which the
	// single shared command bus and data bus next become available,
	// per spec.md §3's MemController fields. Unlike bank state, these
	// are never recomputed from a "busy window" — they're advanced
	// exactly once, on every issue, and checked unconditionally, so bus
	// exclusion holds regardless of how BankBusyCycles/DataTransferCycles
	// are configured relative to each other.
	cmdBusFreeCycle  uint64
	dataBusFreeCycle uint64

	// fromDRAM tracks, per MSHR index, whether that entry's fill is
	// routed through this controller (an L2 miss) as opposed to an L2
	// hit set directly by the L1/L2 probe pipeline. Only entries routed
	// through DRAM get installed into L2 on completion (spec.md §9's
	// resolution of the L2-insertion-timing open question).
	fromDRAM [mshr.NumEntries]bool
}

// New creates a Controller. maxQueue bounds the request queue; spec.md
// treats the queue as "effectively unbounded", so callers should size it
// generously (e.g. mshr.NumEntries, since at most one queued request can
// exist per MSHR at a time).
func New(mshrs *mshr.File, l2 *cache.Cache, timing dram.Timing, maxQueue int) *Controller {
	return &Controller{
		mshrs:    mshrs,
		l2:       l2,
		timing:   timing,
		maxQueue: maxQueue,
	}
}

// Banks exposes bank state for introspection/tests.
func (c *Controller) Banks() *dram.Banks { return &c.banks }

// Queue exposes the current request queue for introspection/tests.
func (c *Controller) Queue() []Request { return c.queue }

// Tick runs one cycle of the memory controller, in the fixed order
// spec.md §5 mandates: (1) complete due MSHRs (installing into L2 for
// DRAM-routed fills), (2) admit new L2 misses, (3)+(4) FR-FCFS-select a
// schedulable request, (5) issue it.
func (c *Controller) Tick(currentCycle uint64) error {
	c.ageBanks(currentCycle)
	c.completeFills(currentCycle)
	if err := c.admitMisses(currentCycle); err != nil {
		return err
	}
	c.scheduleOne(currentCycle)
	return nil
}

// ageBanks clears InFlightNumCommands back to 0 once a bank's busy window
// has elapsed, so "in_flight_num_commands=0 means bank is idle this
// cycle" (spec.md §3) is true as of currentCycle for the target-bank-busy
// check in schedulable. HasOpenRow/OpenRow persist — only a future
// conflicting access closes the row buffer. Cross-request bus exclusion
// does not depend on this: it's tracked separately by cmdBusFreeCycle/
// dataBusFreeCycle, which are never "aged" back open early.
func (c *Controller) ageBanks(currentCycle uint64) {
	for i := range c.banks {
		b := &c.banks[i]
		if b.InFlightNumCommands == 0 {
			continue
		}
		busyEnd := c.timing.BankBusyEnd(b.InFlightRequestStart, b.InFlightNumCommands)
		if currentCycle > busyEnd {
			b.InFlightNumCommands = 0
		}
	}
}

// completeFills marks MSHRs done once their deadline has arrived, and
// installs the corresponding block into L2 for fills that came from DRAM.
func (c *Controller) completeFills(currentCycle uint64) {
	var toComplete []int
	c.mshrs.Each(func(i int, e mshr.Entry) {
		if !e.Done && e.FillReadyCycle > 1 && currentCycle >= e.FillReadyCycle {
			toComplete = append(toComplete, i)
		}
	})

	for _, i := range toComplete {
		if c.fromDRAM[i] {
			entry := c.mshrs.Get(i)
			_, _ = c.l2.Install(entry.Address)
			c.fromDRAM[i] = false
		}
		c.mshrs.MarkDone(i)
	}
}

// admitMisses queues a MemRequest for every MSHR that reached L2-miss
// status this cycle (valid, not done, FillReadyCycle==0 — "not yet
// scheduled"), marking it with the sentinel FillReadyCycle=1 so it is not
// re-admitted next cycle (spec.md §4.F step 2).
func (c *Controller) admitMisses(currentCycle uint64) error {
	var toAdmit []int
	c.mshrs.Each(func(i int, e mshr.Entry) {
		if !e.Done && e.FillReadyCycle == 0 {
			toAdmit = append(toAdmit, i)
		}
	})

	for _, i := range toAdmit {
		if len(c.queue) >= c.maxQueue {
			return fmt.Errorf("%w: capacity %d", ErrQueueOverflow, c.maxQueue)
		}

		entry := c.mshrs.Get(i)
		priority := mshr.SourceInstr
		if entry.Source == mshr.SourceData {
			priority = mshr.SourceData
		}

		c.queue = append(c.queue, Request{
			Address:      entry.Address,
			ArrivalCycle: currentCycle + L2ToMemLatency,
			Priority:     priority,
			MSHRIndex:    i,
			Valid:        true,
		})
		c.fromDRAM[i] = true
		c.mshrs.SetFillReadyCycle(i, 1)
	}
	return nil
}

// scheduleOne selects the best schedulable request by FR-FCFS and, if one
// exists, issues it against its target bank.
func (c *Controller) scheduleOne(currentCycle uint64) {
	bestIdx := -1
	var bestRow dram.RowBufferStatus

	for i := range c.queue {
		req := &c.queue[i]
		if !req.Valid || currentCycle < req.ArrivalCycle {
			continue
		}

		bank, status, ok := c.classify(req.Address)
		if !ok || !c.schedulable(bank, status, currentCycle) {
			continue
		}

		if bestIdx == -1 {
			bestIdx = i
			bestRow = status
			continue
		}

		best := &c.queue[bestIdx]
		if better(req, status, best, bestRow) {
			bestIdx = i
			bestRow = status
		}
	}

	if bestIdx == -1 {
		return
	}

	c.issue(bestIdx, currentCycle)
}

// classify decomposes address into (bank, row) and returns the bank's
// current row-buffer status.
func (c *Controller) classify(address uint32) (bank uint32, status dram.RowBufferStatus, ok bool) {
	d, err := addr.DecodeDRAM(address)
	if err != nil {
		return 0, 0, false
	}
	return d.Bank, c.banks[d.Bank].Status(d.Row), true
}

// better implements spec.md §4.F's FR-FCFS priority order: row-buffer hit
// over non-hit, then earlier arrival, then DATA over FETCH.
func better(cand *Request, candStatus dram.RowBufferStatus, best *Request, bestStatus dram.RowBufferStatus) bool {
	candHit := candStatus == dram.RowBufferHit
	bestHit := bestStatus == dram.RowBufferHit
	if candHit != bestHit {
		return candHit
	}
	if cand.ArrivalCycle != best.ArrivalCycle {
		return cand.ArrivalCycle < best.ArrivalCycle
	}
	return cand.Priority == mshr.SourceData && best.Priority != mshr.SourceData
}

// schedulable implements spec.md §4.F step 4: the target bank must
// currently be idle, and the candidate's command/data spans must not
// start before the shared command/data bus are free.
func (c *Controller) schedulable(bank uint32, status dram.RowBufferStatus, currentCycle uint64) bool {
	if !c.banks[bank].Idle() {
		return false
	}
	if currentCycle < c.cmdBusFreeCycle {
		return false
	}

	numCommands := status.NumCommands()
	dataStart, _ := c.timing.DataSpan(currentCycle, numCommands)
	if dataStart < c.dataBusFreeCycle {
		return false
	}

	return true
}

// issue schedules the request at queue index i: updates the target
// bank's state, computes the MSHR's fill-ready cycle, and removes the
// request from the queue.
func (c *Controller) issue(i int, currentCycle uint64) {
	req := c.queue[i]

	d, err := addr.DecodeDRAM(req.Address)
	if err != nil {
		return
	}
	status := c.banks[d.Bank].Status(d.Row)
	numCommands := status.NumCommands()

	bank := &c.banks[d.Bank]
	bank.InFlightRequestStart = currentCycle
	bank.InFlightNumCommands = numCommands
	bank.Open(d.Row)

	_, lastCmdEnd := c.timing.CommandSpan(currentCycle, numCommands-1)
	c.cmdBusFreeCycle = lastCmdEnd + 1
	_, dataEnd := c.timing.DataSpan(currentCycle, numCommands)
	c.dataBusFreeCycle = dataEnd + 1

	fillReady := c.timing.FillReadyCycle(currentCycle, numCommands)
	c.mshrs.SetFillReadyCycle(req.MSHRIndex, fillReady)

	c.queue = append(c.queue[:i], c.queue[i+1:]...)
}

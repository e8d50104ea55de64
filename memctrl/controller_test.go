package memctrl_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/addr"
	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/dram"
	"github.com/sarchlab/cachesim/memctrl"
	"github.com/sarchlab/cachesim/mshr"
)

func TestMemctrl(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memctrl Suite")
}

func l2Geometry() addr.Geometry {
	return addr.Geometry{NumSets: 512, NumWays: 16, BlockSize: 32}
}

func runUntilDone(c *memctrl.Controller, mshrs *mshr.File, idx int, startCycle uint64, maxCycles uint64) uint64 {
	for cycle := startCycle; cycle < startCycle+maxCycles; cycle++ {
		Expect(c.Tick(cycle)).To(Succeed())
		if mshrs.Get(idx).Done {
			return cycle
		}
	}
	return 0
}

var _ = Describe("Controller", func() {
	var (
		mshrs *mshr.File
		l2    *cache.Cache
		ctl   *memctrl.Controller
	)

	BeforeEach(func() {
		mshrs = mshr.New()
		var err error
		l2, err = cache.New(l2Geometry(), cache.PolicyLRU)
		Expect(err).NotTo(HaveOccurred())
		ctl = memctrl.New(mshrs, l2, dram.DefaultTiming(), mshr.NumEntries)
	})

	It("drives a single cold miss to its fill-ready cycle matching spec.md's scenario 1", func() {
		idx, err := mshrs.Allocate(0x00000000, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())

		// Cycle 0: admit into the queue with arrival_cycle = 0 + 5 = 5.
		Expect(ctl.Tick(0)).To(Succeed())
		Expect(mshrs.Get(idx).FillReadyCycle).To(Equal(uint64(1)))

		done := runUntilDone(ctl, mshrs, idx, 1, 300)
		Expect(done).NotTo(BeZero())

		entry := mshrs.Get(idx)
		Expect(entry.FillReadyCycle).To(Equal(uint64(260)))
		Expect(done).To(Equal(uint64(260)))
	})

	It("installs the block into L2 once a DRAM-routed fill completes", func() {
		idx, err := mshrs.Allocate(0x00000000, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())

		Expect(ctl.Tick(0)).To(Succeed())
		_ = runUntilDone(ctl, mshrs, idx, 1, 300)

		res, err := l2.Probe(0x00000000)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Hit).To(BeTrue())
	})

	It("schedules a same-bank, same-row follow-on as a row-buffer hit", func() {
		idxA, err := mshrs.Allocate(0x00000000, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())

		Expect(ctl.Tick(0)).To(Succeed())
		doneA := runUntilDone(ctl, mshrs, idxA, 1, 300)
		Expect(doneA).To(Equal(uint64(260)))

		// Same bank and same row as the first request (only a column bit
		// outside the bank/row fields differs), so this reuses the row the
		// first request left open.
		followOn := uint32(0x00000100)
		da, _ := addr.DecodeDRAM(0x00000000)
		db, _ := addr.DecodeDRAM(followOn)
		Expect(db.Bank).To(Equal(da.Bank))
		Expect(db.Row).To(Equal(da.Row))

		idxB, err := mshrs.Allocate(followOn, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())

		Expect(ctl.Tick(doneA + 1)).To(Succeed())
		doneB := runUntilDone(ctl, mshrs, idxB, doneA+2, 300)
		Expect(doneB).NotTo(BeZero())

		// Row-buffer hit costs 1 command: fill_ready = issue + 100 + 50 + 5.
		issueCycle := doneB - 155
		Expect(issueCycle).To(BeNumerically(">=", doneA+1))
	})

	It("schedules a same-bank, different-row follow-on as a row-buffer conflict", func() {
		idxA, err := mshrs.Allocate(0x00000000, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctl.Tick(0)).To(Succeed())
		doneA := runUntilDone(ctl, mshrs, idxA, 1, 300)

		// Same bank, different row: flip a high row bit.
		conflictAddr := uint32(0x00002000)
		da, _ := addr.DecodeDRAM(0x00000000)
		db, _ := addr.DecodeDRAM(conflictAddr)
		Expect(db.Bank).To(Equal(da.Bank))
		Expect(db.Row).NotTo(Equal(da.Row))

		idxB, err := mshrs.Allocate(conflictAddr, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())

		Expect(ctl.Tick(doneA + 1)).To(Succeed())
		doneB := runUntilDone(ctl, mshrs, idxB, doneA+2, 400)

		// Row-buffer conflict costs 3 commands: fill_ready = issue + 300 + 50 + 5.
		issueCycle := doneB - 355
		Expect(issueCycle).To(BeNumerically(">=", doneA+1))
	})

	It("admits at most one queued request per MSHR (coalescing upstream)", func() {
		idx, err := mshrs.Allocate(0x1000, mshr.SourceInstr)
		Expect(err).NotTo(HaveOccurred())

		Expect(ctl.Tick(0)).To(Succeed())
		Expect(ctl.Tick(1)).To(Succeed())
		Expect(ctl.Tick(2)).To(Succeed())

		count := 0
		for _, r := range ctl.Queue() {
			if r.Valid && r.MSHRIndex == idx {
				count++
			}
		}
		Expect(count).To(Equal(1))
	})

	It("prioritizes SourceData over SourceInstr on an arrival tie", func() {
		// Both requests target bank 0 (rows 0 and 1), so only one can be
		// scheduled per cycle, forcing the priority comparison to decide.
		idxInstr, err := mshrs.Allocate(0x00000000, mshr.SourceInstr)
		Expect(err).NotTo(HaveOccurred())
		idxData, err := mshrs.Allocate(0x00002000, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())

		Expect(ctl.Tick(0)).To(Succeed())

		// Both admitted with the same arrival_cycle (5); same bank (0) means
		// only one can be scheduled at cycle 5. SourceData must win.
		for cycle := uint64(1); cycle <= 5; cycle++ {
			Expect(ctl.Tick(cycle)).To(Succeed())
		}

		stillQueued := 0
		var remaining mshr.Source
		for _, r := range ctl.Queue() {
			if r.Valid {
				stillQueued++
				remaining = r.Priority
			}
		}
		Expect(stillQueued).To(Equal(1))
		Expect(remaining).To(Equal(mshr.SourceInstr))

		_ = idxInstr
		_ = idxData
	})

	It("returns ErrQueueOverflow once the queue exceeds its configured capacity", func() {
		small := memctrl.New(mshrs, l2, dram.DefaultTiming(), 1)

		_, err := mshrs.Allocate(0x00000000, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())
		_, err = mshrs.Allocate(0x00100000, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())

		Expect(small.Tick(0)).To(MatchError(memctrl.ErrQueueOverflow))
	})

	It("holds a later bank's data-bus span off the bus for the full duration of an earlier bank's transfer, even once the earlier bank itself ages idle", func() {
		// With bank_busy_cycles < data_transfer_cycles, a bank can be
		// marked idle (its own command sequence finished) while its data
		// is still occupying the shared data bus. Bus exclusion must
		// still hold across banks in that window.
		timing := dram.Timing{CmdCycles: 4, BankBusyCycles: 10, DataTransferCycles: 50, MemToL2Latency: 5}
		ctl := memctrl.New(mshrs, l2, timing, mshr.NumEntries)

		idxA, err := mshrs.Allocate(0x00000000, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())
		idxB, err := mshrs.Allocate(0x00000020, mshr.SourceData)
		Expect(err).NotTo(HaveOccurred())

		da, _ := addr.DecodeDRAM(0x00000000)
		db, _ := addr.DecodeDRAM(0x00000020)
		Expect(db.Bank).NotTo(Equal(da.Bank))

		Expect(ctl.Tick(0)).To(Succeed())

		queued := func(idx int) bool {
			for _, r := range ctl.Queue() {
				if r.Valid && r.MSHRIndex == idx {
					return true
				}
			}
			return false
		}

		// Both arrive at cycle 5; A (first admitted) wins the tie and
		// issues then, occupying bank 0's row-buffer-miss data span
		// [25,74] on the shared data bus.
		issuedBAt := uint64(0)
		for cycle := uint64(1); cycle < 100; cycle++ {
			wasQueued := queued(idxB)
			Expect(ctl.Tick(cycle)).To(Succeed())
			if wasQueued && !queued(idxB) {
				issuedBAt = cycle
				break
			}
		}

		Expect(issuedBAt).NotTo(BeZero())
		Expect(issuedBAt).To(Equal(uint64(55)))

		_ = idxA
	})
})

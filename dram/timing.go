package dram

// Timing holds the DRAM command/bus timing constants (spec.md §4.F).
type Timing struct {
	// CmdCycles is how many cycles one DRAM command occupies the shared
	// command/address bus.
	CmdCycles uint64
	// BankBusyCycles is the spacing between successive commands issued to
	// the same bank for one request.
	BankBusyCycles uint64
	// DataTransferCycles is how long a request's data burst occupies the
	// shared data bus.
	DataTransferCycles uint64
	// MemToL2Latency is the wire delay from DRAM back to L2 once the data
	// transfer completes.
	MemToL2Latency uint64
}

// DefaultTiming returns spec.md's fixed DRAM timing constants:
// CMD_CYCLES=4, BANK_BUSY_CYCLES=100, DATA_TF_CYCLES=50,
// MEM_TO_L2_LATENCY=5.
func DefaultTiming() Timing {
	return Timing{
		CmdCycles:          4,
		BankBusyCycles:     100,
		DataTransferCycles: 50,
		MemToL2Latency:     5,
	}
}

// FillReadyCycle computes the cycle at which data returns to L2 for a
// request issued at issueCycle with the given command count (spec.md
// §4.F: "Compute mshr.fill_ready_cycle = current_cycle +
// num_commands·BANK_BUSY_CYCLES + DATA_TF_CYCLES + MEM_TO_L2_LATENCY").
func (t Timing) FillReadyCycle(issueCycle uint64, numCommands int) uint64 {
	return issueCycle + uint64(numCommands)*t.BankBusyCycles + t.DataTransferCycles + t.MemToL2Latency
}

// CommandSpan returns the [start,end] inclusive cycle range (end =
// start+CmdCycles-1) that the k-th command (0-indexed) of a request
// issued at issueCycle occupies on the command bus.
func (t Timing) CommandSpan(issueCycle uint64, k int) (start, end uint64) {
	start = issueCycle + uint64(k)*t.BankBusyCycles
	end = start + t.CmdCycles - 1
	return
}

// DataSpan returns the [start,end] inclusive cycle range a request's data
// burst occupies on the data bus, given its issue cycle and command
// count.
func (t Timing) DataSpan(issueCycle uint64, numCommands int) (start, end uint64) {
	start = issueCycle + uint64(numCommands)*t.BankBusyCycles
	end = start + t.DataTransferCycles - 1
	return
}

// BankBusyEnd returns the last cycle (inclusive) a bank stays occupied by
// a request issued at issueCycle with the given command count.
func (t Timing) BankBusyEnd(issueCycle uint64, numCommands int) uint64 {
	return issueCycle + uint64(numCommands)*t.BankBusyCycles - 1
}

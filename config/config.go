// Package config holds the simulator's JSON-backed configuration: the
// replacement policy and DRAM timing constants, in the same
// Default/Load/Save/Validate/Clone shape as the rest of this codebase's
// config types.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/dram"
)

// SimConfig holds the cache replacement policy and DRAM timing constants
// for one simulation run.
type SimConfig struct {
	// Policy selects the cache replacement strategy: "random", "lru", or
	// "rrip". Default: "lru".
	Policy string `json:"policy"`

	// CmdCycles is how many cycles one DRAM command occupies the shared
	// command/address bus. Default: 4.
	CmdCycles uint64 `json:"cmd_cycles"`

	// BankBusyCycles is the spacing between successive commands issued to
	// the same bank for one request. Default: 100.
	BankBusyCycles uint64 `json:"bank_busy_cycles"`

	// DataTransferCycles is how long a request's data burst occupies the
	// shared data bus. Default: 50.
	DataTransferCycles uint64 `json:"data_transfer_cycles"`

	// MemToL2Latency is the wire delay from DRAM back to L2 once the data
	// transfer completes. Default: 5.
	MemToL2Latency uint64 `json:"mem_to_l2_latency"`
}

// DefaultSimConfig returns a SimConfig with spec-default values.
func DefaultSimConfig() *SimConfig {
	t := dram.DefaultTiming()
	return &SimConfig{
		Policy:             "lru",
		CmdCycles:          t.CmdCycles,
		BankBusyCycles:     t.BankBusyCycles,
		DataTransferCycles: t.DataTransferCycles,
		MemToL2Latency:     t.MemToL2Latency,
	}
}

// LoadConfig loads a SimConfig from a JSON file, starting from defaults so
// a partial file only overrides the fields it sets.
func LoadConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sim config file: %w", err)
	}

	cfg := DefaultSimConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sim config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes a SimConfig to a JSON file.
func (c *SimConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize sim config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sim config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is well-formed.
func (c *SimConfig) Validate() error {
	switch c.Policy {
	case "random", "lru", "rrip":
	default:
		return fmt.Errorf("policy must be one of random, lru, rrip, got %q", c.Policy)
	}
	if c.CmdCycles == 0 {
		return fmt.Errorf("cmd_cycles must be > 0")
	}
	if c.BankBusyCycles == 0 {
		return fmt.Errorf("bank_busy_cycles must be > 0")
	}
	if c.DataTransferCycles == 0 {
		return fmt.Errorf("data_transfer_cycles must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the SimConfig.
func (c *SimConfig) Clone() *SimConfig {
	clone := *c
	return &clone
}

// Timing converts the configured DRAM timing fields into a dram.Timing.
func (c *SimConfig) Timing() dram.Timing {
	return dram.Timing{
		CmdCycles:          c.CmdCycles,
		BankBusyCycles:     c.BankBusyCycles,
		DataTransferCycles: c.DataTransferCycles,
		MemToL2Latency:     c.MemToL2Latency,
	}
}

// CachePolicy resolves the configured policy name to a cache.Policy.
func (c *SimConfig) CachePolicy() (cache.Policy, error) {
	switch c.Policy {
	case "random":
		return cache.PolicyRandom, nil
	case "lru":
		return cache.PolicyLRU, nil
	case "rrip":
		return cache.PolicyRRIP, nil
	default:
		return 0, fmt.Errorf("policy must be one of random, lru, rrip, got %q", c.Policy)
	}
}

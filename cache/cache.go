// Package cache implements the set-associative Cache Array of the memory
// hierarchy: tag/valid storage per block, hit/miss probing, and victim
// selection under a configurable replacement Policy (Random, LRU, or
// 2-bit static RRIP).
package cache

import (
	"fmt"
	"math/rand/v2"

	"github.com/sarchlab/cachesim/addr"
)

// Block is one way within a set: a tag, a valid bit, and policy-specific
// replacement metadata (spec.md §3). Recency is only meaningful under
// PolicyLRU; RRPV is only meaningful under PolicyRRIP.
type Block struct {
	Tag     uint32
	Valid   bool
	Recency uint32 // LRU: 0 = most recently used.
	RRPV    uint8  // RRIP: re-reference prediction value, in [0,3].
}

// Set is one row of NumWays blocks.
type Set struct {
	Blocks []Block
}

// Statistics holds cumulative access counters.
type Statistics struct {
	Probes    uint64
	Hits      uint64
	Misses    uint64
	Installs  uint64
	Evictions uint64
}

// Cache is a set-associative cache array: tag/valid/replacement-metadata
// storage only. It carries no data payload, per spec.md §6 ("It does not
// perform I/O... produces no wire format") — this simulator measures
// timing, not data movement.
type Cache struct {
	geometry addr.Geometry
	policy   Policy
	sets     []Set
	stats    Statistics
	rng      *rand.Rand
}

// Option configures a Cache at construction time, following this
// codebase's functional-option convention.
type Option func(*Cache)

// WithRandSource seeds the deterministic PRNG used by PolicyRandom. Useful
// for choosing specific seeds; if omitted, a PolicyRandom cache gets its
// own PCG source with the fixed seeds (1, 1), so runs are reproducible.
func WithRandSource(seed1, seed2 uint64) Option {
	return func(c *Cache) {
		c.rng = rand.New(rand.NewPCG(seed1, seed2))
	}
}

// New creates a Cache for the given geometry and replacement policy.
// Geometry must satisfy addr.Geometry.Validate (power-of-two sets/ways/
// block size).
func New(geometry addr.Geometry, policy Policy, opts ...Option) (*Cache, error) {
	if err := geometry.Validate(); err != nil {
		return nil, fmt.Errorf("cache: invalid geometry: %w", err)
	}

	sets := make([]Set, geometry.NumSets)
	for i := range sets {
		sets[i] = Set{Blocks: make([]Block, geometry.NumWays)}
	}

	c := &Cache{
		geometry: geometry,
		policy:   policy,
		sets:     sets,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil && policy == PolicyRandom {
		c.rng = rand.New(rand.NewPCG(1, 1))
	}
	return c, nil
}

// Geometry returns the cache's addressing geometry.
func (c *Cache) Geometry() addr.Geometry { return c.geometry }

// Policy returns the cache's replacement policy.
func (c *Cache) Policy() Policy { return c.policy }

// Stats returns a snapshot of cumulative statistics.
func (c *Cache) Stats() Statistics { return c.stats }

// Sets exposes the underlying set array for invariant checks in tests. It
// is not part of the operational contract — probe/install are.
func (c *Cache) Sets() []Set { return c.sets }

// ProbeResult is the outcome of Probe: a hit names the way it landed in.
type ProbeResult struct {
	Hit bool
	Way int
}

// Probe looks up address in the cache. On a hit, it applies the policy's
// hit-path metadata update (LRU: move to recency 0; RRIP: set RRPV to
// IMMEDIATE; Random: none) and returns the hit way.
func (c *Cache) Probe(address uint32) (ProbeResult, error) {
	c.stats.Probes++

	d, err := addr.Decompose(address, c.geometry)
	if err != nil {
		return ProbeResult{}, err
	}

	set := &c.sets[d.Set]
	for way := range set.Blocks {
		b := &set.Blocks[way]
		if b.Valid && b.Tag == d.Tag {
			c.stats.Hits++
			c.onHit(set, way)
			return ProbeResult{Hit: true, Way: way}, nil
		}
	}

	c.stats.Misses++
	return ProbeResult{Hit: false}, nil
}

// Install selects a victim way for address per the cache's replacement
// policy, overwrites its tag, marks it valid, applies the policy's
// install-path metadata update, and returns the way it landed in.
func (c *Cache) Install(address uint32) (int, error) {
	d, err := addr.Decompose(address, c.geometry)
	if err != nil {
		return 0, err
	}

	set := &c.sets[d.Set]
	way := c.selectVictim(set)

	if set.Blocks[way].Valid {
		c.stats.Evictions++
	}

	set.Blocks[way].Tag = d.Tag
	set.Blocks[way].Valid = true
	c.onInstall(set, way)

	c.stats.Installs++
	return way, nil
}

// selectVictim implements spec.md §4.B's victim-selection order: any
// invalid way first (lowest index wins), then the policy-specific rule.
func (c *Cache) selectVictim(set *Set) int {
	for way := range set.Blocks {
		if !set.Blocks[way].Valid {
			return way
		}
	}

	switch c.policy {
	case PolicyRandom:
		return c.rng.IntN(len(set.Blocks))
	case PolicyLRU:
		return lruVictim(set)
	case PolicyRRIP:
		return rripVictim(set)
	default:
		return 0
	}
}

// lruVictim returns the way whose recency equals NumWays-1.
func lruVictim(set *Set) int {
	target := uint32(len(set.Blocks) - 1)
	for way := range set.Blocks {
		if set.Blocks[way].Recency == target {
			return way
		}
	}
	// All ways are valid and form a strict permutation of [0,NumWays), so
	// this point is unreachable; fall back to way 0 defensively.
	return 0
}

// rripVictim scans for a DISTANT (3) way; if none is found, ages every
// valid way's RRPV by one (saturating at 3) and rescans. The loop
// terminates because one round of aging raises at least one valid way to
// 3 whenever the previous max valid RRPV was below 3, and if every way is
// already at 3 the first scan finds one immediately (spec.md §4.B).
func rripVictim(set *Set) int {
	for {
		for way := range set.Blocks {
			if set.Blocks[way].RRPV == rrpvDistant {
				return way
			}
		}
		for way := range set.Blocks {
			b := &set.Blocks[way]
			if b.Valid && b.RRPV < rrpvDistant {
				b.RRPV++
			}
		}
	}
}

// onHit applies the policy's hit-path metadata update to the accessed way.
func (c *Cache) onHit(set *Set, way int) {
	switch c.policy {
	case PolicyLRU:
		updateLRUHit(set, way)
	case PolicyRRIP:
		set.Blocks[way].RRPV = rrpvImmediate
	}
}

// onInstall applies the policy's install-path metadata update to the
// newly installed way.
func (c *Cache) onInstall(set *Set, way int) {
	switch c.policy {
	case PolicyLRU:
		updateLRUInstall(set, way)
	case PolicyRRIP:
		set.Blocks[way].RRPV = rrpvLong
	}
}

// updateLRUHit marks way, an already-valid block being re-referenced, as
// most-recently-used: every other valid way whose recency was strictly
// less than way's previous recency is incremented, and way's own recency
// becomes 0. Ported directly from original_source/lab2/src/cache.c's
// update_lru; correct here because on a hit every valid way's recency
// already forms a permutation, so "less than way's old position" exactly
// identifies the ways that must shift back by one.
func updateLRUHit(set *Set, way int) {
	prev := set.Blocks[way].Recency
	for b := range set.Blocks {
		if b != way && set.Blocks[b].Valid && set.Blocks[b].Recency < prev {
			set.Blocks[b].Recency++
		}
	}
	set.Blocks[way].Recency = 0
}

// updateLRUInstall marks the just-installed way as most-recently-used
// unconditionally: every other currently-valid way's recency is
// incremented by one, and way's own recency becomes 0. Unlike the hit
// path, the installed way's prior recency is don't-care (spec.md §3) —
// using it as a threshold, as the hit-path update does, would leave stale
// zero-initialized recencies on other invalid-turned-valid ways during a
// cold fill and break the strict-permutation invariant. Incrementing
// unconditionally is the standard LRU-stack insert and preserves the
// permutation whether the way came from an invalid slot or an eviction.
func updateLRUInstall(set *Set, way int) {
	for b := range set.Blocks {
		if b != way && set.Blocks[b].Valid {
			set.Blocks[b].Recency++
		}
	}
	set.Blocks[way].Recency = 0
}

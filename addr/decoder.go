// Package addr provides pure address-decomposition functions for the cache
// hierarchy and DRAM models: splitting a 32-bit word-aligned address into
// the (tag, set, offset) fields a set-associative cache probes with, and
// into the (bank, row) fields a banked DRAM uses to resolve row-buffer
// status.
package addr

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrMisaligned is returned when an address is not a multiple of 4 bytes.
// Per spec this is a programmer error in the issuer; callers at the
// simulation boundary are expected to treat it as fatal.
var ErrMisaligned = errors.New("addr: address is not word-aligned")

// Geometry describes a cache's addressing shape: number of sets, ways, and
// block size, all required to be powers of two.
type Geometry struct {
	NumSets   int
	NumWays   int
	BlockSize int
}

// Decomposed holds the (tag, set, offset) fields produced by Decompose.
type Decomposed struct {
	Tag    uint32
	Set    uint32
	Offset uint32
}

// OffsetBits returns log2(BlockSize).
func (g Geometry) OffsetBits() uint {
	return uint(bits.TrailingZeros(uint(g.BlockSize)))
}

// SetBits returns log2(NumSets).
func (g Geometry) SetBits() uint {
	return uint(bits.TrailingZeros(uint(g.NumSets)))
}

// Validate checks that NumSets, NumWays, and BlockSize are all powers of
// two and strictly positive.
func (g Geometry) Validate() error {
	if !isPow2(g.NumSets) {
		return fmt.Errorf("addr: num_sets %d is not a power of two", g.NumSets)
	}
	if !isPow2(g.NumWays) {
		return fmt.Errorf("addr: num_ways %d is not a power of two", g.NumWays)
	}
	if !isPow2(g.BlockSize) {
		return fmt.Errorf("addr: block_size %d is not a power of two", g.BlockSize)
	}
	return nil
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Decompose splits a word-aligned address into (tag, set, offset) for the
// given cache geometry.
//
// The contract: (tag << (offsetBits+setBits)) | (set << offsetBits) | offset
// reconstructs addr exactly, for every legal geometry.
func Decompose(address uint32, g Geometry) (Decomposed, error) {
	if address%4 != 0 {
		return Decomposed{}, fmt.Errorf("%w: 0x%08X", ErrMisaligned, address)
	}

	offsetBits := g.OffsetBits()
	setBits := g.SetBits()

	setMask := uint32(1)<<setBits - 1

	return Decomposed{
		Tag:    address >> (offsetBits + setBits),
		Set:    (address >> offsetBits) & setMask,
		Offset: address & (uint32(g.BlockSize) - 1),
	}, nil
}

// Compose reassembles an address from its decomposed fields and geometry.
// It is the inverse of Decompose and is used to check the addressing
// round-trip invariant.
func Compose(d Decomposed, g Geometry) uint32 {
	offsetBits := g.OffsetBits()
	setBits := g.SetBits()
	return (d.Tag << (offsetBits + setBits)) | (d.Set << offsetBits) | d.Offset
}

// DRAM address split: bits [4:0] select a position
// within a bank's row, bits [7:5] select the bank (3 bits, 8 banks), and
// bits [31:13] select the row (upper 19 bits, 512K possible rows).
const (
	dramBankShift = 5
	dramBankMask  = 0x7
	dramRowShift  = 13
)

// DRAMAddress holds the (bank, row) fields DecodeDRAM produces.
type DRAMAddress struct {
	Bank uint32
	Row  uint32
}

// DecodeDRAM splits a word-aligned address into (bank, row) for an 8-bank
// DRAM: bank = (addr >> 5) & 0x7, row = addr >> 13.
func DecodeDRAM(address uint32) (DRAMAddress, error) {
	if address%4 != 0 {
		return DRAMAddress{}, fmt.Errorf("%w: 0x%08X", ErrMisaligned, address)
	}
	return DRAMAddress{
		Bank: (address >> dramBankShift) & dramBankMask,
		Row:  address >> dramRowShift,
	}, nil
}

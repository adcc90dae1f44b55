// Package hw describes the analyzed hardware: the data cache geometry and
// the memory map with per-bank latencies. The description is loaded from a
// JSON file and is read-only for the whole analysis.
package hw

import (
	"fmt"
	"math/bits"
)

// ReplacePolicy identifies the cache replacement policy.
type ReplacePolicy string

const (
	// LRU is the least-recently-used policy. It is the only policy the
	// categorization lattices are sound for.
	LRU ReplacePolicy = "LRU"
	// Random replaces an arbitrary way.
	Random ReplacePolicy = "RANDOM"
	// FIFO replaces ways in insertion order.
	FIFO ReplacePolicy = "FIFO"
	// PLRU is pseudo-LRU.
	PLRU ReplacePolicy = "PLRU"
)

// WritePolicy identifies the cache write policy.
type WritePolicy string

const (
	// WriteThrough propagates every store to memory.
	WriteThrough WritePolicy = "WRITE_THROUGH"
	// WriteBack delays stores until eviction.
	WriteBack WritePolicy = "WRITE_BACK"
)

// Cache describes the data cache geometry.
type Cache struct {
	// SetCount is the number of cache sets. Must be a power of two.
	SetCount int `json:"set_count"`
	// WayCount is the associativity (ways per set).
	WayCount int `json:"way_count"`
	// BlockSize is the cache line size in bytes. Must be a power of two.
	BlockSize int `json:"block_size"`
	// Replace is the replacement policy.
	Replace ReplacePolicy `json:"replace_policy"`
	// Write is the write policy.
	Write WritePolicy `json:"write_policy"`
	// WriteAllocate selects whether stores allocate a line on miss.
	WriteAllocate bool `json:"write_allocate"`
}

// Validate checks the cache description for consistency.
func (c *Cache) Validate() error {
	if c.SetCount <= 0 || c.SetCount&(c.SetCount-1) != 0 {
		return fmt.Errorf("set_count must be a positive power of two, got %d", c.SetCount)
	}
	if c.WayCount <= 0 {
		return fmt.Errorf("way_count must be > 0, got %d", c.WayCount)
	}
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a positive power of two, got %d", c.BlockSize)
	}
	switch c.Replace {
	case LRU, Random, FIFO, PLRU:
	default:
		return fmt.Errorf("unknown replacement policy %q", c.Replace)
	}
	switch c.Write {
	case WriteThrough, WriteBack:
	default:
		return fmt.Errorf("unknown write policy %q", c.Write)
	}
	return nil
}

// ActualAssoc returns the associativity usable by the age lattices. LRU
// caches use the full way count; a random cache degrades to a single way.
// Other policies are not supported by the analysis.
func (c *Cache) ActualAssoc() (int, error) {
	switch c.Replace {
	case LRU:
		return c.WayCount, nil
	case Random:
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported replacement policy %q: only LRU caches can be analyzed", c.Replace)
	}
}

// BlockBits returns log2(BlockSize).
func (c *Cache) BlockBits() int {
	return bits.TrailingZeros(uint(c.BlockSize))
}

// SetBits returns log2(SetCount).
func (c *Cache) SetBits() int {
	return bits.TrailingZeros(uint(c.SetCount))
}

// Set returns the cache set index of an address.
func (c *Cache) Set(addr uint64) int {
	return int((addr >> uint(c.BlockBits())) & uint64(c.SetCount-1))
}

// Tag returns the cache tag of an address.
func (c *Cache) Tag(addr uint64) uint64 {
	return addr >> uint(c.BlockBits()+c.SetBits())
}

// Round rounds an address down to its cache line boundary.
func (c *Cache) Round(addr uint64) uint64 {
	return addr &^ uint64(c.BlockSize-1)
}

// CountBlocks returns the number of cache lines covered by the address
// interval [lo, hi].
func (c *Cache) CountBlocks(lo, hi uint64) int {
	if hi < lo {
		return 0
	}
	return int((c.Round(hi)-c.Round(lo))>>uint(c.BlockBits())) + 1
}

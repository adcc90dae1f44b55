// Package access provides the cache view of the program's memory accesses:
// the per-set index of observed cache blocks and the tagged access
// descriptors attached to every basic block by the builder.
package access

import (
	"fmt"

	"github.com/sarchlab/dcat/hw"
)

// CacheBlock identifies one memory block observed during the analysis. Two
// accesses to the same physical block share the same CacheBlock instance.
// Blocks are created lazily by the SetCollection and immutable thereafter.
type CacheBlock struct {
	tag  uint64
	set  int
	id   int
	bank *hw.Bank
}

// Tag returns the cache tag of the block.
func (b *CacheBlock) Tag() uint64 { return b.tag }

// Set returns the cache set of the block.
func (b *CacheBlock) Set() int { return b.set }

// ID returns the dense identifier of the block within its set, or -1 when
// the block's bank is not cached.
func (b *CacheBlock) ID() int { return b.id }

// Bank returns the memory bank containing the block.
func (b *CacheBlock) Bank() *hw.Bank { return b.bank }

func (b *CacheBlock) String() string {
	return fmt.Sprintf("CB%d (set %d, tag 0x%X, %s)", b.id, b.set, b.tag, b.bank.Name)
}

// blockColl indexes the blocks of one cache set.
type blockColl struct {
	byTag map[uint64]*CacheBlock
	dense []*CacheBlock // cached blocks only, indexed by ID
}

// SetCollection is the cache index model: it maps addresses to cache
// blocks and owns the per-set enumeration of distinct blocks ever
// observed. It is read-mostly after the access-builder phase and treated
// as immutable shared data from then on.
type SetCollection struct {
	cache *hw.Cache
	mem   *hw.Memory
	sets  []*blockColl
}

// NewSetCollection builds an empty collection for the given hardware.
func NewSetCollection(cache *hw.Cache, mem *hw.Memory) *SetCollection {
	sets := make([]*blockColl, cache.SetCount)
	for i := range sets {
		sets[i] = &blockColl{byTag: map[uint64]*CacheBlock{}}
	}
	return &SetCollection{cache: cache, mem: mem, sets: sets}
}

// Cache returns the cache description.
func (c *SetCollection) Cache() *hw.Cache { return c.cache }

// Memory returns the memory map.
func (c *SetCollection) Memory() *hw.Memory { return c.mem }

// SetCount returns the number of cache sets.
func (c *SetCollection) SetCount() int { return c.cache.SetCount }

// At returns the block registered for the address, or nil if the address
// was never observed.
func (c *SetCollection) At(addr uint64) *CacheBlock {
	return c.sets[c.cache.Set(addr)].byTag[c.cache.Tag(addr)]
}

// Add registers the block containing the address and returns it. It
// returns nil when the address is not backed by any memory bank. A dense
// identifier is only assigned when the containing bank is cached.
func (c *SetCollection) Add(addr uint64) *CacheBlock {
	if b := c.At(addr); b != nil {
		return b
	}

	bank := c.mem.BankOf(addr)
	if bank == nil {
		return nil
	}

	set := c.cache.Set(addr)
	coll := c.sets[set]
	b := &CacheBlock{tag: c.cache.Tag(addr), set: set, id: -1, bank: bank}
	if bank.Cached {
		b.id = len(coll.dense)
		coll.dense = append(coll.dense, b)
	}
	coll.byTag[b.tag] = b
	return b
}

// BlockCount returns the number of cached blocks observed in the set.
func (c *SetCollection) BlockCount(set int) int {
	return len(c.sets[set].dense)
}

// Block returns the cached block with the given identifier in the set.
func (c *SetCollection) Block(set, id int) *CacheBlock {
	return c.sets[set].dense[id]
}

// Address returns the base address of a cache block.
func (c *SetCollection) Address(b *CacheBlock) uint64 {
	return (b.tag<<uint(c.cache.SetBits()) | uint64(b.set)) << uint(c.cache.BlockBits())
}

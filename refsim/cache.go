// Package refsim replays concrete access traces through a real LRU cache
// model. It serves as the ground truth the abstract analyses are checked
// against: a MUST claim must hit here, a MAY eviction claim must miss.
package refsim

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/dcat/hw"
)

// Result describes one replayed access.
type Result struct {
	// Hit is true when the access found its block in the cache.
	Hit bool
	// Latency is the access time in cycles under the analysis cost
	// model: bank latency on a hit, worst memory time on a miss.
	Latency uint64
	// Cached is false for accesses bypassing the cache.
	Cached bool
}

// Stats accumulates replay statistics.
type Stats struct {
	Accesses uint64
	Hits     uint64
	Misses   uint64
	Bypasses uint64
}

// Cache is a concrete LRU cache over the analyzed hardware description,
// tracking tags and recency only.
type Cache struct {
	cache *hw.Cache
	mem   *hw.Memory

	directory *akitacache.DirectoryImpl

	stats Stats
}

// New creates a cache for the hardware description. It accepts the
// replacement policies hw.Cache.ActualAssoc accepts (LRU and Random), like
// the analyses, and always replays with LRU replacement.
func New(config *hw.Config) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if _, err := config.DataCache.ActualAssoc(); err != nil {
		return nil, err
	}

	c := config.DataCache
	return &Cache{
		cache: c,
		mem:   config.Memory(),
		directory: akitacache.NewDirectory(
			c.SetCount,
			c.WayCount,
			c.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}, nil
}

// Access replays one load or store and returns its outcome.
func (c *Cache) Access(addr uint64, store bool) Result {
	c.stats.Accesses++

	bank := c.mem.BankOf(addr)
	if bank == nil || !bank.Cached {
		c.stats.Bypasses++
		return Result{Latency: c.bypassLatency(bank, store)}
	}

	blockAddr := c.cache.Round(addr)
	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		if store {
			block.IsDirty = true
			return Result{Hit: true, Cached: true, Latency: bank.WriteLatency}
		}
		return Result{Hit: true, Cached: true, Latency: bank.ReadLatency}
	}

	// miss: install the block over the LRU victim
	c.stats.Misses++
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		if store {
			return Result{Cached: true, Latency: c.mem.WorstWriteTime()}
		}
		return Result{Cached: true, Latency: c.mem.WorstReadTime()}
	}
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = store
	c.directory.Visit(victim)

	if store {
		return Result{Cached: true, Latency: c.mem.WorstWriteTime()}
	}
	return Result{Cached: true, Latency: c.mem.WorstReadTime()}
}

func (c *Cache) bypassLatency(bank *hw.Bank, store bool) uint64 {
	if bank == nil {
		if store {
			return c.mem.WorstWriteTime()
		}
		return c.mem.WorstReadTime()
	}
	if store {
		return bank.WriteLatency
	}
	return bank.ReadLatency
}

// Purge invalidates the line holding the address, if present.
func (c *Cache) Purge(addr uint64) {
	blockAddr := c.cache.Round(addr)
	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Contains reports whether the line holding the address is cached.
func (c *Cache) Contains(addr uint64) bool {
	block := c.directory.Lookup(0, c.cache.Round(addr))
	return block != nil && block.IsValid
}

// Stats returns the replay statistics.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Reset invalidates every line and clears the statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Stats{}
}

// TraceAccess is one record of a replayable trace.
type TraceAccess struct {
	// Addr is the accessed address.
	Addr uint64 `json:"addr"`
	// Store selects a write access.
	Store bool `json:"store,omitempty"`
}

// Replay runs a whole trace and returns the final statistics.
func (c *Cache) Replay(trace []TraceAccess) Stats {
	for _, t := range trace {
		c.Access(t.Addr, t.Store)
	}
	return c.stats
}

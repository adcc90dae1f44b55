package refsim_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/acs"
	"github.com/sarchlab/dcat/hw"
	"github.com/sarchlab/dcat/refsim"
)

var _ = Describe("Cache replay", func() {
	var c *refsim.Cache

	BeforeEach(func() {
		var err error
		c, err = refsim.New(hw.DefaultConfig())
		Expect(err).ToNot(HaveOccurred())
	})

	It("should miss cold and hit warm", func() {
		r := c.Access(0x100, false)
		Expect(r.Hit).To(BeFalse())
		Expect(r.Latency).To(Equal(uint64(10)), "worst memory read")

		r = c.Access(0x100, false)
		Expect(r.Hit).To(BeTrue())
		Expect(r.Latency).To(Equal(uint64(1)), "RAM read latency")

		stats := c.Stats()
		Expect(stats.Hits).To(Equal(uint64(1)))
		Expect(stats.Misses).To(Equal(uint64(1)))
	})

	It("should evict LRU within a set", func() {
		// set 0 lines with 2 ways: third distinct line evicts the first
		c.Access(0x100, false)
		c.Access(0x110, false)
		c.Access(0x120, false)
		Expect(c.Contains(0x100)).To(BeFalse())
		Expect(c.Contains(0x110)).To(BeTrue())
		Expect(c.Contains(0x120)).To(BeTrue())
	})

	It("should refresh recency on hit", func() {
		c.Access(0x100, false)
		c.Access(0x110, false)
		c.Access(0x100, false) // 0x110 becomes LRU
		c.Access(0x120, false)
		Expect(c.Contains(0x100)).To(BeTrue())
		Expect(c.Contains(0x110)).To(BeFalse())
	})

	It("should bypass uncached banks", func() {
		r := c.Access(0xFF00_0000, true)
		Expect(r.Cached).To(BeFalse())
		Expect(r.Latency).To(Equal(uint64(10)), "IO bank write latency")
		Expect(c.Stats().Bypasses).To(Equal(uint64(1)))
	})

	It("should invalidate on purge", func() {
		c.Access(0x100, false)
		c.Purge(0x100)
		Expect(c.Contains(0x100)).To(BeFalse())
	})
})

// The abstract lattices must stay on the safe side of the concrete cache:
// replay a random trace and check the MUST and MAY claims after every
// step.
var _ = Describe("Lattice soundness against replay", func() {
	It("should never contradict the concrete cache", func() {
		config := hw.DefaultConfig()
		coll := access.NewSetCollection(config.DataCache, config.Memory())
		arena := acs.NewArena()

		// ten set-0 lines
		var addrs []uint64
		for i := 0; i < 10; i++ {
			addr := uint64(0x100 + 16*i)
			coll.Add(addr)
			addrs = append(addrs, addr)
		}

		must := acs.NewMust(coll, access.Map{}, arena, 0, 2)
		may := acs.NewMay(coll, access.Map{}, arena, 0, 2)

		concrete, err := refsim.New(config)
		Expect(err).ToNot(HaveOccurred())
		mustState := must.Entry()
		mayState := may.Entry()

		rng := rand.New(rand.NewSource(42))
		for step := 0; step < 500; step++ {
			addr := addrs[rng.Intn(len(addrs))]
			cb := coll.At(addr)
			a := access.NewBlock(nil, access.Load, cb, 4, 0)

			concrete.Access(addr, false)
			mustState = must.UpdateAccess(&a, mustState)
			mayState = may.UpdateAccess(&a, mayState)

			for i, other := range addrs {
				mustAge := mustState.(*acs.ACS).Age[i]
				mayAge := mayState.(*acs.ACS).Age[i]
				if int(mustAge) < 2 {
					Expect(concrete.Contains(other)).To(BeTrue(),
						"MUST claims presence of 0x%X at step %d", other, step)
				}
				if int(mayAge) >= 2 {
					Expect(concrete.Contains(other)).To(BeFalse(),
						"MAY claims absence of 0x%X at step %d", other, step)
				}
			}
		}
	})
})

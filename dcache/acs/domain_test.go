package acs_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/acs"
	"github.com/sarchlab/dcat/hw"
	"github.com/sarchlab/dcat/prog"
)

// world bundles a 4-set, 2-way, 4-byte-line cache with blockCount observed
// blocks in set 0 and the accesses touching them.
type world struct {
	coll   *access.SetCollection
	arena  *acs.Arena
	inst   *prog.Inst
	blocks []*access.CacheBlock
}

func newWorld(blockCount int) *world {
	config := hw.DefaultConfig()
	w := &world{
		coll:  access.NewSetCollection(config.DataCache, config.Memory()),
		arena: acs.NewArena(),
		inst:  &prog.Inst{Addr: 0x1000},
	}
	for i := 0; i < blockCount; i++ {
		// set 0 lines: 0x100, 0x110, 0x120, ...
		w.blocks = append(w.blocks, w.coll.Add(uint64(0x100+16*i)))
	}
	return w
}

func (w *world) load(i int) *access.Access {
	a := access.NewBlock(w.inst, access.Load, w.blocks[i], 4, 0)
	return &a
}

func (w *world) loadAny() *access.Access {
	a := access.NewAny(w.inst, access.Load, 4, 0)
	return &a
}

func (w *world) purge(i int) *access.Access {
	a := access.NewBlock(w.inst, access.Purge, w.blocks[i], 4, 0)
	return &a
}

func ages(s acs.State) []acs.Age {
	return s.(*acs.ACS).Age
}

var _ = Describe("Must", func() {
	var (
		w *world
		d *acs.Must
	)

	BeforeEach(func() {
		w = newWorld(3)
		d = acs.NewMust(w.coll, access.Map{}, w.arena, 0, 2)
	})

	It("should start with every age at the associativity", func() {
		Expect(ages(d.Entry())).To(Equal([]acs.Age{2, 2, 2}))
	})

	It("should renew the accessed block", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		Expect(ages(s)).To(Equal([]acs.Age{0, 2, 2}))
	})

	It("should age younger blocks on access", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		Expect(ages(s)).To(Equal([]acs.Age{1, 0, 2}))
	})

	It("should not age blocks older than the accessed one", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		s = d.UpdateAccess(w.load(0), s)
		Expect(ages(s)).To(Equal([]acs.Age{0, 1, 2}))
	})

	It("should evict the least recently used block", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		s = d.UpdateAccess(w.load(2), s)
		Expect(ages(s)).To(Equal([]acs.Age{2, 1, 0}))
	})

	It("should join with the pointwise maximum", func() {
		s1 := d.UpdateAccess(w.load(0), d.Entry())
		s2 := d.UpdateAccess(w.load(1), d.Entry())
		j := d.Join(s1, s2)
		Expect(ages(j)).To(Equal([]acs.Age{2, 2, 2}))
	})

	It("should treat bottom as the join identity", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		Expect(d.Join(d.Bot(), s)).To(BeIdenticalTo(s))
		Expect(d.Join(s, d.Bot())).To(BeIdenticalTo(s))
	})

	It("should age everything on an unknown access", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.loadAny(), s)
		Expect(ages(s)).To(Equal([]acs.Age{1, 2, 2}))
	})

	It("should saturate unknown-access aging at the associativity", func() {
		s := d.UpdateAccess(w.loadAny(), d.Entry())
		Expect(s).To(BeIdenticalTo(d.Top()))
	})

	It("should evict on purge", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		p := d.UpdateAccess(w.purge(1), s)
		Expect(ages(p)).To(Equal([]acs.Age{1, 2, 2}))
	})

	It("should purge idempotently", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		p1 := d.UpdateAccess(w.purge(1), s)
		p2 := d.UpdateAccess(w.purge(1), p1)
		Expect(d.Equals(p1, p2)).To(BeTrue())
	})

	It("should round-trip save and load", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		var buf bytes.Buffer
		Expect(d.Save(s, &buf)).To(Succeed())
		Expect(buf.Len()).To(Equal(3), "one byte per block")
		loaded, err := d.Load(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(d.Equals(s, loaded)).To(BeTrue())
	})
})

var _ = Describe("May", func() {
	var (
		w *world
		d *acs.May
	)

	BeforeEach(func() {
		w = newWorld(3)
		d = acs.NewMay(w.coll, access.Map{}, w.arena, 0, 2)
	})

	It("should start with every minimum age at zero", func() {
		Expect(ages(d.Entry())).To(Equal([]acs.Age{0, 0, 0}))
	})

	It("should ignore unknown accesses", func() {
		s := d.UpdateAccess(w.loadAny(), d.Entry())
		Expect(s).To(BeIdenticalTo(d.Entry()))
	})

	It("should join with the pointwise minimum", func() {
		s1 := d.UpdateAccess(w.load(0), d.Entry()) // {0,1,1}
		s2 := d.UpdateAccess(w.load(1), d.Entry()) // {1,0,1}
		j := d.Join(s1, s2)
		Expect(ages(j)).To(Equal([]acs.Age{0, 0, 1}))
	})

	It("should prove absence after enough distinct accesses", func() {
		// accessing blocks 1 and 2 pushes block 0 to age 2 = evicted
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		s = d.UpdateAccess(w.load(2), s)
		Expect(ages(s)[0]).To(Equal(acs.Age(2)))
	})

	It("should evict on purge", func() {
		s := d.UpdateAccess(w.load(0), d.Entry()) // {0,1,1}
		p := d.UpdateAccess(w.purge(0), s)
		Expect(ages(p)).To(Equal([]acs.Age{2, 1, 1}))
	})
})

var _ = Describe("Pers", func() {
	var (
		w *world
		d *acs.Pers
	)

	BeforeEach(func() {
		w = newWorld(3)
		d = acs.NewPers(w.coll, access.Map{}, w.arena, 0, 2)
	})

	It("should start with every block unseen", func() {
		Expect(ages(d.Entry())).To(Equal([]acs.Age{acs.AgeBot, acs.AgeBot, acs.AgeBot}))
	})

	It("should keep unseen entries unseen on access", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		Expect(ages(s)).To(Equal([]acs.Age{0, acs.AgeBot, acs.AgeBot}))
	})

	It("should age seen blocks only", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		Expect(ages(s)).To(Equal([]acs.Age{1, 0, acs.AgeBot}))
	})

	It("should absorb unseen entries in the join", func() {
		s1 := d.UpdateAccess(w.load(0), d.Entry()) // {0,_,_}
		s2 := d.UpdateAccess(w.load(1), d.Entry()) // {_,0,_}
		j := d.Join(s1, s2)
		Expect(ages(j)).To(Equal([]acs.Age{0, 0, acs.AgeBot}))
	})

	It("should degrade to top when too many blocks stay young", func() {
		// three blocks young at once cannot all be persistent in 2 ways
		s1 := d.UpdateAccess(w.load(1), d.UpdateAccess(w.load(0), d.Entry()))
		s2 := d.UpdateAccess(w.load(2), d.Entry())
		j := d.Join(s1, s2)
		Expect(j).To(BeIdenticalTo(d.Top()))
	})

	It("should age seen blocks on unknown accesses and keep unseen ones", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.loadAny(), s)
		Expect(ages(s)).To(Equal([]acs.Age{1, acs.AgeBot, acs.AgeBot}))
	})

	It("should stay persistent within the associativity", func() {
		s := d.UpdateAccess(w.load(0), d.Entry())
		s = d.UpdateAccess(w.load(1), s)
		s = d.UpdateAccess(w.load(0), s)
		s = d.UpdateAccess(w.load(1), s)
		Expect(ages(s)).To(Equal([]acs.Age{1, 0, acs.AgeBot}))
	})
})

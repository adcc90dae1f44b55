package analysis_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/acs"
	"github.com/sarchlab/dcat/dcache/analysis"
	"github.com/sarchlab/dcat/hw"
	"github.com/sarchlab/dcat/prog"
)

func loadInst(addr, target uint64) *prog.Inst {
	return &prog.Inst{
		Addr: addr,
		Mem:  []prog.MemAccess{{Op: prog.MemLoad, Addr: prog.MemAddr{Lo: target, Hi: target}, Size: 4}},
	}
}

// program is a built test program with its access side tables.
type program struct {
	collection *prog.Collection
	accs       access.Map
	coll       *access.SetCollection
}

func buildProgram(collection *prog.Collection) *program {
	b, err := access.NewBuilder(hw.DefaultConfig())
	Expect(err).ToNot(HaveOccurred())
	m, err := b.Build(collection)
	Expect(err).ToNot(HaveOccurred())
	return &program{collection: collection, accs: m, coll: b.Collection()}
}

func (p *program) analysis(kind analysis.Kind, opts ...analysis.Option) *analysis.Analysis {
	a, err := analysis.New(kind, p.coll, p.accs, p.collection, opts...)
	Expect(err).ToNot(HaveOccurred())
	Expect(a.Run()).To(Succeed())
	return a
}

func (p *program) accessOf(b *prog.Block, i int) *access.Access {
	accs := p.accs.At(b)
	Expect(len(accs)).To(BeNumerically(">", i))
	return &accs[i]
}

// selfLoop builds: entry -> pre -> h -> h (back), h -> after -> exit,
// where h loads the given address on every iteration.
type selfLoop struct {
	*program
	h     *prog.Block
	entry *prog.Edge
	back  *prog.Edge
	cb    *access.CacheBlock
	acc   *access.Access
}

func buildSelfLoop(target uint64) *selfLoop {
	g := prog.NewCFG("main")
	pre := g.AddBasic()
	h := g.AddBasic(loadInst(0x1000, target))
	after := g.AddBasic()
	g.Connect(g.Entry(), pre)
	entry := g.Connect(pre, h)
	back := g.Connect(h, h)
	g.Connect(h, after)
	g.Connect(after, g.Exit())

	collection := prog.NewCollection(g)
	collection.BuildLoops()
	collection.AssignVars()

	p := buildProgram(collection)
	s := &selfLoop{program: p, h: h, entry: entry, back: back}
	s.acc = p.accessOf(h, 0)
	s.cb = s.acc.Block()
	return s
}

var _ = Describe("Must analysis", func() {
	It("should prove a repeated load always hits after the first iteration", func() {
		s := buildSelfLoop(0x100)
		must := s.analysis(analysis.Must)

		// along the back edge the block was just accessed
		Expect(must.Age(s.back, s.acc, s.cb)).To(Equal(0))
		// along the entry edge nothing is known yet
		Expect(must.Age(s.entry, s.acc, s.cb)).To(Equal(must.WayCount()))
	})

	It("should expose before and after states", func() {
		s := buildSelfLoop(0x100)
		must := s.analysis(analysis.Must)

		after := must.After(s.h, 0)
		Expect(after.(*acs.ACS).Age[s.cb.ID()]).To(Equal(acs.Age(0)))
		must.Release(after)
	})

	It("should follow calls through synthetic blocks", func() {
		callee := prog.NewCFG("f")
		fb := callee.AddBasic(loadInst(0x2000, 0x100))
		callee.Connect(callee.Entry(), fb)
		callee.Connect(fb, callee.Exit())

		g := prog.NewCFG("main")
		call := g.AddSynth(callee)
		after := g.AddBasic(loadInst(0x1004, 0x100))
		g.Connect(g.Entry(), call)
		retEdge := g.Connect(call, after)
		g.Connect(after, g.Exit())

		collection := prog.NewCollection(g, callee)
		collection.BuildLoops()
		p := buildProgram(collection)
		must := p.analysis(analysis.Must)

		// the load in f keeps the block young for the access after the call
		acc := p.accessOf(after, 0)
		Expect(must.Age(retEdge, acc, acc.Block())).To(Equal(0))
	})

	It("should replay earlier accesses of the same block", func() {
		// one basic block loading 0x100 then 0x110: before the second
		// access the first is already applied
		g := prog.NewCFG("main")
		b := g.AddBasic(loadInst(0x1000, 0x100), loadInst(0x1004, 0x110))
		g.Connect(g.Entry(), b)
		g.Connect(b, g.Exit())
		collection := prog.NewCollection(g)
		collection.BuildLoops()
		p := buildProgram(collection)
		must := p.analysis(analysis.Must)

		first := p.accessOf(b, 0)
		second := p.accessOf(b, 1)
		Expect(must.AgeAt(b, first, first.Block())).To(Equal(must.WayCount()))
		Expect(must.AgeAt(b, second, first.Block())).To(Equal(0),
			"the first load is visible before the second access")
	})
})

var _ = Describe("May analysis", func() {
	It("should prove eviction after enough distinct loads", func() {
		// set 0 blocks 0x100, 0x110, 0x120 in sequence: 2-way LRU must
		// have evicted 0x100 afterwards
		g := prog.NewCFG("main")
		b1 := g.AddBasic(loadInst(0x1000, 0x100), loadInst(0x1004, 0x110), loadInst(0x1008, 0x120))
		b2 := g.AddBasic(loadInst(0x100C, 0x100))
		g.Connect(g.Entry(), b1)
		e := g.Connect(b1, b2)
		g.Connect(b2, g.Exit())
		collection := prog.NewCollection(g)
		collection.BuildLoops()
		p := buildProgram(collection)
		may := p.analysis(analysis.May)

		acc := p.accessOf(b2, 0)
		Expect(may.Age(e, acc, acc.Block())).To(Equal(may.WayCount()))
	})

	It("should keep the minimum age at zero on unknown paths", func() {
		s := buildSelfLoop(0x100)
		may := s.analysis(analysis.May)
		Expect(may.Age(s.entry, s.acc, s.cb)).To(Equal(0))
	})
})

var _ = Describe("Pers analysis", func() {
	It("should mark a loop access persistent on the back edge", func() {
		s := buildSelfLoop(0x100)
		pers := s.analysis(analysis.Pers)

		Expect(pers.Age(s.back, s.acc, s.cb)).To(Equal(0))
		// on the entry edge the block was never seen
		Expect(pers.Age(s.entry, s.acc, s.cb)).To(Equal(int(acs.AgeBot)))
	})
})

var _ = Describe("MultiPers analysis", func() {
	It("should report the loop level of a persistent block", func() {
		// outer loop around an inner loop whose body loads 0x100: the
		// block is persistent in both loops but unknown program-wide
		g := prog.NewCFG("main")
		oh := g.AddBasic()
		ih := g.AddBasic()
		b1 := g.AddBasic(loadInst(0x1000, 0x100))
		after := g.AddBasic()
		g.Connect(g.Entry(), oh)
		g.Connect(oh, ih)
		body := g.Connect(ih, b1)
		g.Connect(b1, ih)
		g.Connect(ih, oh)
		g.Connect(oh, after)
		g.Connect(after, g.Exit())
		collection := prog.NewCollection(g)
		collection.BuildLoops()
		p := buildProgram(collection)
		mpers := p.analysis(analysis.MultiPers)

		acc := p.accessOf(b1, 0)
		Expect(mpers.Level(body, acc, acc.Block())).To(Equal(2),
			"persistent in the inner and the outer loop")
	})

	It("should report full-depth persistence for an undisturbed block", func() {
		s := buildSelfLoop(0x100)
		mpers := s.analysis(analysis.MultiPers)
		// along the back edge the block is persistent at the loop level
		// and at the top level
		Expect(mpers.Level(s.back, s.acc, s.cb)).To(Equal(2))
		// along the entry edge the fresh scope has not seen the block
		Expect(mpers.Level(s.entry, s.acc, s.cb)).To(Equal(0))
	})
})

var _ = Describe("Analysis bookkeeping", func() {
	It("should panic on double release", func() {
		s := buildSelfLoop(0x100)
		must := s.analysis(analysis.Must)
		st := must.Before(s.h, 0)
		must.Release(st)
		Expect(func() { must.Release(st) }).To(Panic())
	})

	It("should panic on queries for sets without blocks", func() {
		s := buildSelfLoop(0x100)
		must := s.analysis(analysis.Must)
		Expect(func() { must.Before(s.h, 3) }).To(Panic())
	})

	It("should warn about invalid only-set values", func() {
		s := buildSelfLoop(0x100)
		a := s.analysis(analysis.Must, analysis.WithOnlySets(0, 99))
		Expect(a.Warnings()).To(HaveLen(1))
		Expect(a.Warnings()[0]).To(ContainSubstring("99"))
	})

	It("should reclaim intermediate states at cleanup", func() {
		s := buildSelfLoop(0x100)
		must := s.analysis(analysis.Must)
		// queries allocate replay states
		_ = must.Age(s.back, s.acc, s.cb)
		must.Cleanup()
		Expect(must.Arena().Free()).To(BeNumerically(">=", 0))
		// solver states survive the collection
		st := must.After(s.h, 0)
		Expect(st.(*acs.ACS).Age[s.cb.ID()]).To(Equal(acs.Age(0)))
		must.Release(st)
	})

	It("should dump states per set", func() {
		s := buildSelfLoop(0x100)
		must := s.analysis(analysis.Must)
		var buf bytes.Buffer
		must.Dump(&buf)
		out := buf.String()
		Expect(out).To(ContainSubstring("SET 0"))
		Expect(strings.Count(out, "CFG main")).To(BeNumerically(">=", 1))
	})

	It("should reject a non-LRU cache", func() {
		config := hw.DefaultConfig()
		config.DataCache.Replace = hw.FIFO

		g := prog.NewCFG("main")
		b := g.AddBasic(loadInst(0x1000, 0x100))
		g.Connect(g.Entry(), b)
		g.Connect(b, g.Exit())
		collection := prog.NewCollection(g)
		collection.BuildLoops()

		builder, err := access.NewBuilder(config)
		Expect(err).ToNot(HaveOccurred())
		m, err := builder.Build(collection)
		Expect(err).ToNot(HaveOccurred())

		_, err = analysis.New(analysis.Must, builder.Collection(), m, collection)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("LRU"))
	})
})

package acs_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/acs"
	"github.com/sarchlab/dcat/prog"
)

// loopWorld is a CFG with one loop around a body block, for exercising the
// depth changes of the MultiPERS edge transfer.
type loopWorld struct {
	*world
	g      *prog.CFG
	entry  *prog.Edge // pre-header -> header (loop entry)
	back   *prog.Edge // body -> header
	exit   *prog.Edge // body -> after (loop exit)
	header *prog.Block
	body   *prog.Block
}

func newLoopWorld() *loopWorld {
	w := &loopWorld{world: newWorld(3)}
	w.g = prog.NewCFG("main")
	pre := w.g.AddBasic()
	w.header = w.g.AddBasic()
	w.body = w.g.AddBasic()
	after := w.g.AddBasic()
	w.g.Connect(w.g.Entry(), pre)
	w.entry = w.g.Connect(pre, w.header)
	w.g.Connect(w.header, w.body)
	w.back = w.g.Connect(w.body, w.header)
	w.exit = w.g.Connect(w.body, after)
	w.g.Connect(after, w.g.Exit())
	prog.NewCollection(w.g).BuildLoops()
	return w
}

var _ = Describe("MultiPers", func() {
	var (
		w *loopWorld
		d *acs.MultiPers
	)

	BeforeEach(func() {
		w = newLoopWorld()
		d = acs.NewMultiPers(w.coll, access.Map{}, w.arena, 0, 2)
	})

	depth := func(s acs.State) int {
		return s.(*acs.MultiACS).Depth()
	}

	It("should start with a single level", func() {
		Expect(depth(d.Entry())).To(Equal(1))
	})

	It("should push a fresh scope on loop entry", func() {
		s := d.UpdateEdge(w.entry, d.Entry())
		Expect(depth(s)).To(Equal(2))
		inner := s.(*acs.MultiACS).Levels[1]
		Expect(inner.Age).To(Equal([]acs.Age{acs.AgeBot, acs.AgeBot, acs.AgeBot}))
	})

	It("should keep the depth on the back edge", func() {
		s := d.UpdateEdge(w.entry, d.Entry())
		Expect(d.UpdateEdge(w.back, s)).To(BeIdenticalTo(s))
	})

	It("should pop the scope on loop exit", func() {
		s := d.UpdateEdge(w.entry, d.Entry())
		s = d.UpdateEdge(w.exit, s)
		Expect(depth(s)).To(Equal(1))
	})

	It("should apply accesses to every level", func() {
		s := d.UpdateEdge(w.entry, d.Entry())
		s = d.UpdateAccess(w.load(0), s)
		m := s.(*acs.MultiACS)
		Expect(m.Levels[0].Age[0]).To(Equal(acs.Age(0)))
		Expect(m.Levels[1].Age[0]).To(Equal(acs.Age(0)))
	})

	It("should report the innermost persistence level", func() {
		s := d.UpdateEdge(w.entry, d.Entry())
		s = d.UpdateAccess(w.load(0), s)
		// block 0 persistent at both levels
		Expect(d.Level(s, 0)).To(Equal(2))
		// block 1 never accessed: persistent nowhere
		Expect(d.Level(s, 1)).To(Equal(0))
	})

	It("should pad the shorter stack in the join", func() {
		s1 := d.UpdateEdge(w.entry, d.Entry()) // depth 2
		s2 := d.Entry()                        // depth 1
		j := d.Join(s1, s2)
		Expect(depth(j)).To(Equal(2))
	})

	It("should treat bottom as the join identity", func() {
		s := d.UpdateEdge(w.entry, d.Entry())
		Expect(d.Join(d.Bot(), s)).To(BeIdenticalTo(s))
	})

	It("should round-trip save and load", func() {
		s := d.UpdateEdge(w.entry, d.Entry())
		s = d.UpdateAccess(w.load(0), s)
		var buf bytes.Buffer
		Expect(d.Save(s, &buf)).To(Succeed())
		Expect(buf.Len()).To(Equal(4+2*3), "int32 depth plus one byte per block per level")
		loaded, err := d.Load(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(d.Equals(s, loaded)).To(BeTrue())
	})
})

var _ = Describe("MultiPers across calls", func() {
	It("should restore the caller depth on the return edge", func() {
		w := newWorld(2)

		callee := prog.NewCFG("f")
		fb := callee.AddBasic()
		callee.Connect(callee.Entry(), fb)
		callee.Connect(fb, callee.Exit())

		g := prog.NewCFG("main")
		pre := g.AddBasic()
		header := g.AddBasic()
		call := g.AddSynth(callee)
		after := g.AddBasic()
		g.Connect(g.Entry(), pre)
		entry := g.Connect(pre, header)
		g.Connect(header, call)
		ret := g.Connect(call, header)
		g.Connect(call, after)
		g.Connect(after, g.Exit())
		prog.NewCollection(g, callee).BuildLoops()

		d := acs.NewMultiPers(w.coll, access.Map{}, w.arena, 0, 2)

		// in the loop, depth 2; the synth block records it
		s := d.UpdateEdge(entry, d.Entry())
		Expect(s.(*acs.MultiACS).Depth()).To(Equal(2))
		s = d.UpdateBlock(call, s)

		// the return edge keeps the recorded depth
		r := d.UpdateEdge(ret, s)
		Expect(r.(*acs.MultiACS).Depth()).To(Equal(2))
	})

	It("should map an unvisited call site to bottom", func() {
		w := newWorld(2)

		callee := prog.NewCFG("f")
		g := prog.NewCFG("main")
		call := g.AddSynth(callee)
		after := g.AddBasic()
		g.Connect(g.Entry(), call)
		ret := g.Connect(call, after)
		g.Connect(after, g.Exit())
		prog.NewCollection(g, callee).BuildLoops()

		d := acs.NewMultiPers(w.coll, access.Map{}, w.arena, 0, 2)
		Expect(d.UpdateEdge(ret, d.Entry())).To(BeIdenticalTo(d.Bot()))
	})
})

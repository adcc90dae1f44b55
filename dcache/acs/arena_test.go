package acs_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dcat/dcache/acs"
)

// rootSet is a test collector holding an explicit list of live states.
type rootSet struct {
	states []acs.State
}

func (r *rootSet) CollectStates(mark func(acs.State)) {
	for _, s := range r.states {
		mark(s)
	}
}

var _ = Describe("Arena", func() {
	var a *acs.Arena

	BeforeEach(func() {
		a = acs.NewArena()
	})

	It("should reclaim unreachable states", func() {
		live := a.NewACS(4, 0)
		_ = a.NewACS(4, 1)
		_ = a.NewACS(4, 2)

		a.Collect(&rootSet{states: []acs.State{live}})

		Expect(a.Allocated()).To(Equal(3))
		Expect(a.Free()).To(Equal(2))
	})

	It("should recycle freed slots", func() {
		_ = a.NewACS(4, 1)
		a.Collect(&rootSet{})
		Expect(a.Free()).To(Equal(1))

		s := a.NewACS(4, 7)
		Expect(a.Allocated()).To(Equal(1), "no new allocation")
		Expect(a.Free()).To(Equal(0))
		Expect(s.Age).To(Equal([]acs.Age{7, 7, 7, 7}))
	})

	It("should keep states reachable through a MultiACS", func() {
		level := a.NewACS(4, 3)
		m := a.NewMulti(2, level)

		a.Collect(&rootSet{states: []acs.State{m}})

		// the stack and its level survive
		Expect(a.Free()).To(Equal(0))
	})

	It("should sweep a stack together with its exclusive levels", func() {
		level := a.NewACS(4, 3)
		_ = a.NewMulti(2, level)

		a.Collect(&rootSet{})

		Expect(a.Free()).To(Equal(2))
	})

	It("should tolerate repeated collections", func() {
		s := a.NewACS(2, 0)
		a.Collect(&rootSet{states: []acs.State{s}})
		a.Collect(&rootSet{states: []acs.State{s}})
		Expect(a.Free()).To(Equal(0))
		a.Collect(&rootSet{})
		a.Collect(&rootSet{})
		Expect(a.Free()).To(Equal(1))
	})
})

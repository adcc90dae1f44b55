// Package analysis runs the abstract interpretation that computes the
// abstract cache states of a program: one fixed point per cache set and
// per analysis kind, plus the query facades the classifier and the event
// builder read ages from.
package analysis

import (
	"fmt"

	"github.com/sarchlab/dcat/dcache/acs"
	"github.com/sarchlab/dcat/prog"
)

// Solver computes the least fixed point of one domain over the whole CFG
// collection. Calls are followed through synthetic blocks: the state at a
// call site flows into the callee entry and the callee exit state flows
// back to the call site's successors.
type Solver struct {
	domain     acs.Domain
	collection *prog.Collection

	before map[*prog.Block]acs.State
	after  map[*prog.Block]acs.State
	callIn map[*prog.Block]acs.State

	iterations int
	maxIters   int
}

// NewSolver creates a solver for one (collection, domain) pair.
func NewSolver(collection *prog.Collection, domain acs.Domain) *Solver {
	s := &Solver{
		domain:     domain,
		collection: collection,
		before:     map[*prog.Block]acs.State{},
		after:      map[*prog.Block]acs.State{},
		callIn:     map[*prog.Block]acs.State{},
	}
	s.maxIters = s.iterationCap()
	return s
}

// iterationCap bounds the worklist as a safety belt. The lattice height
// per block is finite, so the bound is generous rather than tight.
func (s *Solver) iterationCap() int {
	blocks, depth := 0, 0
	for _, g := range s.collection.CFGs() {
		blocks += len(g.Blocks())
		for _, l := range g.Loops() {
			if l.Depth() > depth {
				depth = l.Depth()
			}
		}
	}
	return 64 + 16*blocks*(depth+2)*(s.height()+2)
}

// height estimates the lattice height of one state.
func (s *Solver) height() int {
	type sized interface{ Assoc() int }
	a := 8
	if d, ok := s.domain.(sized); ok {
		a = d.Assoc()
	}
	return 8 + 4*a
}

// Solve iterates the transfer functions until every state stabilizes. It
// fails only when the iteration cap is exceeded, which indicates a broken
// domain rather than a property of the program.
func (s *Solver) Solve() error {
	bot := s.domain.Bot()
	var worklist []*prog.Block
	queued := map[*prog.Block]bool{}
	enqueue := func(b *prog.Block) {
		if !queued[b] {
			queued[b] = true
			worklist = append(worklist, b)
		}
	}

	for _, g := range s.collection.CFGs() {
		for _, b := range g.Blocks() {
			s.before[b] = bot
			s.after[b] = bot
			if b.IsSynth() {
				s.callIn[b] = bot
			}
			enqueue(b)
		}
	}

	entry := s.collection.Entry().Entry()
	for len(worklist) > 0 {
		v := worklist[0]
		worklist = worklist[1:]
		queued[v] = false

		s.iterations++
		if s.iterations > s.maxIters {
			return fmt.Errorf(
				"set %d: fixed point not reached after %d iterations",
				s.domain.Set(), s.maxIters)
		}

		in := bot
		if v == entry {
			in = s.domain.Entry()
		}
		for _, e := range v.In() {
			in = s.domain.Join(in, s.domain.UpdateEdge(e, s.after[e.Source()]))
		}
		if v.IsEntry() {
			for _, c := range v.CFG().Callers() {
				in = s.domain.Join(in, s.callIn[c])
			}
		}
		s.before[v] = in

		var out acs.State
		if v.IsSynth() && v.Callee() != nil {
			call := s.domain.UpdateBlock(v, in)
			if !s.domain.Equals(s.callIn[v], call) {
				s.callIn[v] = call
				enqueue(v.Callee().Entry())
			}
			out = s.after[v.Callee().Exit()]
		} else {
			out = s.domain.UpdateBlock(v, in)
		}

		if !s.domain.Equals(s.after[v], out) {
			s.after[v] = out
			for _, e := range v.Out() {
				enqueue(e.Sink())
			}
			if v.IsExit() {
				for _, c := range v.CFG().Callers() {
					enqueue(c)
				}
			}
		}
	}

	return nil
}

// Before returns the computed state at the block input.
func (s *Solver) Before(v *prog.Block) acs.State {
	return s.before[v]
}

// After returns the computed state at the block output. For a synthetic
// block this is the state at the callee exit.
func (s *Solver) After(v *prog.Block) acs.State {
	return s.after[v]
}

// AfterEdge returns the state carried by the edge into its sink: the
// source output with the edge transfer applied, before any access of the
// sink.
func (s *Solver) AfterEdge(e *prog.Edge) acs.State {
	return s.domain.UpdateEdge(e, s.after[e.Source()])
}

// Iterations returns the number of processed worklist entries.
func (s *Solver) Iterations() int {
	return s.iterations
}

// CollectStates marks every stored state alive.
func (s *Solver) CollectStates(mark func(acs.State)) {
	for _, st := range s.before {
		mark(st)
	}
	for _, st := range s.after {
		mark(st)
	}
	for _, st := range s.callIn {
		mark(st)
	}
}

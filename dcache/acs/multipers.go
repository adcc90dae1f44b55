package acs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/prog"
)

// MultiPers is the domain of the multi-level persistence analysis. The
// state is a stack of PERS states, one per loop level at the program
// point: loop entries push a fresh scope, loop exits pop, call returns
// truncate to the depth recorded at the call site.
type MultiPers struct {
	pers   *Pers
	arena  *Arena
	bot    *MultiACS
	top    *MultiACS
	os     *MultiACS
	depths map[*prog.Block]int
}

// NewMultiPers creates the MultiPERS domain for one cache set.
func NewMultiPers(coll *access.SetCollection, accs access.Map, arena *Arena, set, assoc int) *MultiPers {
	pers := NewPers(coll, accs, arena, set, assoc)
	return &MultiPers{
		pers:   pers,
		arena:  arena,
		bot:    arena.NewMulti(1, pers.bot),
		top:    arena.NewMulti(1, pers.top),
		depths: map[*prog.Block]int{},
	}
}

// Set returns the cache set the domain works on.
func (d *MultiPers) Set() int { return d.pers.Set() }

// Assoc returns the associativity the domain ages saturate at.
func (d *MultiPers) Assoc() int { return d.pers.Assoc() }

// Bot returns the unreachable state.
func (d *MultiPers) Bot() State { return d.bot }

// Top returns the no-information state.
func (d *MultiPers) Top() State { return d.top }

// Entry returns the state at the program entry: a single outermost level
// with no persistence information.
func (d *MultiPers) Entry() State {
	return d.top
}

// Equals compares two stacks level by level.
func (d *MultiPers) Equals(s1, s2 State) bool {
	m1, m2 := s1.(*MultiACS), s2.(*MultiACS)
	if m1.Depth() != m2.Depth() {
		return false
	}
	for i := range m1.Levels {
		if !d.pers.Equals(m1.Levels[i], m2.Levels[i]) {
			return false
		}
	}
	return true
}

// Join pads the shorter stack with the identity and joins level by level.
func (d *MultiPers) Join(s1, s2 State) State {
	m1, m2 := s1.(*MultiACS), s2.(*MultiACS)
	switch {
	case m1 == d.bot:
		return m2
	case m2 == d.bot:
		return m1
	}
	if m1.Depth() < m2.Depth() {
		m1, m2 = m2, m1
	}
	os := d.arena.CopyMulti(m1)
	for i := range m2.Levels {
		os.Levels[i] = d.pers.Join(m1.Levels[i], m2.Levels[i]).(*ACS)
	}
	d.os = os
	return os
}

// UpdateEdge adjusts the stack depth across loop and call boundaries.
func (d *MultiPers) UpdateEdge(e *prog.Edge, s State) State {
	m := s.(*MultiACS)
	if m == d.bot {
		return m
	}

	switch {
	case e.LoopExit:
		nd := m.Depth() + prog.LoopOf(e.Sink()).Depth() - prog.LoopOf(e.Source()).Depth()
		if nd < 1 {
			nd = 1
		}
		d.os = d.arena.ResizeMulti(m, m.Depth(), nd, d.pers.Empty())
	case e.LoopEntry:
		d.os = d.arena.ResizeMulti(m, m.Depth(), m.Depth()+1, d.pers.Empty())
	case e.Source().IsSynth():
		// return edge: restore the depth recorded at the call site
		depth, ok := d.depths[e.Source()]
		if !ok {
			return d.bot
		}
		if depth == m.Depth() {
			d.os = d.arena.CopyMulti(m)
		} else {
			d.os = d.arena.ResizeMulti(m, m.Depth(), depth, d.pers.Empty())
		}
	default:
		return m
	}
	return d.os
}

// UpdateBlock records the current depth at call sites and applies the
// accesses of the block to every level.
func (d *MultiPers) UpdateBlock(b *prog.Block, s State) State {
	m := s.(*MultiACS)
	if m == d.bot {
		return m
	}

	if b.IsSynth() {
		d.depths[b] = m.Depth()
	}

	os := State(m)
	accs := d.pers.accessesOf(b)
	for i := range accs {
		if accs[i].Touches(d.Set()) {
			os = d.UpdateAccess(&accs[i], os)
		}
	}
	return os
}

// UpdateAccess applies one access position-wise to every level.
func (d *MultiPers) UpdateAccess(a *access.Access, s State) State {
	m := s.(*MultiACS)
	if m == d.bot {
		return m
	}
	os := d.arena.NewMulti(m.Depth(), nil)
	for i, level := range m.Levels {
		os.Levels[i] = d.pers.UpdateAccess(a, level).(*ACS)
	}
	d.os = os
	return os
}

// Level returns the number of innermost levels in which the given block
// is persistent (age below the associativity), 0 when it is persistent in
// none.
func (d *MultiPers) Level(s State, id int) int {
	m := s.(*MultiACS)
	i := m.Depth() - 1
	for i >= 0 && m.Levels[i].Age[id] < Age(d.Assoc()) {
		i--
	}
	return m.Depth() - 1 - i
}

// Print writes every level of the stack.
func (d *MultiPers) Print(s State, w io.Writer) {
	m := s.(*MultiACS)
	fmt.Fprint(w, "{ ")
	for i, level := range m.Levels {
		if i != 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "L%d: ", i)
		d.pers.Print(level, w)
	}
	fmt.Fprint(w, " }")
}

// Save writes the depth as a 32-bit little-endian count followed by the
// raw level vectors.
func (d *MultiPers) Save(s State, w io.Writer) error {
	m := s.(*MultiACS)
	if err := binary.Write(w, binary.LittleEndian, int32(m.Depth())); err != nil {
		return fmt.Errorf("failed to save MultiACS depth: %w", err)
	}
	for _, level := range m.Levels {
		if err := level.Save(w); err != nil {
			return err
		}
	}
	return nil
}

// Load reads one stack in the Save format.
func (d *MultiPers) Load(r io.Reader) (State, error) {
	var depth int32
	if err := binary.Read(r, binary.LittleEndian, &depth); err != nil {
		return nil, fmt.Errorf("failed to load MultiACS depth: %w", err)
	}
	m := d.arena.NewMulti(int(depth), nil)
	for i := range m.Levels {
		level, err := d.pers.Load(r)
		if err != nil {
			return nil, err
		}
		m.Levels[i] = level.(*ACS)
	}
	d.os = m
	return m, nil
}

// CollectStates marks the sentinels, the last produced stack and the
// nested PERS sentinels.
func (d *MultiPers) CollectStates(mark func(State)) {
	mark(d.bot)
	mark(d.top)
	if d.os != nil {
		mark(d.os)
	}
	d.pers.CollectStates(mark)
}

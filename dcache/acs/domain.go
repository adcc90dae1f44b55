package acs

import (
	"io"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/prog"
)

// Domain bundles the lattice operations of one analysis for one cache set.
// The fixed-point solver drives a Domain without knowing which analysis it
// realizes.
type Domain interface {
	Collector

	// Set returns the cache set the domain works on.
	Set() int
	// Bot returns the unreachable state.
	Bot() State
	// Top returns the no-information state.
	Top() State
	// Entry returns the state at the program entry.
	Entry() State
	// Equals compares two states.
	Equals(s1, s2 State) bool
	// Join combines the states of two merging paths.
	Join(s1, s2 State) State
	// UpdateEdge transfers a state across a CFG edge.
	UpdateEdge(e *prog.Edge, s State) State
	// UpdateBlock transfers a state through a block: every access of the
	// block touching the set is applied in program order.
	UpdateBlock(b *prog.Block, s State) State
	// UpdateAccess applies one access to the state.
	UpdateAccess(a *access.Access, s State) State
	// Print writes a readable form of the state.
	Print(s State, w io.Writer)
	// Save serializes the state.
	Save(s State, w io.Writer) error
	// Load deserializes one state.
	Load(r io.Reader) (State, error)
}

// acsDomain carries what all single-level domains share: the set geometry,
// the arena, the sentinels and the access lists.
type acsDomain struct {
	coll  *access.SetCollection
	accs  access.Map
	arena *Arena

	set  int
	n    int
	assoc int
	sumA int

	bot *ACS
	top *ACS
	os  *ACS
}

func newACSDomain(coll *access.SetCollection, accs access.Map, arena *Arena, set, assoc int, topAge Age) acsDomain {
	n := coll.BlockCount(set)
	return acsDomain{
		coll:  coll,
		accs:  accs,
		arena: arena,
		set:   set,
		n:     n,
		assoc: assoc,
		sumA:  assoc * n,
		bot:   arena.NewACS(n, AgeBot),
		top:   arena.NewACS(n, topAge),
	}
}

// Set returns the cache set the domain works on.
func (d *acsDomain) Set() int { return d.set }

// Assoc returns the associativity the domain ages saturate at.
func (d *acsDomain) Assoc() int { return d.assoc }

// Bot returns the unreachable state.
func (d *acsDomain) Bot() State { return d.bot }

// Top returns the no-information state.
func (d *acsDomain) Top() State { return d.top }

func (d *acsDomain) make(init Age) *ACS {
	d.os = d.arena.NewACS(d.n, init)
	return d.os
}

func (d *acsDomain) copy(src *ACS) *ACS {
	d.os = d.arena.CopyACS(src)
	return d.os
}

// Equals compares two states; the bottom sentinel only equals itself.
func (d *acsDomain) Equals(s1, s2 State) bool {
	a1, a2 := s1.(*ACS), s2.(*ACS)
	if a1 == d.bot || a2 == d.bot {
		return a1 == a2
	}
	return a1.Equals(a2)
}

// UpdateEdge is the identity: single-level domains are insensitive to the
// edge flavor.
func (d *acsDomain) UpdateEdge(e *prog.Edge, s State) State {
	return s
}

// Print writes the state, with "T" and "_" for the sentinels.
func (d *acsDomain) Print(s State, w io.Writer) {
	a := s.(*ACS)
	switch {
	case a == d.bot:
		io.WriteString(w, "_")
	case a == d.top:
		io.WriteString(w, "T")
	default:
		a.Print(d.coll, d.set, w)
	}
}

// Save serializes the raw age vector.
func (d *acsDomain) Save(s State, w io.Writer) error {
	return s.(*ACS).Save(w)
}

// Load deserializes one age vector.
func (d *acsDomain) Load(r io.Reader) (State, error) {
	a := d.arena.NewACS(d.n, AgeBot)
	if err := a.Load(r); err != nil {
		return nil, err
	}
	d.os = a
	return a, nil
}

// CollectStates marks the sentinels and the last produced state.
func (d *acsDomain) CollectStates(mark func(State)) {
	if d.os != nil {
		mark(d.os)
	}
	mark(d.bot)
	mark(d.top)
}

// accessesOf returns every access of the block; callers keep those
// touching the domain's set.
func (d *acsDomain) accessesOf(b *prog.Block) []access.Access {
	return d.accs.At(b)
}

// purgeID returns the dense block id targeted by a purge access in this
// set, or -1 when the purge does not name a cached block of the set.
func purgeID(a *access.Access, set int) int {
	switch a.Kind() {
	case access.Block:
		return a.Block().ID()
	case access.Enum:
		if cb := a.BlockIn(set); cb != nil {
			return cb.ID()
		}
	}
	return -1
}

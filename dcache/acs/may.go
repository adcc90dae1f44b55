package acs

import (
	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/prog"
)

// May is the domain of the MAY analysis: ages are lower bounds on the LRU
// position of every block. A block with age >= A is guaranteed not to be
// in the cache.
type May struct {
	acsDomain
	empty *ACS
}

// NewMay creates the MAY domain for one cache set.
func NewMay(coll *access.SetCollection, accs access.Map, arena *Arena, set, assoc int) *May {
	d := &May{acsDomain: newACSDomain(coll, accs, arena, set, assoc, Age(assoc))}
	d.empty = arena.NewACS(d.n, 0)
	return d
}

// Entry returns the state at the program entry: any block may be anywhere
// in the cache, so every minimum age is zero.
func (d *May) Entry() State {
	return d.empty
}

// Join takes the pointwise minimum of the ages.
func (d *May) Join(s1, s2 State) State {
	a1, a2 := s1.(*ACS), s2.(*ACS)
	switch {
	case a1 == d.bot:
		return a2
	case a2 == d.bot:
		return a1
	case a1 == d.top || a2 == d.top:
		return d.top
	}

	os := d.make(0)
	sum := 0
	for i := 0; i < d.n; i++ {
		os.Age[i] = minAge(a1.Age[i], a2.Age[i])
		sum += int(os.Age[i])
	}
	if sum == d.sumA {
		return d.top
	}
	return os
}

// UpdateBlock applies every access of the block touching this set.
func (d *May) UpdateBlock(b *prog.Block, s State) State {
	os := s
	accs := d.accessesOf(b)
	for i := range accs {
		if accs[i].Touches(d.set) {
			os = d.UpdateAccess(&accs[i], os)
		}
	}
	return os
}

// UpdateAccess applies one access to the state.
func (d *May) UpdateAccess(a *access.Access, s State) State {
	is := s.(*ACS)
	if !a.Touches(d.set) || is == d.bot {
		return is
	}

	switch a.Action() {
	case access.Load, access.Store:
		switch a.Kind() {
		case access.Any, access.Range:
			// the minimum possible age is unchanged by an unknown access
			return is
		case access.Block:
			return d.access(is, a.Block().ID())
		case access.Enum:
			return d.access(is, a.BlockIn(d.set).ID())
		}

	case access.Purge:
		switch a.Kind() {
		case access.Any, access.Range:
			return d.top
		default:
			if id := purgeID(a, d.set); id >= 0 {
				return d.purge(is, id)
			}
		}
	}

	return is
}

func (d *May) access(is *ACS, b int) *ACS {
	if b < 0 {
		return is
	}
	os := d.make(0)
	ba := is.Age[b]
	for i := 0; i < d.n; i++ {
		if is.Age[i] <= ba && is.Age[i] != Age(d.assoc) {
			os.Age[i] = is.Age[i] + 1
		} else {
			os.Age[i] = is.Age[i]
		}
	}
	os.Age[b] = 0
	return os
}

func (d *May) purge(is *ACS, b int) *ACS {
	os := d.copy(is)
	os.Age[b] = Age(d.assoc)
	if sum, _ := os.Sum(); sum == d.sumA {
		return d.top
	}
	return os
}

// CollectStates also keeps the entry sentinel alive.
func (d *May) CollectStates(mark func(State)) {
	d.acsDomain.CollectStates(mark)
	mark(d.empty)
}

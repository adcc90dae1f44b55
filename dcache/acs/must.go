package acs

import (
	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/prog"
)

// Must is the domain of the MUST analysis: ages are upper bounds on the
// LRU position of every block. A block with age < A after a program point
// is guaranteed to be in the cache.
type Must struct {
	acsDomain
}

// NewMust creates the MUST domain for one cache set.
func NewMust(coll *access.SetCollection, accs access.Map, arena *Arena, set, assoc int) *Must {
	return &Must{newACSDomain(coll, accs, arena, set, assoc, Age(assoc))}
}

// Entry returns the state at the program entry: nothing is known to be
// cached, every age is at the associativity.
func (d *Must) Entry() State {
	return d.top
}

// Join takes the pointwise maximum of the ages.
func (d *Must) Join(s1, s2 State) State {
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
		os.Age[i] = maxAge(a1.Age[i], a2.Age[i])
		sum += int(os.Age[i])
	}
	if sum == d.sumA {
		return d.top
	}
	return os
}

// UpdateBlock applies every access of the block touching this set.
func (d *Must) UpdateBlock(b *prog.Block, s State) State {
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
func (d *Must) UpdateAccess(a *access.Access, s State) State {
	is := s.(*ACS)
	if !a.Touches(d.set) || is == d.bot {
		return is
	}

	switch a.Action() {
	case access.Load, access.Store:
		switch a.Kind() {
		case access.Any, access.Range:
			return d.accessAny(is)
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

// access ages every block at least as young as b that is not already
// evicted, then renews b.
func (d *Must) access(is *ACS, b int) *ACS {
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

// purge evicts block b.
func (d *Must) purge(is *ACS, b int) *ACS {
	os := d.copy(is)
	os.Age[b] = Age(d.assoc)
	if sum, _ := os.Sum(); sum == d.sumA {
		return d.top
	}
	return os
}

// accessAny ages every block: the unknown target may be any of them.
func (d *Must) accessAny(is *ACS) *ACS {
	os := d.make(0)
	sum := 0
	for i := 0; i < d.n; i++ {
		os.Age[i] = minAge(Age(d.assoc), is.Age[i]+1)
		sum += int(os.Age[i])
	}
	if sum == d.sumA {
		return d.top
	}
	return os
}

func maxAge(a, b Age) Age {
	if a > b {
		return a
	}
	return b
}

func minAge(a, b Age) Age {
	if a < b {
		return a
	}
	return b
}

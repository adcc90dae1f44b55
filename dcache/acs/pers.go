package acs

import (
	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/prog"
)

// Pers is the domain of the persistence analysis. The bottom age marks a
// block not yet seen in the current scope; a block that stays below the
// associativity can miss at most once per activation of the scope.
type Pers struct {
	acsDomain
	empty *ACS
}

// NewPers creates the PERS domain for one cache set.
func NewPers(coll *access.SetCollection, accs access.Map, arena *Arena, set, assoc int) *Pers {
	d := &Pers{acsDomain: newACSDomain(coll, accs, arena, set, assoc, Age(assoc))}
	d.empty = arena.NewACS(d.n, AgeBot)
	return d
}

// Entry returns the state opening a scope: no block seen yet.
func (d *Pers) Entry() State {
	return d.empty
}

// Empty returns the scope-opening state, shared with MultiPERS.
func (d *Pers) Empty() *ACS {
	return d.empty
}

// Join combines two states position-wise: a bottom entry is absorbed by
// the other operand, otherwise the maximum age wins. The result degrades
// to top when more than A blocks are simultaneously young, or when every
// block is exactly at the eviction age.
func (d *Pers) Join(s1, s2 State) State {
	a1, a2 := s1.(*ACS), s2.(*ACS)
	switch {
	case a1 == d.bot:
		return a2
	case a2 == d.bot:
		return a1
	}

	os := d.make(0)
	cnt, sum, bots := 0, 0, 0
	for i := 0; i < d.n; i++ {
		switch {
		case a1.Age[i] == AgeBot:
			os.Age[i] = a2.Age[i]
		case a2.Age[i] == AgeBot:
			os.Age[i] = a1.Age[i]
		default:
			os.Age[i] = maxAge(a1.Age[i], a2.Age[i])
		}
		if os.Age[i] == AgeBot {
			bots++
		} else {
			sum += int(os.Age[i])
			if int(os.Age[i]) < d.assoc {
				cnt++
			}
		}
	}
	if cnt > d.assoc || (bots == 0 && sum == d.sumA) {
		return d.top
	}
	return os
}

// UpdateBlock applies every access of the block touching this set.
func (d *Pers) UpdateBlock(b *prog.Block, s State) State {
	if s.(*ACS) == d.bot {
		return s
	}
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
func (d *Pers) UpdateAccess(a *access.Access, s State) State {
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

// access ages every block at least as young as b, skipping evicted and
// unseen entries, then renews b. An unseen target ages everything still
// in the cache.
func (d *Pers) access(is *ACS, b int) *ACS {
	if b < 0 {
		return is
	}
	os := d.make(0)
	ba := is.Age[b]
	if ba == AgeBot {
		ba = Age(d.assoc)
	}
	for i := 0; i < d.n; i++ {
		if is.Age[i] != AgeBot && is.Age[i] != Age(d.assoc) && is.Age[i] <= ba {
			os.Age[i] = is.Age[i] + 1
		} else {
			os.Age[i] = is.Age[i]
		}
	}
	os.Age[b] = 0
	return os
}

// purge evicts block b; unseen entries stay unseen.
func (d *Pers) purge(is *ACS, b int) *ACS {
	os := d.copy(is)
	os.Age[b] = Age(d.assoc)
	return os
}

// accessAny ages every seen block, saturating at the associativity.
func (d *Pers) accessAny(is *ACS) *ACS {
	os := d.make(0)
	for i := 0; i < d.n; i++ {
		if is.Age[i] != AgeBot {
			os.Age[i] = minAge(Age(d.assoc), is.Age[i]+1)
		} else {
			os.Age[i] = is.Age[i]
		}
	}
	return os
}

// CollectStates also keeps the entry sentinel alive.
func (d *Pers) CollectStates(mark func(State)) {
	d.acsDomain.CollectStates(mark)
	mark(d.empty)
}

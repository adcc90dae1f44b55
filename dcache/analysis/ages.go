package analysis

import (
	"fmt"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/acs"
	"github.com/sarchlab/dcat/prog"
)

// AgeInfo is the read-only age query interface of the single-level
// analyses. Depending on the providing analysis the age is an upper bound
// (MUST), a lower bound (MAY) or a scope-relative bound (PERS).
type AgeInfo interface {
	// WayCount returns the associativity the ages saturate at.
	WayCount() int
	// Age returns the age of the cache block right before the access,
	// along the given edge into the access's block.
	Age(e *prog.Edge, acc *access.Access, cb *access.CacheBlock) int
	// AgeAt returns the age of the cache block right before the access,
	// joined over every path into the access's block.
	AgeAt(v *prog.Block, acc *access.Access, cb *access.CacheBlock) int
}

// MultiAgeInfo is the read-only query interface of the multi-level
// persistence analysis.
type MultiAgeInfo interface {
	// WayCount returns the associativity the ages saturate at.
	WayCount() int
	// Level returns the number of innermost loop levels in which the
	// block is persistent right before the access, along the given edge.
	Level(e *prog.Edge, acc *access.Access, cb *access.CacheBlock) int
	// LevelAt is Level joined over every path into the access's block.
	LevelAt(v *prog.Block, acc *access.Access, cb *access.CacheBlock) int
}

// Age implements AgeInfo for the single-level analyses.
func (a *Analysis) Age(e *prog.Edge, acc *access.Access, cb *access.CacheBlock) int {
	key := ageKey{edge: e, acc: acc, cb: cb}
	if v, ok := a.memo.Get(key); ok {
		return v
	}
	s := a.AtEdge(e, acc, cb.Set())
	age := a.ageOf(s, cb)
	a.Release(s)
	a.memo.Add(key, age)
	return age
}

// AgeAt implements AgeInfo for the single-level analyses.
func (a *Analysis) AgeAt(v *prog.Block, acc *access.Access, cb *access.CacheBlock) int {
	key := ageKey{block: v, acc: acc, cb: cb}
	if r, ok := a.memo.Get(key); ok {
		return r
	}
	s := a.At(v, acc, cb.Set())
	age := a.ageOf(s, cb)
	a.Release(s)
	a.memo.Add(key, age)
	return age
}

func (a *Analysis) ageOf(s acs.State, cb *access.CacheBlock) int {
	st, ok := s.(*acs.ACS)
	if !ok {
		panic(fmt.Sprintf("analysis: age query on a %v analysis", a.kind))
	}
	return int(st.Age[cb.ID()])
}

// Level implements MultiAgeInfo for the multi-level persistence analysis.
func (a *Analysis) Level(e *prog.Edge, acc *access.Access, cb *access.CacheBlock) int {
	key := ageKey{edge: e, acc: acc, cb: cb}
	if v, ok := a.memo.Get(key); ok {
		return v
	}
	s := a.AtEdge(e, acc, cb.Set())
	lvl := a.levelOf(s, cb)
	a.Release(s)
	a.memo.Add(key, lvl)
	return lvl
}

// LevelAt implements MultiAgeInfo for the multi-level persistence
// analysis.
func (a *Analysis) LevelAt(v *prog.Block, acc *access.Access, cb *access.CacheBlock) int {
	key := ageKey{block: v, acc: acc, cb: cb}
	if r, ok := a.memo.Get(key); ok {
		return r
	}
	s := a.At(v, acc, cb.Set())
	lvl := a.levelOf(s, cb)
	a.Release(s)
	a.memo.Add(key, lvl)
	return lvl
}

func (a *Analysis) levelOf(s acs.State, cb *access.CacheBlock) int {
	d, ok := a.domains[cb.Set()].(*acs.MultiPers)
	if !ok {
		panic(fmt.Sprintf("analysis: level query on a %v analysis", a.kind))
	}
	return d.Level(s, cb.ID())
}

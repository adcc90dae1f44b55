package analysis

import (
	"fmt"
	"io"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/acs"
	"github.com/sarchlab/dcat/prog"
)

// Kind selects which lattice an Analysis runs.
type Kind int

const (
	// Must proves Always-Hit.
	Must Kind = iota
	// May proves Always-Miss.
	May
	// Pers proves single-level persistence.
	Pers
	// MultiPers proves loop-level persistence.
	MultiPers
)

var kindNames = [...]string{"MUST", "MAY", "PERS", "MULTI-PERS"}

func (k Kind) String() string {
	return kindNames[k]
}

// memoSize bounds the age/level query cache of one analysis.
const memoSize = 4096

// Option configures an Analysis.
type Option func(*Analysis)

// WithOnlySets restricts the fixed point to the listed cache sets.
// Out-of-range values are ignored with a warning.
func WithOnlySets(sets ...int) Option {
	return func(a *Analysis) {
		a.onlySets = append(a.onlySets, sets...)
	}
}

// WithArena runs the analysis on a shared arena instead of a private one.
func WithArena(arena *acs.Arena) Option {
	return func(a *Analysis) {
		a.arena = arena
	}
}

// Analysis runs one lattice over every cache set of the program and
// exposes the computed states. Sets are independent: each gets its own
// domain and solver, and sets without observed blocks get none.
type Analysis struct {
	kind       Kind
	coll       *access.SetCollection
	accs       access.Map
	collection *prog.Collection
	arena      *acs.Arena
	assoc      int

	domains []acs.Domain
	solvers []*Solver
	uses    map[acs.State]int
	memo    *lru.Cache[ageKey, int]

	onlySets []int
	sets     []int
	warnings []string
}

type ageKey struct {
	edge  *prog.Edge
	block *prog.Block
	acc   *access.Access
	cb    *access.CacheBlock
}

// New creates an analysis of the given kind. It fails when the cache
// replacement policy is not supported by the age lattices.
func New(kind Kind, coll *access.SetCollection, accs access.Map, collection *prog.Collection, opts ...Option) (*Analysis, error) {
	assoc, err := coll.Cache().ActualAssoc()
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		kind:       kind,
		coll:       coll,
		accs:       accs,
		collection: collection,
		assoc:      assoc,
		uses:       map[acs.State]int{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.arena == nil {
		a.arena = acs.NewArena()
	}
	a.memo, _ = lru.New[ageKey, int](memoSize)

	a.sets = a.selectSets()
	a.domains = make([]acs.Domain, coll.SetCount())
	a.solvers = make([]*Solver, coll.SetCount())
	for set := 0; set < coll.SetCount(); set++ {
		if coll.BlockCount(set) == 0 {
			continue
		}
		a.domains[set] = a.domainFor(set)
		a.solvers[set] = NewSolver(collection, a.domains[set])
	}
	return a, nil
}

func (a *Analysis) domainFor(set int) acs.Domain {
	switch a.kind {
	case Must:
		return acs.NewMust(a.coll, a.accs, a.arena, set, a.assoc)
	case May:
		return acs.NewMay(a.coll, a.accs, a.arena, set, a.assoc)
	case Pers:
		return acs.NewPers(a.coll, a.accs, a.arena, set, a.assoc)
	case MultiPers:
		return acs.NewMultiPers(a.coll, a.accs, a.arena, set, a.assoc)
	default:
		panic(fmt.Sprintf("analysis: unknown kind %d", int(a.kind)))
	}
}

// Kind returns the lattice the analysis runs.
func (a *Analysis) Kind() Kind { return a.kind }

// WayCount returns the associativity the ages saturate at.
func (a *Analysis) WayCount() int { return a.assoc }

// Warnings returns the configuration warnings recorded at construction.
func (a *Analysis) Warnings() []string { return a.warnings }

// Arena returns the arena holding the states of this analysis.
func (a *Analysis) Arena() *acs.Arena { return a.arena }

// Run computes the fixed point of every selected set. Sets may be solved
// in any order; they share no state.
func (a *Analysis) Run() error {
	for _, set := range a.sets {
		if a.solvers[set] == nil {
			continue
		}
		if err := a.solvers[set].Solve(); err != nil {
			return err
		}
	}
	return nil
}

// selectSets resolves the only-set restriction once, at construction.
func (a *Analysis) selectSets() []int {
	if len(a.onlySets) == 0 {
		sets := make([]int, a.coll.SetCount())
		for i := range sets {
			sets[i] = i
		}
		return sets
	}
	var sets []int
	for _, s := range a.onlySets {
		if s < 0 || s >= a.coll.SetCount() {
			a.warnings = append(a.warnings,
				fmt.Sprintf("ignoring invalid set number: %d", s))
			continue
		}
		sets = append(sets, s)
	}
	sort.Ints(sets)
	return sets
}

func (a *Analysis) solver(set int) *Solver {
	if set < 0 || set >= len(a.solvers) || a.solvers[set] == nil {
		panic(fmt.Sprintf("analysis: query for unregistered set %d", set))
	}
	return a.solvers[set]
}

func (a *Analysis) retain(s acs.State) acs.State {
	a.uses[s]++
	return s
}

// Before returns the state at the block input for the set. The state must
// be given back with Release.
func (a *Analysis) Before(v *prog.Block, set int) acs.State {
	return a.retain(a.solver(set).Before(v))
}

// After returns the state at the block output for the set. The state must
// be given back with Release.
func (a *Analysis) After(v *prog.Block, set int) acs.State {
	return a.retain(a.solver(set).After(v))
}

// BeforeEdge returns the state before the edge executes, i.e. after its
// source block. The state must be given back with Release.
func (a *Analysis) BeforeEdge(e *prog.Edge, set int) acs.State {
	return a.retain(a.solver(set).After(e.Source()))
}

// AfterEdge returns the state the edge carries into its sink, before any
// access of the sink. The state must be given back with Release.
func (a *Analysis) AfterEdge(e *prog.Edge, set int) acs.State {
	return a.retain(a.solver(set).AfterEdge(e))
}

// At returns the state immediately before the access executes in the
// block. The access must belong to the block's access list. The state
// must be given back with Release.
func (a *Analysis) At(v *prog.Block, acc *access.Access, set int) acs.State {
	return a.replay(v, acc, a.solver(set).Before(v), set)
}

// AtEdge returns the state immediately before the access executes in the
// edge's sink, along this edge. The state must be given back with
// Release.
func (a *Analysis) AtEdge(e *prog.Edge, acc *access.Access, set int) acs.State {
	return a.replay(e.Sink(), acc, a.solver(set).AfterEdge(e), set)
}

// replay applies the accesses of v preceding acc to the start state.
func (a *Analysis) replay(v *prog.Block, acc *access.Access, start acs.State, set int) acs.State {
	d := a.domains[set]
	s := start
	accs := a.accs.At(v)
	for i := range accs {
		b := &accs[i]
		if b == acc {
			return a.retain(s)
		}
		if b.Touches(set) {
			s = d.UpdateAccess(b, s)
		}
	}
	panic(fmt.Sprintf("analysis: access %v not in block %v", acc, v))
}

// Release gives back a state obtained from Before, After, BeforeEdge,
// AfterEdge, At or AtEdge. Releasing a state that was not handed out, or
// releasing it twice, is a programming bug and panics.
func (a *Analysis) Release(s acs.State) {
	n, ok := a.uses[s]
	if !ok {
		panic("analysis: release of an unknown or already released state")
	}
	if n == 1 {
		delete(a.uses, s)
	} else {
		a.uses[s] = n - 1
	}
}

// Cleanup reclaims every state no longer reachable from the solvers, the
// domains or an unreleased query result.
func (a *Analysis) Cleanup() {
	collectors := []acs.Collector{collectorFunc(a.collectUses)}
	for _, d := range a.domains {
		if d != nil {
			collectors = append(collectors, d)
		}
	}
	for _, s := range a.solvers {
		if s != nil {
			collectors = append(collectors, s)
		}
	}
	a.arena.Collect(collectors...)
}

func (a *Analysis) collectUses(mark func(acs.State)) {
	for s := range a.uses {
		mark(s)
	}
}

type collectorFunc func(mark func(acs.State))

func (f collectorFunc) CollectStates(mark func(acs.State)) { f(mark) }

// Dump prints the state after every block of every selected set.
func (a *Analysis) Dump(w io.Writer) {
	for _, set := range a.sets {
		if a.solvers[set] == nil {
			continue
		}
		fmt.Fprintf(w, "SET %d\n", set)
		for _, g := range a.collection.CFGs() {
			fmt.Fprintf(w, "\tCFG %s\n", g.Name())
			for _, b := range g.Blocks() {
				fmt.Fprintf(w, "\t\t%v: ", b)
				a.domains[set].Print(a.solvers[set].After(b), w)
				fmt.Fprintln(w)
			}
		}
	}
}

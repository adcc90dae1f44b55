// Package classify derives the cache category of every memory access from
// the analysis results: Always-Hit, Always-Miss, Persistent with its scope
// anchor, or Not-Classified.
package classify

import (
	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/analysis"
	"github.com/sarchlab/dcat/prog"
)

// Category is the compact summary of an access's cache behavior.
type Category int

const (
	// NoCat marks an access the classifier does not categorize
	// (no-access and purge records).
	NoCat Category = iota
	// AH marks an access that always hits.
	AH
	// AM marks an access that always misses.
	AM
	// PE marks an access that misses at most once per activation of its
	// scope.
	PE
	// NC marks an access with no usable guarantee.
	NC
)

var categoryNames = [...]string{"NO_CAT", "AH", "AM", "PE", "NC"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "<unknown>"
}

// Result is the category of one access along one edge, with the
// persistence scope anchor for PE results.
type Result struct {
	// Access is the classified access.
	Access *access.Access
	// Category is the derived category.
	Category Category
	// Scope is the block whose execution count bounds the miss count of
	// a PE access, nil otherwise.
	Scope *prog.Block
}

// Results maps every edge to the classification of its sink's accesses,
// in access order.
type Results map[*prog.Edge][]Result

// Option configures a Classifier with an optional analysis.
type Option func(*Classifier)

// WithMay adds the MAY analysis, enabling AM results.
func WithMay(may analysis.AgeInfo) Option {
	return func(c *Classifier) { c.may = may }
}

// WithPers adds the single-level persistence analysis.
func WithPers(pers analysis.AgeInfo) Option {
	return func(c *Classifier) { c.pers = pers }
}

// WithMultiPers adds the multi-level persistence analysis, enabling
// loop-relative PE scopes.
func WithMultiPers(mpers analysis.MultiAgeInfo) Option {
	return func(c *Classifier) { c.mpers = mpers }
}

// Classifier computes categories from the MUST analysis and whichever
// optional analyses are attached.
type Classifier struct {
	must  analysis.AgeInfo
	may   analysis.AgeInfo
	pers  analysis.AgeInfo
	mpers analysis.MultiAgeInfo
	assoc int
}

// New creates a classifier. The MUST analysis is mandatory; the others
// refine the result when present.
func New(must analysis.AgeInfo, opts ...Option) *Classifier {
	c := &Classifier{must: must, assoc: must.WayCount()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run classifies every access of every block along each of its incoming
// edges.
func (c *Classifier) Run(collection *prog.Collection, accs access.Map) Results {
	res := Results{}
	for _, g := range collection.CFGs() {
		for _, b := range g.Blocks() {
			if !b.IsBasic() {
				continue
			}
			list := accs.At(b)
			if len(list) == 0 {
				continue
			}
			for _, e := range b.In() {
				rs := make([]Result, 0, len(list))
				for i := range list {
					rs = append(rs, c.Classify(e, &list[i]))
				}
				res[e] = rs
			}
		}
	}
	return res
}

// Classify derives the category of one access along one edge.
func (c *Classifier) Classify(e *prog.Edge, a *access.Access) Result {
	r := Result{Access: a}

	switch a.Action() {
	case access.NoAccess, access.Purge:
		return r

	case access.DirectLoad, access.DirectStore:
		r.Category = AM
		return r
	}

	switch a.Kind() {
	case access.Any, access.Range:
		r.Category = NC

	case access.Block:
		r.Category, r.Scope = c.classifyBlock(e, a, a.Block())

	case access.Enum:
		r.Category, r.Scope = c.classifyEnum(e, a)
	}
	return r
}

// ClassifyAt derives the category of one access of the given block,
// joined over every path into the block. The prefix event builder uses the
// per-block form, ClassifyBlockAt, to expose the effect of an edge's source
// block.
func (c *Classifier) ClassifyAt(v *prog.Block, a *access.Access) Result {
	r := Result{Access: a}

	switch a.Action() {
	case access.NoAccess, access.Purge:
		return r

	case access.DirectLoad, access.DirectStore:
		r.Category = AM
		return r
	}

	switch a.Kind() {
	case access.Any, access.Range:
		r.Category = NC

	case access.Block:
		r.Category, r.Scope = c.classifyBlockAt(v, a, a.Block())

	case access.Enum:
		cat := NoCat
		var scope *prog.Block
		for _, cb := range a.Blocks() {
			nc, h := c.classifyBlockAt(v, a, cb)
			if cat == NoCat {
				cat = nc
			} else if cat != nc {
				cat, scope = NC, nil
				break
			}
			if nc == PE {
				if scope == nil {
					scope = h
				} else if h != nil && prog.LoopOf(scope).Includes(prog.LoopOf(h)) {
					scope = h
				}
			}
		}
		if cat != PE {
			scope = nil
		}
		r.Category, r.Scope = cat, scope
	}
	return r
}

// classifyBlockAt is classifyBlock with block-level queries.
func (c *Classifier) classifyBlockAt(v *prog.Block, a *access.Access, cb *access.CacheBlock) (Category, *prog.Block) {
	if cb.ID() < 0 {
		return AM, nil
	}

	if c.must.AgeAt(v, a, cb) < c.assoc {
		return AH, nil
	}

	if c.mpers != nil {
		if n := c.mpers.LevelAt(v, a, cb); n != 0 {
			return PE, c.walkLevels(prog.LoopOf(v), n)
		}
	}

	if c.pers != nil && c.pers.AgeAt(v, a, cb) < c.assoc {
		return PE, outermostScope(prog.LoopOf(v))
	}

	if c.may != nil && c.may.AgeAt(v, a, cb) >= c.assoc {
		return AM, nil
	}

	return NC, nil
}

// ClassifyBlock derives the category of the access with respect to one of
// its cache blocks, along an edge. The event builder folds these per-block
// results for ENUM accesses.
func (c *Classifier) ClassifyBlock(e *prog.Edge, a *access.Access, cb *access.CacheBlock) (Category, *prog.Block) {
	return c.classifyBlock(e, a, cb)
}

// ClassifyBlockAt is ClassifyBlock joined over every path into the block.
func (c *Classifier) ClassifyBlockAt(v *prog.Block, a *access.Access, cb *access.CacheBlock) (Category, *prog.Block) {
	return c.classifyBlockAt(v, a, cb)
}

// classifyBlock runs the category decision chain for one cache block.
func (c *Classifier) classifyBlock(e *prog.Edge, a *access.Access, cb *access.CacheBlock) (Category, *prog.Block) {
	// a direct access to an uncached bank never enters the lattices
	if cb.ID() < 0 {
		return AM, nil
	}

	if c.must.Age(e, a, cb) < c.assoc {
		return AH, nil
	}

	if c.mpers != nil {
		if n := c.mpers.Level(e, a, cb); n != 0 {
			return PE, c.walkLevels(prog.LoopOf(e.Sink()), n)
		}
	}

	if c.pers != nil && c.pers.Age(e, a, cb) < c.assoc {
		return PE, outermostScope(prog.LoopOf(e.Sink()))
	}

	if c.may != nil && c.may.Age(e, a, cb) >= c.assoc {
		return AM, nil
	}

	return NC, nil
}

// classifyEnum folds the per-block categories: agreement wins, any
// disagreement degrades to NC. The PE scope is the innermost per-block
// anchor under loop inclusion; incomparable anchors keep the earliest.
func (c *Classifier) classifyEnum(e *prog.Edge, a *access.Access) (Category, *prog.Block) {
	cat := NoCat
	var scope *prog.Block
	for _, cb := range a.Blocks() {
		nc, h := c.classifyBlock(e, a, cb)
		if cat == NoCat {
			cat = nc
		} else if cat != nc {
			return NC, nil
		}
		if nc == PE {
			if scope == nil {
				scope = h
			} else if h != nil && prog.LoopOf(scope).Includes(prog.LoopOf(h)) {
				scope = h
			}
		}
	}
	if cat != PE {
		scope = nil
	}
	return cat, scope
}

// walkLevels walks n-1 loop levels outwards from the given loop. At the
// top of a CFG the walk crosses into the single caller when there is
// exactly one, and stops otherwise. The result is the header of the loop
// reached, or the successor of the CFG entry when the walk ends at a top.
func (c *Classifier) walkLevels(l *prog.Loop, n int) *prog.Block {
	for i := 1; i < n; i++ {
		switch {
		case !l.IsTop():
			l = l.Parent()
		case l.CFG().CallCount() == 1:
			l = prog.LoopOf(l.CFG().Callers()[0])
		default:
			return scopeAnchor(l)
		}
	}
	return scopeAnchor(l)
}

// outermostScope climbs to the outermost real loop containing l.
func outermostScope(l *prog.Loop) *prog.Block {
	if !l.IsTop() {
		for !l.Parent().IsTop() {
			l = l.Parent()
		}
	}
	return scopeAnchor(l)
}

// scopeAnchor maps a loop to the block bounding its activations: its
// header, or the entry successor of the CFG for the top pseudo-loop.
func scopeAnchor(l *prog.Loop) *prog.Block {
	if l.IsTop() {
		out := l.CFG().Entry().Out()
		if len(out) == 0 {
			return l.CFG().Entry()
		}
		return out[0].Sink()
	}
	return l.Header()
}

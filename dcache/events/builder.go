package events

import (
	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/classify"
	"github.com/sarchlab/dcat/hw"
	"github.com/sarchlab/dcat/ilp"
	"github.com/sarchlab/dcat/prog"
)

// defaultAccessSize is assumed for accesses whose width the address
// provider could not determine.
const defaultAccessSize = 4

// Option configures a Builder.
type Option func(*Builder)

// WithExplicit requests verbose event details downstream; it is forwarded
// from the ILP configuration.
func WithExplicit(explicit bool) Option {
	return func(b *Builder) { b.explicit = explicit }
}

// WithPrefix makes the builder attach the effect of each edge's source
// block instead of its sink: ages are queried after the source block and
// the events describe the source's accesses. Pipeline analyses use the
// two lists to separate a block's own cost from its predecessor's.
func WithPrefix() Option {
	return func(b *Builder) { b.prefix = true }
}

// Builder produces the per-edge event lists from the classifier results.
type Builder struct {
	classifier *classify.Classifier
	cache      *hw.Cache
	mem        *hw.Memory
	explicit   bool
	prefix     bool
}

// NewBuilder creates an event builder over the given classifier and
// hardware.
func NewBuilder(classifier *classify.Classifier, coll *access.SetCollection, opts ...Option) *Builder {
	b := &Builder{
		classifier: classifier,
		cache:      coll.Cache(),
		mem:        coll.Memory(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Explicit reports whether verbose details were requested.
func (b *Builder) Explicit() bool { return b.explicit }

// Run builds the event list of every edge of the program.
func (b *Builder) Run(collection *prog.Collection, accs access.Map) List {
	list := List{}
	for _, g := range collection.CFGs() {
		for _, blk := range g.Blocks() {
			if !blk.IsBasic() {
				continue
			}
			for _, e := range blk.In() {
				b.processEdge(e, accs, list)
			}
		}
	}
	return list
}

// processEdge builds the events of one edge. Once a multi-access
// instruction to an unknown address is expanded, its remaining accesses
// are suppressed.
func (b *Builder) processEdge(e *prog.Edge, accs access.Map, list List) {
	src := e.Sink()
	if b.prefix {
		src = e.Source()
	}
	var multi *prog.Inst
	listAccs := accs.At(src)
	for i := range listAccs {
		a := &listAccs[i]
		if a.Inst() == multi {
			continue
		}
		if b.processAccess(e, a, list) {
			multi = a.Inst()
		}
	}
}

// processAccess emits the events of one access and reports whether a
// multi-access expansion happened.
func (b *Builder) processAccess(e *prog.Edge, a *access.Access, list List) bool {
	switch a.Action() {
	case access.NoAccess, access.Purge:
		return false

	case access.DirectLoad, access.DirectStore:
		list[e] = append(list[e], b.directEvent(a))
		return false
	}

	switch a.Kind() {
	case access.Any:
		if a.Inst().IsMulti() {
			b.expandMultiTop(e, a, list)
			return true
		}
		list[e] = append(list[e], b.unboundedEvent(a))

	case access.Range:
		list[e] = append(list[e], b.unboundedEvent(a))

	case access.Block:
		list[e] = append(list[e], b.blockEvent(e, a))

	case access.Enum:
		list[e] = append(list[e], b.enumEvent(e, a))
	}
	return false
}

// classifyBlock dispatches to the edge or the prefix query flavor.
func (b *Builder) classifyBlock(e *prog.Edge, a *access.Access, cb *access.CacheBlock) (classify.Category, *prog.Block) {
	if b.prefix {
		return b.classifier.ClassifyBlockAt(e.Source(), a, cb)
	}
	return b.classifier.ClassifyBlock(e, a, cb)
}

// blockEvent maps the category of a single-block access to its event.
func (b *Builder) blockEvent(e *prog.Edge, a *access.Access) *Event {
	cat, scope := b.classifyBlock(e, a, a.Block())
	evt := &Event{Access: a}

	switch cat {
	case classify.AH:
		evt.Cost = b.hitCost(a, a.Block().Bank())
		evt.Occurrence = Never

	case classify.AM:
		evt.Cost = b.missCost(a)
		evt.Occurrence = Always

	case classify.PE:
		evt.Cost = b.missCost(a)
		evt.Occurrence = Sometimes
		evt.Bound = ilp.Expr{}.Add(1, scope.Var())

	default:
		evt.Cost = b.missCost(a)
		evt.Occurrence = Sometimes
	}
	return evt
}

// enumEvent folds the per-block results of an ENUM access: occurrences
// join under bitwise OR and scopes accumulate in the bound. A SOMETIMES
// block without scope degrades the whole access to an unbounded event.
func (b *Builder) enumEvent(e *prog.Edge, a *access.Access) *Event {
	occ := NoOccurrence
	var bound ilp.Expr
	for _, cb := range a.Blocks() {
		cat, scope := b.classifyBlock(e, a, cb)
		o := occurrenceOf(cat)
		occ |= o
		if scope != nil {
			bound = bound.Add(1, scope.Var())
		} else if o == Sometimes {
			return b.unboundedEvent(a)
		}
	}

	evt := &Event{Access: a, Occurrence: occ, Bound: bound}
	if occ == Never {
		evt.Cost = b.hitCost(a, a.Blocks()[0].Bank())
	} else {
		evt.Cost = b.missCost(a)
	}
	return evt
}

// expandMultiTop emits one unbounded event per cache line a multi-access
// instruction to a completely unknown address may touch, plus one for the
// alignment spill.
func (b *Builder) expandMultiTop(e *prog.Edge, a *access.Access, list List) {
	size := a.Size()
	if size == 0 {
		size = defaultAccessSize
	}
	total := a.Inst().MultiCount * size
	cnt := (total+b.cache.BlockSize-1)>>uint(b.cache.BlockBits()) + 1
	for i := 0; i < cnt; i++ {
		list[e] = append(list[e], b.unboundedEvent(a))
	}
}

// directEvent builds the single always-paid event of a cache-bypassing
// access, costed with the bank latency when the bank is known.
func (b *Builder) directEvent(a *access.Access) *Event {
	var cost uint64
	switch a.Kind() {
	case access.Block:
		cost = b.hitCost(a, a.Block().Bank())
	case access.Enum:
		cost = b.hitCost(a, a.Blocks()[0].Bank())
	default:
		cost = b.missCost(a)
	}
	return &Event{Access: a, Cost: cost, Occurrence: Always}
}

// unboundedEvent is the pessimistic event of an unclassifiable access.
func (b *Builder) unboundedEvent(a *access.Access) *Event {
	return &Event{Access: a, Cost: b.missCost(a), Occurrence: Sometimes}
}

// hitCost is the bank access time of the action.
func (b *Builder) hitCost(a *access.Access, bank *hw.Bank) uint64 {
	switch a.Action() {
	case access.Store, access.DirectStore:
		return bank.WriteLatency
	default:
		return bank.ReadLatency
	}
}

// missCost is the worst memory access time of the action.
func (b *Builder) missCost(a *access.Access) uint64 {
	switch a.Action() {
	case access.Store, access.DirectStore:
		return b.mem.WorstWriteTime()
	default:
		return b.mem.WorstReadTime()
	}
}

// occurrenceOf maps a category to its occurrence contribution.
func occurrenceOf(c classify.Category) Occurrence {
	switch c {
	case classify.AH:
		return Never
	case classify.AM:
		return Always
	case classify.PE, classify.NC:
		return Sometimes
	}
	return NoOccurrence
}

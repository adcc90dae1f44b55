package access

import (
	"fmt"
	"strings"

	"github.com/sarchlab/dcat/prog"
)

// Action is the operation an access performs on the cache.
type Action uint8

const (
	// NoAccess is an invalid action kept for convenience.
	NoAccess Action = iota
	// Load reads through the cache.
	Load
	// Store writes through the cache.
	Store
	// Purge invalidates the target blocks.
	Purge
	// DirectLoad reads bypassing the cache.
	DirectLoad
	// DirectStore writes bypassing the cache.
	DirectStore
)

var actionNames = [...]string{"none", "load", "store", "purge", "direct-load", "direct-store"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// IsDirect reports whether the action bypasses the cache.
func (a Action) IsDirect() bool {
	return a == DirectLoad || a == DirectStore
}

// Kind is the address precision of an access.
type Kind uint8

const (
	// Any is the least precise kind: one access somewhere in memory.
	Any Kind = iota
	// Block is an access to a single known cache block.
	Block
	// Range is an access to one of the cache sets in a modular interval.
	Range
	// Enum is an access to one of an explicit list of cache blocks.
	Enum
)

// Access describes one memory reference of an instruction, as seen by the
// cache. It is a cheap-copy tagged variant; the payload depends on Kind.
type Access struct {
	inst   *prog.Inst
	kind   Kind
	action Action
	size   int
	index  int

	blk      *CacheBlock
	fst, lst int
	blocks   []*CacheBlock
}

// NewAny builds an access with a completely unknown address.
func NewAny(inst *prog.Inst, action Action, size, index int) Access {
	return Access{inst: inst, kind: Any, action: action, size: size, index: index}
}

// NewBlock builds an access to a single cache block.
func NewBlock(inst *prog.Inst, action Action, blk *CacheBlock, size, index int) Access {
	return Access{inst: inst, kind: Block, action: action, blk: blk, size: size, index: index}
}

// NewRange builds an access to one of the sets in [fst, lst], modulo the
// set count when fst > lst.
func NewRange(inst *prog.Inst, action Action, fst, lst, size, index int) Access {
	return Access{inst: inst, kind: Range, action: action, fst: fst, lst: lst, size: size, index: index}
}

// NewEnum builds an access to one of an explicit list of consecutive cache
// blocks. The set interval is derived from the first and last block.
func NewEnum(inst *prog.Inst, action Action, blocks []*CacheBlock, size, index int) Access {
	return Access{
		inst:   inst,
		kind:   Enum,
		action: action,
		fst:    blocks[0].Set(),
		lst:    blocks[len(blocks)-1].Set(),
		blocks: blocks,
		size:   size,
		index:  index,
	}
}

// Inst returns the instruction performing the access.
func (a *Access) Inst() *prog.Inst { return a.inst }

// Kind returns the address precision of the access.
func (a *Access) Kind() Kind { return a.kind }

// Action returns the performed action.
func (a *Access) Action() Action { return a.action }

// Size returns the access width in bytes, 0 when unknown.
func (a *Access) Size() int { return a.size }

// Index returns the sub-access index within a multi-access instruction.
func (a *Access) Index() int { return a.index }

// Block returns the accessed block of a Block access.
func (a *Access) Block() *CacheBlock {
	if a.kind != Block {
		panic("access: Block() on a non-BLOCK access")
	}
	return a.blk
}

// First returns the first set of a Range or Enum access.
func (a *Access) First() int {
	if a.kind != Range && a.kind != Enum {
		panic("access: First() on a non-range access")
	}
	return a.fst
}

// Last returns the last set of a Range or Enum access.
func (a *Access) Last() int {
	if a.kind != Range && a.kind != Enum {
		panic("access: Last() on a non-range access")
	}
	return a.lst
}

// Blocks returns the block list of an Enum access.
func (a *Access) Blocks() []*CacheBlock {
	if a.kind != Enum {
		panic("access: Blocks() on a non-ENUM access")
	}
	return a.blocks
}

// Touches reports whether the access may touch the given cache set.
func (a *Access) Touches(set int) bool {
	switch a.kind {
	case Any:
		return true
	case Block:
		return a.blk.Set() == set
	default:
		if a.fst <= a.lst {
			return a.fst <= set && set <= a.lst
		}
		return a.fst <= set || set <= a.lst
	}
}

// TouchesBlock reports whether the access may hit the given cache block.
func (a *Access) TouchesBlock(b *CacheBlock) bool {
	switch a.kind {
	case Any:
		return true
	case Block:
		return a.blk == b
	case Enum:
		for _, cb := range a.blocks {
			if cb == b {
				return true
			}
		}
		return false
	default:
		return a.Touches(b.Set())
	}
}

// BlockIn returns the block of an Enum access belonging to the given set,
// respecting the modular ordering, or nil when the set is not touched.
func (a *Access) BlockIn(set int) *CacheBlock {
	if a.kind != Enum {
		panic("access: BlockIn() on a non-ENUM access")
	}
	if !a.Touches(set) {
		return nil
	}
	if a.fst <= a.lst || set >= a.fst {
		return a.blocks[set-a.fst]
	}
	return a.blocks[len(a.blocks)-a.lst+set-1]
}

func (a *Access) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "0x%X: %s @ ", a.inst.Addr, a.action)
	switch a.kind {
	case Any:
		b.WriteString("ANY")
	case Block:
		b.WriteString(a.blk.String())
	case Range:
		fmt.Fprintf(&b, "[%d, %d]", a.fst, a.lst)
	case Enum:
		b.WriteString("{")
		for _, cb := range a.blocks {
			b.WriteString(" ")
			b.WriteString(cb.String())
		}
		b.WriteString(" }")
	}
	return b.String()
}

// Map attaches the built access lists to their basic blocks. It plays the
// role of a side table so the program model stays independent from the
// cache view.
type Map map[*prog.Block][]Access

// At returns the access list of a block, nil when the block has none.
func (m Map) At(b *prog.Block) []Access {
	return m[b]
}

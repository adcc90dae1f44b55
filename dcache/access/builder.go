package access

import (
	"fmt"

	"github.com/sarchlab/dcat/hw"
	"github.com/sarchlab/dcat/prog"
)

// Warning records a degradation applied by the builder: the access stays
// sound but loses precision.
type Warning struct {
	// Inst is the originating instruction.
	Inst *prog.Inst
	// Msg describes the degradation.
	Msg string
}

func (w Warning) String() string {
	return fmt.Sprintf("0x%X: %s", w.Inst.Addr, w.Msg)
}

// Builder converts the address-provider records of every instruction into
// cache access descriptors and registers the touched blocks in a
// SetCollection.
type Builder struct {
	cache    *hw.Cache
	mem      *hw.Memory
	coll     *SetCollection
	warnings []Warning
}

// NewBuilder creates a builder for the given hardware description. The
// description must contain a data cache.
func NewBuilder(config *hw.Config) (*Builder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	mem := config.Memory()
	return &Builder{
		cache: config.DataCache,
		mem:   mem,
		coll:  NewSetCollection(config.DataCache, mem),
	}, nil
}

// Collection returns the set collection filled by Build.
func (b *Builder) Collection() *SetCollection {
	return b.coll
}

// Warnings returns the degradations recorded during Build.
func (b *Builder) Warnings() []Warning {
	return b.warnings
}

// Build walks every basic block of the program and attaches its access
// list. An address outside every memory bank is a fatal error reported
// with the originating instruction.
func (b *Builder) Build(collection *prog.Collection) (Map, error) {
	m := Map{}
	for _, g := range collection.CFGs() {
		for _, blk := range g.Blocks() {
			if !blk.IsBasic() {
				continue
			}
			var accs []Access
			for _, inst := range blk.Insts() {
				for i, mem := range inst.Mem {
					a, err := b.buildAccess(inst, mem, i)
					if err != nil {
						return nil, err
					}
					accs = append(accs, a)
				}
			}
			if accs != nil {
				m[blk] = accs
			}
		}
	}
	return m, nil
}

func (b *Builder) buildAccess(inst *prog.Inst, mem prog.MemAccess, index int) (Access, error) {
	action := baseAction(mem.Op)

	// completely unknown address
	if mem.Addr.Top {
		return NewAny(inst, action, mem.Size, index), nil
	}

	// constant address
	if mem.Addr.Lo == mem.Addr.Hi {
		blk := b.coll.Add(mem.Addr.Lo)
		if blk == nil {
			return Access{}, fmt.Errorf(
				"no memory bank for address 0x%X accessed from 0x%X",
				mem.Addr.Lo, inst.Addr)
		}
		if action == Store && !b.cache.WriteAllocate {
			action = asDirect(action)
		} else if blk.ID() < 0 {
			action = asDirect(action)
		}
		return NewBlock(inst, action, blk, mem.Size, index), nil
	}

	// range too large to say anything per set
	if b.cache.CountBlocks(mem.Addr.Lo, mem.Addr.Hi) > b.cache.SetCount {
		b.warn(inst, fmt.Sprintf(
			"range [0x%X, 0x%X] covers more lines than the cache has sets, degraded to ANY",
			mem.Addr.Lo, mem.Addr.Hi))
		return NewAny(inst, action, mem.Size, index), nil
	}

	// range access
	lo := b.coll.Add(mem.Addr.Lo)
	hi := b.coll.Add(mem.Addr.Hi)
	if lo == nil || hi == nil {
		return Access{}, fmt.Errorf(
			"no memory bank for address range [0x%X, 0x%X] accessed from 0x%X",
			mem.Addr.Lo, mem.Addr.Hi, inst.Addr)
	}
	if lo.Bank() != hi.Bank() {
		b.warn(inst, fmt.Sprintf(
			"range [0x%X, 0x%X] spans several banks, degraded to ANY",
			mem.Addr.Lo, mem.Addr.Hi))
		return NewAny(inst, action, mem.Size, index), nil
	}
	if !lo.Bank().Cached {
		action = asDirect(action)
	}
	if action == Store && !b.cache.WriteAllocate {
		action = asDirect(action)
	}
	if lo == hi {
		return NewBlock(inst, action, lo, mem.Size, index), nil
	}

	var blocks []*CacheBlock
	last := b.cache.Round(mem.Addr.Hi)
	for a := b.cache.Round(mem.Addr.Lo); ; a += uint64(b.cache.BlockSize) {
		blocks = append(blocks, b.coll.Add(a))
		if a == last {
			break
		}
	}
	return NewEnum(inst, action, blocks, mem.Size, index), nil
}

func (b *Builder) warn(inst *prog.Inst, msg string) {
	b.warnings = append(b.warnings, Warning{Inst: inst, Msg: msg})
}

func baseAction(op prog.MemOp) Action {
	switch op {
	case prog.MemLoad:
		return Load
	case prog.MemStore:
		return Store
	case prog.MemPurge:
		return Purge
	default:
		return NoAccess
	}
}

func asDirect(a Action) Action {
	switch a {
	case Load:
		return DirectLoad
	case Store:
		return DirectStore
	default:
		return a
	}
}

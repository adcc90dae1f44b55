// Package prog models the analyzed program: a collection of control-flow
// graphs with basic blocks, edges, loops and synthetic call blocks. Blocks
// and loops are identified by dense indices; the structure is immutable once
// the analysis starts.
package prog

import (
	"fmt"

	"github.com/sarchlab/dcat/ilp"
)

// BlockKind distinguishes the block flavors of a CFG.
type BlockKind int

const (
	// EntryBlock is the unique entry of a CFG. It carries no instruction.
	EntryBlock BlockKind = iota
	// ExitBlock is the unique exit of a CFG.
	ExitBlock
	// BasicBlock is a straight-line instruction sequence.
	BasicBlock
	// SynthBlock stands for a function call: it references the callee CFG.
	SynthBlock
)

// MemOp is the action recorded by the address provider for one memory
// reference of an instruction.
type MemOp int

const (
	// MemLoad reads memory.
	MemLoad MemOp = iota
	// MemStore writes memory.
	MemStore
	// MemPurge invalidates the target cache lines.
	MemPurge
)

// MemAddr is the address information the provider derived for a reference:
// either completely unknown (Top), a single constant (Lo == Hi), or an
// interval [Lo, Hi].
type MemAddr struct {
	// Top marks a completely unknown address.
	Top bool
	// Lo is the lowest possible address.
	Lo uint64
	// Hi is the highest possible address.
	Hi uint64
}

// MemAccess is one memory reference of an instruction, in program order.
type MemAccess struct {
	// Op is the performed action.
	Op MemOp
	// Addr is the address information.
	Addr MemAddr
	// Size is the access width in bytes, 0 when unknown.
	Size int
}

// Inst is a program instruction. Only the attributes the cache analysis
// needs are kept.
type Inst struct {
	// Addr is the instruction address, used in diagnostics.
	Addr uint64
	// Mem lists the memory references of the instruction in program order.
	Mem []MemAccess
	// MultiCount is the number of transfers of a multiple-access
	// instruction (e.g. load-multiple), 0 or 1 for ordinary instructions.
	MultiCount int
}

// IsMulti reports whether the instruction performs multiple transfers.
func (i *Inst) IsMulti() bool {
	return i.MultiCount > 1
}

// Block is one node of a CFG.
type Block struct {
	id    int
	kind  BlockKind
	cfg   *CFG
	insts []*Inst
	in    []*Edge
	out   []*Edge
	call  *CFG
	v     *ilp.Var
	loop  *Loop
}

// ID returns the dense index of the block inside its CFG.
func (b *Block) ID() int { return b.id }

// Kind returns the block kind.
func (b *Block) Kind() BlockKind { return b.kind }

// CFG returns the graph owning the block.
func (b *Block) CFG() *CFG { return b.cfg }

// Insts returns the instructions of a basic block.
func (b *Block) Insts() []*Inst { return b.insts }

// In returns the incoming edges.
func (b *Block) In() []*Edge { return b.in }

// Out returns the outgoing edges.
func (b *Block) Out() []*Edge { return b.out }

// Callee returns the called CFG of a synthetic block, nil otherwise.
func (b *Block) Callee() *CFG { return b.call }

// Var returns the ILP variable bound to the block, nil before AssignVars.
func (b *Block) Var() *ilp.Var { return b.v }

// IsBasic reports whether the block holds instructions.
func (b *Block) IsBasic() bool { return b.kind == BasicBlock }

// IsSynth reports whether the block is a function call.
func (b *Block) IsSynth() bool { return b.kind == SynthBlock }

// IsEntry reports whether the block is the CFG entry.
func (b *Block) IsEntry() bool { return b.kind == EntryBlock }

// IsExit reports whether the block is the CFG exit.
func (b *Block) IsExit() bool { return b.kind == ExitBlock }

func (b *Block) String() string {
	return fmt.Sprintf("%s:%d", b.cfg.name, b.id)
}

// Edge is a directed CFG edge. The loop flags are filled by BuildLoops.
type Edge struct {
	src *Block
	dst *Block
	// LoopEntry marks an edge entering a loop: its sink is a loop header
	// and its source is outside the loop.
	LoopEntry bool
	// LoopExit marks an edge leaving one or more loops.
	LoopExit bool
}

// Source returns the edge source block.
func (e *Edge) Source() *Block { return e.src }

// Sink returns the edge sink block.
func (e *Edge) Sink() *Block { return e.dst }

func (e *Edge) String() string {
	return fmt.Sprintf("%v->%v", e.src, e.dst)
}

// CFG is the control-flow graph of one procedure.
type CFG struct {
	name    string
	blocks  []*Block
	entry   *Block
	exit    *Block
	loops   []*Loop
	top     *Loop
	callers []*Block
}

// NewCFG creates an empty CFG with entry and exit blocks.
func NewCFG(name string) *CFG {
	g := &CFG{name: name}
	g.entry = g.addBlock(EntryBlock)
	g.exit = g.addBlock(ExitBlock)
	return g
}

func (g *CFG) addBlock(kind BlockKind) *Block {
	b := &Block{id: len(g.blocks), kind: kind, cfg: g}
	g.blocks = append(g.blocks, b)
	return b
}

// Name returns the procedure name.
func (g *CFG) Name() string { return g.name }

// Entry returns the entry block.
func (g *CFG) Entry() *Block { return g.entry }

// Exit returns the exit block.
func (g *CFG) Exit() *Block { return g.exit }

// Blocks returns all blocks in index order.
func (g *CFG) Blocks() []*Block { return g.blocks }

// Block returns the block with the given index.
func (g *CFG) Block(id int) *Block { return g.blocks[id] }

// Loops returns the loop table of the CFG, top loop excluded.
func (g *CFG) Loops() []*Loop { return g.loops }

// Top returns the top pseudo-loop covering the whole CFG.
func (g *CFG) Top() *Loop { return g.top }

// Callers returns the synthetic blocks calling this CFG.
func (g *CFG) Callers() []*Block { return g.callers }

// CallCount returns the number of call sites of this CFG.
func (g *CFG) CallCount() int { return len(g.callers) }

// AddBasic appends a basic block holding the given instructions.
func (g *CFG) AddBasic(insts ...*Inst) *Block {
	b := g.addBlock(BasicBlock)
	b.insts = insts
	return b
}

// AddSynth appends a synthetic block calling the given CFG.
func (g *CFG) AddSynth(callee *CFG) *Block {
	b := g.addBlock(SynthBlock)
	b.call = callee
	if callee != nil {
		callee.callers = append(callee.callers, b)
	}
	return b
}

// Connect adds an edge from src to dst.
func (g *CFG) Connect(src, dst *Block) *Edge {
	e := &Edge{src: src, dst: dst}
	src.out = append(src.out, e)
	dst.in = append(dst.in, e)
	return e
}

func (g *CFG) String() string {
	return g.name
}

// Collection is the set of CFGs under analysis. The first CFG is the
// program entry point.
type Collection struct {
	cfgs []*CFG
}

// NewCollection builds a collection. The entry CFG comes first.
func NewCollection(cfgs ...*CFG) *Collection {
	return &Collection{cfgs: cfgs}
}

// CFGs returns the graphs in deterministic order, entry first.
func (c *Collection) CFGs() []*CFG { return c.cfgs }

// Entry returns the program entry CFG.
func (c *Collection) Entry() *CFG { return c.cfgs[0] }

// AssignVars binds a fresh ILP variable to every block of the collection.
// Classifier scope anchors and event bounds reference these variables.
func (c *Collection) AssignVars() {
	for _, g := range c.cfgs {
		for _, b := range g.blocks {
			b.v = ilp.NewVar(fmt.Sprintf("x_%s_%d", g.name, b.id))
		}
	}
}

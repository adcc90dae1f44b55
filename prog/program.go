package prog

import (
	"encoding/json"
	"fmt"
	"os"
)

// The JSON program description is the hand-off format between the address
// provider and the engine: it carries the CFG collection plus the memory
// references the provider derived for every instruction.
//
// Block indices in the edge list are final block IDs: every CFG implicitly
// owns block 0 (entry) and block 1 (exit); declared blocks follow from 2.

type programJSON struct {
	Entry string    `json:"entry"`
	CFGs  []cfgJSON `json:"cfgs"`
}

type cfgJSON struct {
	Name   string      `json:"name"`
	Blocks []blockJSON `json:"blocks"`
	Edges  []edgeJSON  `json:"edges"`
}

type blockJSON struct {
	Kind   string     `json:"kind"` // "basic" or "call"
	Callee string     `json:"callee,omitempty"`
	Insts  []instJSON `json:"insts,omitempty"`
}

type instJSON struct {
	Addr  uint64    `json:"addr"`
	Multi int       `json:"multi,omitempty"`
	Mem   []memJSON `json:"mem,omitempty"`
}

type memJSON struct {
	Op   string `json:"op"` // "load", "store" or "purge"
	Top  bool   `json:"top,omitempty"`
	Lo   uint64 `json:"lo,omitempty"`
	Hi   uint64 `json:"hi,omitempty"`
	Size int    `json:"size,omitempty"`
}

// LoadProgram reads a JSON program description. The returned collection has
// its loop tables built and an ILP variable assigned to every block.
func LoadProgram(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program file: %w", err)
	}
	return ParseProgram(data)
}

// ParseProgram builds a collection from JSON program-description bytes.
func ParseProgram(data []byte) (*Collection, error) {
	var doc programJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse program description: %w", err)
	}
	if len(doc.CFGs) == 0 {
		return nil, fmt.Errorf("program description has no CFG")
	}

	byName := map[string]*CFG{}
	for _, cj := range doc.CFGs {
		if _, dup := byName[cj.Name]; dup {
			return nil, fmt.Errorf("duplicate CFG %q", cj.Name)
		}
		byName[cj.Name] = NewCFG(cj.Name)
	}

	entryName := doc.Entry
	if entryName == "" {
		entryName = doc.CFGs[0].Name
	}
	if byName[entryName] == nil {
		return nil, fmt.Errorf("entry CFG %q not defined", entryName)
	}

	for _, cj := range doc.CFGs {
		g := byName[cj.Name]
		for bi, bj := range cj.Blocks {
			switch bj.Kind {
			case "basic", "":
				insts, err := parseInsts(bj.Insts)
				if err != nil {
					return nil, fmt.Errorf("CFG %q block %d: %w", cj.Name, bi+2, err)
				}
				g.AddBasic(insts...)
			case "call":
				callee := byName[bj.Callee]
				if callee == nil {
					return nil, fmt.Errorf("CFG %q block %d: unknown callee %q", cj.Name, bi+2, bj.Callee)
				}
				g.AddSynth(callee)
			default:
				return nil, fmt.Errorf("CFG %q block %d: unknown kind %q", cj.Name, bi+2, bj.Kind)
			}
		}
		for _, ej := range cj.Edges {
			if ej.Src < 0 || ej.Src >= len(g.Blocks()) || ej.Dst < 0 || ej.Dst >= len(g.Blocks()) {
				return nil, fmt.Errorf("CFG %q: edge %d->%d out of range", cj.Name, ej.Src, ej.Dst)
			}
			g.Connect(g.Block(ej.Src), g.Block(ej.Dst))
		}
	}

	cfgs := []*CFG{byName[entryName]}
	for _, cj := range doc.CFGs {
		if cj.Name != entryName {
			cfgs = append(cfgs, byName[cj.Name])
		}
	}

	coll := NewCollection(cfgs...)
	coll.BuildLoops()
	coll.AssignVars()
	return coll, nil
}

type edgeJSON struct {
	Src int `json:"src"`
	Dst int `json:"dst"`
}

func parseInsts(ijs []instJSON) ([]*Inst, error) {
	var insts []*Inst
	for _, ij := range ijs {
		inst := &Inst{Addr: ij.Addr, MultiCount: ij.Multi}
		for _, mj := range ij.Mem {
			var op MemOp
			switch mj.Op {
			case "load":
				op = MemLoad
			case "store":
				op = MemStore
			case "purge":
				op = MemPurge
			default:
				return nil, fmt.Errorf("instruction 0x%X: unknown mem op %q", ij.Addr, mj.Op)
			}
			hi := mj.Hi
			if hi == 0 {
				hi = mj.Lo
			}
			if !mj.Top && hi < mj.Lo {
				return nil, fmt.Errorf("instruction 0x%X: empty address range [0x%X, 0x%X]", ij.Addr, mj.Lo, mj.Hi)
			}
			inst.Mem = append(inst.Mem, MemAccess{
				Op:   op,
				Addr: MemAddr{Top: mj.Top, Lo: mj.Lo, Hi: hi},
				Size: mj.Size,
			})
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

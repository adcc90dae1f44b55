// Package acs implements the abstract-cache-state lattices of the
// categorization engine: the age vectors shared by all analyses, the
// MUST, MAY, PERS and MultiPERS domains, and the arena the states live in.
//
// A state is an age vector with one entry per distinct cached block of one
// cache set. Ages range over [0, A] where A is the associativity; the
// sentinel AgeBot marks a block not yet seen in the current scope
// (persistence analyses only). Transfer functions never modify their input:
// a changed state is freshly allocated, an unchanged result may be the input
// itself or a shared sentinel. States are immutable once published.
package acs

import (
	"fmt"
	"io"

	"github.com/sarchlab/dcat/dcache/access"
)

// Age is one entry of an abstract cache state.
type Age = uint8

// AgeBot marks a block not yet observed in the current persistence scope.
const AgeBot Age = 255

// State is any abstract state managed by the arena. The two
// implementations are ACS and MultiACS.
type State interface {
	// MarkIn marks the state and its referenced states alive in the arena.
	MarkIn(a *Arena)
}

// ACS is an abstract cache state for one cache set: the age of every
// distinct cached block observed in the set.
type ACS struct {
	// Age holds one age per block, indexed by the block's dense ID.
	Age []Age

	mark bool
	free bool
}

// Fill sets every age to the given value.
func (s *ACS) Fill(a Age) {
	for i := range s.Age {
		s.Age[i] = a
	}
}

// Equals reports whether both states hold the same ages.
func (s *ACS) Equals(o *ACS) bool {
	if len(s.Age) != len(o.Age) {
		return false
	}
	for i, a := range s.Age {
		if o.Age[i] != a {
			return false
		}
	}
	return true
}

// Sum returns the sum of all non-bottom ages and the count of bottom
// entries.
func (s *ACS) Sum() (sum int, bots int) {
	for _, a := range s.Age {
		if a == AgeBot {
			bots++
		} else {
			sum += int(a)
		}
	}
	return sum, bots
}

// Save writes the raw age vector to the stream: one byte per block.
func (s *ACS) Save(w io.Writer) error {
	if _, err := w.Write(s.Age); err != nil {
		return fmt.Errorf("failed to save ACS: %w", err)
	}
	return nil
}

// Load reads the raw age vector from the stream.
func (s *ACS) Load(r io.Reader) error {
	if _, err := io.ReadFull(r, s.Age); err != nil {
		return fmt.Errorf("failed to load ACS: %w", err)
	}
	return nil
}

// Print writes a readable form of the state: block addresses mapped to
// ages, with "_" for bottom entries.
func (s *ACS) Print(coll *access.SetCollection, set int, w io.Writer) {
	fmt.Fprint(w, "{ ")
	for i := 0; i < coll.BlockCount(set); i++ {
		if i != 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "0x%X: ", coll.Address(coll.Block(set, i)))
		if s.Age[i] == AgeBot {
			fmt.Fprint(w, "_")
		} else {
			fmt.Fprintf(w, "%d", s.Age[i])
		}
	}
	fmt.Fprint(w, " }")
}

// MarkIn marks the state alive.
func (s *ACS) MarkIn(a *Arena) {
	a.markACS(s)
}

// MultiACS is the state of the multi-level persistence analysis: one PERS
// state per loop level, outermost first.
type MultiACS struct {
	// Levels holds the per-level states, outermost at index 0.
	Levels []*ACS

	mark bool
	free bool
}

// Depth returns the number of levels.
func (m *MultiACS) Depth() int {
	return len(m.Levels)
}

// MarkIn marks the stack and every level alive.
func (m *MultiACS) MarkIn(a *Arena) {
	a.markMulti(m)
	for _, s := range m.Levels {
		if s != nil {
			a.markACS(s)
		}
	}
}

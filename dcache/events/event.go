// Package events converts access categories into the timing events the
// ILP-based WCET computation consumes: per edge, the cost an access may
// add, how often it occurs, and the expression bounding its miss count.
package events

import (
	"fmt"
	"strings"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/ilp"
	"github.com/sarchlab/dcat/prog"
)

// Occurrence describes how often an event contributes its cost. The
// values form a small lattice under bitwise OR, used to fold the
// per-block results of ENUM accesses.
type Occurrence uint8

const (
	// NoOccurrence is the neutral element of the fold.
	NoOccurrence Occurrence = 0
	// Always marks a cost paid on every execution.
	Always Occurrence = 1
	// Never marks a reserved cost that is never paid.
	Never Occurrence = 2
	// Sometimes marks a cost paid on an unknown subset of executions.
	Sometimes Occurrence = Always | Never
)

func (o Occurrence) String() string {
	switch o {
	case NoOccurrence:
		return "no-occurrence"
	case Always:
		return "always"
	case Never:
		return "never"
	case Sometimes:
		return "sometimes"
	}
	return fmt.Sprintf("occurrence(%d)", int(o))
}

// Event is the timing impact of one access along one edge.
type Event struct {
	// Access is the originating access.
	Access *access.Access
	// Cost is the time the event may add, in cycles.
	Cost uint64
	// Occurrence tells how often the cost is paid.
	Occurrence Occurrence
	// Bound bounds the number of occurrences; the empty expression means
	// no bound is known.
	Bound ilp.Expr
}

// Detail returns the diagnostic form of the event.
func (e *Event) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "DC: %v - %v", e.Access, e.Occurrence)
	if e.Occurrence == Sometimes {
		if e.Bound.Empty() {
			b.WriteString(" (no bound)")
		} else {
			fmt.Fprintf(&b, " (xe <= %v)", e.Bound)
		}
	}
	return b.String()
}

// List maps every edge to its events.
type List map[*prog.Edge][]*Event

// At returns the events of an edge.
func (l List) At(e *prog.Edge) []*Event {
	return l[e]
}

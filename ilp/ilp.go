// Package ilp provides the minimal linear-expression model used to bound
// cache-miss counts in the downstream ILP objective. A variable stands for
// the execution count of a CFG block; an expression is a sum of weighted
// variables.
package ilp

import (
	"fmt"
	"strings"
)

// Var is an ILP variable. Variables are compared by identity: every CFG
// block owns at most one Var instance.
type Var struct {
	// Name is the human-readable variable name (e.g. "x_12").
	Name string
}

// NewVar creates a variable with the given name.
func NewVar(name string) *Var {
	return &Var{Name: name}
}

func (v *Var) String() string {
	return v.Name
}

// Term is one weighted variable inside an expression.
type Term struct {
	// Coef is the integer coefficient of the variable.
	Coef int64
	// Var is the referenced variable.
	Var *Var
}

// Expr is a linear expression over ILP variables. The zero value is the
// empty expression, meaning "no bound".
type Expr struct {
	terms []Term
}

// Empty reports whether the expression has no terms.
func (e Expr) Empty() bool {
	return len(e.terms) == 0
}

// Len returns the number of terms.
func (e Expr) Len() int {
	return len(e.terms)
}

// Terms returns the terms of the expression.
func (e Expr) Terms() []Term {
	return e.terms
}

// Add returns the expression extended by coef*v. Terms over the same
// variable are merged.
func (e Expr) Add(coef int64, v *Var) Expr {
	for i, t := range e.terms {
		if t.Var == v {
			ts := make([]Term, len(e.terms))
			copy(ts, e.terms)
			ts[i].Coef += coef
			return Expr{terms: ts}
		}
	}
	ts := make([]Term, len(e.terms)+1)
	copy(ts, e.terms)
	ts[len(e.terms)] = Term{Coef: coef, Var: v}
	return Expr{terms: ts}
}

// Plus returns the sum of two expressions.
func (e Expr) Plus(o Expr) Expr {
	r := e
	for _, t := range o.terms {
		r = r.Add(t.Coef, t.Var)
	}
	return r
}

func (e Expr) String() string {
	if len(e.terms) == 0 {
		return "0"
	}
	var b strings.Builder
	for i, t := range e.terms {
		if i > 0 {
			b.WriteString(" + ")
		}
		if t.Coef == 1 {
			b.WriteString(t.Var.Name)
		} else {
			fmt.Fprintf(&b, "%d*%s", t.Coef, t.Var.Name)
		}
	}
	return b.String()
}

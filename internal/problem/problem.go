// Package problem builds the mixed-integer program for a group pizza order:
// binary assignment and topping-selection variables, hard constraints, and a
// linear objective chosen by the order's objective mode. The representation
// is solver-agnostic; backends in internal/solve translate it.
package problem

import "fmt"

// VarID indexes a decision variable within a Problem.
type VarID int

type Term struct {
	Var   VarID
	Coeff int64
}

type Op int8

const (
	OpEq Op = iota
	OpLe
	OpGe
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpLe:
		return "<="
	case OpGe:
		return ">="
	}
	return "?"
}

// Constraint is a linear constraint sum(Terms) Op RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Op    Op
	RHS   int64
}

type Sense int8

const (
	Maximize Sense = iota
	Minimize
)

// Problem is a fully built optimization problem. Assign and Has record the
// variable layout so the extractor can decode solver output.
type Problem struct {
	Lo, Hi []int64 // inclusive variable bounds; binary variables are [0,1]

	Constraints []Constraint
	Objective   []Term
	Sense       Sense
	// ObjScale is the fixed-point denominator applied to objective
	// coefficients; reported objective values divide by it.
	ObjScale int64

	People, Pizzas, Toppings int

	Assign [][]VarID // Assign[p][z]: person p on pizza z
	Has    [][]VarID // Has[z][t]: pizza z carries topping t
}

func (p *Problem) NumVars() int { return len(p.Lo) }

// Binary reports whether every variable is 0/1. The balance_scores objective
// introduces one bounded integer auxiliary, which some backends cannot encode.
func (p *Problem) Binary() bool {
	for i := range p.Lo {
		if p.Lo[i] != 0 || p.Hi[i] != 1 {
			return false
		}
	}
	return true
}

func (p *Problem) newVar(lo, hi int64) VarID {
	p.Lo = append(p.Lo, lo)
	p.Hi = append(p.Hi, hi)
	return VarID(len(p.Lo) - 1)
}

func (p *Problem) newBinary() VarID { return p.newVar(0, 1) }

func (p *Problem) addConstraint(name string, terms []Term, op Op, rhs int64) {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Terms: terms, Op: op, RHS: rhs})
}

// BuildError reports a structural impossibility detected during problem
// construction. It is surfaced to the caller and never retried.
type BuildError struct {
	Msg string
}

func (e *BuildError) Error() string { return e.Msg }

func buildErrf(format string, args ...any) error {
	return &BuildError{Msg: fmt.Sprintf(format, args...)}
}

package problem

import (
	"fmt"
	"math"

	"pizzaplan/internal/model"
	"pizzaplan/internal/pref"
)

// shareScale is the fixed-point factor applied to objective coefficients when
// the shareability weight makes them fractional.
const shareScale = 1000

// Spec carries the order knobs the builder needs.
type Spec struct {
	Pizzas     int
	ToppingCap int
	Objective  model.ObjectiveMode
	// ShareWeight in [0,1]; 0 keeps assigned-only scoring.
	ShareWeight float64
	// BalanceLoad adds floor/ceil occupancy bounds per pizza. The builder
	// never adds them on its own.
	BalanceLoad bool
}

// Build constructs the full problem for the given preference matrix and spec.
//
// Variables: assign[p][z] and has[z][t] are binary. For every (p,t) pair the
// objective cares about, a binary co[p][t][z] is linearized as the AND of
// assign[p][z] and has[z][t] via the three standard inequalities
// (co <= assign, co <= has, co >= assign + has - 1).
func Build(m *pref.Matrix, spec Spec) (*Problem, error) {
	nPeople := len(m.People)
	nToppings := len(m.Toppings)
	nPizzas := spec.Pizzas

	if nPizzas < 1 {
		return nil, buildErrf("pizza count must be >= 1, got %d", nPizzas)
	}
	if spec.ToppingCap < 1 {
		return nil, buildErrf("toppings per pizza must be >= 1, got %d", spec.ToppingCap)
	}
	if nPeople == 0 {
		return nil, buildErrf("no participants")
	}
	if nToppings == 0 {
		return nil, buildErrf("restaurant catalog is empty")
	}
	if nPizzas > nPeople {
		return nil, buildErrf("cannot have more pizzas (%d) than participants (%d)", nPizzas, nPeople)
	}
	if spec.ShareWeight < 0 || spec.ShareWeight > 1 {
		return nil, buildErrf("shareability weight must be in [0,1], got %g", spec.ShareWeight)
	}
	if !spec.Objective.Valid() {
		return nil, buildErrf("unknown objective mode %q", string(spec.Objective))
	}

	p := &Problem{People: nPeople, Pizzas: nPizzas, Toppings: nToppings}

	p.Assign = make([][]VarID, nPeople)
	for i := range p.Assign {
		p.Assign[i] = make([]VarID, nPizzas)
		for z := range p.Assign[i] {
			p.Assign[i][z] = p.newBinary()
		}
	}
	p.Has = make([][]VarID, nPizzas)
	for z := range p.Has {
		p.Has[z] = make([]VarID, nToppings)
		for t := range p.Has[z] {
			p.Has[z][t] = p.newBinary()
		}
	}

	// Each person lands on exactly one pizza.
	for pi := 0; pi < nPeople; pi++ {
		terms := make([]Term, nPizzas)
		for z := 0; z < nPizzas; z++ {
			terms[z] = Term{Var: p.Assign[pi][z], Coeff: 1}
		}
		p.addConstraint(fmt.Sprintf("person_%d_once", pi), terms, OpEq, 1)
	}

	// Topping cap per pizza.
	for z := 0; z < nPizzas; z++ {
		terms := make([]Term, nToppings)
		for t := 0; t < nToppings; t++ {
			terms[t] = Term{Var: p.Has[z][t], Coeff: 1}
		}
		p.addConstraint(fmt.Sprintf("topping_cap_%d", z), terms, OpLe, int64(spec.ToppingCap))
	}

	// Allergy coupling: an allergic person and their allergen never share a pizza.
	for pi := 0; pi < nPeople; pi++ {
		for t := 0; t < nToppings; t++ {
			if !m.Allergy[pi][t] {
				continue
			}
			for z := 0; z < nPizzas; z++ {
				p.addConstraint(fmt.Sprintf("allergy_%d_%d_%d", pi, t, z),
					[]Term{{p.Assign[pi][z], 1}, {p.Has[z][t], 1}}, OpLe, 1)
			}
		}
	}

	// Optional occupancy balancing: floor(P/N) <= |pizza| <= ceil(P/N).
	if spec.BalanceLoad {
		lo := int64(nPeople / nPizzas)
		hi := int64(math.Ceil(float64(nPeople) / float64(nPizzas)))
		for z := 0; z < nPizzas; z++ {
			terms := make([]Term, nPeople)
			for pi := 0; pi < nPeople; pi++ {
				terms[pi] = Term{Var: p.Assign[pi][z], Coeff: 1}
			}
			p.addConstraint(fmt.Sprintf("pizza_%d_lo", z), terms, OpGe, lo)
			p.addConstraint(fmt.Sprintf("pizza_%d_hi", z), cloneTerms(terms), OpLe, hi)
		}
	}

	// Symmetry breaking: pizzas are interchangeable, so person p (p < N)
	// never sits on a pizza with a higher index than p. Prunes relabelings
	// without excluding any objective value.
	for pi := 0; pi < nPizzas; pi++ {
		for z := pi + 1; z < nPizzas; z++ {
			p.addConstraint(fmt.Sprintf("sym_%d_%d", pi, z),
				[]Term{{p.Assign[pi][z], 1}}, OpEq, 0)
		}
	}

	if err := buildObjective(p, m, spec); err != nil {
		return nil, err
	}
	return p, nil
}

func cloneTerms(in []Term) []Term {
	out := make([]Term, len(in))
	copy(out, in)
	return out
}

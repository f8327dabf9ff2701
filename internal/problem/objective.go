package problem

import (
	"fmt"
	"math"

	"pizzaplan/internal/model"
	"pizzaplan/internal/pref"
)

// buildObjective wires the objective strategy named in the order parameters.
//
// maximize_likes counts realized positive scores; minimize_dislikes counts
// realized negative exposures; balance_scores maximizes the worst per-pizza
// score. With a shareability weight w, each pair's contribution blends the
// assigned-only co term with a group-wide has term:
//
//	score * ((1-w') * co[p][t][z] + w' * has[z][t]),  w' = w/(N-1)
//
// Coefficients are kept integral via fixed-point scaling (ObjScale).
func buildObjective(p *Problem, m *pref.Matrix, spec Spec) error {
	norm := 0.0
	if spec.ShareWeight > 0 && p.Pizzas > 1 {
		norm = spec.ShareWeight / float64(p.Pizzas-1)
	}
	p.ObjScale = 1
	if spec.ShareWeight > 0 {
		p.ObjScale = shareScale
	}

	coCoeff := func(score int) int64 {
		return int64(math.Round(float64(p.ObjScale) * (1 - norm) * float64(score)))
	}
	hasCoeff := func(score int) int64 {
		return int64(math.Round(float64(p.ObjScale) * norm * float64(score)))
	}

	switch spec.Objective {
	case model.MaximizeLikes, model.MinimizeDislikes:
		wantPositive := spec.Objective == model.MaximizeLikes
		hasTerms := map[VarID]int64{}
		for pi := 0; pi < p.People; pi++ {
			for t := 0; t < p.Toppings; t++ {
				score := m.Scores[pi][t]
				if m.Allergy[pi][t] || score == 0 || (score > 0) != wantPositive {
					continue
				}
				weight := score
				if !wantPositive {
					weight = -score // minimize positive exposure counts
				}
				for z, co := range p.linkCo(pi, t) {
					if c := coCoeff(weight); c != 0 {
						p.Objective = append(p.Objective, Term{Var: co, Coeff: c})
					}
					if c := hasCoeff(weight); c != 0 {
						hasTerms[p.Has[z][t]] += c
					}
				}
			}
		}
		for v, c := range hasTerms {
			p.Objective = append(p.Objective, Term{Var: v, Coeff: c})
		}
		if wantPositive {
			p.Sense = Maximize
		} else {
			p.Sense = Minimize
		}

	case model.BalanceScores:
		// Per-pizza signed score expressions, then maximize their minimum
		// through a bounded integer auxiliary.
		pizzaTerms := make([]map[VarID]int64, p.Pizzas)
		for z := range pizzaTerms {
			pizzaTerms[z] = map[VarID]int64{}
		}
		var bound int64
		for pi := 0; pi < p.People; pi++ {
			for t := 0; t < p.Toppings; t++ {
				score := m.Scores[pi][t]
				if m.Allergy[pi][t] || score == 0 {
					continue
				}
				for z, co := range p.linkCo(pi, t) {
					if c := coCoeff(score); c != 0 {
						pizzaTerms[z][co] += c
						bound += abs64(c)
					}
					if c := hasCoeff(score); c != 0 {
						pizzaTerms[z][p.Has[z][t]] += c
						bound += abs64(c)
					}
				}
			}
		}
		minScore := p.newVar(-bound, bound)
		for z := 0; z < p.Pizzas; z++ {
			terms := make([]Term, 0, len(pizzaTerms[z])+1)
			for v, c := range pizzaTerms[z] {
				terms = append(terms, Term{Var: v, Coeff: c})
			}
			terms = append(terms, Term{Var: minScore, Coeff: -1})
			p.addConstraint(fmt.Sprintf("min_score_%d", z), terms, OpGe, 0)
		}
		p.Objective = []Term{{Var: minScore, Coeff: 1}}
		p.Sense = Maximize

	default:
		return buildErrf("unknown objective mode %q", string(spec.Objective))
	}
	return nil
}

// linkCo creates co[p][t][z] for every pizza z and emits the exact AND
// linearization: co <= assign, co <= has, co >= assign + has - 1.
func (p *Problem) linkCo(pi, t int) []VarID {
	cos := make([]VarID, p.Pizzas)
	for z := 0; z < p.Pizzas; z++ {
		co := p.newBinary()
		cos[z] = co
		a := p.Assign[pi][z]
		h := p.Has[z][t]
		p.addConstraint(fmt.Sprintf("co_le_assign_%d_%d_%d", pi, t, z),
			[]Term{{co, 1}, {a, -1}}, OpLe, 0)
		p.addConstraint(fmt.Sprintf("co_le_has_%d_%d_%d", pi, t, z),
			[]Term{{co, 1}, {h, -1}}, OpLe, 0)
		p.addConstraint(fmt.Sprintf("co_ge_%d_%d_%d", pi, t, z),
			[]Term{{co, 1}, {a, -1}, {h, -1}}, OpGe, -1)
	}
	return cos
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

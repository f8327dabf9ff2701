package solve

import (
	"context"
	"time"

	gophersat "github.com/crillab/gophersat/solver"

	"pizzaplan/internal/problem"
)

// PbSat is a pure-Go backend over gophersat's pseudo-boolean solver. The SAT
// engine decides feasibility; optimality comes from objective descent:
// re-solving with a bound that forces each solution to beat the incumbent.
// It handles all-binary problems only.
type PbSat struct{}

func (s *PbSat) Solve(ctx context.Context, p *problem.Problem, limit time.Duration) Outcome {
	start := time.Now()
	if !p.Binary() {
		return errOutcome(0, "pbsat handles binary variables only; use the cpsat backend for this objective mode")
	}
	base := basePB(p)
	deadline := start.Add(limit)

	var (
		incumbent []bool
		bestObj   int64
		found     bool
		bound     []gophersat.PBConstr
	)
	for {
		constrs := make([]gophersat.PBConstr, 0, len(base)+len(bound))
		constrs = append(constrs, base...)
		constrs = append(constrs, bound...)

		st, mdl := solveWithin(ctx, constrs, time.Until(deadline))
		switch st {
		case stepSat:
			incumbent = mdl
			bestObj = evalObjective(p, mdl)
			found = true
			next, improvable := improvementBound(p, bestObj)
			if !improvable {
				return s.done(p, Optimal, incumbent, bestObj, start, "")
			}
			bound = next
		case stepUnsat:
			if found {
				return s.done(p, Optimal, incumbent, bestObj, start, "")
			}
			return Outcome{Status: Infeasible, Reason: "constraints admit no assignment", Elapsed: time.Since(start)}
		case stepCancelled:
			return Outcome{Status: Cancelled, Reason: ctx.Err().Error(), Elapsed: time.Since(start)}
		case stepTimeout:
			if found {
				return s.done(p, Feasible, incumbent, bestObj, start,
					"time limit reached before optimality was proven")
			}
			return errOutcome(time.Since(start), "time limit reached with no solution")
		default:
			return errOutcome(time.Since(start), "sat engine returned an indeterminate status")
		}
	}
}

func (s *PbSat) done(p *problem.Problem, st Status, mdl []bool, obj int64, start time.Time, reason string) Outcome {
	values := make([]int64, p.NumVars())
	for i := range values {
		if i < len(mdl) && mdl[i] {
			values[i] = 1
		}
	}
	return Outcome{
		Status:    st,
		Values:    values,
		Objective: float64(obj) / float64(p.ObjScale),
		Reason:    reason,
		Elapsed:   time.Since(start),
	}
}

type stepStatus int

const (
	stepSat stepStatus = iota
	stepUnsat
	stepTimeout
	stepCancelled
	stepIndet
)

// solveWithin runs one SAT call bounded by the remaining budget. gophersat
// offers no cancellation hook, so an expired budget abandons the call.
func solveWithin(ctx context.Context, constrs []gophersat.PBConstr, budget time.Duration) (stepStatus, []bool) {
	if ctx.Err() != nil {
		return stepCancelled, nil
	}
	if budget <= 0 {
		return stepTimeout, nil
	}
	type result struct {
		status gophersat.Status
		model  []bool
	}
	ch := make(chan result, 1)
	go func() {
		pb := gophersat.ParsePBConstrs(constrs)
		slv := gophersat.New(pb)
		st := slv.Solve()
		var mdl []bool
		if st == gophersat.Sat {
			mdl = append([]bool(nil), slv.Model()...)
		}
		ch <- result{st, mdl}
	}()
	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return stepCancelled, nil
	case <-timer.C:
		return stepTimeout, nil
	case r := <-ch:
		switch r.status {
		case gophersat.Sat:
			return stepSat, r.model
		case gophersat.Unsat:
			return stepUnsat, nil
		}
		return stepIndet, nil
	}
}

func evalObjective(p *problem.Problem, mdl []bool) int64 {
	var total int64
	for _, t := range p.Objective {
		if int(t.Var) < len(mdl) && mdl[t.Var] {
			total += t.Coeff
		}
	}
	return total
}

// improvementBound returns the constraint forcing the next solution to beat
// obj, or improvable=false when the objective cannot move (empty objective).
func improvementBound(p *problem.Problem, obj int64) ([]gophersat.PBConstr, bool) {
	if len(p.Objective) == 0 {
		return nil, false
	}
	if p.Sense == problem.Maximize {
		c, ok := atLeast(p.Objective, obj+1)
		if !ok {
			return nil, false
		}
		return []gophersat.PBConstr{c}, true
	}
	// minimize: objective <= obj-1, i.e. -objective >= -(obj-1)
	c, ok := atLeast(negateTerms(p.Objective), -(obj - 1))
	if !ok {
		return nil, false
	}
	return []gophersat.PBConstr{c}, true
}

// basePB translates the problem's constraints to >=-normal pseudo-boolean
// form. Equalities split into a pair of opposing inequalities.
func basePB(p *problem.Problem) []gophersat.PBConstr {
	var out []gophersat.PBConstr
	add := func(terms []problem.Term, rhs int64) {
		if c, nontrivial := atLeast(terms, rhs); nontrivial {
			out = append(out, c)
		}
	}
	for _, c := range p.Constraints {
		switch c.Op {
		case problem.OpGe:
			add(c.Terms, c.RHS)
		case problem.OpLe:
			add(negateTerms(c.Terms), -c.RHS)
		case problem.OpEq:
			add(c.Terms, c.RHS)
			add(negateTerms(c.Terms), -c.RHS)
		}
	}
	return out
}

func negateTerms(in []problem.Term) []problem.Term {
	out := make([]problem.Term, len(in))
	for i, t := range in {
		out[i] = problem.Term{Var: t.Var, Coeff: -t.Coeff}
	}
	return out
}

// atLeast normalizes sum(terms) >= rhs into gophersat's positive-weight
// GtEq form: negative coefficients flip the literal (c*x = c + |c|*(1-x)).
// ok=false means the constraint is trivially satisfied and can be dropped.
func atLeast(terms []problem.Term, rhs int64) (gophersat.PBConstr, bool) {
	lits := make([]int, 0, len(terms))
	weights := make([]int, 0, len(terms))
	for _, t := range terms {
		switch {
		case t.Coeff > 0:
			lits = append(lits, int(t.Var)+1)
			weights = append(weights, int(t.Coeff))
		case t.Coeff < 0:
			lits = append(lits, -(int(t.Var) + 1))
			weights = append(weights, int(-t.Coeff))
			rhs += -t.Coeff
		}
	}
	if rhs <= 0 {
		return gophersat.PBConstr{}, false
	}
	return gophersat.GtEq(lits, weights, int(rhs)), true
}

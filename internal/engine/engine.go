// Package engine runs one solve end to end: it validates the request,
// builds the preference matrix and the optimization problem, invokes the
// configured backend, and decodes the assignment into a result record.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pizzaplan/internal/model"
	"pizzaplan/internal/pref"
	"pizzaplan/internal/problem"
	"pizzaplan/internal/solve"
)

// DecodeError reports solver output that does not encode a valid assignment.
// It indicates a backend defect, not bad input.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return e.Msg }

func decodeErrf(format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

// Input is a fully resolved solve request: the participating people, the
// restaurant's topping catalog, their preference records, and the order knobs.
type Input struct {
	People  []model.Person
	Catalog []model.Topping
	Records []model.PreferenceRecord
	Order   model.OrderIn
}

// Engine holds the solver backend and the server defaults applied when an
// order leaves a knob unset.
type Engine struct {
	Solver    solve.Solver
	TimeLimit time.Duration

	ToppingCap    int // default toppings per pizza
	DislikeWeight int // score applied to dislikes, must be negative
	BalanceLoad   bool
}

// Solve runs the full pipeline. Infeasibility, timeouts, solver failures and
// cancellation are business outcomes reported in the result's status; the
// error return covers malformed input (pref.ValidationError), impossible
// problem shapes (problem.BuildError) and undecodable solver output
// (DecodeError).
func (e *Engine) Solve(ctx context.Context, in Input) (model.SolveResult, error) {
	objective := in.Order.Objective
	if objective == "" {
		objective = model.MaximizeLikes
	}
	toppingCap := in.Order.ToppingsPerPizza
	if toppingCap == 0 {
		toppingCap = e.ToppingCap
	}
	balance := e.BalanceLoad
	if in.Order.BalanceLoad != nil {
		balance = *in.Order.BalanceLoad
	}

	// An over-provisioned order is the caller's mistake, not an impossible
	// problem shape.
	if in.Order.PizzaCount > len(in.People) {
		return model.SolveResult{}, pref.Invalidf("cannot have more pizzas (%d) than participants (%d)", in.Order.PizzaCount, len(in.People))
	}

	m, err := pref.Build(in.People, in.Catalog, in.Records, e.DislikeWeight)
	if err != nil {
		return model.SolveResult{}, err
	}

	p, err := problem.Build(m, problem.Spec{
		Pizzas:      in.Order.PizzaCount,
		ToppingCap:  toppingCap,
		Objective:   objective,
		ShareWeight: in.Order.ShareabilityWeight,
		BalanceLoad: balance,
	})
	if err != nil {
		return model.SolveResult{}, err
	}

	out := e.Solver.Solve(ctx, p, e.TimeLimit)

	res := model.SolveResult{
		ID:        uuid.NewString(),
		Status:    statusOf(out.Status),
		Reason:    out.Reason,
		ElapsedMs: out.Elapsed.Milliseconds(),
	}
	if !res.Status.Assigned() {
		return res, nil
	}
	res.Objective = out.Objective
	if err := decode(&res, m, p, out.Values); err != nil {
		return model.SolveResult{}, err
	}
	return res, nil
}

func statusOf(s solve.Status) model.SolveStatus {
	switch s {
	case solve.Optimal:
		return model.StatusOptimal
	case solve.Feasible:
		return model.StatusFeasible
	case solve.Infeasible:
		return model.StatusInfeasible
	case solve.Cancelled:
		return model.StatusCancelled
	}
	return model.StatusSolverError
}

// decode reads the assignment and topping variables out of the solver's
// values and fills in the per-pizza and per-person scores.
func decode(res *model.SolveResult, m *pref.Matrix, p *problem.Problem, values []int64) error {
	if len(values) < p.NumVars() {
		return decodeErrf("solver returned %d values for %d variables", len(values), p.NumVars())
	}
	set := func(v problem.VarID) bool { return values[v] > 0 }

	pizzas := make([]model.Pizza, p.Pizzas)
	for z := range pizzas {
		pizzas[z].Index = z
		pizzas[z].Toppings = []string{}
		pizzas[z].People = []string{}
		for t := 0; t < p.Toppings; t++ {
			if set(p.Has[z][t]) {
				pizzas[z].Toppings = append(pizzas[z].Toppings, m.Toppings[t].ID)
			}
		}
	}

	personScores := make(map[string]int, p.People)
	total := 0
	for pi := 0; pi < p.People; pi++ {
		assigned := -1
		for z := 0; z < p.Pizzas; z++ {
			if !set(p.Assign[pi][z]) {
				continue
			}
			if assigned >= 0 {
				return decodeErrf("person %q assigned to pizzas %d and %d", m.People[pi].ID, assigned, z)
			}
			assigned = z
		}
		if assigned < 0 {
			return decodeErrf("person %q assigned to no pizza", m.People[pi].ID)
		}

		score := 0
		for t := 0; t < p.Toppings; t++ {
			if set(p.Has[assigned][t]) {
				score += m.Scores[pi][t]
			}
		}
		pizzas[assigned].People = append(pizzas[assigned].People, m.People[pi].ID)
		pizzas[assigned].Score += score
		personScores[m.People[pi].ID] = score
		total += score
	}

	res.Pizzas = pizzas
	res.PersonScores = personScores
	res.TotalScore = total
	return nil
}

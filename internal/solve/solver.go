// Package solve invokes an external MILP/CP solver against a built problem
// and classifies the outcome. The engine treats backends as black boxes
// behind the Solver interface; each call is independent and safe to run
// concurrently with solves for other orders.
package solve

import (
	"context"
	"fmt"
	"time"

	"pizzaplan/internal/problem"
)

type Status int

const (
	// Optimal: proven optimal solution within the time budget.
	Optimal Status = iota
	// Feasible: a solution was found but optimality was not proven.
	Feasible
	// Infeasible: the constraints admit no solution.
	Infeasible
	// Cancelled: the caller's context was cancelled mid-solve.
	Cancelled
	// Error: the backend failed or returned an unrecognized status.
	Error
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Feasible:
		return "feasible"
	case Infeasible:
		return "infeasible"
	case Cancelled:
		return "cancelled"
	case Error:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome is the tagged result of one solve. Values holds one entry per
// problem variable when Status is Optimal or Feasible. Objective is already
// de-scaled by the problem's ObjScale.
type Outcome struct {
	Status    Status
	Values    []int64
	Objective float64
	Reason    string
	Elapsed   time.Duration
}

// Solver is the capability interface over an external solver. limit bounds
// the blocking call; on expiry the backend returns the best incumbent as
// Feasible, or Error if none was found.
type Solver interface {
	Solve(ctx context.Context, p *problem.Problem, limit time.Duration) Outcome
}

// New returns the backend for the given name.
func New(backend string, workers int) (Solver, error) {
	switch backend {
	case "", "cpsat":
		return &CpSat{Workers: workers}, nil
	case "pbsat":
		return &PbSat{}, nil
	}
	return nil, fmt.Errorf("unknown solver backend %q", backend)
}

func errOutcome(elapsed time.Duration, format string, args ...any) Outcome {
	return Outcome{Status: Error, Reason: fmt.Sprintf(format, args...), Elapsed: elapsed}
}

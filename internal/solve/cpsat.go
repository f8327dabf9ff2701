package solve

import (
	"context"
	"time"

	"github.com/google/or-tools/ortools/sat/go/cpmodel"
	cmpb "github.com/google/or-tools/ortools/sat/proto/cpmodel"
	sppb "github.com/google/or-tools/ortools/sat/proto/satparameters"
	"google.golang.org/protobuf/proto"

	"pizzaplan/internal/problem"
)

// CpSat solves through the bundled CP-SAT engine. It is the default backend:
// the only one that proves optimality on every objective mode, including the
// non-binary balance_scores auxiliary.
type CpSat struct {
	Workers int
}

func (s *CpSat) Solve(ctx context.Context, p *problem.Problem, limit time.Duration) Outcome {
	start := time.Now()
	if ctx.Err() != nil {
		return Outcome{Status: Cancelled, Reason: ctx.Err().Error()}
	}

	builder := cpmodel.NewCpModelBuilder()
	vars := make([]cpmodel.IntVar, p.NumVars())
	for i := range vars {
		vars[i] = builder.NewIntVar(p.Lo[i], p.Hi[i])
	}
	for _, c := range p.Constraints {
		expr := cpmodel.NewLinearExpr()
		for _, t := range c.Terms {
			expr.AddTerm(vars[t.Var], t.Coeff)
		}
		rhs := cpmodel.NewConstant(c.RHS)
		switch c.Op {
		case problem.OpEq:
			builder.AddEquality(expr, rhs)
		case problem.OpLe:
			builder.AddLessOrEqual(expr, rhs)
		case problem.OpGe:
			builder.AddGreaterOrEqual(expr, rhs)
		}
	}
	obj := cpmodel.NewLinearExpr()
	for _, t := range p.Objective {
		obj.AddTerm(vars[t.Var], t.Coeff)
	}
	if p.Sense == problem.Maximize {
		builder.Maximize(obj)
	} else {
		builder.Minimize(obj)
	}

	m, err := builder.Model()
	if err != nil {
		return errOutcome(time.Since(start), "instantiate model: %v", err)
	}

	workers := s.Workers
	if workers <= 0 {
		workers = 4
	}
	params := &sppb.SatParameters{
		MaxTimeInSeconds: proto.Float64(limit.Seconds()),
		NumWorkers:       proto.Int32(int32(workers)),
	}

	type solved struct {
		resp *cmpb.CpSolverResponse
		err  error
	}
	ch := make(chan solved, 1)
	go func() {
		resp, err := cpmodel.SolveCpModelWithParameters(m, params)
		ch <- solved{resp, err}
	}()

	// The solver library offers no cancellation hook, so a cancelled context
	// abandons the call; the background solve still winds down on its own
	// time budget.
	select {
	case <-ctx.Done():
		return Outcome{Status: Cancelled, Reason: ctx.Err().Error(), Elapsed: time.Since(start)}
	case out := <-ch:
		if out.err != nil {
			return errOutcome(time.Since(start), "cp-sat: %v", out.err)
		}
		return s.classify(p, vars, out.resp, time.Since(start))
	}
}

func (s *CpSat) classify(p *problem.Problem, vars []cpmodel.IntVar, resp *cmpb.CpSolverResponse, elapsed time.Duration) Outcome {
	switch resp.GetStatus() {
	case cmpb.CpSolverStatus_OPTIMAL, cmpb.CpSolverStatus_FEASIBLE:
		out := Outcome{
			Status:    Optimal,
			Objective: resp.GetObjectiveValue() / float64(p.ObjScale),
			Elapsed:   elapsed,
		}
		if resp.GetStatus() == cmpb.CpSolverStatus_FEASIBLE {
			out.Status = Feasible
			out.Reason = "time limit reached before optimality was proven"
		}
		out.Values = make([]int64, p.NumVars())
		for i := range out.Values {
			out.Values[i] = cpmodel.SolutionIntegerValue(resp, vars[i])
		}
		return out
	case cmpb.CpSolverStatus_INFEASIBLE:
		return Outcome{Status: Infeasible, Reason: "constraints admit no assignment", Elapsed: elapsed}
	case cmpb.CpSolverStatus_MODEL_INVALID:
		return errOutcome(elapsed, "cp-sat rejected the model as invalid")
	default:
		// UNKNOWN without an incumbent: the budget expired before any
		// solution was found.
		return errOutcome(elapsed, "cp-sat returned %s with no solution", resp.GetStatus())
	}
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"pizzaplan/internal/model"
	"pizzaplan/internal/pref"
	"pizzaplan/internal/problem"
	"pizzaplan/internal/solve"
)

func backends(t *testing.T) map[string]solve.Solver {
	t.Helper()
	out := make(map[string]solve.Solver)
	for _, name := range []string{"cpsat", "pbsat"} {
		s, err := solve.New(name, 2)
		if err != nil {
			t.Fatalf("backend %s: %v", name, err)
		}
		out[name] = s
	}
	return out
}

func newEngine(s solve.Solver) *Engine {
	return &Engine{
		Solver:        s,
		TimeLimit:     5 * time.Second,
		ToppingCap:    3,
		DislikeWeight: -1,
		BalanceLoad:   true,
	}
}

func people(ids ...string) []model.Person {
	out := make([]model.Person, len(ids))
	for i, id := range ids {
		out[i] = model.Person{ID: id, Name: id}
	}
	return out
}

func catalog(ids ...string) []model.Topping {
	out := make([]model.Topping, len(ids))
	for i, id := range ids {
		out[i] = model.Topping{ID: id, Name: id}
	}
	return out
}

func rec(person, topping string, p model.Preference) model.PreferenceRecord {
	return model.PreferenceRecord{PersonID: person, ToppingID: topping, Pref: p}
}

func TestSolveSinglePizzaPicksLikedToppings(t *testing.T) {
	in := Input{
		People:  people("alice", "bob"),
		Catalog: catalog("pepperoni", "mushroom", "onion"),
		Records: []model.PreferenceRecord{
			rec("alice", "pepperoni", model.Like),
			rec("alice", "mushroom", model.Like),
			rec("bob", "pepperoni", model.Like),
			rec("bob", "onion", model.Dislike),
		},
		Order: model.OrderIn{PizzaCount: 1, ToppingsPerPizza: 2, Objective: model.MaximizeLikes},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res, err := newEngine(s).Solve(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != model.StatusOptimal {
				t.Fatalf("status = %s (%s)", res.Status, res.Reason)
			}
			if res.Objective != 3 {
				t.Errorf("objective = %g, want 3", res.Objective)
			}
			if res.TotalScore != 3 {
				t.Errorf("total score = %d, want 3", res.TotalScore)
			}
			if len(res.Pizzas) != 1 {
				t.Fatalf("pizzas = %d, want 1", len(res.Pizzas))
			}
			got := map[string]bool{}
			for _, tp := range res.Pizzas[0].Toppings {
				got[tp] = true
			}
			if !got["pepperoni"] || !got["mushroom"] || got["onion"] {
				t.Errorf("toppings = %v, want pepperoni+mushroom", res.Pizzas[0].Toppings)
			}
			if len(res.Pizzas[0].People) != 2 {
				t.Errorf("people = %v, want both", res.Pizzas[0].People)
			}
			if res.PersonScores["alice"] != 2 || res.PersonScores["bob"] != 1 {
				t.Errorf("person scores = %v", res.PersonScores)
			}
		})
	}
}

func TestSolveAllergySplitsPizzas(t *testing.T) {
	in := Input{
		People:  people("alice", "bob"),
		Catalog: catalog("pepperoni", "mushroom"),
		Records: []model.PreferenceRecord{
			rec("alice", "pepperoni", model.Allergy),
			rec("alice", "mushroom", model.Like),
			rec("bob", "pepperoni", model.Like),
		},
		Order: model.OrderIn{PizzaCount: 2, ToppingsPerPizza: 1, Objective: model.MaximizeLikes},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res, err := newEngine(s).Solve(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != model.StatusOptimal {
				t.Fatalf("status = %s (%s)", res.Status, res.Reason)
			}
			if res.Objective != 2 {
				t.Errorf("objective = %g, want 2", res.Objective)
			}
			// Both likes are realizable only when alice and bob sit apart.
			for _, pz := range res.Pizzas {
				pep := false
				for _, tp := range pz.Toppings {
					if tp == "pepperoni" {
						pep = true
					}
				}
				for _, id := range pz.People {
					if id == "alice" && pep {
						t.Fatalf("alice shares a pizza with her allergen: %+v", pz)
					}
				}
			}
			if res.PersonScores["alice"] != 1 || res.PersonScores["bob"] != 1 {
				t.Errorf("person scores = %v, want 1 each", res.PersonScores)
			}
		})
	}
}

func TestSolveMinimizeDislikesSkipsContestedTopping(t *testing.T) {
	in := Input{
		People:  people("alice", "bob"),
		Catalog: catalog("onion"),
		Records: []model.PreferenceRecord{
			rec("alice", "onion", model.Dislike),
			rec("bob", "onion", model.Like),
		},
		Order: model.OrderIn{PizzaCount: 1, Objective: model.MinimizeDislikes},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res, err := newEngine(s).Solve(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != model.StatusOptimal {
				t.Fatalf("status = %s (%s)", res.Status, res.Reason)
			}
			if res.Objective != 0 {
				t.Errorf("objective = %g, want 0 realized dislikes", res.Objective)
			}
			if len(res.Pizzas[0].Toppings) != 0 {
				t.Errorf("toppings = %v, want none", res.Pizzas[0].Toppings)
			}
		})
	}
}

func TestSolveUnratedIsDislike(t *testing.T) {
	ppl := people("alice", "bob")
	ppl[0].UnratedIsDislike = true
	in := Input{
		People:  ppl,
		Catalog: catalog("anchovy"),
		Records: []model.PreferenceRecord{
			rec("bob", "anchovy", model.Like),
		},
		Order: model.OrderIn{PizzaCount: 1, Objective: model.MinimizeDislikes},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res, err := newEngine(s).Solve(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != model.StatusOptimal {
				t.Fatalf("status = %s (%s)", res.Status, res.Reason)
			}
			// alice's unrated anchovy counts as a dislike, so the cheapest
			// pizza carries nothing.
			if len(res.Pizzas[0].Toppings) != 0 {
				t.Errorf("toppings = %v, want none", res.Pizzas[0].Toppings)
			}
		})
	}
}

func TestSolveBalancedOccupancy(t *testing.T) {
	in := Input{
		People:  people("a", "b", "c", "d", "e"),
		Catalog: catalog("cheese"),
		Records: []model.PreferenceRecord{rec("a", "cheese", model.Like)},
		Order:   model.OrderIn{PizzaCount: 2, Objective: model.MaximizeLikes},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res, err := newEngine(s).Solve(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Status.Assigned() {
				t.Fatalf("status = %s (%s)", res.Status, res.Reason)
			}
			for _, pz := range res.Pizzas {
				if n := len(pz.People); n < 2 || n > 3 {
					t.Errorf("pizza %d holds %d people, want 2 or 3", pz.Index, n)
				}
			}
		})
	}
}

func TestSolveObjectiveDefaultsToMaximizeLikes(t *testing.T) {
	in := Input{
		People:  people("alice"),
		Catalog: catalog("pepperoni"),
		Records: []model.PreferenceRecord{rec("alice", "pepperoni", model.Like)},
		Order:   model.OrderIn{PizzaCount: 1},
	}
	res, err := newEngine(&solve.PbSat{}).Solve(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if res.Objective != 1 {
		t.Errorf("objective = %g, want 1", res.Objective)
	}
}

func TestSolveDeterministicOptimum(t *testing.T) {
	in := Input{
		People:  people("alice", "bob", "carol"),
		Catalog: catalog("pepperoni", "mushroom", "onion", "olive"),
		Records: []model.PreferenceRecord{
			rec("alice", "pepperoni", model.Like),
			rec("alice", "onion", model.Dislike),
			rec("bob", "mushroom", model.Like),
			rec("bob", "olive", model.Like),
			rec("carol", "pepperoni", model.Like),
			rec("carol", "mushroom", model.Dislike),
		},
		Order: model.OrderIn{PizzaCount: 2, ToppingsPerPizza: 2, Objective: model.MaximizeLikes},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			eng := newEngine(s)
			var first float64
			for i := 0; i < 3; i++ {
				res, err := eng.Solve(context.Background(), in)
				if err != nil {
					t.Fatal(err)
				}
				if res.Status != model.StatusOptimal {
					t.Fatalf("run %d: status = %s (%s)", i, res.Status, res.Reason)
				}
				if i == 0 {
					first = res.Objective
				} else if res.Objective != first {
					t.Fatalf("run %d: objective %g differs from %g", i, res.Objective, first)
				}
			}
		})
	}
}

func TestSolveAddingLikeNeverLowersObjective(t *testing.T) {
	base := Input{
		People:  people("alice", "bob", "carol"),
		Catalog: catalog("pepperoni", "mushroom", "onion", "olive"),
		Records: []model.PreferenceRecord{
			rec("alice", "pepperoni", model.Like),
			rec("bob", "onion", model.Dislike),
			rec("carol", "mushroom", model.Like),
		},
		Order: model.OrderIn{PizzaCount: 2, ToppingsPerPizza: 2, Objective: model.MaximizeLikes},
	}
	// each extra like widens the feasible upside, never shrinks it
	extra := []model.PreferenceRecord{
		rec("bob", "mushroom", model.Like),
		rec("alice", "olive", model.Like),
		rec("carol", "olive", model.Like),
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			eng := newEngine(s)
			in := base
			in.Records = append([]model.PreferenceRecord{}, base.Records...)
			prev := -1.0
			for step := 0; step <= len(extra); step++ {
				if step > 0 {
					in.Records = append(in.Records, extra[step-1])
				}
				res, err := eng.Solve(context.Background(), in)
				if err != nil {
					t.Fatalf("step %d: %v", step, err)
				}
				if res.Status != model.StatusOptimal {
					t.Fatalf("step %d: status = %s (%s)", step, res.Status, res.Reason)
				}
				if res.Objective < prev {
					t.Fatalf("step %d: objective fell from %g to %g after adding a like", step, prev, res.Objective)
				}
				prev = res.Objective
			}
		})
	}
}

func TestSolveValidationError(t *testing.T) {
	in := Input{
		People:  people("alice"),
		Catalog: catalog("pepperoni"),
		Records: []model.PreferenceRecord{rec("alice", "pineapple", model.Like)},
		Order:   model.OrderIn{PizzaCount: 1},
	}
	_, err := newEngine(&solve.PbSat{}).Solve(context.Background(), in)
	var verr *pref.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestSolveMorePizzasThanPeopleIsCallerError(t *testing.T) {
	in := Input{
		People:  people("alice"),
		Catalog: catalog("pepperoni"),
		Order:   model.OrderIn{PizzaCount: 3},
	}
	_, err := newEngine(&solve.PbSat{}).Solve(context.Background(), in)
	var verr *pref.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestSolveBuildError(t *testing.T) {
	in := Input{
		People:  people("alice"),
		Catalog: catalog(),
		Order:   model.OrderIn{PizzaCount: 1},
	}
	_, err := newEngine(&solve.PbSat{}).Solve(context.Background(), in)
	var berr *problem.BuildError
	if !errors.As(err, &berr) {
		t.Fatalf("err = %v, want BuildError", err)
	}
}

func TestSolveCancelled(t *testing.T) {
	in := Input{
		People:  people("alice"),
		Catalog: catalog("pepperoni"),
		Order:   model.OrderIn{PizzaCount: 1},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res, err := newEngine(s).Solve(ctx, in)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != model.StatusCancelled {
				t.Fatalf("status = %s, want cancelled", res.Status)
			}
			if len(res.Pizzas) != 0 {
				t.Errorf("cancelled result must carry no assignment")
			}
		})
	}
}

// fakeSolver returns a fixed outcome, for exercising the decoder's defect paths.
type fakeSolver struct {
	out solve.Outcome
}

func (f *fakeSolver) Solve(context.Context, *problem.Problem, time.Duration) solve.Outcome {
	return f.out
}

func TestSolveDecodeError(t *testing.T) {
	in := Input{
		People:  people("alice"),
		Catalog: catalog("pepperoni"),
		Order:   model.OrderIn{PizzaCount: 1},
	}
	// All-zero values assign alice to no pizza.
	fake := &fakeSolver{out: solve.Outcome{Status: solve.Optimal, Values: make([]int64, 16)}}
	_, err := newEngine(fake).Solve(context.Background(), in)
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
}

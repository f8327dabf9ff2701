// Package pref normalizes raw preference records into the numeric scoring
// matrix and allergy set consumed by the problem builder.
package pref

import (
	"fmt"

	"pizzaplan/internal/model"
)

// ValidationError reports malformed solve input. It is raised before any
// problem construction and is user-correctable.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Matrix holds per-(person, topping) scores and hard exclusions, indexed by
// position in People and Toppings. Allergies never contribute to Scores.
type Matrix struct {
	People   []model.Person
	Toppings []model.Topping

	Scores  [][]int  // Scores[p][t], dislike weight already applied
	Allergy [][]bool // Allergy[p][t]
}

// Build validates records against the catalog and produces the matrix.
// Missing entries default to Neutral, or to Dislike for people with
// UnratedIsDislike set. dislikeWeight is the score used for Dislike entries
// (the standard value is -1).
func Build(people []model.Person, catalog []model.Topping, records []model.PreferenceRecord, dislikeWeight int) (*Matrix, error) {
	if dislikeWeight >= 0 {
		return nil, Invalidf("dislike weight must be negative, got %d", dislikeWeight)
	}
	pIdx := make(map[string]int, len(people))
	for i, p := range people {
		if _, dup := pIdx[p.ID]; dup {
			return nil, Invalidf("duplicate participant %q", p.ID)
		}
		pIdx[p.ID] = i
	}
	tIdx := make(map[string]int, len(catalog))
	for i, t := range catalog {
		if _, dup := tIdx[t.ID]; dup {
			return nil, Invalidf("duplicate topping %q in catalog", t.ID)
		}
		tIdx[t.ID] = i
	}

	m := &Matrix{
		People:   people,
		Toppings: catalog,
		Scores:   make([][]int, len(people)),
		Allergy:  make([][]bool, len(people)),
	}
	for p := range people {
		m.Scores[p] = make([]int, len(catalog))
		m.Allergy[p] = make([]bool, len(catalog))
		if people[p].UnratedIsDislike {
			for t := range catalog {
				m.Scores[p][t] = dislikeWeight
			}
		}
	}

	seen := make(map[[2]int]bool, len(records))
	for _, r := range records {
		p, ok := pIdx[r.PersonID]
		if !ok {
			// Records for non-participants are legal input; the order simply
			// does not include them.
			continue
		}
		t, ok := tIdx[r.ToppingID]
		if !ok {
			return nil, Invalidf("preference references topping %q outside the restaurant catalog", r.ToppingID)
		}
		if !r.Pref.Valid() {
			return nil, Invalidf("invalid preference value %d for person %q topping %q", int(r.Pref), r.PersonID, r.ToppingID)
		}
		key := [2]int{p, t}
		if seen[key] {
			return nil, Invalidf("duplicate preference for person %q topping %q", r.PersonID, r.ToppingID)
		}
		seen[key] = true

		switch r.Pref {
		case model.Allergy:
			m.Allergy[p][t] = true
			m.Scores[p][t] = 0
		case model.Dislike:
			m.Scores[p][t] = dislikeWeight
		default:
			m.Scores[p][t] = int(r.Pref)
		}
	}
	return m, nil
}

// NonZero reports whether (p, t) carries a soft score the objective cares about.
func (m *Matrix) NonZero(p, t int) bool {
	return !m.Allergy[p][t] && m.Scores[p][t] != 0
}

package model

import "fmt"

// Preference is a person's recorded attitude toward a topping. Allergy is a
// hard constraint, not a score; the other levels map directly to scores.
type Preference int

const (
	Allergy Preference = -2
	Dislike Preference = -1
	Neutral Preference = 0
	Like    Preference = 1
)

func (p Preference) Valid() bool {
	return p >= Allergy && p <= Like
}

func (p Preference) String() string {
	switch p {
	case Allergy:
		return "allergy"
	case Dislike:
		return "dislike"
	case Neutral:
		return "neutral"
	case Like:
		return "like"
	}
	return fmt.Sprintf("preference(%d)", int(p))
}

// ParsePreference accepts the wire names used by order-management clients.
func ParsePreference(s string) (Preference, error) {
	switch s {
	case "allergy":
		return Allergy, nil
	case "dislike":
		return Dislike, nil
	case "neutral", "":
		return Neutral, nil
	case "like":
		return Like, nil
	}
	return Neutral, fmt.Errorf("unknown preference %q", s)
}

// ObjectiveMode selects the scoring policy for a solve.
type ObjectiveMode string

const (
	MaximizeLikes    ObjectiveMode = "maximize_likes"
	MinimizeDislikes ObjectiveMode = "minimize_dislikes"
	// BalanceScores maximizes the worst per-pizza score instead of the sum.
	BalanceScores ObjectiveMode = "balance_scores"
)

func (m ObjectiveMode) Valid() bool {
	switch m {
	case MaximizeLikes, MinimizeDislikes, BalanceScores:
		return true
	}
	return false
}

type Restaurant struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Topping struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurantId,omitempty"`
	Name         string `json:"name"`
}

type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	// UnratedIsDislike treats toppings with no recorded preference as Dislike
	// instead of Neutral when this person participates in a solve.
	UnratedIsDislike bool `json:"unratedIsDislike,omitempty"`
}

// PreferenceRecord is one (person, topping, preference) entry.
type PreferenceRecord struct {
	PersonID  string     `json:"personId"`
	ToppingID string     `json:"toppingId"`
	Pref      Preference `json:"preference"`
}

// OrderIn is the order descriptor consumed from the order-management collaborator.
type OrderIn struct {
	RestaurantID     string        `json:"restaurantId"`
	PizzaCount       int           `json:"pizzaCount"`
	ToppingsPerPizza int           `json:"toppingsPerPizza,omitempty"` // 0 means server default
	ParticipantIDs   []string      `json:"participantIds"`
	Objective        ObjectiveMode `json:"objective,omitempty"`
	// ShareabilityWeight in [0,1] blends in non-assigned participants'
	// preferences; 0 keeps the standard assigned-only scoring.
	ShareabilityWeight float64 `json:"shareabilityWeight,omitempty"`
	// BalanceLoad toggles the floor/ceil occupancy bounds per pizza.
	// nil defers to the server default.
	BalanceLoad *bool `json:"balanceLoad,omitempty"`
}

type Order struct {
	ID string `json:"id"`
	OrderIn
	Status    string `json:"status"` // draft, solving, solved, failed
	CreatedAt string `json:"createdAt,omitempty"`
}

// SolveStatus classifies a solve attempt. Non-success statuses are business
// outcomes carried in the result, never Go errors.
type SolveStatus string

const (
	StatusOptimal     SolveStatus = "optimal"
	StatusFeasible    SolveStatus = "feasible"
	StatusInfeasible  SolveStatus = "infeasible"
	StatusSolverError SolveStatus = "solver_error"
	StatusCancelled   SolveStatus = "cancelled"
)

// Assigned reports whether the status carries an assignment.
func (s SolveStatus) Assigned() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Pizza is one slot of a solved order: the people assigned to it, the
// toppings selected for it, and the summed realized score of its people.
type Pizza struct {
	Index    int      `json:"index"`
	Toppings []string `json:"toppings"`
	People   []string `json:"people"`
	Score    int      `json:"score"`
}

// SolveResult is the immutable outcome of one solve request.
type SolveResult struct {
	ID           string         `json:"id"`
	OrderID      string         `json:"orderId,omitempty"`
	Status       SolveStatus    `json:"status"`
	Reason       string         `json:"reason,omitempty"`
	Objective    float64        `json:"objective,omitempty"`
	Pizzas       []Pizza        `json:"pizzas,omitempty"`
	PersonScores map[string]int `json:"personScores,omitempty"`
	TotalScore   int            `json:"totalScore,omitempty"`
	ElapsedMs    int64          `json:"elapsedMs"`
}

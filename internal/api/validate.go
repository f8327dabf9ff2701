package api

import (
	"fmt"

	"pizzaplan/internal/model"
)

func validateOrder(in *model.OrderIn) error {
	if in.RestaurantID == "" {
		return fmt.Errorf("restaurantId is required")
	}
	if in.PizzaCount < 1 {
		return fmt.Errorf("pizzaCount must be >= 1")
	}
	if in.ToppingsPerPizza < 0 {
		return fmt.Errorf("toppingsPerPizza must be >= 0")
	}
	if len(in.ParticipantIDs) == 0 {
		return fmt.Errorf("participantIds must not be empty")
	}
	if in.PizzaCount > len(in.ParticipantIDs) {
		return fmt.Errorf("pizzaCount (%d) exceeds participant count (%d)", in.PizzaCount, len(in.ParticipantIDs))
	}
	if in.Objective != "" && !in.Objective.Valid() {
		return fmt.Errorf("unknown objective %q (allowed: maximize_likes, minimize_dislikes, balance_scores)", in.Objective)
	}
	if in.ShareabilityWeight < 0 || in.ShareabilityWeight > 1 {
		return fmt.Errorf("shareabilityWeight must be in [0,1]")
	}
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pizzaplan/internal/engine"
	"pizzaplan/internal/metrics"
	"pizzaplan/internal/model"
	"pizzaplan/internal/store"
)

// RestaurantsHandler handles POST/GET /v1/restaurants
func (s *Server) RestaurantsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.Restaurant
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if in.Name == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid restaurant", "name is required", r.URL.Path)
			return
		}
		out, err := s.Store.CreateRestaurant(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create restaurant failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		items, next, err := s.Store.ListRestaurants(r.Context(), r.URL.Query().Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List restaurants failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RestaurantByIDHandler handles GET /v1/restaurants/{id} and
// POST/GET /v1/restaurants/{id}/toppings
func (s *Server) RestaurantByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/restaurants/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	id, sub, _ := strings.Cut(rest, "/")

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		out, err := s.Store.GetRestaurant(r.Context(), id)
		if err != nil {
			writeStoreError(w, err, "Get restaurant failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case "toppings":
		s.toppingsHandler(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) toppingsHandler(w http.ResponseWriter, r *http.Request, restaurantID string) {
	switch r.Method {
	case http.MethodPost:
		var in model.Topping
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if in.Name == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid topping", "name is required", r.URL.Path)
			return
		}
		in.RestaurantID = restaurantID
		out, err := s.Store.CreateTopping(r.Context(), in)
		if err != nil {
			writeStoreError(w, err, "Create topping failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		items, err := s.Store.ListToppings(r.Context(), restaurantID)
		if err != nil {
			writeStoreError(w, err, "List toppings failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PeopleHandler handles POST/GET /v1/people
func (s *Server) PeopleHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.Person
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if in.Name == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid person", "name is required", r.URL.Path)
			return
		}
		out, err := s.Store.CreatePerson(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create person failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		items, next, err := s.Store.ListPeople(r.Context(), r.URL.Query().Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List people failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// preferenceIn carries one preference entry on the wire, with the level as a
// name rather than a number.
type preferenceIn struct {
	ToppingID  string `json:"toppingId"`
	Preference string `json:"preference"`
}

// PersonByIDHandler handles GET /v1/people/{id} and
// PUT /v1/people/{id}/preferences
func (s *Server) PersonByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/people/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	id, sub, _ := strings.Cut(rest, "/")

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		out, err := s.Store.GetPerson(r.Context(), id)
		if err != nil {
			writeStoreError(w, err, "Get person failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case "preferences":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var in []preferenceIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		updated := 0
		for _, p := range in {
			pref, err := model.ParsePreference(p.Preference)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid preference", err.Error(), r.URL.Path)
				return
			}
			err = s.Store.PutPreference(r.Context(), model.PreferenceRecord{PersonID: id, ToppingID: p.ToppingID, Pref: pref})
			if err != nil {
				writeStoreError(w, err, "Save preference failed", r.URL.Path)
				return
			}
			updated++
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.OrderIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateOrder(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
			return
		}
		if _, err := s.Store.GetRestaurant(r.Context(), in.RestaurantID); err != nil {
			writeStoreError(w, err, "Resolve restaurant failed", r.URL.Path)
			return
		}
		for _, pid := range in.ParticipantIDs {
			if _, err := s.Store.GetPerson(r.Context(), pid); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeProblem(w, http.StatusBadRequest, "Invalid order", fmt.Sprintf("unknown participant %q", pid), r.URL.Path)
					return
				}
				writeProblem(w, http.StatusInternalServerError, "Resolve participant failed", err.Error(), r.URL.Path)
				return
			}
		}
		out, err := s.Store.CreateOrder(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create order failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		items, next, err := s.Store.ListOrders(r.Context(), r.URL.Query().Get("status"), r.URL.Query().Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OrderByIDHandler handles GET /v1/orders/{id}, POST /v1/orders/{id}/solve,
// GET /v1/orders/{id}/result. The websocket stream lives in solve_ws.go.
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	id, sub, _ := strings.Cut(rest, "/")

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		out, err := s.Store.GetOrder(r.Context(), id)
		if err != nil {
			writeStoreError(w, err, "Get order failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case "solve":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.solveOrder(w, r, id)
	case "result":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		res, err := s.Store.LatestResult(r.Context(), id)
		if err != nil {
			writeStoreError(w, err, "Get result failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		if tail, ok := strings.CutPrefix(sub, "events"); ok {
			s.OrderEventsWSHandler(w, r, id, tail)
			return
		}
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) solveOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := s.Store.GetOrder(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Get order failed", r.URL.Path)
		return
	}
	in, err := s.loadSolveInput(r.Context(), o)
	if err != nil {
		writeSolveError(w, err, r.URL.Path)
		return
	}

	_ = s.Store.SetOrderStatus(r.Context(), id, "solving")
	s.Broker.Publish(id, Event{Type: "order.solve.started", Data: map[string]any{"orderId": id}})

	res, err := s.runSolve(r.Context(), in)
	if err != nil {
		_ = s.Store.SetOrderStatus(r.Context(), id, "failed")
		s.Broker.Publish(id, Event{Type: "order.solve.failed", Data: map[string]any{"orderId": id, "error": err.Error()}})
		writeSolveError(w, err, r.URL.Path)
		return
	}
	res.OrderID = id
	if err := s.Store.SaveResult(r.Context(), res); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save result failed", err.Error(), r.URL.Path)
		return
	}

	if res.Status.Assigned() {
		_ = s.Store.SetOrderStatus(r.Context(), id, "solved")
		s.Broker.Publish(id, Event{Type: "order.solved", Data: map[string]any{"orderId": id, "resultId": res.ID, "status": string(res.Status), "objective": res.Objective}})
		s.Pub.Emit(r.Context(), "order.solved", res)
	} else {
		_ = s.Store.SetOrderStatus(r.Context(), id, "failed")
		s.Broker.Publish(id, Event{Type: "order.solve.failed", Data: map[string]any{"orderId": id, "resultId": res.ID, "status": string(res.Status), "reason": res.Reason}})
		s.Pub.Emit(r.Context(), "order.solve.failed", res)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) loadSolveInput(ctx context.Context, o model.Order) (engine.Input, error) {
	toppings, err := s.Store.ListToppings(ctx, o.RestaurantID)
	if err != nil {
		return engine.Input{}, err
	}
	people := make([]model.Person, 0, len(o.ParticipantIDs))
	for _, pid := range o.ParticipantIDs {
		p, err := s.Store.GetPerson(ctx, pid)
		if err != nil {
			return engine.Input{}, fmt.Errorf("participant %q: %w", pid, err)
		}
		people = append(people, p)
	}
	records, err := s.Store.ListPreferences(ctx, o.RestaurantID, o.ParticipantIDs)
	if err != nil {
		return engine.Input{}, err
	}
	return engine.Input{People: people, Catalog: toppings, Records: records, Order: o.OrderIn}, nil
}

// runSolve invokes the engine and records solve metrics.
func (s *Server) runSolve(ctx context.Context, in engine.Input) (model.SolveResult, error) {
	mode := string(in.Order.Objective)
	if mode == "" {
		mode = string(model.MaximizeLikes)
	}
	start := time.Now()
	res, err := s.Engine.Solve(ctx, in)
	status := string(res.Status)
	if err != nil {
		status = "error"
	}
	metrics.SolveTotal.WithLabelValues(mode, status).Inc()
	metrics.SolveDuration.WithLabelValues(mode, status).Observe(time.Since(start).Seconds())
	if err == nil && res.Status.Assigned() {
		metrics.SolveObjective.WithLabelValues(mode).Observe(res.Objective)
	}
	return res, err
}

// solveRequest is the stateless solve payload: the full problem inline, no
// stored entities involved.
type solveRequest struct {
	People      []model.Person  `json:"people"`
	Toppings    []model.Topping `json:"toppings"`
	Preferences []struct {
		PersonID   string `json:"personId"`
		ToppingID  string `json:"toppingId"`
		Preference string `json:"preference"`
	} `json:"preferences"`
	PizzaCount         int                 `json:"pizzaCount"`
	ToppingsPerPizza   int                 `json:"toppingsPerPizza,omitempty"`
	Objective          model.ObjectiveMode `json:"objective,omitempty"`
	ShareabilityWeight float64             `json:"shareabilityWeight,omitempty"`
	BalanceLoad        *bool               `json:"balanceLoad,omitempty"`
}

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	records := make([]model.PreferenceRecord, 0, len(req.Preferences))
	for _, p := range req.Preferences {
		pref, err := model.ParsePreference(p.Preference)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid preference", err.Error(), r.URL.Path)
			return
		}
		records = append(records, model.PreferenceRecord{PersonID: p.PersonID, ToppingID: p.ToppingID, Pref: pref})
	}
	in := engine.Input{
		People:  req.People,
		Catalog: req.Toppings,
		Records: records,
		Order: model.OrderIn{
			PizzaCount:         req.PizzaCount,
			ToppingsPerPizza:   req.ToppingsPerPizza,
			Objective:          req.Objective,
			ShareabilityWeight: req.ShareabilityWeight,
			BalanceLoad:        req.BalanceLoad,
		},
	}
	res, err := s.runSolve(r.Context(), in)
	if err != nil {
		writeSolveError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SolverConfigHandler returns the effective solver defaults.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backend":             s.Cfg.Backend,
		"timeLimitMs":         s.Cfg.TimeLimitMs,
		"workers":             s.Cfg.Workers,
		"maxToppingsPerPizza": s.Cfg.MaxToppingsPerPizza,
		"dislikeWeight":       s.Cfg.DislikeWeight,
		"balanceLoad":         s.Cfg.BalanceLoad,
		"objectives":          []model.ObjectiveMode{model.MaximizeLikes, model.MinimizeDislikes, model.BalanceScores},
	})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.Subscription
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if in.URL == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url is required", r.URL.Path)
			return
		}
		out, err := s.Store.CreateSubscription(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		items, next, err := s.Store.ListSubscriptions(r.Context(), r.URL.Query().Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeStoreError(w, err, "Delete subscription failed", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using the Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeStoreError(w http.ResponseWriter, err error, title, instance string) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "", instance)
		return
	}
	writeProblem(w, http.StatusInternalServerError, title, err.Error(), instance)
}

func queryLimit(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	return limit
}

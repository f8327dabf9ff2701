package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pizzaplan/internal/config"
	"pizzaplan/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Solver.Backend = "pbsat"
	cfg.Solver.TimeLimitMs = 5000
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	h(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return out
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

// seedOrder builds a restaurant with toppings, two people with preferences,
// and a draft order through the HTTP surface.
func seedOrder(t *testing.T, s *Server) string {
	t.Helper()
	rr := doJSON(t, s.RestaurantsHandler, http.MethodPost, "/v1/restaurants", map[string]any{"name": "Luigi's"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create restaurant: %d %s", rr.Code, rr.Body.String())
	}
	rest := decodeBody[model.Restaurant](t, rr)

	toppings := map[string]string{}
	for _, name := range []string{"pepperoni", "mushroom", "onion"} {
		rr = doJSON(t, s.RestaurantByIDHandler, http.MethodPost, "/v1/restaurants/"+rest.ID+"/toppings", map[string]any{"name": name})
		if rr.Code != http.StatusCreated {
			t.Fatalf("create topping: %d %s", rr.Code, rr.Body.String())
		}
		toppings[name] = decodeBody[model.Topping](t, rr).ID
	}

	people := map[string]string{}
	for _, name := range []string{"alice", "bob"} {
		rr = doJSON(t, s.PeopleHandler, http.MethodPost, "/v1/people", map[string]any{"name": name})
		if rr.Code != http.StatusCreated {
			t.Fatalf("create person: %d", rr.Code)
		}
		people[name] = decodeBody[model.Person](t, rr).ID
	}

	rr = doJSON(t, s.PersonByIDHandler, http.MethodPut, "/v1/people/"+people["alice"]+"/preferences", []map[string]any{
		{"toppingId": toppings["pepperoni"], "preference": "like"},
		{"toppingId": toppings["mushroom"], "preference": "like"},
	})
	if rr.Code != 200 {
		t.Fatalf("put preferences: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, s.PersonByIDHandler, http.MethodPut, "/v1/people/"+people["bob"]+"/preferences", []map[string]any{
		{"toppingId": toppings["pepperoni"], "preference": "like"},
		{"toppingId": toppings["onion"], "preference": "dislike"},
	})
	if rr.Code != 200 {
		t.Fatalf("put preferences: %d", rr.Code)
	}

	rr = doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
		"restaurantId":     rest.ID,
		"pizzaCount":       1,
		"toppingsPerPizza": 2,
		"participantIds":   []string{people["alice"], people["bob"]},
		"objective":        "maximize_likes",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", rr.Code, rr.Body.String())
	}
	return decodeBody[model.Order](t, rr).ID
}

func TestOrderSolveFlow(t *testing.T) {
	s := newTestServer(t)
	orderID := seedOrder(t, s)

	rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+orderID+"/solve", nil)
	if rr.Code != 200 {
		t.Fatalf("solve: %d %s", rr.Code, rr.Body.String())
	}
	res := decodeBody[model.SolveResult](t, rr)
	if res.Status != model.StatusOptimal {
		t.Fatalf("status = %s (%s)", res.Status, res.Reason)
	}
	if res.Objective != 3 {
		t.Errorf("objective = %g, want 3", res.Objective)
	}
	if len(res.Pizzas) != 1 || len(res.Pizzas[0].People) != 2 {
		t.Errorf("pizzas = %+v", res.Pizzas)
	}

	// order status advanced and the result is retrievable
	rr = doJSON(t, s.OrderByIDHandler, http.MethodGet, "/v1/orders/"+orderID, nil)
	if got := decodeBody[model.Order](t, rr); got.Status != "solved" {
		t.Errorf("order status = %s", got.Status)
	}
	rr = doJSON(t, s.OrderByIDHandler, http.MethodGet, "/v1/orders/"+orderID+"/result", nil)
	if rr.Code != 200 {
		t.Fatalf("result: %d", rr.Code)
	}
	if got := decodeBody[model.SolveResult](t, rr); got.ID != res.ID {
		t.Errorf("stored result %s, want %s", got.ID, res.ID)
	}
}

func TestOrderSolveEnqueuesWebhook(t *testing.T) {
	s := newTestServer(t)
	orderID := seedOrder(t, s)

	rr := doJSON(t, s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", map[string]any{
		"url":        "https://hooks.example/pizza",
		"eventTypes": []string{"order.solved"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create subscription: %d", rr.Code)
	}

	rr = doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+orderID+"/solve", nil)
	if rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}

	due, err := s.Store.FetchDueWebhookDeliveries(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].EventType != "order.solved" {
		t.Fatalf("deliveries = %+v", due)
	}
}

func TestOrderSolvePublishesEvents(t *testing.T) {
	s := newTestServer(t)
	orderID := seedOrder(t, s)
	ch := s.Broker.Subscribe(orderID)

	rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+orderID+"/solve", nil)
	if rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}

	types := []string{}
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	if len(types) != 2 || types[0] != "order.solve.started" || types[1] != "order.solved" {
		t.Fatalf("event types = %v", types)
	}
}

func TestStatelessSolve(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"people":   []map[string]any{{"id": "a", "name": "a"}, {"id": "b", "name": "b"}},
		"toppings": []map[string]any{{"id": "pep", "name": "pepperoni"}, {"id": "mush", "name": "mushroom"}},
		"preferences": []map[string]any{
			{"personId": "a", "toppingId": "pep", "preference": "like"},
			{"personId": "b", "toppingId": "mush", "preference": "like"},
		},
		"pizzaCount": 1,
	}
	rr := doJSON(t, s.SolveHandler, http.MethodPost, "/v1/solve", body)
	if rr.Code != 200 {
		t.Fatalf("solve: %d %s", rr.Code, rr.Body.String())
	}
	res := decodeBody[model.SolveResult](t, rr)
	if res.Status != model.StatusOptimal || res.Objective != 2 {
		t.Fatalf("res = %+v", res)
	}
}

func TestStatelessSolveBadInput(t *testing.T) {
	s := newTestServer(t)

	// unknown topping in a preference is the caller's fault
	body := map[string]any{
		"people":      []map[string]any{{"id": "a", "name": "a"}},
		"toppings":    []map[string]any{{"id": "pep", "name": "pepperoni"}},
		"preferences": []map[string]any{{"personId": "a", "toppingId": "nope", "preference": "like"}},
		"pizzaCount":  1,
	}
	rr := doJSON(t, s.SolveHandler, http.MethodPost, "/v1/solve", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown topping: %d %s", rr.Code, rr.Body.String())
	}

	// more pizzas than people is the caller's fault too
	body = map[string]any{
		"people":     []map[string]any{{"id": "a", "name": "a"}},
		"toppings":   []map[string]any{{"id": "pep", "name": "pepperoni"}},
		"pizzaCount": 2,
	}
	rr = doJSON(t, s.SolveHandler, http.MethodPost, "/v1/solve", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("too many pizzas: %d %s", rr.Code, rr.Body.String())
	}

	// an empty catalog leaves nothing to optimize over
	body = map[string]any{
		"people":     []map[string]any{{"id": "a", "name": "a"}},
		"toppings":   []map[string]any{},
		"pizzaCount": 1,
	}
	rr = doJSON(t, s.SolveHandler, http.MethodPost, "/v1/solve", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty catalog: %d %s", rr.Code, rr.Body.String())
	}
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
		"restaurantId":   "r1",
		"pizzaCount":     0,
		"participantIds": []string{"p1"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("zero pizzas: %d", rr.Code)
	}
	rr = doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
		"restaurantId":   "r1",
		"pizzaCount":     3,
		"participantIds": []string{"p1"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("pizzas > participants: %d", rr.Code)
	}
	rr = doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
		"restaurantId":   "missing",
		"pizzaCount":     1,
		"participantIds": []string{"p1"},
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown restaurant: %d", rr.Code)
	}
}

func TestSolverConfigHandler(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s.SolverConfigHandler, http.MethodGet, "/v1/solver/config", nil)
	if rr.Code != 200 {
		t.Fatalf("config: %d", rr.Code)
	}
	cfg := decodeBody[map[string]any](t, rr)
	if cfg["backend"] != "pbsat" {
		t.Errorf("backend = %v", cfg["backend"])
	}
	if cfg["maxToppingsPerPizza"] != float64(3) {
		t.Errorf("topping cap = %v", cfg["maxToppingsPerPizza"])
	}
}

func TestGetOrderNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s.OrderByIDHandler, http.MethodGet, "/v1/orders/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d", rr.Code)
	}
}

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"pizzaplan/internal/model"
)

func seedCatalog(t *testing.T, m *Memory) (model.Restaurant, []model.Topping) {
	t.Helper()
	ctx := context.Background()
	r, err := m.CreateRestaurant(ctx, model.Restaurant{Name: "Luigi's"})
	if err != nil {
		t.Fatal(err)
	}
	names := []string{"pepperoni", "mushroom", "onion"}
	tops := make([]model.Topping, len(names))
	for i, n := range names {
		tp, err := m.CreateTopping(ctx, model.Topping{RestaurantID: r.ID, Name: n})
		if err != nil {
			t.Fatal(err)
		}
		tops[i] = tp
	}
	return r, tops
}

func TestMemoryCatalog(t *testing.T) {
	m := NewMemory()
	r, tops := seedCatalog(t, m)
	ctx := context.Background()

	got, err := m.ListToppings(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(tops) {
		t.Fatalf("toppings = %d, want %d", len(got), len(tops))
	}
	if _, err := m.ListToppings(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown restaurant: err = %v", err)
	}
	if _, err := m.CreateTopping(ctx, model.Topping{RestaurantID: "nope", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("topping for unknown restaurant: err = %v", err)
	}
}

func TestMemoryPreferences(t *testing.T) {
	m := NewMemory()
	r, tops := seedCatalog(t, m)
	ctx := context.Background()

	alice, err := m.CreatePerson(ctx, model.Person{Name: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.PutPreference(ctx, model.PreferenceRecord{PersonID: alice.ID, ToppingID: tops[0].ID, Pref: model.Like}); err != nil {
		t.Fatal(err)
	}
	// upsert replaces
	if err := m.PutPreference(ctx, model.PreferenceRecord{PersonID: alice.ID, ToppingID: tops[0].ID, Pref: model.Dislike}); err != nil {
		t.Fatal(err)
	}
	recs, err := m.ListPreferences(ctx, r.ID, []string{alice.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Pref != model.Dislike {
		t.Fatalf("recs = %+v", recs)
	}
	// records scoped to another restaurant stay out
	other, _ := m.CreateRestaurant(ctx, model.Restaurant{Name: "Mario's"})
	ot, _ := m.CreateTopping(ctx, model.Topping{RestaurantID: other.ID, Name: "anchovy"})
	if err := m.PutPreference(ctx, model.PreferenceRecord{PersonID: alice.ID, ToppingID: ot.ID, Pref: model.Like}); err != nil {
		t.Fatal(err)
	}
	recs, _ = m.ListPreferences(ctx, r.ID, []string{alice.ID})
	if len(recs) != 1 {
		t.Fatalf("cross-restaurant records leaked: %+v", recs)
	}
	if err := m.PutPreference(ctx, model.PreferenceRecord{PersonID: "nope", ToppingID: tops[0].ID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown person: err = %v", err)
	}
}

func TestMemoryOrderLifecycle(t *testing.T) {
	m := NewMemory()
	r, _ := seedCatalog(t, m)
	ctx := context.Background()

	o, err := m.CreateOrder(ctx, model.OrderIn{RestaurantID: r.ID, PizzaCount: 2, ParticipantIDs: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != "draft" || o.ID == "" {
		t.Fatalf("order = %+v", o)
	}
	if err := m.SetOrderStatus(ctx, o.ID, "solved"); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetOrder(ctx, o.ID)
	if err != nil || got.Status != "solved" {
		t.Fatalf("order = %+v, err = %v", got, err)
	}

	res := model.SolveResult{ID: "res1", OrderID: o.ID, Status: model.StatusOptimal, Objective: 3}
	if err := m.SaveResult(ctx, res); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveResult(ctx, model.SolveResult{ID: "res2", OrderID: o.ID, Status: model.StatusFeasible}); err != nil {
		t.Fatal(err)
	}
	latest, err := m.LatestResult(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != "res2" {
		t.Errorf("latest = %s, want res2", latest.ID)
	}
	if _, err := m.LatestResult(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing result: err = %v", err)
	}

	solved, _, err := m.ListOrders(ctx, "solved", "", 10)
	if err != nil || len(solved) != 1 {
		t.Fatalf("solved orders = %+v, err = %v", solved, err)
	}
	none, _, _ := m.ListOrders(ctx, "draft", "", 10)
	if len(none) != 0 {
		t.Errorf("draft orders = %+v", none)
	}
}

func TestMemorySubscriptionsAndQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	s1, err := m.CreateSubscription(ctx, model.Subscription{URL: "https://a.example/hook", EventTypes: []string{"order.solved"}})
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := m.CreateSubscription(ctx, model.Subscription{URL: "https://b.example/hook"})

	subs, err := m.GetSubscriptionsForEvent(ctx, "order.solved")
	if err != nil || len(subs) != 2 {
		t.Fatalf("subs = %+v, err = %v", subs, err)
	}
	subs, _ = m.GetSubscriptionsForEvent(ctx, "order.failed")
	if len(subs) != 1 || subs[0].ID != s2.ID {
		t.Fatalf("catch-all mismatch: %+v", subs)
	}

	id, err := m.EnqueueWebhook(ctx, s1.ID, "order.solved", s1.URL, "shh", []byte(`{"id":"evt1"}`))
	if err != nil {
		t.Fatal(err)
	}
	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due = %+v, err = %v", due, err)
	}

	// retry pushes the next attempt into the future
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 12); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("retried delivery still due: %+v", due)
	}
	if err := m.FailWebhookDelivery(ctx, id, "gave up", 500, 12); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteSubscription(ctx, s1.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteSubscription(ctx, s1.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: err = %v", err)
	}
}

func TestMemoryPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := m.CreatePerson(ctx, model.Person{Name: "p"}); err != nil {
			t.Fatal(err)
		}
	}
	page1, cursor, err := m.ListPeople(ctx, "", 2)
	if err != nil || len(page1) != 2 || cursor == "" {
		t.Fatalf("page1 = %d items, cursor %q, err = %v", len(page1), cursor, err)
	}
	page2, cursor2, err := m.ListPeople(ctx, cursor, 2)
	if err != nil || len(page2) != 2 {
		t.Fatalf("page2 = %d items, err = %v", len(page2), err)
	}
	page3, cursor3, err := m.ListPeople(ctx, cursor2, 2)
	if err != nil || len(page3) != 1 || cursor3 != "" {
		t.Fatalf("page3 = %d items, cursor %q, err = %v", len(page3), cursor3, err)
	}
	seen := map[string]bool{}
	for _, p := range append(append(page1, page2...), page3...) {
		if seen[p.ID] {
			t.Fatalf("duplicate id %s across pages", p.ID)
		}
		seen[p.ID] = true
	}
}

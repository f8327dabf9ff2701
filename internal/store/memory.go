package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pizzaplan/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu          sync.Mutex
	restaurants map[string]model.Restaurant
	restOrder   []string
	toppings    map[string][]model.Topping // restaurantID -> toppings
	toppingRest map[string]string          // toppingID -> restaurantID
	people      map[string]model.Person
	peopleOrder []string
	prefs       map[string]map[string]model.Preference // personID -> toppingID -> pref
	orders      map[string]model.Order
	orderIDs    []string
	results     map[string][]model.SolveResult // orderID -> results, newest last
	subs        map[string]model.Subscription
	subIDs      []string
	deliveries  map[string]*memDelivery
	deliveryIDs []string
}

func NewMemory() *Memory {
	return &Memory{
		restaurants: map[string]model.Restaurant{},
		toppings:    map[string][]model.Topping{},
		toppingRest: map[string]string{},
		people:      map[string]model.Person{},
		prefs:       map[string]map[string]model.Preference{},
		orders:      map[string]model.Order{},
		results:     map[string][]model.SolveResult{},
		subs:        map[string]model.Subscription{},
		deliveries:  map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func (m *Memory) CreateRestaurant(ctx context.Context, in model.Restaurant) (model.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	m.restaurants[in.ID] = in
	m.restOrder = append(m.restOrder, in.ID)
	return in, nil
}

func (m *Memory) GetRestaurant(ctx context.Context, id string) (model.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.restaurants[id]
	if !ok {
		return model.Restaurant{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRestaurants(ctx context.Context, cursor string, limit int) ([]model.Restaurant, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Restaurant, 0, len(m.restOrder))
	next := pageIDs(m.restOrder, cursor, limit, func(id string) bool {
		out = append(out, m.restaurants[id])
		return true
	})
	return out, next, nil
}

func (m *Memory) CreateTopping(ctx context.Context, in model.Topping) (model.Topping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restaurants[in.RestaurantID]; !ok {
		return model.Topping{}, ErrNotFound
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	m.toppings[in.RestaurantID] = append(m.toppings[in.RestaurantID], in)
	m.toppingRest[in.ID] = in.RestaurantID
	return in, nil
}

func (m *Memory) ListToppings(ctx context.Context, restaurantID string) ([]model.Topping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restaurants[restaurantID]; !ok {
		return nil, ErrNotFound
	}
	return append([]model.Topping(nil), m.toppings[restaurantID]...), nil
}

func (m *Memory) CreatePerson(ctx context.Context, in model.Person) (model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	m.people[in.ID] = in
	m.peopleOrder = append(m.peopleOrder, in.ID)
	return in, nil
}

func (m *Memory) GetPerson(ctx context.Context, id string) (model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[id]
	if !ok {
		return model.Person{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPeople(ctx context.Context, cursor string, limit int) ([]model.Person, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Person, 0, len(m.peopleOrder))
	next := pageIDs(m.peopleOrder, cursor, limit, func(id string) bool {
		out = append(out, m.people[id])
		return true
	})
	return out, next, nil
}

func (m *Memory) PutPreference(ctx context.Context, rec model.PreferenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[rec.PersonID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.toppingRest[rec.ToppingID]; !ok {
		return ErrNotFound
	}
	if m.prefs[rec.PersonID] == nil {
		m.prefs[rec.PersonID] = map[string]model.Preference{}
	}
	m.prefs[rec.PersonID][rec.ToppingID] = rec.Pref
	return nil
}

func (m *Memory) ListPreferences(ctx context.Context, restaurantID string, personIDs []string) ([]model.PreferenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.PreferenceRecord{}
	for _, pid := range personIDs {
		byTopping := m.prefs[pid]
		if len(byTopping) == 0 {
			continue
		}
		tids := make([]string, 0, len(byTopping))
		for tid := range byTopping {
			if m.toppingRest[tid] == restaurantID {
				tids = append(tids, tid)
			}
		}
		sort.Strings(tids)
		for _, tid := range tids {
			out = append(out, model.PreferenceRecord{PersonID: pid, ToppingID: tid, Pref: byTopping[tid]})
		}
	}
	return out, nil
}

func (m *Memory) CreateOrder(ctx context.Context, in model.OrderIn) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := model.Order{
		ID:        uuid.NewString(),
		OrderIn:   in,
		Status:    "draft",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m.orders[o.ID] = o
	m.orderIDs = append(m.orderIDs, o.ID)
	return o, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Order{}
	next := pageIDs(m.orderIDs, cursor, limit, func(id string) bool {
		o := m.orders[id]
		if status != "" && o.Status != status {
			return false
		}
		out = append(out, o)
		return true
	})
	return out, next, nil
}

func (m *Memory) SetOrderStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

func (m *Memory) SaveResult(ctx context.Context, res model.SolveResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[res.OrderID]; !ok {
		return ErrNotFound
	}
	m.results[res.OrderID] = append(m.results[res.OrderID], res)
	return nil
}

func (m *Memory) LatestResult(ctx context.Context, orderID string) (model.SolveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs := m.results[orderID]
	if len(rs) == 0 {
		return model.SolveResult{}, ErrNotFound
	}
	return rs[len(rs)-1], nil
}

func (m *Memory) CreateSubscription(ctx context.Context, in model.Subscription) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	in.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	m.subs[in.ID] = in
	m.subIDs = append(m.subIDs, in.ID)
	return in, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	next := pageIDs(m.subIDs, cursor, limit, func(id string) bool {
		if s, ok := m.subs[id]; ok {
			out = append(out, s)
			return true
		}
		return false
	})
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, id := range m.subIDs {
		s, ok := m.subs[id]
		if ok && s.Matches(eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.deliveries[id] = &memDelivery{WebhookDelivery: WebhookDelivery{
		ID:             id,
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		URL:            url,
		Secret:         secret,
		Payload:        payload,
		Status:         "pending",
	}}
	m.deliveryIDs = append(m.deliveryIDs, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

// pageIDs walks ids after cursor, calling keep for each until limit items were
// kept, and returns the next cursor ("" when the walk reached the end).
func pageIDs(ids []string, cursor string, limit int, keep func(id string) bool) string {
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	kept := 0
	for i := start; i < len(ids); i++ {
		if keep(ids[i]) {
			kept++
		}
		if kept >= limit {
			if i+1 < len(ids) {
				return ids[i]
			}
			return ""
		}
	}
	return ""
}

package store

import (
	"context"
	"errors"
	"time"

	"pizzaplan/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Restaurants & toppings
	CreateRestaurant(ctx context.Context, in model.Restaurant) (model.Restaurant, error)
	GetRestaurant(ctx context.Context, id string) (model.Restaurant, error)
	ListRestaurants(ctx context.Context, cursor string, limit int) ([]model.Restaurant, string, error)
	CreateTopping(ctx context.Context, in model.Topping) (model.Topping, error)
	ListToppings(ctx context.Context, restaurantID string) ([]model.Topping, error)

	// People & preferences
	CreatePerson(ctx context.Context, in model.Person) (model.Person, error)
	GetPerson(ctx context.Context, id string) (model.Person, error)
	ListPeople(ctx context.Context, cursor string, limit int) ([]model.Person, string, error)
	PutPreference(ctx context.Context, rec model.PreferenceRecord) error
	// ListPreferences returns the records of the given people restricted to
	// the restaurant's topping catalog.
	ListPreferences(ctx context.Context, restaurantID string, personIDs []string) ([]model.PreferenceRecord, error)

	// Orders & results
	CreateOrder(ctx context.Context, in model.OrderIn) (model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error)
	SetOrderStatus(ctx context.Context, id, status string) error
	SaveResult(ctx context.Context, res model.SolveResult) error
	// LatestResult returns the most recent solve result for the order.
	LatestResult(ctx context.Context, orderID string) (model.SolveResult, error)

	// Webhook subscriptions
	CreateSubscription(ctx context.Context, in model.Subscription) (model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

	// Webhook delivery queue
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode, latencyMs int) error
}

var ErrNotFound = errors.New("not found")

//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"pizzaplan/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.MigrateDir("../../db/migrations"); err != nil {
		t.Fatalf("MigrateDir: %v", err)
	}

	r, err := p.CreateRestaurant(t.Context(), model.Restaurant{Name: "it-test"})
	if err != nil {
		t.Fatalf("CreateRestaurant: %v", err)
	}
	if _, err := p.ListToppings(t.Context(), r.ID); err != nil {
		t.Fatalf("ListToppings: %v", err)
	}
	if _, _, err := p.ListOrders(t.Context(), "", "", 1); err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
}

// Package main runs a demo client: it seeds a restaurant, people and
// preferences, creates an order, watches its event stream over WebSocket,
// and triggers a solve.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	restaurant := post(base+"/v1/restaurants", map[string]any{"name": "Demo Pizzeria"})
	rid := restaurant["id"].(string)

	toppings := map[string]string{}
	for _, name := range []string{"pepperoni", "mushroom", "onion", "olive"} {
		t := post(base+"/v1/restaurants/"+rid+"/toppings", map[string]any{"name": name})
		toppings[name] = t["id"].(string)
	}

	alice := post(base+"/v1/people", map[string]any{"name": "alice"})["id"].(string)
	bob := post(base+"/v1/people", map[string]any{"name": "bob"})["id"].(string)
	put(base+"/v1/people/"+alice+"/preferences", []map[string]any{
		{"toppingId": toppings["pepperoni"], "preference": "like"},
		{"toppingId": toppings["onion"], "preference": "dislike"},
	})
	put(base+"/v1/people/"+bob+"/preferences", []map[string]any{
		{"toppingId": toppings["mushroom"], "preference": "like"},
		{"toppingId": toppings["olive"], "preference": "allergy"},
	})

	order := post(base+"/v1/orders", map[string]any{
		"restaurantId":   rid,
		"pizzaCount":     1,
		"participantIds": []string{alice, bob},
		"objective":      "maximize_likes",
	})
	orderID := order["id"].(string)
	log.Printf("Order ID: %s", orderID)

	// Watch events while the solve runs
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/orders/" + orderID + "/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("ws dial: %v", err)
	}
	defer func() { _ = c.Close() }()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg map[string]any
			if err := c.ReadJSON(&msg); err != nil {
				return
			}
			log.Printf("event: %v", msg)
			if msg["type"] == "order.solved" || msg["type"] == "order.solve.failed" {
				return
			}
		}
	}()

	result := post(base+"/v1/orders/"+orderID+"/solve", nil)
	out, _ := json.MarshalIndent(result, "", "  ")
	log.Printf("result:\n%s", out)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Print("timed out waiting for events")
	}
}

func post(url string, body any) map[string]any {
	return do(http.MethodPost, url, body)
}

func put(url string, body any) map[string]any {
	return do(http.MethodPut, url, body)
}

func do(method, url string, body any) map[string]any {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		log.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: status %d", method, url, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	return out
}

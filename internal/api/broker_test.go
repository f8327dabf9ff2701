package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("o1")
	ch2 := b.Subscribe("o1")
	other := b.Subscribe("o2")

	b.Publish("o1", Event{Type: "order.solve.started", Data: map[string]any{"orderId": "o1"}})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != "order.solve.started" {
				t.Errorf("type = %s", evt.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("no event delivered")
		}
	}
	select {
	case evt := <-other:
		t.Fatalf("unrelated order got event %+v", evt)
	default:
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("o1")
	b.Unsubscribe("o1", ch)

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// publishing after the last unsubscribe must not panic
	b.Publish("o1", Event{Type: "order.solved"})
}

func TestBrokerSlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("o1")
	for i := 0; i < 20; i++ {
		b.Publish("o1", Event{Type: "order.solve.started"})
	}
	// buffer is bounded; publisher never blocked
	if n := len(ch); n != cap(ch) {
		t.Errorf("buffered = %d, want %d", n, cap(ch))
	}
}

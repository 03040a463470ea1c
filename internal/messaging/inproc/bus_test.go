package inproc

import (
	"errors"
	"testing"

	"neural_consensus/internal/domain"
)

func TestPublishRunsHandlersInOrder(t *testing.T) {
	bus := New(4)
	var seen []string
	bus.Subscribe("sequencer", func(ev domain.RunEvent) { seen = append(seen, "sequencer:"+string(ev.State)) })
	bus.Subscribe("ui", func(ev domain.RunEvent) { seen = append(seen, "ui:"+string(ev.State)) })

	for _, st := range []domain.RunState{domain.RunStatePending, domain.RunStateSucceeded} {
		if err := bus.Publish(domain.RunEvent{State: st}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	want := []string{"sequencer:pending", "ui:pending", "sequencer:succeeded", "ui:succeeded"}
	if len(seen) != len(want) {
		t.Fatalf("seen=%v want=%v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen=%v want=%v", seen, want)
		}
	}
}

func TestChannelSubscriberQueueFull(t *testing.T) {
	bus := New(1)
	ch := bus.Register("log")
	if err := bus.Publish(domain.RunEvent{Generation: 1}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	err := bus.Publish(domain.RunEvent{Generation: 2})
	if !errors.Is(err, ErrSubscriberQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	if ev := <-ch; ev.Generation != 1 {
		t.Fatalf("generation=%d want 1", ev.Generation)
	}
	if err := bus.Unregister("log"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	if err := bus.Unregister("log"); !errors.Is(err, ErrSubscriberNotRegistered) {
		t.Fatalf("expected not registered, got %v", err)
	}
}

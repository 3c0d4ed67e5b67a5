package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestScheduler_TickOrder(t *testing.T) {
	s := New(0)
	var order []string
	s.Add("transport", TaskFunc(func() { order = append(order, "transport") }))
	s.Add("publisher", TaskFunc(func() { order = append(order, "publisher") }))

	s.Tick()
	s.Tick()

	want := []string{"transport", "publisher", "transport", "publisher"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if s.Ticks() != 2 {
		t.Errorf("Ticks() = %d, want 2", s.Ticks())
	}
}

func TestScheduler_PanicDoesNotStopLoop(t *testing.T) {
	s := New(0)
	ran := false
	s.Add("bad", TaskFunc(func() { panic("boom") }))
	s.Add("good", TaskFunc(func() { ran = true }))

	s.Tick()
	if !ran {
		t.Error("task after a panicking task did not run")
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s := New(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Ticks() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Ticks() < 3 {
		t.Fatalf("Ticks() = %d after 2s", s.Ticks())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

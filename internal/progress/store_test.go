package progress

import (
	"testing"
	"time"
)

func TestStore_SetAndGet(t *testing.T) {
	s := NewStore()

	if _, ok := s.Get("missing"); ok {
		t.Error("Expected no state for unknown token")
	}

	s.Set("run1", Event{Status: StatusProcessing, CurrentSession: "P01_wk1", TotalSessions: 3})

	ev, ok := s.Get("run1")
	if !ok {
		t.Fatal("Expected state for run1")
	}
	if ev.Status != StatusProcessing || ev.CurrentSession != "P01_wk1" {
		t.Errorf("Unexpected state: %+v", ev)
	}
}

func TestStore_SubscriberReceivesUpdates(t *testing.T) {
	s := NewStore()

	id, ch := s.Subscribe("run1")
	defer s.Unsubscribe("run1", id)

	s.Set("run1", Event{Status: StatusProcessing, SessionsCreated: []string{"P01_wk1.1"}})
	s.Set("run1", Event{Status: StatusComplete, SessionsCreated: []string{"P01_wk1.1", "P01_wk1.2"}})

	for _, want := range []string{StatusProcessing, StatusComplete} {
		select {
		case ev := <-ch:
			if ev.Status != want {
				t.Errorf("Expected status %q, got %q", want, ev.Status)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for %q event", want)
		}
	}
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewStore()

	id, _ := s.Subscribe("run1")
	defer s.Unsubscribe("run1", id)

	// Fill well past the channel buffer; Set must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Set("run1", Event{Status: StatusProcessing, TotalSessions: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Set blocked on a slow subscriber")
	}

	// The retained state is always the latest regardless of drops.
	ev, _ := s.Get("run1")
	if ev.TotalSessions != 99 {
		t.Errorf("Expected latest state retained, got %+v", ev)
	}
}

func TestStore_UnsubscribeClosesChannel(t *testing.T) {
	s := NewStore()

	id, ch := s.Subscribe("run1")
	s.Unsubscribe("run1", id)

	if _, ok := <-ch; ok {
		t.Error("Expected channel closed after unsubscribe")
	}

	// Unsubscribing twice is harmless.
	s.Unsubscribe("run1", id)
}

func TestStore_DeleteClosesSubscribers(t *testing.T) {
	s := NewStore()

	_, ch := s.Subscribe("run1")
	s.Set("run1", Event{Status: StatusComplete})
	s.Delete("run1")

	if _, ok := s.Get("run1"); ok {
		t.Error("Expected state removed after delete")
	}

	// Drain the buffered event then observe the close.
	for {
		if _, ok := <-ch; !ok {
			return
		}
	}
}

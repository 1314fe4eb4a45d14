package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeKeyPressed, Data: map[string]any{"name": "C# 4"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: key.pressed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"name":"C# 4"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishKeyEvent_OctaveThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger octave.updated.
	b.PublishKeyEvent(TypeKeyPressed, map[string]int{"code": 60})
	// Second event immediately should NOT trigger another octave.updated.
	b.PublishKeyEvent(TypeKeyReleased, map[string]int{"code": 60})
	// Unknown kinds are dropped entirely.
	b.PublishKeyEvent("bogus", nil)

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	octaveCount := 0
	keyCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, TypeOctaveUpdated) {
				octaveCount++
			} else {
				keyCount++
			}
		default:
			break loop
		}
	}

	if keyCount != 2 {
		t.Errorf("key events = %d, want 2", keyCount)
	}
	if octaveCount != 1 {
		t.Errorf("octave events = %d, want 1 (throttled)", octaveCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeKeyReleased, Data: map[string]int{"code": 61}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: key.released") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: TypeKeyPressed, Data: map[string]int{"i": i}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: TypeKeyPressed, Data: nil})
	b.PublishKeyEvent(TypeKeyReleased, nil)
}

func TestPublishSkipsUnencodableData(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeKeyPressed, Data: func() {}})
	b.PublishKeyEvent(TypeKeyPressed, make(chan int))
	b.PublishKeyEvent(TypeOctaveCalibrated, map[string]string{"id": "c1"})

	want := []string{"event: octave.calibrated\ndata: {\"id\":\"c1\"}\n\n", "event: octave.updated\ndata: {}\n\n"}
	for i, w := range want {
		select {
		case msg := <-ch:
			if string(msg) != w {
				t.Errorf("message %d = %q, want %q", i, msg, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

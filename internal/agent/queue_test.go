package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/strandworks/strand/pkg/models"
)

func TestEventQueueFIFO(t *testing.T) {
	q := NewEventQueue()
	q.Push(models.TokenEvent("a"))
	q.Push(models.TokenEvent("b"))
	q.Push(models.TokenEvent("c"))
	q.Close()

	want := []string{"a", "b", "c"}
	for i, w := range want {
		ev, err := q.Next(context.Background())
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if ev.Text != w {
			t.Fatalf("event %d = %q, want %q", i, ev.Text, w)
		}
	}
	ev, err := q.Next(context.Background())
	if ev != nil || err != nil {
		t.Fatalf("after drain: got (%v, %v), want (nil, nil)", ev, err)
	}
}

func TestEventQueueFailAfterDrain(t *testing.T) {
	q := NewEventQueue()
	q.Push(models.TokenEvent("partial"))
	boom := errors.New("provider exploded")
	q.Fail(boom)

	ev, err := q.Next(context.Background())
	if err != nil || ev == nil || ev.Text != "partial" {
		t.Fatalf("buffered event must drain before the failure: (%v, %v)", ev, err)
	}
	if _, err := q.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("want failure after drain, got %v", err)
	}
	// Failure is sticky.
	if _, err := q.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("failure must persist, got %v", err)
	}
}

func TestEventQueueFirstTerminalWins(t *testing.T) {
	q := NewEventQueue()
	q.Close()
	q.Fail(errors.New("too late"))
	if _, err := q.Next(context.Background()); err != nil {
		t.Fatalf("close-then-fail must report clean end, got %v", err)
	}

	q2 := NewEventQueue()
	boom := errors.New("first")
	q2.Fail(boom)
	q2.Close()
	q2.Fail(errors.New("second"))
	if _, err := q2.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("first failure must win, got %v", err)
	}
}

func TestEventQueuePushAfterTerminalDropped(t *testing.T) {
	q := NewEventQueue()
	q.Close()
	q.Push(models.TokenEvent("late"))
	if ev, err := q.Next(context.Background()); ev != nil || err != nil {
		t.Fatalf("push after close must be dropped: (%v, %v)", ev, err)
	}
}

func TestEventQueueNextBlocksUntilPush(t *testing.T) {
	q := NewEventQueue()
	var wg sync.WaitGroup
	wg.Add(1)
	var got *models.Event
	go func() {
		defer wg.Done()
		got, _ = q.Next(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push(models.TokenEvent("wake"))
	wg.Wait()
	if got == nil || got.Text != "wake" {
		t.Fatalf("blocked consumer got %v", got)
	}
}

func TestEventQueueNextHonorsContext(t *testing.T) {
	q := NewEventQueue()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

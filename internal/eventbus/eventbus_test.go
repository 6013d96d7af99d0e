package eventbus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	b := New[int]()
	defer b.Close()
	ch := b.Subscribe()
	b.Publish(42)
	if got := <-ch; got != 42 {
		t.Fatalf("got %d", got)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := New[string]()
	defer b.Close()
	a := b.Subscribe()
	c := b.Subscribe()
	b.Publish("x")
	if got := <-a; got != "x" {
		t.Fatalf("a: %q", got)
	}
	if got := <-c; got != "x" {
		t.Fatalf("c: %q", got)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBuffered[int](1)
	defer b.Close()
	ch := b.Subscribe()
	b.Publish(1)
	b.Publish(2) // dropped, buffer full
	if got := <-ch; got != 1 {
		t.Fatalf("got %d", got)
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected second event %d", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[int]()
	defer b.Close()
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed")
	}
	b.Publish(1) // no deadlock, no panic
}

func TestSubscribeAfterClose(t *testing.T) {
	b := New[int]()
	b.Close()
	ch := b.Subscribe()
	if _, ok := <-ch; ok {
		t.Fatal("post-close subscription must be closed")
	}
	b.Close() // idempotent
}

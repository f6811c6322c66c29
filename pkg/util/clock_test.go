package util

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := NewManualClock(start)

	ch := c.After(time.Second)
	if c.Waiters() != 1 {
		t.Fatalf("Waiters() = %d, want 1", c.Waiters())
	}

	c.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(time.Second)) {
			t.Errorf("fired at %v, want %v", got, start.Add(time.Second))
		}
	default:
		t.Fatal("timer did not fire")
	}
	if c.Waiters() != 0 {
		t.Errorf("Waiters() = %d, want 0", c.Waiters())
	}

	select {
	case <-c.After(0):
	default:
		t.Error("zero duration should fire immediately")
	}
}

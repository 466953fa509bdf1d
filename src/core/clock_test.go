package main

import (
	"context"
	"testing"
	"time"
)

func TestBlockClockAdvance(t *testing.T) {
	clock := NewBlockClock(7)

	if clock.Now() != 7 {
		t.Errorf("Expected start height 7, got %d", clock.Now())
	}
	if h := clock.Advance(3); h != 10 || clock.Now() != 10 {
		t.Errorf("Expected height 10, got %d / %d", h, clock.Now())
	}
}

func TestBlockClockRun(t *testing.T) {
	clock := NewBlockClock(0)
	ctx, cancel := context.WithCancel(context.Background())

	heights := make(chan BlockNumber, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		clock.Run(ctx, time.Millisecond, func(h BlockNumber) {
			select {
			case heights <- h:
			default:
			}
		})
	}()

	select {
	case h := <-heights:
		if h != 1 {
			t.Errorf("Expected first block to be 1, got %d", h)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a block")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Run to return after cancel")
	}
}

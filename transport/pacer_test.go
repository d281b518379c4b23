package transport

import (
	"context"
	"testing"
	"time"
)

func TestPacer_EnforcesMinGap(t *testing.T) {
	clock := time.Now()
	p := NewPacer(1.0, 115200) // generous duty-cycle budget, isolate the gap check
	p.now = func() time.Time { return clock }

	ctx := context.Background()
	if err := p.Wait(ctx, 10); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait(ctx, 10) }()

	select {
	case <-done:
		t.Fatal("second Wait returned before the min inter-packet gap elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	clock = clock.Add(MinInterPacketGap)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second Wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second Wait never returned after advancing past the gap")
	}
}

func TestPacer_EnforcesDutyCycleBudget(t *testing.T) {
	clock := time.Now()
	// 1% of 115200 baud (8N1 => 11520 bytes/sec) over an hour.
	p := NewPacer(0.01, 115200)
	p.now = func() time.Time { return clock }
	budget := p.budgetBytesPerWindow()

	ctx := context.Background()
	// Consume the entire budget in one write.
	if err := p.Wait(ctx, int(budget)); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait(ctx, 10) }()

	select {
	case <-done:
		t.Fatal("Wait returned before the duty-cycle window reopened")
	case <-time.After(20 * time.Millisecond):
	}

	// Advance the clock past the rolling hour; the old sample ages out.
	clock = clock.Add(dutyCycleWindow + time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait after window reopened: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after the duty-cycle window reopened")
	}
}

func TestPacer_CancelledContext(t *testing.T) {
	clock := time.Now()
	p := NewPacer(0.01, 115200)
	p.now = func() time.Time { return clock }
	budget := p.budgetBytesPerWindow()

	ctx := context.Background()
	if err := p.Wait(ctx, int(budget)); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(cctx, 10); err == nil {
		t.Fatal("expected error from Wait with a cancelled context")
	}
}

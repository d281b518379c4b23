package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/scheduler"
)

func TestRegisterTask_FiresImmediatelyThenPeriodically(t *testing.T) {
	dev := address.MustParse("13:000099")
	s := scheduler.New(zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	var count int32
	var mu sync.Mutex
	var seenFlags []scheduler.DiscoverFlag

	s.RegisterTask(ctx, dev, scheduler.FlagStatus, 0, 20*time.Millisecond, func(_ context.Context, addr address.Address, flag scheduler.DiscoverFlag) {
		if !addr.Equal(dev) {
			t.Errorf("unexpected address %v", addr)
		}
		atomic.AddInt32(&count, 1)
		mu.Lock()
		seenFlags = append(seenFlags, flag)
		mu.Unlock()
	})

	<-ctx.Done()
	time.Sleep(10 * time.Millisecond) // let the final in-flight fire settle

	if got := atomic.LoadInt32(&count); got < 3 {
		t.Fatalf("expected at least 3 fires over 120ms on a 20ms period, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, f := range seenFlags {
		if f != scheduler.FlagStatus {
			t.Fatalf("expected every fire to carry FlagStatus, got %v", f)
		}
	}
}

func TestRegisterTask_StopsOnCancel(t *testing.T) {
	dev := address.MustParse("13:000099")
	s := scheduler.New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var count int32
	s.RegisterTask(ctx, dev, scheduler.FlagSchema, 0, 5*time.Millisecond, func(context.Context, address.Address, scheduler.DiscoverFlag) {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(20 * time.Millisecond)
	cancel()
	after := atomic.LoadInt32(&count)
	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got > after+1 {
		t.Fatalf("expected firing to stop after cancel, went from %d to %d", after, got)
	}
}

func TestRegisterDiscovery_SpreadsParamsAndStatus(t *testing.T) {
	dev := address.MustParse("13:000099")
	s := scheduler.New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[scheduler.DiscoverFlag]bool{}
	s.RegisterDiscovery(ctx, dev, func(_ context.Context, _ address.Address, flag scheduler.DiscoverFlag) {
		mu.Lock()
		seen[flag] = true
		mu.Unlock()
	})

	// SCHEMA fires at delay 0; PARAMS/STATUS wait 10-20s by default so
	// they won't have fired yet, but the goroutines must have been
	// spawned without panicking or blocking registration itself.
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if !seen[scheduler.FlagSchema] {
		t.Fatal("expected SCHEMA to have fired immediately")
	}
	if seen[scheduler.FlagParams] || seen[scheduler.FlagStatus] {
		t.Fatal("expected PARAMS/STATUS to wait out their 10-20s initial delay")
	}
}

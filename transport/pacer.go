// Pacer enforces the rolling-hour duty-cycle budget and the minimum
// inter-packet gap from spec §4.2/§4.5. Grounded on the rolling-window
// sample accounting in meermanr-LightwaveRF-go/lwl/stats.go
// (LatencyStats), adapted from a latency histogram to a byte-budget
// sliding window: instead of min/mean/max over all samples, we keep a
// queue of (timestamp, bytes) entries and sum only the ones still
// inside the last hour.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/JorritSalverda/ramses-gateway/errs"
)

// MinInterPacketGap is the target minimum gap between writes (spec
// §4.5 "Pacing").
const MinInterPacketGap = 20 * time.Millisecond

const dutyCycleWindow = time.Hour

type sample struct {
	at    time.Time
	bytes int
}

// Pacer is safe for concurrent use, though the engine only ever calls
// Wait from its single send-path goroutine (spec §5).
type Pacer struct {
	mu       sync.Mutex
	budget   float64 // fraction of line-rate bytes/sec allowed, e.g. 0.01
	baudRate uint
	samples  []sample
	lastSend time.Time

	now func() time.Time // overridable for tests
}

// NewPacer returns a Pacer enforcing budget (e.g. 0.01 for 1%) against
// baudRate bits/sec of line-rate (spec §8 property 7: "bytes written
// ≤ 1% of 115200 line-rate").
func NewPacer(budget float64, baudRate uint) *Pacer {
	return &Pacer{budget: budget, baudRate: baudRate, now: time.Now}
}

// budgetBytesPerWindow is how many bytes may be written across any
// rolling hour.
func (p *Pacer) budgetBytesPerWindow() float64 {
	bytesPerSec := float64(p.baudRate) / 10.0 // 8N1: 10 bits per byte on the wire
	return bytesPerSec * p.budget * dutyCycleWindow.Seconds()
}

func (p *Pacer) prune(now time.Time) {
	cutoff := now.Add(-dutyCycleWindow)
	i := 0
	for i < len(p.samples) && p.samples[i].at.Before(cutoff) {
		i++
	}
	p.samples = p.samples[i:]
}

func (p *Pacer) usedBytes() int {
	total := 0
	for _, s := range p.samples {
		total += s.bytes
	}
	return total
}

// Wait blocks until writing n bytes would not exceed the duty-cycle
// budget, and until at least MinInterPacketGap has elapsed since the
// previous send. It never drops the send (spec §4.5: "if a send would
// breach it, defer the send until the window reopens — do not drop
// it").
func (p *Pacer) Wait(ctx context.Context, n int) error {
	for {
		p.mu.Lock()
		now := p.now()
		p.prune(now)

		gapWait := time.Duration(0)
		if !p.lastSend.IsZero() {
			if d := now.Sub(p.lastSend); d < MinInterPacketGap {
				gapWait = MinInterPacketGap - d
			}
		}

		budget := p.budgetBytesPerWindow()
		used := p.usedBytes()
		var dutyWait time.Duration
		if float64(used+n) > budget {
			// Wait until the oldest sample ages out of the window.
			if len(p.samples) > 0 {
				dutyWait = p.samples[0].at.Add(dutyCycleWindow).Sub(now)
			} else {
				// n alone exceeds the budget: nothing will ever clear it.
				p.mu.Unlock()
				return errs.New(errs.ConfigError, "transport.Pacer.Wait", "single write exceeds duty-cycle budget")
			}
		}

		wait := gapWait
		if dutyWait > wait {
			wait = dutyWait
		}
		if wait <= 0 {
			p.samples = append(p.samples, sample{at: now, bytes: n})
			p.lastSend = now
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		// Sleep in bounded steps so each pass re-reads p.now.
		const maxSleep = 100 * time.Millisecond
		if wait > maxSleep {
			wait = maxSleep
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

package fetch_test

import (
	"context"
	"testing"
	"time"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/command"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/fetch"
	"github.com/JorritSalverda/ramses-gateway/message"
)

// fakeEnqueue answers a GetScheduleFragment/GetFaultLogEntry command
// with whatever scripted reply (or error) the test registered for its
// payload prefix, off of a goroutine so Fetch's blocking awaitReply
// behaves as it would against a real engine.
type fakeEnqueue struct {
	replies map[string]message.Message
	errors  map[string]error
	silent  map[string]bool // no reply at all, forces the fetch-window timeout
}

func (f *fakeEnqueue) enqueue(cmd command.Command, cb func(message.Message, error)) {
	key := cmd.Payload
	if f.silent[key] {
		return
	}
	go func() {
		if err, ok := f.errors[key]; ok {
			cb(message.Message{}, err)
			return
		}
		cb(f.replies[key], nil)
	}()
}

func ctl(t *testing.T) address.Address {
	t.Helper()
	return address.MustParse("01:145039")
}

func scheduleReply(zoneIdx, chunkIdx, chunkCnt byte, frag string) message.Message {
	return message.Message{Kind: message.KindScalar, Scalar: message.ScheduleFragment{
		ZoneIdx:  message.ZoneIdx{}, // unused by the test assertions
		ChunkIdx: chunkIdx,
		ChunkCnt: chunkCnt,
		Fragment: frag,
	}}
}

// TestScheduleFetcher_ReassemblesInOrder covers the happy path: four
// chunks, reassembled in chunk-index order regardless of payload byte
// layout quirks.
func TestScheduleFetcher_ReassemblesInOrder(t *testing.T) {
	zoneIdx := byte(0x00)
	fe := &fakeEnqueue{replies: map[string]message.Message{}, errors: map[string]error{}, silent: map[string]bool{}}
	for idx := byte(1); idx <= 4; idx++ {
		cmd := command.GetScheduleFragment(ctl(t), zoneIdx, idx)
		fe.replies[cmd.Payload] = scheduleReply(zoneIdx, idx, 4, string(rune('A'+idx-1)))
	}

	f := fetch.NewScheduleFetcher()
	got, err := f.Fetch(context.Background(), ctl(t), zoneIdx, fe.enqueue)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "ABCD" {
		t.Fatalf("expected reassembled body %q, got %q", "ABCD", got)
	}
}

// TestScheduleFetcher_MissingChunkExpires is spec scenario S5: a
// 4-chunk fetch where chunk 3 never replies aborts with
// ExpiredCallback once the fetch window (timeout*3) elapses.
func TestScheduleFetcher_MissingChunkExpires(t *testing.T) {
	zoneIdx := byte(0x00)
	fe := &fakeEnqueue{replies: map[string]message.Message{}, errors: map[string]error{}, silent: map[string]bool{}}
	for idx := byte(1); idx <= 4; idx++ {
		cmd := command.GetScheduleFragment(ctl(t), zoneIdx, idx)
		if idx == 3 {
			fe.silent[cmd.Payload] = true
			continue
		}
		fe.replies[cmd.Payload] = scheduleReply(zoneIdx, idx, 4, "x")
	}

	f := fetch.NewScheduleFetcher()
	ctx, cancel := context.WithTimeout(context.Background(), command.DefaultTimeout*3+2*time.Second)
	defer cancel()

	_, err := f.Fetch(ctx, ctl(t), zoneIdx, fe.enqueue)
	if errs.Of(err) != errs.ExpiredCallback {
		t.Fatalf("expected ExpiredCallback when chunk 3 never replies, got %v", err)
	}
}

// TestFaultLogFetcher_StopsOnWrapSentinel covers the wrap-to-zero
// termination rule: entry 2 reports log_idx 0 with an empty severity,
// which ends the walk without counting as a real entry.
func TestFaultLogFetcher_StopsOnWrapSentinel(t *testing.T) {
	fe := &fakeEnqueue{replies: map[string]message.Message{}, errors: map[string]error{}, silent: map[string]bool{}}

	entry0 := command.GetFaultLogEntry(ctl(t), 0)
	entry1 := command.GetFaultLogEntry(ctl(t), 1)
	entry2 := command.GetFaultLogEntry(ctl(t), 2)

	fe.replies[entry0.Payload] = message.Message{Kind: message.KindScalar, Scalar: message.FaultLogEntry{
		LogIdx: 0, Severity: message.SeverityFault, FaultKind: 0x01, DeviceClass: 0x0C, DeviceID: "012345",
	}}
	fe.replies[entry1.Payload] = message.Message{Kind: message.KindScalar, Scalar: message.FaultLogEntry{
		LogIdx: 1, Severity: message.SeverityWarning, FaultKind: 0x02, DeviceClass: 0x0C, DeviceID: "012345",
	}}
	fe.replies[entry2.Payload] = message.Message{Kind: message.KindScalar, Scalar: message.FaultLogEntry{
		LogIdx: 0, Severity: 0,
	}}

	f := fetch.NewFaultLogFetcher()
	entries, err := f.Fetch(context.Background(), ctl(t), fe.enqueue)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries before the wrap sentinel, got %d", len(entries))
	}
}

// TestScheduleFetcher_SerializesPerZone documents (rather than tightly
// races) that two concurrent fetches against the same zone don't
// interleave: the second call only starts once the first releases the
// zone's lock, so both still see a consistent 2-chunk reassembly.
func TestScheduleFetcher_SerializesPerZone(t *testing.T) {
	zoneIdx := byte(0x01)
	fe := &fakeEnqueue{replies: map[string]message.Message{}, errors: map[string]error{}, silent: map[string]bool{}}
	for idx := byte(1); idx <= 2; idx++ {
		cmd := command.GetScheduleFragment(ctl(t), zoneIdx, idx)
		fe.replies[cmd.Payload] = scheduleReply(zoneIdx, idx, 2, string(rune('A'+idx-1)))
	}

	f := fetch.NewScheduleFetcher()
	done := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			got, err := f.Fetch(context.Background(), ctl(t), zoneIdx, fe.enqueue)
			if err != nil {
				t.Errorf("Fetch: %v", err)
			}
			done <- got
		}()
	}
	for i := 0; i < 2; i++ {
		if got := <-done; got != "AB" {
			t.Fatalf("expected both concurrent fetches to see %q, got %q", "AB", got)
		}
	}
}

package binding_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/binding"
	"github.com/JorritSalverda/ramses-gateway/command"
	"github.com/JorritSalverda/ramses-gateway/message"
	"github.com/JorritSalverda/ramses-gateway/packet"
)

func mustAddr(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.Parse(s)
	if err != nil {
		t.Fatalf("address.Parse(%q): %v", s, err)
	}
	return a
}

func decodeInto(t *testing.T, line string) message.Message {
	t.Helper()
	p, err := packet.Decode(line)
	if err != nil {
		t.Fatalf("packet.Decode(%q): %v", line, err)
	}
	return message.Parse(p, zerolog.Nop())
}

// TestOfferor_AcceptedAndConfirmed drives the offeror path: the
// simulated controller replies W/1FC9 within the offer window, and the
// offeror confirms.
func TestOfferor_AcceptedAndConfirmed(t *testing.T) {
	self := mustAddr(t, "13:000099")
	ctl := mustAddr(t, "01:145039")

	var sent []command.Command
	enqueue := func(cmd command.Command, cb func(message.Message, error)) {
		sent = append(sent, cmd)
		cb(message.Message{}, nil)
	}

	h, err := binding.NewOfferor(self, []message.Code{message.CodeZoneHeatDemand}, enqueue, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewOfferor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan binding.Result, 1)
	go func() { resultCh <- h.Run(ctx) }()

	// Give Run a moment to send the offer, then simulate the controller's
	// accept: W/1FC9 pairing the offered code back, from the controller.
	time.Sleep(20 * time.Millisecond)
	accept := decodeInto(t, "045  W --- 01:145039 13:000099 --:------ 1FC9 006 003150"+self.HexTriplet())
	h.Feed(accept)

	select {
	case res := <-resultCh:
		if res.State != binding.Confirmed {
			t.Fatalf("expected CONFIRMED, got %v (err=%v)", res.State, res.Err)
		}
		if !res.Peer.Equal(ctl) {
			t.Fatalf("expected peer %v, got %v", ctl, res.Peer)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for handshake result")
	}

	if len(sent) != 2 {
		t.Fatalf("expected offer + confirm commands sent, got %d", len(sent))
	}
}

// TestOfferor_TimesOutWithoutAccept covers the offeror's 3s window.
func TestOfferor_TimesOutWithoutAccept(t *testing.T) {
	self := mustAddr(t, "13:000099")
	enqueue := func(cmd command.Command, cb func(message.Message, error)) { cb(message.Message{}, nil) }

	h, err := binding.NewOfferor(self, []message.Code{message.CodeZoneHeatDemand}, enqueue, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewOfferor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	res := h.Run(ctx)
	if res.State != binding.Failed {
		t.Fatalf("expected FAILED, got %v", res.State)
	}
}

// TestAcceptor_MatchesOfferAndConfirms drives the acceptor path: an
// offer arrives, the acceptor replies, and a confirming I settles it.
func TestAcceptor_MatchesOfferAndConfirms(t *testing.T) {
	self := mustAddr(t, "01:145039")
	offeror := mustAddr(t, "13:000099")

	var sent []command.Command
	enqueue := func(cmd command.Command, cb func(message.Message, error)) {
		sent = append(sent, cmd)
	}

	h, err := binding.NewAcceptor(self, 0, []message.Code{message.CodeZoneHeatDemand}, enqueue, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAcceptor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan binding.Result, 1)
	go func() { resultCh <- h.Run(ctx) }()

	offer := decodeInto(t, "045  I --- 13:000099 --:------ 13:000099 1FC9 006 003150"+offeror.HexTriplet())
	h.Feed(offer)

	time.Sleep(20 * time.Millisecond)
	confirm := decodeInto(t, "045  I --- 13:000099 01:145039 --:------ 1FC9 006 001FC9"+offeror.HexTriplet())
	h.Feed(confirm)

	select {
	case res := <-resultCh:
		if res.State != binding.Confirmed {
			t.Fatalf("expected CONFIRMED, got %v (err=%v)", res.State, res.Err)
		}
		if !res.Peer.Equal(offeror) {
			t.Fatalf("expected peer %v, got %v", offeror, res.Peer)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for handshake result")
	}

	if len(sent) == 0 {
		t.Fatal("expected at least one accept command to be sent")
	}
}

func TestNewOfferor_RejectsEmptyCapabilitySet(t *testing.T) {
	self := mustAddr(t, "13:000099")
	if _, err := binding.NewOfferor(self, nil, func(command.Command, func(message.Message, error)) {}, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for an empty capability set")
	}
}

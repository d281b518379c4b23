package command_test

import (
	"testing"

	"github.com/JorritSalverda/ramses-gateway/address"
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

func TestGetZoneTemperature_ExpectsRP(t *testing.T) {
	ctl := mustAddr(t, "01:145039")
	cmd := command.GetZoneTemperature(ctl, 0)
	if cmd.Verb != packet.VerbRequest {
		t.Fatalf("expected RQ, got %v", cmd.Verb)
	}
	if cmd.ExpectReply == nil || cmd.ExpectReply.Verb != packet.VerbReply || cmd.ExpectReply.Code != message.CodeZoneTemperature {
		t.Fatalf("expected an RP/30C9 filter, got %+v", cmd.ExpectReply)
	}
	if cmd.Payload != "0000" {
		t.Fatalf("expected zone_idx 00 payload, got %q", cmd.Payload)
	}
}

func TestSetZoneSetpoint_EncodesCentiDegrees(t *testing.T) {
	ctl := mustAddr(t, "01:145039")
	cmd := command.SetZoneSetpoint(ctl, 2, 20.5)
	if cmd.Verb != packet.VerbWrite {
		t.Fatalf("expected W, got %v", cmd.Verb)
	}
	want := "020802"
	if cmd.Payload != want {
		t.Fatalf("got payload %q, want %q", cmd.Payload, want)
	}
}

func TestToPacket_FakeableSubstitutesSrc(t *testing.T) {
	ctl := mustAddr(t, "01:145039")
	fake := mustAddr(t, "13:000099")
	cmd := command.GetZoneTemperature(ctl, 0)
	cmd.Src = mustAddr(t, "18:000730")

	p, err := command.ToPacket(cmd, fake)
	if err != nil {
		t.Fatalf("ToPacket: %v", err)
	}
	if p.Src != fake {
		t.Fatalf("expected src substituted with fakeAs, got %v", p.Src)
	}
	if p.Dst != ctl {
		t.Fatalf("expected dst preserved, got %v", p.Dst)
	}
}

func TestToPacket_RejectsOddLengthPayload(t *testing.T) {
	cmd := command.Command{
		Verb:    packet.VerbRequest,
		Dst:     mustAddr(t, "01:145039"),
		Code:    message.CodeZoneTemperature,
		Payload: "0",
	}
	if _, err := command.ToPacket(cmd, address.Address{}); err == nil {
		t.Fatal("expected an error for odd-length payload")
	}
}

func TestEncode_RoundTripsThroughPacketDecode(t *testing.T) {
	ctl := mustAddr(t, "01:145039")
	cmd := command.GetZoneTemperature(ctl, 0)
	cmd.Src = mustAddr(t, "18:000730")

	line, err := command.Encode(cmd, address.Address{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	p, err := packet.Decode(line)
	if err != nil {
		t.Fatalf("packet.Decode(%q): %v", line, err)
	}
	if p.Code != string(message.CodeZoneTemperature) || p.Verb != packet.VerbRequest {
		t.Fatalf("round-trip mismatch: %+v", p)
	}
}

func TestOfferBinding_IsBroadcastForm(t *testing.T) {
	self := mustAddr(t, "13:000099")
	cmd := command.OfferBinding(self, []message.Code{message.CodeZoneHeatDemand})
	p, err := command.ToPacket(cmd, address.Address{})
	if err != nil {
		t.Fatalf("ToPacket: %v", err)
	}
	if p.Addr0 != self || p.Addr2 != self || !p.Addr1.IsNull() {
		t.Fatalf("expected broadcast address form (addr0==addr2==self), got %+v", p)
	}
}

func TestOnlyFromController(t *testing.T) {
	if !command.OnlyFromController(message.CodeZoneTemperature) {
		t.Fatal("expected zone_temperature to be controller-only")
	}
	if command.OnlyFromController(message.CodeHeartbeat) {
		t.Fatal("did not expect heartbeat to be controller-only")
	}
}

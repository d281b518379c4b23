package packet_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/packet"
)

func TestDecode_AnnouncementForm(t *testing.T) {
	line := "045  I --- 01:145039 --:------ 01:145039 1F09 003 FF04B5"
	p, err := packet.Decode(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsAnnouncement() {
		t.Fatal("expected announcement form (Addr1 null, Addr0==Addr2)")
	}
	if p.Src.String() != "01:145039" || !p.Dst.IsNull() {
		t.Fatalf("got src=%v dst=%v", p.Src, p.Dst)
	}
	if p.Code != "1F09" || p.Payload != "FF04B5" {
		t.Fatalf("got code=%v payload=%v", p.Code, p.Payload)
	}
}

func TestDecode_TwoAddressForm(t *testing.T) {
	line := "045 RP --- 01:145039 18:010057 --:------ 30C9 003 0007D0"
	p, err := packet.Decode(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IsAnnouncement() {
		t.Fatal("did not expect announcement form")
	}
	if p.Src.String() != "01:145039" || p.Dst.String() != "18:010057" {
		t.Fatalf("got src=%v dst=%v", p.Src, p.Dst)
	}
}

func TestDecode_RejectsBadForm(t *testing.T) {
	// Addr1 and Addr2 both non-null: matches neither canonical form.
	line := "045 RP --- 01:145039 18:010057 02:000111 30C9 003 0007D0"
	_, err := packet.Decode(line)
	if !errors.Is(err, errs.InvalidPacket) {
		t.Fatalf("expected InvalidPacket, got %v", err)
	}
}

func TestDecode_RejectsLengthMismatch(t *testing.T) {
	line := "045 RP --- 01:145039 18:010057 --:------ 30C9 004 0007D0"
	_, err := packet.Decode(line)
	if !errors.Is(err, errs.InvalidPacket) {
		t.Fatalf("expected InvalidPacket for length mismatch, got %v", err)
	}
}

func TestDecode_RejectsUnknownVerb(t *testing.T) {
	line := "045 XX --- 01:145039 18:010057 --:------ 30C9 003 0007D0"
	_, err := packet.Decode(line)
	if !errors.Is(err, errs.InvalidPacket) {
		t.Fatalf("expected InvalidPacket for bad verb, got %v", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	lines := []string{
		"045  I --- 01:145039 --:------ 01:145039 1F09 003 FF04B5",
		"045 RP --- 01:145039 18:010057 --:------ 30C9 003 0007D0",
		"095 RQ --- 18:010057 01:160371 --:------ 10E0 001 00",
	}
	for _, line := range lines {
		p1, err := packet.Decode(line)
		if err != nil {
			t.Fatalf("Decode(%q): %v", line, err)
		}
		encoded, err := packet.Encode(p1)
		if err != nil {
			t.Fatalf("Encode round 1: %v", err)
		}
		p2, err := packet.Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(encode(P)): %v", err)
		}
		if !reflect.DeepEqual(p1, p2) {
			t.Fatalf("round-trip mismatch:\n p1=%+v\n p2=%+v", p1, p2)
		}
	}
}

func TestLenDeclared(t *testing.T) {
	p, err := packet.Decode("045 RP --- 01:145039 18:010057 --:------ 30C9 003 0007D0")
	if err != nil {
		t.Fatal(err)
	}
	if p.LenDeclared() != 3 {
		t.Fatalf("got %d", p.LenDeclared())
	}
}

package address_test

import (
	"errors"
	"testing"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/errs"
)

func TestParse_Valid(t *testing.T) {
	cases := []string{"01:145039", "18:010057", "63:262142", "--:------"}
	for _, s := range cases {
		a, err := address.Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", s, err)
		}
		if a.String() != s {
			t.Fatalf("Parse(%q).String() = %q", s, a.String())
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{"", "01:14503", "AB:145039", "01-145039", "01:14503X"}
	for _, s := range cases {
		_, err := address.Parse(s)
		if !errors.Is(err, errs.InvalidPacket) {
			t.Fatalf("Parse(%q) expected InvalidPacket, got %v", s, err)
		}
	}
}

func TestNull(t *testing.T) {
	if !address.Null.IsNull() {
		t.Fatal("expected Null.IsNull()")
	}
	if address.Null.String() != address.NullText {
		t.Fatalf("got %q", address.Null.String())
	}
}

func TestIsGateway(t *testing.T) {
	a := address.MustParse("18:010057")
	if !a.IsGateway() {
		t.Fatal("expected 18:* to be a gateway address")
	}
	b := address.MustParse("01:145039")
	if b.IsGateway() {
		t.Fatal("did not expect 01:* to be a gateway address")
	}
}

func TestEqual(t *testing.T) {
	a := address.MustParse("01:145039")
	b := address.MustParse("01:145039")
	c := address.MustParse("01:145040")
	if !a.Equal(b) {
		t.Fatal("expected equal addresses to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("did not expect different addresses to compare equal")
	}
}

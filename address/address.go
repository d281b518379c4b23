// Package address implements the RAMSES-II device identifier: a
// six-hex-digit id rendered as "TT:NNNNNN" (spec §3 "Address"),
// generalised from the slice-offset parsing in the teacher's
// messageProcessor.go DecodeMessage into a validated type with its own
// parser and sentinels.
package address

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/JorritSalverda/ramses-gateway/errs"
)

var pattern = regexp.MustCompile(`^[0-9]{2}:[0-9]{6}$`)

// Sentinel addresses, always valid regardless of the type-class table.
const (
	NullText = "--:------"
	// GatewayClass is the local HGI80/evofw3 adaptor's own class prefix.
	GatewayClass = "18"
	// BroadcastText is the null/broadcast sentinel device id.
	BroadcastText = "63:262142"
)

// Null is the "no device" placeholder address.
var Null = Address{class: "--", number: "------", isNull: true}

// Address is a typed, validated RAMSES-II device id.
type Address struct {
	class  string // two-digit device-type class, e.g. "01", "13", "18"
	number string // six digit device serial
	isNull bool
}

// Parse validates s against "TT:NNNNNN" or the null placeholder and
// returns a typed Address. Any other form is an InvalidPacket error
// (spec §4.1 address validation).
func Parse(s string) (Address, error) {
	if s == NullText {
		return Null, nil
	}
	if !pattern.MatchString(s) {
		return Address{}, errs.New(errs.InvalidPacket, "address.Parse", fmt.Sprintf("malformed address %q", s))
	}
	return Address{class: s[0:2], number: s[3:9]}, nil
}

// MustParse panics on an invalid address; for use with compile-time
// literals (tests, command builders), never on wire input.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsNull reports whether this is the "--:------" placeholder.
func (a Address) IsNull() bool { return a.isNull }

// IsBroadcast reports whether this is the 63:262142 sentinel.
func (a Address) IsBroadcast() bool { return a.String() == BroadcastText }

// IsGateway reports whether this address carries the local-gateway
// class prefix "18".
func (a Address) IsGateway() bool { return !a.isNull && a.class == GatewayClass }

// Class is the two-digit device-type prefix, or "--" for Null.
func (a Address) Class() string { return a.class }

// Number is the six-digit device serial, or "------" for Null.
func (a Address) Number() string { return a.number }

// String renders the canonical "TT:NNNNNN" wire form.
func (a Address) String() string {
	if a.isNull {
		return NullText
	}
	return a.class + ":" + a.number
}

// HexTriplet packs the address into the 3-byte (class<<18 | number)
// form some payloads carry a device id inline in, e.g. the 1FC9
// binding records (spec §4.6): class occupies the high 6 bits, number
// the low 18.
func (a Address) HexTriplet() string {
	if a.isNull {
		return "000000"
	}
	class, _ := strconv.ParseUint(a.class, 10, 8)
	number, _ := strconv.ParseUint(a.number, 10, 32)
	packed := class<<18 | number
	return fmt.Sprintf("%06X", packed)
}

// ParseHexTriplet reverses HexTriplet.
func ParseHexTriplet(hex string) (Address, error) {
	if len(hex) != 6 {
		return Address{}, errs.New(errs.InvalidPacket, "address.ParseHexTriplet", fmt.Sprintf("want 6 hex chars, got %q", hex))
	}
	packed, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Address{}, errs.New(errs.InvalidPacket, "address.ParseHexTriplet", fmt.Sprintf("malformed hex %q", hex))
	}
	class := packed >> 18
	number := packed & 0x3FFFF
	return Address{class: fmt.Sprintf("%02d", class), number: fmt.Sprintf("%06d", number)}, nil
}

// Equal compares two addresses by value.
func (a Address) Equal(b Address) bool {
	return a.isNull == b.isNull && a.class == b.class && a.number == b.number
}

// Valid reports whether a was produced by Parse/MustParse/Null (i.e.
// is not the Address zero-value, which has an empty class/number and
// is neither Null nor a well-formed real address).
func (a Address) Valid() bool {
	if a.isNull {
		return true
	}
	return pattern.MatchString(a.class + ":" + a.number)
}

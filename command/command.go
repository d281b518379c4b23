// Package command is the single place outbound messages are built
// (spec §4.4: "every outbound message is built here, never by ad-hoc
// callers"). Grounded on the teacher's domain.go Command/DefaultPayload
// and the ad-hoc `commandQueue <- Command{...}` call sites scattered
// through main.go, generalised into named builder functions that each
// pick a verb, compose addresses, encode the payload and attach QoS
// (spec §4.4).
package command

import (
	"fmt"
	"time"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/message"
	"github.com/JorritSalverda/ramses-gateway/packet"
)

// Priority is the QoS class a Command is queued under (spec §4.4/§4.5).
// Ordered so that Priority values compare correctly: a higher Priority
// wins.
type Priority int

const (
	Low Priority = iota
	Default
	High
	Asap
)

func (p Priority) String() string {
	switch p {
	case Asap:
		return "ASAP"
	case High:
		return "HIGH"
	case Low:
		return "LOW"
	default:
		return "DEFAULT"
	}
}

// ReplyFilter describes the inbound message an outbound Command
// expects before it's considered complete (spec §4.5 "Expected-reply
// matching").
type ReplyFilter struct {
	Verb packet.Verb
	Code message.Code
	// Idx, when non-nil, must match the reply's zone_idx/domain_id byte.
	Idx *byte
}

// DefaultRetries/DefaultTimeout mirror spec §4.4's QoS defaults.
const (
	DefaultRetries = 3
	DefaultTimeout = 3 * time.Second
)

// Command is one outbound message plus its QoS (spec §4.4).
type Command struct {
	Verb packet.Verb
	Src  address.Address
	Dst  address.Address
	// Broadcast marks an announcement-form send (Addr0==Addr2, Addr1 null).
	Broadcast bool

	Code    message.Code
	Payload string // even-length hex

	Priority Priority
	Retries  int
	Timeout  time.Duration

	// ExpectReply is nil for a fire-and-forget I with no custom filter
	// (spec §4.5: "An outbound I does not await a reply unless the
	// caller supplies a custom filter").
	ExpectReply *ReplyFilter
}

// withDefaults fills the QoS fields of a Command whose Timeout is still
// zero: Timeout gets DefaultTimeout and a zero Retries gets
// DefaultRetries. A Command that already has a Timeout (every builder's
// output) keeps its Retries as set, so an explicit Retries of 0 stays 0.
func (c Command) withDefaults() Command {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
		if c.Retries == 0 {
			c.Retries = DefaultRetries
		}
	}
	return c
}

// WithDefaults is withDefaults exported for callers outside this
// package (the transmit engine accepts ad-hoc Commands, not just ones
// built by the factory functions).
func (c Command) WithDefaults() Command { return c.withDefaults() }

// ExpectedReplyFor derives the default expected-reply filter for a
// verb/code pair (spec §4.5): RQ expects a matching RP, W expects an
// I/RP "echo" semantics reply, I awaits nothing unless overridden. The
// filter for a W names VerbInform; the transmit engine also accepts an
// RP as the reply to a W.
func ExpectedReplyFor(verb packet.Verb, code message.Code) *ReplyFilter {
	switch verb {
	case packet.VerbRequest:
		return &ReplyFilter{Verb: packet.VerbReply, Code: code}
	case packet.VerbWrite:
		return &ReplyFilter{Verb: packet.VerbInform, Code: code}
	default:
		return nil
	}
}

// ToPacket renders cmd to its wire Packet, with src substituted for
// Fakeable re-addressing (spec §9 "fake_addrs... address
// substitution") when fakeAs is valid.
func ToPacket(cmd Command, fakeAs address.Address) (packet.Packet, error) {
	if len(cmd.Payload)%2 != 0 {
		return packet.Packet{}, errs.New(errs.InvalidPacket, "command.ToPacket", fmt.Sprintf("odd-length payload %q", cmd.Payload))
	}

	// A Command built without a Src is sent from the default gateway id
	// 18:000730.
	src := cmd.Src
	if !src.Valid() {
		src = address.MustParse(address.GatewayClass + ":000730")
	}
	if fakeAs.Valid() && !fakeAs.IsNull() {
		src = fakeAs
	}

	dst := cmd.Dst
	broadcast := cmd.Broadcast || dst.IsNull()

	p := packet.Packet{
		Verb:    cmd.Verb,
		Seqn:    "---",
		Code:    string(cmd.Code),
		Payload: cmd.Payload,
		Src:     src,
	}
	if broadcast {
		p.Dst = address.Null
		p.Addr0, p.Addr1, p.Addr2 = src, address.Null, src
	} else {
		p.Dst = dst
		p.Addr0, p.Addr1, p.Addr2 = src, dst, address.Null
	}
	return p, nil
}

// Encode renders cmd directly to its wire line (teacher's
// messageProcessor.go SendCommand, generalised to the codec).
func Encode(cmd Command, fakeAs address.Address) (string, error) {
	p, err := ToPacket(cmd, fakeAs)
	if err != nil {
		return "", err
	}
	return packet.Encode(p)
}

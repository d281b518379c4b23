package message

import (
	"time"

	"github.com/JorritSalverda/ramses-gateway/packet"
)

// PayloadKind distinguishes the three payload shapes spec §3
// describes: "a scalar dict, an indexed dict... or a list of such
// dicts."
type PayloadKind int

const (
	KindRaw PayloadKind = iota
	KindScalar
	KindIndexed
	KindList
)

// Message is a decoded packet: the wire Packet plus its opcode-parsed
// payload (spec §3 "Message").
type Message struct {
	Packet packet.Packet
	Code   Code

	Kind PayloadKind
	// Scalar holds the decoded value when Kind == KindScalar.
	Scalar interface{}
	// Indexed holds zone_idx/domain_id/ufh_idx -> decoded value when
	// Kind == KindIndexed.
	Indexed map[byte]interface{}
	// List holds the decoded records when Kind == KindList.
	List []interface{}
	// Raw holds the undecoded hex payload when Kind == KindRaw (§4.3
	// "Unknown opcodes are wrapped as raw messages").
	Raw string

	// Unparsed is true when a registered decoder rejected the payload;
	// the packet is still surfaced (spec §7 "Errors inside parser
	// decoders are confined... mark the message as unparsed and keep
	// the packet").
	Unparsed   bool
	ParseError error
}

// expiryHorizon is how long each opcode's last-seen value remains
// current (spec §3 "expiry horizon derived from its code"). Opcodes
// not listed default to defaultExpiry.
var expiryHorizon = map[Code]time.Duration{
	CodeZoneTemperature: 20 * time.Minute,
	CodeDhwTemperature:  20 * time.Minute,
	CodeSetpoint:        20 * time.Minute,
	CodeZoneHeatDemand:  10 * time.Minute,
	CodeRelayHeatDemand: 10 * time.Minute,
	CodeWindowStatus:    60 * time.Minute,
	CodeBatteryInfo:     24 * time.Hour,
	CodeZoneInfo:        24 * time.Hour,
	CodeZoneName:        24 * time.Hour,
	CodeSync:            6 * time.Minute,
}

const defaultExpiry = 60 * time.Minute

// ExpiresAt is when this message's value should be considered stale.
func (m Message) ExpiresAt() time.Time {
	horizon, ok := expiryHorizon[m.Code]
	if !ok {
		horizon = defaultExpiry
	}
	ts := m.Packet.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.Add(horizon)
}

// Expired reports whether this message is past its expiry horizon as
// of now (spec §3 "_expired becomes true past the horizon").
func (m Message) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt())
}

// Name is the human-readable opcode name (e.g. "zone_temperature").
func (m Message) Name() string { return m.Code.Name() }

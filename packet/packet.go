// Package packet implements the RAMSES-II wire codec (spec §4.1,
// §6): the ASCII line grammar exchanged with an HGI80/evofw3 radio
// adaptor, decoded into a canonical Packet and back. Generalised from
// the regex-and-slice-offset parsing in the teacher's
// messageProcessor.go (IsValidMessage/DecodeMessage), which only
// handled the request/response two-address form; this codec also
// implements the announcement form (form rule §4.1.a) the teacher
// never needed.
package packet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/errs"
)

// Verb is one of the four RAMSES-II message verbs (spec §3 "Packet").
type Verb string

const (
	VerbInform  Verb = "I"  // inform
	VerbRequest Verb = "RQ" // request
	VerbReply   Verb = "RP" // reply
	VerbWrite   Verb = "W"  // write
)

func (v Verb) valid() bool {
	switch v {
	case VerbInform, VerbRequest, VerbReply, VerbWrite:
		return true
	}
	return false
}

// wire renders the two-character, space-padded verb the line
// grammar requires (spec §6: "VERB ∈ { I, RQ, RP, W } (two chars,
// space-padded)").
func (v Verb) wire() string {
	switch v {
	case VerbInform:
		return " I"
	case VerbWrite:
		return " W"
	default:
		return string(v)
	}
}

func parseVerb(s string) (Verb, error) {
	switch strings.TrimSpace(s) {
	case "I":
		return VerbInform, nil
	case "RQ":
		return VerbRequest, nil
	case "RP":
		return VerbReply, nil
	case "W":
		return VerbWrite, nil
	default:
		return "", errs.New(errs.InvalidPacket, "packet.parseVerb", fmt.Sprintf("unknown verb %q", s))
	}
}

var (
	seqnPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}|---)$`)
	codePattern = regexp.MustCompile(`^[0-9A-F]{4}$`)
	hexPattern  = regexp.MustCompile(`^[0-9A-F]*$`)
	wsPattern   = regexp.MustCompile(`\s+`)
)

// Packet is the canonical, decoded form of one wire line (spec §3).
type Packet struct {
	Timestamp time.Time // zero if the line carried no timestamp
	RSSI      *int      // 0-255, nil if absent
	Verb      Verb
	Seqn      string // "00".."FF" or "---"
	Addr0     address.Address
	Addr1     address.Address
	Addr2     address.Address
	Code      string // 4 hex digits
	Payload   string // even-length hex string

	// Src/Dst are the two "extracted" logical addresses derived from
	// Addr0-2 by form rule §4.1.a. Dst is Null for an announcement.
	Src address.Address
	Dst address.Address
}

// IsAnnouncement reports whether this packet matched the announcement
// form of rule §4.1.a (Addr1 null, Addr0 == Addr2).
func (p Packet) IsAnnouncement() bool {
	return p.Addr1.IsNull() && !p.Addr0.IsNull() && p.Addr0.Equal(p.Addr2)
}

// LenDeclared is the decimal LEN field implied by the payload (spec
// §3: "length byte must match").
func (p Packet) LenDeclared() int { return len(p.Payload) / 2 }

// applyFormRule derives Src/Dst from Addr0-2 per spec §4.1.a, or
// rejects the packet if neither canonical form matches.
func applyFormRule(p *Packet) error {
	switch {
	case p.Addr1.IsNull() && !p.Addr0.IsNull() && p.Addr0.Equal(p.Addr2):
		// announcement: src=Addr0, dst=null
		p.Src, p.Dst = p.Addr0, address.Null
		return nil
	case !p.Addr0.IsNull() && !p.Addr1.IsNull() && p.Addr2.IsNull():
		// request/response: src=Addr0, dst=Addr1
		p.Src, p.Dst = p.Addr0, p.Addr1
		return nil
	default:
		return errs.New(errs.InvalidPacket, "packet.applyFormRule",
			fmt.Sprintf("addresses %s/%s/%s do not match either canonical form", p.Addr0, p.Addr1, p.Addr2))
	}
}

// Decode parses one ASCII line (already stripped of its trailing
// "\r\n" by the transport's line framer) into a Packet.
//
// Grammar (spec §6):
//
//	[HHMMSS.mmm ]?[RSSI ]?<VERB> <SEQN> <A0> <A1> <A2> <CODE> <LEN> <HEX*>
func Decode(line string) (Packet, error) {
	line = strings.TrimSpace(wsPattern.ReplaceAllString(strings.TrimSpace(line), " "))
	fields := strings.Split(line, " ")

	// Strip an optional leading timestamp and an optional leading RSSI,
	// identified positionally: a timestamp is HHMMSS(.mmm)?, an RSSI is
	// 1-3 decimal digits with no colon/letters.
	var ts time.Time
	var rssi *int
	idx := 0
	if idx < len(fields) && looksLikeTimestamp(fields[idx]) {
		if t, err := parseTimestamp(fields[idx]); err == nil {
			ts = t
		}
		idx++
	}
	if idx < len(fields) && looksLikeRSSI(fields[idx]) {
		if n, err := strconv.Atoi(fields[idx]); err == nil {
			rssi = &n
		}
		idx++
	}

	rest := fields[idx:]
	if len(rest) < 7 {
		return Packet{}, errs.New(errs.InvalidPacket, "packet.Decode", fmt.Sprintf("too few fields in %q", line))
	}

	verb, err := parseVerb(rest[0])
	if err != nil {
		return Packet{}, err
	}

	seqn := rest[1]
	if !seqnPattern.MatchString(seqn) {
		return Packet{}, errs.New(errs.InvalidPacket, "packet.Decode", fmt.Sprintf("bad seqn %q", seqn))
	}

	a0, err := address.Parse(rest[2])
	if err != nil {
		return Packet{}, err
	}
	a1, err := address.Parse(rest[3])
	if err != nil {
		return Packet{}, err
	}
	a2, err := address.Parse(rest[4])
	if err != nil {
		return Packet{}, err
	}

	code := strings.ToUpper(rest[5])
	if !codePattern.MatchString(code) {
		return Packet{}, errs.New(errs.InvalidPacket, "packet.Decode", fmt.Sprintf("bad code %q", code))
	}

	declaredLen, err := strconv.Atoi(rest[6])
	if err != nil || declaredLen < 0 || declaredLen > 48 {
		return Packet{}, errs.New(errs.InvalidPacket, "packet.Decode", fmt.Sprintf("bad length field %q", rest[6]))
	}

	payload := ""
	if len(rest) > 7 {
		payload = strings.ToUpper(strings.Join(rest[7:], ""))
	}
	if !hexPattern.MatchString(payload) {
		return Packet{}, errs.New(errs.InvalidPacket, "packet.Decode", fmt.Sprintf("non-hex payload %q", payload))
	}
	// Length agreement (spec §3 invariant 4 / §8 property 3).
	if len(payload) != declaredLen*2 {
		return Packet{}, errs.New(errs.InvalidPacket, "packet.Decode",
			fmt.Sprintf("declared len %d does not match payload %q", declaredLen, payload))
	}

	p := Packet{
		Timestamp: ts,
		RSSI:      rssi,
		Verb:      verb,
		Seqn:      seqn,
		Addr0:     a0,
		Addr1:     a1,
		Addr2:     a2,
		Code:      code,
		Payload:   payload,
	}
	if err := applyFormRule(&p); err != nil {
		return Packet{}, err
	}
	return p, nil
}

func looksLikeTimestamp(s string) bool {
	if len(s) < 6 {
		return false
	}
	for _, r := range s[:6] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseTimestamp(s string) (time.Time, error) {
	// HHMMSS.mmm, applied to today's date in UTC since the wire format
	// carries no date.
	layout := "150405"
	body := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		layout = "150405.000"
		body = s
	}
	t, err := time.Parse(layout, body)
	if err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

func looksLikeRSSI(s string) bool {
	if len(s) == 0 || len(s) > 3 {
		return false
	}
	if strings.ContainsAny(s, ":.-") {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// Encode renders p back to its ASCII wire line, without the trailing
// "\r\n" (the transport's writer appends that). Outbound packets
// always use the two canonical real-address forms (spec §4.1 "The
// encoder is the inverse").
func Encode(p Packet) (string, error) {
	if !p.Verb.valid() {
		return "", errs.New(errs.InvalidPacket, "packet.Encode", fmt.Sprintf("unknown verb %q", p.Verb))
	}
	if !codePattern.MatchString(p.Code) {
		return "", errs.New(errs.InvalidPacket, "packet.Encode", fmt.Sprintf("bad code %q", p.Code))
	}
	if len(p.Payload)%2 != 0 || !hexPattern.MatchString(p.Payload) {
		return "", errs.New(errs.InvalidPacket, "packet.Encode", fmt.Sprintf("bad payload %q", p.Payload))
	}

	addr0, addr1, addr2 := p.Addr0, p.Addr1, p.Addr2
	// If the caller populated Src/Dst but not the raw address slots,
	// derive the canonical form from them.
	if addr0 == (address.Address{}) && addr1 == (address.Address{}) && addr2 == (address.Address{}) {
		if p.Dst.IsNull() {
			addr0, addr1, addr2 = p.Src, address.Null, p.Src
		} else {
			addr0, addr1, addr2 = p.Src, p.Dst, address.Null
		}
	}

	seqn := p.Seqn
	if seqn == "" {
		seqn = "---"
	}

	// A timestamp (time of day only) and an RSSI, when set, lead the line
	// in the order Decode strips them.
	prefix := ""
	if !p.Timestamp.IsZero() {
		prefix += p.Timestamp.Format("150405.000") + " "
	}
	if p.RSSI != nil {
		prefix += fmt.Sprintf("%03d ", *p.RSSI)
	}
	return prefix + fmt.Sprintf("%s %s %s %s %s %s %03d %s",
		p.Verb.wire(), seqn, addr0, addr1, addr2, p.Code, p.LenDeclared(), p.Payload), nil
}

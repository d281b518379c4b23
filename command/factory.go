package command

import (
	"fmt"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/message"
	"github.com/JorritSalverda/ramses-gateway/packet"
)

// codeOnlyFromCtl lists opcodes spec §4.4 reserves to the controller as
// a destination, i.e. the set of opcodes this gateway may only ever
// address to a device already known to be (or believed to be) the TCS
// controller. Mirrors the per-opcode restriction table spec.md §4.4
// references as "code_only_from_ctl" without spelling it out in full;
// populated with the controller-addressed opcodes this factory builds
// (sent as RQ, or as W for 2309/0404) plus 2E04, which has no builder.
var codeOnlyFromCtl = map[message.Code]bool{
	message.CodeZoneName:        true,
	message.CodeZoneInfo:        true,
	message.CodeZoneTemperature: true,
	message.CodeSetpoint:        true,
	message.CodeSchedule:        true,
	message.CodeFaultLog:        true,
	message.CodeControllerMode:  true,
}

// OnlyFromController reports whether code may only be addressed to a
// controller (used by higher layers to validate a builder's Dst).
func OnlyFromController(code message.Code) bool { return codeOnlyFromCtl[code] }

func zoneIdxHex(zoneIdx byte) string { return fmt.Sprintf("%02X", zoneIdx) }

// request builds a bare RQ with the given priority, deriving the
// expected RP filter automatically (spec §4.4/§4.5).
func request(dst address.Address, code message.Code, payload string, prio Priority) Command {
	c := Command{
		Verb:     packet.VerbRequest,
		Dst:      dst,
		Code:     code,
		Payload:  payload,
		Priority: prio,
	}
	c.ExpectReply = ExpectedReplyFor(c.Verb, c.Code)
	return c.withDefaults()
}

func write(dst address.Address, code message.Code, payload string, prio Priority) Command {
	c := Command{
		Verb:     packet.VerbWrite,
		Dst:      dst,
		Code:     code,
		Payload:  payload,
		Priority: prio,
	}
	c.ExpectReply = ExpectedReplyFor(c.Verb, c.Code)
	return c.withDefaults()
}

func inform(dst address.Address, code message.Code, payload string, prio Priority, broadcast bool) Command {
	c := Command{
		Verb:      packet.VerbInform,
		Dst:       dst,
		Code:      code,
		Payload:   payload,
		Priority:  prio,
		Broadcast: broadcast,
	}
	return c.withDefaults()
}

// GetZoneTemperature requests a zone's current temperature (0x30C9),
// used in spec scenario S2.
func GetZoneTemperature(ctl address.Address, zoneIdx byte) Command {
	return request(ctl, message.CodeZoneTemperature, zoneIdxHex(zoneIdx)+"00", Default)
}

// GetZoneName requests a zone's stored name (0x0004).
func GetZoneName(ctl address.Address, zoneIdx byte) Command {
	return request(ctl, message.CodeZoneName, zoneIdxHex(zoneIdx)+"00", Low)
}

// GetZoneInfo requests a zone's min/max setpoint bounds (0x000A).
func GetZoneInfo(ctl address.Address, zoneIdx byte) Command {
	return request(ctl, message.CodeZoneInfo, zoneIdxHex(zoneIdx), Low)
}

// SetZoneSetpoint writes a new target temperature for a zone (0x2309).
func SetZoneSetpoint(ctl address.Address, zoneIdx byte, degreesC float64) Command {
	centi := int16(degreesC * 100)
	payload := fmt.Sprintf("%s%04X", zoneIdxHex(zoneIdx), uint16(centi))
	return write(ctl, message.CodeSetpoint, payload, High)
}

// GetFaultLogEntry requests fault-log entry logIdx (0x0418), used by
// the fetch package's index-based fault-log fetcher (spec §4.8).
func GetFaultLogEntry(ctl address.Address, logIdx byte) Command {
	return request(ctl, message.CodeFaultLog, fmt.Sprintf("%02X0000", logIdx), Low)
}

// GetScheduleFragment requests one chunk of a zone's schedule (0x0404),
// used by the fetch package's chunked schedule fetcher (spec §4.8).
func GetScheduleFragment(ctl address.Address, zoneIdx byte, chunkIdx byte) Command {
	payload := fmt.Sprintf("%s00%02X00", zoneIdxHex(zoneIdx), chunkIdx)
	return request(ctl, message.CodeSchedule, payload, Default)
}

// SetScheduleFragment writes one chunk of a zone's schedule (0x0404 W).
func SetScheduleFragment(ctl address.Address, zoneIdx byte, chunkIdx, chunkCnt byte, fragmentHex string) Command {
	payload := fmt.Sprintf("%s00%02X%02X%s", zoneIdxHex(zoneIdx), chunkIdx, chunkCnt, fragmentHex)
	return write(ctl, message.CodeSchedule, payload, Default)
}

// OfferBinding sends the offeror's I/1FC9 advertising the opcodes this
// (usually faked) device offers (spec §4.6 "Offeror path"). Each
// record is idx(1)+code(2)+device-id(3), spec §4.6/§4.3 "binding
// record".
func OfferBinding(self address.Address, codes []message.Code) Command {
	payload := ""
	for _, c := range codes {
		payload += "00" + string(c) + self.HexTriplet()
	}
	c := inform(address.Null, message.CodeBind, payload, Asap, true)
	c.Src = self
	return c
}

// AcceptBinding replies W/1FC9 pairing an offered opcode to this
// device's preferred idx/domain (spec §4.6 "Acceptor path").
func AcceptBinding(ctl, offeror address.Address, idx byte, code message.Code) Command {
	payload := fmt.Sprintf("%02X%s%s", idx, code, offeror.HexTriplet())
	c := write(offeror, message.CodeBind, payload, Asap)
	c.Src = ctl
	return c
}

// ConfirmBinding sends the offeror's final I/1FC9 to close the
// handshake (spec §4.6, third leg).
func ConfirmBinding(self, acceptor address.Address) Command {
	payload := "00" + string(message.CodeBind) + acceptor.HexTriplet()
	c := inform(acceptor, message.CodeBind, payload, Asap, false)
	c.Src = self
	return c
}

// GetHeartbeat requests the controller's sysinfo/heartbeat (0x10E0),
// mirroring the teacher's startup heartbeat probe in main.go.
func GetHeartbeat(ctl address.Address) Command {
	return request(ctl, message.CodeHeartbeat, "00", Low)
}

// SendOpenThermRequest issues an OTB 3220 read for data-id (spec §4.7
// "OTB"); the entity layer's deprecation tracking decides whether this
// should be sent at all for a given data-id.
func SendOpenThermRequest(otb address.Address, dataID byte) Command {
	payload := fmt.Sprintf("00%02X%02X0000", byte(message.OTReadData)<<4, dataID)
	return request(otb, message.CodeOpenTherm, payload, Default)
}

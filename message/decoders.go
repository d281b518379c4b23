// Opcode decoders (spec §4.3): each consumes a payload hex string and
// returns either a structured record or a validation error. Grounded
// on the field-by-field parsing in the teacher's messageProcessor.go
// Process*Message methods (ParseInt on hex slices, the same /100 and
// /200*100 scaling), generalised from "parse inline and log" into
// decoders returning typed values, and extended with the null-sentinel
// and list-record rules spec.md §4.3 names that the teacher's
// measurement pipeline didn't need (it only ever logged/stored the
// happy path).
package message

import (
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/errs"
)

// decodeFunc decodes a payload into a Message's Kind/Scalar/Indexed/List.
type decodeFunc func(payload string) (Message, error)

var decoders = map[Code]decodeFunc{
	CodeZoneName:        decodeZoneName,
	CodeZoneInfo:        decodeZoneInfo,
	CodeZoneTemperature: decodeZoneTemperatures,
	CodeSetpoint:        decodeZoneSetpoints,
	CodeZoneHeatDemand:  decodeHeatDemand,
	CodeRelayHeatDemand: decodeHeatDemand,
	CodeDhwTemperature:  decodeSingleTemperature,
	CodeBind:            decodeBindOffer,
	CodeFaultLog:        decodeFaultLogEntry,
	CodeOpenTherm:       decodeOpenTherm,
	CodeSchedule:        decodeScheduleFragment,
	CodeSync:            decodeSync,
	CodeBatteryInfo:     decodeBatteryInfo,
}

// decode dispatches payload through the decoder registered for code,
// or wraps it as raw if none is registered (spec §4.3 "Unknown opcodes
// are wrapped as raw messages"). A decoder error does not propagate:
// the result is marked Unparsed and the raw payload is kept (spec §7).
func decode(code Code, payload string, log zerolog.Logger) Message {
	fn, ok := decoders[code]
	if !ok {
		log.Debug().Str("code", string(code)).Str("payload", spew.Sdump(payload)).Msg("no decoder registered, wrapping raw")
		return Message{Code: code, Kind: KindRaw, Raw: payload}
	}
	msg, err := fn(payload)
	msg.Code = code
	if err != nil {
		log.Debug().Err(err).Str("code", string(code)).Msg("payload decode failed, marking unparsed")
		msg.Kind = KindRaw
		msg.Raw = payload
		msg.Unparsed = true
		msg.ParseError = err
		return msg
	}
	return msg
}

// --- 0004 zone_name --------------------------------------------------

// ZoneName is the decoded 0004 payload: a zone index and its stored
// name (teacher's ProcessZoneNameMessage, generalised).
type ZoneName struct {
	ZoneIdx ZoneIdx
	Name    string
}

func decodeZoneName(payload string) (Message, error) {
	idx, err := parseZoneIdx(payload, 0)
	if err != nil {
		return Message{}, err
	}
	if len(payload) < 4 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeZoneName", "payload too short")
	}
	raw := payload[4:]
	b, err := hexDecodeTrimmed(raw)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindScalar, Scalar: ZoneName{ZoneIdx: idx, Name: b}}, nil
}

func hexDecodeTrimmed(payload string) (string, error) {
	if len(payload)%2 != 0 {
		return "", errs.New(errs.InvalidPacket, "message.hexDecodeTrimmed", "odd-length hex")
	}
	out := make([]byte, 0, len(payload)/2)
	for i := 0; i+2 <= len(payload); i += 2 {
		b, err := hexByte(payload, i)
		if err != nil {
			return "", err
		}
		if b == 0 {
			continue
		}
		if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == ' ' {
			out = append(out, b)
		}
	}
	return trimSpace(string(out)), nil
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

// --- 000A zone_info ---------------------------------------------------

// ZoneInfoEntry is one 6-byte record of a 000A payload (spec §4.3 list
// payloads; teacher's ProcessZoneInfoMessage).
type ZoneInfoEntry struct {
	ZoneIdx        ZoneIdx
	MinTemperature Temperature
	MaxTemperature Temperature
}

const zoneInfoRecordHexLen = 12 // 6 bytes

func decodeZoneInfo(payload string) (Message, error) {
	if len(payload)%zoneInfoRecordHexLen != 0 || len(payload) == 0 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeZoneInfo", "payload is not a concatenation of 6-byte records")
	}
	records := make([]interface{}, 0, len(payload)/zoneInfoRecordHexLen)
	for i := 0; i < len(payload); i += zoneInfoRecordHexLen {
		idx, err := parseZoneIdx(payload, i)
		if err != nil {
			return Message{}, err
		}
		minT, err := parseTemperature(payload, i+4)
		if err != nil {
			return Message{}, err
		}
		maxT, err := parseTemperature(payload, i+8)
		if err != nil {
			return Message{}, err
		}
		records = append(records, ZoneInfoEntry{ZoneIdx: idx, MinTemperature: minT, MaxTemperature: maxT})
	}
	return Message{Kind: KindList, List: records}, nil
}

// --- 30C9 / 2309 zone temperature & setpoint arrays -------------------

// ZoneReading is one 3-byte (zone_idx, temperature) record shared by
// 30C9 (zone_temperature) and 2309 (setpoint) — both are arrays of
// "zone id in byte 1, centi-degrees in bytes 2-3" per the teacher's
// ProcessZoneTemperatureMessage/ProcessSetpointMessage.
type ZoneReading struct {
	ZoneIdx ZoneIdx
	Value   Temperature
}

const zoneReadingRecordHexLen = 6 // 3 bytes

func decodeZoneReadings(payload string) (Message, error) {
	if len(payload)%zoneReadingRecordHexLen != 0 || len(payload) == 0 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeZoneReadings", "payload is not a concatenation of 3-byte records")
	}
	records := make([]interface{}, 0, len(payload)/zoneReadingRecordHexLen)
	for i := 0; i < len(payload); i += zoneReadingRecordHexLen {
		idx, err := parseZoneIdx(payload, i)
		if err != nil {
			return Message{}, err
		}
		val, err := parseTemperature(payload, i+2)
		if err != nil {
			return Message{}, err
		}
		records = append(records, ZoneReading{ZoneIdx: idx, Value: val})
	}
	return Message{Kind: KindList, List: records}, nil
}

func decodeZoneTemperatures(payload string) (Message, error) { return decodeZoneReadings(payload) }
func decodeZoneSetpoints(payload string) (Message, error)    { return decodeZoneReadings(payload) }

func decodeSingleTemperature(payload string) (Message, error) {
	if len(payload) < 6 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeSingleTemperature", "payload too short")
	}
	idx, err := parseZoneIdx(payload, 0)
	if err != nil {
		return Message{}, err
	}
	t, err := parseTemperature(payload, 2)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindIndexed, Indexed: map[byte]interface{}{idx.Raw: t}}, nil
}

// --- 0008 / 3150 heat demand -------------------------------------------

// HeatDemand is the decoded (zone_idx/domain_id, percentage) pair from
// an 0008/3150 payload (teacher's processHeatDemandMessage).
type HeatDemand struct {
	ZoneIdx ZoneIdx
	Demand  Percentage
}

func decodeHeatDemand(payload string) (Message, error) {
	if len(payload) != 4 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeHeatDemand", "expected a single 2-byte record")
	}
	idx, err := parseZoneIdx(payload, 0)
	if err != nil {
		return Message{}, err
	}
	demand, err := parsePercentage(payload, 2)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindScalar, Scalar: HeatDemand{ZoneIdx: idx, Demand: demand}}, nil
}

// --- 1F09 sync ----------------------------------------------------------

// Sync is the decoded 1F09 payload: a status byte and a remaining-time
// interval (spec S1 scenario uses this opcode to promote a controller).
type Sync struct {
	Status   byte
	Interval TimeOfDay
}

func decodeSync(payload string) (Message, error) {
	if len(payload) < 6 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeSync", "payload too short")
	}
	status, err := hexByte(payload, 0)
	if err != nil {
		return Message{}, err
	}
	interval, err := parseTimeOfDayLE(payload, 2)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindScalar, Scalar: Sync{Status: status, Interval: interval}}, nil
}

// --- 1FC9 binding offer/accept/confirm ----------------------------------

// BindPair is one (domain/zone idx, opcode, device) triple carried by
// an 1FC9 payload (spec §4.6).
type BindPair struct {
	Idx      ZoneIdx
	Code     Code
	DeviceID string // 6-hex-char packed device id, see address.HexTriplet
}

const bindRecordHexLen = 12 // idx(1) + code(2) + device-id(3)

func decodeBindOffer(payload string) (Message, error) {
	if len(payload)%bindRecordHexLen != 0 || len(payload) == 0 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeBindOffer", "payload is not a concatenation of 6-byte records")
	}
	records := make([]interface{}, 0, len(payload)/bindRecordHexLen)
	for i := 0; i < len(payload); i += bindRecordHexLen {
		idx, err := parseZoneIdx(payload, i)
		if err != nil {
			return Message{}, err
		}
		records = append(records, BindPair{
			Idx:      idx,
			Code:     Code(payload[i+2 : i+6]),
			DeviceID: payload[i+6 : i+12],
		})
	}
	return Message{Kind: KindList, List: records}, nil
}

// --- 1060 battery info ---------------------------------------------------

// BatteryInfo is the decoded 1060 payload: a domain/zone idx, the
// remaining charge as a percentage, and a low-battery latch (teacher
// never decoded this opcode; HasBattery needs it, spec §9 capability
// traits).
type BatteryInfo struct {
	ZoneIdx ZoneIdx
	Level   Percentage
	Low     bool
}

func decodeBatteryInfo(payload string) (Message, error) {
	if len(payload) < 6 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeBatteryInfo", "payload too short")
	}
	idx, err := parseZoneIdx(payload, 0)
	if err != nil {
		return Message{}, err
	}
	level, err := parsePercentage(payload, 2)
	if err != nil {
		return Message{}, err
	}
	flag, err := hexByte(payload, 4)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindScalar, Scalar: BatteryInfo{ZoneIdx: idx, Level: level, Low: flag == 0x00}}, nil
}

// --- 0418 fault log -------------------------------------------------------

// Severity is the fault-log entry's severity class (spec §4.3 "fault
// entry: ... severity class").
type Severity byte

const (
	SeverityInformational Severity = 0xF9
	SeverityWarning       Severity = 0xFA
	SeverityFault         Severity = 0xFC
	SeverityCritical      Severity = 0xFF
)

// FaultLogEntry is one decoded 0418 record.
type FaultLogEntry struct {
	LogIdx      byte
	Severity    Severity
	FaultKind   byte
	DeviceClass byte
	DeviceID    string
	DateTime    time.Time
}

func decodeFaultLogEntry(payload string) (Message, error) {
	if len(payload) < 28 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeFaultLogEntry", "payload too short")
	}
	logIdx, err := hexByte(payload, 0)
	if err != nil {
		return Message{}, err
	}
	sev, err := hexByte(payload, 2)
	if err != nil {
		return Message{}, err
	}
	kind, err := hexByte(payload, 4)
	if err != nil {
		return Message{}, err
	}
	devClass, err := hexByte(payload, 6)
	if err != nil {
		return Message{}, err
	}
	devBytes := payload[8:14]
	dtm, err := parseDateTime(payload, 14)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindScalar, Scalar: FaultLogEntry{
		LogIdx:      logIdx,
		Severity:    Severity(sev),
		FaultKind:   kind,
		DeviceClass: devClass,
		DeviceID:    devBytes,
		DateTime:    dtm,
	}}, nil
}

// --- 3220 opentherm --------------------------------------------------------

// OTMsgType is the OpenTherm message-type nibble (spec §4.3
// "opentherm: msg-type nibble + 8-bit data-id + 16-bit value").
type OTMsgType byte

const (
	OTReadData      OTMsgType = 0x0
	OTWriteData     OTMsgType = 0x1
	OTInvalidData   OTMsgType = 0x2
	OTReadAck       OTMsgType = 0x4
	OTWriteAck      OTMsgType = 0x5
	OTDataInvalid   OTMsgType = 0x6
	OTUnknownDataID OTMsgType = 0x7
)

// OpenThermMsg is a decoded 3220 payload.
type OpenThermMsg struct {
	MsgType OTMsgType
	DataID  byte
	Value   uint16
}

// Deprecated reports whether this reply indicates the boiler doesn't
// support this data-id (spec §4.7 "a Data-Invalid / Unknown-DataId
// reply... flips supported[msg_id] to false"), including the two
// literal payload-suffix sentinels from original_source/ramses_rf
// devices.py's OtbGateway.
func (m OpenThermMsg) Deprecated(rawPayload string) bool {
	if m.MsgType == OTDataInvalid || m.MsgType == OTUnknownDataID {
		return true
	}
	return hasSuffix(rawPayload, "121980") || hasSuffix(rawPayload, "47AB")
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func decodeOpenTherm(payload string) (Message, error) {
	if len(payload) < 10 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeOpenTherm", "payload too short")
	}
	b1, err := hexByte(payload, 2)
	if err != nil {
		return Message{}, err
	}
	dataID, err := hexByte(payload, 4)
	if err != nil {
		return Message{}, err
	}
	value, err := hexUint16(payload, 6)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindScalar, Scalar: OpenThermMsg{
		MsgType: OTMsgType(b1 >> 4),
		DataID:  dataID,
		Value:   value,
	}}, nil
}

// --- 0404 schedule fragment --------------------------------------------

// ScheduleFragment is one chunk of a chunked schedule fetch (spec
// §4.3 "schedule fragment: chunk_idx, chunk_cnt, frag body").
type ScheduleFragment struct {
	ZoneIdx   ZoneIdx
	ChunkIdx  byte
	ChunkCnt  byte
	Fragment  string // remaining hex body, caller reassembles
}

func decodeScheduleFragment(payload string) (Message, error) {
	if len(payload) < 10 {
		return Message{}, errs.New(errs.InvalidPacket, "message.decodeScheduleFragment", "payload too short")
	}
	idx, err := parseZoneIdx(payload, 0)
	if err != nil {
		return Message{}, err
	}
	chunkIdx, err := hexByte(payload, 4)
	if err != nil {
		return Message{}, err
	}
	chunkCnt, err := hexByte(payload, 6)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindScalar, Scalar: ScheduleFragment{
		ZoneIdx:  idx,
		ChunkIdx: chunkIdx,
		ChunkCnt: chunkCnt,
		Fragment: payload[8:],
	}}, nil
}

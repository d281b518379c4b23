// Payload field helpers shared by the opcode decoders (spec §4.3).
// Grounded on the teacher's inline parsing in messageProcessor.go
// (ParseInt on hex slices, /100 and /200*100 scaling), generalised to
// the exact null-sentinel rules spec.md §4.3 specifies, which the
// teacher's BigQuery-measurement pipeline did not need to honour.
package message

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/JorritSalverda/ramses-gateway/errs"
)

// hexByte reads one hex-encoded byte at the given character offset.
func hexByte(payload string, charOffset int) (byte, error) {
	if charOffset+2 > len(payload) {
		return 0, errs.New(errs.InvalidPacket, "message.hexByte", "payload too short")
	}
	b, err := hex.DecodeString(payload[charOffset : charOffset+2])
	if err != nil {
		return 0, errs.Wrap(errs.InvalidPacket, "message.hexByte", err)
	}
	return b[0], nil
}

func hexUint16(payload string, charOffset int) (uint16, error) {
	if charOffset+4 > len(payload) {
		return 0, errs.New(errs.InvalidPacket, "message.hexUint16", "payload too short")
	}
	n, err := strconv.ParseUint(payload[charOffset:charOffset+4], 16, 16)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidPacket, "message.hexUint16", err)
	}
	return uint16(n), nil
}

// ZoneIdx is a one-byte zone/ufh/domain index (spec §4.3 "one-byte
// zone-idx / domain-id / ufh-idx"), valid 00..0B per zone (§3
// invariant 3) or one of the domain ids F9/FA/FC.
type ZoneIdx struct {
	Raw byte
}

func (z ZoneIdx) String() string { return fmt.Sprintf("%02X", z.Raw) }

// IsZone reports whether Raw is a valid heating-zone index (00..0B).
func (z ZoneIdx) IsZone() bool { return z.Raw <= 0x0B }

// IsDomain reports whether Raw is one of the domain ids F9/FA/FC.
func (z ZoneIdx) IsDomain() bool {
	return z.Raw == 0xF9 || z.Raw == 0xFA || z.Raw == 0xFC
}

func parseZoneIdx(payload string, charOffset int) (ZoneIdx, error) {
	b, err := hexByte(payload, charOffset)
	if err != nil {
		return ZoneIdx{}, err
	}
	return ZoneIdx{Raw: b}, nil
}

// Temperature is a signed centi-°C reading (spec §4.3 "temperature:
// signed 16-bit centi-°C with 0x7FFF = null").
type Temperature struct {
	Valid bool
	Value float64 // degrees Celsius
}

func parseTemperature(payload string, charOffset int) (Temperature, error) {
	n, err := hexUint16(payload, charOffset)
	if err != nil {
		return Temperature{}, err
	}
	if n == 0x7FFF {
		return Temperature{Valid: false}, nil
	}
	return Temperature{Valid: true, Value: float64(int16(n)) / 100.0}, nil
}

// Percentage is a demand/position reading (spec §4.3 "percentage: byte
// / 0xC8 (200 = 100%); 0xEF/0xFF = null").
type Percentage struct {
	Valid bool
	Value float64 // 0..100, or beyond if the device reports out-of-range
}

func parsePercentage(payload string, charOffset int) (Percentage, error) {
	b, err := hexByte(payload, charOffset)
	if err != nil {
		return Percentage{}, err
	}
	if b == 0xEF || b == 0xFF {
		return Percentage{Valid: false}, nil
	}
	return Percentage{Valid: true, Value: float64(b) / 0xC8 * 100}, nil
}

// TimeOfDay is minutes since midnight (spec §4.3 "time-of-day: minutes
// since midnight as 16-bit LE").
type TimeOfDay struct {
	Minutes uint16
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Minutes/60, t.Minutes%60)
}

func parseTimeOfDayLE(payload string, charOffset int) (TimeOfDay, error) {
	if charOffset+4 > len(payload) {
		return TimeOfDay{}, errs.New(errs.InvalidPacket, "message.parseTimeOfDayLE", "payload too short")
	}
	lo, err := hexByte(payload, charOffset)
	if err != nil {
		return TimeOfDay{}, err
	}
	hi, err := hexByte(payload, charOffset+2)
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Minutes: uint16(hi)<<8 | uint16(lo)}, nil
}

// DateTime decodes the 7-byte datetime record (spec §4.3 "datetime":
// "7-byte seqn-HH-DD-MM-YYYY-mm-ss"), wire-ordered seconds, minutes,
// hours, day, month, then a big-endian 16-bit year, as ramses_rf's dtm packing does
// (original_source/ramses_rf devices never re-derive this themselves;
// it's the well-known RAMSES-II 7-byte date/time layout the rest of
// the field decoders also assume).
func parseDateTime(payload string, charOffset int) (time.Time, error) {
	if charOffset+14 > len(payload) {
		return time.Time{}, errs.New(errs.InvalidPacket, "message.parseDateTime", "payload too short")
	}
	sec, err := hexByte(payload, charOffset)
	if err != nil {
		return time.Time{}, err
	}
	minute, err := hexByte(payload, charOffset+2)
	if err != nil {
		return time.Time{}, err
	}
	hour, err := hexByte(payload, charOffset+4)
	if err != nil {
		return time.Time{}, err
	}
	day, err := hexByte(payload, charOffset+6)
	if err != nil {
		return time.Time{}, err
	}
	month, err := hexByte(payload, charOffset+8)
	if err != nil {
		return time.Time{}, err
	}
	year, err := hexUint16(payload, charOffset+10)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(sec), 0, time.UTC), nil
}

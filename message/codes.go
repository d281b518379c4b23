package message

// Code is a 4-hex-digit RAMSES-II opcode (spec §3 "code").
type Code string

// Opcodes named throughout spec §4.3/§4.7/§4.8 and the teacher's
// commandsMap (messageProcessor.go), merged into one table. Names
// follow the teacher's naming where it already named an opcode, and
// the Python original's (devices.py/discovery.py) naming elsewhere.
const (
	CodeExternalSensor    Code = "0002"
	CodeZoneName          Code = "0004"
	CodeScheduleSync      Code = "0006"
	CodeRelayHeatDemand   Code = "0008"
	CodeZoneInfo          Code = "000A"
	CodeZoneScheduleEntry Code = "000C"
	CodeOtherCommand      Code = "0100"
	CodeSchedule          Code = "0404" // chunked schedule read/write (§4.8/§4.9)
	CodeFaultLog          Code = "0418" // index-based fault log (§4.8/§4.9)
	CodeBatteryInfo       Code = "1060"
	CodeDhwSettings       Code = "10A0"
	CodeHeartbeat         Code = "10E0"
	CodeDhwTemperature    Code = "1260"
	CodeWindowStatus      Code = "12B0"
	CodeSync              Code = "1F09"
	CodeDhwState          Code = "1F41"
	CodeBind              Code = "1FC9" // binding handshake (§4.6)
	CodeSetpointUfh       Code = "22C9"
	CodeSetpoint          Code = "2309"
	CodeSetpointOverride  Code = "2349"
	CodeControllerMode    Code = "2E04"
	CodeZoneTemperature   Code = "30C9"
	CodeDateRequest       Code = "313F"
	CodeZoneHeatDemand    Code = "3150"
	CodeActuatorCheckReq  Code = "3B00"
	CodeActuatorState     Code = "3EF0"
	CodeActuatorState1    Code = "3EF1"
	CodeOpenTherm         Code = "3220" // OTB bridge (§4.7 "OTB")
)

// names mirrors the teacher's commandsMap, generalised to Code keys,
// plus the opcodes the distillation added (0404, 0418, 1FC9, 3220,
// 000C, 3EF1) that the teacher's BigQuery-measurement pipeline never
// needed to name.
var names = map[Code]string{
	CodeExternalSensor:    "external_sensor",
	CodeZoneName:          "zone_name",
	CodeScheduleSync:      "schedule_sync",
	CodeRelayHeatDemand:   "relay_heat_demand",
	CodeZoneInfo:          "zone_info",
	CodeZoneScheduleEntry: "zone_schedule_entry",
	CodeOtherCommand:      "other_command",
	CodeSchedule:          "schedule",
	CodeFaultLog:          "fault_log",
	CodeBatteryInfo:       "battery_info",
	CodeDhwSettings:       "dhw_settings",
	CodeHeartbeat:         "heartbeat",
	CodeDhwTemperature:    "dhw_temperature",
	CodeWindowStatus:      "window_status",
	CodeSync:              "sync",
	CodeDhwState:          "dhw_state",
	CodeBind:              "bind",
	CodeSetpointUfh:       "setpoint_ufh",
	CodeSetpoint:          "setpoint",
	CodeSetpointOverride:  "setpoint_override",
	CodeControllerMode:    "controller_mode",
	CodeZoneTemperature:   "zone_temperature",
	CodeDateRequest:       "date_request",
	CodeZoneHeatDemand:    "zone_heat_demand",
	CodeActuatorCheckReq:  "actuator_check_req",
	CodeActuatorState:     "actuator_state",
	CodeActuatorState1:    "actuator_state_1",
	CodeOpenTherm:         "opentherm",
}

// reverseNames inverts names, grounded on the teacher's helper.go
// reverseMap, which did the same inversion for its commandsMap so
// SendCommand could go from a human command name back to a wire
// opcode. Here it backs CodeByName.
func reverseNames(m map[Code]string) map[string]Code {
	out := make(map[string]Code, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

var namesByName = reverseNames(names)

// Name returns the human-readable name for a code, or "unknown".
func (c Code) Name() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "unknown"
}

// CodeByName looks up the opcode for a human command name, mirroring
// the teacher's reverseCommandsMap.
func CodeByName(name string) (Code, bool) {
	c, ok := namesByName[name]
	return c, ok
}

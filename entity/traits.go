// Capability traits (spec §9 "Dynamic typing / duck-typed mixins"):
// the original mixes BatteryState/Temperature/Setpoint/HeatDemand/
// RelayDemand into device classes via multiple inheritance
// (original_source/ramses_rf/devices.py). Reimplemented as narrow Go
// interfaces with one shared, message-cache-backed implementation on
// *Device rather than per-class embedding — "the status view is the
// union of trait views."
package entity

import "github.com/JorritSalverda/ramses-gateway/message"

type HasBattery interface {
	BatteryLevel() (percent float64, ok bool)
}

type HasTemperature interface {
	Temperature() (celsius float64, ok bool)
}

type HasSetpoint interface {
	Setpoint() (celsius float64, ok bool)
}

type HasHeatDemand interface {
	HeatDemand() (percent float64, ok bool)
}

type HasRelayDemand interface {
	RelayDemand() (percent float64, ok bool)
}

var (
	_ HasBattery     = (*Device)(nil)
	_ HasTemperature = (*Device)(nil)
	_ HasSetpoint    = (*Device)(nil)
	_ HasHeatDemand  = (*Device)(nil)
	_ HasRelayDemand = (*Device)(nil)
)

// BatteryLevel reads the device's last-seen 1060 battery-info message.
func (d *Device) BatteryLevel() (float64, bool) {
	msg, ok := d.Last(message.CodeBatteryInfo)
	if !ok {
		return 0, false
	}
	bi, ok := msg.Scalar.(message.BatteryInfo)
	if !ok {
		return 0, false
	}
	return bi.Level.Value, bi.Level.Valid
}

// Temperature reads the device's own last-seen temperature report —
// a 30C9 single-zone record about itself or a 1260 DHW reading,
// whichever this device class reports.
func (d *Device) Temperature() (float64, bool) {
	if msg, ok := d.Last(message.CodeZoneTemperature); ok {
		for _, rec := range msg.List {
			if zr, ok2 := rec.(message.ZoneReading); ok2 {
				return zr.Value.Value, zr.Value.Valid
			}
		}
	}
	if msg, ok := d.Last(message.CodeDhwTemperature); ok {
		for _, v := range msg.Indexed {
			if t, ok2 := v.(message.Temperature); ok2 {
				return t.Value, t.Valid
			}
		}
	}
	return 0, false
}

// Setpoint reads the device's last-seen 2309 setpoint record.
func (d *Device) Setpoint() (float64, bool) {
	msg, ok := d.Last(message.CodeSetpoint)
	if !ok {
		return 0, false
	}
	for _, rec := range msg.List {
		if zr, ok2 := rec.(message.ZoneReading); ok2 {
			return zr.Value.Value, zr.Value.Valid
		}
	}
	return 0, false
}

// HeatDemand reads the device's last-seen 3150 zone heat-demand
// record (a TRV or zone actuator reporting its own demand).
func (d *Device) HeatDemand() (float64, bool) {
	msg, ok := d.Last(message.CodeZoneHeatDemand)
	if !ok {
		return 0, false
	}
	hd, ok := msg.Scalar.(message.HeatDemand)
	if !ok {
		return 0, false
	}
	return hd.Demand.Value, hd.Demand.Valid
}

// RelayDemand reads the device's last-seen 0008 domain relay-demand
// record (a BDR13 reporting its own relay's duty).
func (d *Device) RelayDemand() (float64, bool) {
	msg, ok := d.Last(message.CodeRelayHeatDemand)
	if !ok {
		return 0, false
	}
	hd, ok := msg.Scalar.(message.HeatDemand)
	if !ok {
		return 0, false
	}
	return hd.Demand.Value, hd.Demand.Valid
}

package entity

import (
	"fmt"
	"sync"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/message"
)

// DeviceClass is a device's ramses-type capability set (spec §3
// invariant 6). Devices start out classified from their address's
// type prefix and may be promoted once to a more specific,
// signature-confirmed class.
type DeviceClass int

const (
	ClassUnknown DeviceClass = iota
	ClassController
	ClassUfhController
	ClassDhwSensor
	ClassOtbGateway
	ClassBdrSwitch
	ClassTrvActuator
	ClassThermostat
	ClassHvacVentilator
	ClassSensor
	ClassGateway
	ClassRfg
)

func (c DeviceClass) String() string {
	switch c {
	case ClassController:
		return "controller"
	case ClassUfhController:
		return "ufh_controller"
	case ClassDhwSensor:
		return "dhw_sensor"
	case ClassOtbGateway:
		return "otb_gateway"
	case ClassBdrSwitch:
		return "bdr_switch"
	case ClassTrvActuator:
		return "trv_actuator"
	case ClassThermostat:
		return "thermostat"
	case ClassHvacVentilator:
		return "hvac_ventilator"
	case ClassSensor:
		return "sensor"
	case ClassGateway:
		return "gateway"
	case ClassRfg:
		return "rfg"
	default:
		return "unknown"
	}
}

// guessClass is the best-guess class implied by a device's type
// prefix alone (original_source/ramses_rf/devices.py create_device's
// prefix-keyed class table, generalised). It is never "confirmed" —
// Promote still runs the write-once check against it the first time a
// signature is actually observed.
func guessClass(a address.Address) DeviceClass {
	switch a.Class() {
	case "01", "23":
		return ClassController
	case "02":
		return ClassUfhController
	case "07":
		return ClassDhwSensor
	case "10":
		return ClassOtbGateway
	case "13":
		return ClassBdrSwitch
	case "00", "04":
		return ClassTrvActuator
	case "12", "22", "34":
		return ClassThermostat
	case "20", "32":
		return ClassHvacVentilator
	case "18":
		return ClassGateway
	case "30":
		return ClassRfg
	default:
		return ClassUnknown
	}
}

// Device is one arena-owned leaf of the entity graph (spec §3 "Entity
// graph"/"Ownership"): the Gateway holds the only strong reference,
// everything else (TCS, Zone, other devices) refers to it by Address
// (Design Note §9 "stable ids... no strong back-pointers").
type Device struct {
	ID address.Address

	mu        sync.Mutex
	class     DeviceClass
	confirmed bool

	hasParentController bool
	parentController    address.Address
	hasParentZone       bool
	parentZoneKey       string

	cache map[message.Code]message.Message

	hasFakeAs bool
	fakeAs    address.Address

	otb *otbState
}

func newDevice(id address.Address) *Device {
	return &Device{ID: id, class: guessClass(id), cache: make(map[message.Code]message.Message)}
}

// Class reports the device's current (guessed or confirmed) class.
func (d *Device) Class() DeviceClass {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.class
}

// Promote sets a signature-confirmed class (spec §3 invariant 6,
// "promoting a device to a more specific class is allowed once and
// only based on observed verb/code signatures"). Re-confirming the
// same class is a no-op; confirming a conflicting class is a
// corrupt-state error.
func (d *Device) Promote(class DeviceClass) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.confirmed {
		if d.class == class {
			return nil
		}
		return errs.New(errs.CorruptState, "entity.Device.Promote",
			fmt.Sprintf("%s already confirmed as %s, cannot promote to %s", d.ID, d.class, class))
	}
	d.class = class
	d.confirmed = true
	return nil
}

// SetParentController assigns the device's parent controller, once
// (spec §3 "Parent assignment is write-once — re-parenting raises a
// corrupt-state error"; property 8).
func (d *Device) SetParentController(ctl address.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasParentController {
		if d.parentController.Equal(ctl) {
			return nil
		}
		return errs.New(errs.CorruptState, "entity.Device.SetParentController",
			fmt.Sprintf("%s already parented to controller %s, cannot re-parent to %s", d.ID, d.parentController, ctl))
	}
	d.parentController = ctl
	d.hasParentController = true
	return nil
}

// ParentController returns the device's assigned parent controller,
// if any.
func (d *Device) ParentController() (address.Address, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parentController, d.hasParentController
}

// SetParentZone assigns the device's parent zone key ("00".."0B" or a
// domain id), once (spec §4.7 "Zone binding"; property 8).
func (d *Device) SetParentZone(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasParentZone {
		if d.parentZoneKey == key {
			return nil
		}
		return errs.New(errs.CorruptState, "entity.Device.SetParentZone",
			fmt.Sprintf("%s already parented to zone %s, cannot re-parent to %s", d.ID, d.parentZoneKey, key))
	}
	d.parentZoneKey = key
	d.hasParentZone = true
	return nil
}

// ParentZone returns the device's assigned parent zone key, if any.
func (d *Device) ParentZone() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parentZoneKey, d.hasParentZone
}

// Observe appends msg to the device's per-opcode, last-seen-only cache
// (spec §4.7 item 1).
func (d *Device) Observe(msg message.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[msg.Code] = msg
}

// Last returns the most recently observed message for code, if any.
func (d *Device) Last(code message.Code) (message.Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, ok := d.cache[code]
	return msg, ok
}

// SetFakeAs marks this device as one the gateway re-addresses outbound
// traffic as (Open Question 2, "fake_addrs... address substitution").
func (d *Device) SetFakeAs(addr address.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fakeAs = addr
	d.hasFakeAs = true
}

// FakeAs implements Fakeable.
func (d *Device) FakeAs() (address.Address, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fakeAs, d.hasFakeAs
}

// Fakeable is implemented by any device the gateway can re-address
// outbound sends as.
type Fakeable interface {
	FakeAs() (address.Address, bool)
}

// zoneIdxFromScalar extracts a carried zone_idx from the scalar
// records the zone-binding rule (spec §4.7) applies to: a device
// reporting about itself, not a controller's aggregated array.
func zoneIdxFromScalar(v interface{}) (message.ZoneIdx, bool) {
	switch t := v.(type) {
	case message.HeatDemand:
		return t.ZoneIdx, true
	case message.ScheduleFragment:
		return t.ZoneIdx, true
	case message.BatteryInfo:
		return t.ZoneIdx, true
	default:
		return message.ZoneIdx{}, false
	}
}

package entity

import (
	"sync"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/message"
)

// TCS is a TemperatureControlSystem: a controller's owned subgraph
// (spec §3 "TCS owns an optional DhwZone, up to 12 heating Zones, a
// FaultLog, and references to per-domain actuators").
type TCS struct {
	ControllerID address.Address

	mu              sync.Mutex
	zones           map[string]*Zone
	dhw             *DhwZone
	faultLog        *FaultLog
	domainActuators map[string][]address.Address // "FC"/"FA"/"F9" -> device ids
}

func newTCS(ctl address.Address) *TCS {
	return &TCS{
		ControllerID:    ctl,
		zones:           make(map[string]*Zone),
		domainActuators: make(map[string][]address.Address),
	}
}

// Zone returns the zone at idx ("00".."0B"), if it has been seen.
func (t *TCS) Zone(idx string) (*Zone, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	z, ok := t.zones[idx]
	return z, ok
}

// Zones returns every zone seen so far, in no particular order.
func (t *TCS) Zones() []*Zone {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Zone, 0, len(t.zones))
	for _, z := range t.zones {
		out = append(out, z)
	}
	return out
}

func (t *TCS) ensureZone(idx string) *Zone {
	t.mu.Lock()
	defer t.mu.Unlock()
	z, ok := t.zones[idx]
	if !ok {
		z = &Zone{Idx: idx}
		t.zones[idx] = z
	}
	return z
}

// Dhw returns the TCS's DHW zone, if one has been observed.
func (t *TCS) Dhw() (*DhwZone, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dhw, t.dhw != nil
}

func (t *TCS) ensureDhw() *DhwZone {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dhw == nil {
		t.dhw = &DhwZone{}
	}
	return t.dhw
}

// FaultLog returns the TCS's fault log, if any entry has been seen.
func (t *TCS) FaultLog() (*FaultLog, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.faultLog, t.faultLog != nil
}

func (t *TCS) ensureFaultLog() *FaultLog {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.faultLog == nil {
		t.faultLog = newFaultLog()
	}
	return t.faultLog
}

// AddDomainActuator records a device as an actuator for a per-domain
// relay ("FC" heating, "FA" DHW valve, "F9" DHW heating).
func (t *TCS) AddDomainActuator(domain string, id address.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.domainActuators[domain] {
		if existing.Equal(id) {
			return
		}
	}
	t.domainActuators[domain] = append(t.domainActuators[domain], id)
}

// DomainActuators returns the devices registered against a domain id.
func (t *TCS) DomainActuators(domain string) []address.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]address.Address, len(t.domainActuators[domain]))
	copy(out, t.domainActuators[domain])
	return out
}

// Zone is one heating zone owned by a TCS (spec §3 "Zone owns a
// Schedule and references its sensor... and its actuators").
type Zone struct {
	Idx string

	mu             sync.Mutex
	name           string
	temperature    message.Temperature
	setpoint       message.Temperature
	minTemperature message.Temperature
	maxTemperature message.Temperature
	hasSensor      bool
	sensorID       address.Address
	actuatorIDs    []address.Address
	schedule       string
}

func (z *Zone) Name() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.name
}

func (z *Zone) SetName(name string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.name = name
}

// Temperature implements HasTemperature for the zone as a whole (spec
// scenario S2: "zone.temperature == 20.00"), distinct from any single
// device's own reading.
func (z *Zone) Temperature() (float64, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.temperature.Value, z.temperature.Valid
}

func (z *Zone) SetTemperature(t message.Temperature) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.temperature = t
}

func (z *Zone) Setpoint() (float64, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.setpoint.Value, z.setpoint.Valid
}

func (z *Zone) SetSetpoint(t message.Temperature) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.setpoint = t
}

// SetInfo records a zone's min/max setpoint bounds (0x000A).
func (z *Zone) SetInfo(min, max message.Temperature) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.minTemperature = min
	z.maxTemperature = max
}

func (z *Zone) Info() (min, max message.Temperature) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.minTemperature, z.maxTemperature
}

func (z *Zone) Sensor() (address.Address, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.sensorID, z.hasSensor
}

func (z *Zone) SetSensor(id address.Address) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.sensorID = id
	z.hasSensor = true
}

func (z *Zone) AddActuator(id address.Address) {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, existing := range z.actuatorIDs {
		if existing.Equal(id) {
			return
		}
	}
	z.actuatorIDs = append(z.actuatorIDs, id)
}

func (z *Zone) ActuatorIDs() []address.Address {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]address.Address, len(z.actuatorIDs))
	copy(out, z.actuatorIDs)
	return out
}

// Schedule is the raw reassembled schedule text, set once the fetch
// package's chunked fetcher completes (spec §4.8/§4.9).
func (z *Zone) Schedule() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.schedule
}

func (z *Zone) SetSchedule(raw string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.schedule = raw
}

// DhwZone is the TCS's optional domestic-hot-water subsystem.
type DhwZone struct {
	mu          sync.Mutex
	temperature message.Temperature
	hasSensor   bool
	sensorID    address.Address
	actuatorIDs []address.Address
}

func (d *DhwZone) Temperature() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.temperature.Value, d.temperature.Valid
}

func (d *DhwZone) SetTemperature(t message.Temperature) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.temperature = t
}

func (d *DhwZone) Sensor() (address.Address, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sensorID, d.hasSensor
}

func (d *DhwZone) SetSensor(id address.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sensorID = id
	d.hasSensor = true
}

func (d *DhwZone) AddActuator(id address.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.actuatorIDs {
		if existing.Equal(id) {
			return
		}
	}
	d.actuatorIDs = append(d.actuatorIDs, id)
}

// FaultLog is the TCS's 0418 index-based fault history (spec §4.8
// "at most 64 entries").
type FaultLog struct {
	mu      sync.Mutex
	entries map[byte]message.FaultLogEntry
}

func newFaultLog() *FaultLog {
	return &FaultLog{entries: make(map[byte]message.FaultLogEntry)}
}

func (f *FaultLog) Set(e message.FaultLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.LogIdx] = e
}

func (f *FaultLog) Get(idx byte) (message.FaultLogEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[idx]
	return e, ok
}

func (f *FaultLog) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

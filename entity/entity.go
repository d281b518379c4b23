// Package entity is the RAMSES-II entity fabric (spec §4.7): the
// Gateway/Controller/TCS/Zone/DHW/Device graph each inbound message is
// routed into. Grounded on Design Note §9's "arena owned by the
// Gateway, stable ids everywhere else" and the teacher's
// zoneInfoMap map[int64]ZoneInfo (messageProcessor.go), generalised
// from a single flat zone cache into the full owned graph spec.md §3
// describes.
package entity

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/command"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/message"
)

// controllerOnlySignatures lists the opcodes spec §4.7 "Controller
// eavesdrop" treats as controller-only: emitted as an announcement
// (src==dst==self) only by a TCS controller. 1F09 (sync) is the
// literal scenario S1 opcode; 2E04 is also in the command factory's
// controller-only table (factory.go codeOnlyFromCtl), 313F is not.
var controllerOnlySignatures = map[message.Code]bool{
	message.CodeSync:           true,
	message.CodeControllerMode: true,
	message.CodeDateRequest:    true,
}

// Gateway is the arena: it exclusively owns every Device and TCS in
// the graph (spec §3 "Ownership": "the Gateway exclusively owns every
// entity; all other references... are back-references, weak in the
// design sense").
type Gateway struct {
	log zerolog.Logger

	mu         sync.Mutex
	devices    map[string]*Device
	systemByID map[string]*TCS

	allowListEnforced       bool
	allowList               map[string]bool
	allowMultipleController bool
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithAllowList enforces invariant 2: only these addresses are
// admitted; everything else is dropped before routing.
func WithAllowList(addrs []address.Address) Option {
	return func(g *Gateway) {
		g.allowListEnforced = true
		for _, a := range addrs {
			g.allowList[a.String()] = true
		}
	}
}

// WithMultipleControllersAllowed opts out of invariant 1's default
// single-controller restriction. See DESIGN.md Open Question decision
// 4: kept as its own option rather than inferred from allow-list
// contents, since "explicitly allowed" reads most directly as "the
// caller must say so."
func WithMultipleControllersAllowed() Option {
	return func(g *Gateway) { g.allowMultipleController = true }
}

// New builds an empty Gateway arena.
func New(log zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		log:        log,
		devices:    make(map[string]*Device),
		systemByID: make(map[string]*TCS),
		allowList:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) allowed(src address.Address) bool {
	if !g.allowListEnforced {
		return true
	}
	return g.allowList[src.String()]
}

// Device looks up a device by id.
func (g *Gateway) Device(id address.Address) (*Device, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.devices[id.String()]
	return d, ok
}

// Devices returns every device the gateway has created so far, in no
// particular order.
func (g *Gateway) Devices() []*Device {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Device, 0, len(g.devices))
	for _, d := range g.devices {
		out = append(out, d)
	}
	return out
}

func (g *Gateway) deviceOrCreate(id address.Address) *Device {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.devices[id.String()]
	if !ok {
		d = newDevice(id)
		g.devices[id.String()] = d
	}
	return d
}

// System looks up a TCS by its controller's id
// ("gwy.system_by_id[...]" in spec scenario S1).
func (g *Gateway) System(ctl address.Address) (*TCS, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sys, ok := g.systemByID[ctl.String()]
	return sys, ok
}

// Systems returns every TCS the gateway has created so far.
func (g *Gateway) Systems() []*TCS {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*TCS, 0, len(g.systemByID))
	for _, sys := range g.systemByID {
		out = append(out, sys)
	}
	return out
}

func (g *Gateway) ensureSystem(ctl address.Address) (*TCS, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sys, ok := g.systemByID[ctl.String()]; ok {
		return sys, nil
	}
	if len(g.systemByID) >= 1 && !g.allowMultipleController {
		return nil, errs.New(errs.MultipleController, "entity.Gateway.ensureSystem",
			fmt.Sprintf("second controller %s observed, multiple controllers not allowed", ctl))
	}
	sys := newTCS(ctl)
	g.systemByID[ctl.String()] = sys
	return sys, nil
}

// Route is the entry point for every decoded message (spec §4.7):
// admit-or-drop by allow-list (invariant 2), append to the source
// device's cache, run controller-eavesdrop promotion, distribute a
// controller's array/scalar readings into its TCS, and run zone
// binding for a device reporting about itself.
func (g *Gateway) Route(msg message.Message) error {
	src := msg.Packet.Src
	if !g.allowed(src) {
		g.log.Debug().Str("src", src.String()).Msg("address not on allow-list, dropping before routing")
		return nil
	}

	d := g.deviceOrCreate(src)
	d.Observe(msg)

	if msg.Packet.IsAnnouncement() && controllerOnlySignatures[msg.Code] {
		if err := d.Promote(ClassController); err != nil {
			return err
		}
		if _, err := g.ensureSystem(d.ID); err != nil {
			return err
		}
	}

	if d.Class() == ClassController {
		if sys, ok := g.System(d.ID); ok {
			g.distribute(sys, msg)
		}
	} else if msg.Kind == message.KindScalar {
		if idx, ok := zoneIdxFromScalar(msg.Scalar); ok && idx.IsZone() {
			if err := d.SetParentZone(idx.String()); err != nil {
				return err
			}
		}
	}

	if msg.Code == message.CodeOpenTherm {
		if otm, ok := msg.Scalar.(message.OpenThermMsg); ok {
			d.ObserveOpenTherm(msg.Packet.Payload, otm)
		}
	}

	return nil
}

// distribute fans a controller-originated message out to the zones,
// DHW zone and fault log it owns (spec §4.7 item 3: "forwards to its
// parent controller and, if it has a parent zone or domain, to that
// entity").
func (g *Gateway) distribute(sys *TCS, msg message.Message) {
	switch msg.Code {
	case message.CodeZoneTemperature:
		for _, rec := range msg.List {
			if zr, ok := rec.(message.ZoneReading); ok {
				sys.ensureZone(zr.ZoneIdx.String()).SetTemperature(zr.Value)
			}
		}
	case message.CodeSetpoint:
		for _, rec := range msg.List {
			if zr, ok := rec.(message.ZoneReading); ok {
				sys.ensureZone(zr.ZoneIdx.String()).SetSetpoint(zr.Value)
			}
		}
	case message.CodeZoneName:
		if zn, ok := msg.Scalar.(message.ZoneName); ok {
			sys.ensureZone(zn.ZoneIdx.String()).SetName(zn.Name)
		}
	case message.CodeZoneInfo:
		for _, rec := range msg.List {
			if ze, ok := rec.(message.ZoneInfoEntry); ok {
				sys.ensureZone(ze.ZoneIdx.String()).SetInfo(ze.MinTemperature, ze.MaxTemperature)
			}
		}
	case message.CodeFaultLog:
		if fe, ok := msg.Scalar.(message.FaultLogEntry); ok {
			sys.ensureFaultLog().Set(fe)
		}
	case message.CodeDhwTemperature:
		for _, v := range msg.Indexed {
			if t, ok := v.(message.Temperature); ok {
				sys.ensureDhw().SetTemperature(t)
			}
		}
	}
}

// ResolveFakeAddr implements transmit.FakeAddrResolver: it looks up
// cmd.Src's device and returns the address it should be re-addressed
// as, or the zero Address if none is set (Open Question 2).
func (g *Gateway) ResolveFakeAddr(cmd command.Command) address.Address {
	d, ok := g.Device(cmd.Src)
	if !ok {
		return address.Address{}
	}
	addr, ok := d.FakeAs()
	if !ok {
		return address.Address{}
	}
	return addr
}

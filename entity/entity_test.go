package entity_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/entity"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/message"
	"github.com/JorritSalverda/ramses-gateway/packet"
)

func mustAddr(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.Parse(s)
	if err != nil {
		t.Fatalf("address.Parse(%q): %v", s, err)
	}
	return a
}

func decodeLine(t *testing.T, line string) message.Message {
	t.Helper()
	p, err := packet.Decode(line)
	if err != nil {
		t.Fatalf("packet.Decode(%q): %v", line, err)
	}
	return message.Parse(p, zerolog.Nop())
}

// TestRoute_S1_ControllerEavesdropPromotion is spec scenario S1.
func TestRoute_S1_ControllerEavesdropPromotion(t *testing.T) {
	gwy := entity.New(zerolog.Nop())
	ctl := mustAddr(t, "01:145039")

	msg := decodeLine(t, "045  I --- 01:145039 --:------ 01:145039 1F09 003 FF04B5")
	if err := gwy.Route(msg); err != nil {
		t.Fatalf("Route: %v", err)
	}

	d, ok := gwy.Device(ctl)
	if !ok {
		t.Fatal("expected device 01:145039 to exist")
	}
	if d.Class() != entity.ClassController {
		t.Fatalf("expected device promoted to ClassController, got %v", d.Class())
	}

	sys, ok := gwy.System(ctl)
	if !ok {
		t.Fatal("expected gwy.System(01:145039) to exist")
	}
	if len(sys.Zones()) != 0 {
		t.Fatalf("expected zero zones on a freshly created TCS, got %d", len(sys.Zones()))
	}
}

// TestRoute_S2_ZoneTemperatureDistributedToTCS mirrors spec scenario
// S2 at the entity layer: once a controller is known, its 30C9 array
// populates the TCS's Zone objects directly.
func TestRoute_S2_ZoneTemperatureDistributedToTCS(t *testing.T) {
	gwy := entity.New(zerolog.Nop())
	ctl := mustAddr(t, "01:145039")

	promote := decodeLine(t, "045  I --- 01:145039 --:------ 01:145039 1F09 003 FF04B5")
	if err := gwy.Route(promote); err != nil {
		t.Fatalf("Route(promote): %v", err)
	}

	reading := decodeLine(t, "045 RP --- 01:145039 18:000730 --:------ 30C9 003 0007D0")
	if err := gwy.Route(reading); err != nil {
		t.Fatalf("Route(reading): %v", err)
	}

	sys, ok := gwy.System(ctl)
	if !ok {
		t.Fatal("expected TCS to exist")
	}
	zone, ok := sys.Zone("00")
	if !ok {
		t.Fatal("expected zone 00 to exist")
	}
	temp, ok := zone.Temperature()
	if !ok || temp != 20.00 {
		t.Fatalf("expected zone.Temperature() == (20.00, true), got (%v, %v)", temp, ok)
	}
}

// TestRoute_S6_AllowListDropsUnknownAddress is spec scenario S6.
func TestRoute_S6_AllowListDropsUnknownAddress(t *testing.T) {
	allowed := mustAddr(t, "01:145039")
	gwy := entity.New(zerolog.Nop(), entity.WithAllowList([]address.Address{allowed}))

	unknown := mustAddr(t, "01:999999")
	msg := decodeLine(t, "045  I --- 01:999999 --:------ 01:999999 1F09 003 FF04B5")
	if err := gwy.Route(msg); err != nil {
		t.Fatalf("Route: %v", err)
	}

	if _, ok := gwy.Device(unknown); ok {
		t.Fatal("expected no device to be created for an address not on the allow-list")
	}

	// The allowed address still works normally.
	ok := decodeLine(t, "045  I --- 01:145039 --:------ 01:145039 1F09 003 FF04B5")
	if err := gwy.Route(ok); err != nil {
		t.Fatalf("Route(allowed): %v", err)
	}
	if _, exists := gwy.Device(allowed); !exists {
		t.Fatal("expected allow-listed device to be created")
	}
}

// TestDevice_WriteOnceParent covers property 8.
func TestDevice_WriteOnceParent(t *testing.T) {
	d, err := newTestDevice(t, "04:111111")
	if err != nil {
		t.Fatal(err)
	}
	ctlA := mustAddr(t, "01:145039")
	ctlB := mustAddr(t, "01:999999")

	if err := d.SetParentController(ctlA); err != nil {
		t.Fatalf("first SetParentController: %v", err)
	}
	if err := d.SetParentController(ctlA); err != nil {
		t.Fatalf("re-asserting the same parent should be a no-op, got: %v", err)
	}
	err = d.SetParentController(ctlB)
	if errs.Of(err) != errs.CorruptState {
		t.Fatalf("expected CorruptState re-parenting to a different controller, got %v", err)
	}
}

// TestDevice_PromoteConflict covers invariant 6's "seen twice
// exhibiting contradictory... signatures raises corrupt-state".
func TestDevice_PromoteConflict(t *testing.T) {
	d, err := newTestDevice(t, "13:000099")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Promote(entity.ClassBdrSwitch); err != nil {
		t.Fatalf("first Promote: %v", err)
	}
	if err := d.Promote(entity.ClassBdrSwitch); err != nil {
		t.Fatalf("re-confirming the same class should be a no-op, got: %v", err)
	}
	err = d.Promote(entity.ClassController)
	if errs.Of(err) != errs.CorruptState {
		t.Fatalf("expected CorruptState on conflicting promotion, got %v", err)
	}
}

// TestRoute_MultipleControllersRejected covers invariant 1.
func TestRoute_MultipleControllersRejected(t *testing.T) {
	gwy := entity.New(zerolog.Nop())

	first := decodeLine(t, "045  I --- 01:145039 --:------ 01:145039 1F09 003 FF04B5")
	if err := gwy.Route(first); err != nil {
		t.Fatalf("Route(first): %v", err)
	}

	second := decodeLine(t, "045  I --- 01:999999 --:------ 01:999999 1F09 003 FF04B5")
	err := gwy.Route(second)
	if errs.Of(err) != errs.MultipleController {
		t.Fatalf("expected MultipleController, got %v", err)
	}
}

// TestRoute_MultipleControllersAllowed exercises the opt-out option.
func TestRoute_MultipleControllersAllowed(t *testing.T) {
	gwy := entity.New(zerolog.Nop(), entity.WithMultipleControllersAllowed())

	first := decodeLine(t, "045  I --- 01:145039 --:------ 01:145039 1F09 003 FF04B5")
	second := decodeLine(t, "045  I --- 01:999999 --:------ 01:999999 1F09 003 FF04B5")
	if err := gwy.Route(first); err != nil {
		t.Fatalf("Route(first): %v", err)
	}
	if err := gwy.Route(second); err != nil {
		t.Fatalf("Route(second): %v", err)
	}
	if len(gwy.Systems()) != 2 {
		t.Fatalf("expected 2 systems, got %d", len(gwy.Systems()))
	}
}

// TestOTB_TwoConsecutiveUnknownDataIdDeprecates covers property 10.
func TestOTB_TwoConsecutiveUnknownDataIdDeprecates(t *testing.T) {
	d, err := newTestDevice(t, "10:012345")
	if err != nil {
		t.Fatal(err)
	}
	msg := message.OpenThermMsg{MsgType: message.OTUnknownDataID, DataID: 0x73, Value: 0}

	d.ObserveOpenTherm("0073000000", msg)
	if !d.OpenThermSupported(0x73) {
		t.Fatal("expected data-id still supported after a single Unknown-DataId reply")
	}
	d.ObserveOpenTherm("0073000000", msg)
	if d.OpenThermSupported(0x73) {
		t.Fatal("expected data-id unsupported after two consecutive Unknown-DataId replies")
	}
}

// TestOTB_LiteralSentinelDeprecatesImmediately covers the two literal
// payload-suffix sentinels (original_source OtbGateway).
func TestOTB_LiteralSentinelDeprecatesImmediately(t *testing.T) {
	d, err := newTestDevice(t, "10:012345")
	if err != nil {
		t.Fatal(err)
	}
	msg := message.OpenThermMsg{MsgType: message.OTReadAck, DataID: 0x30, Value: 0}
	d.ObserveOpenTherm("00300000121980", msg)
	if d.OpenThermSupported(0x30) {
		t.Fatal("expected immediate deprecation on the 121980 sentinel suffix")
	}
}

func newTestDevice(t *testing.T, addr string) (*entity.Device, error) {
	t.Helper()
	gwy := entity.New(zerolog.Nop())
	a := mustAddr(t, addr)
	// A raw, unrecognised-opcode message is enough to materialise the
	// device via the normal Route path without tripping any promotion
	// or zone-binding rule.
	line := "045  I --- " + addr + " --:------ " + addr + " 0100 003 000000"
	if err := gwy.Route(decodeLine(t, line)); err != nil {
		return nil, err
	}
	d, ok := gwy.Device(a)
	if !ok {
		t.Fatalf("expected device %s to be created", addr)
	}
	return d, nil
}

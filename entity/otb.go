// OTB (OpenTherm bridge) deprecation tracking (spec §4.7 "OTB";
// property 10). Grounded on original_source/ramses_rf/devices.py's
// OtbGateway (~1220-1300): per data-id, two consecutive
// Unknown-DataId/Data-Invalid replies, or either of the two literal
// raw-payload suffix sentinels, mark the id unsupported so discovery
// stops querying it.
package entity

import "github.com/JorritSalverda/ramses-gateway/message"

type otbState struct {
	supported     map[byte]bool
	unknownStreak map[byte]int
}

func newOtbState() *otbState {
	return &otbState{supported: make(map[byte]bool), unknownStreak: make(map[byte]int)}
}

// observe updates supported[dataID] from one decoded 3220 reply.
// rawPayload is the packet's undecoded hex payload, needed for the
// literal suffix sentinels.
func (o *otbState) observe(rawPayload string, msg message.OpenThermMsg) {
	id := msg.DataID
	isUnknownType := msg.MsgType == message.OTUnknownDataID || msg.MsgType == message.OTDataInvalid
	if isUnknownType {
		o.unknownStreak[id]++
		if o.unknownStreak[id] >= 2 {
			o.supported[id] = false
		}
	} else {
		o.unknownStreak[id] = 0
	}
	// The literal suffix sentinels are decisive on their own — no
	// second-strike needed.
	if msg.Deprecated(rawPayload) && !isUnknownType {
		o.supported[id] = false
	}
}

func (o *otbState) isSupported(dataID byte) bool {
	v, ok := o.supported[dataID]
	if !ok {
		return true
	}
	return v
}

// ObserveOpenTherm feeds one decoded 3220 reply into this device's OTB
// deprecation tracking, lazily creating it on first use.
func (d *Device) ObserveOpenTherm(rawPayload string, msg message.OpenThermMsg) {
	d.mu.Lock()
	if d.otb == nil {
		d.otb = newOtbState()
	}
	o := d.otb
	d.mu.Unlock()
	o.observe(rawPayload, msg)
}

// OpenThermSupported reports whether dataID is still worth querying
// (defaults true until a deprecation signal has been observed).
func (d *Device) OpenThermSupported(dataID byte) bool {
	d.mu.Lock()
	o := d.otb
	d.mu.Unlock()
	if o == nil {
		return true
	}
	return o.isSupported(dataID)
}

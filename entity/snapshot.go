package entity

// DeviceSnapshot is one Device's topology (spec §6 "schema... installation
// topology"), stripped of its message cache and mutex.
type DeviceSnapshot struct {
	ID               string `json:"id"`
	Class            string `json:"class"`
	ParentController string `json:"parent_controller,omitempty"`
	ParentZone       string `json:"parent_zone,omitempty"`
}

// SystemSnapshot is one TCS's topology.
type SystemSnapshot struct {
	ControllerID string   `json:"controller_id"`
	ZoneIdxs     []string `json:"zone_idxs"`
	HasDhw       bool     `json:"has_dhw"`
}

// Schema is the full installation topology, the "schema" half of the
// state cache (spec §6).
type Schema struct {
	Devices []DeviceSnapshot `json:"devices"`
	Systems []SystemSnapshot `json:"systems"`
}

// Snapshot captures the current topology for persistence: it is the
// "schema" half of the state cache written by GetState, and shows the
// topology without forcing a full replay. It carries no message
// history, and restoring does not apply it — replaying the cached
// packets (the "packets" half) reconstructs the topology.
func (g *Gateway) Snapshot() Schema {
	var schema Schema
	for _, d := range g.Devices() {
		d.mu.Lock()
		snap := DeviceSnapshot{ID: d.ID.String(), Class: d.class.String()}
		if d.hasParentController {
			snap.ParentController = d.parentController.String()
		}
		if d.hasParentZone {
			snap.ParentZone = d.parentZoneKey
		}
		d.mu.Unlock()
		schema.Devices = append(schema.Devices, snap)
	}
	for _, sys := range g.Systems() {
		sys.mu.Lock()
		sysSnap := SystemSnapshot{ControllerID: sys.ControllerID.String(), HasDhw: sys.dhw != nil}
		for idx := range sys.zones {
			sysSnap.ZoneIdxs = append(sysSnap.ZoneIdxs, idx)
		}
		sys.mu.Unlock()
		schema.Systems = append(schema.Systems, sysSnap)
	}
	return schema
}

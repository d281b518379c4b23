package ramses

import (
	"sort"
	"sync"
	"time"

	"github.com/JorritSalverda/ramses-gateway/entity"
	"github.com/JorritSalverda/ramses-gateway/message"
	"github.com/JorritSalverda/ramses-gateway/packet"
)

// State is the JSON state cache document (spec §6: "two top-level
// keys: schema (installation topology) and packets (dtm-keyed map of
// the last message per (src, code, idx))"). Grounded on the teacher's
// State{ZoneInfoMap} (domain.go) and readStateFromStateFile/
// writeStateToConfigmap (main.go), generalised from a single flat
// zone-info map into the pair spec.md §6 describes, and re-targeted at
// a local file instead of a Kubernetes ConfigMap.
type State struct {
	Schema  entity.Schema     `json:"schema"`
	Packets map[string]string `json:"packets"`
}

// packetKey identifies the (src, code, idx) tuple the state cache
// deduplicates on; idx is empty for scalar/list/raw payloads.
type packetKey struct {
	src  string
	code message.Code
	idx  string
}

// packetCache tracks, for every (src, code, idx) tuple seen, the most
// recently observed packet and its timestamp, ready to be exported as
// the dtm-keyed "packets" map.
type packetCache struct {
	mu      sync.Mutex
	entries map[packetKey]cachedPacket
}

type cachedPacket struct {
	dtm  time.Time
	line string
}

func newPacketCache() *packetCache {
	return &packetCache{entries: make(map[packetKey]cachedPacket)}
}

// observe records msg's raw packet against every (src, code, idx) key
// it carries, keyed by the packet's own timestamp or, for a line that
// carried none, by the time it was observed.
func (c *packetCache) observe(msg message.Message) {
	dtm := msg.Packet.Timestamp
	if dtm.IsZero() {
		dtm = time.Now()
	}
	line, err := packet.Encode(msg.Packet)
	if err != nil {
		return
	}
	cp := cachedPacket{dtm: dtm, line: line}

	c.mu.Lock()
	defer c.mu.Unlock()

	src := msg.Packet.Src.String()
	if msg.Kind == message.KindIndexed {
		for idxByte := range msg.Indexed {
			key := packetKey{src: src, code: msg.Code, idx: indexedKey(idxByte)}
			c.entries[key] = cp
		}
		return
	}
	c.entries[packetKey{src: src, code: msg.Code}] = cp
}

func indexedKey(b byte) string {
	const hexDigits = "0123456789ABCDEF"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}

// export renders the dedup table as the dtm-keyed JSON map.
func (c *packetCache) export() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.entries))
	for _, cp := range c.entries {
		out[cp.dtm.Format(time.RFC3339Nano)] = cp.line
	}
	return out
}

// restoreOrder returns line in ascending-dtm order, ready to replay
// through the message parser (spec §6: "Restoring replays packets...
// in dtm order, bypassing transport").
func restoreOrder(packets map[string]string) []string {
	dtms := make([]string, 0, len(packets))
	for dtm := range packets {
		dtms = append(dtms, dtm)
	}
	sort.Slice(dtms, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339Nano, dtms[i])
		tj, _ := time.Parse(time.RFC3339Nano, dtms[j])
		return ti.Before(tj)
	})
	lines := make([]string, 0, len(dtms))
	for _, dtm := range dtms {
		lines = append(lines, packets[dtm])
	}
	return lines
}

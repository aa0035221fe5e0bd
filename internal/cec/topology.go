package cec

import (
	"sort"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTopologyTTL is how long a learnt address mapping stays valid.
const DefaultTopologyTTL = 10 * time.Minute

// TopologyEntry is what the bus has told us about one logical device.
type TopologyEntry struct {
	LogicalAddress  LogicalAddress  `json:"logical_address"`
	PhysicalAddress PhysicalAddress `json:"physical_address"`
	DeviceType      DeviceType      `json:"device_type"`
	HasType         bool            `json:"-"`
	LastSeen        time.Time       `json:"last_seen"`
}

// Topology is the physical-address knowledge learnt from bus traffic.
//
// Entries are keyed by logical address and expire after the TTL, since a
// device can be re-plugged to another port without announcing itself.
// Safe for concurrent use.
type Topology struct {
	entries *cache.Cache
	ttl     time.Duration
}

// NewTopology creates an empty topology with the given entry TTL.
func NewTopology(ttl time.Duration) *Topology {
	if ttl <= 0 {
		ttl = DefaultTopologyTTL
	}
	return &Topology{
		entries: cache.New(ttl, ttl*2), //nolint:mnd // cleanup interval
		ttl:     ttl,
	}
}

func topologyKey(la LogicalAddress) string {
	return strconv.Itoa(int(la))
}

// Observe learns from messages that carry a sender's physical address.
// Returns true if the entry for the sender changed.
func (t *Topology) Observe(msg Message) bool {
	if msg.Source == AddrUnregistered {
		return false
	}

	switch msg.Opcode {
	case OpReportPhysicalAddress:
		if len(msg.Params) <= paSize {
			return false
		}
		return t.Learn(msg.Source, msg.PhysicalAddress(), DeviceType(msg.Params[paSize]), true)
	case OpActiveSource:
		return t.Learn(msg.Source, msg.PhysicalAddress(), 0, false)
	default:
		return false
	}
}

// Learn records that la is located at pa. Returns true if this changed what
// was known about la.
func (t *Topology) Learn(la LogicalAddress, pa PhysicalAddress, dt DeviceType, hasType bool) bool {
	if !la.IsValid() || la == AddrUnregistered || !pa.IsValid() {
		return false
	}

	key := topologyKey(la)
	prev, found := t.entry(key)

	entry := TopologyEntry{
		LogicalAddress:  la,
		PhysicalAddress: pa,
		DeviceType:      dt,
		HasType:         hasType,
		LastSeen:        time.Now(),
	}
	if !hasType && found && prev.PhysicalAddress == pa {
		entry.DeviceType, entry.HasType = prev.DeviceType, prev.HasType
	}
	t.entries.Set(key, entry, cache.DefaultExpiration)

	return !found || prev.PhysicalAddress != pa || prev.HasType != entry.HasType || prev.DeviceType != entry.DeviceType
}

func (t *Topology) entry(key string) (TopologyEntry, bool) {
	v, found := t.entries.Get(key)
	if !found {
		return TopologyEntry{}, false
	}
	e, ok := v.(TopologyEntry)
	return e, ok
}

// PhysicalAddressOf returns the last known physical address of la.
func (t *Topology) PhysicalAddressOf(la LogicalAddress) (PhysicalAddress, bool) {
	e, ok := t.entry(topologyKey(la))
	if !ok {
		return InvalidPhysicalAddress, false
	}
	return e.PhysicalAddress, true
}

// LogicalAddressAt returns the device last seen at pa.
func (t *Topology) LogicalAddressAt(pa PhysicalAddress) (LogicalAddress, bool) {
	for _, e := range t.Devices() {
		if e.PhysicalAddress == pa {
			return e.LogicalAddress, true
		}
	}
	return AddrUnregistered, false
}

// Devices returns all live entries ordered by logical address.
func (t *Topology) Devices() []TopologyEntry {
	items := t.entries.Items()
	out := make([]TopologyEntry, 0, len(items))
	for _, item := range items {
		if e, ok := item.Object.(TopologyEntry); ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LogicalAddress < out[j].LogicalAddress
	})
	return out
}

// Forget drops what is known about la.
func (t *Topology) Forget(la LogicalAddress) {
	t.entries.Delete(topologyKey(la))
}

// Flush drops all entries, e.g. after a hotplug event.
func (t *Topology) Flush() {
	t.entries.Flush()
}

// Count returns the number of entries, including expired ones not yet cleaned up.
func (t *Topology) Count() int {
	return t.entries.ItemCount()
}

// TTL returns the configured entry lifetime.
func (t *Topology) TTL() time.Duration {
	return t.ttl
}

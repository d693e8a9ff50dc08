package graph

import (
	"encoding/json"
	"reflect"
)

// Node is one entity in a fragment. Values are only obtainable from a
// builder's Build, so every Node carries all fields its kind requires.
type Node interface {
	Kind() Kind
	Key() NodeKey
	// State is the lifecycle state name, empty for stateless kinds.
	State() string
	// Timestamp is the time of the state transition the node describes.
	Timestamp() uint64
	// Properties holds every populated field except key, kind and state.
	Properties() map[string]any
}

type nodeJSON struct {
	Key        NodeKey        `json:"key"`
	Kind       Kind           `json:"kind"`
	State      string         `json:"state,omitempty"`
	Properties map[string]any `json:"properties"`
}

func marshalNode(n Node) ([]byte, error) {
	return json.Marshal(nodeJSON{Key: n.Key(), Kind: n.Kind(), State: n.State(), Properties: n.Properties()})
}

func sameNode(a, b Node) bool {
	return a.Kind() == b.Kind() &&
		a.Key() == b.Key() &&
		a.State() == b.State() &&
		reflect.DeepEqual(a.Properties(), b.Properties())
}

// phase groups kind-specific states by which timestamp they require.
type phase uint8

const (
	phaseNone phase = iota
	phaseCreated
	phaseExisting
	phaseEnded
)

const (
	fCreatedTS fieldSet = 1 << (iota + 24)
	fLastSeenTS
	fEndedTS
)

// lifecycle holds the timestamps shared by stateful kinds. ended is the
// terminated/deleted/closed time depending on kind.
type lifecycle struct {
	created  uint64
	lastSeen uint64
	ended    uint64
}

type stampNames struct {
	created, lastSeen, ended string
}

var (
	processStamps    = stampNames{"created_timestamp", "last_seen_timestamp", "terminated_timestamp"}
	fileStamps       = stampNames{"created_timestamp", "last_seen_timestamp", "deleted_timestamp"}
	connectionStamps = stampNames{"created_timestamp", "last_seen_timestamp", "terminated_timestamp"}
)

// requireStamp checks the timestamp matching the state's phase.
func (c *checklist) requireStamp(p phase, set fieldSet, names stampNames) {
	switch p {
	case phaseCreated:
		c.require(names.created, set.has(fCreatedTS))
	case phaseExisting:
		c.require(names.lastSeen, set.has(fLastSeenTS))
	case phaseEnded:
		c.require(names.ended, set.has(fEndedTS))
	}
}

func (l lifecycle) at(p phase) uint64 {
	switch p {
	case phaseCreated:
		return l.created
	case phaseExisting:
		return l.lastSeen
	case phaseEnded:
		return l.ended
	}
	return 0
}

func (l lifecycle) put(props map[string]any, names stampNames) {
	if l.created != 0 {
		props[names.created] = l.created
	}
	if l.lastSeen != 0 {
		props[names.lastSeen] = l.lastSeen
	}
	if l.ended != 0 {
		props[names.ended] = l.ended
	}
}

// hostKey is the host identity: asset id when known, hostname otherwise.
func hostKey(assetID, hostname string) string {
	if assetID != "" {
		return assetID
	}
	return hostname
}

func putHost(props map[string]any, assetID, hostname string) {
	if assetID != "" {
		props["asset_id"] = assetID
	}
	if hostname != "" {
		props["hostname"] = hostname
	}
}

// Package model holds the plain data types shared across the orchestrator:
// server references, positions, transport kinds, and broadcast payloads.
package model

// TransportType describes how a radio interface attaches to the emulation
// daemon. Virtual interfaces ride the daemon's internal transport; raw
// interfaces bypass it and bind directly to a host-level device.
type TransportType string

const (
	TransportVirtual TransportType = "virtual"
	TransportRaw     TransportType = "raw"
)

// ServerRef identifies a physical emulation host participating in a
// distributed run. Exactly one server in a run is local.
type ServerRef struct {
	Name string `yaml:"name" json:"name"`
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`

	// Local marks the server this orchestrator instance runs on.
	Local bool `yaml:"local,omitempty" json:"local,omitempty"`

	// Connected reports whether the control-channel transport to this
	// server is up. Peers without an active transport are skipped during
	// id negotiation.
	Connected bool `yaml:"connected,omitempty" json:"connected,omitempty"`
}

// Position is a point in the emulation's local coordinate space.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// GeoPoint is a geographic coordinate as carried by location events.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// NodeUpdate is the node-state notification broadcast after a location
// event has been applied. It carries both the original geographic
// coordinates and the derived local position.
type NodeUpdate struct {
	NodeID   int      `json:"nodeId"`
	NodeName string   `json:"nodeName"`
	Geo      GeoPoint `json:"geo"`
	Position Position `json:"position"`
}

// LinkOptions carries per-link parameters handed to a radio model's link
// configuration hook. All fields are optional; zero values mean "leave
// unchanged".
type LinkOptions struct {
	BandwidthBps int64
	DelayUsec    int64
	LossPercent  float64
	JitterUsec   int64
}

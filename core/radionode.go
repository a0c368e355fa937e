package core

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/meshworks/radio-orchestrator/model"
)

// hwaddrPrefix is the fixed vendor prefix for hardware addresses derived
// from NEM ids. The two trailing octets encode the id big-endian, so an
// address always decodes back to the id it was derived from.
const hwaddrPrefix = "02:02:00:00"

// HostNode is the container/host that owns one or more radio interfaces.
// The orchestrator does not create host nodes; it receives them from the
// session layer and only decides when their devices are installed.
type HostNode struct {
	ID     int
	Name   string
	Server string

	// NSPath is the node's network namespace path (for example
	// /proc/<pid>/ns/net). Empty for host-level nodes.
	NSPath string

	mu  sync.Mutex
	pos model.Position
}

// SetPosition stores the node's position directly, without going through
// the session's move-command path.
func (n *HostNode) SetPosition(p model.Position) {
	n.mu.Lock()
	n.pos = p
	n.mu.Unlock()
}

// Position returns the node's last stored position.
func (n *HostNode) Position() model.Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pos
}

// NetworkInterface is one physical-interface attachment (NEM) to a
// RadioNode. A NEM id is assigned during document generation and is
// immutable for the life of the run.
type NetworkInterface struct {
	Name      string
	Index     int
	Node      *HostNode
	Transport model.TransportType

	nemID    uint16
	assigned bool
	hwaddr   net.HardwareAddr
}

// SetNEMID records the interface's assigned NEM id and derives its
// hardware address from it.
func (ni *NetworkInterface) SetNEMID(id uint16) {
	ni.nemID = id
	ni.assigned = true
	ni.hwaddr, _ = net.ParseMAC(HardwareAddr(id))
}

// NEMID returns the assigned NEM id, and whether one has been assigned.
func (ni *NetworkInterface) NEMID() (uint16, bool) {
	return ni.nemID, ni.assigned
}

// HardwareAddress returns the address derived from the NEM id, or nil if
// no id has been assigned yet.
func (ni *NetworkInterface) HardwareAddress() net.HardwareAddr {
	return ni.hwaddr
}

// HardwareAddr derives the hardware address string for a NEM id.
func HardwareAddr(nemID uint16) string {
	return fmt.Sprintf("%s:%02X:%02X", hwaddrPrefix, (nemID>>8)&0xff, nemID&0xff)
}

// DecodeHardwareAddr recovers the NEM id from a derived hardware address.
func DecodeHardwareAddr(addr net.HardwareAddr) (uint16, error) {
	if len(addr) != 6 {
		return 0, fmt.Errorf("hardware address %q is not 6 octets", addr.String())
	}
	return uint16(addr[4])<<8 | uint16(addr[5]), nil
}

// Model is the polymorphic radio-model contract. Implementations live in
// the rfmodel package; the core only needs the hooks it invokes during
// document generation and startup.
type Model interface {
	// Name is the technology name the model is registered under.
	Name() string

	// Configurations lists the model's named options with defaults.
	Configurations() []model.Option

	// ConfigGroups describes the logical grouping of Configurations.
	ConfigGroups() []model.OptionGroup

	// BuildDocuments emits the node's NEM/MAC/PHY configuration documents
	// into dir. Pure given the resolved config: no network or process
	// side effects.
	BuildDocuments(dir string, node *RadioNode, config map[string]string) error

	// PostStartup runs after all daemons are live and interfaces are
	// installed.
	PostStartup(node *RadioNode) error

	// LinkConfig applies per-link parameters. Models that do not support
	// link configuration log and ignore the call.
	LinkConfig(iface *NetworkInterface, opts model.LinkOptions, peer *NetworkInterface) error
}

// RadioNode is an emulated wireless segment: an ordered set of attached
// interfaces plus the radio model that governs them. Owned exclusively by
// the Registry for its lifetime.
type RadioNode struct {
	ID    int
	Name  string
	Model Model

	ifaces []*NetworkInterface
}

// NewRadioNode constructs a radio node with no interfaces attached.
func NewRadioNode(id int, name string) *RadioNode {
	return &RadioNode{ID: id, Name: name}
}

// AttachInterface adds an interface attachment to the node, keeping the
// attachment list ordered by interface index.
func (rn *RadioNode) AttachInterface(ni *NetworkInterface) {
	rn.ifaces = append(rn.ifaces, ni)
	sort.Slice(rn.ifaces, func(i, j int) bool {
		return rn.ifaces[i].Index < rn.ifaces[j].Index
	})
}

// Interfaces returns the node's attachments ordered by interface index.
// Callers must treat the slice as read-only.
func (rn *RadioNode) Interfaces() []*NetworkInterface {
	return rn.ifaces
}

// InterfaceForNEM returns the attachment holding the given NEM id, or nil.
func (rn *RadioNode) InterfaceForNEM(nemID uint16) *NetworkInterface {
	for _, ni := range rn.ifaces {
		if id, ok := ni.NEMID(); ok && id == nemID {
			return ni
		}
	}
	return nil
}

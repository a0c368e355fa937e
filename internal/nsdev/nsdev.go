// Package nsdev implements the OS-level device operations the supervisor
// and installer delegate: control-network interfaces, multicast routes,
// and moving virtual interfaces into node namespaces.
package nsdev

import (
	"context"
	"fmt"
	"net"

	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/logging"
)

// Manager performs namespace-scoped device work with netlink.
type Manager struct {
	log logging.Logger
}

// NewManager constructs a device manager.
func NewManager(log logging.Logger) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	return &Manager{log: log}
}

// EnsureControlInterface creates the named control device inside the
// node's namespace if it does not already exist. The device is one end
// of a veth pair; the peer end stays in the root namespace for the
// session layer to bridge.
func (m *Manager) EnsureControlInterface(ctx context.Context, node *core.HostNode, device string) error {
	if node.NSPath == "" {
		// Host-level node: the device is managed on the host directly.
		return nil
	}

	netNS, err := ns.GetNS(node.NSPath)
	if err != nil {
		return fmt.Errorf("open namespace %q: %w", node.NSPath, err)
	}
	defer netNS.Close()

	exists := false
	err = netNS.Do(func(_ ns.NetNS) error {
		if _, err := netlink.LinkByName(device); err == nil {
			exists = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("inspect namespace %q: %w", node.NSPath, err)
	}
	if exists {
		return nil
	}

	peerName := fmt.Sprintf("%s.%d", device, node.ID)
	attrs := netlink.NewLinkAttrs()
	attrs.Name = peerName
	attrs.MTU = 1500
	veth := &netlink.Veth{LinkAttrs: attrs, PeerName: device}
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("create veth %s/%s: %w", peerName, device, err)
	}

	peer, err := netlink.LinkByName(device)
	if err != nil {
		return fmt.Errorf("find veth end %q: %w", device, err)
	}
	if err := netlink.LinkSetNsFd(peer, int(netNS.Fd())); err != nil {
		return fmt.Errorf("move %q into namespace: %w", device, err)
	}
	if err := netlink.LinkSetUp(veth); err != nil {
		return fmt.Errorf("bring up %q: %w", peerName, err)
	}

	return netNS.Do(func(_ ns.NetNS) error {
		link, err := netlink.LinkByName(device)
		if err != nil {
			return fmt.Errorf("find %q in namespace: %w", device, err)
		}
		return netlink.LinkSetUp(link)
	})
}

// AddMulticastRoute installs a route for the multicast group via device,
// scoped to the node's namespace (or the root namespace for host nodes).
func (m *Manager) AddMulticastRoute(ctx context.Context, node *core.HostNode, group, device string) error {
	ip := net.ParseIP(group)
	if ip == nil {
		return fmt.Errorf("invalid multicast group %q", group)
	}
	dst := &net.IPNet{IP: ip, Mask: net.CIDRMask(32, 32)}

	add := func() error {
		link, err := netlink.LinkByName(device)
		if err != nil {
			return fmt.Errorf("find device %q: %w", device, err)
		}
		route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: dst}
		if err := netlink.RouteAdd(route); err != nil {
			return fmt.Errorf("add route %s via %s: %w", group, device, err)
		}
		return nil
	}

	if node.NSPath == "" {
		return add()
	}
	return ns.WithNetNSPath(node.NSPath, func(_ ns.NetNS) error { return add() })
}

// Install moves the interface's virtual device into its node's namespace
// and applies the derived hardware address. The device only exists once
// the owning daemon process is live.
func (m *Manager) Install(ctx context.Context, iface *core.NetworkInterface) error {
	link, err := netlink.LinkByName(iface.Name)
	if err != nil {
		return fmt.Errorf("find device %q: %w", iface.Name, err)
	}
	if hw := iface.HardwareAddress(); hw != nil {
		if err := netlink.LinkSetHardwareAddr(link, hw); err != nil {
			return fmt.Errorf("set hwaddr on %q: %w", iface.Name, err)
		}
	}

	if iface.Node == nil || iface.Node.NSPath == "" {
		return netlink.LinkSetUp(link)
	}

	netNS, err := ns.GetNS(iface.Node.NSPath)
	if err != nil {
		return fmt.Errorf("open namespace %q: %w", iface.Node.NSPath, err)
	}
	defer netNS.Close()

	if err := netlink.LinkSetNsFd(link, int(netNS.Fd())); err != nil {
		return fmt.Errorf("move %q into namespace: %w", iface.Name, err)
	}
	return netNS.Do(func(_ ns.NetNS) error {
		moved, err := netlink.LinkByName(iface.Name)
		if err != nil {
			return fmt.Errorf("find %q in namespace: %w", iface.Name, err)
		}
		return netlink.LinkSetUp(moved)
	})
}

// Uninstall brings the interface's device down inside its namespace.
// The device itself disappears with the owning daemon process.
func (m *Manager) Uninstall(ctx context.Context, iface *core.NetworkInterface) error {
	down := func() error {
		link, err := netlink.LinkByName(iface.Name)
		if err != nil {
			// Already gone with the daemon.
			return nil
		}
		return netlink.LinkSetDown(link)
	}
	if iface.Node == nil || iface.Node.NSPath == "" {
		return down()
	}
	return ns.WithNetNSPath(iface.Node.NSPath, func(_ ns.NetNS) error { return down() })
}

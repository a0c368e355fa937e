// Package installer attaches each node's virtual network interface to its
// namespace once the daemons are running, and detaches them on teardown.
package installer

import (
	"context"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/model"
)

// DeviceInstaller owns the OS-level mechanics of attaching a virtual
// interface to its node's namespace. The installer only decides ordering.
type DeviceInstaller interface {
	Install(ctx context.Context, iface *core.NetworkInterface) error
	Uninstall(ctx context.Context, iface *core.NetworkInterface) error
}

// Installer walks registered nodes in a deterministic order and delegates
// attach/detach per interface. Must run strictly after daemons start
// (devices only become attachable once their owning process is live) and
// strictly before location events are delivered.
type Installer struct {
	devices DeviceInstaller
	log     logging.Logger
}

// New constructs an installer over the given device collaborator.
func New(devices DeviceInstaller, log logging.Logger) *Installer {
	if log == nil {
		log = logging.Noop()
	}
	return &Installer{devices: devices, log: log}
}

// InstallAll attaches every virtual interface, nodes in ascending id
// order. Raw-transport interfaces bind directly to host devices and are
// skipped.
func (in *Installer) InstallAll(ctx context.Context, reg *core.Registry) error {
	for _, node := range reg.NodesSorted() {
		in.log.Info(ctx, "installing interfaces", logging.Int("node", node.ID))
		for _, ni := range node.Interfaces() {
			if ni.Transport == model.TransportRaw {
				continue
			}
			if err := in.devices.Install(ctx, ni); err != nil {
				return err
			}
		}
	}
	return nil
}

// UninstallAll detaches every virtual interface in the same node order.
// Best-effort: failures are logged and teardown continues.
func (in *Installer) UninstallAll(ctx context.Context, reg *core.Registry) {
	for _, node := range reg.NodesSorted() {
		for _, ni := range node.Interfaces() {
			if ni.Transport == model.TransportRaw {
				continue
			}
			if err := in.devices.Uninstall(ctx, ni); err != nil {
				in.log.Warn(ctx, "failed to uninstall interface",
					logging.Int("node", node.ID),
					logging.String("interface", ni.Name),
					logging.Any("error", err))
			}
		}
	}
}

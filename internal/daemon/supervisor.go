// Package daemon supervises the external radio-emulation processes: one
// per physical host with at least one radio interface, plus at most one
// host-scoped instance when raw-transport interfaces exist.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/model"
)

// DefaultLogLevel is the daemon log verbosity used when the run
// configuration does not override it.
const DefaultLogLevel = 3

// BaseControlDevice is the control index 0 device. Every hosting node
// gets it before the OTA and event devices are provisioned, even when
// those are configured onto other control networks.
const BaseControlDevice = "ctrl0"

// DeviceManager prepares control-network devices inside a hosting node's
// namespace. The orchestrator decides when devices are needed; the
// implementation owns the OS-level mechanics.
type DeviceManager interface {
	// EnsureControlInterface makes device exist inside the node's
	// namespace, creating it if required.
	EnsureControlInterface(ctx context.Context, node *core.HostNode, device string) error

	// AddMulticastRoute installs a route for group via device, scoped to
	// the node's namespace.
	AddMulticastRoute(ctx context.Context, node *core.HostNode, group, device string) error
}

// ProcessRunner launches and terminates daemon processes. Implementations
// run node daemons inside the node's namespace and host daemons on the
// local host.
type ProcessRunner interface {
	StartNodeDaemon(ctx context.Context, node *core.HostNode, args []string) error
	StopNodeDaemon(ctx context.Context, node *core.HostNode) error
	StartHostDaemon(ctx context.Context, args []string) error
	StopHostDaemons(ctx context.Context) error
}

// RunConfig carries the run-scoped knobs the supervisor needs.
type RunConfig struct {
	Dir        string // per-run artifact directory
	LogLevel   int    // daemon log verbosity; 0 means DefaultLogLevel
	Realtime   bool
	OTAGroup   string
	OTADevice  string
	EventGroup string
	EventDev   string
}

// Supervisor starts and stops daemon processes for the registered radio
// nodes. Nodes with no radio interface are skipped entirely.
type Supervisor struct {
	devices DeviceManager
	runner  ProcessRunner
	log     logging.Logger

	hostStarted bool
	startedIDs  []int
}

// NewSupervisor constructs a supervisor over the given collaborators.
func NewSupervisor(devices DeviceManager, runner ProcessRunner, log logging.Logger) *Supervisor {
	if log == nil {
		log = logging.Noop()
	}
	return &Supervisor{devices: devices, runner: runner, log: log}
}

// Start prepares control devices and launches one daemon per hosting
// node, plus a single host-scoped instance when any raw interface exists.
// A failure to start a required per-host daemon fails the run; partial
// starts remain tracked for teardown.
func (s *Supervisor) Start(ctx context.Context, reg *core.Registry, cfg RunConfig) error {
	level := cfg.LogLevel
	if level <= 0 {
		level = DefaultLogLevel
	}
	base := []string{"-d", "-l", strconv.Itoa(level)}
	if cfg.Realtime {
		base = append(base, "-r")
	}

	runOnHost := false
	for _, host := range reg.HostNodes() {
		if hostUsesRawTransport(reg, host) {
			runOnHost = true
			continue
		}

		if err := s.prepareControlDevices(ctx, host, cfg); err != nil {
			return err
		}

		args := append(append([]string(nil), base...),
			"-f", filepath.Join(cfg.Dir, fmt.Sprintf("emane%d.log", host.ID)),
			filepath.Join(cfg.Dir, fmt.Sprintf("platform%d.xml", host.ID)),
		)
		if err := s.runner.StartNodeDaemon(ctx, host, args); err != nil {
			return fmt.Errorf("start daemon on node %d (%s): %w", host.ID, host.Name, err)
		}
		s.startedIDs = append(s.startedIDs, host.ID)
		s.log.Info(ctx, "daemon running", logging.String("node", host.Name), logging.Any("args", args))
	}

	if !runOnHost {
		return nil
	}

	args := append(append([]string(nil), base...),
		"-f", filepath.Join(cfg.Dir, "emane.log"),
		filepath.Join(cfg.Dir, "platform.xml"),
	)
	if err := s.runner.StartHostDaemon(ctx, args); err != nil {
		return fmt.Errorf("start host daemon: %w", err)
	}
	s.hostStarted = true
	s.log.Info(ctx, "host daemon running", logging.Any("args", args))
	return nil
}

// prepareControlDevices ensures the base control interface, the OTA
// device and, when distinct, the event-service device exist in the
// node's namespace, then installs the multicast routes daemon traffic
// needs.
func (s *Supervisor) prepareControlDevices(ctx context.Context, host *core.HostNode, cfg RunConfig) error {
	if err := s.devices.EnsureControlInterface(ctx, host, BaseControlDevice); err != nil {
		return fmt.Errorf("base control interface %q on node %d: %w", BaseControlDevice, host.ID, err)
	}
	if cfg.OTADevice != BaseControlDevice {
		if err := s.devices.EnsureControlInterface(ctx, host, cfg.OTADevice); err != nil {
			return fmt.Errorf("control interface %q on node %d: %w", cfg.OTADevice, host.ID, err)
		}
	}
	if cfg.EventDev != "" && cfg.EventDev != cfg.OTADevice && cfg.EventDev != BaseControlDevice {
		if err := s.devices.EnsureControlInterface(ctx, host, cfg.EventDev); err != nil {
			return fmt.Errorf("event device %q on node %d: %w", cfg.EventDev, host.ID, err)
		}
	}

	otaGroup := stripPort(cfg.OTAGroup)
	if err := s.devices.AddMulticastRoute(ctx, host, otaGroup, cfg.OTADevice); err != nil {
		return fmt.Errorf("ota route on node %d: %w", host.ID, err)
	}
	eventGroup := stripPort(cfg.EventGroup)
	if eventGroup != "" && eventGroup != otaGroup {
		dev := cfg.EventDev
		if dev == "" {
			dev = cfg.OTADevice
		}
		if err := s.devices.AddMulticastRoute(ctx, host, eventGroup, dev); err != nil {
			return fmt.Errorf("event route on node %d: %w", host.ID, err)
		}
	}
	return nil
}

// Stop signals termination to every daemon started for this run.
// Best-effort: failures are logged, never raised, so a daemon that
// already exited cannot leave the run un-torn-down.
func (s *Supervisor) Stop(ctx context.Context, reg *core.Registry) {
	hosts := make(map[int]*core.HostNode)
	for _, host := range reg.HostNodes() {
		hosts[host.ID] = host
	}
	for _, id := range s.startedIDs {
		host, ok := hosts[id]
		if !ok {
			continue
		}
		if err := s.runner.StopNodeDaemon(ctx, host); err != nil {
			s.log.Warn(ctx, "failed to stop daemon", logging.Int("node", id), logging.Any("error", err))
		}
	}
	s.startedIDs = nil

	if s.hostStarted {
		if err := s.runner.StopHostDaemons(ctx); err != nil {
			s.log.Warn(ctx, "failed to stop host daemons", logging.Any("error", err))
		}
		s.hostStarted = false
	}
}

// Running reports how many daemon processes this supervisor currently
// tracks, including the host-scoped instance.
func (s *Supervisor) Running() int {
	n := len(s.startedIDs)
	if s.hostStarted {
		n++
	}
	return n
}

// hostUsesRawTransport reports whether any radio interface on host is raw;
// such hosts are served by the single host-scoped daemon instance.
func hostUsesRawTransport(reg *core.Registry, host *core.HostNode) bool {
	for _, node := range reg.NodesSorted() {
		for _, ni := range node.Interfaces() {
			if ni.Node == host && ni.Transport == model.TransportRaw {
				return true
			}
		}
	}
	return false
}

// stripPort trims a trailing :port from a group:port pair, leaving the
// multicast group address routes are installed for.
func stripPort(group string) string {
	for i := len(group) - 1; i >= 0; i-- {
		if group[i] == ':' {
			return group[:i]
		}
	}
	return group
}

// Package orchestrator exposes the session-facing façade over the radio
// emulation run: node registration, distributed id negotiation, document
// generation, daemon lifecycle, interface installation, and the location
// event monitor.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/geo"
	"github.com/meshworks/radio-orchestrator/internal/alloc"
	"github.com/meshworks/radio-orchestrator/internal/bus"
	"github.com/meshworks/radio-orchestrator/internal/config"
	"github.com/meshworks/radio-orchestrator/internal/daemon"
	"github.com/meshworks/radio-orchestrator/internal/document"
	"github.com/meshworks/radio-orchestrator/internal/eventloop"
	"github.com/meshworks/radio-orchestrator/internal/installer"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/model"
	"github.com/meshworks/radio-orchestrator/rfmodel"
)

// Status is the outcome of a façade operation.
type Status int

const (
	// Success: the operation completed and the run may proceed.
	Success Status = iota
	// NotNeeded: no radio nodes are registered; there is nothing to run.
	NotNeeded
	// NotReady: a precondition is unmet (missing control device, id
	// allocation not yet pushed). Callers retry on a later tick.
	NotReady
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case NotNeeded:
		return "not-needed"
	case NotReady:
		return "not-ready"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// SummaryFileName is the per-run NEM assignment summary, one line per
// interface: "<node name> <interface name> <NEM id>".
const SummaryFileName = "nems"

// Default starting values for the per-run endpoint port counters.
const (
	DefaultPlatformPortStart  = 8100
	DefaultTransformPortStart = 8200
)

// DefaultModelName is assigned to radio nodes registered without an
// explicit technology.
const DefaultModelName = "rfpipe"

// TransportFactory opens the event-service receive transport for the
// given multicast group and device. Returning an error disables the
// location event subsystem for the run; it never fails startup.
type TransportFactory func(ctx context.Context, group, device string) (eventloop.Transport, error)

// EventPublisher emits location events toward the running emulation, used
// to replay node positions after startup.
type EventPublisher interface {
	PublishLocation(ctx context.Context, nemID uint16, pt model.GeoPoint) error
}

// MetricsRecorder receives scenario-level gauge updates.
type MetricsRecorder interface {
	SetScenarioCounts(radioNodes, assignedNEMs, runningDaemons int)
}

// Config carries the run-scoped settings of one manager instance.
type Config struct {
	// RunDir is the directory generated documents and daemon logs are
	// written under.
	RunDir string

	LogLevel int
	Realtime bool

	// EventMonitor enables the inbound location event loop.
	EventMonitor bool
	// EventGenerate enables outbound position replay after startup. When
	// nil it defaults to the inverse of EventMonitor, so a single host
	// never echoes its own events back to itself.
	EventGenerate *bool

	// LocalServer identifies this instance; Servers lists every known
	// emulation server including the local one.
	LocalServer model.ServerRef
	Servers     []model.ServerRef

	// Master marks this instance as the authoritative side of id
	// negotiation. Single-server runs are authoritative regardless.
	Master bool

	PlatformPortStart  int
	TransformPortStart int
}

// Manager sequences the full emulation run: Setup negotiates ids, Startup
// builds documents and starts daemons, PostStartup replays positions,
// Shutdown tears everything down in reverse order. All façade operations
// run synchronously on the caller's goroutine; only the event loop runs
// in the background.
type Manager struct {
	cfg    Config
	log    logging.Logger
	store  config.Store
	models *rfmodel.Registry

	registry   *core.Registry
	allocator  *alloc.Allocator
	supervisor *daemon.Supervisor
	installer  *installer.Installer
	loop       *eventloop.Loop

	controlBus bus.Bus
	transform  geo.Transform
	transports TransportFactory
	publisher  EventPublisher
	metrics    MetricsRecorder

	// ifcCounts tracks interfaces contributed per server, fed by link-add
	// notifications. Guarded by ifcMu alone; never held together with the
	// registry's lock.
	ifcMu     sync.Mutex
	ifcCounts map[string]int

	platformPort  int
	transformPort int

	lastBuild *document.Result
	eventsOff bool
}

// Deps bundles the manager's collaborators. Devices handles control
// interfaces and virtual-interface installation; nil Broadcast, Metrics,
// Transports, and Publisher are allowed and disable the related feature.
type Deps struct {
	Store      config.Store
	Models     *rfmodel.Registry
	ControlBus bus.Bus
	Devices    interface {
		daemon.DeviceManager
		installer.DeviceInstaller
	}
	Runner     daemon.ProcessRunner
	Transform  geo.Transform
	Broadcast  eventloop.Broadcaster
	Metrics    MetricsRecorder
	Transports TransportFactory
	Publisher  EventPublisher
	Log        logging.Logger
}

// New constructs a manager over the given collaborators.
func New(cfg Config, deps Deps) *Manager {
	log := deps.Log
	if log == nil {
		log = logging.Noop()
	}
	if cfg.PlatformPortStart <= 0 {
		cfg.PlatformPortStart = DefaultPlatformPortStart
	}
	if cfg.TransformPortStart <= 0 {
		cfg.TransformPortStart = DefaultTransformPortStart
	}
	store := deps.Store
	if store == nil {
		store = config.NewSessionStore()
	}
	models := deps.Models
	if models == nil {
		models = rfmodel.NewRegistry(log)
	}
	transform := deps.Transform
	if transform == nil {
		transform = geo.NewPlanar(0, 0, 0)
	}

	reg := core.NewRegistry()
	defaults := rfmodel.GlobalDefaults()

	var loopMetrics eventloop.MetricsRecorder
	if lm, ok := deps.Metrics.(eventloop.MetricsRecorder); ok {
		loopMetrics = lm
	}

	return &Manager{
		cfg:           cfg,
		log:           log,
		store:         store,
		models:        models,
		registry:      reg,
		allocator:     alloc.New(store, deps.ControlBus, rfmodel.GlobalName, defaults, log),
		supervisor:    daemon.NewSupervisor(deps.Devices, deps.Runner, log),
		installer:     installer.New(deps.Devices, log),
		loop:          eventloop.New(reg, transform, deps.Broadcast, loopMetrics, log),
		controlBus:    deps.ControlBus,
		transform:     transform,
		transports:    deps.Transports,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		ifcCounts:     make(map[string]int),
		platformPort:  cfg.PlatformPortStart,
		transformPort: cfg.TransformPortStart,
	}
}

// Registry exposes the radio-node registry for session wiring.
func (m *Manager) Registry() *core.Registry { return m.registry }

// Store exposes the configuration store for session wiring.
func (m *Manager) Store() config.Store { return m.store }

// AddNode registers a radio node under the given technology name. An
// empty modelName selects the default model. Registering the same id
// twice is a contract violation and returns a hard error.
func (m *Manager) AddNode(ctx context.Context, id int, name, modelName string) (*core.RadioNode, error) {
	if modelName == "" {
		modelName = DefaultModelName
	}
	mdl, err := m.models.Get(modelName)
	if err != nil {
		return nil, err
	}

	node := core.NewRadioNode(id, name)
	node.Model = mdl
	if err := m.registry.Add(node); err != nil {
		return nil, fmt.Errorf("add radio node %d (%s): %w", id, name, err)
	}
	m.log.Info(ctx, "registered radio node",
		logging.Int("id", id), logging.String("name", name), logging.String("model", modelName))
	return node, nil
}

// Setup validates the control device configuration, assigns the default
// model to any node registered without one, and negotiates id allocation
// with peer servers. NotReady means retry later.
func (m *Manager) Setup(ctx context.Context) (Status, error) {
	ctx, span := startPhaseSpan(ctx, "Setup")
	status, err := m.setup(ctx)
	endPhaseSpan(span, status, err)
	return status, err
}

func (m *Manager) setup(ctx context.Context) (Status, error) {
	if m.registry.Len() == 0 {
		m.log.Debug(ctx, "no radio nodes registered, nothing to set up")
		return NotNeeded, nil
	}

	otaDev := m.globalValue("otamanagerdevice")
	if controlDeviceIndex(otaDev) < 0 {
		m.log.Error(ctx, "invalid OTA manager device", logging.String("device", otaDev))
		return NotReady, nil
	}
	eventDev := m.globalValue("eventservicedevice")
	if eventDev != "" && controlDeviceIndex(eventDev) < 0 {
		m.log.Error(ctx, "invalid event service device", logging.String("device", eventDev))
		return NotReady, nil
	}

	if err := m.assignDefaultModels(ctx); err != nil {
		return NotReady, err
	}

	outcome := m.allocator.Negotiate(ctx, m.registry, m.cfg.Servers, m.authoritative(), m.interfaceCount)
	switch outcome {
	case alloc.NotNeeded:
		return NotNeeded, nil
	case alloc.Deferred:
		return NotReady, nil
	default:
		return Success, nil
	}
}

// Startup runs the full start sequence: setup, document build, daemon
// start, interface installation, and event-loop start, in exactly that
// order. The optional event subsystem never fails startup; a required
// daemon failing to start does.
func (m *Manager) Startup(ctx context.Context) (Status, error) {
	ctx, span := startPhaseSpan(ctx, "Startup")
	status, err := m.startup(ctx)
	endPhaseSpan(span, status, err)
	return status, err
}

func (m *Manager) startup(ctx context.Context) (Status, error) {
	status, err := m.Setup(ctx)
	if err != nil || status != Success {
		return status, err
	}

	if err := os.MkdirAll(m.cfg.RunDir, 0o755); err != nil {
		return NotReady, fmt.Errorf("create run directory: %w", err)
	}

	builder := document.NewBuilder(m.store, m.cfg.RunDir, rfmodel.GlobalName,
		rfmodel.PlatformDocumentOptions(), rfmodel.GlobalDefaults(), m.log)
	result, err := builder.Build(ctx, m.registry, m.controlBridge())
	if err != nil {
		return NotReady, fmt.Errorf("build documents: %w", err)
	}
	m.lastBuild = result
	m.allocatePorts(ctx, result)

	m.checkEventConfig(ctx)

	run := daemon.RunConfig{
		Dir:        m.cfg.RunDir,
		LogLevel:   m.cfg.LogLevel,
		Realtime:   m.cfg.Realtime,
		OTAGroup:   m.globalValue("otamanagergroup"),
		OTADevice:  m.globalValue("otamanagerdevice"),
		EventGroup: m.globalValue("eventservicegroup"),
		EventDev:   m.globalValue("eventservicedevice"),
	}
	if err := m.supervisor.Start(ctx, m.registry, run); err != nil {
		return NotReady, err
	}

	if err := m.installer.InstallAll(ctx, m.registry); err != nil {
		return NotReady, err
	}

	m.startEventLoop(ctx)

	if err := m.writeSummary(result); err != nil {
		m.log.Error(ctx, "failed to write NEM summary", logging.Any("error", err))
	}

	if m.metrics != nil {
		m.metrics.SetScenarioCounts(m.registry.Len(), len(result.NEMs), m.supervisor.Running())
	}
	m.log.Info(ctx, "emulation started",
		logging.Int("nodes", m.registry.Len()),
		logging.Int("nems", len(result.NEMs)),
		logging.Int("daemons", m.supervisor.Running()))
	return Success, nil
}

// PostStartup invokes every model's post-startup hook and, when event
// generation is enabled, replays current node positions as location
// events so the running emulation observes initial placement.
func (m *Manager) PostStartup(ctx context.Context) error {
	ctx, span := startPhaseSpan(ctx, "PostStartup")
	err := m.postStartup(ctx)
	endPhaseSpan(span, Success, err)
	return err
}

func (m *Manager) postStartup(ctx context.Context) error {
	for _, node := range m.registry.NodesSorted() {
		if err := node.Model.PostStartup(node); err != nil {
			return fmt.Errorf("post-startup for node %d: %w", node.ID, err)
		}
	}

	if !m.eventGenerate() || m.publisher == nil {
		return nil
	}
	for _, node := range m.registry.NodesSorted() {
		for _, ni := range node.Interfaces() {
			nemID, ok := ni.NEMID()
			if !ok {
				continue
			}
			pos := ni.Node.Position()
			pt := m.transform.ToGeo(float64(pos.X), float64(pos.Y), float64(pos.Z))
			if err := m.publisher.PublishLocation(ctx, nemID, pt); err != nil {
				m.log.Warn(ctx, "failed to publish initial location",
					logging.Int("nem", int(nemID)), logging.Any("error", err))
			}
		}
	}
	return nil
}

// Reset clears the registry and restores the endpoint port counters for
// the next run. Per-server interface counts survive a reset: peers keep
// contributing the same interfaces until the session tears down.
func (m *Manager) Reset(ctx context.Context) {
	m.registry.Clear()
	m.platformPort = m.cfg.PlatformPortStart
	m.transformPort = m.cfg.TransformPortStart
	m.lastBuild = nil
	m.eventsOff = false
	m.log.Debug(ctx, "manager reset")
}

// Shutdown tears the run down in reverse start order: interfaces out,
// daemons stopped, event loop joined. Teardown is best-effort end to end.
func (m *Manager) Shutdown(ctx context.Context) {
	ctx, span := startPhaseSpan(ctx, "Shutdown")
	defer span.End()

	m.ifcMu.Lock()
	m.ifcCounts = make(map[string]int)
	m.ifcMu.Unlock()

	m.installer.UninstallAll(ctx, m.registry)
	m.supervisor.Stop(ctx, m.registry)
	m.loop.Stop(ctx)

	if m.metrics != nil {
		m.metrics.SetScenarioCounts(m.registry.Len(), 0, 0)
	}
	m.log.Info(ctx, "emulation stopped")
}

// HandleMessage consumes one inbound control-channel message. Pushed
// configuration for the platform pseudo-model is stored; link-add
// notifications whose first endpoint is a registered radio node bump the
// per-server interface counters.
func (m *Manager) HandleMessage(msg bus.Message) {
	switch msg.Type {
	case bus.MessageConfigUpdate:
		if msg.Config == nil || msg.Config.Source != rfmodel.GlobalName {
			return
		}
		m.store.Set(config.GlobalOwner, rfmodel.GlobalName, msg.Config.Values)
	case bus.MessageLinkAdded:
		if msg.Link == nil || m.registry.Get(msg.Link.LinkNode) == nil {
			return
		}
		m.ifcMu.Lock()
		for _, server := range msg.Link.Servers {
			m.ifcCounts[server]++
		}
		m.ifcMu.Unlock()
	}
}

// LastBuild reports the document set produced by the most recent Startup.
func (m *Manager) LastBuild() *document.Result { return m.lastBuild }

func (m *Manager) authoritative() bool {
	if m.cfg.Master {
		return true
	}
	for _, s := range m.cfg.Servers {
		if !s.Local && s.Connected {
			return false
		}
	}
	// Single-server runs are always authoritative.
	return true
}

func (m *Manager) interfaceCount(server string) int {
	m.ifcMu.Lock()
	defer m.ifcMu.Unlock()
	return m.ifcCounts[server]
}

func (m *Manager) eventGenerate() bool {
	if m.cfg.EventGenerate != nil {
		return *m.cfg.EventGenerate
	}
	return !m.cfg.EventMonitor
}

// checkEventConfig validates the event-service group. A malformed
// group:port pair disables the event subsystem for this run and nothing
// else: startup continues.
func (m *Manager) checkEventConfig(ctx context.Context) {
	group := m.globalValue("eventservicegroup")
	host, port, ok := strings.Cut(group, ":")
	if !ok || host == "" || port == "" {
		m.log.Error(ctx, "invalid event service group, disabling event subsystem",
			logging.String("group", group))
		m.eventsOff = true
		return
	}
	if _, err := strconv.Atoi(port); err != nil {
		m.log.Error(ctx, "invalid event service port, disabling event subsystem",
			logging.String("group", group))
		m.eventsOff = true
	}
}

// startEventLoop opens the event transport and starts the monitor. Every
// failure path here is logged and non-fatal.
func (m *Manager) startEventLoop(ctx context.Context) {
	if !m.cfg.EventMonitor || m.eventsOff || m.transports == nil {
		m.log.Debug(ctx, "event monitoring not enabled for this run")
		return
	}
	group := m.globalValue("eventservicegroup")
	device := m.globalValue("eventservicedevice")
	if m.lastBuild != nil && !m.lastBuild.CustomEventService {
		// No descriptor was emitted for this run, so the event subsystem
		// runs on the defaults regardless of later config pushes.
		group = rfmodel.GlobalDefaults()[rfmodel.OptionEventServiceGroup]
		device = rfmodel.GlobalDefaults()[rfmodel.OptionEventServiceDevice]
	}
	transport, err := m.transports(ctx, group, device)
	if err != nil {
		m.log.Error(ctx, "failed to open event transport, monitoring disabled",
			logging.String("group", group), logging.Any("error", err))
		return
	}
	if err := m.loop.Start(ctx, transport); err != nil {
		m.log.Error(ctx, "failed to start event loop", logging.Any("error", err))
	}
}

// allocatePorts hands a local endpoint port pair to every NEM assigned
// during the build, advancing the run's platform and transform counters.
func (m *Manager) allocatePorts(ctx context.Context, result *document.Result) {
	for _, nem := range result.NEMs {
		m.log.Debug(ctx, "endpoint ports",
			logging.Int("nem", int(nem.NEMID)),
			logging.Int("platform_port", m.platformPort),
			logging.Int("transform_port", m.transformPort))
		m.platformPort++
		m.transformPort++
	}
}

func (m *Manager) writeSummary(result *document.Result) error {
	var b strings.Builder
	for _, nem := range result.NEMs {
		fmt.Fprintf(&b, "%s %s %d\n", nem.HostNode, nem.Interface, nem.NEMID)
	}
	path := filepath.Join(m.cfg.RunDir, SummaryFileName)
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// assignDefaultModels gives the default technology to any node registered
// without one.
func (m *Manager) assignDefaultModels(ctx context.Context) error {
	def, err := m.models.Get(DefaultModelName)
	if err != nil {
		return err
	}
	for _, node := range m.registry.NodesSorted() {
		if node.Model == nil {
			node.Model = def
			m.log.Info(ctx, "assigned default model",
				logging.Int("node", node.ID), logging.String("model", def.Name()))
		}
	}
	return nil
}

func (m *Manager) globalValue(id string) string {
	if v := m.store.Value(config.GlobalOwner, rfmodel.GlobalName, id); v != "" {
		return v
	}
	return rfmodel.GlobalDefaults()[id]
}

// controlBridge names the bridge device raw-transport platform documents
// are pointed at, derived from the OTA device's control network index.
func (m *Manager) controlBridge() string {
	dev := m.globalValue("otamanagerdevice")
	idx := controlDeviceIndex(dev)
	if idx < 0 {
		return ""
	}
	name := m.cfg.LocalServer.Name
	if name == "" {
		name = "local"
	}
	return fmt.Sprintf("b.%d.%s", idx, name)
}

// controlDeviceIndex parses a control device name of the form ctrl<N>
// into its control-network index, returning -1 for anything else.
func controlDeviceIndex(device string) int {
	rest, ok := strings.CutPrefix(device, "ctrl")
	if !ok || rest == "" {
		return -1
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 {
		return -1
	}
	return idx
}

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/bus"
	"github.com/meshworks/radio-orchestrator/internal/config"
	"github.com/meshworks/radio-orchestrator/internal/eventloop"
	"github.com/meshworks/radio-orchestrator/model"
	"github.com/meshworks/radio-orchestrator/rfmodel"
)

type fakeDevices struct {
	installed []string
}

func (d *fakeDevices) EnsureControlInterface(context.Context, *core.HostNode, string) error {
	return nil
}
func (d *fakeDevices) AddMulticastRoute(context.Context, *core.HostNode, string, string) error {
	return nil
}
func (d *fakeDevices) Install(_ context.Context, ni *core.NetworkInterface) error {
	d.installed = append(d.installed, ni.Name)
	return nil
}
func (d *fakeDevices) Uninstall(context.Context, *core.NetworkInterface) error { return nil }

type fakeRunner struct {
	nodeStarts int
	hostStarts int
}

func (r *fakeRunner) StartNodeDaemon(context.Context, *core.HostNode, []string) error {
	r.nodeStarts++
	return nil
}
func (r *fakeRunner) StopNodeDaemon(context.Context, *core.HostNode) error { return nil }
func (r *fakeRunner) StartHostDaemon(context.Context, []string) error {
	r.hostStarts++
	return nil
}
func (r *fakeRunner) StopHostDaemons(context.Context) error { return nil }

type publishedLocation struct {
	nem uint16
	pt  model.GeoPoint
}

type fakePublisher struct {
	locations []publishedLocation
}

func (p *fakePublisher) PublishLocation(_ context.Context, nem uint16, pt model.GeoPoint) error {
	p.locations = append(p.locations, publishedLocation{nem: nem, pt: pt})
	return nil
}

type scenarioCounts struct {
	nodes, nems, daemons int
}

type fakeMetrics struct {
	last scenarioCounts
}

func (m *fakeMetrics) SetScenarioCounts(nodes, nems, daemons int) {
	m.last = scenarioCounts{nodes: nodes, nems: nems, daemons: daemons}
}

func newTestManager(t *testing.T, cfg Config, deps *Deps) (*Manager, *fakeDevices, *fakeRunner) {
	t.Helper()
	devices := &fakeDevices{}
	runner := &fakeRunner{}
	if deps == nil {
		deps = &Deps{}
	}
	deps.Devices = devices
	deps.Runner = runner
	if cfg.RunDir == "" {
		cfg.RunDir = t.TempDir()
	}
	if cfg.LocalServer.Name == "" {
		cfg.LocalServer = model.ServerRef{Name: "local", Local: true, Connected: true}
		cfg.Servers = []model.ServerRef{cfg.LocalServer}
	}
	return New(cfg, *deps), devices, runner
}

func addNodeWithHosts(t *testing.T, m *Manager, id int, hostIDs ...int) *core.RadioNode {
	t.Helper()
	node, err := m.AddNode(context.Background(), id, "wlan", "rfpipe")
	if err != nil {
		t.Fatal(err)
	}
	for _, hid := range hostIDs {
		node.AttachInterface(&core.NetworkInterface{
			Name:      "eth0",
			Index:     0,
			Node:      &core.HostNode{ID: hid, Name: nodeName(hid), Server: "local"},
			Transport: model.TransportVirtual,
		})
	}
	return node
}

func nodeName(id int) string { return "n" + string(rune('0'+id%10)) }

func TestAddNodeRejectsDuplicateAndUnknownModel(t *testing.T) {
	m, _, _ := newTestManager(t, Config{}, nil)
	ctx := context.Background()

	if _, err := m.AddNode(ctx, 1, "wlan1", ""); err != nil {
		t.Fatalf("default model add failed: %v", err)
	}
	if _, err := m.AddNode(ctx, 1, "wlan1", ""); !errors.Is(err, core.ErrDuplicateNode) {
		t.Errorf("expected ErrDuplicateNode, got %v", err)
	}
	if _, err := m.AddNode(ctx, 2, "wlan2", "no-such-model"); !errors.Is(err, rfmodel.ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

func TestSetupNotNeededWithoutNodes(t *testing.T) {
	m, _, _ := newTestManager(t, Config{}, nil)
	status, err := m.Setup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status != NotNeeded {
		t.Errorf("expected NotNeeded, got %v", status)
	}
}

func TestSetupNotReadyOnBadControlDevice(t *testing.T) {
	m, _, _ := newTestManager(t, Config{}, nil)
	addNodeWithHosts(t, m, 1, 5)

	m.Store().SetValue(config.GlobalOwner, rfmodel.GlobalName, "otamanagerdevice", "eth0")
	status, err := m.Setup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status != NotReady {
		t.Errorf("expected NotReady for a non-control OTA device, got %v", status)
	}
}

func TestStartupWritesSummaryAndStartsDaemons(t *testing.T) {
	metrics := &fakeMetrics{}
	m, devices, runner := newTestManager(t, Config{}, &Deps{Metrics: metrics})
	node := addNodeWithHosts(t, m, 1, 5, 6)

	status, err := m.Startup(context.Background())
	if err != nil {
		t.Fatalf("startup failed: %v", err)
	}
	if status != Success {
		t.Fatalf("expected Success, got %v", status)
	}

	// Sequential ids from the default start.
	ifaces := node.Interfaces()
	id0, _ := ifaces[0].NEMID()
	id1, _ := ifaces[1].NEMID()
	if id0 != 1 || id1 != 2 {
		t.Errorf("expected NEM ids [1 2], got [%d %d]", id0, id1)
	}

	data, err := os.ReadFile(filepath.Join(m.cfg.RunDir, SummaryFileName))
	if err != nil {
		t.Fatalf("expected summary file: %v", err)
	}
	want := "n5 eth0 1\nn6 eth0 2\n"
	if string(data) != want {
		t.Errorf("summary mismatch:\n got %q\nwant %q", data, want)
	}

	if runner.nodeStarts != 2 {
		t.Errorf("expected 2 node daemons, got %d", runner.nodeStarts)
	}
	if len(devices.installed) != 2 {
		t.Errorf("expected 2 installed interfaces, got %v", devices.installed)
	}
	if metrics.last != (scenarioCounts{nodes: 1, nems: 2, daemons: 2}) {
		t.Errorf("unexpected metrics: %+v", metrics.last)
	}
}

func TestStartupMalformedEventGroupOnlyDisablesEvents(t *testing.T) {
	m, _, runner := newTestManager(t, Config{EventMonitor: true}, nil)
	addNodeWithHosts(t, m, 1, 5)
	m.Store().SetValue(config.GlobalOwner, rfmodel.GlobalName, "eventservicegroup", "not-a-group")

	status, err := m.Startup(context.Background())
	if err != nil {
		t.Fatalf("startup must survive a malformed event group: %v", err)
	}
	if status != Success {
		t.Fatalf("expected Success, got %v", status)
	}
	if !m.eventsOff {
		t.Errorf("expected the event subsystem disabled")
	}
	if runner.nodeStarts != 1 {
		t.Errorf("daemon start must proceed, got %d starts", runner.nodeStarts)
	}
}

func TestPostStartupReplaysPositions(t *testing.T) {
	pub := &fakePublisher{}
	gen := true
	m, _, _ := newTestManager(t, Config{EventGenerate: &gen}, &Deps{Publisher: pub})
	node := addNodeWithHosts(t, m, 1, 5)
	node.Interfaces()[0].Node.SetPosition(model.Position{X: 100, Y: 0, Z: 10})

	if status, err := m.Startup(context.Background()); err != nil || status != Success {
		t.Fatalf("startup: status=%v err=%v", status, err)
	}
	if err := m.PostStartup(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(pub.locations) != 1 {
		t.Fatalf("expected one replayed location, got %d", len(pub.locations))
	}
	if pub.locations[0].nem != 1 {
		t.Errorf("expected NEM 1, got %d", pub.locations[0].nem)
	}
	if pub.locations[0].pt.Alt != 10 {
		t.Errorf("expected altitude 10 back through the transform, got %v", pub.locations[0].pt.Alt)
	}
}

func TestPostStartupSkipsReplayWhenGenerationOff(t *testing.T) {
	pub := &fakePublisher{}
	m, _, _ := newTestManager(t, Config{EventMonitor: true}, &Deps{Publisher: pub})
	addNodeWithHosts(t, m, 1, 5)

	if status, err := m.Startup(context.Background()); err != nil || status != Success {
		t.Fatalf("startup: status=%v err=%v", status, err)
	}
	if err := m.PostStartup(context.Background()); err != nil {
		t.Fatal(err)
	}
	// EventGenerate defaults to the inverse of EventMonitor.
	if len(pub.locations) != 0 {
		t.Errorf("expected no replay with monitoring on, got %d", len(pub.locations))
	}
}

func TestHandleMessageConfigPush(t *testing.T) {
	m, _, _ := newTestManager(t, Config{}, nil)

	m.HandleMessage(bus.Message{
		Type: bus.MessageConfigUpdate,
		Config: &bus.ConfigUpdate{
			Source: rfmodel.GlobalName,
			Values: map[string]string{"platform_id_start": "4", "nem_id_start": "9"},
		},
	})
	if got := m.Store().Value(config.GlobalOwner, rfmodel.GlobalName, "platform_id_start"); got != "4" {
		t.Errorf("expected pushed platform_id_start=4, got %q", got)
	}

	// Pushes for other managers are ignored.
	m.HandleMessage(bus.Message{
		Type:   bus.MessageConfigUpdate,
		Config: &bus.ConfigUpdate{Source: "other", Values: map[string]string{"platform_id_start": "77"}},
	})
	if got := m.Store().Value(config.GlobalOwner, rfmodel.GlobalName, "platform_id_start"); got != "4" {
		t.Errorf("foreign push applied: %q", got)
	}
}

func TestHandleMessageLinkAddCountsRecognizedNodesOnly(t *testing.T) {
	m, _, _ := newTestManager(t, Config{}, nil)
	addNodeWithHosts(t, m, 1, 5)

	m.HandleMessage(bus.Message{
		Type: bus.MessageLinkAdded,
		Link: &bus.LinkAdded{LinkNode: 1, PeerNode: 9, Servers: []string{"alpha"}},
	})
	if got := m.interfaceCount("alpha"); got != 1 {
		t.Errorf("expected alpha count 1, got %d", got)
	}

	// Unrecognized first endpoint: no counting.
	m.HandleMessage(bus.Message{
		Type: bus.MessageLinkAdded,
		Link: &bus.LinkAdded{LinkNode: 42, PeerNode: 9, Servers: []string{"alpha"}},
	})
	if got := m.interfaceCount("alpha"); got != 1 {
		t.Errorf("expected count unchanged for unknown node, got %d", got)
	}
}

func TestResetKeepsInterfaceCountsAndRestoresPorts(t *testing.T) {
	m, _, _ := newTestManager(t, Config{}, nil)
	addNodeWithHosts(t, m, 1, 5)
	m.HandleMessage(bus.Message{
		Type: bus.MessageLinkAdded,
		Link: &bus.LinkAdded{LinkNode: 1, Servers: []string{"alpha"}},
	})

	if status, err := m.Startup(context.Background()); err != nil || status != Success {
		t.Fatalf("startup: status=%v err=%v", status, err)
	}
	if m.platformPort == DefaultPlatformPortStart {
		t.Fatalf("expected the platform port counter to advance")
	}

	m.Reset(context.Background())
	if m.registry.Len() != 0 {
		t.Errorf("expected registry cleared")
	}
	if m.platformPort != DefaultPlatformPortStart || m.transformPort != DefaultTransformPortStart {
		t.Errorf("expected port counters restored, got %d/%d", m.platformPort, m.transformPort)
	}
	if got := m.interfaceCount("alpha"); got != 1 {
		t.Errorf("reset must keep per-server interface counts, got %d", got)
	}

	m.Shutdown(context.Background())
	if got := m.interfaceCount("alpha"); got != 0 {
		t.Errorf("shutdown must clear per-server interface counts, got %d", got)
	}
}

func TestSlaveDeferredThenReadyAfterPush(t *testing.T) {
	// This instance is server b; the authoritative peer a is connected.
	local := model.ServerRef{Name: "b", Local: true, Connected: true}
	cfg := Config{
		LocalServer: local,
		Servers: []model.ServerRef{
			{Name: "a", Connected: true},
			local,
		},
	}

	m, _, _ := newTestManager(t, cfg, nil)
	addNodeWithHosts(t, m, 1, 5)

	status, err := m.Setup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status != NotReady {
		t.Fatalf("expected NotReady before the authoritative push, got %v", status)
	}

	m.HandleMessage(bus.Message{
		Type: bus.MessageConfigUpdate,
		Config: &bus.ConfigUpdate{
			Source: rfmodel.GlobalName,
			Values: map[string]string{"platform_id_start": "2", "nem_id_start": "3"},
		},
	})
	status, err = m.Setup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status != Success {
		t.Errorf("expected Success after push, got %v", status)
	}
}

func recordingTransportFactory(opened *[]string) TransportFactory {
	return func(_ context.Context, group, device string) (eventloop.Transport, error) {
		*opened = append(*opened, group+" "+device)
		return nil, errors.New("transport unavailable")
	}
}

func TestStartEventLoopFallsBackToDefaultEventConfig(t *testing.T) {
	var opened []string
	m, _, _ := newTestManager(t, Config{EventMonitor: true},
		&Deps{Transports: recordingTransportFactory(&opened)})
	addNodeWithHosts(t, m, 5, 10)
	ctx := context.Background()

	if status, err := m.Startup(ctx); err != nil || status != Success {
		t.Fatalf("startup: status=%v err=%v", status, err)
	}
	if len(opened) != 1 || opened[0] != "224.1.2.8:45703 ctrl0" {
		t.Fatalf("expected the default event endpoint, got %v", opened)
	}

	// A group pushed after the documents were built cannot move the
	// monitor: no descriptor was emitted for this run, so the subsystem
	// stays on the defaults.
	m.HandleMessage(bus.Message{
		Type: bus.MessageConfigUpdate,
		Config: &bus.ConfigUpdate{
			Source: rfmodel.GlobalName,
			Values: map[string]string{rfmodel.OptionEventServiceGroup: "225.9.9.9:9999"},
		},
	})
	m.startEventLoop(ctx)
	if len(opened) != 2 || opened[1] != "224.1.2.8:45703 ctrl0" {
		t.Errorf("expected defaults without a custom descriptor, got %v", opened)
	}
}

func TestStartEventLoopHonorsCustomEventConfig(t *testing.T) {
	var opened []string
	m, _, _ := newTestManager(t, Config{EventMonitor: true},
		&Deps{Transports: recordingTransportFactory(&opened)})
	addNodeWithHosts(t, m, 5, 10)
	m.Store().Set(config.GlobalOwner, rfmodel.GlobalName,
		map[string]string{rfmodel.OptionEventServiceGroup: "225.5.5.5:9999"})

	if status, err := m.Startup(context.Background()); err != nil || status != Success {
		t.Fatalf("startup: status=%v err=%v", status, err)
	}
	if !m.LastBuild().CustomEventService {
		t.Fatalf("expected a custom event-service descriptor for this run")
	}
	if len(opened) != 1 || opened[0] != "225.5.5.5:9999 ctrl0" {
		t.Errorf("expected the configured event endpoint, got %v", opened)
	}
}

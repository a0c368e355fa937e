package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/config"
	"github.com/meshworks/radio-orchestrator/model"
)

var builderDefaults = map[string]string{
	"platform_id_start":  "1",
	"nem_id_start":       "1",
	"otamanagergroup":    "224.1.2.8:45702",
	"otamanagerdevice":   "ctrl0",
	"eventservicegroup":  "224.1.2.8:45703",
	"eventservicedevice": "ctrl0",
}

var builderDocOptions = []model.Option{
	{ID: "otamanagergroup", Default: "224.1.2.8:45702"},
	{ID: "otamanagerdevice", Default: "ctrl0"},
	{ID: "eventservicegroup", Default: "224.1.2.8:45703"},
	{ID: "eventservicedevice", Default: "ctrl0"},
	{ID: "nem_id_start", Default: "1"},
}

// stubModel satisfies core.Model with a no-op document build, keeping the
// builder tests focused on platform-document assembly.
type stubModel struct {
	name   string
	builds int
}

func (m *stubModel) Name() string                      { return m.name }
func (m *stubModel) Configurations() []model.Option    { return nil }
func (m *stubModel) ConfigGroups() []model.OptionGroup { return nil }
func (m *stubModel) PostStartup(*core.RadioNode) error { return nil }
func (m *stubModel) BuildDocuments(dir string, node *core.RadioNode, _ map[string]string) error {
	m.builds++
	return os.WriteFile(filepath.Join(dir, NEMFileName(m.name, node.ID)), []byte("<nem/>\n"), 0o644)
}
func (m *stubModel) LinkConfig(*core.NetworkInterface, model.LinkOptions, *core.NetworkInterface) error {
	return nil
}

func newTestRegistry(t *testing.T, transport model.TransportType) *core.Registry {
	t.Helper()
	reg := core.NewRegistry()
	node := core.NewRadioNode(1, "wlan1")
	node.Model = &stubModel{name: "rfpipe"}
	h1 := &core.HostNode{ID: 10, Name: "n10"}
	h2 := &core.HostNode{ID: 11, Name: "n11"}
	node.AttachInterface(&core.NetworkInterface{Name: "eth0", Index: 0, Node: h1, Transport: transport})
	node.AttachInterface(&core.NetworkInterface{Name: "eth0", Index: 0, Node: h2, Transport: transport})
	if err := reg.Add(node); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestBuildAssignsSequentialNEMIDs(t *testing.T) {
	dir := t.TempDir()
	store := config.NewSessionStore()
	b := NewBuilder(store, dir, "platform", builderDocOptions, builderDefaults, nil)

	reg := newTestRegistry(t, model.TransportVirtual)
	result, err := b.Build(context.Background(), reg, "")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if len(result.NEMs) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(result.NEMs))
	}
	if result.NEMs[0].NEMID != 1 || result.NEMs[1].NEMID != 2 {
		t.Errorf("expected NEM ids [1 2], got [%d %d]", result.NEMs[0].NEMID, result.NEMs[1].NEMID)
	}
	// Interfaces are visited in ascending host-node-id order.
	if result.NEMs[0].HostNode != "n10" || result.NEMs[1].HostNode != "n11" {
		t.Errorf("unexpected assignment order: %+v", result.NEMs)
	}

	// One platform document per host, no synthetic host document.
	for _, name := range []string{"platform10.xml", "platform11.xml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "platform.xml")); err == nil {
		t.Errorf("did not expect a host platform document for virtual transport")
	}
}

func TestBuildHonorsNEMIDStart(t *testing.T) {
	dir := t.TempDir()
	store := config.NewSessionStore()
	store.SetValue(config.GlobalOwner, "platform", "nem_id_start", "100")
	b := NewBuilder(store, dir, "platform", builderDocOptions, builderDefaults, nil)

	reg := newTestRegistry(t, model.TransportVirtual)
	result, err := b.Build(context.Background(), reg, "")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if result.NEMs[0].NEMID != 100 || result.NEMs[1].NEMID != 101 {
		t.Errorf("expected NEM ids [100 101], got [%d %d]", result.NEMs[0].NEMID, result.NEMs[1].NEMID)
	}
}

func TestBuildRawTransportGroupsIntoHostDocument(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(config.NewSessionStore(), dir, "platform", builderDocOptions, builderDefaults, nil)

	reg := newTestRegistry(t, model.TransportRaw)
	result, err := b.Build(context.Background(), reg, "b.0.local")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(result.NEMs) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(result.NEMs))
	}

	data, err := os.ReadFile(filepath.Join(dir, "platform.xml"))
	if err != nil {
		t.Fatalf("expected synthetic host document: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `name="otamanagerdevice" value="b.0.local"`) {
		t.Errorf("host document should override the OTA device:\n%s", content)
	}
	if !strings.Contains(content, `name="eventservicedevice" value="b.0.local"`) {
		t.Errorf("host document should override the event device:\n%s", content)
	}
	if strings.Count(content, "<nem") != 2 {
		t.Errorf("expected both raw NEMs in one host document:\n%s", content)
	}
	for _, name := range []string{"platform10.xml", "platform11.xml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			t.Errorf("did not expect per-host document %s for raw transport", name)
		}
	}
}

func TestBuildIsIdempotentAcrossRebuild(t *testing.T) {
	dir := t.TempDir()
	store := config.NewSessionStore()
	b := NewBuilder(store, dir, "platform", builderDocOptions, builderDefaults, nil)

	reg := newTestRegistry(t, model.TransportVirtual)
	if _, err := b.Build(context.Background(), reg, ""); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "platform10.xml"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Build(context.Background(), reg, ""); err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "platform10.xml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("rebuild produced different documents:\n--- first\n%s\n--- second\n%s", first, second)
	}
}

func TestBuildWritesEventServiceDocOnlyWhenChanged(t *testing.T) {
	dir := t.TempDir()
	store := config.NewSessionStore()
	b := NewBuilder(store, dir, "platform", builderDocOptions, builderDefaults, nil)

	reg := newTestRegistry(t, model.TransportVirtual)
	result, err := b.Build(context.Background(), reg, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.CustomEventService {
		t.Errorf("default event config should not emit a descriptor")
	}

	store.SetValue(config.GlobalOwner, "platform", "eventservicegroup", "225.5.5.5:9999")
	result, err = b.Build(context.Background(), reg, "")
	if err != nil {
		t.Fatal(err)
	}
	if !result.CustomEventService {
		t.Fatalf("expected a custom event-service descriptor")
	}
	data, err := os.ReadFile(filepath.Join(dir, EventServiceFileName))
	if err != nil {
		t.Fatalf("expected %s: %v", EventServiceFileName, err)
	}
	if !strings.Contains(string(data), "<group>225.5.5.5</group>") ||
		!strings.Contains(string(data), "<port>9999</port>") {
		t.Errorf("unexpected descriptor contents:\n%s", data)
	}
}

func TestBuildMalformedEventGroupDisablesDescriptorOnly(t *testing.T) {
	dir := t.TempDir()
	store := config.NewSessionStore()
	store.SetValue(config.GlobalOwner, "platform", "eventservicegroup", "no-port-here")
	b := NewBuilder(store, dir, "platform", builderDocOptions, builderDefaults, nil)

	reg := newTestRegistry(t, model.TransportVirtual)
	result, err := b.Build(context.Background(), reg, "")
	if err != nil {
		t.Fatalf("malformed event group must not fail the build: %v", err)
	}
	if result.CustomEventService {
		t.Errorf("malformed group should leave the event subsystem at defaults")
	}
	if _, err := os.Stat(filepath.Join(dir, EventServiceFileName)); err == nil {
		t.Errorf("no descriptor should be written for a malformed group")
	}
}

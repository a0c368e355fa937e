package installer

import (
	"context"
	"errors"
	"testing"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/model"
)

type fakeDevices struct {
	installed   []string
	uninstalled []string
	failOn      string
}

func (d *fakeDevices) Install(_ context.Context, ni *core.NetworkInterface) error {
	if ni.Name == d.failOn {
		return errors.New("device busy")
	}
	d.installed = append(d.installed, ni.Name)
	return nil
}

func (d *fakeDevices) Uninstall(_ context.Context, ni *core.NetworkInterface) error {
	if ni.Name == d.failOn {
		return errors.New("device busy")
	}
	d.uninstalled = append(d.uninstalled, ni.Name)
	return nil
}

func testRegistry(t *testing.T) *core.Registry {
	t.Helper()
	reg := core.NewRegistry()

	a := core.NewRadioNode(2, "wlan2")
	a.AttachInterface(&core.NetworkInterface{
		Name: "veth2", Index: 0,
		Node: &core.HostNode{ID: 20}, Transport: model.TransportVirtual,
	})
	b := core.NewRadioNode(1, "wlan1")
	b.AttachInterface(&core.NetworkInterface{
		Name: "veth1", Index: 0,
		Node: &core.HostNode{ID: 10}, Transport: model.TransportVirtual,
	})
	b.AttachInterface(&core.NetworkInterface{
		Name: "raw1", Index: 1,
		Node: &core.HostNode{ID: 11}, Transport: model.TransportRaw,
	})

	for _, n := range []*core.RadioNode{a, b} {
		if err := reg.Add(n); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func TestInstallAllSkipsRawAndOrdersByNodeID(t *testing.T) {
	devices := &fakeDevices{}
	in := New(devices, nil)

	if err := in.InstallAll(context.Background(), testRegistry(t)); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if len(devices.installed) != 2 {
		t.Fatalf("expected 2 installs (raw skipped), got %v", devices.installed)
	}
	// Node 1 before node 2.
	if devices.installed[0] != "veth1" || devices.installed[1] != "veth2" {
		t.Errorf("unexpected install order: %v", devices.installed)
	}
}

func TestInstallAllSurfacesFailure(t *testing.T) {
	devices := &fakeDevices{failOn: "veth1"}
	in := New(devices, nil)

	if err := in.InstallAll(context.Background(), testRegistry(t)); err == nil {
		t.Fatalf("expected install failure to surface")
	}
}

func TestUninstallAllIsBestEffort(t *testing.T) {
	devices := &fakeDevices{failOn: "veth1"}
	in := New(devices, nil)

	in.UninstallAll(context.Background(), testRegistry(t))
	// veth1 fails, veth2 is still detached, raw1 skipped.
	if len(devices.uninstalled) != 1 || devices.uninstalled[0] != "veth2" {
		t.Errorf("expected teardown to continue past the failure, got %v", devices.uninstalled)
	}
}

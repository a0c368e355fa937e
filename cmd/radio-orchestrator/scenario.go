package main

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/meshworks/radio-orchestrator/model"
)

// Scenario is the on-disk description of one emulation run: the servers
// taking part, the radio nodes with their interface attachments, and any
// platform or model option overrides.
type Scenario struct {
	LogLevel     int   `yaml:"log_level"`
	Realtime     bool  `yaml:"realtime"`
	EventMonitor bool  `yaml:"event_monitor"`
	EventGen     *bool `yaml:"event_generate"`

	// Master marks this instance as the authoritative side of id
	// negotiation in a distributed run.
	Master bool `yaml:"master"`

	Transform string    `yaml:"transform"` // planar (default) or ecef
	Reference Reference `yaml:"reference"`

	Options map[string]string `yaml:"options"`
	Servers []ServerEntry     `yaml:"servers"`
	Nodes   []NodeEntry       `yaml:"nodes"`
}

// Reference anchors the local coordinate plane.
type Reference struct {
	Lat   float64 `yaml:"lat"`
	Lon   float64 `yaml:"lon"`
	Alt   float64 `yaml:"alt"`
	Scale float64 `yaml:"scale"`
}

type ServerEntry struct {
	Name      string `yaml:"name"`
	Addr      string `yaml:"addr"`
	Local     bool   `yaml:"local"`
	Connected bool   `yaml:"connected"`
}

type NodeEntry struct {
	ID         int               `yaml:"id"`
	Name       string            `yaml:"name"`
	Model      string            `yaml:"model"`
	Config     map[string]string `yaml:"config"`
	Interfaces []InterfaceEntry  `yaml:"interfaces"`
}

type InterfaceEntry struct {
	HostID    int    `yaml:"host_id"`
	HostName  string `yaml:"host_name"`
	NSPath    string `yaml:"ns_path"`
	Name      string `yaml:"name"`
	Index     int    `yaml:"index"`
	Transport string `yaml:"transport"` // virtual (default) or raw
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	locals := 0
	for _, s := range sc.Servers {
		if s.Name == "" {
			return fmt.Errorf("server entry missing name")
		}
		if s.Local {
			locals++
		}
	}
	if len(sc.Servers) > 0 && locals != 1 {
		return fmt.Errorf("exactly one server must be marked local, got %d", locals)
	}
	for _, n := range sc.Nodes {
		if n.ID <= 0 {
			return fmt.Errorf("node %q has invalid id %d", n.Name, n.ID)
		}
		for _, ni := range n.Interfaces {
			switch ni.Transport {
			case "", "virtual", "raw":
			default:
				return fmt.Errorf("node %d interface %q: unknown transport %q", n.ID, ni.Name, ni.Transport)
			}
		}
	}
	return nil
}

// ServerRefs converts the configured servers, defaulting to a single
// local server when none are listed.
func (sc *Scenario) ServerRefs() (local model.ServerRef, all []model.ServerRef) {
	if len(sc.Servers) == 0 {
		local = model.ServerRef{Name: "local", Local: true, Connected: true}
		return local, []model.ServerRef{local}
	}
	for _, s := range sc.Servers {
		ref := model.ServerRef{Name: s.Name, Addr: s.Addr, Local: s.Local, Connected: s.Connected}
		if s.Local {
			local = ref
		}
		all = append(all, ref)
	}
	return local, all
}

func (sc *Scenario) transportKind(raw string) model.TransportType {
	if raw == "raw" {
		return model.TransportRaw
	}
	return model.TransportVirtual
}

// Package document generates the per-run configuration documents the
// external radio-emulation daemons consume: platform documents, per-node
// NEM/MAC/PHY definitions, and the optional event-service descriptor.
package document

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/meshworks/radio-orchestrator/model"
)

// Param is a name/value parameter element shared by every document kind.
type Param struct {
	XMLName xml.Name `xml:"param"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

type definitionRef struct {
	Definition string `xml:"definition,attr"`
}

type nemDoc struct {
	XMLName   xml.Name       `xml:"nem"`
	Name      string         `xml:"name,attr"`
	Transport definitionRef  `xml:"transport"`
	MAC       *definitionRef `xml:"mac,omitempty"`
	PHY       *definitionRef `xml:"phy,omitempty"`
	Shim      *definitionRef `xml:"shim,omitempty"`
}

type layerDoc struct {
	XMLName xml.Name
	Name    string  `xml:"name,attr"`
	Library string  `xml:"library,attr"`
	Params  []Param `xml:"param"`
}

type eventServiceDoc struct {
	XMLName xml.Name `xml:"emaneeventmsgsvc"`
	Group   string   `xml:"group"`
	Port    string   `xml:"port"`
	Device  string   `xml:"device"`
	MCLoop  string   `xml:"mcloop"`
	TTL     string   `xml:"ttl"`
}

// NEMFileName returns the per-node NEM document name.
func NEMFileName(modelName string, nodeID int) string {
	return fmt.Sprintf("%s%dnem.xml", modelName, nodeID)
}

// MACFileName returns the per-node MAC document name.
func MACFileName(modelName string, nodeID int) string {
	return fmt.Sprintf("%s%dmac.xml", modelName, nodeID)
}

// PHYFileName returns the per-node PHY document name.
func PHYFileName(modelName string, nodeID int) string {
	return fmt.Sprintf("%s%dphy.xml", modelName, nodeID)
}

// ShimFileName returns the per-node shim document name for shim-only models.
func ShimFileName(modelName string, nodeID int) string {
	return fmt.Sprintf("%s%dshim.xml", modelName, nodeID)
}

// TransportFileName returns the transport definition referenced from NEM
// documents for the given transport kind.
func TransportFileName(kind model.TransportType) string {
	if kind == model.TransportRaw {
		return "transraw.xml"
	}
	return "transvirtual.xml"
}

// WriteNEM writes a NEM document referencing a MAC/PHY definition pair.
func WriteNEM(dir, name, nodeName string, transport model.TransportType, macDef, phyDef string) error {
	doc := nemDoc{
		Name:      nodeName,
		Transport: definitionRef{Definition: TransportFileName(transport)},
		MAC:       &definitionRef{Definition: macDef},
		PHY:       &definitionRef{Definition: phyDef},
	}
	return writeDoc(dir, name, "nem", doc)
}

// WriteShimNEM writes a NEM document referencing a single shim definition.
func WriteShimNEM(dir, name, nodeName string, transport model.TransportType, shimDef string) error {
	doc := nemDoc{
		Name:      nodeName,
		Transport: definitionRef{Definition: TransportFileName(transport)},
		Shim:      &definitionRef{Definition: shimDef},
	}
	return writeDoc(dir, name, "nem", doc)
}

// WriteLayer writes a MAC, PHY, or shim layer document. Parameters are
// emitted in sorted id order so regeneration is byte-identical.
func WriteLayer(dir, name, kind, library string, params map[string]string) error {
	doc := layerDoc{
		XMLName: xml.Name{Local: kind},
		Name:    fmt.Sprintf("%s %s", library, kind),
		Library: library,
		Params:  sortedParams(params),
	}
	return writeDoc(dir, name, kind, doc)
}

// WriteEventService writes the event-service descriptor document.
func WriteEventService(dir, name, group, port, device string) error {
	doc := eventServiceDoc{
		Group:  group,
		Port:   port,
		Device: device,
		MCLoop: "1",
		TTL:    "32",
	}
	return writeDoc(dir, name, "emaneeventmsgsvc", doc)
}

func sortedParams(values map[string]string) []Param {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	params := make([]Param, 0, len(ids))
	for _, id := range ids {
		params = append(params, Param{Name: id, Value: values[id]})
	}
	return params
}

// writeDoc serializes v with the XML declaration and the DOCTYPE header
// the daemon's document parser expects.
func writeDoc(dir, name, doctype string, v any) error {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", doctype, err)
	}
	header := fmt.Sprintf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<!DOCTYPE %s SYSTEM \"file:///usr/share/emane/dtd/%s.dtd\">\n", doctype, doctype)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, append([]byte(header), append(body, '\n')...), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

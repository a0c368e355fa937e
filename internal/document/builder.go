package document

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/config"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/model"
)

// EventServiceFileName is the optional event-service descriptor artifact.
const EventServiceFileName = "libemaneeventservice.xml"

// hostKey groups every raw-transport interface into the single synthetic
// host platform document.
const hostKey = -1

// Assignment records one NEM id handed out during a build, for the
// summary file and for position replay after startup.
type Assignment struct {
	RadioNode string
	HostNode  string
	Interface string
	NEMID     uint16
}

// Result reports what a build produced.
type Result struct {
	NEMs  []Assignment
	Files []string

	// CustomEventService is true when an event-service descriptor was
	// emitted because group/device differ from defaults. When false the
	// event subsystem should be re-initialized to defaults.
	CustomEventService bool
}

// Builder turns the registered radio nodes and their resolved
// configuration into the document set for one run. Pure given resolved
// config and the negotiated starting NEM id.
type Builder struct {
	store      config.Store
	globalName string
	defaults   map[string]string
	docOptions []model.Option
	dir        string
	log        logging.Logger
}

// NewBuilder constructs a builder writing into dir. docOptions is the
// ordered option list emitted into every platform document; defaults are
// the global pseudo-model defaults used for change detection.
func NewBuilder(store config.Store, dir, globalName string, docOptions []model.Option, defaults map[string]string, log logging.Logger) *Builder {
	if log == nil {
		log = logging.Noop()
	}
	return &Builder{
		store:      store,
		globalName: globalName,
		defaults:   defaults,
		docOptions: docOptions,
		dir:        dir,
		log:        log,
	}
}

type platformNEMEntry struct {
	XMLName    xml.Name      `xml:"nem"`
	ID         uint16        `xml:"id,attr"`
	Name       string        `xml:"name,attr"`
	Definition string        `xml:"definition,attr"`
	Transport  definitionRef `xml:"transport"`
}

type platformDoc struct {
	XMLName xml.Name           `xml:"platform"`
	Params  []Param            `xml:"param"`
	NEMs    []platformNEMEntry `xml:"nem"`
}

// Build assigns NEM ids and writes every document for the current
// registry contents. controlBridge is the control network's bridge
// device, used as the OTA and event device override for the synthetic
// host document only.
func (b *Builder) Build(ctx context.Context, reg *core.Registry, controlBridge string) (*Result, error) {
	nemID, err := b.startingNEMID()
	if err != nil {
		return nil, err
	}

	globalValues := config.Merge(b.store, config.GlobalOwner, b.globalName, b.defaults)
	result := &Result{}
	docs := make(map[int]*platformDoc)

	for _, node := range reg.NodesSorted() {
		ifaces := append([]*core.NetworkInterface(nil), node.Interfaces()...)
		sort.SliceStable(ifaces, func(i, j int) bool {
			return ifaces[i].Node.ID < ifaces[j].Node.ID
		})

		for _, ni := range ifaces {
			key := ni.Node.ID
			if ni.Transport == model.TransportRaw {
				key = hostKey
			}

			doc, ok := docs[key]
			if !ok {
				doc = b.newPlatformDoc(globalValues, key == hostKey, controlBridge)
				docs[key] = doc
			}

			doc.NEMs = append(doc.NEMs, platformNEMEntry{
				ID:         nemID,
				Name:       fmt.Sprintf("%s %s", ni.Node.Name, ni.Name),
				Definition: NEMFileName(node.Model.Name(), node.ID),
				Transport:  definitionRef{Definition: TransportFileName(ni.Transport)},
			})

			ni.SetNEMID(nemID)
			result.NEMs = append(result.NEMs, Assignment{
				RadioNode: node.Name,
				HostNode:  ni.Node.Name,
				Interface: ni.Name,
				NEMID:     nemID,
			})
			b.log.Debug(ctx, "assigned nem id",
				logging.String("node", ni.Node.Name),
				logging.String("interface", ni.Name),
				logging.Int("nem", int(nemID)))
			nemID++
		}
	}

	if err := b.writePlatformDocs(docs, result); err != nil {
		return nil, err
	}
	if err := b.writeModelDocs(reg, result); err != nil {
		return nil, err
	}
	b.writeEventServiceDoc(ctx, result)
	return result, nil
}

func (b *Builder) startingNEMID() (uint16, error) {
	raw := b.store.Value(config.GlobalOwner, b.globalName, "nem_id_start")
	if raw == "" {
		raw = b.defaults["nem_id_start"]
	}
	start, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid nem_id_start %q: %w", raw, err)
	}
	return uint16(start), nil
}

// newPlatformDoc copies every global option except the starting platform
// id, which is run-scoped and never emitted. The host document overrides
// the OTA and event devices with the control bridge.
func (b *Builder) newPlatformDoc(globalValues map[string]string, host bool, controlBridge string) *platformDoc {
	doc := &platformDoc{}
	for _, opt := range b.docOptions {
		value, ok := globalValues[opt.ID]
		if !ok {
			value = opt.Default
		}
		if host && controlBridge != "" && (opt.ID == "otamanagerdevice" || opt.ID == "eventservicedevice") {
			value = controlBridge
		}
		doc.Params = append(doc.Params, Param{Name: opt.ID, Value: value})
	}
	return doc
}

func (b *Builder) writePlatformDocs(docs map[int]*platformDoc, result *Result) error {
	keys := make([]int, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	for _, key := range keys {
		name := "platform.xml"
		if key != hostKey {
			name = fmt.Sprintf("platform%d.xml", key)
		}
		if err := writeDoc(b.dir, name, "platform", docs[key]); err != nil {
			return err
		}
		result.Files = append(result.Files, name)
	}
	return nil
}

func (b *Builder) writeModelDocs(reg *core.Registry, result *Result) error {
	for _, node := range reg.NodesSorted() {
		ifaces := node.Interfaces()
		if len(ifaces) == 0 {
			continue
		}
		first := ifaces[0]
		cfg := config.ResolveInterface(b.store, node.Model.Name(), node.ID, first.Node.ID, first.Index,
			model.DefaultsOf(node.Model.Configurations()))
		if err := node.Model.BuildDocuments(b.dir, node, cfg); err != nil {
			return fmt.Errorf("build model documents for node %d: %w", node.ID, err)
		}
		result.Files = append(result.Files, NEMFileName(node.Model.Name(), node.ID))
	}
	return nil
}

// writeEventServiceDoc emits the event-service descriptor only when the
// configured group or device differ from defaults. A malformed group is a
// local, recoverable error: the descriptor is skipped and the event
// subsystem stays at defaults.
func (b *Builder) writeEventServiceDoc(ctx context.Context, result *Result) {
	group := config.Merge(b.store, config.GlobalOwner, b.globalName, b.defaults)["eventservicegroup"]
	device := config.Merge(b.store, config.GlobalOwner, b.globalName, b.defaults)["eventservicedevice"]
	if group == b.defaults["eventservicegroup"] && device == b.defaults["eventservicedevice"] {
		return
	}

	host, port, ok := strings.Cut(group, ":")
	if !ok || host == "" || port == "" {
		b.log.Error(ctx, "invalid event service group, leaving event subsystem at defaults",
			logging.String("group", group))
		return
	}

	if err := WriteEventService(b.dir, EventServiceFileName, host, port, device); err != nil {
		b.log.Error(ctx, "failed to write event service document", logging.Any("error", err))
		return
	}
	result.Files = append(result.Files, EventServiceFileName)
	result.CustomEventService = true
}

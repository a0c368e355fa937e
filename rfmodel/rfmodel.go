// Package rfmodel implements the radio-technology model variants the
// orchestrator can assign to a radio node, plus the registry that maps
// technology names to implementations.
package rfmodel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/document"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/model"
)

// ErrUnknownModel indicates a requested technology name has no registered
// implementation.
var ErrUnknownModel = fmt.Errorf("unknown radio model")

// Registry maps technology names to model implementations. Populated at
// startup from the built-in list; external implementations may register
// additional models before the first session starts.
type Registry struct {
	mu     sync.RWMutex
	models map[string]core.Model
}

// NewRegistry returns a registry seeded with the built-in models.
func NewRegistry(log logging.Logger) *Registry {
	if log == nil {
		log = logging.Noop()
	}
	r := &Registry{models: make(map[string]core.Model)}
	for _, m := range builtinModels(log) {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a model implementation under its name.
func (r *Registry) Register(m core.Model) {
	r.mu.Lock()
	r.models[m.Name()] = m
	r.mu.Unlock()
}

// Get returns the model registered under name.
func (r *Registry) Get(name string) (core.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Names returns the registered technology names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// baseModel carries the shared behaviour of the concrete technology
// variants: an option schema split into MAC and PHY spans, and document
// generation that emits the NEM/MAC/PHY triple.
type baseModel struct {
	name       string
	macLibrary string
	phyLibrary string
	macOptions []model.Option
	phyOptions []model.Option

	// shimLibrary, when set, marks a shim-only model: its NEM document
	// references a single shim definition instead of a MAC/PHY pair.
	shimLibrary string
	shimOptions []model.Option

	log logging.Logger
}

func (m *baseModel) Name() string { return m.name }

func (m *baseModel) Configurations() []model.Option {
	if m.shimLibrary != "" {
		return append([]model.Option(nil), m.shimOptions...)
	}
	opts := make([]model.Option, 0, len(m.macOptions)+len(m.phyOptions))
	opts = append(opts, m.macOptions...)
	opts = append(opts, m.phyOptions...)
	return opts
}

func (m *baseModel) ConfigGroups() []model.OptionGroup {
	if m.shimLibrary != "" {
		return []model.OptionGroup{{Name: "Shim Parameters", Start: 1, End: len(m.shimOptions)}}
	}
	macLen := len(m.macOptions)
	total := macLen + len(m.phyOptions)
	return []model.OptionGroup{
		{Name: "MAC Parameters", Start: 1, End: macLen},
		{Name: "PHY Parameters", Start: macLen + 1, End: total},
	}
}

// BuildDocuments writes the node's NEM, MAC, and PHY documents. The NEM
// document references the MAC/PHY definitions plus a transport definition
// chosen per interface transport kind.
func (m *baseModel) BuildDocuments(dir string, node *core.RadioNode, config map[string]string) error {
	transport := model.TransportVirtual
	for _, ni := range node.Interfaces() {
		if ni.Transport == model.TransportRaw {
			transport = model.TransportRaw
			break
		}
	}

	nemName := document.NEMFileName(m.name, node.ID)

	if m.shimLibrary != "" {
		shimName := document.ShimFileName(m.name, node.ID)
		if err := document.WriteShimNEM(dir, nemName, node.Name, transport, shimName); err != nil {
			return fmt.Errorf("write nem document for node %d: %w", node.ID, err)
		}
		if err := document.WriteLayer(dir, shimName, "shim", m.shimLibrary, pick(config, m.shimOptions)); err != nil {
			return fmt.Errorf("write shim document for node %d: %w", node.ID, err)
		}
		return nil
	}

	macName := document.MACFileName(m.name, node.ID)
	phyName := document.PHYFileName(m.name, node.ID)

	if err := document.WriteNEM(dir, nemName, node.Name, transport, macName, phyName); err != nil {
		return fmt.Errorf("write nem document for node %d: %w", node.ID, err)
	}
	if err := document.WriteLayer(dir, macName, "mac", m.macLibrary, pick(config, m.macOptions)); err != nil {
		return fmt.Errorf("write mac document for node %d: %w", node.ID, err)
	}
	if err := document.WriteLayer(dir, phyName, "phy", m.phyLibrary, pick(config, m.phyOptions)); err != nil {
		return fmt.Errorf("write phy document for node %d: %w", node.ID, err)
	}
	return nil
}

func (m *baseModel) PostStartup(node *core.RadioNode) error {
	m.log.Debug(context.Background(), "radio model has no post-startup tasks",
		logging.String("model", m.name), logging.Int("node", node.ID))
	return nil
}

func (m *baseModel) LinkConfig(iface *core.NetworkInterface, opts model.LinkOptions, peer *core.NetworkInterface) error {
	m.log.Warn(context.Background(), "radio model does not support link config",
		logging.String("model", m.name))
	return nil
}

// pick resolves the subset of config covered by opts, falling back to each
// option's default. Model documents only carry options the model declares.
func pick(config map[string]string, opts []model.Option) map[string]string {
	out := make(map[string]string, len(opts))
	for _, opt := range opts {
		if v, ok := config[opt.ID]; ok {
			out[opt.ID] = v
			continue
		}
		out[opt.ID] = opt.Default
	}
	return out
}

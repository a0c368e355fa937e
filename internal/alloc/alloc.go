// Package alloc owns the master/slave negotiation that assigns a platform
// id and starting NEM-id range to each server participating in a
// distributed run.
package alloc

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/bus"
	"github.com/meshworks/radio-orchestrator/internal/config"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/model"
)

// Outcome is the result of one negotiation call.
type Outcome int

const (
	// Ready: allocation is complete for this run; build/start may proceed.
	Ready Outcome = iota
	// Deferred: this instance is not authoritative and has not yet
	// received a platform-id push. Callers retry on a later tick.
	Deferred
	// NotNeeded: no radio nodes are registered; skip build/start.
	NotNeeded
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case Deferred:
		return "deferred"
	case NotNeeded:
		return "not-needed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Allocator performs id negotiation against the configuration store and
// the inter-server control channel.
type Allocator struct {
	store      config.Store
	controlBus bus.Bus
	globalName string
	defaults   map[string]string
	log        logging.Logger
}

// New constructs an allocator. globalName is the logical manager name
// configuration pushes are addressed under; defaults are the compiled-in
// option defaults used to detect whether a push has arrived.
func New(store config.Store, controlBus bus.Bus, globalName string, defaults map[string]string, log logging.Logger) *Allocator {
	if log == nil {
		log = logging.Noop()
	}
	return &Allocator{
		store:      store,
		controlBus: controlBus,
		globalName: globalName,
		defaults:   defaults,
		log:        log,
	}
}

// Negotiate resolves platform/NEM id allocation for this run.
//
// A non-authoritative instance defers until its platform_id_start no
// longer equals the compiled-in default, which happens when the
// authoritative side pushes configuration. An authoritative instance
// walks every other participating server in name-sorted order, pushing
// each an updated {platform id start, nem id start} and advancing its NEM
// counter by that peer's observed interface count. The push is one-shot:
// no acknowledgment and no retry beyond the caller re-invoking Negotiate.
func (a *Allocator) Negotiate(ctx context.Context, reg *core.Registry, servers []model.ServerRef, authoritative bool, ifaceCount func(server string) int) Outcome {
	if reg.Len() == 0 {
		return NotNeeded
	}

	if !authoritative {
		current := a.globalValue("platform_id_start")
		if current == a.defaults["platform_id_start"] {
			a.log.Info(ctx, "platform id not yet pushed, deferring")
			return Deferred
		}
		return Ready
	}

	nemID, err := a.parseGlobalInt("nem_id_start")
	if err != nil {
		a.log.Error(ctx, "invalid nem_id_start, deferring", logging.Any("error", err))
		return Deferred
	}
	platformID, err := a.parseGlobalInt("platform_id_start")
	if err != nil {
		a.log.Error(ctx, "invalid platform_id_start, deferring", logging.Any("error", err))
		return Deferred
	}
	nemID += reg.NumNEMs()

	for _, peer := range participatingPeers(reg, servers) {
		platformID++
		values := config.Merge(a.store, config.GlobalOwner, a.globalName, a.defaults)
		values["platform_id_start"] = strconv.Itoa(platformID)
		values["nem_id_start"] = strconv.Itoa(nemID)

		update := bus.Message{
			Type: bus.MessageConfigUpdate,
			Config: &bus.ConfigUpdate{
				Source: a.globalName,
				Values: values,
			},
		}
		if err := a.controlBus.Send(ctx, peer.Name, update); err != nil {
			// One-shot push: the peer stays deferred until the caller
			// negotiates again.
			a.log.Error(ctx, "config push failed",
				logging.String("server", peer.Name), logging.Any("error", err))
		} else {
			a.log.Info(ctx, "pushed id allocation",
				logging.String("server", peer.Name),
				logging.Int("platform_id_start", platformID),
				logging.Int("nem_id_start", nemID))
		}

		if ifaceCount != nil {
			nemID += ifaceCount(peer.Name)
		}
	}

	return Ready
}

// participatingPeers returns the remote servers that host at least one
// registered radio interface and have an active transport, sorted by name
// so platform-id assignment is reproducible.
func participatingPeers(reg *core.Registry, servers []model.ServerRef) []model.ServerRef {
	refs := make(map[string]model.ServerRef, len(servers))
	for _, s := range servers {
		refs[s.Name] = s
	}

	names := reg.Servers()
	out := make([]model.ServerRef, 0, len(names))
	for _, name := range names {
		ref, ok := refs[name]
		if !ok {
			continue
		}
		if ref.Local || !ref.Connected {
			continue
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (a *Allocator) globalValue(id string) string {
	if v := a.store.Value(config.GlobalOwner, a.globalName, id); v != "" {
		return v
	}
	return a.defaults[id]
}

func (a *Allocator) parseGlobalInt(id string) (int, error) {
	raw := a.globalValue(id)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("option %s=%q is not an integer: %w", id, raw, err)
	}
	return v, nil
}

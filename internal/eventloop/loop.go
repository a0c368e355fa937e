// Package eventloop consumes the asynchronous location events emitted by
// the radio-emulation daemons and converts them into node state.
package eventloop

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/geo"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/model"
)

// KindLocation is the event kind the loop consumes; all other kinds are
// ignored.
const KindLocation = "location"

// Attribute names extracted from location events. Orientation and
// velocity attributes have no internal representation and are ignored.
const (
	AttrLatitude  = "latitude"
	AttrLongitude = "longitude"
	AttrAltitude  = "altitude"
)

// maxCoordinate is the largest value the position wire format can carry.
const maxCoordinate = 0xffff

// Event is one inbound event from the event-service transport.
type Event struct {
	Kind  string
	NEM   uint16
	Attrs map[string]float64
}

// Transport is the event-service receive surface. NextEvents blocks until
// a batch arrives; BreakLoop unblocks a pending NextEvents so the worker
// can observe cancellation.
type Transport interface {
	NextEvents() ([]Event, error)
	BreakLoop() error
	Close() error
}

// Broadcaster publishes node-state notifications after a location event
// has been applied.
type Broadcaster interface {
	BroadcastNodeUpdate(ctx context.Context, update model.NodeUpdate)
}

// MetricsRecorder counts processed events by result.
type MetricsRecorder interface {
	RecordLocationEvent(result string)
}

// State is the loop's lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Loop is the cancelable background worker that ingests location events.
// Exactly one worker runs per loop instance.
type Loop struct {
	reg       *core.Registry
	transform geo.Transform
	broadcast Broadcaster
	metrics   MetricsRecorder
	log       logging.Logger

	mu        sync.Mutex
	state     State
	transport Transport
	running   atomic.Bool
	wg        sync.WaitGroup
}

// New constructs a loop over the given registry and coordinate transform.
// broadcast and metrics may be nil.
func New(reg *core.Registry, transform geo.Transform, broadcast Broadcaster, metrics MetricsRecorder, log logging.Logger) *Loop {
	if log == nil {
		log = logging.Noop()
	}
	return &Loop{
		reg:       reg,
		transform: transform,
		broadcast: broadcast,
		metrics:   metrics,
		log:       log,
	}
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start begins consuming events from transport. A nil transport means the
// event subsystem is disabled or failed to initialize; the loop stays
// Stopped and that is not an error.
func (l *Loop) Start(ctx context.Context, transport Transport) error {
	if transport == nil {
		l.log.Info(ctx, "event monitoring disabled, loop not started")
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Stopped {
		return nil
	}
	l.state = Starting
	l.transport = transport
	l.running.Store(true)
	l.wg.Add(1)
	go l.run(context.WithoutCancel(ctx))
	l.state = Running
	return nil
}

// Stop cancels the worker and waits for it to exit before tearing down
// the transport, guaranteeing no in-flight callback touches a
// half-destroyed transport.
func (l *Loop) Stop(ctx context.Context) {
	l.mu.Lock()
	if l.state != Running {
		l.mu.Unlock()
		return
	}
	l.state = Stopping
	transport := l.transport
	l.mu.Unlock()

	l.running.Store(false)
	if err := transport.BreakLoop(); err != nil {
		l.log.Warn(ctx, "failed to break event receive", logging.Any("error", err))
	}
	l.wg.Wait()

	if err := transport.Close(); err != nil {
		l.log.Warn(ctx, "failed to close event transport", logging.Any("error", err))
	}

	l.mu.Lock()
	l.transport = nil
	l.state = Stopped
	l.mu.Unlock()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	l.log.Info(ctx, "subscribed to location events")

	for l.running.Load() {
		events, err := l.transport.NextEvents()
		if !l.running.Load() {
			break
		}
		if err != nil {
			// Receive errors mean the transport is gone; the supervisor
			// restarts the loop on the next run.
			l.log.Error(ctx, "event receive failed", logging.Any("error", err))
			l.fail(ctx)
			break
		}
		for _, ev := range events {
			if ev.Kind != KindLocation {
				continue
			}
			l.handleLocation(ctx, ev)
		}
	}

	l.log.Info(ctx, "unsubscribed from location events")
}

// handleLocation translates one location event into node state. Bad
// inbound data is dropped with a log line, never propagated: it
// originates from an untrusted external process.
func (l *Loop) handleLocation(ctx context.Context, ev Event) {
	lat, okLat := ev.Attrs[AttrLatitude]
	lon, okLon := ev.Attrs[AttrLongitude]
	alt, okAlt := ev.Attrs[AttrAltitude]
	if !okLat || !okLon || !okAlt {
		l.log.Warn(ctx, "dropped location event with missing fields", logging.Int("nem", int(ev.NEM)))
		l.record("missing_fields")
		return
	}

	node, iface, ok := l.reg.LookupNEM(ev.NEM)
	if !ok {
		// Stale events for nodes that left the topology are expected.
		l.log.Info(ctx, "location event for unknown nem", logging.Int("nem", int(ev.NEM)))
		l.record("unknown_nem")
		return
	}

	fx, fy, fz := l.transform.ToXYZ(model.GeoPoint{Lat: lat, Lon: lon, Alt: alt})
	x, y, z := int(fx), int(fy), int(fz)
	if outOfRange(x) || outOfRange(y) || outOfRange(z) {
		l.log.Error(ctx, "location event exceeds coordinate space",
			logging.Int("nem", int(ev.NEM)),
			logging.Int("x", x), logging.Int("y", y), logging.Int("z", z))
		l.record("out_of_range")
		return
	}

	pos := model.Position{X: x, Y: y, Z: z}
	// Write the position directly instead of going through the session's
	// move path, which would re-emit a movement event back at us.
	iface.Node.SetPosition(pos)
	l.log.Debug(ctx, "applied location event",
		logging.Int("nem", int(ev.NEM)),
		logging.String("radio", node.Name),
		logging.String("node", iface.Node.Name),
		logging.Int("x", x), logging.Int("y", y), logging.Int("z", z))

	if l.broadcast != nil {
		l.broadcast.BroadcastNodeUpdate(ctx, model.NodeUpdate{
			NodeID:   iface.Node.ID,
			NodeName: iface.Node.Name,
			Geo:      model.GeoPoint{Lat: lat, Lon: lon, Alt: alt},
			Position: pos,
		})
	}
	l.record("applied")
}

// fail tears the loop down from inside the worker after the transport
// died. A Stop that already moved the state past Running owns teardown
// instead.
func (l *Loop) fail(ctx context.Context) {
	l.running.Store(false)
	l.mu.Lock()
	if l.state != Running {
		l.mu.Unlock()
		return
	}
	transport := l.transport
	l.transport = nil
	l.state = Stopped
	l.mu.Unlock()

	if err := transport.Close(); err != nil {
		l.log.Warn(ctx, "failed to close dead event transport", logging.Any("error", err))
	}
}

func (l *Loop) record(result string) {
	if l.metrics != nil {
		l.metrics.RecordLocationEvent(result)
	}
}

func outOfRange(v int) bool {
	return v < 0 || v > maxCoordinate
}

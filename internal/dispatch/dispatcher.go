// Package dispatch runs the capture reactor: one goroutine that waits for
// source readiness, normalizes raw events, binds them to registry devices and
// hands them to the store writer.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Hara602/inputSentry/internal/metrics"
	"github.com/Hara602/inputSentry/internal/model"
	"github.com/Hara602/inputSentry/internal/normalize"
	"github.com/Hara602/inputSentry/internal/registry"
	"github.com/Hara602/inputSentry/internal/source"
	"github.com/Hara602/inputSentry/internal/sysutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// rounds of one-read-per-source after a single wake; leftovers are carried to the next wait
const maxRoundsPerWake = 64

type Config struct {
	PollTimeout    time.Duration
	LivenessWindow time.Duration
}

type entry struct {
	src     source.Source
	backend source.Backend
	fd      int
	name    string
	// last monotonic reading with data or a probe
	lastActivity time.Duration
	removed      bool
}

type command struct {
	src     source.Source
	backend source.Backend
}

type Dispatcher struct {
	cfg      Config
	handoff  *Handoff
	norm     *normalize.Normalizer
	reg      *registry.Registry
	backends []source.Backend
	counters *metrics.Counters
	logger   *zap.Logger
	now      func() time.Duration

	poller  *poller
	entries map[int]*entry
	order   []*entry
	// sources still holding data when the round cap was hit; their fd may
	// not be readable again because the data sits in user space
	carry []*entry

	// control queue, written from any goroutine
	mu       sync.Mutex
	pending  []command
	stopping bool
	closed   bool
}

func New(cfg Config, handoff *Handoff, norm *normalize.Normalizer, reg *registry.Registry,
	backends []source.Backend, counters *metrics.Counters, logger *zap.Logger) (*Dispatcher, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	return &Dispatcher{
		cfg:      cfg,
		handoff:  handoff,
		norm:     norm,
		reg:      reg,
		backends: backends,
		counters: counters,
		logger:   logger,
		now:      sysutil.MonotonicNow,
		poller:   p,
		entries:  make(map[int]*entry),
	}, nil
}

// Register queues src for registration by the reactor goroutine.
// backend may be nil for sources that never report hot-plug.
func (d *Dispatcher) Register(src source.Source, backend source.Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher stopped, source not registered", zap.String("source", source.NameOf(src)))
		return
	}
	d.pending = append(d.pending, command{src: src, backend: backend})
	d.wakeLocked()
}

// Shutdown asks Run to drain and return. Safe from any goroutine, also after Run returned.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopping = true
	d.wakeLocked()
}

// wakeLocked requires d.mu; closePoller takes it too, so a wake never hits a closed fd.
func (d *Dispatcher) wakeLocked() {
	if d.closed {
		return
	}
	if err := d.poller.wake(); err != nil {
		d.logger.Warn("wake dispatcher failed", zap.Error(err))
	}
}

func (d *Dispatcher) closePoller() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.poller.close()
}

// Run starts every backend and loops until ctx is cancelled or Shutdown is
// called. On return the hand-off channel is closed and every source is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, d.Shutdown)

	for _, b := range d.backends {
		srcs, err := b.Start()
		for _, e := range multierr.Errors(err) {
			d.logger.Warn("device skipped", zap.String("backend", b.Name()), zap.Error(e))
		}
		for _, src := range srcs {
			d.add(src, b)
		}
	}

	var runErr error
	for {
		if d.applyCommands() {
			break
		}
		timeout := d.cfg.PollTimeout
		if len(d.carry) > 0 {
			timeout = 0
		}
		ready, err := d.poller.wait(timeout)
		if err != nil {
			runErr = err
			break
		}
		d.service(ready)
		d.checkLiveness()
	}

	stop()
	d.drain()
	return multierr.Append(runErr, d.closePoller())
}

// applyCommands registers queued sources and reports whether shutdown was requested.
func (d *Dispatcher) applyCommands() bool {
	d.mu.Lock()
	cmds := d.pending
	d.pending = nil
	stopping := d.stopping
	d.mu.Unlock()

	for _, c := range cmds {
		d.add(c.src, c.backend)
	}
	return stopping
}

func (d *Dispatcher) add(src source.Source, backend source.Backend) {
	name := source.NameOf(src)
	if err := src.Open(); err != nil {
		// one device failing never stops the others
		d.logger.Warn("source open failed", zap.String("source", name), zap.Error(err))
		return
	}
	fd := src.WaitHandle()
	if fd < 0 {
		d.logger.Warn("source has no wait handle", zap.String("source", name))
		src.Close()
		return
	}
	if err := d.poller.add(fd); err != nil {
		d.logger.Warn("source registration failed", zap.String("source", name), zap.Error(err))
		src.Close()
		return
	}
	e := &entry{src: src, backend: backend, fd: fd, name: name, lastActivity: d.now()}
	d.entries[fd] = e
	d.order = append(d.order, e)
	d.logger.Info("source registered", zap.String("source", name))
	// a source may have events (its connect announcement) before its handle turns readable
	d.service([]int{fd})
}

func (d *Dispatcher) remove(e *entry, reason string) {
	if e.removed {
		return
	}
	e.removed = true
	if err := d.poller.remove(e.fd); err != nil {
		d.logger.Debug("epoll remove", zap.String("source", e.name), zap.Error(err))
	}
	if err := e.src.Close(); err != nil {
		d.logger.Warn("source close failed", zap.String("source", e.name), zap.Error(err))
	}
	delete(d.entries, e.fd)
	for i, o := range d.order {
		if o == e {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.logger.Info("source removed", zap.String("source", e.name), zap.String("reason", reason))
}

// service reads ready and carried-over sources round-robin, one raw event per
// source per round, until each would block. Sources still readable after
// maxRoundsPerWake rounds are carried to the next call.
func (d *Dispatcher) service(ready []int) {
	due := make(map[*entry]bool, len(ready)+len(d.carry))
	for _, e := range d.carry {
		due[e] = true
	}
	d.carry = nil
	for _, fd := range ready {
		if e, ok := d.entries[fd]; ok {
			due[e] = true
		}
	}
	if len(due) == 0 {
		return
	}
	active := make([]*entry, 0, len(due))
	for _, e := range d.order {
		if due[e] {
			active = append(active, e)
		}
	}

	for round := 0; round < maxRoundsPerWake && len(active) > 0; round++ {
		next := active[:0]
		for _, e := range active {
			if e.removed {
				continue
			}
			if d.readOne(e) && !e.removed {
				next = append(next, e)
			}
		}
		active = next
	}
	for _, e := range active {
		if !e.removed {
			d.carry = append(d.carry, e)
		}
	}
}

// readOne reports whether the source may have more data.
func (d *Dispatcher) readOne(e *entry) bool {
	raw, err := e.src.ReadRaw()
	switch {
	case errors.Is(err, source.ErrWouldBlock):
		return false
	case errors.Is(err, source.ErrSourceGone):
		d.remove(e, "gone")
		return false
	case err != nil:
		// transient: retried on the next wake
		d.logger.Warn("source read failed", zap.String("source", e.name), zap.Error(err))
		return false
	}
	e.lastActivity = d.now()
	d.handle(e, raw)
	return true
}

func (d *Dispatcher) handle(e *entry, raw model.RawEvent) {
	switch raw.Kind {
	case model.RawAttach:
		d.attach(e.backend, raw.Path)
		return
	case model.RawDetach:
		d.detach(raw)
		return
	}

	evs, err := d.norm.Normalize(raw)
	if err != nil {
		d.counters.Rejected.Add(1)
		if normalize.IsRejected(err) {
			d.logger.Debug("raw event rejected", zap.String("source", e.name), zap.Error(err))
		} else {
			d.logger.Error("normalize failed", zap.String("source", e.name), zap.Error(err))
		}
		if raw.Kind == model.RawDisconnect {
			d.remove(e, "disconnected")
		}
		return
	}

	switch raw.Kind {
	case model.RawConnect:
		info := model.DeviceInfo{PlatformID: raw.PlatformID}
		if raw.Info != nil {
			info = *raw.Info
		}
		_, state := d.reg.Connect(info, evs[0].Wall)
		d.logger.Info("device connected",
			zap.String("platform_id", raw.PlatformID),
			zap.String("name", info.Name),
			zap.Stringer("capabilities", info.Capabilities),
			zap.Bool("reconnect", state == registry.StateReactivated))
		d.bind(raw.PlatformID, evs)
		d.updateDeviceCounts()
	case model.RawDisconnect:
		d.bind(raw.PlatformID, evs)
		d.retire(raw.PlatformID, evs)
		d.updateDeviceCounts()
	default:
		d.bind(raw.PlatformID, evs)
	}
	d.send(evs)

	if raw.Kind == model.RawDisconnect {
		d.remove(e, "disconnected")
	}
}

// bind attaches the device snapshot and clamps wall time so it never goes
// backwards for one device.
func (d *Dispatcher) bind(platformID string, evs []model.Event) {
	for i := range evs {
		dev, at := d.reg.Touch(platformID, evs[i].Wall)
		evs[i].Wall = at
		evs[i].DeviceID = dev.ID
		evs[i].Device = dev
	}
}

func (d *Dispatcher) retire(platformID string, evs []model.Event) {
	if len(evs) == 0 {
		return
	}
	last := &evs[len(evs)-1]
	dev, ok := d.reg.Retire(platformID, last.Wall)
	if !ok {
		return
	}
	last.Device = dev
	last.Wall = *dev.RetiredAt
	d.logger.Info("device disconnected", zap.String("platform_id", platformID))
}

func (d *Dispatcher) send(evs []model.Event) {
	for _, ev := range evs {
		d.handoff.Send(ev)
		d.counters.Captured.Add(1)
	}
}

func (d *Dispatcher) updateDeviceCounts() {
	active, retired := d.reg.Counts()
	d.counters.DevicesActive.Store(int64(active))
	d.counters.DevicesRetired.Store(int64(retired))
}

func (d *Dispatcher) attach(backend source.Backend, path string) {
	if backend == nil {
		return
	}
	for _, e := range d.order {
		if ds, ok := e.src.(source.DeviceSource); ok && ds.Info().Path == path {
			// already open from enumeration
			return
		}
	}
	src, err := backend.OpenDevice(path)
	if errors.Is(err, source.ErrFiltered) {
		return
	}
	if err != nil {
		d.logger.Warn("hot-plugged device skipped", zap.String("path", path), zap.Error(err))
		return
	}
	d.add(src, backend)
}

// detach handles a udev remove that arrives before the device read fails.
func (d *Dispatcher) detach(raw model.RawEvent) {
	for _, e := range d.order {
		ds, ok := e.src.(source.DeviceSource)
		if !ok || ds.Info().Path != raw.Path {
			continue
		}
		d.handle(e, model.RawEvent{
			Kind:        model.RawDisconnect,
			PlatformID:  ds.Info().PlatformID,
			Path:        raw.Path,
			CaptureMono: raw.CaptureMono,
		})
		return
	}
}

// checkLiveness probes sources that stayed silent for a whole window.
// A failed probe is logged only; removal happens when a read reports the device gone.
func (d *Dispatcher) checkLiveness() {
	if d.cfg.LivenessWindow <= 0 {
		return
	}
	now := d.now()
	for _, e := range d.order {
		if now-e.lastActivity < d.cfg.LivenessWindow {
			continue
		}
		e.lastActivity = now
		p, ok := e.src.(source.Prober)
		if !ok {
			continue
		}
		if err := p.Probe(); err != nil {
			d.logger.Warn("liveness probe failed", zap.String("source", e.name), zap.Error(err))
			continue
		}
		d.logger.Debug("source idle but alive", zap.String("source", e.name))
	}
}

// drain reads every source until it would block, then closes every source and the hand-off channel.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	late := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, c := range late {
		c.src.Close()
	}

	for {
		fds := make([]int, 0, len(d.order))
		for _, e := range d.order {
			fds = append(fds, e.fd)
		}
		d.service(fds)
		if len(d.carry) == 0 {
			break
		}
	}

	for len(d.order) > 0 {
		d.remove(d.order[0], "shutdown")
	}
	d.handoff.Close()
	d.logger.Info("dispatcher stopped", zap.Object("counters", d.counters.Snapshot()))
}

// Package recorder wires the capture and persistence contexts together.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hara602/inputSentry/internal/config"
	"github.com/Hara602/inputSentry/internal/devicefilter"
	"github.com/Hara602/inputSentry/internal/dispatch"
	"github.com/Hara602/inputSentry/internal/metrics"
	"github.com/Hara602/inputSentry/internal/normalize"
	"github.com/Hara602/inputSentry/internal/registry"
	"github.com/Hara602/inputSentry/internal/source"
	"github.com/Hara602/inputSentry/internal/store"
	"github.com/Hara602/inputSentry/internal/sysutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoBackend = errors.New("recorder: no capture backend available")

const statsInterval = time.Minute

type Recorder struct {
	cfg      *config.Config
	logger   *zap.Logger
	counters *metrics.Counters
	backends []source.Backend
}

type Option func(*Recorder)

// WithBackends bypasses the enabled_backends factory.
func WithBackends(b ...source.Backend) Option {
	return func(r *Recorder) { r.backends = b }
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{cfg: cfg, logger: logger, counters: metrics.New()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Counters exposes the live pipeline counters.
func (r *Recorder) Counters() *metrics.Counters { return r.counters }

// Run prepares storage, then captures until ctx is cancelled. Startup failures
// (storage, schema, no backend) are returned before anything is captured.
func (r *Recorder) Run(ctx context.Context) (err error) {
	cfg := r.cfg

	st, err := store.Open(cfg.StoragePath, r.logger.Named("store"))
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(st))

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s: %w", cfg.StoragePath, err)
	}
	devices, err := st.LoadDevices(ctx)
	if err != nil {
		return err
	}
	reg := registry.New()
	reg.Seed(devices)

	var spill *store.Spill
	if cfg.SpillPath != "" {
		if spill, err = store.OpenSpill(cfg.SpillPath); err != nil {
			return err
		}
		defer multierr.AppendInvoke(&err, multierr.Close(spill))
	}
	var mirror *store.Mirror
	if cfg.MirrorPath != "" {
		if mirror, err = store.OpenMirror(cfg.MirrorPath); err != nil {
			return err
		}
		defer multierr.AppendInvoke(&err, multierr.Close(mirror))
	}

	backends := r.backends
	if backends == nil {
		filter, err := devicefilter.New(cfg.IgnoreDevices)
		if err != nil {
			return err
		}
		if filter.Len() > 0 {
			r.logger.Info("device ignore rules loaded", zap.Int("rules", filter.Len()))
		}
		var errs []error
		backends, errs = source.New(cfg.EnabledBackends, r.logger.Named("source"), filter)
		for _, e := range errs {
			r.logger.Warn("backend unavailable", zap.Error(e))
		}
	}
	if len(backends) == 0 {
		return ErrNoBackend
	}

	handoff, err := dispatch.NewHandoff(cfg.ChannelCapacity, cfg.BackpressurePolicy, r.counters)
	if err != nil {
		return err
	}
	norm := normalize.New(sysutil.NewEpoch())
	d, err := dispatch.New(dispatch.Config{
		PollTimeout:    cfg.PollTimeout,
		LivenessWindow: cfg.LivenessWindow,
	}, handoff, norm, reg, backends, r.counters, r.logger.Named("dispatch"))
	if err != nil {
		return err
	}
	w := store.NewWriter(store.WriterConfig{
		BatchMaxEvents:   cfg.BatchMaxEvents,
		BatchMaxInterval: cfg.BatchMaxInterval,
		MaxRetries:       cfg.MaxRetries,
		RetryBackoff:     cfg.RetryBackoff,
		FailurePolicy:    cfg.FailurePolicy,
	}, st, spill, mirror, r.counters, r.logger.Named("writer"))

	r.logger.Info("recorder started",
		zap.Strings("backends", cfg.EnabledBackends),
		zap.String("storage", cfg.StoragePath),
		zap.Int("known_devices", reg.Len()),
		zap.Time("epoch", norm.Epoch().Wall))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})
	g.Go(func() error {
		// the writer outlives the shutdown token so the channel is always drained
		werr := w.Run(context.WithoutCancel(gctx), handoff.C())
		if werr != nil {
			// keep the dispatcher from blocking on a channel nobody reads
			for range handoff.C() {
				r.counters.Lost.Add(1)
			}
		}
		return werr
	})
	g.Go(func() error {
		r.logStats(gctx, handoff)
		return nil
	})

	err = g.Wait()
	r.logger.Info("recorder stopped", zap.Object("counters", r.counters.Snapshot()))
	return err
}

func (r *Recorder) logStats(ctx context.Context, handoff *dispatch.Handoff) {
	t := time.NewTicker(statsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.logger.Info("pipeline stats",
				zap.Object("counters", r.counters.Snapshot()),
				zap.Int("queued", handoff.Len()))
		}
	}
}

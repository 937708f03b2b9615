package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Hara602/inputSentry/internal/config"
	"github.com/Hara602/inputSentry/internal/metrics"
	"github.com/Hara602/inputSentry/internal/model"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Committer is the durable side of the writer; *Store implements it.
type Committer interface {
	CommitBatch(ctx context.Context, batch model.Batch) (int, error)
}

type WriterConfig struct {
	BatchMaxEvents   int
	BatchMaxInterval time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	FailurePolicy    string
}

// Writer 持久化上下文：从 channel 取事件，按数量或时间攒批提交
type Writer struct {
	cfg       WriterConfig
	committer Committer
	spill     *Spill
	mirror    *Mirror
	counters  *metrics.Counters
	logger    *zap.Logger

	batch model.Batch
}

// NewWriter builds a writer. spill and mirror are optional.
func NewWriter(cfg WriterConfig, committer Committer, spill *Spill, mirror *Mirror,
	counters *metrics.Counters, logger *zap.Logger) *Writer {
	if cfg.FailurePolicy == config.FailureSpill && spill == nil {
		cfg.FailurePolicy = config.FailureDrop
	}
	return &Writer{
		cfg:       cfg,
		committer: committer,
		spill:     spill,
		mirror:    mirror,
		counters:  counters,
		logger:    logger,
		batch:     make(model.Batch, 0, cfg.BatchMaxEvents),
	}
}

// Run consumes in until it is closed, then flushes the partial batch and
// returns. It only returns early on a fatal policy failure or a failed spill.
// ctx bounds storage calls; it should not be the shutdown token, or the final
// flush would be cut short.
func (w *Writer) Run(ctx context.Context, in <-chan model.Event) error {
	w.replay(ctx)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	defer stopTimer()

	for {
		select {
		case ev, ok := <-in:
			if !ok {
				err := w.flush(ctx)
				w.logger.Info("writer drained", zap.Object("counters", w.counters.Snapshot()))
				return err
			}
			w.batch = append(w.batch, ev)
			if timer == nil {
				// batch age, not idle time, bounds latency
				timer = time.NewTimer(w.cfg.BatchMaxInterval)
				timerC = timer.C
			}
			if len(w.batch) < w.cfg.BatchMaxEvents {
				continue
			}
		case <-timerC:
		}
		stopTimer()
		if err := w.flush(ctx); err != nil {
			return err
		}
	}
}

func (w *Writer) flush(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}
	batch := w.batch
	w.batch = make(model.Batch, 0, w.cfg.BatchMaxEvents)

	n, err := w.commit(ctx, batch)
	if err == nil {
		w.committed(batch, n)
		w.replay(ctx)
		return nil
	}

	w.logger.Error("batch commit failed",
		zap.Int("events", len(batch)),
		zap.String("policy", w.cfg.FailurePolicy),
		zap.Error(err))
	switch w.cfg.FailurePolicy {
	case config.FailureSpill:
		if serr := w.spill.Put(batch); serr != nil {
			return fmt.Errorf("%w: %v (commit error: %v)", ErrSpillFailed, serr, err)
		}
		w.counters.Spilled.Add(uint64(len(batch)))
	case config.FailureFatal:
		return fmt.Errorf("commit batch of %d events: %w", len(batch), err)
	default:
		w.counters.Lost.Add(uint64(len(batch)))
	}
	return nil
}

// commit retries transient failures with exponential backoff.
func (w *Writer) commit(ctx context.Context, batch model.Batch) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryBackoff
	b.MaxInterval = 30 * w.cfg.RetryBackoff

	return backoff.Retry(ctx, func() (int, error) {
		n, err := w.committer.CommitBatch(ctx, batch)
		if err != nil && !IsTransient(err) {
			return 0, backoff.Permanent(err)
		}
		return n, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(w.cfg.MaxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.logger.Warn("batch commit failed, retrying",
				zap.Int("events", len(batch)), zap.Duration("in", next), zap.Error(err))
		}),
	)
}

// committed counts the whole batch: rows skipped as duplicates were committed by an earlier attempt.
func (w *Writer) committed(batch model.Batch, inserted int) {
	w.counters.Committed.Add(uint64(len(batch)))
	if w.mirror != nil {
		if err := w.mirror.Write(batch); err != nil {
			w.logger.Warn("mirror write failed", zap.Error(err))
		}
	}
	w.logger.Debug("batch committed", zap.Int("events", len(batch)), zap.Int("inserted", inserted))
}

// replay re-commits spilled batches. Transient failures leave them spilled for the next attempt.
func (w *Writer) replay(ctx context.Context) {
	if w.spill == nil {
		return
	}
	pending, err := w.spill.Len()
	if err != nil {
		w.logger.Warn("spill unreadable", zap.Error(err))
		return
	}
	if pending == 0 {
		return
	}
	n, err := w.spill.Replay(func(batch model.Batch) error {
		inserted, err := w.commit(ctx, batch)
		if err != nil {
			if !IsTransient(err) {
				// set aside by the spill; it stays on disk but not in the database
				w.counters.Lost.Add(uint64(len(batch)))
				w.logger.Error("spilled batch rejected, set aside",
					zap.Int("events", len(batch)), zap.Error(err))
			}
			return err
		}
		w.committed(batch, inserted)
		return nil
	})
	if err != nil {
		w.logger.Warn("spill replay stopped", zap.Int("replayed", n), zap.Int("pending", pending-n), zap.Error(err))
		return
	}
	w.logger.Info("spill replayed", zap.Int("batches", n))
	if dead, err := w.spill.Dead(); err == nil && dead > 0 {
		w.logger.Warn("spilled batches set aside after permanent failures", zap.Int("batches", dead))
	}
}

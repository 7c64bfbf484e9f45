package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/clock"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
)

const defaultPruneInterval = 6 * time.Hour

// RetentionPruner trims the event and dwell logs to a fixed age. Occupancy
// rows are not its business: someone inside for longer than the retention
// window stays inside.
type RetentionPruner struct {
	store     store.Pruner
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	log       *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

type PrunerConfig struct {
	// RetentionDays of audit history to keep; 0 keeps it forever.
	RetentionDays int
	// IntervalHours between passes, 6 when unset.
	IntervalHours int
	// Clock sets the cutoff reference. Real time when nil.
	Clock clock.Clock
}

func NewRetentionPruner(s store.Pruner, cfg PrunerConfig, logger *slog.Logger) *RetentionPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &RetentionPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		clock:     cfg.Clock,
		log:       logger,
		done:      make(chan struct{}),
	}
}

// Start launches the pass loop in the background; the first pass runs at
// once. With no retention configured it only logs and returns.
func (p *RetentionPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.log.Info("event retention off, logs kept forever")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.log.Info("event retention on",
		"keep_days", int(p.retention.Hours()/24),
		"every", p.interval.String())
}

// Stop cancels the loop and blocks until the pass in flight returns.
func (p *RetentionPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *RetentionPruner) loop(ctx context.Context) {
	defer close(p.done)

	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		p.PruneOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// PruneOnce runs a single pass and reports how many records went. A store
// error is logged and counts as zero; the next pass tries again.
func (p *RetentionPruner) PruneOnce(ctx context.Context) int64 {
	cutoff := p.clock.Now().UTC().Add(-p.retention)
	n, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("event retention pass failed", "cutoff", cutoff, "err", err)
		return 0
	}
	if n > 0 {
		p.log.Info("old ledger records removed", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n
}
